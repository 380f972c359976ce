package attestation

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// sealedKeyEnvelope is the CBOR byte-string wrapper the attestation
// channel carries: a PEM-encoded RSA private key.
type sealedKeyEnvelope []byte

// LoadOrGenerateKey recovers a sealed RSA key through the attestation
// channel's key-delivery direction, falling back to generating a fresh
// 2048-bit key when none is available.
func LoadOrGenerateKey() (*rsa.PrivateKey, error) {
	sealed, err := RetrieveExistingKey()
	if err != nil {
		return nil, fmt.Errorf("attestation: retrieving sealed key: %w", err)
	}
	if sealed != nil {
		key, err := decodeSealedKey(sealed)
		if err == nil {
			return key, nil
		}
		// Fall through to generation: a malformed or absent sealed key
		// is not fatal, it just means this keep was not provisioned
		// with one.
	}
	return rsa.GenerateKey(rand.Reader, 2048)
}

func decodeSealedKey(sealed []byte) (*rsa.PrivateKey, error) {
	var envelope sealedKeyEnvelope
	if err := cbor.Unmarshal(sealed, &envelope); err != nil {
		return nil, fmt.Errorf("attestation: decoding sealed key envelope: %w", err)
	}
	block, _ := pem.Decode(envelope)
	if block == nil {
		return nil, fmt.Errorf("attestation: sealed key envelope is not PEM")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("attestation: parsing sealed key: %w", err)
	}
	return key, nil
}

// IssueIdentity builds a self-signed, short-lived X.509 certificate over
// key and binds the attestation report of its SHA-256 fingerprint by
// issuing it as the attest() input. The returned Attestation carries
// only the TEE kind and the report length; the report bytes themselves
// are not returned.
func IssueIdentity(key *rsa.PrivateKey, commonName string) (tls.Certificate, Attestation, error) {
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return tls.Certificate{}, Attestation{}, fmt.Errorf("attestation: marshaling public key: %w", err)
	}
	fingerprint := sha256.Sum256(pubDER)

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, Attestation{}, fmt.Errorf("attestation: generating serial: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"enarx-test"},
			Country:      []string{"GB"},
			CommonName:   commonName,
		},
		NotBefore:             now,
		NotAfter:              now.AddDate(0, 0, 7),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		SubjectKeyId:          fingerprint[:],
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, Attestation{}, fmt.Errorf("attestation: self-signing certificate: %w", err)
	}

	cert := tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
	}

	report, err := Attest(fingerprint[:], make([]byte, 4096))
	if err != nil && !errors.Is(err, ErrUnsupportedPlatform) {
		return tls.Certificate{}, Attestation{}, fmt.Errorf("attestation: binding certificate fingerprint: %w", err)
	}

	return cert, report, nil
}

// ServerTLSConfig builds a hybrid-PQC server config: TLS 1.3 floor,
// X25519MLKEM768 preferred with X25519 fallback, session tickets
// disabled for forward secrecy.
func ServerTLSConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS13,
		CurvePreferences: []tls.CurveID{
			tls.X25519MLKEM768,
			tls.X25519,
		},
		Certificates:           []tls.Certificate{cert},
		SessionTicketsDisabled: true,
	}
}
