// Package attestation talks to the platform's attestation pseudo-syscall:
// obtaining TEE evidence bound to caller-supplied bytes, and recovering
// a sealed key delivered through the same channel.
package attestation

import (
	"errors"
	"fmt"
)

// attestSelector is the only process-wide value this package holds: the
// dedicated, nonzero x86_64 syscall selector the platform reserves for
// attestation calls.
const attestSelector = 0xEA01

// Kind discriminates which TEE, if any, produced a report.
type Kind int

const (
	None Kind = iota
	Sev
	Sgx
	Other
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Sev:
		return "sev"
	case Sgx:
		return "sgx"
	default:
		return "other"
	}
}

// Attestation is the result of a successful attest call: which TEE kind
// produced it, and how many bytes of the caller's output buffer are valid.
type Attestation struct {
	Kind   Kind
	Length int
}

// ErrUnsupportedPlatform is returned on any GOOS/GOARCH combination that
// cannot issue the platform's attestation syscall, and on linux/amd64
// when the kernel does not implement it (ENOSYS).
var ErrUnsupportedPlatform = errors.New("attestation: platform does not support the attestation syscall")

// Attest issues the platform attestation call, binding input into the
// report and writing up to len(output) bytes of evidence into output.
// If len(output) == 0, no bytes are written and Attestation.Length
// carries a hint at the required buffer size (the probe half of the
// two-call pattern RetrieveExistingKey and callers generally use).
func Attest(input, output []byte) (Attestation, error) {
	return attest(input, output)
}

// RetrieveExistingKey performs the two-call size-negotiation pattern
// over Attest to recover a sealed RSA private key delivered by the TEE
// pre-launch measurement step, if any. It returns (nil, nil) — not an
// error — when no key is available, leaving key generation to the
// caller.
func RetrieveExistingKey() ([]byte, error) {
	probe, err := Attest(nil, nil)
	if errors.Is(err, ErrUnsupportedPlatform) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	hint := probe.Length
	if probe.Kind != Sev || hint <= 0 {
		return nil, nil
	}

	buf := make([]byte, hint)
	result, err := Attest(nil, buf)
	if err != nil {
		return nil, err
	}
	if result.Length > len(buf) {
		return nil, fmt.Errorf("attestation: report grew between probe (%d) and fetch (%d)", hint, result.Length)
	}
	return buf[:result.Length], nil
}
