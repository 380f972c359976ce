//go:build !(linux && amd64)

package attestation

// attest on any platform other than linux/amd64 cannot issue the raw
// x86_64 attestation syscall: there is no portable way to select an
// arbitrary, platform-reserved syscall number outside that ABI. Callers
// see a clean None attestation plus ErrUnsupportedPlatform rather than
// a crash.
func attest(input, output []byte) (Attestation, error) {
	return Attestation{Kind: None}, ErrUnsupportedPlatform
}
