package attestation

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// attest issues the raw x86_64 syscall: selector in rax (via Syscall6's
// trap argument), input ptr/len in rdi/rsi, output ptr/len in rdx/r10.
// The kernel returns a signed length in rax (negative is -errno) and a
// TEE-kind discriminator in rdx.
func attest(input, output []byte) (Attestation, error) {
	var inPtr, outPtr uintptr
	if len(input) > 0 {
		inPtr = uintptr(unsafe.Pointer(&input[0]))
	}
	if len(output) > 0 {
		outPtr = uintptr(unsafe.Pointer(&output[0]))
	}

	r1, r2, errno := unix.Syscall6(
		attestSelector,
		inPtr, uintptr(len(input)),
		outPtr, uintptr(len(output)),
		0, 0,
	)
	if errno != 0 {
		if errno == unix.ENOSYS {
			// The kernel does not implement the pseudo-syscall: there is
			// no TEE to attest with, the same as an unsupported platform.
			return Attestation{Kind: None}, fmt.Errorf("attestation: syscall: %w: %w", ErrUnsupportedPlatform, errno)
		}
		return Attestation{}, fmt.Errorf("attestation: syscall: %w", errno)
	}

	length := int(int64(r1))
	if length < 0 {
		return Attestation{}, fmt.Errorf("attestation: syscall reported negative length %d", length)
	}

	kind := Other
	switch r2 {
	case 0:
		kind = None
	case 1:
		kind = Sev
	case 2:
		kind = Sgx
	}

	return Attestation{Kind: kind, Length: length}, nil
}
