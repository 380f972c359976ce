// Package envelope decodes the CBOR workload envelope the HTTPS ingest
// endpoint receives and encodes the completion reply it sends back.
package envelope

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Workload is the payload a shipper POSTs to /workload: the Wasm binary
// to run plus a free-form human-readable description of it.
type Workload struct {
	WasmBinary        []byte `cbor:"wasm_binary"`
	HumanReadableInfo string `cbor:"human_readable_info"`
}

// DecodeWorkload decodes a CBOR-encoded Workload envelope.
func DecodeWorkload(data []byte) (Workload, error) {
	var w Workload
	if err := cbor.Unmarshal(data, &w); err != nil {
		return Workload{}, fmt.Errorf("envelope: decoding workload: %w", err)
	}
	return w, nil
}

// CommsComplete is the reply sent once a workload has been buffered
// (not once it has finished running).
type CommsComplete struct {
	Success bool   `cbor:"success"`
	Reason  string `cbor:"reason,omitempty"`
}

// Success builds the success reply.
func Success() CommsComplete { return CommsComplete{Success: true} }

// Failure builds a failure reply carrying reason.
func Failure(reason string) CommsComplete {
	return CommsComplete{Success: false, Reason: reason}
}

// Encode serializes a CommsComplete reply as CBOR.
func (c CommsComplete) Encode() ([]byte, error) {
	b, err := cbor.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("envelope: encoding reply: %w", err)
	}
	return b, nil
}
