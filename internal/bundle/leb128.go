package bundle

import "fmt"

// putUvarint appends x to buf using canonical (minimal-width) unsigned
// LEB128 encoding, the integer format Wasm section headers use.
func putUvarint(buf []byte, x uint64) []byte {
	for x >= 0x80 {
		buf = append(buf, byte(x)|0x80)
		x >>= 7
	}
	return append(buf, byte(x))
}

// readUvarint reads a canonical ULEB128 varint from buf starting at off,
// returning the decoded value and the number of bytes consumed.
func readUvarint(buf []byte, off int) (uint64, int, error) {
	var x uint64
	var shift uint
	for i := 0; ; i++ {
		if shift >= 64 {
			return 0, 0, fmt.Errorf("bundle: varint overflows 64 bits")
		}
		if off+i >= len(buf) {
			return 0, 0, errNeedMoreData
		}
		b := buf[off+i]
		x |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return x, i + 1, nil
		}
		shift += 7
	}
}
