package util

// CopyBytes returns an independent copy of src.
func CopyBytes(src []byte) []byte {
	if src == nil {
		return nil
	}
	dst := make([]byte, len(src))
	copy(dst, src)
	return dst
}

// WipeBytes best-effort zeroes the provided byte slice in place.
func WipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// LeftPad returns b left-padded with zeros to size bytes. If b is longer
// than size, the leading bytes are dropped.
func LeftPad(b []byte, size int) []byte {
	out := make([]byte, size)
	if len(b) >= size {
		copy(out, b[len(b)-size:])
		return out
	}
	copy(out[size-len(b):], b)
	return out
}
