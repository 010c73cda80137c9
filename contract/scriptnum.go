package contract

import "fmt"

// MaxScriptNumLen is the maximum length of a numeric operand consumed by
// OP_CHECKLOCKTIMEVERIFY.
const MaxScriptNumLen = 5

// EncodeScriptNum encodes n using the consensus script-number format:
// minimal little-endian magnitude with the sign carried in the high bit of the
// last byte. Zero encodes as the empty byte slice.
func EncodeScriptNum(n int64) []byte {
	if n == 0 {
		return []byte{}
	}

	negative := n < 0
	// Work on the magnitude as uint64 so math.MinInt64 is representable.
	m := uint64(n)
	if negative {
		m = uint64(-n)
	}

	out := make([]byte, 0, 9)
	for m > 0 {
		out = append(out, byte(m&0xff))
		m >>= 8
	}

	// A set high bit on the last byte would read as a sign, so add a byte
	// to carry it.
	if out[len(out)-1]&0x80 != 0 {
		extra := byte(0x00)
		if negative {
			extra = 0x80
		}
		out = append(out, extra)
	} else if negative {
		out[len(out)-1] |= 0x80
	}
	return out
}

// DecodeScriptNum decodes a minimally encoded script number no longer than
// maxLen bytes.
func DecodeScriptNum(b []byte, maxLen int) (int64, error) {
	if len(b) > maxLen {
		return 0, fmt.Errorf("%w: %d bytes exceeds maximum %d", ErrInvalidScriptNum, len(b), maxLen)
	}
	if len(b) == 0 {
		return 0, nil
	}

	// The last byte may only be 0x00/0x80 when it carries a sign bit the
	// previous byte could not.
	last := b[len(b)-1]
	if last&0x7f == 0 {
		if len(b) == 1 || b[len(b)-2]&0x80 == 0 {
			return 0, fmt.Errorf("%w: non-minimal encoding %x", ErrInvalidScriptNum, b)
		}
	}

	var v int64
	for i, c := range b {
		v |= int64(c) << uint(8*i)
	}
	if last&0x80 != 0 {
		v &^= int64(0x80) << uint(8*(len(b)-1))
		return -v, nil
	}
	return v, nil
}
