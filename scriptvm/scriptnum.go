package scriptvm

import "fmt"

const (
	// defaultNumLen is the operand size limit of arithmetic opcodes.
	defaultNumLen = 8

	// lockTimeNumLen is the operand size of OP_CHECKLOCKTIMEVERIFY,
	// large enough for any uint32.
	lockTimeNumLen = 5
)

// scriptNum is a stack item interpreted as a little endian sign and
// magnitude integer.
type scriptNum int64

// makeScriptNum decodes v, rejecting items longer than maxLen and non
// minimal encodings.
func makeScriptNum(v []byte, maxLen int) (scriptNum, error) {
	if len(v) > maxLen {
		return 0, fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidNumber,
			len(v), maxLen)
	}
	if len(v) == 0 {
		return 0, nil
	}

	// The most significant byte may only be 0x00 or 0x80 if the next
	// byte needs its sign bit.
	if v[len(v)-1]&0x7f == 0 {
		if len(v) == 1 || v[len(v)-2]&0x80 == 0 {
			return 0, fmt.Errorf("%w: non-minimal encoding %x",
				ErrInvalidNumber, v)
		}
	}

	var result int64
	for i, b := range v {
		result |= int64(b) << uint8(8*i)
	}

	if v[len(v)-1]&0x80 != 0 {
		result &= ^(int64(0x80) << uint8(8*(len(v)-1)))
		return scriptNum(-result), nil
	}

	return scriptNum(result), nil
}

// Bytes returns the minimal encoding of n.
func (n scriptNum) Bytes() []byte {
	if n == 0 {
		return nil
	}

	negative := n < 0
	abs := int64(n)
	if negative {
		abs = -abs
	}

	var out []byte
	for abs > 0 {
		out = append(out, byte(abs&0xff))
		abs >>= 8
	}

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

// asBool interprets a stack item as a boolean. Any non-zero byte is true,
// except a lone sign bit in the last byte (negative zero).
func asBool(v []byte) bool {
	for i, b := range v {
		if b != 0 {
			if i == len(v)-1 && b == 0x80 {
				return false
			}
			return true
		}
	}

	return false
}

func fromBool(b bool) []byte {
	if b {
		return []byte{1}
	}

	return nil
}
