package consteval

import (
	"errors"
	"fmt"
	"math/bits"

	"cabi/internal/types"
)

type intLiteral struct {
	value    uint64
	decimal  bool
	unsigned bool
	longs    int // 0, 1 ("l") or 2 ("ll")
}

// splitIntLiteral separates digits and suffix and decodes the value.
func splitIntLiteral(lit string) (intLiteral, error) {
	var out intLiteral
	if lit == "" {
		return out, errors.New("empty literal")
	}
	base := 10
	start := 0
	switch {
	case len(lit) >= 2 && lit[0] == '0' && (lit[1] == 'x' || lit[1] == 'X'):
		base, start = 16, 2
	case lit[0] == '0':
		base = 8
	}
	out.decimal = base == 10

	end := start
	for end < len(lit) && isDigitForBase(lit[end], 16) {
		if !isDigitForBase(lit[end], base) {
			if base == 8 && isDigit(lit[end]) {
				return out, fmt.Errorf("invalid digit %q in octal constant", lit[end])
			}
			break
		}
		end++
	}
	if end == start {
		return out, fmt.Errorf("missing digits in literal %q", lit)
	}
	suffix := lit[end:]
	if !parseIntSuffix(suffix, &out) {
		return out, fmt.Errorf("invalid suffix %q on integer constant", suffix)
	}

	for i := start; i < end; i++ {
		hi, lo := bits.Mul64(out.value, uint64(base))
		if hi != 0 {
			return out, errLiteralTooLarge
		}
		var carry uint64
		out.value, carry = bits.Add64(lo, uint64(digitValue(lit[i])), 0)
		if carry != 0 {
			return out, errLiteralTooLarge
		}
	}
	return out, nil
}

var errLiteralTooLarge = errors.New("integer constant is too large")

func parseIntSuffix(s string, out *intLiteral) bool {
	if n := len(s); n > 0 && (s[0] == 'u' || s[0] == 'U') {
		out.unsigned, s = true, s[1:]
	} else if n > 0 && (s[n-1] == 'u' || s[n-1] == 'U') {
		out.unsigned, s = true, s[:n-1]
	}
	switch s {
	case "":
	case "l", "L":
		out.longs = 1
	case "ll", "LL":
		out.longs = 2
	default:
		return false
	}
	return true
}

func isDigitForBase(b byte, base int) bool {
	switch base {
	case 8:
		return b >= '0' && b <= '7'
	case 10:
		return b >= '0' && b <= '9'
	case 16:
		return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
	default:
		return false
	}
}

func digitValue(b byte) int {
	switch {
	case b >= '0' && b <= '9':
		return int(b - '0')
	case b >= 'a' && b <= 'f':
		return int(b-'a') + 10
	default:
		return int(b-'A') + 10
	}
}

// candidates lists the types an integer constant may take, in order.
// Unsuffixed decimal constants follow C89 (int, long, unsigned long) before
// falling back to the long long extension.
func (l intLiteral) candidates() []types.Kind {
	switch {
	case l.unsigned && l.longs == 2:
		return []types.Kind{types.KindULongLong}
	case l.unsigned && l.longs == 1:
		return []types.Kind{types.KindULong, types.KindULongLong}
	case l.unsigned:
		return []types.Kind{types.KindUInt, types.KindULong, types.KindULongLong}
	case l.longs == 2:
		return []types.Kind{types.KindLongLong, types.KindULongLong}
	case l.longs == 1:
		return []types.Kind{types.KindLong, types.KindULong, types.KindLongLong, types.KindULongLong}
	case l.decimal:
		return []types.Kind{types.KindInt, types.KindLong, types.KindULong, types.KindLongLong, types.KindULongLong}
	default:
		return []types.Kind{types.KindInt, types.KindUInt, types.KindLong, types.KindULong, types.KindLongLong, types.KindULongLong}
	}
}

// decodeQuoted decodes the body of a character or string literal.
func decodeQuoted(lit string) ([]byte, error) {
	if len(lit) < 2 {
		return nil, fmt.Errorf("malformed literal %s", lit)
	}
	body := lit[1 : len(lit)-1]
	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' {
			out = append(out, c)
			continue
		}
		i++
		if i >= len(body) {
			return nil, fmt.Errorf("trailing backslash in %s", lit)
		}
		c = body[i]
		switch c {
		case '\'', '"', '\\', '?':
			out = append(out, c)
		case 'a':
			out = append(out, 7)
		case 'b':
			out = append(out, 8)
		case 'f':
			out = append(out, 12)
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'v':
			out = append(out, 11)
		case 'x':
			j := i + 1
			v := 0
			for j < len(body) && isDigitForBase(body[j], 16) {
				v = (v*16 + digitValue(body[j])) & 0xFFFF
				j++
			}
			if j == i+1 {
				return nil, errors.New("\\x used with no following hex digits")
			}
			out = append(out, byte(v&0xFF))
			i = j - 1
		default:
			if c >= '0' && c <= '7' {
				v := 0
				j := i
				for j < len(body) && j < i+3 && body[j] >= '0' && body[j] <= '7' {
					v = v*8 + int(body[j]-'0')
					j++
				}
				out = append(out, byte(v&0xFF))
				i = j - 1
				continue
			}
			// unknown escapes stand for the character itself
			out = append(out, c)
		}
	}
	return out, nil
}

// charValue computes the int value of a character constant. Plain char is
// signed; multi-character constants pack bytes big-endian into an int.
func charValue(lit string) (int64, error) {
	b, err := decodeQuoted(lit)
	if err != nil {
		return 0, err
	}
	switch len(b) {
	case 0:
		return 0, errors.New("empty character constant")
	case 1:
		return int64(int8(b[0])), nil
	}
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return int64(int32(v)), nil
}
