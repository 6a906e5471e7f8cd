package consteval

import "fmt"

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokIdent
	tokKeyword
	tokInt
	tokFloat
	tokChar
	tokString
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	pos  int // byte offset in the source
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of input"
	}
	return fmt.Sprintf("%q", t.text)
}

var keywords = map[string]bool{
	"void": true, "char": true, "short": true, "int": true, "long": true,
	"float": true, "double": true, "signed": true, "unsigned": true,
	"struct": true, "union": true, "enum": true,
	"const": true, "volatile": true, "sizeof": true,
}

// punctuators, longest first.
var punctuators = []string{
	"<<", ">>", "<=", ">=", "==", "!=", "&&", "||",
	"(", ")", "[", "]", "*", "+", "-", "~", "!", "/", "%",
	"<", ">", "&", "^", "|", "?", ":", ",",
}

// scan splits src into tokens.
func scan(src string) ([]token, *Error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			i++
		case isIdentStart(c):
			j := i + 1
			for j < len(src) && isIdentChar(src[j]) {
				j++
			}
			kind := tokIdent
			if keywords[src[i:j]] {
				kind = tokKeyword
			}
			toks = append(toks, token{kind: kind, text: src[i:j], pos: i})
			i = j
		case isDigit(c) || (c == '.' && i+1 < len(src) && isDigit(src[i+1])):
			j, isFloat := scanNumber(src, i)
			kind := tokInt
			if isFloat {
				kind = tokFloat
			}
			toks = append(toks, token{kind: kind, text: src[i:j], pos: i})
			i = j
		case c == '\'' || c == '"':
			j := i + 1
			for j < len(src) && src[j] != c {
				if src[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(src) {
				return nil, syntaxError(i, "unterminated %s literal", quoteName(c))
			}
			kind := tokChar
			if c == '"' {
				kind = tokString
			}
			toks = append(toks, token{kind: kind, text: src[i : j+1], pos: i})
			i = j + 1
		default:
			matched := false
			for _, p := range punctuators {
				if len(src)-i >= len(p) && src[i:i+len(p)] == p {
					toks = append(toks, token{kind: tokPunct, text: p, pos: i})
					i += len(p)
					matched = true
					break
				}
			}
			if !matched {
				return nil, syntaxError(i, "unexpected character %q", c)
			}
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

// scanNumber consumes a preprocessing number starting at i.
func scanNumber(src string, i int) (end int, isFloat bool) {
	j := i
	hex := len(src)-i > 1 && src[i] == '0' && (src[i+1] == 'x' || src[i+1] == 'X')
	if hex {
		j += 2
	}
	for j < len(src) {
		c := src[j]
		switch {
		case isIdentChar(c):
			if !hex && (c == 'e' || c == 'E') && j+1 < len(src) && (src[j+1] == '+' || src[j+1] == '-') {
				isFloat = true
				j += 2
				continue
			}
			if !hex && (c == 'e' || c == 'E') {
				isFloat = true
			}
			j++
		case c == '.':
			isFloat = true
			j++
		default:
			return j, isFloat
		}
	}
	return j, isFloat
}

func quoteName(c byte) string {
	if c == '"' {
		return "string"
	}
	return "character"
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool { return isIdentStart(c) || isDigit(c) }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
