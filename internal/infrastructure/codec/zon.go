package codec

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// decodeZON parses the legacy compact text encoding used by an earlier
// storage generation. The grammar is frozen: it is only ever read, never
// written, so this decoder accepts historical data as-is and makes no
// attempt to normalize or extend the format.
//
// Values map onto the JSON data model: anonymous struct literals with
// named fields (`.{ .type = 2, .timestamp = 173 }`) become objects,
// tuple literals (`.{ 1, 2, 3 }`) become arrays, enum literals (`.foo`)
// become strings, and all numbers become float64 to match what a JSON
// parse of the same data would produce.
func decodeZON(input string) (any, error) {
	p := &zonParser{input: input}
	p.skipWhitespace()
	v, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	p.skipWhitespace()
	if p.pos != len(p.input) {
		return nil, fmt.Errorf("trailing data at offset %d", p.pos)
	}
	return v, nil
}

type zonParser struct {
	input string
	pos   int
}

func (p *zonParser) errf(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("zon: %s at offset %d", msg, p.pos)
}

func (p *zonParser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *zonParser) skipWhitespace() {
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			p.pos++
		case c == '/' && p.pos+1 < len(p.input) && p.input[p.pos+1] == '/':
			for p.pos < len(p.input) && p.input[p.pos] != '\n' {
				p.pos++
			}
		default:
			return
		}
	}
}

func (p *zonParser) parseValue() (any, error) {
	switch c := p.peek(); {
	case c == '.':
		if p.pos+1 < len(p.input) && p.input[p.pos+1] == '{' {
			p.pos++
			return p.parseAggregate()
		}
		return p.parseEnumLiteral()
	case c == '"':
		return p.parseString()
	case c == '-' || c == '+' || (c >= '0' && c <= '9'):
		return p.parseNumber()
	case c == 't' || c == 'f' || c == 'n':
		return p.parseKeyword()
	case c == 0:
		return nil, p.errf("unexpected end of input")
	default:
		return nil, p.errf("unexpected character %q", c)
	}
}

// parseAggregate handles both struct literals (named fields) and tuple
// literals (positional values); the grammar distinguishes them by the
// first element. `.{}` is the empty tuple.
func (p *zonParser) parseAggregate() (any, error) {
	if p.peek() != '{' {
		return nil, p.errf("expected '{'")
	}
	p.pos++
	p.skipWhitespace()

	if p.peek() == '}' {
		p.pos++
		return []any{}, nil
	}

	if p.isFieldStart() {
		return p.parseStructFields()
	}
	return p.parseTupleValues()
}

// isFieldStart reports whether the cursor sits on `.name =` or
// `.@"name" =` rather than a nested value.
func (p *zonParser) isFieldStart() bool {
	if p.peek() != '.' {
		return false
	}
	if p.pos+1 < len(p.input) && p.input[p.pos+1] == '{' {
		return false
	}
	// Scan ahead past the identifier for '='; enum literal values in
	// tuple position are followed by ',' or '}' instead.
	i := p.pos + 1
	if i < len(p.input) && p.input[i] == '@' {
		return true
	}
	for i < len(p.input) && isIdentChar(p.input[i]) {
		i++
	}
	for i < len(p.input) {
		switch p.input[i] {
		case ' ', '\t', '\r', '\n':
			i++
		case '=':
			return true
		default:
			return false
		}
	}
	return false
}

func (p *zonParser) parseStructFields() (any, error) {
	obj := make(map[string]any)
	for {
		if p.peek() != '.' {
			return nil, p.errf("expected field")
		}
		p.pos++

		name, err := p.parseFieldName()
		if err != nil {
			return nil, err
		}

		p.skipWhitespace()
		if p.peek() != '=' {
			return nil, p.errf("expected '=' after field %q", name)
		}
		p.pos++
		p.skipWhitespace()

		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		obj[name] = v

		p.skipWhitespace()
		switch p.peek() {
		case ',':
			p.pos++
			p.skipWhitespace()
			if p.peek() == '}' {
				p.pos++
				return obj, nil
			}
		case '}':
			p.pos++
			return obj, nil
		default:
			return nil, p.errf("expected ',' or '}'")
		}
	}
}

func (p *zonParser) parseTupleValues() (any, error) {
	var list []any
	for {
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		list = append(list, v)

		p.skipWhitespace()
		switch p.peek() {
		case ',':
			p.pos++
			p.skipWhitespace()
			if p.peek() == '}' {
				p.pos++
				return list, nil
			}
		case '}':
			p.pos++
			return list, nil
		default:
			return nil, p.errf("expected ',' or '}'")
		}
	}
}

func (p *zonParser) parseFieldName() (string, error) {
	if p.peek() == '@' {
		p.pos++
		s, err := p.parseString()
		if err != nil {
			return "", err
		}
		return s.(string), nil
	}
	start := p.pos
	for p.pos < len(p.input) && isIdentChar(p.input[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		return "", p.errf("empty field name")
	}
	return p.input[start:p.pos], nil
}

func (p *zonParser) parseEnumLiteral() (any, error) {
	p.pos++ // consume '.'
	if p.peek() == '@' {
		p.pos++
		return p.parseString()
	}
	start := p.pos
	for p.pos < len(p.input) && isIdentChar(p.input[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		return nil, p.errf("empty enum literal")
	}
	return p.input[start:p.pos], nil
}

func (p *zonParser) parseString() (any, error) {
	if p.peek() != '"' {
		return nil, p.errf("expected string")
	}
	p.pos++
	var sb strings.Builder
	for {
		if p.pos >= len(p.input) {
			return nil, p.errf("unterminated string")
		}
		c := p.input[p.pos]
		switch c {
		case '"':
			p.pos++
			return sb.String(), nil
		case '\\':
			p.pos++
			if p.pos >= len(p.input) {
				return nil, p.errf("unterminated escape")
			}
			switch e := p.input[p.pos]; e {
			case 'n':
				sb.WriteByte('\n')
				p.pos++
			case 't':
				sb.WriteByte('\t')
				p.pos++
			case 'r':
				sb.WriteByte('\r')
				p.pos++
			case '\\', '"', '\'':
				sb.WriteByte(e)
				p.pos++
			case 'u':
				p.pos++
				r, err := p.parseUnicodeEscape()
				if err != nil {
					return nil, err
				}
				sb.WriteRune(r)
			default:
				return nil, p.errf("unknown escape %q", e)
			}
		default:
			sb.WriteByte(c)
			p.pos++
		}
	}
}

// parseUnicodeEscape handles `\u{XXXX}` escapes.
func (p *zonParser) parseUnicodeEscape() (rune, error) {
	if p.peek() != '{' {
		return 0, p.errf("expected '{' in unicode escape")
	}
	p.pos++
	start := p.pos
	for p.pos < len(p.input) && p.input[p.pos] != '}' {
		p.pos++
	}
	if p.pos >= len(p.input) {
		return 0, p.errf("unterminated unicode escape")
	}
	code, err := strconv.ParseUint(p.input[start:p.pos], 16, 32)
	if err != nil {
		return 0, p.errf("invalid unicode escape")
	}
	p.pos++ // consume '}'
	if !utf8.ValidRune(rune(code)) {
		return 0, p.errf("invalid rune in unicode escape")
	}
	return rune(code), nil
}

func (p *zonParser) parseNumber() (any, error) {
	start := p.pos
	if c := p.peek(); c == '-' || c == '+' {
		p.pos++
	}

	// Hex, octal and binary integer forms.
	if strings.HasPrefix(p.input[p.pos:], "0x") || strings.HasPrefix(p.input[p.pos:], "0X") ||
		strings.HasPrefix(p.input[p.pos:], "0o") || strings.HasPrefix(p.input[p.pos:], "0b") {
		p.pos += 2
		for p.pos < len(p.input) && (isHexDigit(p.input[p.pos]) || p.input[p.pos] == '_') {
			p.pos++
		}
		text := strings.ReplaceAll(p.input[start:p.pos], "_", "")
		n, err := strconv.ParseInt(text, 0, 64)
		if err != nil {
			return nil, p.errf("invalid number %q", text)
		}
		return float64(n), nil
	}

	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if (c >= '0' && c <= '9') || c == '.' || c == 'e' || c == 'E' || c == '_' ||
			((c == '-' || c == '+') && (p.input[p.pos-1] == 'e' || p.input[p.pos-1] == 'E')) {
			p.pos++
			continue
		}
		break
	}
	text := strings.ReplaceAll(p.input[start:p.pos], "_", "")
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, p.errf("invalid number %q", text)
	}
	return f, nil
}

func (p *zonParser) parseKeyword() (any, error) {
	for _, kw := range []struct {
		text  string
		value any
	}{
		{"true", true},
		{"false", false},
		{"null", nil},
	} {
		if strings.HasPrefix(p.input[p.pos:], kw.text) {
			end := p.pos + len(kw.text)
			if end < len(p.input) && isIdentChar(p.input[end]) {
				continue
			}
			p.pos = end
			return kw.value, nil
		}
	}
	return nil, p.errf("unknown keyword")
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
