package llm

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// ParsePartialJSON decodes the longest meaningful value from a JSON document
// that may be cut off at any byte. Open strings are closed, open objects and
// arrays are closed, and trailing fragments that cannot yet be decided (a key
// without a value, "tru", "-", "1.") are left out.
//
// Leading text before the first '{' or '[' (such as a Markdown code fence) is
// skipped. The boolean is false when nothing could be decoded yet. An error is
// returned only for input that can never become valid JSON.
func ParsePartialJSON(text string) (any, bool, error) {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return nil, false, nil
	}
	p := &partialParser{s: text[start:]}
	v, present, _, err := p.value()
	if err != nil {
		return nil, false, err
	}
	return v, present, nil
}

type partialParser struct {
	s   string
	pos int
}

func (p *partialParser) eof() bool { return p.pos >= len(p.s) }

func (p *partialParser) skipSpace() {
	for !p.eof() {
		switch p.s[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *partialParser) errorf(format string, args ...any) error {
	return fmt.Errorf("partial json at offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

// value parses one value. present reports whether anything usable was decoded,
// complete whether the value was terminated before the end of input.
func (p *partialParser) value() (v any, present, complete bool, err error) {
	p.skipSpace()
	if p.eof() {
		return nil, false, false, nil
	}
	switch c := p.s[p.pos]; {
	case c == '{':
		return p.object()
	case c == '[':
		return p.array()
	case c == '"':
		s, complete, err := p.str()
		return s, err == nil, complete, err
	case c == '-' || (c >= '0' && c <= '9'):
		return p.number()
	case c == 't':
		return p.literal("true", true)
	case c == 'f':
		return p.literal("false", false)
	case c == 'n':
		return p.literal("null", nil)
	default:
		return nil, false, false, p.errorf("unexpected character %q", c)
	}
}

func (p *partialParser) object() (any, bool, bool, error) {
	p.pos++ // {
	obj := map[string]any{}
	for {
		p.skipSpace()
		if p.eof() {
			return obj, true, false, nil
		}
		if p.s[p.pos] == '}' {
			p.pos++
			return obj, true, true, nil
		}
		if p.s[p.pos] != '"' {
			return nil, false, false, p.errorf("expected object key")
		}
		key, keyDone, err := p.str()
		if err != nil {
			return nil, false, false, err
		}
		if !keyDone {
			return obj, true, false, nil
		}
		p.skipSpace()
		if p.eof() {
			return obj, true, false, nil
		}
		if p.s[p.pos] != ':' {
			return nil, false, false, p.errorf("expected ':' after key %q", key)
		}
		p.pos++
		v, present, complete, err := p.value()
		if err != nil {
			return nil, false, false, err
		}
		if present {
			obj[key] = v
		}
		if !complete {
			return obj, true, false, nil
		}
		p.skipSpace()
		if p.eof() {
			return obj, true, false, nil
		}
		switch p.s[p.pos] {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return obj, true, true, nil
		default:
			return nil, false, false, p.errorf("expected ',' or '}' in object")
		}
	}
}

func (p *partialParser) array() (any, bool, bool, error) {
	p.pos++ // [
	arr := []any{}
	for {
		p.skipSpace()
		if p.eof() {
			return arr, true, false, nil
		}
		if p.s[p.pos] == ']' {
			p.pos++
			return arr, true, true, nil
		}
		v, present, complete, err := p.value()
		if err != nil {
			return nil, false, false, err
		}
		if present {
			arr = append(arr, v)
		}
		if !complete {
			return arr, true, false, nil
		}
		p.skipSpace()
		if p.eof() {
			return arr, true, false, nil
		}
		switch p.s[p.pos] {
		case ',':
			p.pos++
		case ']':
			p.pos++
			return arr, true, true, nil
		default:
			return nil, false, false, p.errorf("expected ',' or ']' in array")
		}
	}
}

// str decodes a string starting at the opening quote. An unterminated string
// yields its content so far, minus any incomplete escape sequence.
func (p *partialParser) str() (string, bool, error) {
	p.pos++ // "
	var b strings.Builder
	for !p.eof() {
		c := p.s[p.pos]
		switch {
		case c == '"':
			p.pos++
			return b.String(), true, nil
		case c == '\\':
			if p.pos+1 >= len(p.s) {
				p.pos = len(p.s)
				return b.String(), false, nil
			}
			esc := p.s[p.pos+1]
			switch esc {
			case '"', '\\', '/':
				b.WriteByte(esc)
			case 'b':
				b.WriteByte('\b')
			case 'f':
				b.WriteByte('\f')
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'u':
				r, n, ok := p.unicodeEscape(p.pos)
				if !ok {
					p.pos = len(p.s)
					return b.String(), false, nil
				}
				b.WriteRune(r)
				p.pos += n
				continue
			default:
				return "", false, p.errorf("invalid escape %q", esc)
			}
			p.pos += 2
		case c < 0x20:
			return "", false, p.errorf("control character in string")
		default:
			r, size := utf8.DecodeRuneInString(p.s[p.pos:])
			if r == utf8.RuneError && size <= 1 && !utf8.FullRuneInString(p.s[p.pos:]) {
				// multi-byte rune cut by the stream
				p.pos = len(p.s)
				return b.String(), false, nil
			}
			b.WriteRune(r)
			p.pos += size
		}
	}
	return b.String(), false, nil
}

// unicodeEscape decodes \uXXXX (and a following low surrogate) at i.
// ok is false when the escape is cut off.
func (p *partialParser) unicodeEscape(i int) (rune, int, bool) {
	hex := func(at int) (rune, bool) {
		if at+6 > len(p.s) {
			return 0, false
		}
		n, err := strconv.ParseUint(p.s[at+2:at+6], 16, 16)
		if err != nil {
			return utf8.RuneError, true
		}
		return rune(n), true
	}
	r, ok := hex(i)
	if !ok {
		return 0, 0, false
	}
	if utf16.IsSurrogate(r) {
		if i+12 > len(p.s) {
			return 0, 0, false
		}
		if p.s[i+6] == '\\' && p.s[i+7] == 'u' {
			if lo, ok := hex(i + 6); ok {
				return utf16.DecodeRune(r, lo), 12, true
			}
		}
		return utf8.RuneError, 6, true
	}
	return r, 6, true
}

func (p *partialParser) number() (any, bool, bool, error) {
	start := p.pos
	for !p.eof() && strings.IndexByte("+-0123456789.eE", p.s[p.pos]) >= 0 {
		p.pos++
	}
	raw := p.s[start:p.pos]
	if p.eof() {
		// the number may still grow; only keep what already parses
		raw = strings.TrimRight(raw, "+-.eE")
		if raw == "" {
			return nil, false, false, nil
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, false, false, nil
		}
		return f, true, false, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, false, false, p.errorf("invalid number %q", raw)
	}
	return f, true, true, nil
}

func (p *partialParser) literal(word string, v any) (any, bool, bool, error) {
	rest := p.s[p.pos:]
	if strings.HasPrefix(rest, word) {
		p.pos += len(word)
		return v, true, true, nil
	}
	if strings.HasPrefix(word, rest) {
		p.pos = len(p.s)
		return nil, false, false, nil
	}
	return nil, false, false, p.errorf("invalid literal")
}
