package notation

import "strings"

// scanner is a left-to-right cursor over the query text. It never
// backtracks; each grammar section consumes its span and reports the
// terminator that ended it.
type scanner struct {
	notation string // original input, for error messages
	s        string
	pos      int
}

func (sc *scanner) eof() bool { return sc.pos >= len(sc.s) }

// section consumes text up to (and including) the first unescaped byte in
// stops, returning the raw escaped span, the unescaped text and the
// terminator (0 at end of input).
func (sc *scanner) section(stops string) (raw, text string, stop byte, err error) {
	var rawB, textB strings.Builder
	for sc.pos < len(sc.s) {
		c := sc.s[sc.pos]
		if c == '\\' {
			if sc.pos+1 >= len(sc.s) {
				return "", "", 0, errf(sc.notation, "", "dangling escape at position %d", sc.pos)
			}
			esc := sc.s[sc.pos+1]
			switch esc {
			case '/', '[', ']', '\\':
				rawB.WriteByte(c)
				rawB.WriteByte(esc)
				textB.WriteByte(esc)
				sc.pos += 2
				continue
			default:
				return "", "", 0, errf(sc.notation, "", "invalid escape %q at position %d", string(rune(esc)), sc.pos)
			}
		}
		if strings.IndexByte(stops, c) >= 0 {
			sc.pos++
			return rawB.String(), textB.String(), c, nil
		}
		rawB.WriteByte(c)
		textB.WriteByte(c)
		sc.pos++
	}
	return rawB.String(), textB.String(), 0, nil
}

// Options tunes parsing. Legacy accepts the old bare-property form
// "field/name[prop]", reading it as "every element, project prop".
type Options struct {
	Legacy bool
}

// Parse parses a notation query in strict mode.
func Parse(input string) (*Query, error) {
	return ParseWithOptions(input, Options{})
}

// ParseWithOptions parses a notation query, either the plaintext URI form
// or its base64url encoding. The whole input must be consumed; leftover
// text after the last recognized section is an error.
func ParseWithOptions(input string, opts Options) (*Query, error) {
	if input == "" {
		return nil, errf(input, "", "empty notation")
	}
	text := maybeDecodeBase64(input)

	q := &Query{}
	body := text
	if strings.HasPrefix(body, Prefix) {
		q.HasPrefix = true
		body = body[len(Prefix):]
	}

	sc := &scanner{notation: input, s: body}

	// Record locator.
	raw, rec, stop, err := sc.section("/")
	if err != nil {
		return nil, err
	}
	if rec == "" {
		return nil, errf(input, "", "missing record locator")
	}
	if stop != '/' {
		return nil, errf(input, "", "missing selector after record")
	}
	q.Record, q.RecordRaw = rec, raw

	// Selector.
	_, sel, stop, err := sc.section("/[")
	if err != nil {
		return nil, err
	}
	q.Selector = Selector(sel)
	switch q.Selector {
	case SelectorType, SelectorTitle, SelectorNotes:
		if stop != 0 {
			return nil, errf(input, "", "selector %q does not accept a parameter", sel)
		}
		return q, nil
	case SelectorField, SelectorCustomField, SelectorFile:
	default:
		return nil, errf(input, "", "unknown selector %q", sel)
	}
	if stop != '/' {
		return nil, errf(input, "", "selector %q requires a parameter", sel)
	}

	// Parameter.
	raw, par, stop, err := sc.section("/[")
	if err != nil {
		return nil, err
	}
	if par == "" {
		return nil, errf(input, "", "selector %q requires a parameter", sel)
	}
	if stop == '/' {
		return nil, errf(input, "", "unexpected section after parameter")
	}
	q.Parameter, q.ParameterRaw = par, raw
	if stop == 0 {
		return q, nil
	}

	// First bracket.
	if !q.Selector.allowsIndexes() {
		return nil, errf(input, "", "selector %q does not accept indexes", sel)
	}
	raw1, idx1, stop, err := sc.section("]")
	if err != nil {
		return nil, err
	}
	if stop != ']' {
		return nil, errf(input, "", "unterminated index")
	}
	switch {
	case idx1 == "":
		q.HasIndex1, q.Index1 = true, -1
	case isDigits(idx1):
		q.HasIndex1, q.Index1, q.Index1Raw = true, atoi(idx1), raw1
	case opts.Legacy:
		// Old clients wrote field/name[prop] with no positional index.
		q.HasIndex1, q.Index1 = true, -1
		q.HasIndex2, q.Index2, q.Index2Raw = true, idx1, raw1
	default:
		return nil, errf(input, "", "non-numeric index %q (property projection needs a leading [n] or [])", idx1)
	}

	// Second bracket.
	if !sc.eof() {
		if q.HasIndex2 {
			return nil, errf(input, "", "unexpected text after property index")
		}
		if sc.s[sc.pos] != '[' {
			return nil, errf(input, "", "unexpected text after index")
		}
		sc.pos++
		raw2, idx2, stop, err := sc.section("]")
		if err != nil {
			return nil, err
		}
		if stop != ']' {
			return nil, errf(input, "", "unterminated property index")
		}
		if idx2 == "" {
			return nil, errf(input, "", "empty property index")
		}
		q.HasIndex2, q.Index2, q.Index2Raw = true, idx2, raw2
	}

	// Footer: the grammar ends here.
	if !sc.eof() {
		return nil, errf(input, "", "unexpected text after final section")
	}
	return q, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

func atoi(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		n = n*10 + int(s[i]-'0')
	}
	return n
}
