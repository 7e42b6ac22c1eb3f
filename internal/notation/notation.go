// Package notation parses and resolves the compact query language that
// addresses one field or file inside a decoded record tree:
//
//	["keeper://"]<record>/<selector>[/<parameter>[[<index1>][<index2>]]]
//
// <record> and <parameter> are escape-aware text runs; backslash escapes
// '/', '[', ']' and itself. Input may arrive base64url-encoded; the parser
// auto-detects that form.
package notation

import (
	"strings"
	"unicode/utf8"

	"github.com/Keeper-Security/secrets-manager-sub005/internal/crypto"
)

// Prefix is the optional URI scheme in front of a query.
const Prefix = "keeper://"

// Selector is the part of a query naming what to extract from a record.
type Selector string

const (
	SelectorType        Selector = "type"
	SelectorTitle       Selector = "title"
	SelectorNotes       Selector = "notes"
	SelectorField       Selector = "field"
	SelectorCustomField Selector = "custom_field"
	SelectorFile        Selector = "file"
)

func (s Selector) wantsParameter() bool {
	switch s {
	case SelectorField, SelectorCustomField, SelectorFile:
		return true
	}
	return false
}

func (s Selector) allowsIndexes() bool {
	return s == SelectorField || s == SelectorCustomField
}

// Query is one parsed notation. Raw fields keep the escaped source text of
// each section so Format can reproduce the canonical string exactly.
type Query struct {
	HasPrefix bool

	Record    string
	RecordRaw string

	Selector Selector

	Parameter    string
	ParameterRaw string

	// Index1 selects one element of the field's value list; -1 selects
	// all elements (written "[]"); absent (HasIndex1 false) defaults to
	// the first element.
	HasIndex1 bool
	Index1    int
	Index1Raw string

	// Index2 names a property to project out of a structured element.
	HasIndex2 bool
	Index2    string
	Index2Raw string
}

// AllValues reports whether the query addresses every element of the
// field's value list.
func (q *Query) AllValues() bool {
	return q.HasIndex1 && q.Index1 < 0
}

// Format renders the canonical text form. Parsing the result yields an
// identical Query; parsing followed by Format round-trips byte for byte
// (the canonical form of base64url input is its decoded text).
func (q *Query) Format() string {
	var b strings.Builder
	if q.HasPrefix {
		b.WriteString(Prefix)
	}
	b.WriteString(rawOrEscaped(q.RecordRaw, q.Record))
	b.WriteByte('/')
	b.WriteString(string(q.Selector))
	if q.Selector.wantsParameter() {
		b.WriteByte('/')
		b.WriteString(rawOrEscaped(q.ParameterRaw, q.Parameter))
	}
	if q.HasIndex1 {
		b.WriteByte('[')
		b.WriteString(q.Index1Raw)
		b.WriteByte(']')
	}
	if q.HasIndex2 {
		b.WriteByte('[')
		b.WriteString(rawOrEscaped(q.Index2Raw, q.Index2))
		b.WriteByte(']')
	}
	return b.String()
}

func rawOrEscaped(raw, text string) string {
	if raw != "" {
		return raw
	}
	return Escape(text)
}

// Escape renders text so it survives inside a notation section.
func Escape(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch r {
		case '/', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// maybeDecodeBase64 undoes the base64url form. A query always contains a
// '/', so input without one is either encoded or malformed.
func maybeDecodeBase64(text string) string {
	if strings.Contains(text, "/") {
		return text
	}
	decoded, err := crypto.DecodeBase64(text)
	if err != nil {
		return text
	}
	if !utf8.Valid(decoded) || !strings.Contains(string(decoded), "/") {
		return text
	}
	return string(decoded)
}
