// Package vault decodes the encrypted response tree into folders, records,
// files and plaintext field data, driving the key-unwrap cascade
// application key -> folder key -> record key -> file key.
package vault

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Field is one field of a record payload: a kind tag, an optional label
// and an ordered list of values. Every field kind the service knows is a
// variant of this one shape; accessors project by index or property.
type Field struct {
	Type  string `json:"type"`
	Label string `json:"label,omitempty"`
	Value []any  `json:"value"`
}

// StringValue returns value i rendered as text. Structured values are
// serialized to compact JSON.
func (f *Field) StringValue(i int) (string, error) {
	if i < 0 || i >= len(f.Value) {
		return "", fmt.Errorf("value index %d out of range (have %d)", i, len(f.Value))
	}
	return renderValue(f.Value[i])
}

// Property projects a named property out of structured value i.
func (f *Field) Property(i int, name string) (string, error) {
	if i < 0 || i >= len(f.Value) {
		return "", fmt.Errorf("value index %d out of range (have %d)", i, len(f.Value))
	}
	obj, ok := f.Value[i].(map[string]any)
	if !ok {
		return "", fmt.Errorf("value %d is not a structured object", i)
	}
	v, ok := obj[name]
	if !ok {
		return "", fmt.Errorf("no property %q in value %d", name, i)
	}
	return renderValue(v)
}

func renderValue(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		b, _ := json.Marshal(t)
		return string(b), nil
	case bool:
		if t {
			return "true", nil
		}
		return "false", nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

// recordData is the decrypted record payload.
type recordData struct {
	Title  string   `json:"title"`
	Type   string   `json:"type"`
	Notes  string   `json:"notes,omitempty"`
	Fields []*Field `json:"fields"`
	Custom []*Field `json:"custom,omitempty"`
}

// Record is one decoded vault record. Key holds the unwrapped record key
// for the lifetime of the tree; it decrypts the record's files and seals
// updates. DecodeError marks a record whose payload could not be opened;
// such a record still appears in the tree so siblings are unaffected.
type Record struct {
	UID       string
	Key       []byte
	Revision  int64
	FolderUID string

	Title  string
	Type   string
	Notes  string
	Fields []*Field
	Custom []*Field
	Files  []*File

	DecodeError error
}

// File is a file attached to a record. Metadata is decrypted during tree
// decode; content bytes are fetched and decrypted lazily.
type File struct {
	UID          string
	Key          []byte
	Name         string
	Title        string
	MimeType     string
	Size         int64
	URL          string
	ThumbnailURL string

	DecodeError error
}

// Folder is a decoded shared folder and the records it owns.
type Folder struct {
	UID     string
	Key     []byte
	Records []*Record

	DecodeError error
}

// Tree is the fully decoded result of one fetch. Records contains every
// record, including those inside folders.
type Tree struct {
	Records []*Record
	Folders []*Folder
}

// RecordByUID finds a record by its uid, or nil.
func (t *Tree) RecordByUID(uid string) *Record {
	for _, r := range t.Records {
		if r.UID == uid {
			return r
		}
	}
	return nil
}

// RecordsByTitle returns every record whose title matches exactly.
func (t *Tree) RecordsByTitle(title string) []*Record {
	var out []*Record
	for _, r := range t.Records {
		if r.Title == title {
			out = append(out, r)
		}
	}
	return out
}

// FieldByType returns the first field whose type matches, searching
// standard fields. Matching is case-insensitive.
func (r *Record) FieldByType(fieldType string) *Field {
	for _, f := range r.Fields {
		if strings.EqualFold(f.Type, fieldType) {
			return f
		}
	}
	return nil
}

// FieldByTypeOrLabel returns the first standard field matching by type or
// by label, in that order of preference.
func (r *Record) FieldByTypeOrLabel(name string) *Field {
	if f := r.FieldByType(name); f != nil {
		return f
	}
	for _, f := range r.Fields {
		if strings.EqualFold(f.Label, name) {
			return f
		}
	}
	return nil
}

// CustomFieldByLabel returns the first custom field matching by label or,
// failing that, by type.
func (r *Record) CustomFieldByLabel(name string) *Field {
	for _, f := range r.Custom {
		if strings.EqualFold(f.Label, name) {
			return f
		}
	}
	for _, f := range r.Custom {
		if strings.EqualFold(f.Type, name) {
			return f
		}
	}
	return nil
}

// FileByName returns the attached file matching by filename or display
// title.
func (r *Record) FileByName(name string) *File {
	for _, f := range r.Files {
		if f.Name == name {
			return f
		}
	}
	for _, f := range r.Files {
		if f.Title == name {
			return f
		}
	}
	return nil
}
