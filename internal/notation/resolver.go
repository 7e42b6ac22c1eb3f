package notation

import (
	"encoding/json"

	"github.com/Keeper-Security/secrets-manager-sub005/internal/vault"
)

// Result is a resolved query. Exactly one of Value or File is meaningful:
// the file selector yields a File reference for the caller to download,
// every other selector yields text.
type Result struct {
	Record *vault.Record
	File   *vault.File
	Value  string
}

// Resolve looks a parsed query up in an already-decoded tree. Resolution
// never touches the network; file content stays lazy.
func Resolve(tree *vault.Tree, q *Query) (*Result, error) {
	notation := q.Format()

	rec, err := findRecord(tree, q, notation)
	if err != nil {
		return nil, err
	}
	res := &Result{Record: rec}

	switch q.Selector {
	case SelectorType:
		res.Value = rec.Type
		return res, nil
	case SelectorTitle:
		res.Value = rec.Title
		return res, nil
	case SelectorNotes:
		res.Value = rec.Notes
		return res, nil
	case SelectorFile:
		f := rec.FileByName(q.Parameter)
		if f == nil {
			return nil, errf(notation, rec.UID, "no file %q", q.Parameter)
		}
		res.File = f
		return res, nil
	}

	var field *vault.Field
	if q.Selector == SelectorField {
		field = rec.FieldByTypeOrLabel(q.Parameter)
	} else {
		field = rec.CustomFieldByLabel(q.Parameter)
	}
	if field == nil {
		return nil, errf(notation, rec.UID, "no %s %q", q.Selector, q.Parameter)
	}

	res.Value, err = project(field, q, rec.UID, notation)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// findRecord locates the record by uid first, then by unique title.
func findRecord(tree *vault.Tree, q *Query, notation string) (*vault.Record, error) {
	if rec := tree.RecordByUID(q.Record); rec != nil {
		return checkRecord(rec, notation)
	}
	matches := tree.RecordsByTitle(q.Record)
	switch len(matches) {
	case 0:
		return nil, errf(notation, "", "no record matches %q", q.Record)
	case 1:
		return checkRecord(matches[0], notation)
	default:
		return nil, errf(notation, "", "title %q matches %d records", q.Record, len(matches))
	}
}

func checkRecord(rec *vault.Record, notation string) (*vault.Record, error) {
	if rec.DecodeError != nil {
		return nil, errf(notation, rec.UID, "record failed to decode: %v", rec.DecodeError)
	}
	return rec, nil
}

// project applies index1/index2 to the field's value list.
func project(f *vault.Field, q *Query, uid, notation string) (string, error) {
	if len(f.Value) == 0 {
		return "", errf(notation, uid, "%s %q has no values", q.Selector, q.Parameter)
	}

	if q.AllValues() {
		if !q.HasIndex2 {
			b, err := json.Marshal(f.Value)
			if err != nil {
				return "", errf(notation, uid, "serialize values: %v", err)
			}
			return string(b), nil
		}
		if len(f.Value) == 1 {
			v, err := f.Property(0, q.Index2)
			if err != nil {
				return "", errf(notation, uid, "%v", err)
			}
			return v, nil
		}
		out := make([]string, 0, len(f.Value))
		for i := range f.Value {
			v, err := f.Property(i, q.Index2)
			if err != nil {
				return "", errf(notation, uid, "%v", err)
			}
			out = append(out, v)
		}
		b, err := json.Marshal(out)
		if err != nil {
			return "", errf(notation, uid, "serialize values: %v", err)
		}
		return string(b), nil
	}

	idx := 0
	if q.HasIndex1 {
		idx = q.Index1
	}
	if idx >= len(f.Value) {
		return "", errf(notation, uid, "index [%d] out of range for %d value(s)", idx, len(f.Value))
	}
	if q.HasIndex2 {
		v, err := f.Property(idx, q.Index2)
		if err != nil {
			return "", errf(notation, uid, "%v", err)
		}
		return v, nil
	}
	v, err := f.StringValue(idx)
	if err != nil {
		return "", errf(notation, uid, "%v", err)
	}
	return v, nil
}
