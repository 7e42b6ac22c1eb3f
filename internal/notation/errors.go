package notation

import "fmt"

// Error reports a malformed query or a query that does not resolve against
// the decoded tree. It always carries the offending notation text and, once
// a record has been located, that record's uid.
type Error struct {
	Notation  string
	RecordUID string
	Msg       string
}

func (e *Error) Error() string {
	if e.RecordUID != "" {
		return fmt.Sprintf("notation %q: record %s: %s", e.Notation, e.RecordUID, e.Msg)
	}
	return fmt.Sprintf("notation %q: %s", e.Notation, e.Msg)
}

func errf(notation, recordUID, format string, args ...any) *Error {
	return &Error{Notation: notation, RecordUID: recordUID, Msg: fmt.Sprintf(format, args...)}
}
