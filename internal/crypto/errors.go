package crypto

// Error wraps every failure produced by this package so callers can
// distinguish cryptographic faults from network or configuration problems
// with a single errors.As check.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "crypto: " + e.Op
	}
	return "crypto: " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func opErr(op string, err error) error {
	return &Error{Op: op, Err: err}
}
