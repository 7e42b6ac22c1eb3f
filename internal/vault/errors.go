package vault

// BindError reports a failure of the bind step itself: the one-time
// binding secret could not unlock the application key, or the new identity
// could not be persisted. The caller's identity has been reset; retrying
// requires a fresh binding secret.
type BindError struct {
	Err error
}

func (e *BindError) Error() string {
	if e.Err == nil {
		return "vault: bind failed"
	}
	return "vault: bind failed: " + e.Err.Error()
}

func (e *BindError) Unwrap() error { return e.Err }
