package transport

import "fmt"

// NetworkError reports a failed exchange with the service: a non-200 status
// or an inability to reach the host at all. Error paths are plaintext on the
// wire, so Body carries the server-provided text verbatim when present.
type NetworkError struct {
	Status int
	Body   string
	Err    error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Err != nil:
		return "transport: " + e.Err.Error()
	case e.Body != "":
		return fmt.Sprintf("transport: status %d: %s", e.Status, e.Body)
	default:
		return fmt.Sprintf("transport: status %d", e.Status)
	}
}

func (e *NetworkError) Unwrap() error { return e.Err }
