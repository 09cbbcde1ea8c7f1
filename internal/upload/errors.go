package upload

import "fmt"

// APIError describes an upload request failure. Status 0 is the network
// sentinel: no response was received at all, as opposed to a server-side
// rejection that carries an HTTP status and detail string.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("network error: %s", e.Detail)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Detail)
}

// IsNetwork reports whether no response was received.
func (e *APIError) IsNetwork() bool {
	return e.Status == 0
}

func networkError(err error) *APIError {
	return &APIError{Status: 0, Detail: err.Error()}
}
