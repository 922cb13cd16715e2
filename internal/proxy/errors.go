package proxy

import (
	"errors"
	"fmt"
)

// BackendUnavailableError reports that the backend MCP endpoint could not be
// reached at the connection level. Responses the backend did send, including
// error statuses, are relayed instead of producing this error.
type BackendUnavailableError struct {
	Endpoint string
	Attempts int
	Err      error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("backend %s unreachable after %d attempt(s): %v", e.Endpoint, e.Attempts, e.Err)
}

func (e *BackendUnavailableError) Unwrap() error {
	return e.Err
}

// IsBackendUnavailable reports whether err is a BackendUnavailableError.
func IsBackendUnavailable(err error) bool {
	var unavailableErr *BackendUnavailableError
	return errors.As(err, &unavailableErr)
}
