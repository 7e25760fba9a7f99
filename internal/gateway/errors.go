package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSessionEnded is returned once a 401 has cleared the session and the
	// login redirect has been issued. Callers normally just stop.
	ErrSessionEnded = errors.New("session ended by data service")

	// ErrForbidden matches a RequestFailedError carrying a 403.
	ErrForbidden = errors.New("forbidden")
)

// RequestFailedError reports a non-success response other than 401.
type RequestFailedError struct {
	Status  int
	Message string
}

func (e *RequestFailedError) Error() string {
	return fmt.Sprintf("request failed (%d): %s", e.Status, e.Message)
}

// Is lets errors.Is(err, ErrForbidden) match 403 responses.
func (e *RequestFailedError) Is(target error) bool {
	return target == ErrForbidden && e.Status == http.StatusForbidden
}
