package adminapi

import "fmt"

// Error represents an error response from the admin API: the HTTP status
// plus the server's error code/message.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("adminapi: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsUnauthorized returns true if the error is a 401.
func IsUnauthorized(err error) bool {
	e, ok := err.(*Error)
	return ok && e.StatusCode == 401
}

// IsValidation returns true if the error is a 422, the status the admin
// API uses for a malformed set_crossmatch_results payload.
func IsValidation(err error) bool {
	e, ok := err.(*Error)
	return ok && e.StatusCode == 422
}
