package messenger

import "errors"

// Sentinel errors for the messenger.
var (
	// ErrRequestNotFound is returned when no provider is registered for a request.
	ErrRequestNotFound = errors.New("request not found")
)

// RequestError reports a request with no provider.
type RequestError struct {
	// Owner labels the messenger the request was made on.
	Owner string

	// Name is the request name.
	Name Topic
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return "request " + string(e.Name) + " not found on " + e.Owner
}

// Is allows errors.Is to match RequestError with ErrRequestNotFound.
func (e *RequestError) Is(target error) bool {
	return target == ErrRequestNotFound
}
