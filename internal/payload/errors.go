package payload

import "errors"

// ErrTypeMismatch is returned when a value is accessed or provided as a type
// other than the one it was constructed with.
var ErrTypeMismatch = errors.New("payload type mismatch")

// MismatchError describes a failed checked access.
type MismatchError struct {
	// Want is the type the caller asked for.
	Want Tag

	// Got is the type the payload actually carries.
	Got Tag
}

// Error implements the error interface.
func (e *MismatchError) Error() string {
	return "payload type mismatch: want " + e.Want.String() + ", got " + e.Got.String()
}

// Is allows errors.Is to match MismatchError with ErrTypeMismatch.
func (e *MismatchError) Is(target error) bool {
	return target == ErrTypeMismatch
}
