package lua

import "errors"

// Errors for Lua state and behavior operations.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrCallTimeout is returned when a script call runs past its deadline.
	ErrCallTimeout = errors.New("lua call timeout")

	// ErrNotBehavior is returned when a behavior script does not return a table.
	ErrNotBehavior = errors.New("script did not return a behavior table")

	// ErrNotFunction is returned when a script.Function handle is not a Lua function.
	ErrNotFunction = errors.New("not a lua function")
)
