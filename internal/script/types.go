package script

import "github.com/dshills/isocore/internal/payload"

// Function is an opaque handle to a script-defined function.
type Function interface {
	// Name describes the function for logs.
	Name() string
}

// Caller is the scripting collaborator's call-into-script primitive.
type Caller interface {
	// Call invokes fn with one argument. Script errors are returned, never
	// raised as panics.
	Call(fn Function, arg payload.Payload) error
}

// CallerFunc adapts a function to Caller.
type CallerFunc func(fn Function, arg payload.Payload) error

// Call implements Caller.
func (f CallerFunc) Call(fn Function, arg payload.Payload) error {
	return f(fn, arg)
}
