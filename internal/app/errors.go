// Package app provides the main application structure and coordination.
package app

import (
	"errors"
	"fmt"
)

// Application errors.
var (
	// ErrAlreadyRunning indicates the application is already running.
	ErrAlreadyRunning = errors.New("application already running")

	// ErrClosed indicates the application has been shut down.
	ErrClosed = errors.New("application closed")
)

// InitError reports a component that failed to start.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return "init " + e.Component + ": " + e.Err.Error()
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// SpawnError reports an entity from the configuration that could not be
// spawned.
type SpawnError struct {
	Archetype string
	Index     int
	Err       error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s #%d: %v", e.Archetype, e.Index, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}
