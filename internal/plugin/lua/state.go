package lua

import (
	"context"
	"errors"
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// DefaultCallTimeout bounds one top-level script call.
const DefaultCallTimeout = 100 * time.Millisecond

// State wraps a sandboxed gopher-lua state.
//
// gopher-lua's LState is not goroutine-safe. A State belongs to the goroutine
// that runs the frame loop; nested calls from Go functions invoked by Lua are
// allowed.
type State struct {
	L *lua.LState

	callTimeout time.Duration
	sandbox     *Sandbox
	log         *zap.Logger

	depth  int
	closed bool
}

// StateOption configures a State.
type StateOption func(*State)

// WithStateTimeout sets the deadline for each top-level call. Zero disables it.
func WithStateTimeout(d time.Duration) StateOption {
	return func(s *State) {
		s.callTimeout = d
	}
}

// WithStateLogger sets the logger that receives script print output.
func WithStateLogger(l *zap.Logger) StateOption {
	return func(s *State) {
		if l != nil {
			s.log = l
		}
	}
}

// NewState creates a sandboxed Lua state.
func NewState(opts ...StateOption) *State {
	s := &State{
		callTimeout: DefaultCallTimeout,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.L = lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})
	openSafeLibraries(s.L)

	s.sandbox = NewSandbox(s.L, s.log)
	s.sandbox.Install()
	return s
}

// openSafeLibraries opens the libraries scripts may use. io, os, debug and
// package stay closed.
func openSafeLibraries(L *lua.LState) {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
}

// DoString executes a chunk of Lua source.
func (s *State) DoString(code string) error {
	if s.closed {
		return ErrStateClosed
	}
	fn, err := s.L.LoadString(code)
	if err != nil {
		return err
	}
	_, err = s.Call(fn)
	return err
}

// Load instantiates a compiled chunk as a callable function.
func (s *State) Load(proto *lua.FunctionProto) (*lua.LFunction, error) {
	if s.closed {
		return nil, ErrStateClosed
	}
	return s.L.NewFunctionFromProto(proto), nil
}

// Call calls fn with args and returns its results. Lua errors and Go panics
// raised inside the call are returned as errors.
func (s *State) Call(fn *lua.LFunction, args ...lua.LValue) (results []lua.LValue, err error) {
	if s.closed {
		return nil, ErrStateClosed
	}

	if s.depth == 0 && s.callTimeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), s.callTimeout)
		s.L.SetContext(ctx)
		defer func() {
			s.L.RemoveContext()
			cancel()
			if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				err = fmt.Errorf("%w after %s: %v", ErrCallTimeout, s.callTimeout, err)
			}
		}()
	}
	s.depth++
	defer func() { s.depth-- }()

	top := s.L.GetTop()
	s.L.Push(fn)
	for _, arg := range args {
		s.L.Push(arg)
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("lua panic: %v", r)
			}
		}()
		err = s.L.PCall(len(args), lua.MultRet, nil)
	}()
	if err != nil {
		s.L.SetTop(top)
		return nil, err
	}

	n := s.L.GetTop() - top
	results = make([]lua.LValue, n)
	for i := range n {
		results[i] = s.L.Get(top + i + 1)
	}
	s.L.Pop(n)
	return results, nil
}

// Depth returns how many calls are currently on the Go stack.
func (s *State) Depth() int {
	return s.depth
}

// LuaState returns the underlying gopher-lua state.
func (s *State) LuaState() *lua.LState {
	return s.L
}

// Sandbox returns the sandbox.
func (s *State) Sandbox() *Sandbox {
	return s.sandbox
}

// IsClosed reports whether Close has been called.
func (s *State) IsClosed() bool {
	return s.closed
}

// Close releases the Lua state. Later calls return ErrStateClosed.
func (s *State) Close() {
	if s.closed {
		return
	}
	s.L.Close()
	s.closed = true
}
