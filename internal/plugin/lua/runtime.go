package lua

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/dshills/isocore/internal/component"
	"github.com/dshills/isocore/internal/payload"
	"github.com/dshills/isocore/internal/script"
)

// listenerTypeName is the metatable name of listener userdata.
const listenerTypeName = "isocore.listener"

// Function is a Lua function handed to the script bridge.
type Function struct {
	fn   *lua.LFunction
	self lua.LValue
	name string
}

// Name implements script.Function.
func (f *Function) Name() string {
	return f.name
}

// RuntimeStats contains runtime counters.
type RuntimeStats struct {
	Calls     uint64
	Failures  uint64
	Behaviors int
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithScriptDir sets the directory script paths are resolved against and
// where default scripts are looked up.
func WithScriptDir(dir string) Option {
	return func(r *Runtime) {
		r.dir = dir
	}
}

// WithCache shares a chunk cache, typically with a Watcher.
func WithCache(c *ChunkCache) Option {
	return func(r *Runtime) {
		if c != nil {
			r.cache = c
		}
	}
}

// WithCallTimeout sets the per-call deadline.
func WithCallTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		r.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runtime) {
		if l != nil {
			r.log = l
		}
	}
}

// Runtime is the scripting collaborator: it loads behavior scripts for
// components and calls script functions for the event bridge.
type Runtime struct {
	state  *State
	bridge *Bridge
	cache  *ChunkCache

	dir     string
	timeout time.Duration

	listenerMeta *lua.LTable
	behaviors    map[*behavior]struct{}

	calls    uint64
	failures uint64

	log *zap.Logger
}

// NewRuntime creates a runtime with its own Lua state.
func NewRuntime(opts ...Option) *Runtime {
	r := &Runtime{
		timeout:   DefaultCallTimeout,
		behaviors: make(map[*behavior]struct{}),
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil {
		r.cache = NewChunkCache()
	}
	r.log = r.log.Named("lua")

	r.state = NewState(WithStateTimeout(r.timeout), WithStateLogger(r.log))
	r.bridge = NewBridge(r.state.L)
	r.listenerMeta = r.newListenerMeta()
	return r
}

var (
	_ script.Caller          = (*Runtime)(nil)
	_ component.ScriptLoader = (*Runtime)(nil)
)

// State returns the Lua state.
func (r *Runtime) State() *State {
	return r.state
}

// Cache returns the chunk cache.
func (r *Runtime) Cache() *ChunkCache {
	return r.cache
}

// Stats returns runtime counters.
func (r *Runtime) Stats() RuntimeStats {
	return RuntimeStats{
		Calls:     r.calls,
		Failures:  r.failures,
		Behaviors: len(r.behaviors),
	}
}

// Call implements script.Caller. fn must come from this runtime.
func (r *Runtime) Call(fn script.Function, arg payload.Payload) error {
	f, ok := fn.(*Function)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFunction, fn.Name())
	}

	args := make([]lua.LValue, 0, 2)
	if f.self != nil {
		args = append(args, f.self)
	}
	args = append(args, r.bridge.PayloadToLua(arg))

	r.calls++
	if _, err := r.state.Call(f.fn, args...); err != nil {
		r.failures++
		return fmt.Errorf("calling %s: %w", f.name, err)
	}
	return nil
}

// LoadBehavior implements component.ScriptLoader. An empty path looks for
// <dir>/<type>.lua with the type name lowercased.
func (r *Runtime) LoadBehavior(c *component.Component, path string) (component.Behavior, error) {
	resolved, err := r.resolve(c.Type(), path)
	if err != nil {
		return nil, err
	}

	proto, err := r.cache.Get(resolved)
	if err != nil {
		return nil, err
	}
	chunk, err := r.state.Load(proto)
	if err != nil {
		return nil, err
	}

	r.calls++
	results, err := r.state.Call(chunk)
	if err != nil {
		r.failures++
		return nil, fmt.Errorf("running %s: %w", resolved, err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%s: %w", resolved, ErrNotBehavior)
	}
	module, ok := results[0].(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("%s: %w (got %s)", resolved, ErrNotBehavior, results[0].Type())
	}

	b := newBehavior(r, c, module, resolved)
	b.bind()
	r.behaviors[b] = struct{}{}
	r.log.Debug("behavior loaded",
		zap.String("type", c.Type()),
		zap.String("owner", c.Owner().ID()),
		zap.String("script", resolved),
	)
	return b, nil
}

// resolve maps a component's script path to a file.
func (r *Runtime) resolve(typeName, path string) (string, error) {
	if path == "" {
		if r.dir == "" {
			return "", fmt.Errorf("%s: %w", typeName, component.ErrNoBehavior)
		}
		candidate := filepath.Join(r.dir, strings.ToLower(typeName)+".lua")
		if _, err := os.Stat(candidate); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", fmt.Errorf("%s: %w", typeName, component.ErrNoBehavior)
			}
			return "", err
		}
		return candidate, nil
	}

	if !filepath.IsAbs(path) && r.dir != "" {
		path = filepath.Join(r.dir, path)
	}
	return path, nil
}

// forget drops b from the live set.
func (r *Runtime) forget(b *behavior) {
	delete(r.behaviors, b)
}

// newListenerMeta builds the metatable for listener handles.
func (r *Runtime) newListenerMeta() *lua.LTable {
	L := r.state.L
	mt := L.NewTypeMetatable(listenerTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"disconnect": func(L *lua.LState) int {
			checkListener(L).Disconnect()
			return 0
		},
		"connected": func(L *lua.LState) int {
			L.Push(lua.LBool(checkListener(L).Connected()))
			return 1
		},
	}))
	return mt
}

// checkListener returns the listener in argument 1.
func checkListener(L *lua.LState) *script.Listener {
	ud := L.CheckUserData(1)
	l, ok := ud.Value.(*script.Listener)
	if !ok {
		L.ArgError(1, "listener expected")
		return nil
	}
	return l
}

// Close releases the Lua state. Behaviors still bound stop receiving calls.
func (r *Runtime) Close() {
	if n := len(r.behaviors); n > 0 {
		r.log.Warn("closing runtime with live behaviors", zap.Int("behaviors", n))
	}
	r.state.Close()
}
