package lua

import (
	"strings"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// removedGlobals load code from outside the chunk cache.
var removedGlobals = []string{"dofile", "loadfile", "load", "loadstring"}

// allowedModules may be passed to require.
var allowedModules = map[string]bool{
	"string": true,
	"table":  true,
	"math":   true,
}

// Sandbox restricts what behavior scripts can reach.
type Sandbox struct {
	L   *lua.LState
	log *zap.Logger

	prints int
}

// NewSandbox creates a sandbox for L. Script print output goes to log.
func NewSandbox(L *lua.LState, log *zap.Logger) *Sandbox {
	return &Sandbox{L: L, log: log.Named("lua")}
}

// Install applies the restrictions to the global environment.
func (s *Sandbox) Install() {
	for _, name := range removedGlobals {
		s.L.SetGlobal(name, lua.LNil)
	}
	s.installPrint()
	s.installRequire()
}

// installPrint routes print to the logger.
func (s *Sandbox) installPrint() {
	s.L.SetGlobal("print", s.L.NewFunction(func(L *lua.LState) int {
		parts := make([]string, L.GetTop())
		for i := range parts {
			parts[i] = L.ToStringMeta(L.Get(i + 1)).String()
		}
		s.prints++
		s.log.Info(strings.Join(parts, "\t"))
		return 0
	}))
}

// installRequire clears the module search paths and only lets allowed
// modules through.
func (s *Sandbox) installRequire() {
	if pkg, ok := s.L.GetGlobal("package").(*lua.LTable); ok {
		s.L.SetField(pkg, "path", lua.LString(""))
		s.L.SetField(pkg, "cpath", lua.LString(""))
	}

	original := s.L.GetGlobal("require")
	s.L.SetGlobal("require", s.L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		if !allowedModules[name] {
			L.RaiseError("module %q is not available", name)
			return 0
		}
		L.Push(original)
		L.Push(lua.LString(name))
		L.Call(1, 1)
		return 1
	}))
}

// Prints returns how many times scripts called print.
func (s *Sandbox) Prints() int {
	return s.prints
}
