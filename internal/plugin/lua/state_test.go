package lua

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	glua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestStateDoString(t *testing.T) {
	s := NewState()
	defer s.Close()

	require.NoError(t, s.DoString(`x = 1 + 1`))
	assert.Equal(t, glua.LNumber(2), s.L.GetGlobal("x"))

	err := s.DoString(`error("boom")`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	assert.Error(t, s.DoString(`this is not lua`))
}

func TestStateCallReturnsResults(t *testing.T) {
	s := NewState()
	defer s.Close()

	require.NoError(t, s.DoString(`function pair(a) return a, a * 2 end`))
	fn := s.L.GetGlobal("pair").(*glua.LFunction)

	results, err := s.Call(fn, glua.LNumber(21))
	require.NoError(t, err)
	assert.Equal(t, []glua.LValue{glua.LNumber(21), glua.LNumber(42)}, results)
	assert.Equal(t, 0, s.L.GetTop())
	assert.Equal(t, 0, s.Depth())
}

func TestStateCallRecoversGoPanic(t *testing.T) {
	s := NewState()
	defer s.Close()

	s.L.SetGlobal("explode", s.L.NewFunction(func(*glua.LState) int {
		panic("kaboom")
	}))
	fn := s.L.GetGlobal("explode").(*glua.LFunction)

	_, err := s.Call(fn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
	assert.Equal(t, 0, s.L.GetTop())
}

func TestStateCallTimeout(t *testing.T) {
	s := NewState(WithStateTimeout(20 * time.Millisecond))
	defer s.Close()

	start := time.Now()
	err := s.DoString(`while true do end`)
	require.ErrorIs(t, err, ErrCallTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)

	// The state stays usable.
	require.NoError(t, s.DoString(`y = 3`))
}

func TestStateClosed(t *testing.T) {
	s := NewState()
	s.Close()
	s.Close()

	assert.True(t, s.IsClosed())
	assert.ErrorIs(t, s.DoString(`x = 1`), ErrStateClosed)
	_, err := s.Call(nil)
	assert.ErrorIs(t, err, ErrStateClosed)
}

func TestSandbox(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewState(WithStateLogger(zap.New(core)))
	defer s.Close()

	tests := []struct {
		name    string
		code    string
		wantErr string
	}{
		{name: "dofile removed", code: `dofile("x.lua")`, wantErr: "attempt to call"},
		{name: "load removed", code: `load("return 1")`, wantErr: "attempt to call"},
		{name: "io closed", code: `io.write("x")`, wantErr: "attempt to index"},
		{name: "os closed", code: `os.exit(1)`, wantErr: "attempt to index"},
		{name: "require os", code: `require("os")`, wantErr: `module "os" is not available`},
		{name: "require string", code: `local s = require("string"); assert(s.upper("a") == "A")`},
		{name: "math open", code: `assert(math.floor(1.5) == 1)`},
		{name: "table open", code: `local t = {}; table.insert(t, 1); assert(#t == 1)`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.DoString(tt.code)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	require.NoError(t, s.DoString(`print("hello", 42)`))
	assert.Equal(t, 1, s.Sandbox().Prints())
	assert.Equal(t, 1, logs.FilterMessage("hello\t42").Len())
}
