package lua

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dshills/isocore/internal/component"
	"github.com/dshills/isocore/internal/entity"
	"github.com/dshills/isocore/internal/messenger"
	"github.com/dshills/isocore/internal/payload"
)

const healthScript = `
local health = {}

function health.on_init(self)
	self.hp = self.properties.max or 10
	self.ticks = 0
	self:setup_request("HP", function(self) return self.hp end)
	self:subscribe("Damage", function(self, amount)
		self.hp = self.hp - amount
	end)
end

function health.on_pre_update(self, dt)
	self.ticks = self.ticks + 1
end

function health.on_update(self, dt)
	self:post("Ticked", dt)
end

function health.on_destroy(self)
	self:post("Destroyed", self.hp)
end

return health
`

const buttonScript = `
local button = {}

function button.on_init(self)
	self.clicks = 0
	self.listener = self:listen("Click", function(self, batch)
		for _, click in ipairs(batch) do
			self.clicks = self.clicks + click.x
		end
		self:post("Clicked", self.clicks)
	end)
	self:setup_request("Connected", function(self)
		return self.listener:connected()
	end)
	self:subscribe("Stop", function(self)
		self.listener:disconnect()
	end)
end

return button
`

type click struct {
	X int
}

// writeScripts writes name -> source into a fresh directory.
func writeScripts(t *testing.T, scripts map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range scripts {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
	}
	return dir
}

// newTestScene wires a runtime into a scene the way the application does.
func newTestScene(t *testing.T, dir string, log *zap.Logger) (*Runtime, *entity.Scene) {
	t.Helper()
	rt := NewRuntime(WithScriptDir(dir), WithLogger(log))
	s := entity.NewScene(entity.WithLoader(rt), entity.WithCaller(rt), entity.WithLogger(log))
	t.Cleanup(func() {
		s.Close()
		rt.Close()
	})
	return rt, s
}

func TestBehaviorLifecycle(t *testing.T) {
	dir := writeScripts(t, map[string]string{"health.lua": healthScript})
	rt, s := newTestScene(t, dir, zap.NewNop())
	s.Scope().MustCreateRegistry("Health")

	e := s.Spawn("orc")
	bus := e.Messenger()

	var ticked []float64
	bus.Subscribe(nil, "Ticked", func(p payload.Payload) {
		ticked = append(ticked, payload.MustAs[float64](p))
	})

	c, err := e.AddComponent("Health", entity.ComponentSpec{
		Script:     "health.lua",
		Properties: map[string]any{"max": 50},
	})
	require.NoError(t, err)
	require.True(t, c.HasBehavior())
	assert.Equal(t, 1, rt.Stats().Behaviors)

	hp, err := messenger.Request[float64](bus, "HP")
	require.NoError(t, err)
	assert.Equal(t, 50.0, hp)

	messenger.Emit(bus, "Damage", 5.0)
	hp, err = messenger.Request[float64](bus, "HP")
	require.NoError(t, err)
	assert.Equal(t, 45.0, hp)

	s.Tick(16 * time.Millisecond)
	assert.Equal(t, []float64{0.016}, ticked)

	var destroyed []float64
	bus.Subscribe(nil, "Destroyed", func(p payload.Payload) {
		destroyed = append(destroyed, payload.MustAs[float64](p))
	})

	c.Destroy()
	assert.Equal(t, []float64{45}, destroyed)
	assert.False(t, bus.HasRequest("HP"))
	assert.Equal(t, 0, bus.SubscriberCount("Damage"))
	assert.Equal(t, 0, bus.SubscriberCount("HealthUpdate"))
	assert.Equal(t, 0, rt.Stats().Behaviors)

	s.Tick(16 * time.Millisecond)
	assert.Len(t, ticked, 1)
}

func TestBehaviorListen(t *testing.T) {
	dir := writeScripts(t, map[string]string{"button.lua": buttonScript})
	_, s := newTestScene(t, dir, zap.NewNop())
	s.Scope().MustCreateRegistry("Button")

	e := s.Spawn("ok")
	bus := e.Messenger()
	ev, err := e.DeclareEvent("Click", payload.TagOf[click]())
	require.NoError(t, err)

	c, err := e.AddComponent("Button")
	require.NoError(t, err)
	require.True(t, c.HasBehavior())
	assert.Equal(t, 1, ev.ListenerCount())

	var clicked []float64
	bus.Subscribe(nil, "Clicked", func(p payload.Payload) {
		clicked = append(clicked, payload.MustAs[float64](p))
	})

	messenger.Emit(bus, "Click", click{X: 2})
	messenger.Emit(bus, "Click", click{X: 3})
	assert.Empty(t, clicked, "listeners run on flush, not on post")

	s.Tick(time.Millisecond)
	assert.Equal(t, []float64{5}, clicked)
	assert.Equal(t, 0, ev.Pending())

	connected, err := messenger.Request[bool](bus, "Connected")
	require.NoError(t, err)
	assert.True(t, connected)

	messenger.Emit(bus, "Stop", true)
	connected, err = messenger.Request[bool](bus, "Connected")
	require.NoError(t, err)
	assert.False(t, connected)

	messenger.Emit(bus, "Click", click{X: 1})
	s.Tick(time.Millisecond)
	assert.Equal(t, []float64{5}, clicked)
}

func TestListenUndeclaredEvent(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	dir := writeScripts(t, map[string]string{"button.lua": buttonScript})
	_, s := newTestScene(t, dir, zap.New(core))
	s.Scope().MustCreateRegistry("Button")

	c, err := s.Spawn("bare").AddComponent("Button")
	require.NoError(t, err)

	// on_init fails, so nothing was bound after the error.
	assert.True(t, c.HasBehavior())
	entries := logs.FilterMessage("script error").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["error"], `event "Click" is not declared`)
}

func TestDefaultScriptLookup(t *testing.T) {
	dir := writeScripts(t, map[string]string{
		"transform.lua": `return { on_init = function(self) self:post("Ready", self.type) end }`,
	})
	_, s := newTestScene(t, dir, zap.NewNop())
	s.Scope().MustCreateRegistry("Transform")
	s.Scope().MustCreateRegistry("Tag")

	e := s.Spawn("crate")
	var ready []string
	e.Messenger().Subscribe(nil, "Ready", func(p payload.Payload) {
		ready = append(ready, payload.MustAs[string](p))
	})

	transform, err := e.AddComponent("Transform")
	require.NoError(t, err)
	assert.True(t, transform.HasBehavior())
	assert.Equal(t, []string{"Transform"}, ready)

	tag, err := e.AddComponent("Tag")
	require.NoError(t, err)
	assert.False(t, tag.HasBehavior())
}

func TestBadScriptsAreNotFatal(t *testing.T) {
	dir := writeScripts(t, map[string]string{
		"number.lua": `return 42`,
		"syntax.lua": `return {`,
		"raises.lua": `error("nope")`,
	})
	core, logs := observer.New(zap.ErrorLevel)
	_, s := newTestScene(t, dir, zap.New(core))
	s.Scope().MustCreateRegistry("Thing")

	tests := []struct {
		script string
		want   string
	}{
		{script: "number.lua", want: ErrNotBehavior.Error()},
		{script: "syntax.lua", want: "parsing"},
		{script: "raises.lua", want: "nope"},
		{script: "missing.lua", want: "no such file"},
	}

	for _, tt := range tests {
		t.Run(tt.script, func(t *testing.T) {
			c, err := s.Spawn(tt.script).AddComponent("Thing", entity.ComponentSpec{Script: tt.script})
			require.NoError(t, err)
			assert.False(t, c.HasBehavior())
			assert.True(t, c.Alive())
		})
	}

	entries := logs.FilterMessage("behavior script failed to load").All()
	require.Len(t, entries, len(tests))
	for i, tt := range tests {
		assert.Contains(t, entries[i].ContextMap()["error"], tt.want)
	}
}

func TestHookErrorIsLogged(t *testing.T) {
	dir := writeScripts(t, map[string]string{
		"broken.lua": `return { on_update = function(self, dt) return self.missing.field end }`,
	})
	core, logs := observer.New(zap.ErrorLevel)
	rt, s := newTestScene(t, dir, zap.New(core))
	s.Scope().MustCreateRegistry("Broken")

	_, err := s.Spawn("b").AddComponent("Broken")
	require.NoError(t, err)

	assert.NotPanics(t, func() { s.Tick(time.Millisecond) })
	assert.Equal(t, uint64(1), rt.Stats().Failures)
	assert.Equal(t, 1, logs.FilterMessage("script error").Len())
}

func TestCallRejectsForeignFunction(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()

	err := rt.Call(foreign("go"), payload.New(1))
	assert.ErrorIs(t, err, ErrNotFunction)
}

type foreign string

func (f foreign) Name() string { return string(f) }

func TestChunkCacheReuse(t *testing.T) {
	dir := writeScripts(t, map[string]string{"health.lua": healthScript})
	rt, s := newTestScene(t, dir, zap.NewNop())
	s.Scope().MustCreateRegistry("Health")

	for range 3 {
		_, err := s.Spawn("").AddComponent("Health")
		require.NoError(t, err)
	}

	hits, misses := rt.Cache().Stats()
	assert.Equal(t, uint64(1), misses)
	assert.Equal(t, uint64(2), hits)
	assert.Equal(t, 1, rt.Cache().Len())
}

func TestWatcherInvalidates(t *testing.T) {
	dir := writeScripts(t, map[string]string{"health.lua": healthScript})
	path := filepath.Join(dir, "health.lua")

	cache := NewChunkCache()
	_, err := cache.Get(path)
	require.NoError(t, err)
	require.Equal(t, 1, cache.Len())

	changed := make(chan string, 4)
	w, err := NewWatcher(cache, dir, OnChange(func(p string) {
		select {
		case changed <- p:
		default:
		}
	}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(path, []byte(`return {}`), 0o644))

	select {
	case p := <-changed:
		assert.Equal(t, "health.lua", filepath.Base(p))
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}
	assert.Equal(t, 0, cache.Len())
	assert.GreaterOrEqual(t, w.Invalidations(), int64(1))

	cancel()
	assert.NoError(t, <-done)
}

// statScript provides Stat and drops it again when Drop<answer> is posted.
func statScript(answer string) string {
	return `return {
	on_init = function(self)
		self:setup_request("Stat", function(self) return "` + answer + `" end)
		self:subscribe("Drop` + answer + `", function(self)
			self:post("Dropped", self:disconnect_request("Stat"))
		end)
	end,
}`
}

func TestOverwrittenProviderSurvivesEarlierOwner(t *testing.T) {
	tests := []struct {
		name   string
		remove func(t *testing.T, first *component.Component)
	}{
		{
			name: "destroy",
			remove: func(t *testing.T, first *component.Component) {
				first.Destroy()
			},
		},
		{
			name: "disconnect_request",
			remove: func(t *testing.T, first *component.Component) {
				bus := first.Owner().Messenger()
				var dropped []bool
				bus.Subscribe(nil, "Dropped", func(p payload.Payload) {
					dropped = append(dropped, payload.MustAs[bool](p))
				})
				messenger.Emit(bus, "Dropa", true)
				assert.Equal(t, []bool{false}, dropped)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeScripts(t, map[string]string{
				"stat_a.lua": statScript("a"),
				"stat_b.lua": statScript("b"),
			})
			_, s := newTestScene(t, dir, zap.NewNop())
			s.Scope().MustCreateRegistry("StatA")
			s.Scope().MustCreateRegistry("StatB")

			e := s.Spawn("e")
			bus := e.Messenger()
			ca, err := e.AddComponent("StatA", entity.ComponentSpec{Script: "stat_a.lua"})
			require.NoError(t, err)
			_, err = e.AddComponent("StatB", entity.ComponentSpec{Script: "stat_b.lua"})
			require.NoError(t, err)

			v, err := messenger.Request[string](bus, "Stat")
			require.NoError(t, err)
			require.Equal(t, "b", v)

			tt.remove(t, ca)

			v, err = messenger.Request[string](bus, "Stat")
			require.NoError(t, err)
			assert.Equal(t, "b", v)
		})
	}

	t.Run("owner still removes its own provider", func(t *testing.T) {
		dir := writeScripts(t, map[string]string{"stat_b.lua": statScript("b")})
		_, s := newTestScene(t, dir, zap.NewNop())
		s.Scope().MustCreateRegistry("StatB")

		e := s.Spawn("e")
		bus := e.Messenger()
		_, err := e.AddComponent("StatB", entity.ComponentSpec{Script: "stat_b.lua"})
		require.NoError(t, err)

		var dropped []bool
		bus.Subscribe(nil, "Dropped", func(p payload.Payload) {
			dropped = append(dropped, payload.MustAs[bool](p))
		})
		messenger.Emit(bus, "Dropb", true)
		assert.Equal(t, []bool{true}, dropped)
		assert.False(t, bus.HasRequest("Stat"))
	})
}

func TestListenDisconnectCyclesDoNotAccumulate(t *testing.T) {
	dir := writeScripts(t, map[string]string{
		"churn.lua": `return {
	on_init = function(self)
		for i = 1, 50 do
			local l = self:listen("Click", function(self, batch) end)
			l:disconnect()
		end
		self.kept = self:listen("Click", function(self, batch) end)
	end,
}`,
	})
	rt, s := newTestScene(t, dir, zap.NewNop())
	s.Scope().MustCreateRegistry("Churn")

	e := s.Spawn("e")
	ev, err := e.DeclareEvent("Click", payload.TagOf[click]())
	require.NoError(t, err)

	c, err := e.AddComponent("Churn", entity.ComponentSpec{Script: "churn.lua"})
	require.NoError(t, err)
	require.True(t, c.HasBehavior())
	assert.Equal(t, 1, ev.ListenerCount())

	require.Len(t, rt.behaviors, 1)
	for b := range rt.behaviors {
		assert.Len(t, b.listeners, 1)
	}
}

func TestChunkCacheInvalidateDuringCompile(t *testing.T) {
	dir := writeScripts(t, map[string]string{"health.lua": healthScript})
	path := filepath.Join(dir, "health.lua")

	cache := NewChunkCache()
	compile := cache.compile
	cache.compile = func(p string) (*lua.FunctionProto, error) {
		proto, err := compile(p)
		cache.Invalidate(p)
		return proto, err
	}

	proto, err := cache.Get(path)
	require.NoError(t, err)
	assert.NotNil(t, proto)
	assert.Equal(t, 0, cache.Len(), "a chunk invalidated mid-compile is not stored")

	cache.compile = compile
	_, err = cache.Get(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())
}
