package lua

import (
	"slices"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/dshills/isocore/internal/component"
	"github.com/dshills/isocore/internal/messenger"
	"github.com/dshills/isocore/internal/payload"
	"github.com/dshills/isocore/internal/script"
)

// Hook names looked up in a behavior table.
const (
	hookInit      = "on_init"
	hookPreUpdate = "on_pre_update"
	hookUpdate    = "on_update"
	hookDestroy   = "on_destroy"
)

// eventSource is an owner that declares script events.
type eventSource interface {
	Event(name messenger.Topic) (*script.Event, bool)
}

// named is an owner with a display name.
type named interface {
	Name() string
}

// behavior binds one loaded script to one component.
type behavior struct {
	rt     *Runtime
	comp   *component.Component
	path   string
	module *lua.LTable
	self   *lua.LTable

	// bus is the owner's messenger. identity is what this script's
	// subscriptions are filed under, so closing it removes all of them.
	bus      *messenger.Messenger
	identity *messenger.Messenger

	// requests holds the token of each provider this script registered.
	requests  map[messenger.Topic]messenger.RequestToken
	listeners []*script.Listener

	destroyed bool
	log       *zap.Logger
}

func newBehavior(rt *Runtime, c *component.Component, module *lua.LTable, path string) *behavior {
	bus := c.Owner().Messenger()
	label := c.Owner().ID() + "/" + c.Type()
	return &behavior{
		rt:       rt,
		comp:     c,
		path:     path,
		module:   module,
		bus:      bus,
		identity: messenger.New(bus.IDs(), messenger.WithOwner(label)),
		requests: make(map[messenger.Topic]messenger.RequestToken),
		log: rt.log.With(
			zap.String("type", c.Type()),
			zap.String("owner", c.Owner().ID()),
			zap.String("script", path),
		),
	}
}

// bind builds self, subscribes the update hooks and runs on_init.
func (b *behavior) bind() {
	b.self = b.newSelf()

	reg := b.comp.Registry()
	if fn, ok := b.rt.bridge.TableFunc(b.module, hookPreUpdate); ok {
		b.bus.Subscribe(b.identity, reg.PreUpdateTopic(), b.frameHook(hookPreUpdate, fn))
	}
	if fn, ok := b.rt.bridge.TableFunc(b.module, hookUpdate); ok {
		b.bus.Subscribe(b.identity, reg.UpdateTopic(), b.frameHook(hookUpdate, fn))
	}
	if fn, ok := b.rt.bridge.TableFunc(b.module, hookInit); ok {
		b.invoke(hookInit, fn)
	}
}

// frameHook adapts an update hook to a messenger callback.
func (b *behavior) frameHook(hook string, fn *lua.LFunction) messenger.Callback {
	return func(p payload.Payload) {
		dt, err := payload.As[float64](p)
		if err != nil {
			b.log.Warn("frame event without delta time", zap.String("hook", hook), zap.Error(err))
			return
		}
		b.invoke(hook, fn, lua.LNumber(dt))
	}
}

// invoke calls fn(self, args...) and logs failures. It returns the results
// of a successful call.
func (b *behavior) invoke(what string, fn *lua.LFunction, args ...lua.LValue) []lua.LValue {
	b.rt.calls++
	results, err := b.rt.state.Call(fn, append([]lua.LValue{b.self}, args...)...)
	if err != nil {
		b.rt.failures++
		b.log.Error("script error", zap.String("hook", what), zap.Error(err))
		return nil
	}
	return results
}

// newSelf builds the table passed as self to every hook.
func (b *behavior) newSelf() *lua.LTable {
	L := b.rt.state.L
	self := L.NewTable()

	self.RawSetString("type", lua.LString(b.comp.Type()))
	self.RawSetString("entity", lua.LString(b.comp.Owner().ID()))
	if n, ok := b.comp.Owner().(named); ok {
		self.RawSetString("name", lua.LString(n.Name()))
	}
	self.RawSetString("properties", b.rt.bridge.ToLuaValue(b.comp.Properties()))

	L.SetFuncs(self, map[string]lua.LGFunction{
		"subscribe":          b.luaSubscribe,
		"unsubscribe":        b.luaUnsubscribe,
		"post":               b.luaPost,
		"request":            b.luaRequest,
		"setup_request":      b.luaSetupRequest,
		"disconnect_request": b.luaDisconnectRequest,
		"listen":             b.luaListen,
		"log":                b.luaLog,
	})
	return self
}

// self:subscribe(event, fn) -> id
func (b *behavior) luaSubscribe(L *lua.LState) int {
	event := messenger.Topic(L.CheckString(2))
	fn := L.CheckFunction(3)
	name := string(event) + " " + describe(fn)

	id := b.bus.Subscribe(b.identity, event, func(p payload.Payload) {
		b.invoke(name, fn, b.rt.bridge.PayloadToLua(p))
	})
	L.Push(lua.LNumber(id))
	return 1
}

// self:unsubscribe(event [, id]) -> removed
func (b *behavior) luaUnsubscribe(L *lua.LState) int {
	event := messenger.Topic(L.CheckString(2))
	if L.GetTop() >= 3 {
		id := messenger.SubscriptionID(L.CheckInt64(3))
		L.Push(lua.LBool(b.bus.Unsubscribe(b.identity, event, id)))
		return 1
	}
	L.Push(lua.LNumber(b.bus.UnsubscribeAll(b.identity, event)))
	return 1
}

// self:post(event, value)
func (b *behavior) luaPost(L *lua.LState) int {
	event := messenger.Topic(L.CheckString(2))
	b.bus.Post(event, b.rt.bridge.ToPayload(L.Get(3)))
	return 0
}

// self:request(name) -> value | nil, err
func (b *behavior) luaRequest(L *lua.LState) int {
	name := messenger.Topic(L.CheckString(2))
	p, err := b.bus.RequestPayload(name)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(b.rt.bridge.PayloadToLua(p))
	return 1
}

// self:setup_request(name, fn)
func (b *behavior) luaSetupRequest(L *lua.LState) int {
	name := messenger.Topic(L.CheckString(2))
	fn := L.CheckFunction(3)

	token := b.bus.SetupRequest(name, func(slot *payload.Slot) {
		results := b.invoke("request "+string(name), fn)
		if len(results) == 0 || results[0] == lua.LNil {
			return
		}
		slot.Set(b.rt.bridge.ToPayload(results[0]))
	})
	if token != 0 {
		b.requests[name] = token
	}
	return 0
}

// self:disconnect_request(name) -> removed
func (b *behavior) luaDisconnectRequest(L *lua.LState) int {
	name := messenger.Topic(L.CheckString(2))
	token, ok := b.requests[name]
	if !ok {
		L.Push(lua.LFalse)
		return 1
	}
	delete(b.requests, name)
	L.Push(lua.LBool(b.bus.DisconnectRequestIf(name, token)))
	return 1
}

// self:listen(event, fn) -> listener
func (b *behavior) luaListen(L *lua.LState) int {
	event := messenger.Topic(L.CheckString(2))
	fn := L.CheckFunction(3)

	src, ok := b.comp.Owner().(eventSource)
	if !ok {
		L.RaiseError("owner %s cannot declare events", b.comp.Owner().ID())
		return 0
	}
	ev, ok := src.Event(event)
	if !ok {
		L.RaiseError("event %q is not declared on %s", string(event), b.comp.Owner().ID())
		return 0
	}

	b.listeners = slices.DeleteFunc(b.listeners, func(l *script.Listener) bool { return !l.Connected() })
	l := ev.Connect(&Function{fn: fn, self: b.self, name: string(event) + " " + describe(fn)})
	b.listeners = append(b.listeners, l)

	ud := L.NewUserData()
	ud.Value = l
	L.SetMetatable(ud, b.rt.listenerMeta)
	L.Push(ud)
	return 1
}

// self:log(msg [, level])
func (b *behavior) luaLog(L *lua.LState) int {
	msg := L.CheckString(2)
	switch L.OptString(3, "info") {
	case "debug":
		b.log.Debug(msg)
	case "warn":
		b.log.Warn(msg)
	case "error":
		b.log.Error(msg)
	default:
		b.log.Info(msg)
	}
	return 0
}

// Destroy implements component.Behavior. It runs on_destroy, then removes
// every subscription, provider and listener the script created.
func (b *behavior) Destroy() {
	if b.destroyed {
		return
	}
	b.destroyed = true

	if fn, ok := b.rt.bridge.TableFunc(b.module, hookDestroy); ok {
		b.invoke(hookDestroy, fn)
	}

	b.identity.Close()
	for name, token := range b.requests {
		b.bus.DisconnectRequestIf(name, token)
	}
	clear(b.requests)
	for _, l := range b.listeners {
		l.Disconnect()
	}
	b.listeners = nil

	b.rt.forget(b)
	b.log.Debug("behavior destroyed")
}
