package lua

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	glua "github.com/yuin/gopher-lua"

	"github.com/dshills/isocore/internal/payload"
)

type position struct {
	X      float64
	Y      float64
	Layer  int `yaml:"z"`
	hidden int
}

func newTestBridge(t *testing.T) (*State, *Bridge) {
	t.Helper()
	s := NewState()
	t.Cleanup(s.Close)
	return s, NewBridge(s.L)
}

func TestBridgeToGoValue(t *testing.T) {
	s, b := newTestBridge(t)

	require.NoError(t, s.DoString(`
		seq = {1, 2.5, "three"}
		map = {name = "orc", hp = 7, tags = {"a", "b"}}
		cyc = {}
		cyc.self = cyc
	`))

	assert.Equal(t, []any{1.0, 2.5, "three"}, b.ToGoValue(s.L.GetGlobal("seq")))
	assert.Equal(t, map[string]any{
		"name": "orc",
		"hp":   7.0,
		"tags": []any{"a", "b"},
	}, b.ToGoValue(s.L.GetGlobal("map")))
	assert.Equal(t, map[string]any{"self": nil}, b.ToGoValue(s.L.GetGlobal("cyc")))
	assert.Nil(t, b.ToGoValue(glua.LNil))
	assert.Equal(t, true, b.ToGoValue(glua.LTrue))
}

func TestBridgeToLuaValue(t *testing.T) {
	_, b := newTestBridge(t)

	tbl, ok := b.ToLuaValue(position{X: 1, Y: 2, Layer: 3, hidden: 4}).(*glua.LTable)
	require.True(t, ok)
	assert.Equal(t, glua.LNumber(1), tbl.RawGetString("x"))
	assert.Equal(t, glua.LNumber(2), tbl.RawGetString("y"))
	assert.Equal(t, glua.LNumber(3), tbl.RawGetString("z"))
	assert.Equal(t, glua.LNil, tbl.RawGetString("hidden"))

	arr, ok := b.ToLuaValue([]int{4, 5}).(*glua.LTable)
	require.True(t, ok)
	assert.Equal(t, 2, arr.Len())
	assert.Equal(t, glua.LNumber(5), arr.RawGetInt(2))

	ptr := &position{X: 9}
	ptrTbl, ok := b.ToLuaValue(ptr).(*glua.LTable)
	require.True(t, ok)
	assert.Equal(t, glua.LNumber(9), ptrTbl.RawGetString("x"))

	ch := make(chan int)
	ud, ok := b.ToLuaValue(ch).(*glua.LUserData)
	require.True(t, ok)
	assert.Equal(t, ch, ud.Value)
}

func TestBridgePayloads(t *testing.T) {
	_, b := newTestBridge(t)

	assert.Equal(t, glua.LNil, b.PayloadToLua(payload.Empty()))
	assert.Equal(t, glua.LNumber(0.016), b.PayloadToLua(payload.New(0.016)))

	batch := payload.Batch{payload.New("a"), payload.New(position{X: 1})}
	tbl := b.BatchToLua(batch)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, glua.LString("a"), tbl.RawGetInt(1))

	// A batch wrapped in a payload converts the same way.
	wrapped, ok := b.PayloadToLua(payload.New(batch)).(*glua.LTable)
	require.True(t, ok)
	assert.Equal(t, 2, wrapped.Len())

	p := b.ToPayload(glua.LNumber(3))
	assert.True(t, payload.Is[float64](p))
	assert.True(t, payload.Is[string](b.ToPayload(glua.LString("x"))))
	assert.True(t, b.ToPayload(glua.LNil).IsZero())

	inner := payload.New(position{X: 2})
	ud := b.L.NewUserData()
	ud.Value = inner
	assert.Equal(t, inner, b.ToPayload(ud))
}
