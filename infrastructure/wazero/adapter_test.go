package wazero

import (
	"context"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/scripthost/domain/entities"
	"github.com/reglet-dev/scripthost/domain/ports"
	"github.com/reglet-dev/scripthost/internal/testutil"
)

func TestDefaultAdapterConfig(t *testing.T) {
	cfg := defaultAdapterConfig()
	assert.Equal(t, DefaultHostModule, cfg.ModuleName)
	assert.Equal(t, uint32(DefaultMaxLogSize), cfg.MaxLogSize)

	WithModuleName("custom")(&cfg)
	WithMaxLogSize(16)(&cfg)
	WithCustomHandler(CustomHandler{Name: "extra"})(&cfg)
	assert.Equal(t, "custom", cfg.ModuleName)
	assert.Equal(t, uint32(16), cfg.MaxLogSize)
	require.Len(t, cfg.CustomHandlers, 1)
	assert.Equal(t, "extra", cfg.CustomHandlers[0].Name)
}

func TestPackUnpackPtrLen(t *testing.T) {
	tests := []struct {
		ptr    uint32
		length uint32
	}{
		{0, 0},
		{1, 1},
		{0xFFFFFFFF, 0xFFFFFFFF},
		{0x12345678, 0x9ABCDEF0},
	}

	for _, tt := range tests {
		gotPtr, gotLen := unpackPtrLen(packPtrLen(tt.ptr, tt.length))
		assert.Equal(t, tt.ptr, gotPtr)
		assert.Equal(t, tt.length, gotLen)
		assert.Equal(t, uint64(testutil.PackPtrLen(tt.ptr, tt.length)), packPtrLen(tt.ptr, tt.length)) //nolint:gosec // G115: bit packing
	}
}

type testGlobal struct {
	val entities.Value
	typ entities.TypeRef
	mu  sync.Mutex
}

func (g *testGlobal) Name() string           { return "Score" }
func (g *testGlobal) Type() entities.TypeRef { return g.typ }

func (g *testGlobal) Load() entities.Value {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.val
}

func (g *testGlobal) Store(v entities.Value) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.val = v
	return nil
}

type testHooks struct {
	score *testGlobal
	grid  []byte
	logs  []string
	mu    sync.Mutex
}

func (h *testHooks) Global(name string) (ports.SharedGlobal, bool) {
	if name == "Score" {
		return h.score, true
	}
	return nil, false
}

func (h *testHooks) DataBlock(name string) ([]byte, bool) {
	if name == "Grid" {
		return h.grid, true
	}
	return nil, false
}

func (h *testHooks) Log(_ context.Context, library string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logs = append(h.logs, library+": "+string(payload))
}

var (
	helloMsg  = testutil.PackPtrLen(16, 5)
	scoreName = testutil.PackPtrLen(32, 5)
	gridName  = testutil.PackPtrLen(48, 4)
)

func hooksLibrary() []byte {
	return testutil.WasmModule{
		Imports: []testutil.WasmImport{
			{Module: "scripthost", Name: "log_message", Params: []byte{testutil.I64}},
			{Module: "scripthost", Name: "global_get_i64", Params: []byte{testutil.I64}, Results: []byte{testutil.I64}},
			{Module: "scripthost", Name: "global_set_i64", Params: []byte{testutil.I64, testutil.I64}},
			{Module: "scripthost", Name: "data_write", Params: []byte{testutil.I64, testutil.I32, testutil.I32, testutil.I32}, Results: []byte{testutil.I32}},
			{Module: "scripthost", Name: "data_read", Params: []byte{testutil.I64, testutil.I32, testutil.I32, testutil.I32}, Results: []byte{testutil.I32}},
		},
		Funcs: []testutil.WasmFunc{
			{Name: "hello", Body: testutil.Concat(testutil.I64Const(helloMsg), testutil.Call(0))},
			{Name: "bump", Results: []byte{testutil.I64}, Body: testutil.Concat(
				testutil.I64Const(scoreName),
				testutil.I64Const(scoreName), testutil.Call(1),
				testutil.I64Const(1), []byte{0x7c}, // i64.add
				testutil.Call(2),
				testutil.I64Const(scoreName), testutil.Call(1),
			)},
			{Name: "fill", Results: []byte{testutil.I32}, Body: testutil.Concat(
				testutil.I64Const(gridName), testutil.I32Const(0), testutil.I32Const(64), testutil.I32Const(2), testutil.Call(3),
			)},
			{Name: "peek", Results: []byte{testutil.I32}, Body: testutil.Concat(
				testutil.I64Const(gridName), testutil.I32Const(2), testutil.I32Const(80), testutil.I32Const(1), testutil.Call(4),
				[]byte{0x1a},                                    // drop
				testutil.I32Const(80), []byte{0x2d, 0x00, 0x00}, // i32.load8_u
			)},
			{Name: "overflow", Results: []byte{testutil.I32}, Body: testutil.Concat(
				testutil.I64Const(gridName), testutil.I32Const(3), testutil.I32Const(64), testutil.I32Const(2), testutil.Call(3),
			)},
		},
		MemoryPages: 1,
		Data: []testutil.WasmData{
			{Offset: 16, Bytes: []byte("hello")},
			{Offset: 32, Bytes: []byte("Score")},
			{Offset: 48, Bytes: []byte("Grid")},
			{Offset: 64, Bytes: []byte{1, 2}},
		},
	}.Bytes()
}

func call(t *testing.T, lib ports.NativeLibrary, symbol string, args ...entities.Value) entities.Value {
	t.Helper()
	fn, ok := lib.Resolve(symbol)
	require.True(t, ok, symbol)
	ret, err := fn.Call(context.Background(), args)
	require.NoError(t, err)
	return ret
}

func TestHostModule_Hooks(t *testing.T) {
	ctx := context.Background()
	hooks := &testHooks{
		score: &testGlobal{typ: entities.TypeRef{Name: "int"}, val: entities.IntValue(41)},
		grid:  make([]byte, 4),
	}
	loader, err := NewLoader(ctx, fstest.MapFS{"hooks.wasm": {Data: hooksLibrary()}}, WithNativeHooks(hooks))
	require.NoError(t, err)
	defer loader.Close(ctx) //nolint:errcheck

	lib, err := loader.Load(ctx, "hooks.wasm")
	require.NoError(t, err)

	call(t, lib, "hello")
	assert.Equal(t, []string{"hooks.wasm: hello"}, hooks.logs)

	assert.Equal(t, int64(42), call(t, lib, "bump").Int())
	assert.Equal(t, int64(42), hooks.score.Load().Int())

	assert.Equal(t, int64(2), call(t, lib, "fill").Int())
	assert.Equal(t, []byte{1, 2, 0, 0}, hooks.grid)

	hooks.grid[2] = 7
	assert.Equal(t, int64(7), call(t, lib, "peek").Int())

	assert.Equal(t, int64(-1), call(t, lib, "overflow").Int(), "writes past the block are rejected")
}

func TestHostModule_NilHooks(t *testing.T) {
	ctx := context.Background()
	loader, err := NewLoader(ctx, fstest.MapFS{"hooks.wasm": {Data: hooksLibrary()}})
	require.NoError(t, err)
	defer loader.Close(ctx) //nolint:errcheck

	lib, err := loader.Load(ctx, "hooks.wasm")
	require.NoError(t, err)

	call(t, lib, "hello")
	assert.Equal(t, int64(0), call(t, lib, "bump").Int())
	assert.Equal(t, int64(-1), call(t, lib, "fill").Int())
}
