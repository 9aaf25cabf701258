package host

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/scripthost/domain/entities"
	domainerrors "github.com/reglet-dev/scripthost/domain/errors"
	"github.com/reglet-dev/scripthost/hostfuncs"
	"github.com/reglet-dev/scripthost/internal/testutil"
)

var i32Add = []byte{0x6a}

func mathLibrary() []byte {
	return testutil.WasmModule{
		Funcs: []testutil.WasmFunc{
			{Name: "add", Params: []byte{testutil.I32, testutil.I32}, Results: []byte{testutil.I32},
				Body: testutil.Concat(testutil.LocalGet(0), testutil.LocalGet(1), i32Add)},
			{Name: "spin", Body: testutil.Spin},
		},
		MemoryPages: 1,
	}.Bytes()
}

func requireBindError(t *testing.T, rt *testRuntime, reason domainerrors.BindReason) {
	t.Helper()
	bindErr := testutil.RequireErrorAs[*domainerrors.BindError](t, rt.LastBindError())
	assert.Equal(t, reason, bindErr.Reason)
}

func TestBind_ScriptFunction(t *testing.T) {
	rt := newTestRuntime(t, fstest.MapFS{"combat.js": {Data: []byte(combatSource)}})
	require.NoError(t, rt.LoadScript(context.Background(), "combat"))

	attack := rt.Bind("combat", "Attack", "int Attack(int, int)", false)
	defend := rt.Bind("combat", "Defend", "int Defend(int)", false)
	require.NoError(t, rt.LastBindError())
	assert.Equal(t, entities.FirstStableHandle, attack)
	assert.Equal(t, attack+1, defend)
	assert.Equal(t, attack, rt.Bind("combat", "Attack", "int Attack(int,int)", false),
		"the same callable keeps its handle")
	assert.Equal(t, int(defend)+1, rt.Bindings())

	bound, ok := rt.Binding(attack)
	require.True(t, ok)
	call, ok := bound.(entities.ScriptCall)
	require.True(t, ok)
	assert.Equal(t, "combat", call.Module)
	assert.True(t, call.Resolved())
}

func TestBind_Temporary(t *testing.T) {
	rt := newTestRuntime(t, fstest.MapFS{"combat.js": {Data: []byte(combatSource)}})
	require.NoError(t, rt.LoadScript(context.Background(), "combat"))

	first := rt.Bind("combat", "Defend", "int Defend(int)", true)
	second := rt.Bind("combat", "Attack", "int Attack(int,int)", true)
	assert.Equal(t, entities.HandleScratch, first)
	assert.Equal(t, entities.HandleScratch, second)
	assert.Equal(t, int(entities.FirstStableHandle), rt.Bindings(), "scratch binds never grow the table")

	v, err := newThread(t, rt).Call(entities.HandleScratch, "scratch", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(4), v.Int(), "the scratch slot holds the latest bind")
}

func TestBind_Failures(t *testing.T) {
	rt := newTestRuntime(t, fstest.MapFS{"combat.js": {Data: []byte(combatSource)}})
	require.NoError(t, rt.LoadScript(context.Background(), "combat"))

	tests := []struct {
		name        string
		target      string
		function    string
		declaration string
		reason      domainerrors.BindReason
	}{
		{"unknown function", "combat", "Heal", "int Heal(int)", domainerrors.BindUnknownFunction},
		{"wrong arity", "combat", "Defend", "int Defend(int, int)", domainerrors.BindUnknownFunction},
		{"unknown module", "magic", "Attack", "int Attack(int,int)", domainerrors.BindUnknownModule},
		{"bad declaration", "combat", "Attack", "int Attack(int", domainerrors.BindBadDeclaration},
		{"name mismatch", "combat", "Attack", "int Defend(int)", domainerrors.BindSignatureMismatch},
		{"unknown library", "missing.wasm", "add", "int add(int,int)", domainerrors.BindUnknownLibrary},
		{"unknown host function", entities.HostLibrary, "Teleport", "void Teleport()", domainerrors.BindUnknownFunction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, entities.HandleNone, rt.Bind(tt.target, tt.function, tt.declaration, false))
			requireBindError(t, rt, tt.reason)
		})
	}
	testutil.AssertLogged(t, rt.logs, "bind failed", "function=Heal")
	assert.Equal(t, int(entities.FirstStableHandle), rt.Bindings())
}

func TestBind_NativeLibrary(t *testing.T) {
	rt := newTestRuntime(t, fstest.MapFS{"math.wasm": {Data: mathLibrary()}})

	add := rt.Bind("math.wasm", "add", "int add(int,int)", false)
	require.NoError(t, rt.LastBindError())
	assert.Equal(t, add, rt.Bind("math.wasm", "add", "int add(int, int)", false))

	bound, ok := rt.Binding(add)
	require.True(t, ok)
	native, ok := bound.(entities.NativeCall)
	require.True(t, ok)
	assert.NotZero(t, native.Address)

	v, err := newThread(t, rt).Call(add, "native add", 3, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v.Int())

	assert.Equal(t, entities.HandleNone, rt.Bind("math.wasm", "add", "int add(int)", false))
	requireBindError(t, rt, domainerrors.BindSignatureMismatch)

	assert.Equal(t, entities.HandleNone, rt.Bind("math.wasm", "sub", "int sub(int,int)", false))
	requireBindError(t, rt, domainerrors.BindUnknownFunction)
}

func TestBind_HostFunction(t *testing.T) {
	reg, err := hostfuncs.NewRegistry(
		hostfuncs.WithFunction("int Roll(int sides)", func(_ context.Context, args []entities.Value) (entities.Value, error) {
			return entities.IntValue(args[0].Int()), nil
		}),
	)
	require.NoError(t, err)
	rt := newTestRuntime(t, nil, WithHostFunctions(reg))

	roll := rt.Bind(entities.HostLibrary, "Roll", "int Roll(int)", false)
	require.NoError(t, rt.LastBindError())

	v, err := newThread(t, rt).Call(roll, "roll", 20)
	require.NoError(t, err)
	assert.Equal(t, int64(20), v.Int())
}

func TestRebindAll_AfterUnload(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t, fstest.MapFS{"combat.js": {Data: []byte(combatSource)}})
	require.NoError(t, rt.LoadScript(ctx, "combat"))

	attack := rt.Bind("combat", "Attack", "int Attack(int,int)", false)
	defend := rt.Bind("combat", "Defend", "int Defend(int)", false)
	th := newThread(t, rt)

	require.NoError(t, rt.UnloadModule("combat"))
	testutil.AssertLogged(t, rt.logs, "module unloaded, handle zeroed", "declaration=\"int Attack(int,int)\"")
	testutil.AssertLogged(t, rt.logs, "module unloaded, handle zeroed", "declaration=\"int Defend(int)\"")

	_, err := th.Call(defend, "defend", 3)
	dispatchErr := testutil.RequireErrorAs[*domainerrors.DispatchError](t, err)
	assert.Equal(t, domainerrors.DispatchNotCallable, dispatchErr.Kind)
	assert.Equal(t, 0, th.Depth())

	require.NoError(t, rt.LoadScript(ctx, "combat"))
	require.NoError(t, rt.RebindAll())

	v, err := th.Call(attack, "attack", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v.Int())
	v, err = th.Call(defend, "defend", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v.Int())
}

func TestRebindAll_LeavesNativeEntries(t *testing.T) {
	rt := newTestRuntime(t, fstest.MapFS{"math.wasm": {Data: mathLibrary()}})
	add := rt.Bind("math.wasm", "add", "int add(int,int)", false)
	require.NotEqual(t, entities.HandleNone, add)

	require.NoError(t, rt.RebindAll())

	v, err := newThread(t, rt).Call(add, "native add", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v.Int())
}

func TestRebindAll_ResolvesThroughScratchSlot(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t, fstest.MapFS{"combat.js": {Data: []byte(combatSource)}})
	require.NoError(t, rt.LoadScript(ctx, "combat"))
	mustBind(t, rt, "combat", "Attack", "int Attack(int,int)")
	defend := mustBind(t, rt, "combat", "Defend", "int Defend(int)")
	size := rt.Bindings()

	require.NoError(t, rt.LoadScript(ctx, "combat"))
	require.NoError(t, rt.RebindAll())
	assert.Equal(t, size, rt.Bindings(), "rebinding never grows the table")

	scratch, ok := rt.Binding(entities.HandleScratch)
	require.True(t, ok)
	stable, ok := rt.Binding(defend)
	require.True(t, ok)
	assert.Equal(t, stable, scratch, "the last rebound entry is left in the scratch slot")
}
