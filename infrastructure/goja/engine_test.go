package goja

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/scripthost/domain/entities"
	"github.com/reglet-dev/scripthost/domain/ports"
)

const combatSource = `
var Round = 1;
function Attack(attacker, target) {
  return attacker * 2 + target;
}
function Heal(amount) { return amount + 0.5; }
`

func mustDecl(t *testing.T, s string) entities.Declaration {
	t.Helper()
	d, err := entities.ParseDeclaration(s)
	require.NoError(t, err)
	return d
}

func compile(t *testing.T, e *Engine, name, src string) ports.ScriptModule {
	t.Helper()
	m, err := e.Compile(name, []byte(src))
	require.NoError(t, err)
	return m
}

func run(t *testing.T, c ports.ScriptContext, id entities.FuncID, args ...entities.Value) entities.ContextState {
	t.Helper()
	require.NoError(t, c.Prepare(id))
	for i, a := range args {
		require.NoError(t, c.SetArg(i, a))
	}
	return c.Execute(context.Background())
}

func TestEngine_CompileAndCall(t *testing.T) {
	e := New()
	m := compile(t, e, "combat", combatSource)

	assert.Equal(t, "combat", m.Name())
	assert.Equal(t, []string{"Attack", "Heal"}, m.Functions())

	id, ok := m.Function(mustDecl(t, "int Attack(uint,uint)"))
	require.True(t, ok)
	assert.NotZero(t, id)

	_, ok = m.Function(mustDecl(t, "int Attack(uint)"))
	assert.False(t, ok, "parameter count must match")
	_, ok = m.Function(mustDecl(t, "void Defend()"))
	assert.False(t, ok)

	c := e.NewRealm().NewContext()
	state := run(t, c, id, entities.UintValue(5), entities.UintValue(7))
	require.Equal(t, entities.StateFinished, state, c.Exception())
	assert.Equal(t, int64(17), c.Return().Int())

	heal, ok := m.Function(mustDecl(t, "double Heal(double)"))
	require.True(t, ok)
	require.Equal(t, entities.StateFinished, run(t, c, heal, entities.FloatValue(1)))
	assert.InDelta(t, 1.5, c.Return().Float(), 1e-9)
}

func TestEngine_SetArgBeyondDeclared(t *testing.T) {
	e := New()
	m := compile(t, e, "combat", combatSource)
	id, _ := m.Function(mustDecl(t, "double Heal(double)"))

	c := e.NewRealm().NewContext()
	require.NoError(t, c.Prepare(id))
	assert.Error(t, c.SetArg(1, entities.IntValue(1)))
}

func TestEngine_RestParameters(t *testing.T) {
	e := New()
	m := compile(t, e, "util", `function sum(first, ...rest) { return rest.reduce((a, b) => a + b, first); }`)

	id, ok := m.Function(mustDecl(t, "int sum(int,int,int)"))
	require.True(t, ok)
	_, ok = m.Function(mustDecl(t, "int sum()"))
	assert.False(t, ok)

	c := e.NewRealm().NewContext()
	require.Equal(t, entities.StateFinished, run(t, c, id, entities.IntValue(1), entities.IntValue(2), entities.IntValue(3)))
	assert.Equal(t, int64(6), c.Return().Int())
}

func TestEngine_SyntaxErrorReportsPosition(t *testing.T) {
	e := New()
	var msgs []entities.EngineMessage
	e.SetMessageCallback(func(m entities.EngineMessage) { msgs = append(msgs, m) })

	_, err := e.Compile("broken", []byte("var a = 1;\nfunction (\n"))
	require.Error(t, err)
	require.NotEmpty(t, msgs)
	assert.Equal(t, "broken", msgs[0].Section)
	assert.Equal(t, entities.MessageError, msgs[0].Type)
	assert.Equal(t, 2, msgs[0].Row)
}

func TestEngine_GlobalDiscovery(t *testing.T) {
	e := New()
	m := compile(t, e, "ai", `
var hp = 10;
let speed = 1.5;
const name = "npc";
var cache = new Map();
var lists = [new Set()];
var pending;
const think = (a, b) => a;
class Npc {
  static registry = new Map();
  mood = "calm";
  #secret = -3;
}
`)

	types := map[string]string{}
	for _, g := range m.Globals() {
		types[g.QualifiedName()] = g.Type.String()
	}
	assert.Equal(t, map[string]string{
		"hp":           "int",
		"speed":        "double",
		"name":         "string",
		"cache":        "Map@",
		"lists":        "array<Set@>",
		"pending":      "var",
		"Npc.registry": "Map@",
		"Npc.mood":     "string",
		"Npc.#secret":  "int",
	}, types)
	assert.Equal(t, []string{"think"}, m.Functions())
}

func TestEngine_Exception(t *testing.T) {
	e := New()
	m := compile(t, e, "m", "\nfunction Boom() {\n  throw new TypeError(\"bad\");\n}\n")
	id, _ := m.Function(mustDecl(t, "void Boom()"))

	c := e.NewRealm().NewContext()
	require.Equal(t, entities.StateException, run(t, c, id))
	assert.Contains(t, c.Exception(), "TypeError: bad")

	frames := c.CallStack()
	require.NotEmpty(t, frames)
	assert.Equal(t, "m", frames[0].Module)
	assert.Equal(t, "Boom", frames[0].Function)
	assert.Positive(t, frames[0].Line)

	c.Abort()
	assert.Equal(t, entities.StateAborted, c.State())
	assert.Empty(t, c.Exception())
}

func TestEngine_SuspendAndReuse(t *testing.T) {
	e := New()
	m := compile(t, e, "loop", `
function Spin() { for (;;) {} }
function Ok() { return 1; }
`)
	spin, _ := m.Function(mustDecl(t, "void Spin()"))
	ok, _ := m.Function(mustDecl(t, "int Ok()"))

	c := e.NewRealm().NewContext()
	require.NoError(t, c.Prepare(spin))
	timer := time.AfterFunc(50*time.Millisecond, c.Suspend)
	defer timer.Stop()

	assert.Equal(t, entities.StateSuspended, c.Execute(context.Background()))
	assert.Contains(t, c.Exception(), ErrSuspended.Error())
	c.Abort()

	require.Equal(t, entities.StateFinished, run(t, c, ok))
	assert.Equal(t, int64(1), c.Return().Int())
}

func TestEngine_ContextCancellation(t *testing.T) {
	e := New()
	m := compile(t, e, "loop", `function Spin() { while (true) {} }`)
	spin, _ := m.Function(mustDecl(t, "void Spin()"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := e.NewRealm().NewContext()
	require.NoError(t, c.Prepare(spin))
	assert.Equal(t, entities.StateSuspended, c.Execute(ctx))
}

type sharedGlobal struct {
	typ  entities.TypeRef
	name string
	val  entities.Value
	mu   sync.Mutex
}

func (g *sharedGlobal) Name() string           { return g.name }
func (g *sharedGlobal) Type() entities.TypeRef { return g.typ }
func (g *sharedGlobal) Load() entities.Value {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.val
}

func (g *sharedGlobal) Store(v entities.Value) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.val = v
	return nil
}

func TestEngine_HostDefinitions(t *testing.T) {
	e := New()
	score := &sharedGlobal{name: "Score", typ: entities.TypeRef{Name: "int"}, val: entities.IntValue(40)}
	grid := make([]byte, 4)

	require.NoError(t, e.DefineGlobal(score))
	require.NoError(t, e.DefineDataBlock("Grid", grid))
	require.NoError(t, e.DefineNative(mustDecl(t, "int Add(int,int)"), func(_ context.Context, args []entities.Value) (entities.Value, error) {
		return entities.IntValue(args[0].Int() + args[1].Int()), nil
	}))
	assert.Error(t, e.DefineDataBlock("Score", nil), "names are unique across definitions")

	m := compile(t, e, "host", `
function Tick() {
  Score = Add(Score, 2);
  new Uint8Array(Grid)[1] = 9;
  return Score;
}
`)
	id, _ := m.Function(mustDecl(t, "int Tick()"))

	c := e.NewRealm().NewContext()
	require.Equal(t, entities.StateFinished, run(t, c, id), c.Exception())
	assert.Equal(t, int64(42), c.Return().Int())
	assert.Equal(t, int64(42), score.Load().Int())
	assert.Equal(t, byte(9), grid[1])
}

func TestEngine_NativeErrorBecomesException(t *testing.T) {
	e := New()
	require.NoError(t, e.DefineNative(mustDecl(t, "void Fail()"), func(context.Context, []entities.Value) (entities.Value, error) {
		return entities.Void, errors.New("native exploded")
	}))
	m := compile(t, e, "m", `function Go() { Fail(); }`)
	id, _ := m.Function(mustDecl(t, "void Go()"))

	c := e.NewRealm().NewContext()
	require.Equal(t, entities.StateException, run(t, c, id))
	assert.Contains(t, c.Exception(), "native exploded")
}

func TestEngine_NestedCallsShareRealm(t *testing.T) {
	e := New()
	realm := e.NewRealm()

	var inner entities.FuncID
	require.NoError(t, e.DefineNative(mustDecl(t, "int Twice(int)"), func(ctx context.Context, args []entities.Value) (entities.Value, error) {
		c := realm.NewContext()
		if err := c.Prepare(inner); err != nil {
			return entities.Void, err
		}
		if err := c.SetArg(0, args[0]); err != nil {
			return entities.Void, err
		}
		if state := c.Execute(ctx); state != entities.StateFinished {
			return entities.Void, errors.New(c.Exception())
		}
		return entities.IntValue(c.Return().Int() * 2), nil
	}))

	m := compile(t, e, "nest", `
function double(x) { return x * 2; }
function Outer(x) { return Twice(x) + 1; }
`)
	inner, _ = m.Function(mustDecl(t, "int double(int)"))
	outer, _ := m.Function(mustDecl(t, "int Outer(int)"))

	c := realm.NewContext()
	require.Equal(t, entities.StateFinished, run(t, c, outer, entities.IntValue(3)), c.Exception())
	assert.Equal(t, int64(13), c.Return().Int())
}

func TestEngine_Discard(t *testing.T) {
	e := New()
	m := compile(t, e, "combat", combatSource)
	id, _ := m.Function(mustDecl(t, "int Attack(uint,uint)"))

	realm := e.NewRealm()
	c := realm.NewContext()
	require.Equal(t, entities.StateFinished, run(t, c, id, entities.IntValue(1), entities.IntValue(1)))

	e.Discard(m)
	_, ok := m.Function(mustDecl(t, "int Attack(uint,uint)"))
	assert.False(t, ok)
	assert.Error(t, c.Prepare(id))

	m2 := compile(t, e, "combat", combatSource)
	id2, _ := m2.Function(mustDecl(t, "int Attack(uint,uint)"))
	assert.NotEqual(t, id, id2)
	require.Equal(t, entities.StateFinished, run(t, c, id2, entities.IntValue(1), entities.IntValue(1)))
	assert.Equal(t, 1, realm.(*Realm).Instances(), "instances of discarded modules are dropped")
}

func TestEngine_TopLevelExceptionFailsExecution(t *testing.T) {
	e := New()
	m := compile(t, e, "bad", `throw new Error("init failed"); function F() {}`)
	id, ok := m.Function(mustDecl(t, "void F()"))
	require.True(t, ok)

	c := e.NewRealm().NewContext()
	assert.Equal(t, entities.StateException, run(t, c, id))
	assert.Contains(t, c.Exception(), "init failed")
}

func TestEngine_ClosedRealm(t *testing.T) {
	e := New()
	m := compile(t, e, "combat", combatSource)
	id, _ := m.Function(mustDecl(t, "int Attack(uint,uint)"))

	realm := e.NewRealm()
	c := realm.NewContext()
	realm.Close()
	assert.Equal(t, entities.StateError, run(t, c, id, entities.IntValue(1), entities.IntValue(1)))
}

func TestEngine_ExecuteWithoutPrepare(t *testing.T) {
	c := New().NewRealm().NewContext()
	assert.Equal(t, entities.StateError, c.Execute(context.Background()))
}

func TestCollector(t *testing.T) {
	live := uint64(500)
	c := &Collector{
		read: func(ms *runtime.MemStats) { ms.HeapObjects = live },
		gc:   func() { live = 200 },
	}

	require.NoError(t, c.Collect(context.Background(), entities.GCDetectStep))
	assert.Equal(t, entities.GCStats{Live: 500}, c.Stats())

	require.NoError(t, c.Collect(context.Background(), entities.GCFull))
	assert.Equal(t, entities.GCStats{Live: 200, Detected: 300, Destroyed: 300}, c.Stats())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Collect(ctx, entities.GCFull), context.Canceled)
}

func TestCollector_Process(t *testing.T) {
	c := New().Collector()
	require.NoError(t, c.Collect(context.Background(), entities.GCFull))
	assert.Positive(t, c.Stats().Live)
}
