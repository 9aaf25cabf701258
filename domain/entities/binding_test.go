package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSameCallable(t *testing.T) {
	a := ScriptCall{Module: "combat", Decl: "int Attack(uint,uint)", ID: 4}
	b := ScriptCall{Module: "combat", Decl: "int Attack(uint a,uint b)", ID: 4}
	c := ScriptCall{Module: "combat", Decl: "int Attack(uint,uint)", ID: 5}
	unresolved := ScriptCall{Module: "combat", Decl: "int Attack(uint,uint)"}
	n1 := NativeCall{Library: "math.wasm", Symbol: "add", Address: 9}
	n2 := NativeCall{Library: "other.wasm", Symbol: "add2", Address: 9}

	assert.True(t, SameCallable(a, b))
	assert.False(t, SameCallable(a, c))
	assert.False(t, SameCallable(unresolved, unresolved))
	assert.True(t, SameCallable(n1, n2))
	assert.False(t, SameCallable(a, n1))
}

func TestIsNativeTarget(t *testing.T) {
	assert.True(t, IsNativeTarget("physics.wasm"))
	assert.True(t, IsNativeTarget("libs/physics.wasm"))
	assert.True(t, IsNativeTarget(HostLibrary))
	assert.False(t, IsNativeTarget(".wasm"))
	assert.False(t, IsNativeTarget("combat"))
}

func TestContextState_String(t *testing.T) {
	assert.Equal(t, "finished", StateFinished.String())
	assert.Equal(t, "suspended", StateSuspended.String())
	assert.True(t, StateAborted.Terminal())
	assert.False(t, StateExecuting.Terminal())
	assert.Equal(t, "state(42)", ContextState(42).String())
}
