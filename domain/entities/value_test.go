package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_Conversions(t *testing.T) {
	assert.True(t, Void.IsVoid())
	assert.Equal(t, int64(-3), IntValue(-3).Int())
	assert.Equal(t, uint64(7), UintValue(7).Uint())
	assert.InDelta(t, 2.5, FloatValue(2.5).Float(), 1e-9)
	assert.Equal(t, int64(2), FloatValue(2.9).Int())
	assert.True(t, BoolValue(true).Bool())
	assert.False(t, IntValue(0).Bool())
	assert.Equal(t, "12", IntValue(12).String())
	assert.Equal(t, "hello", StringValue("hello").String())
}

func TestValue_Coerce(t *testing.T) {
	uintType, err := ParseType("uint")
	require.NoError(t, err)
	stringType, err := ParseType("string")
	require.NoError(t, err)
	refType, err := ParseType("Critter@")
	require.NoError(t, err)

	v, err := IntValue(5).Coerce(uintType)
	require.NoError(t, err)
	assert.Equal(t, KindUint, v.Kind())
	assert.Equal(t, uint64(5), v.Uint())

	_, err = IntValue(5).Coerce(stringType)
	assert.Error(t, err)

	_, err = StringValue("x").Coerce(uintType)
	assert.Error(t, err)

	v, err = StringValue("x").Coerce(refType)
	require.NoError(t, err)
	assert.Equal(t, "x", v.Ref())
}

func TestValueOf(t *testing.T) {
	tests := []struct {
		in   any
		kind TypeKind
	}{
		{nil, KindVoid},
		{true, KindBool},
		{int(1), KindInt},
		{int32(1), KindInt},
		{uint8(1), KindUint},
		{uint64(1), KindUint},
		{float32(1), KindFloat},
		{1.5, KindFloat},
		{"s", KindString},
		{[]int{1}, KindRef},
	}
	for _, tt := range tests {
		v, err := ValueOf(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.kind, v.Kind(), "%T", tt.in)
	}
}
