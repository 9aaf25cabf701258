package wireformat

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/scripthost/domain/entities"
	domainerrors "github.com/reglet-dev/scripthost/domain/errors"
)

func TestEncodeModule_Layout(t *testing.T) {
	rec := &entities.ModuleRecord{
		Version:      7,
		Dependencies: []string{"lib/a.js"},
		Pragmas:      []entities.PragmaInvocation{{Tag: "globalvar", Text: "int X"}},
		Unit:         []byte("function f(){}"),
	}

	data, err := EncodeModule(rec)
	require.NoError(t, err)

	want := []byte{7, 0, 0, 0, 1, 0, 0, 0}
	want = append(want, "lib/a.js\x00"...)
	want = append(want, 1, 0, 0, 0)
	want = append(want, "globalvar\x00int X\x00"...)
	want = append(want, "function f(){}"...)
	assert.Equal(t, want, data)
}

func TestDecodeModule_RoundTrip(t *testing.T) {
	rec := &entities.ModuleRecord{
		Version:      3,
		Dependencies: []string{"a.js", "sub/b.js"},
		Pragmas: []entities.PragmaInvocation{
			{Tag: "datablock", Text: "Map 64"},
			{Tag: "bindfunc", Text: "int Sum(int,int) -> math.wasm sum"},
		},
		Unit: []byte{0x00, 0x01, 0xff},
	}
	data, err := EncodeModule(rec)
	require.NoError(t, err)

	got, err := DecodeModule("combat", data)
	require.NoError(t, err)
	assert.Equal(t, "combat", got.Name)
	assert.Equal(t, rec.Version, got.Version)
	assert.Equal(t, rec.Dependencies, got.Dependencies)
	assert.Equal(t, rec.Pragmas, got.Pragmas)
	assert.Equal(t, rec.Unit, got.Unit)

	v, err := PeekVersion(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), v)
}

func TestEncodeModule_RejectsNUL(t *testing.T) {
	_, err := EncodeModule(&entities.ModuleRecord{Dependencies: []string{"a\x00b"}})
	require.Error(t, err)

	var wireErr *domainerrors.WireFormatError
	require.True(t, errors.As(err, &wireErr))
	assert.Equal(t, "encode", wireErr.Operation)
}

func TestDecodeModule_Malformed(t *testing.T) {
	huge := make([]byte, 8)
	binary.LittleEndian.PutUint32(huge[4:], MaxListLen+1)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short version", []byte{1, 0}},
		{"missing dep count", []byte{1, 0, 0, 0}},
		{"unterminated dependency", append([]byte{1, 0, 0, 0, 1, 0, 0, 0}, "a.js"...)},
		{"missing pragma count", append([]byte{1, 0, 0, 0, 1, 0, 0, 0}, "a.js\x00"...)},
		{"unterminated pragma text", append([]byte{1, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0}, "tag\x00text"...)},
		{"count over limit", huge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeModule("m", tt.data)
			var wireErr *domainerrors.WireFormatError
			require.True(t, errors.As(err, &wireErr))
			assert.Equal(t, "decode", wireErr.Operation)
		})
	}
}

func TestDecodeModule_EmptyUnit(t *testing.T) {
	data, err := EncodeModule(&entities.ModuleRecord{Version: 1})
	require.NoError(t, err)
	assert.Len(t, data, 12)

	got, err := DecodeModule("m", data)
	require.NoError(t, err)
	assert.Empty(t, got.Unit)
	assert.Empty(t, got.Dependencies)
}
