package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeclaration(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantName   string
		wantReturn string
		wantParams []string
	}{
		{"simple", "int Attack(uint,uint)", "Attack", "int", []string{"uint", "uint"}},
		{"named params", "int Attack(uint attacker, uint target)", "Attack", "int", []string{"uint", "uint"}},
		{"no params", "void Tick()", "Tick", "void", nil},
		{"void params", "void Tick(void)", "Tick", "void", nil},
		{"handles and refs", "Critter@ Find(const string& name, int& out result)", "Find", "Critter@", []string{"const string&", "int&"}},
		{"templates", "array<array<int>>@ Grid(uint)", "Grid", "array<array<int>>@", []string{"uint"}},
		{"namespaced", "bool ns::Check(dictionary<string,int>)", "ns::Check", "bool", []string{"dictionary<string,int>"}},
		{"trailing const", "float Speed() const", "Speed", "float", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decl, err := ParseDeclaration(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, decl.Name)
			assert.Equal(t, tt.wantReturn, decl.Return.String())
			got := make([]string, 0, len(decl.Params))
			for _, p := range decl.Params {
				got = append(got, p.String())
			}
			if tt.wantParams == nil {
				assert.Empty(t, got)
			} else {
				assert.Equal(t, tt.wantParams, got)
			}
		})
	}
}

func TestParseDeclaration_Errors(t *testing.T) {
	for _, input := range []string{
		"",
		"int",
		"int Attack",
		"int Attack(uint",
		"int Attack(uint,)",
		"int Attack(uint) extra",
		"int Attack(void, int)",
		"array<int Attack()",
	} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseDeclaration(input)
			assert.Error(t, err)
		})
	}
}

func TestDeclaration_StringNormalizes(t *testing.T) {
	decl, err := ParseDeclaration("  int   Attack ( uint a ,uint b )")
	require.NoError(t, err)
	assert.Equal(t, "int Attack(uint,uint)", decl.String())
}

func TestTypeRef_Kind(t *testing.T) {
	tests := map[string]TypeKind{
		"void":       KindVoid,
		"bool":       KindBool,
		"int8":       KindInt,
		"int64":      KindInt,
		"uint":       KindUint,
		"uint16":     KindUint,
		"float":      KindFloat,
		"double":     KindFloat,
		"string":     KindString,
		"const int&": KindInt,
		"int@":       KindRef,
		"array<int>": KindRef,
		"Critter":    KindRef,
	}
	for input, want := range tests {
		typ, err := ParseType(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, typ.Kind(), input)
	}
}
