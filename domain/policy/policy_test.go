package policy_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/scripthost/domain/entities"
	domainerrors "github.com/reglet-dev/scripthost/domain/errors"
	"github.com/reglet-dev/scripthost/domain/policy"
)

func mustType(t *testing.T, s string) entities.TypeRef {
	t.Helper()
	typ, err := entities.ParseType(s)
	require.NoError(t, err)
	return typ
}

type recordingHandler struct {
	modules    []string
	violations []*domainerrors.PolicyViolation
}

func (h *recordingHandler) OnViolation(module string, v *domainerrors.PolicyViolation) {
	h.modules = append(h.modules, module)
	h.violations = append(h.violations, v)
}

func TestGlobalTypePolicy_Match(t *testing.T) {
	p := policy.NewGlobalTypePolicy(
		policy.WithViolationHandler(&policy.NopViolationHandler{}),
		policy.WithDisallowedTypes("Map", "Critter@", "Promise*"),
	)

	tests := []struct {
		typ         string
		wantMatched string
		want        bool
	}{
		{"int", "", false},
		{"Map", "Map", true},
		{"const Map&", "Map", true},
		{"Critter", "", false},
		{"Critter@", "Critter@", true},
		{"array<Critter@>", "Critter@", true},
		{"array<array<Map>>", "Map", true},
		{"dictionary<string,array<PromiseLike>>", "PromiseLike", true},
		{"array<int>", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			_, matched, ok := p.Match(mustType(t, tt.typ))
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, tt.wantMatched, matched)
		})
	}
}

func TestGlobalTypePolicy_MatchOuterTemplate(t *testing.T) {
	p := policy.NewGlobalTypePolicy(
		policy.WithViolationHandler(&policy.NopViolationHandler{}),
		policy.WithDisallowedTypes("array<*>"),
	)

	pattern, matched, ok := p.Match(mustType(t, "array<array<int>>"))
	require.True(t, ok)
	assert.Equal(t, "array<*>", pattern)
	assert.Equal(t, "array<array<int>>", matched)

	_, _, ok = p.Match(mustType(t, "dictionary<int>"))
	assert.False(t, ok)
}

func TestGlobalTypePolicy_Check(t *testing.T) {
	handler := &recordingHandler{}
	p := policy.NewGlobalTypePolicy(
		policy.WithViolationHandler(handler),
		policy.WithDisallowedTypes("Map"),
	)

	globals := []entities.GlobalVar{
		{Name: "counter", Type: mustType(t, "int")},
		{Owner: "Cache", Name: "entries", Type: mustType(t, "array<Map>")},
	}

	err := p.Check("ai", globals)
	require.Error(t, err)

	var violation *domainerrors.PolicyViolation
	require.True(t, errors.As(err, &violation))
	assert.Equal(t, "Cache.entries", violation.Variable)
	assert.Equal(t, "array<Map> via Map", violation.Type)
	assert.Equal(t, "Map", violation.Pattern)

	require.Len(t, handler.violations, 1)
	assert.Equal(t, "ai", handler.modules[0])
}

func TestGlobalTypePolicy_NoPatterns(t *testing.T) {
	p := policy.NewGlobalTypePolicy()
	assert.NoError(t, p.Check("combat", []entities.GlobalVar{{Name: "m", Type: mustType(t, "Map")}}))
}

func TestGlobalTypePolicy_DropsInvalidPatterns(t *testing.T) {
	p := policy.NewGlobalTypePolicy(policy.WithDisallowedTypes("[", "Map"))
	assert.Equal(t, []string{"Map"}, p.Patterns())
}
