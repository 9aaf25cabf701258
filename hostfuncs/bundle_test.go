package hostfuncs

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/scripthost/domain/entities"
	"github.com/reglet-dev/scripthost/internal/testutil"
)

func TestCoreBundle(t *testing.T) {
	reg, err := NewRegistry(WithBundle(CoreBundle(nil)))
	require.NoError(t, err)
	assert.Equal(t, []string{"Desynchronize", "Log", "Resynchronize", "Synchronize"}, reg.Names())
}

func TestCoreBundle_Synchronize(t *testing.T) {
	reg, err := NewRegistry(WithBundle(CoreBundle(nil)))
	require.NoError(t, err)

	s := &countingSync{}
	ctx := WithSynchronizer(context.Background(), s)
	for _, name := range []string{"Synchronize", "Synchronize", "Resynchronize", "Desynchronize"} {
		_, err := reg.Invoke(ctx, name, nil)
		require.NoError(t, err, name)
	}
	assert.Equal(t, 1, s.depth)
	assert.Equal(t, 1, s.yields)

	_, err = reg.Invoke(context.Background(), "Synchronize", nil)
	assert.ErrorIs(t, err, ErrNoSynchronizer)
}

func TestCoreBundle_Log(t *testing.T) {
	logger, logs := testutil.NewLogger()
	reg, err := NewRegistry(WithBundle(CoreBundle(logger)))
	require.NoError(t, err)

	_, err = reg.Invoke(context.Background(), "Log", []entities.Value{entities.StringValue("npc spawned")})
	require.NoError(t, err)
	testutil.AssertLogged(t, logs, "npc spawned", "source=script", "truncated=false")

	long := strings.Repeat("x", DefaultMaxMessageSize+10)
	_, err = reg.Invoke(context.Background(), "Log", []entities.Value{entities.StringValue(long)})
	require.NoError(t, err)
	testutil.AssertLogged(t, logs, "truncated=true")
}

func TestBundles(t *testing.T) {
	extra := &staticBundle{functions: map[string]Handler{"int Roll(int)": echo}}
	combined := Bundles(CoreBundle(nil), extra)
	assert.Len(t, combined.Functions(), 5)

	reg, err := NewRegistry(WithBundle(combined))
	require.NoError(t, err)
	assert.True(t, reg.Has("Roll"))
}

func TestWithBundle_Duplicate(t *testing.T) {
	_, err := NewRegistry(
		WithBundle(CoreBundle(nil)),
		WithFunction("void Log(string)", echo),
	)
	assert.ErrorContains(t, err, "duplicate host function name")
}
