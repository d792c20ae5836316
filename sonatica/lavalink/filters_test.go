package lavalink

import (
	"context"
	"testing"

	"github.com/liuran001/sonatica-go/sonatica/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiltersEqualizer(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	f := env.player(t).Filters()

	assert.ErrorIs(t, f.SetEqualizer(ctx, protocol.Band{Band: 15, Gain: 0.1}), ErrInvalidArgument)
	assert.ErrorIs(t, f.SetEqualizer(ctx, protocol.Band{Band: 1, Gain: 1.5}), ErrInvalidArgument)

	require.NoError(t, f.SetEqualizer(ctx, protocol.Band{Band: 0, Gain: 0.2}, protocol.Band{Band: 1, Gain: 0.1}))
	require.NoError(t, f.SetEqualizer(ctx, protocol.Band{Band: 1, Gain: -0.2}))
	assert.Equal(t, []protocol.Band{{Band: 0, Gain: 0.2}, {Band: 1, Gain: -0.2}}, f.Values().Equalizer)

	patches := env.rest["main"].playerPatches()
	require.Len(t, patches, 2)
	require.NotNil(t, patches[1].Filters)
	assert.Len(t, patches[1].Filters.Equalizer, 2)
	assert.Nil(t, patches[1].Track)

	require.NoError(t, f.ClearEqualizer(ctx))
	assert.Empty(t, f.Values().Equalizer)
}

func TestFiltersKeepOldValuesOnFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	f := env.player(t).Filters()
	require.NoError(t, f.SetVolume(ctx, 2))

	env.rest["main"].handle = func(string, string, any) (any, error) { return nil, ErrTransport }
	assert.ErrorIs(t, f.SetTimescale(ctx, &protocol.Timescale{Speed: 1.2, Pitch: 1, Rate: 1}), ErrTransport)

	values := f.Values()
	assert.Nil(t, values.Timescale)
	require.NotNil(t, values.Volume)
	assert.Equal(t, 2.0, *values.Volume)
}

func TestFiltersValidationAndClear(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	f := env.player(t).Filters()

	assert.ErrorIs(t, f.SetVolume(ctx, 6), ErrInvalidArgument)
	assert.ErrorIs(t, f.SetTimescale(ctx, &protocol.Timescale{Speed: -1}), ErrInvalidArgument)
	assert.ErrorIs(t, f.SetPluginFilter(ctx, "", 1), ErrInvalidArgument)

	require.NoError(t, f.SetRotation(ctx, &protocol.Rotation{RotationHz: 0.2}))
	require.NoError(t, f.SetPluginFilter(ctx, "echo", map[string]any{"delay": 0.5}))
	assert.False(t, f.Values().Empty())

	require.NoError(t, f.Clear(ctx))
	assert.True(t, f.Values().Empty())
}
