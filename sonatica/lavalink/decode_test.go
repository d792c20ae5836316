package lavalink

import (
	"context"
	"net/http"
	"testing"

	"github.com/liuran001/sonatica-go/sonatica/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTracksLocally(t *testing.T) {
	env := newTestEnv(t, nil)
	a, b := trackData(t, "a", 1000), trackData(t, "b", 2000)

	got, err := env.manager.DecodeTracks(context.Background(), []string{a.Encoded, b.Encoded})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Info.Identifier)
	assert.Equal(t, b.Encoded, got[1].Encoded)
	assert.Empty(t, env.rest["main"].Calls())
}

func TestDecodeTracksFallsBackToNode(t *testing.T) {
	env := newTestEnv(t, nil)
	a := trackData(t, "a", 1000)
	remote := protocol.TrackData{Encoded: "plugin-blob", Info: protocol.TrackInfo{Identifier: "p", Title: "From plugin"}}
	env.rest["main"].handle = func(method, path string, body any) (any, error) {
		assert.Equal(t, http.MethodPost, method)
		assert.Equal(t, "/decodetracks", path)
		assert.Equal(t, []string{a.Encoded, "plugin-blob"}, body)
		return []protocol.TrackData{a, remote}, nil
	}

	got, err := env.manager.DecodeTracks(context.Background(), []string{a.Encoded, "plugin-blob"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "From plugin", got[1].Info.Title)

	track, err := env.manager.DecodeTrack(context.Background(), a.Encoded)
	require.NoError(t, err)
	assert.Equal(t, "Song a", track.Title)
}

func TestDecodeTracksReportsBothFailures(t *testing.T) {
	env := newTestEnv(t, nil)
	env.rest["main"].handle = func(string, string, any) (any, error) {
		return nil, ErrTransport
	}

	_, err := env.manager.DecodeTracks(context.Background(), []string{"!!!"})
	assert.ErrorIs(t, err, ErrDecode)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestDecodeTracksRejectsShortRemoteBatch(t *testing.T) {
	env := newTestEnv(t, nil)
	a := trackData(t, "a", 1000)
	env.rest["main"].handle = func(string, string, any) (any, error) {
		return []protocol.TrackData{a}, nil
	}

	_, err := env.manager.DecodeTracks(context.Background(), []string{a.Encoded, "!!!"})
	assert.ErrorIs(t, err, ErrDecode)
	assert.ErrorContains(t, err, "node returned 1 of 2 tracks")
}
