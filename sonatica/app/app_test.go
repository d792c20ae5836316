package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/liuran001/sonatica-go/sonatica/config"
	"github.com/liuran001/sonatica-go/sonatica/lavalink"
	"github.com/liuran001/sonatica-go/sonatica/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.ini")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const baseConfig = `LogDir =
LogLevel = warn
Store = memory
Sorter = leastused
AutoMove = false
CacheTTLSeconds = 60
MoveGraceSeconds = 2

[nodes.main]
host = lava-1.internal
port = 2333
password = secret
search = false

[nodes.backup]
host = lava-2.internal
port = 443
playback = false
retry_amount = 5
`

func TestManagerOptions(t *testing.T) {
	conf, err := config.Load(writeConfig(t, baseConfig))
	require.NoError(t, err)

	opts := ManagerOptions(conf)
	assert.False(t, opts.AutoMove)
	assert.True(t, opts.AutoPlay)
	assert.Equal(t, time.Minute, opts.CacheTTL)
	assert.Equal(t, 2*time.Second, opts.MoveGracePeriod)
	assert.NotNil(t, opts.Sorter)

	require.Len(t, opts.Nodes, 2)
	backup, main := opts.Nodes[0], opts.Nodes[1]

	assert.Equal(t, "backup", backup.Identifier)
	assert.True(t, backup.Secure)
	assert.True(t, backup.DisablePlayback)
	assert.False(t, backup.DisableSearch)
	assert.Equal(t, 5, backup.RetryAmount)

	assert.Equal(t, "main", main.Identifier)
	assert.Equal(t, "secret", main.Password)
	assert.True(t, main.DisableSearch)
	assert.False(t, main.DisablePlayback)
}

func TestNewWiresManager(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, writeConfig(t, "ClientID = 1085547421129465887\n"+baseConfig), BuildInfo{BinVersion: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	assert.Nil(t, a.Discord)
	assert.IsType(t, &store.Memory{}, a.Store)
	assert.Equal(t, "1085547421129465887", a.Manager.ClientID().String())

	nodes := a.Manager.Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, "backup", nodes[0].Identifier())
	assert.Equal(t, "main", nodes[1].Identifier())

	families, err := a.Registry.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "sonatica_players" {
			found = true
		}
	}
	assert.True(t, found, "collector should be registered")
}

func TestNewSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "resume.db")
	a, err := New(context.Background(), writeConfig(t, "Store = sqlite\nSQLitePath = "+dbPath+"\n"+baseConfig), BuildInfo{})
	require.NoError(t, err)

	assert.IsType(t, &store.SQLite{}, a.Store)
	require.NoError(t, a.Store.Set(context.Background(), "sessions.main", "sid"))
	require.NoError(t, a.Shutdown(context.Background()))
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(context.Background(), writeConfig(t, "Store = etcd\n"+baseConfig), BuildInfo{})
	assert.ErrorContains(t, err, "unknown store")

	_, err = New(context.Background(), writeConfig(t, "ClientID = not-a-number\n"+baseConfig), BuildInfo{})
	assert.ErrorContains(t, err, "parse ClientID")
}

func TestStartRequiresClientIDWithoutGateway(t *testing.T) {
	a, err := New(context.Background(), writeConfig(t, baseConfig), BuildInfo{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	err = a.Start(context.Background())
	assert.ErrorIs(t, err, lavalink.ErrInvalidArgument)
}
