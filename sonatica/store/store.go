// Package store implements sonatica.Store backends for resume state.
package store

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// SessionPrefix marks keys that never expire.
	SessionPrefix = "sessions."
	// PlayerPrefix marks per-guild snapshot keys.
	PlayerPrefix = "players."

	DefaultTTL = 24 * time.Hour
)

var ErrEmptyKey = errors.New("store: empty key")

// Namespace scopes keys to one client and shard count so several bots can
// share a backend.
type Namespace struct {
	ClientID string
	Shards   int
}

// Key returns the physical key for a logical one.
func (n Namespace) Key(key string) string {
	return fmt.Sprintf("%s_%s_%d", key, n.ClientID, n.Shards)
}

// expires reports whether key is subject to the TTL.
func expires(key string) bool {
	return !strings.HasPrefix(key, SessionPrefix)
}

func checkKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	return nil
}
