package lavalink

import (
	"errors"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
	"github.com/liuran001/sonatica-go/sonatica/codec"
	"github.com/liuran001/sonatica-go/sonatica/rest"
)

// Errors that can be checked with errors.Is.
var (
	// ErrInvalidArgument is returned by setters given an out of range value.
	ErrInvalidArgument = errors.New("lavalink: invalid argument")

	// ErrNotReady is returned when an operation needs a voice channel, a
	// current track or an initialized manager that is missing.
	ErrNotReady = errors.New("lavalink: not ready")

	// ErrNoNodesAvailable is returned when no connected and enabled node fits.
	ErrNoNodesAvailable = errors.New("lavalink: no nodes available")

	// ErrPluginMissing is returned when the node lacks a required plugin.
	ErrPluginMissing = errors.New("lavalink: node plugin missing")

	// ErrUnresolvable is returned when a search finds no match for an
	// unresolved track.
	ErrUnresolvable = errors.New("lavalink: track could not be resolved")

	// ErrPlayerDestroyed is returned by operations on a destroyed player.
	ErrPlayerDestroyed = errors.New("lavalink: player destroyed")

	// ErrTransport matches every failed REST call.
	ErrTransport = rest.ErrTransport

	// ErrDecode matches every malformed track identifier.
	ErrDecode = codec.ErrDecode
)

// PlayerError attaches the guild and operation to a player failure.
type PlayerError struct {
	Guild snowflake.ID
	Op    string
	Err   error
}

func (e *PlayerError) Error() string {
	return fmt.Sprintf("player %s: %s: %v", e.Guild, e.Op, e.Err)
}

func (e *PlayerError) Unwrap() error {
	return e.Err
}

// NodeError attaches the node identifier and operation to a node failure.
type NodeError struct {
	Node string
	Op   string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %s: %v", e.Node, e.Op, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func notReady(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotReady, fmt.Sprintf(format, args...))
}
