package lavalink

import (
	"context"
	"errors"
	"fmt"

	"github.com/liuran001/sonatica-go/sonatica/codec"
	"github.com/liuran001/sonatica-go/sonatica/protocol"
	"github.com/liuran001/sonatica-go/sonatica/selector"
)

// DecodeTracks decodes blobs locally, in order. When any blob fails to
// decode the whole batch is sent to a node instead. The result always has
// one entry per blob.
func (m *Manager) DecodeTracks(ctx context.Context, encoded []string) ([]protocol.TrackData, error) {
	if len(encoded) == 0 {
		return nil, nil
	}
	out := make([]protocol.TrackData, 0, len(encoded))
	var localErr error
	for i, blob := range encoded {
		data, _, err := codec.Decode(blob)
		if err != nil {
			localErr = fmt.Errorf("track %d: %w", i, err)
			break
		}
		out = append(out, *data)
	}
	if localErr == nil {
		return out, nil
	}

	node, ok := selector.First(m.Nodes(), m.opts.Sorter, func(n *Node) bool {
		return n.reachable()
	})
	if !ok {
		return nil, errors.Join(localErr, ErrNoNodesAvailable)
	}
	remote, err := node.DecodeTracks(ctx, encoded)
	if err != nil {
		return nil, errors.Join(localErr, err)
	}
	if len(remote) != len(encoded) {
		return nil, errors.Join(localErr, fmt.Errorf("%w: node returned %d of %d tracks", ErrDecode, len(remote), len(encoded)))
	}
	return remote, nil
}

// DecodeTrack decodes a single blob, falling back to a node like
// DecodeTracks.
func (m *Manager) DecodeTrack(ctx context.Context, encoded string) (*Track, error) {
	data, err := m.DecodeTracks(ctx, []string{encoded})
	if err != nil {
		return nil, err
	}
	if len(data) != 1 {
		return nil, fmt.Errorf("%w: node returned %d tracks", ErrDecode, len(data))
	}
	return NewTrack(data[0], nil), nil
}
