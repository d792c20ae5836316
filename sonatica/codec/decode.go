// Package codec reads and writes the binary track identifier used by
// Lavalink nodes (message versions 1 through 3).
package codec

import (
	"encoding/base64"
	"encoding/binary"

	"github.com/liuran001/sonatica-go/sonatica/protocol"
)

const (
	sizeMask     = 0x3FFFFFFF
	flagVersion  = 1
	flagShift    = 30
	maxVersion   = 3
	maxStringLen = 0xFFFF
)

// Decode parses an encoded track. On failure the returned TrackData holds
// every field read before the error.
func Decode(encoded string) (*protocol.TrackData, int, error) {
	track := &protocol.TrackData{Encoded: encoded}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return track, 0, &DecodeError{Reason: ErrInvalidBase64, Cause: err}
	}

	r := &reader{buf: raw}
	header := r.readUint32()
	if r.err != nil {
		return track, 0, &DecodeError{Reason: r.err}
	}

	flags := header >> flagShift
	size := int(header & sizeMask)
	if size == 0 {
		return track, 0, &DecodeError{Reason: ErrEmptyMessage}
	}
	if end := 4 + size; end < len(r.buf) {
		r.buf = r.buf[:end]
	}

	version := 1
	if flags&flagVersion != 0 {
		version = int(r.readByte())
		if r.err != nil {
			return track, 0, &DecodeError{Reason: r.err}
		}
		if version < 1 || version > maxVersion {
			return track, version, &DecodeError{Reason: ErrUnsupportedVersion}
		}
	}

	info := &track.Info
	info.IsSeekable = true
	info.Title = r.readString()
	info.Author = r.readString()
	info.Length = r.readInt64()
	info.Identifier = r.readString()
	info.IsStream = r.readBool()
	if version >= 2 {
		info.URI = r.readNullable()
	}
	if version >= 3 {
		info.ArtworkURL = r.readNullable()
		info.ISRC = r.readNullable()
	}
	info.SourceName = r.readString()
	info.Position = r.readInt64()

	if r.err != nil {
		return track, version, &DecodeError{Reason: r.err}
	}
	return track, version, nil
}

// DecodeAll decodes every blob in order. It stops at the first failure and
// reports its index.
func DecodeAll(encoded []string) ([]protocol.TrackData, int, error) {
	out := make([]protocol.TrackData, 0, len(encoded))
	for i, blob := range encoded {
		track, _, err := Decode(blob)
		if err != nil {
			return out, i, err
		}
		out = append(out, *track)
	}
	return out, -1, nil
}

type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.err = ErrBufferOverflow
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) readByte() byte {
	b := r.next(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) readBool() bool {
	return r.readByte() != 0
}

func (r *reader) readUint32() uint32 {
	b := r.next(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *reader) readInt64() int64 {
	b := r.next(8)
	if b == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

func (r *reader) readString() string {
	lb := r.next(2)
	if lb == nil {
		return ""
	}
	b := r.next(int(binary.BigEndian.Uint16(lb)))
	if b == nil {
		return ""
	}
	return string(b)
}

func (r *reader) readNullable() *string {
	if !r.readBool() || r.err != nil {
		return nil
	}
	s := r.readString()
	if r.err != nil {
		return nil
	}
	return &s
}
