package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/liuran001/sonatica-go/sonatica/protocol"
)

// Encode writes info in the given message version. Fields the version
// cannot carry are dropped.
func Encode(info protocol.TrackInfo, version int) (string, error) {
	if version < 1 || version > maxVersion {
		return "", fmt.Errorf("codec: encode version %d: %w", version, ErrUnsupportedVersion)
	}

	w := &writer{}
	if version > 1 {
		w.writeByte(byte(version))
	}
	w.writeString(info.Title)
	w.writeString(info.Author)
	w.writeInt64(info.Length)
	w.writeString(info.Identifier)
	w.writeBool(info.IsStream)
	if version >= 2 {
		w.writeNullable(info.URI)
	}
	if version >= 3 {
		w.writeNullable(info.ArtworkURL)
		w.writeNullable(info.ISRC)
	}
	w.writeString(info.SourceName)
	w.writeInt64(info.Position)
	if w.err != nil {
		return "", w.err
	}

	payload := w.buf.Bytes()
	if len(payload) > sizeMask {
		return "", ErrMessageTooLarge
	}

	header := uint32(len(payload))
	if version > 1 {
		header |= flagVersion << flagShift
	}

	out := make([]byte, 4, 4+len(payload))
	binary.BigEndian.PutUint32(out, header)
	out = append(out, payload...)
	return base64.StdEncoding.EncodeToString(out), nil
}

type writer struct {
	buf bytes.Buffer
	err error
}

func (w *writer) writeByte(b byte) {
	w.buf.WriteByte(b)
}

func (w *writer) writeBool(v bool) {
	if v {
		w.writeByte(1)
		return
	}
	w.writeByte(0)
}

func (w *writer) writeInt64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	w.buf.Write(b[:])
}

func (w *writer) writeString(s string) {
	if len(s) > maxStringLen {
		if w.err == nil {
			w.err = ErrStringTooLong
		}
		return
	}
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(len(s)))
	w.buf.Write(b[:])
	w.buf.WriteString(s)
}

func (w *writer) writeNullable(s *string) {
	if s == nil {
		w.writeBool(false)
		return
	}
	w.writeBool(true)
	w.writeString(*s)
}
