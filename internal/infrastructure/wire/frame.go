package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"

	dserrors "github.com/dspash/dspash-go/internal/pkg/errors"
)

// MaxFrameSize bounds a single frame's payload, guarding against a garbled
// length prefix turning into an unbounded read.
const MaxFrameSize = 64 << 20

// WriteFrame gob-encodes msg and writes it as a 4-byte big-endian length
// prefix followed by the payload, mirroring the original protocol's
// send_msg framing.
func WriteFrame(w io.Writer, msg Message) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return dserrors.Internal("wire: encode frame", err)
	}
	if buf.Len() > MaxFrameSize {
		return dserrors.Protocol("local", fmt.Sprintf("frame too large: %d bytes", buf.Len()))
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(buf.Len()))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return dserrors.WorkerUnreachable("", "", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return dserrors.WorkerUnreachable("", "", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed, gob-encoded Message from r. Mirrors
// the original protocol's recv_msg.
func ReadFrame(r io.Reader) (Message, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return Message{}, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > MaxFrameSize {
		return Message{}, dserrors.Protocol("peer", fmt.Sprintf("frame too large: %d bytes", n))
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Message{}, dserrors.Protocol("peer", "short frame body")
	}
	var msg Message
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&msg); err != nil {
		return Message{}, dserrors.Protocol("peer", "undecodable frame: "+err.Error())
	}
	return msg, nil
}
