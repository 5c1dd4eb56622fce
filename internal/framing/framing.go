package framing

import (
	"encoding/binary"
	"errors"
	"io"
)

// HeaderSize is the length of the big-endian length prefix.
const HeaderSize = 4

// MaxPayload bounds a single message. A 4K JPEG frame is a few MiB, so this
// leaves plenty of headroom while keeping a corrupt prefix from allocating
// gigabytes.
const MaxPayload = 64 << 20

// Send writes one message: the payload length as a uint32 big-endian prefix
// followed by the payload. It returns only once every byte has been handed to
// w, retrying short writes.
func Send(w io.Writer, payload []byte) error {
	if len(payload) > MaxPayload {
		return &ProtocolError{Reason: "payload too large", Length: uint32(len(payload))}
	}

	var hdr [HeaderSize]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))

	if err := writeFull(w, hdr[:]); err != nil {
		return err
	}
	return writeFull(w, payload)
}

// Receive reads one message written by Send and returns its payload.
func Receive(r io.Reader) ([]byte, error) {
	return receive(r, make([]byte, HeaderSize), MaxPayload)
}

// Reader reads consecutive messages from a stream, reusing its header buffer.
type Reader struct {
	r     io.Reader
	hdr   [HeaderSize]byte
	limit int
}

// NewReader returns a Reader over r. A limit of zero or less means MaxPayload.
func NewReader(r io.Reader, limit int) *Reader {
	if limit <= 0 || limit > MaxPayload {
		limit = MaxPayload
	}
	return &Reader{r: r, limit: limit}
}

// Next returns the payload of the next message.
func (fr *Reader) Next() ([]byte, error) {
	return receive(fr.r, fr.hdr[:], fr.limit)
}

func receive(r io.Reader, hdr []byte, limit int) ([]byte, error) {
	if _, err := io.ReadFull(r, hdr); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return nil, ErrConnectionClosed
		case errors.Is(err, io.ErrUnexpectedEOF):
			return nil, &ProtocolError{Reason: "truncated length prefix", Err: ErrConnectionClosed}
		default:
			return nil, &ConnectionError{Op: "read", Err: err}
		}
	}

	length := binary.BigEndian.Uint32(hdr)
	if uint64(length) > uint64(limit) {
		return nil, &ProtocolError{Reason: "payload exceeds limit", Length: length}
	}

	payload := make([]byte, length)
	if length == 0 {
		return payload, nil
	}
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &ProtocolError{Reason: "truncated payload", Length: length, Err: ErrConnectionClosed}
		}
		return nil, &ConnectionError{Op: "read", Err: err}
	}
	return payload, nil
}

func writeFull(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return &ConnectionError{Op: "write", Err: err}
		}
		if n == 0 {
			return &ConnectionError{Op: "write", Err: io.ErrShortWrite}
		}
		buf = buf[n:]
	}
	return nil
}
