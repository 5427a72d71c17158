package camera

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// Wire format: every message is an 8-byte unsigned big-endian length
// followed by exactly that many payload bytes. The first message on a
// connection is the handshake and carries the device identifier as UTF-8;
// all subsequent messages carry encoded image frames.

const (
	lengthPrefixBytes = 8

	// DefaultMaxFrameBytes bounds a frame payload. Anything larger is
	// assumed to be stream corruption and is connection-fatal.
	DefaultMaxFrameBytes = 8 << 20

	// MaxHandshakeBytes bounds the device identifier payload.
	MaxHandshakeBytes = 256
)

var (
	// ErrOversizedMessage reports a length prefix above the sanity bound.
	ErrOversizedMessage = errors.New("camera: message exceeds size bound")

	// ErrEmptyMessage reports a zero-length message, which the protocol
	// does not allow for either handshakes or frames.
	ErrEmptyMessage = errors.New("camera: empty message")

	// ErrBadHandshake reports a handshake payload that is not a valid
	// device identifier.
	ErrBadHandshake = errors.New("camera: invalid handshake")
)

// MessageReader reads length-prefixed messages from a producer stream.
type MessageReader struct {
	r        *bufio.Reader
	maxBytes uint64
	header   [lengthPrefixBytes]byte
}

// NewMessageReader wraps r with a message reader. maxBytes bounds frame
// payloads; zero selects DefaultMaxFrameBytes.
func NewMessageReader(r io.Reader, maxBytes uint64) *MessageReader {
	if maxBytes == 0 {
		maxBytes = DefaultMaxFrameBytes
	}
	return &MessageReader{
		r:        bufio.NewReaderSize(r, 64<<10),
		maxBytes: maxBytes,
	}
}

// Next reads one complete message. A short read before the declared length
// arrives surfaces as an error (io.ErrUnexpectedEOF for truncation), which
// callers treat as connection-fatal.
func (mr *MessageReader) Next() ([]byte, error) {
	if _, err := io.ReadFull(mr.r, mr.header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint64(mr.header[:])
	if n == 0 {
		return nil, ErrEmptyMessage
	}
	if n > mr.maxBytes {
		return nil, fmt.Errorf("%w: declared %d bytes, bound %d", ErrOversizedMessage, n, mr.maxBytes)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(mr.r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// Handshake reads the first message on a connection and validates it as a
// device identifier. The identifier must be non-empty UTF-8 without
// control characters and at most MaxHandshakeBytes long.
func (mr *MessageReader) Handshake() (string, error) {
	if _, err := io.ReadFull(mr.r, mr.header[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint64(mr.header[:])
	if n == 0 || n > MaxHandshakeBytes {
		return "", fmt.Errorf("%w: device id length %d", ErrBadHandshake, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(mr.r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return "", err
	}
	id := string(payload)
	if !utf8.ValidString(id) {
		return "", fmt.Errorf("%w: device id is not valid UTF-8", ErrBadHandshake)
	}
	for _, r := range id {
		if r < 0x20 || r == 0x7f {
			return "", fmt.Errorf("%w: device id contains control characters", ErrBadHandshake)
		}
	}
	return id, nil
}

// WriteMessage writes one length-prefixed message. Used by the producer
// simulator and by tests; the server itself only reads.
func WriteMessage(w io.Writer, payload []byte) error {
	var header [lengthPrefixBytes]byte
	binary.BigEndian.PutUint64(header[:], uint64(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// WriteHandshake writes the device-identifier handshake message.
func WriteHandshake(w io.Writer, deviceID string) error {
	if deviceID == "" || len(deviceID) > MaxHandshakeBytes {
		return ErrBadHandshake
	}
	return WriteMessage(w, []byte(deviceID))
}
