package jim

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Codec errors.
var (
	// ErrMalformedFrame marks input that is not a JSON object: parse
	// failures and non-object top-level values alike.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrFrameTooLarge marks payloads over MaxFrameBytes, on either side
	// of the wire.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
)

// Marshal encodes a frame to its JSON payload, enforcing the size cap.
func Marshal(f Frame) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: nil frame", ErrMalformedFrame)
	}
	payload, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if len(payload) > MaxFrameBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	return payload, nil
}

// Unmarshal decodes a JSON payload into a frame. Anything that is not a
// JSON object is malformed.
func Unmarshal(payload []byte) (Frame, error) {
	if len(payload) > MaxFrameBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: top-level value is not an object", ErrMalformedFrame)
	}
	return Frame(obj), nil
}

// WriteFrame encodes f and writes it to w as one length-prefixed record:
// a 4-byte big-endian payload length followed by the JSON payload. The
// prefix and payload go out in a single Write call so a frame is never
// split across writes on our side.
func WriteFrame(w io.Writer, f Frame) error {
	payload, err := Marshal(f)
	if err != nil {
		return err
	}

	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(payload)))
	copy(buf[4:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r. It returns
// ErrFrameTooLarge when the prefix announces a payload over the cap and
// ErrMalformedFrame when the payload does not decode to a JSON object.
// Transport errors (including io.EOF on a clean close) pass through.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > MaxFrameBytes {
		return nil, fmt.Errorf("%w: announced %d bytes", ErrFrameTooLarge, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}

	return Unmarshal(payload)
}
