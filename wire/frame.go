// Package wire implements the broker's line-delimited JSON framing.
//
// Frames are UTF-8 JSON objects terminated by a single '\n'. There is no
// length prefix: the newline is the only framing signal, which is safe
// because a JSON string cannot contain a raw newline byte. The package
// exposes a Decoder for the read side and an Encoder for the write side,
// mirroring the split smux.Session makes between its read loop and its
// write loop.
package wire

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
)

// DefaultMaxFrameBytes is the inbound frame ceiling, including the
// terminating newline.
const DefaultMaxFrameBytes = 5 << 20 // 5 MiB

// ErrFrameTooLarge is returned when an inbound frame, terminator included,
// exceeds the decoder's configured limit, whether or not its terminator
// has been read yet. It is fatal to the connection that produced it.
var ErrFrameTooLarge = errors.New("wire: frame exceeds maximum size")

// ParseError wraps a frame that was read successfully but did not parse as
// a JSON object. Unlike ErrFrameTooLarge, a ParseError is never fatal: the
// caller is expected to drop the frame and keep reading.
type ParseError struct {
	Raw []byte
	Err error
}

func (e *ParseError) Error() string {
	return "wire: malformed frame: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// Decoder reads newline-terminated JSON frames from a byte stream.
type Decoder struct {
	r        *bufio.Reader
	maxFrame int
}

// NewDecoder wraps r with a Decoder that rejects frames longer than
// maxFrame bytes (terminator included). A maxFrame of 0 selects
// DefaultMaxFrameBytes.
func NewDecoder(r io.Reader, maxFrame int) *Decoder {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrameBytes
	}
	return &Decoder{r: bufio.NewReaderSize(r, 4096), maxFrame: maxFrame}
}

// ReadFrame returns the next frame's payload with the terminator stripped.
//
// On EOF with no trailing newline, any partial bytes already read are
// discarded and io.EOF is returned, per the broker's "partial data at
// end-of-stream is discarded" rule. ErrFrameTooLarge is returned, and the
// connection should be torn down, as soon as the accumulated bytes of the
// frame, terminator included, exceed the configured limit.
func (d *Decoder) ReadFrame() ([]byte, error) {
	var buf []byte
	for {
		chunk, err := d.r.ReadSlice('\n')
		buf = append(buf, chunk...)
		if len(buf) > d.maxFrame {
			return nil, ErrFrameTooLarge
		}
		switch err {
		case nil:
			return buf[:len(buf)-1], nil
		case bufio.ErrBufferFull:
			continue
		case io.EOF:
			return nil, io.EOF
		default:
			return nil, err
		}
	}
}

// DecodeMessage reads the next frame and unmarshals it into a generic
// message map. A malformed frame is reported as *ParseError rather than
// the underlying json error, so callers can distinguish it from I/O
// failures with errors.As.
func (d *Decoder) DecodeMessage() (map[string]any, error) {
	raw, err := d.ReadFrame()
	if err != nil {
		return nil, err
	}
	var msg map[string]any
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}
	return msg, nil
}

// Encoder serializes values as newline-terminated JSON frames.
type Encoder struct {
	w io.Writer
}

// NewEncoder wraps w with an Encoder.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode marshals v and writes it as a single frame, terminator included.
// The marshal-then-append-newline-then-write sequence happens before any
// byte reaches w, so a partial write can never split a frame.
func (e *Encoder) Encode(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = e.w.Write(b)
	return err
}

// EncodeFrame writes a pre-serialized frame body, appending the terminator.
// Used by the broker when it already holds marshaled bytes (e.g. a frame
// being relayed unchanged to another recipient).
func EncodeFrame(w io.Writer, body []byte) error {
	framed := make([]byte, 0, len(body)+1)
	framed = append(framed, body...)
	framed = append(framed, '\n')
	_, err := w.Write(framed)
	return err
}
