package wire

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestDecoderReadFrame(t *testing.T) {
	r := strings.NewReader("{\"event\":\"a\"}\n{\"event\":\"b\"}\n")
	d := NewDecoder(r, 0)

	frame, err := d.ReadFrame()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(frame) != `{"event":"a"}` {
		t.Errorf("frame = %q, want %q", frame, `{"event":"a"}`)
	}

	frame, err = d.ReadFrame()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(frame) != `{"event":"b"}` {
		t.Errorf("frame = %q, want %q", frame, `{"event":"b"}`)
	}

	_, err = d.ReadFrame()
	if err != io.EOF {
		t.Errorf("err = %v, want io.EOF", err)
	}
}

func TestDecoderDiscardsPartialTrailingData(t *testing.T) {
	r := strings.NewReader("{\"event\":\"a\"}\n{\"event\":\"incomple")
	d := NewDecoder(r, 0)

	frame, err := d.ReadFrame()
	if err != nil || string(frame) != `{"event":"a"}` {
		t.Fatalf("first frame = %q, err = %v", frame, err)
	}

	_, err = d.ReadFrame()
	if err != io.EOF {
		t.Errorf("err = %v, want io.EOF for partial trailing frame", err)
	}
}

func TestDecoderFrameTooLarge(t *testing.T) {
	big := strings.Repeat("x", 100)
	r := strings.NewReader(big + "\n")
	d := NewDecoder(r, 10)

	_, err := d.ReadFrame()
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("err = %v, want ErrFrameTooLarge", err)
	}
}

func TestDecodeMessageMalformedIsNonFatal(t *testing.T) {
	r := strings.NewReader("not json\n{\"event\":\"ok\"}\n")
	d := NewDecoder(r, 0)

	_, err := d.DecodeMessage()
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *ParseError", err)
	}

	msg, err := d.DecodeMessage()
	if err != nil {
		t.Fatalf("unexpected error after malformed frame: %v", err)
	}
	if msg["event"] != "ok" {
		t.Errorf("msg = %v, want event=ok", msg)
	}
}

func TestEncoderEncode(t *testing.T) {
	var buf bytes.Buffer
	e := NewEncoder(&buf)

	if err := e.Encode(map[string]any{"event": "ping"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got, want := buf.String(), "{\"event\":\"ping\"}\n"; got != want {
		t.Errorf("encoded = %q, want %q", got, want)
	}
}

func TestEncodeFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeFrame(&buf, []byte(`{"event":"x"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := buf.String(), "{\"event\":\"x\"}\n"; got != want {
		t.Errorf("framed = %q, want %q", got, want)
	}
}
