package transport

import (
	"bytes"
	"errors"
	"testing"
)

func TestFramerRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	f := newFramer(&buf, &buf)

	frames := [][]byte{
		[]byte(`{"type":"address"}`),
		[]byte{},
		[]byte(`{"type":"chat","payload":{"message":"hi"}}`),
	}
	for _, frame := range frames {
		if err := f.writeFrame(frame); err != nil {
			t.Fatalf("writeFrame: %v", err)
		}
	}

	for i, want := range frames {
		got, err := f.readFrame()
		if err != nil {
			t.Fatalf("readFrame %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("frame %d = %q, want %q", i, got, want)
		}
	}
}

func TestFramerRejectsOversizedWrite(t *testing.T) {
	var buf bytes.Buffer
	f := newFramer(&buf, &buf)

	if err := f.writeFrame(make([]byte, maxLANFrame+1)); !errors.Is(err, errFrameTooLarge) {
		t.Errorf("err = %v, want errFrameTooLarge", err)
	}
	if buf.Len() != 0 {
		t.Error("rejected frame must write nothing")
	}
}

func TestFramerRejectsOversizedRead(t *testing.T) {
	// A hostile length prefix must not cause a huge allocation
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})

	f := newFramer(&buf, &buf)
	if _, err := f.readFrame(); !errors.Is(err, errFrameTooLarge) {
		t.Errorf("err = %v, want errFrameTooLarge", err)
	}
}

func TestFramerShortRead(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x00, 0x00, 0x10, 0x01})

	f := newFramer(&buf, &buf)
	if _, err := f.readFrame(); err == nil {
		t.Error("truncated frame must error")
	}
}
