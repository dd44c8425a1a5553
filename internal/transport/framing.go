package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// maxLANFrame caps a single LAN frame (256 KB, same as tracker frames)
const maxLANFrame = 256 * 1024

// errFrameTooLarge is returned when a frame exceeds maxLANFrame
var errFrameTooLarge = errors.New("frame too large")

// framer handles length-prefixed framing on direct LAN connections
type framer struct {
	reader io.Reader
	writer io.Writer
}

func newFramer(r io.Reader, w io.Writer) *framer {
	return &framer{reader: r, writer: w}
}

// readFrame reads one length-prefixed frame
func (f *framer) readFrame() ([]byte, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(f.reader, lengthBuf[:]); err != nil {
		return nil, fmt.Errorf("read length: %w", err)
	}

	length := binary.BigEndian.Uint32(lengthBuf[:])
	if length > maxLANFrame {
		return nil, errFrameTooLarge
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(f.reader, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// writeFrame writes one length-prefixed frame
func (f *framer) writeFrame(data []byte) error {
	if len(data) > maxLANFrame {
		return errFrameTooLarge
	}

	var lengthBuf [4]byte
	binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(data)))

	if _, err := f.writer.Write(lengthBuf[:]); err != nil {
		return fmt.Errorf("write length: %w", err)
	}
	if _, err := f.writer.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}
