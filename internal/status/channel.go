package status

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

// maxFrameBytes bounds a single decoded frame. Status frames are short; a
// larger length prefix indicates a corrupt or hostile stream.
const maxFrameBytes = 1 << 20

// StreamChannel frames multipart messages onto a byte stream for transports
// that deliver ordered, reliable bytes. Each message is a big-endian uint32
// frame count followed by, per frame, a uint32 length and the frame bytes.
// Sends are serialized so concurrent sessions never interleave frames.
type StreamChannel struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStreamChannel wraps w as a Channel.
func NewStreamChannel(w io.Writer) *StreamChannel {
	return &StreamChannel{w: w}
}

// SendMultipart writes one framed message.
func (c *StreamChannel) SendMultipart(frames ...[]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := binary.Write(c.w, binary.BigEndian, uint32(len(frames))); err != nil {
		return fmt.Errorf("write frame count: %w", err)
	}
	for _, frame := range frames {
		if err := binary.Write(c.w, binary.BigEndian, uint32(len(frame))); err != nil {
			return fmt.Errorf("write frame length: %w", err)
		}
		if _, err := c.w.Write(frame); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
	}
	return nil
}

// ReadMultipart reads one framed message written by SendMultipart. It
// returns io.EOF when the stream ends cleanly between messages.
func ReadMultipart(r io.Reader) ([][]byte, error) {
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame count: %w", err)
	}

	frames := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return nil, fmt.Errorf("read frame length: %w", err)
		}
		if n > maxFrameBytes {
			return nil, fmt.Errorf("frame of %d bytes exceeds limit", n)
		}
		frame := make([]byte, n)
		if _, err := io.ReadFull(r, frame); err != nil {
			return nil, fmt.Errorf("read frame: %w", err)
		}
		frames = append(frames, frame)
	}
	return frames, nil
}
