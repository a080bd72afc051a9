// Package feed implements the shared-memory information channel. One match
// has one channel: a memory-mapped ring of fixed-size frames written
// exclusively by the matching loop and mapped read-only by every trader
// process. All readers observe the identical snapshot stream with equal
// latency; there is no per-connection delivery and no guaranteed delivery
// of intermediate states, only convergence to the latest.
package feed

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

const (
	// BufferSize is the total size of the mapped region; must be a power
	// of two so the ring position can wrap with a mask.
	BufferSize = 8192
	// FrameSize is the stride of one frame in the ring.
	FrameSize       = 128
	frameHeaderSize = 8
	// MaxPayload is the largest message a frame can carry.
	MaxPayload = FrameSize - frameHeaderSize
)

var ErrPayloadTooLarge = errors.New("payload is longer than maximum payload length")

// Each frame: ready flag (4 bytes, 0 until the frame is complete), payload
// length (4 bytes big-endian) and up to MaxPayload bytes of payload. The
// writer clears the next frame's ready flag before raising the current
// one, so a reader that keeps up never observes a torn frame.

// Publisher is the writer side of the information channel.
type Publisher struct {
	file *os.File
	buf  []byte
	pos  int
}

// NewPublisher creates (truncating if present) the channel file at path and
// maps it for writing.
func NewPublisher(path string) (*Publisher, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create information channel: %w", err)
	}
	if err := f.Truncate(BufferSize); err != nil {
		f.Close()
		return nil, err
	}
	buf, err := unix.Mmap(int(f.Fd()), 0, BufferSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to map information channel: %w", err)
	}
	return &Publisher{file: f, buf: buf}, nil
}

// Publish writes one payload into the next frame and makes it visible.
// Called only from the matching loop.
func (p *Publisher) Publish(payload []byte) error {
	if len(payload) > MaxPayload {
		return ErrPayloadTooLarge
	}
	if p.buf == nil {
		return nil
	}

	pos := p.pos
	putUint32(p.buf[pos+4:], uint32(len(payload)))
	copy(p.buf[pos+frameHeaderSize:pos+frameHeaderSize+len(payload)], payload)
	p.pos = (pos + FrameSize) & (BufferSize - 1)
	p.buf[p.pos] = 0
	p.buf[pos] = 1
	return nil
}

// Close unmaps and closes the channel file.
func (p *Publisher) Close() error {
	if p.buf != nil {
		unix.Munmap(p.buf)
		p.buf = nil
	}
	if p.file != nil {
		err := p.file.Close()
		p.file = nil
		return err
	}
	return nil
}

// Subscriber is the reader side, mapping the channel read-only.
type Subscriber struct {
	file *os.File
	buf  []byte
	pos  int
}

// OpenSubscriber maps an existing channel file for reading.
func OpenSubscriber(path string) (*Subscriber, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open information channel: %w", err)
	}
	buf, err := unix.Mmap(int(f.Fd()), 0, BufferSize, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to map information channel: %w", err)
	}
	return &Subscriber{file: f, buf: buf}, nil
}

// Poll returns the next published frame payload, or ok=false when no new
// frame is ready yet. The returned slice is a copy and safe to retain.
func (s *Subscriber) Poll() (payload []byte, ok bool) {
	if s.buf == nil || s.buf[s.pos] == 0 {
		return nil, false
	}
	length := int(getUint32(s.buf[s.pos+4:]))
	if length > MaxPayload {
		return nil, false
	}
	start := s.pos + frameHeaderSize
	payload = append([]byte(nil), s.buf[start:start+length]...)
	s.pos = (s.pos + FrameSize) & (BufferSize - 1)
	return payload, true
}

// Close unmaps and closes the channel file.
func (s *Subscriber) Close() error {
	if s.buf != nil {
		unix.Munmap(s.buf)
		s.buf = nil
	}
	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func getUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
