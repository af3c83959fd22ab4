package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dmq-protocol/dmq-go/pkg/frame"
)

// Framing errors.
var (
	// ErrFrameTruncated indicates the stream ended inside a frame.
	ErrFrameTruncated = errors.New("frame truncated")

	// ErrMalformedFrame indicates a write whose bytes are not one
	// complete frame.
	ErrMalformedFrame = errors.New("malformed frame")
)

// FrameWriter writes DMQ frames to a byte stream. The frame header is
// the delimiter, so frames are written as-is.
type FrameWriter struct {
	w  io.Writer
	mu sync.Mutex
}

// NewFrameWriter creates a new frame writer.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// WriteFrame writes one encoded frame. data must hold exactly one
// frame with a valid header. Safe for concurrent use.
func (fw *FrameWriter) WriteFrame(data []byte) error {
	h, err := frame.DecodeHeader(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if want := frame.Size(int(h.Length)); len(data) != want {
		return fmt.Errorf("%w: %d bytes, header declares %d", ErrMalformedFrame, len(data), want)
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()
	if _, err := fw.w.Write(data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// FrameReader reads DMQ frames from a byte stream.
//
// When the bytes at a frame boundary do not start with the marker the
// reader discards input one byte at a time until it finds the next
// marker. Discarded bytes are counted in Skipped.
type FrameReader struct {
	r       io.Reader
	header  [frame.HeaderSize]byte
	skipped uint64
}

// NewFrameReader creates a new frame reader.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r}
}

// ReadFrame returns the next complete frame, header included.
// It returns io.EOF when the stream ends cleanly between frames.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	if err := fr.readFull(fr.header[:]); err != nil {
		if err == io.EOF {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read frame header: %w", err)
	}

	h, err := fr.sync()
	if err != nil {
		return nil, err
	}

	data := make([]byte, frame.Size(int(h.Length)))
	copy(data, fr.header[:])
	if err := fr.readFull(data[frame.HeaderSize:]); err != nil {
		if err == io.EOF {
			return nil, ErrFrameTruncated
		}
		return nil, fmt.Errorf("failed to read frame payload: %w", err)
	}
	return data, nil
}

// sync shifts the header window until it starts with the marker.
func (fr *FrameReader) sync() (frame.Header, error) {
	for {
		h, err := frame.DecodeHeader(fr.header[:])
		if err == nil {
			return h, nil
		}
		copy(fr.header[:], fr.header[1:])
		fr.skipped++
		if err := fr.readFull(fr.header[frame.HeaderSize-1:]); err != nil {
			if err == io.EOF {
				return frame.Header{}, ErrFrameTruncated
			}
			return frame.Header{}, err
		}
	}
}

func (fr *FrameReader) readFull(b []byte) error {
	_, err := io.ReadFull(fr.r, b)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrFrameTruncated
	}
	return err
}

// Skipped returns the number of bytes discarded while resynchronizing.
func (fr *FrameReader) Skipped() uint64 {
	return fr.skipped
}

// Framer combines frame reading and writing on one stream.
type Framer struct {
	*FrameReader
	*FrameWriter
}

// NewFramer creates a framer for bidirectional communication.
func NewFramer(rw io.ReadWriter) *Framer {
	return &Framer{
		FrameReader: NewFrameReader(rw),
		FrameWriter: NewFrameWriter(rw),
	}
}
