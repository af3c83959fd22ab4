package transport

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/dmq-protocol/dmq-go/pkg/frame"
)

func mustFrame(t *testing.T, id, seq uint16, payload []byte) []byte {
	t.Helper()
	b, err := frame.Encode(id, seq, payload)
	if err != nil {
		t.Fatalf("frame.Encode failed: %v", err)
	}
	return b
}

func TestFrameWriterReader(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty payload", nil},
		{"single byte", []byte{0x42}},
		{"medium", bytes.Repeat([]byte("x"), 1000)},
		{"max size", bytes.Repeat([]byte("y"), frame.MaxPayloadSize)},
		{"contains marker", []byte{0xAA, 0x55, 0xAA, 0x55}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			want := mustFrame(t, 2, 11, tt.payload)

			if err := NewFrameWriter(buf).WriteFrame(want); err != nil {
				t.Fatalf("WriteFrame failed: %v", err)
			}
			if buf.Len() != frame.Size(len(tt.payload)) {
				t.Errorf("stream size = %d, want %d", buf.Len(), frame.Size(len(tt.payload)))
			}

			got, err := NewFrameReader(buf).ReadFrame()
			if err != nil {
				t.Fatalf("ReadFrame failed: %v", err)
			}
			if !bytes.Equal(got, want) {
				t.Error("frame mismatch")
			}
		})
	}
}

func TestFrameReaderSequence(t *testing.T) {
	buf := new(bytes.Buffer)
	w := NewFrameWriter(buf)
	for seq := uint16(1); seq <= 3; seq++ {
		if err := w.WriteFrame(mustFrame(t, 3, seq, []byte{byte(seq)})); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.WriteFrame(frame.EncodeAck(3)); err != nil {
		t.Fatal(err)
	}

	r := NewFrameReader(buf)
	for seq := uint16(1); seq <= 4; seq++ {
		data, err := r.ReadFrame()
		if err != nil {
			t.Fatalf("frame %d: %v", seq, err)
		}
		f, err := frame.Decode(data)
		if err != nil {
			t.Fatalf("frame %d: decode: %v", seq, err)
		}
		if seq < 4 && f.Seq != seq {
			t.Errorf("frame %d: seq = %d", seq, f.Seq)
		}
		if seq == 4 && !f.IsAck() {
			t.Error("last frame should be an ACK")
		}
	}
	if _, err := r.ReadFrame(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestFrameReaderResync(t *testing.T) {
	want := mustFrame(t, 4, 9, []byte{0x92, 0x01, 0xc3})

	stream := append([]byte{0x00, 0x01, 0xAA, 0x02, 0x55}, want...)
	r := NewFrameReader(bytes.NewReader(stream))

	got, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("got % x, want % x", got, want)
	}
	if r.Skipped() != 5 {
		t.Errorf("Skipped = %d, want 5", r.Skipped())
	}
}

func TestFrameReaderTruncated(t *testing.T) {
	full := mustFrame(t, 1, 1, []byte("truncated payload"))

	tests := []struct {
		name string
		data []byte
	}{
		{"partial header", full[:5]},
		{"partial payload", full[:len(full)-3]},
		{"junk only", []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFrameReader(bytes.NewReader(tt.data)).ReadFrame()
			if !errors.Is(err, ErrFrameTruncated) {
				t.Errorf("expected ErrFrameTruncated, got %v", err)
			}
		})
	}
}

func TestFrameWriterRejectsMalformed(t *testing.T) {
	good := mustFrame(t, 1, 1, []byte{1, 2, 3})

	tests := []struct {
		name string
		data []byte
	}{
		{"short", good[:4]},
		{"bad marker", append([]byte{0x00, 0x00}, good[2:]...)},
		{"length mismatch", good[:len(good)-1]},
		{"trailing bytes", append(append([]byte{}, good...), 0xff)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			err := NewFrameWriter(buf).WriteFrame(tt.data)
			if !errors.Is(err, ErrMalformedFrame) {
				t.Errorf("expected ErrMalformedFrame, got %v", err)
			}
			if buf.Len() != 0 {
				t.Error("nothing should be written")
			}
		})
	}
}

func TestFrameWriterConcurrent(t *testing.T) {
	var buf bytes.Buffer
	var mu sync.Mutex
	w := NewFrameWriter(writerFunc(func(p []byte) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		return buf.Write(p)
	}))

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func(id uint16) {
			defer wg.Done()
			for seq := range uint16(20) {
				b, _ := frame.Encode(id, seq, bytes.Repeat([]byte{byte(id)}, 50))
				if err := w.WriteFrame(b); err != nil {
					t.Error(err)
				}
			}
		}(uint16(i + 1))
	}
	wg.Wait()

	r := NewFrameReader(&buf)
	for i := range 200 {
		data, err := r.ReadFrame()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		f, _ := frame.Decode(data)
		if !bytes.Equal(f.Payload, bytes.Repeat([]byte{byte(f.ID)}, 50)) {
			t.Fatalf("frame %d interleaved", i)
		}
	}
	if r.Skipped() != 0 {
		t.Errorf("Skipped = %d", r.Skipped())
	}
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
