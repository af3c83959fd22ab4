package log

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dmq-protocol/dmq-go/pkg/frame"
)

func createTestLogFile(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test"+FileExt)

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create test log: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return path
}

func readAll(t *testing.T, r *Reader) []Event {
	t.Helper()
	var out []Event
	for {
		e, err := r.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		out = append(out, e)
	}
}

func TestEventCBORRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	events := []Event{
		{
			Timestamp: ts,
			SessionID: "s-1",
			Direction: DirectionOut,
			Layer:     LayerTransport,
			Category:  CategoryMessage,
			Endpoint:  "tcp://localhost:5556",
			Frame:     &FrameEvent{RemoteID: 3, Seq: 7, Size: 13, Data: []byte{0xaa, 0x55}},
		},
		{
			Timestamp:   ts,
			SessionID:   "s-1",
			Layer:       LayerSession,
			Category:    CategoryState,
			StateChange: &StateChangeEvent{Entity: StateEntitySession, OldState: "STOPPED", NewState: "RUNNING"},
		},
		{
			Timestamp: ts,
			SessionID: "s-1",
			Layer:     LayerWire,
			Category:  CategoryError,
			Error:     &ErrorEventData{Layer: LayerWire, Message: "arity mismatch", Context: "decode DATA"},
		},
	}

	for _, want := range events {
		data, err := EncodeEvent(want)
		if err != nil {
			t.Fatalf("EncodeEvent failed: %v", err)
		}
		got, err := DecodeEvent(data)
		if err != nil {
			t.Fatalf("DecodeEvent failed: %v", err)
		}
		if !got.Timestamp.Equal(want.Timestamp) {
			t.Errorf("timestamp: got %v, want %v", got.Timestamp, want.Timestamp)
		}
		if got.SessionID != want.SessionID || got.Layer != want.Layer || got.Category != want.Category {
			t.Errorf("header mismatch: got %+v", got)
		}
		if want.Frame != nil && (got.Frame == nil || got.Frame.Seq != 7 || !bytes.Equal(got.Frame.Data, want.Frame.Data)) {
			t.Errorf("frame mismatch: got %+v", got.Frame)
		}
		if want.StateChange != nil && (got.StateChange == nil || *got.StateChange != *want.StateChange) {
			t.Errorf("state mismatch: got %+v", got.StateChange)
		}
		if want.Error != nil && (got.Error == nil || *got.Error != *want.Error) {
			t.Errorf("error mismatch: got %+v", got.Error)
		}
	}
}

func TestNewFrameEvent(t *testing.T) {
	b, err := frame.Encode(4, 9, []byte{0x92, 0x01, 0xc3})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	e := NewFrameEvent("s", "inproc", DirectionOut, b)
	if e.Layer != LayerTransport || e.Category != CategoryMessage {
		t.Errorf("got layer=%v category=%v", e.Layer, e.Category)
	}
	if e.Frame.RemoteID != 4 || e.Frame.Seq != 9 || e.Frame.Size != len(b) {
		t.Errorf("got %+v", e.Frame)
	}

	ack := NewFrameEvent("s", "inproc", DirectionIn, frame.EncodeAck(9))
	if ack.Category != CategoryAck {
		t.Errorf("ack category: got %v", ack.Category)
	}

	// Garbage keeps the size but has no header fields.
	junk := NewFrameEvent("s", "inproc", DirectionIn, []byte{1, 2, 3})
	if junk.Frame.Size != 3 || junk.Frame.RemoteID != 0 {
		t.Errorf("junk: got %+v", junk.Frame)
	}
}

func TestNewFrameEventTruncates(t *testing.T) {
	b, err := frame.Encode(2, 1, make([]byte, MaxLogFrameDataSize*2))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	e := NewFrameEvent("s", "", DirectionIn, b)
	if !e.Frame.Truncated || len(e.Frame.Data) != MaxLogFrameDataSize {
		t.Errorf("expected truncation, got %d bytes truncated=%v", len(e.Frame.Data), e.Frame.Truncated)
	}
	if e.Frame.Size != len(b) {
		t.Errorf("size: got %d, want %d", e.Frame.Size, len(b))
	}
}

func TestSessionIDIsUUID(t *testing.T) {
	a, b := NewSessionID(), NewSessionID()
	if a == b {
		t.Fatal("session ids must differ")
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("not a uuid: %q", a)
	}
}

func TestFileLoggerAppendsAndIgnoresAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "append"+FileExt)

	for i := range 2 {
		l, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger failed: %v", err)
		}
		l.Log(Event{Timestamp: time.Now(), SessionID: string(rune('a' + i))})
		if err := l.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if err := l.Close(); err != nil {
			t.Fatalf("second Close failed: %v", err)
		}
		l.Log(Event{SessionID: "late"})
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	got := readAll(t, r)
	if len(got) != 2 || got[0].SessionID != "a" || got[1].SessionID != "b" {
		t.Errorf("got %+v", got)
	}
}

func TestFileLoggerConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concurrent"+FileExt)
	l, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				l.Log(Event{Timestamp: time.Now(), Frame: &FrameEvent{Size: 8}})
			}
		}()
	}
	wg.Wait()
	l.Close()

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()
	if got := len(readAll(t, r)); got != 400 {
		t.Errorf("got %d events, want 400", got)
	}
	if l.Dropped() != 0 {
		t.Errorf("dropped %d events", l.Dropped())
	}
}

func TestReaderFilters(t *testing.T) {
	ts := time.Now()
	events := []Event{
		{Timestamp: ts, SessionID: "s1", Direction: DirectionOut, Layer: LayerTransport, Category: CategoryMessage, Frame: &FrameEvent{RemoteID: 3}},
		{Timestamp: ts, SessionID: "s1", Direction: DirectionIn, Layer: LayerTransport, Category: CategoryAck, Frame: &FrameEvent{RemoteID: 0}},
		{Timestamp: ts, SessionID: "s1", Direction: DirectionIn, Layer: LayerWire, Category: CategoryMessage, Message: &MessageEvent{RemoteID: 2, Type: "DataMsg"}},
		{Timestamp: ts.Add(time.Hour), SessionID: "s2", Layer: LayerSession, Category: CategoryState, StateChange: &StateChangeEvent{NewState: "RUNNING"}},
	}
	path := createTestLogFile(t, events)

	in := DirectionIn
	wireLayer := LayerWire
	ack := CategoryAck
	id2 := uint16(2)
	cutoff := ts.Add(time.Minute)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"session", Filter{SessionID: "s2"}, 1},
		{"direction", Filter{Direction: &in}, 2},
		{"layer", Filter{Layer: &wireLayer}, 1},
		{"category", Filter{Category: &ack}, 1},
		{"remote id", Filter{RemoteID: &id2}, 1},
		{"time start", Filter{TimeStart: &cutoff}, 1},
		{"time end", Filter{TimeEnd: &cutoff}, 3},
		{"combined", Filter{Direction: &in, Layer: &wireLayer}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewFilteredReader(path, tt.filter)
			if err != nil {
				t.Fatalf("NewFilteredReader failed: %v", err)
			}
			defer r.Close()
			if got := len(readAll(t, r)); got != tt.want {
				t.Errorf("got %d events, want %d", got, tt.want)
			}
		})
	}
}

func TestReaderTruncatedFile(t *testing.T) {
	path := createTestLogFile(t, []Event{{Timestamp: time.Now(), SessionID: "whole"}})
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data[:len(data)-2], 0644); err != nil {
		t.Fatal(err)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()
	if _, err := r.Next(); err == nil || err == io.EOF {
		t.Errorf("expected decode error, got %v", err)
	}
}

func TestSlogAdapterLogsFrameEvent(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	adapter.Log(Event{
		Timestamp: time.Now(),
		SessionID: "s-123",
		Direction: DirectionIn,
		Layer:     LayerTransport,
		Category:  CategoryMessage,
		Frame:     &FrameEvent{RemoteID: 2, Seq: 40, Size: 256},
	})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if entry["session"] != "s-123" {
		t.Errorf("session: got %v", entry["session"])
	}
	if entry["direction"] != "IN" {
		t.Errorf("direction: got %v", entry["direction"])
	}
	if entry["seq"] != float64(40) {
		t.Errorf("seq: got %v", entry["seq"])
	}
	if entry["frame_size"] != float64(256) {
		t.Errorf("frame_size: got %v", entry["frame_size"])
	}
	if _, ok := entry["truncated"]; ok {
		t.Error("truncated should be omitted when false")
	}
}

func TestSlogAdapterSkipsBelowDebug(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	adapter.Log(Event{StateChange: &StateChangeEvent{NewState: "RUNNING"}})
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

type recordingLogger struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingLogger) Log(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func TestMultiLogger(t *testing.T) {
	a, b := &recordingLogger{}, &recordingLogger{}
	m := NewMultiLogger(a, nil, b, NoopLogger{})
	if m.Len() != 3 {
		t.Errorf("Len: got %d, want 3", m.Len())
	}

	m.Log(Event{SessionID: "x"})
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("got a=%d b=%d", len(a.events), len(b.events))
	}
	if b.events[0].SessionID != "x" {
		t.Errorf("got %q", b.events[0].SessionID)
	}
}

func TestParseNames(t *testing.T) {
	if d, ok := ParseDirection("out"); !ok || d != DirectionOut {
		t.Errorf("ParseDirection(out) = %v, %v", d, ok)
	}
	if _, ok := ParseDirection("sideways"); ok {
		t.Error("ParseDirection accepted garbage")
	}
	for _, d := range []Direction{DirectionNone, DirectionIn, DirectionOut} {
		if got, ok := ParseDirection(d.String()); !ok || got != d {
			t.Errorf("ParseDirection(%s) = %v, %v", d, got, ok)
		}
	}
}

func TestStateEventsHaveNoDirection(t *testing.T) {
	var e Event
	if e.Direction != DirectionNone {
		t.Errorf("zero Event direction = %v, want NONE", e.Direction)
	}

	path := createTestLogFile(t, []Event{
		{Timestamp: time.Now(), SessionID: "s", Layer: LayerSession, Category: CategoryState, StateChange: &StateChangeEvent{NewState: "RUNNING"}},
		NewFrameEvent("s", "in", DirectionIn, frame.EncodeAck(1)),
		NewFrameEvent("s", "out", DirectionOut, frame.EncodeAck(2)),
	})
	for _, d := range []Direction{DirectionIn, DirectionOut} {
		r, err := NewFilteredReader(path, Filter{Direction: &d})
		if err != nil {
			t.Fatalf("NewFilteredReader failed: %v", err)
		}
		got := readAll(t, r)
		r.Close()
		if len(got) != 1 || got[0].StateChange != nil {
			t.Errorf("%s filter: got %+v", d, got)
		}
	}
	if l, ok := ParseLayer("WIRE"); !ok || l != LayerWire {
		t.Errorf("ParseLayer(WIRE) = %v, %v", l, ok)
	}
	if _, ok := ParseLayer("service"); ok {
		t.Error("ParseLayer accepted unknown layer")
	}
}
