package codec

import (
	"bytes"
	"compress/gzip"
	"errors"
	"log/slog"
	"testing"

	"github.com/sessionstory/sessionstory-go/internal/domain/replay"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/observability/logging"
)

func newTestCodec(t *testing.T) *BatchCodec {
	t.Helper()
	logger, err := logging.NewChanneledLogger(&logging.LoggerConfig{DefaultLevel: slog.LevelError})
	if err != nil {
		t.Fatalf("create logger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return New(logger)
}

func sampleEvents() []replay.RecordedEvent {
	return []replay.RecordedEvent{
		{Type: replay.EventMeta, Timestamp: 1700000000000, Data: map[string]any{"href": "https://example.com", "width": float64(1280), "height": float64(720)}},
		{Type: replay.EventFullSnapshot, Timestamp: 1700000000050, Data: map[string]any{"node": map[string]any{"id": float64(1)}}},
		{Type: replay.EventIncrementalSnapshot, Timestamp: 1700000001000, Data: map[string]any{"source": float64(3), "x": float64(0), "y": float64(240)}},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := newTestCodec(t)

	events := sampleEvents()
	blob, err := c.Encode(events)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if !bytes.HasPrefix(blob, []byte{0x1f, 0x8b}) {
		t.Fatal("encoded blob is not gzip")
	}

	decoded, err := c.Decode(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != len(events) {
		t.Fatalf("got %d events, want %d", len(decoded), len(events))
	}
	for i := range events {
		if decoded[i].Type != events[i].Type {
			t.Errorf("event %d: type = %d, want %d", i, decoded[i].Type, events[i].Type)
		}
		if decoded[i].Timestamp != events[i].Timestamp {
			t.Errorf("event %d: timestamp = %d, want %d", i, decoded[i].Timestamp, events[i].Timestamp)
		}
	}
}

func TestDecodeRawJSON(t *testing.T) {
	c := newTestCodec(t)

	tests := []struct {
		name string
		blob string
		want int
	}{
		{"array", `[{"type":4,"timestamp":1,"data":{}},{"type":2,"timestamp":2,"data":{}}]`, 2},
		{"single object", `{"type":3,"timestamp":5,"data":{"source":2}}`, 1},
		{"leading whitespace", "\n\t [{\"type\":0,\"timestamp\":1,\"data\":{}}]", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := c.Decode([]byte(tt.blob))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(events) != tt.want {
				t.Fatalf("got %d events, want %d", len(events), tt.want)
			}
		})
	}
}

func TestDecodeLegacyText(t *testing.T) {
	c := newTestCodec(t)

	blob := `.{
	.{ .type = 4, .timestamp = 1700000000000, .data = .{ .href = "https://example.com" } },
	.{ .type = 3, .timestamp = 1700000000500, .data = .{ .source = 2, .id = 42 } },
}`

	events, err := c.Decode([]byte(blob))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != replay.EventMeta {
		t.Errorf("first event type = %d, want %d", events[0].Type, replay.EventMeta)
	}
	if events[1].Timestamp != 1700000000500 {
		t.Errorf("second event timestamp = %d, want 1700000000500", events[1].Timestamp)
	}
	if src, ok := events[1].Source(); !ok || src != replay.SourceMouseInteraction {
		t.Errorf("second event source = %v, %v; want %d, true", src, ok, replay.SourceMouseInteraction)
	}
}

func TestDecodeCorruptGzip(t *testing.T) {
	c := newTestCodec(t)

	// Valid gzip envelope around a payload that is not JSON.
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte("definitely not json")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	_, err := c.Decode(buf.Bytes())
	if !errors.Is(err, ErrCorruptBatch) {
		t.Fatalf("err = %v, want ErrCorruptBatch", err)
	}

	// Truncated gzip stream.
	blob, err := c.Encode(sampleEvents())
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Decode(blob[:len(blob)/2])
	if !errors.Is(err, ErrCorruptBatch) {
		t.Fatalf("truncated stream err = %v, want ErrCorruptBatch", err)
	}
}

func TestDecodeUnrecognizedBlob(t *testing.T) {
	c := newTestCodec(t)

	tests := []struct {
		name string
		blob []byte
	}{
		{"empty", nil},
		{"binary noise", []byte{0x00, 0xff, 0x13, 0x37}},
		{"plain text", []byte("hello world")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := c.Decode(tt.blob)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if events != nil {
				t.Fatalf("got %d events, want nil", len(events))
			}
		})
	}
}

func TestDecodeValue(t *testing.T) {
	c := newTestCodec(t)

	structured := []any{
		map[string]any{"type": float64(2), "timestamp": float64(10), "data": map[string]any{"node": map[string]any{}}},
		map[string]any{"type": float64(3), "timestamp": float64(20), "data": map[string]any{"source": float64(5)}},
	}

	events, err := c.DecodeValue(structured)
	if err != nil {
		t.Fatalf("decode value: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != replay.EventFullSnapshot {
		t.Errorf("first type = %d, want %d", events[0].Type, replay.EventFullSnapshot)
	}

	// String input routes through byte decoding.
	events, err = c.DecodeValue(`[{"type":4,"timestamp":1,"data":{}}]`)
	if err != nil {
		t.Fatalf("decode string value: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	events, err = c.DecodeValue(nil)
	if err != nil || events != nil {
		t.Fatalf("nil input: got %v, %v; want nil, nil", events, err)
	}
}

func TestMixedGenerationBatches(t *testing.T) {
	c := newTestCodec(t)

	gzipped, err := c.Encode([]replay.RecordedEvent{{Type: replay.EventCustom, Timestamp: 3, Data: map[string]any{}}})
	if err != nil {
		t.Fatal(err)
	}

	blobs := [][]byte{
		[]byte(`[{"type":4,"timestamp":1,"data":{}}]`),
		[]byte(`.{ .{ .type = 2, .timestamp = 2, .data = .{ .node = .{ .id = 1 } } } }`),
		gzipped,
	}

	var all []replay.RecordedEvent
	for i, blob := range blobs {
		events, err := c.Decode(blob)
		if err != nil {
			t.Fatalf("blob %d: %v", i, err)
		}
		all = append(all, events...)
	}

	if len(all) != 3 {
		t.Fatalf("got %d events, want 3", len(all))
	}
	for i, want := range []int64{1, 2, 3} {
		if all[i].Timestamp != want {
			t.Errorf("event %d timestamp = %d, want %d", i, all[i].Timestamp, want)
		}
	}
}
