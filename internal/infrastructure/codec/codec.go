// Package codec encodes and decodes persisted event batches. The write
// path always produces gzip-compressed JSON; the read path transparently
// handles every storage generation still present in the datastore: the
// current gzip format, the legacy compact text format, and the oldest
// era where batches were stored as raw JSON.
package codec

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/sessionstory/sessionstory-go/internal/domain/replay"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/observability/logging"
)

// ErrCorruptBatch marks a blob whose gzip envelope was valid but whose
// decompressed payload was not parseable. Unlike an unrecognized
// format, this is genuine corruption and is surfaced rather than
// silently skipped.
var ErrCorruptBatch = errors.New("corrupt event batch")

var gzipMagic = []byte{0x1f, 0x8b}

// BatchCodec serializes event batches for storage.
type BatchCodec struct {
	logger *logging.ChanneledLogger
}

// New creates a batch codec.
func New(logger *logging.ChanneledLogger) *BatchCodec {
	return &BatchCodec{logger: logger}
}

// Encode serializes a batch of events to gzip-compressed JSON. Decode
// of an Encode result always yields the original events.
func (c *BatchCodec) Encode(events []replay.RecordedEvent) ([]byte, error) {
	start := time.Now()

	raw, err := json.Marshal(events)
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		zw.Close()
		return nil, fmt.Errorf("compress batch: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress batch: %w", err)
	}

	c.logger.Codec().Debug("Batch encoded",
		"events", len(events),
		"rawSize", humanize.Bytes(uint64(len(raw))),
		"compressedSize", humanize.Bytes(uint64(buf.Len())),
		"duration", time.Since(start))

	return buf.Bytes(), nil
}

// Decode interprets a stored blob by inspecting its content rather than
// trusting any stored type tag. The strategies are tried in order:
//
//  1. gzip magic bytes: gunzip, then JSON parse. A JSON failure after a
//     successful gunzip is corruption and returns ErrCorruptBatch.
//  2. raw JSON bytes (oldest uncompressed era).
//  3. the legacy compact text encoding.
//
// An unrecognized blob yields (nil, nil): the caller logs and skips it
// so one bad batch never blocks reassembly of its siblings. Decode
// never panics.
func (c *BatchCodec) Decode(blob []byte) ([]replay.RecordedEvent, error) {
	if len(blob) == 0 {
		return nil, nil
	}

	if bytes.HasPrefix(blob, gzipMagic) {
		zr, err := gzip.NewReader(bytes.NewReader(blob))
		if err != nil {
			return nil, fmt.Errorf("%w: bad gzip stream: %v", ErrCorruptBatch, err)
		}
		raw, err := io.ReadAll(zr)
		if cerr := zr.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, fmt.Errorf("%w: gunzip: %v", ErrCorruptBatch, err)
		}

		events, err := eventsFromJSON(raw)
		if err != nil {
			// The magic bytes matched, so an unparseable payload
			// means the stored data is damaged.
			return nil, fmt.Errorf("%w: %v", ErrCorruptBatch, err)
		}
		return events, nil
	}

	if events, err := eventsFromJSON(blob); err == nil {
		return events, nil
	}

	if utf8.Valid(blob) {
		if v, err := decodeZON(string(blob)); err == nil {
			if events, ok := eventsFromValue(v); ok {
				return events, nil
			}
		} else {
			c.logger.Codec().Debug("Legacy text decode failed",
				"size", humanize.Bytes(uint64(len(blob))),
				"error", err.Error())
		}
	}

	c.logger.Codec().Warn("Unrecognized batch blob skipped",
		"size", humanize.Bytes(uint64(len(blob))))
	return nil, nil
}

// DecodeValue accepts a blob that is already structured data rather
// than bytes (the oldest era stored batches as live objects). Byte and
// string inputs are routed through Decode.
func (c *BatchCodec) DecodeValue(v any) ([]replay.RecordedEvent, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return c.Decode(t)
	case string:
		return c.Decode([]byte(t))
	default:
		if events, ok := eventsFromValue(t); ok {
			return events, nil
		}
		return nil, nil
	}
}

// eventsFromJSON parses a JSON batch. A single-object payload is
// treated as a batch of one.
func eventsFromJSON(raw []byte) ([]replay.RecordedEvent, error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, errors.New("empty payload")
	}

	switch trimmed[0] {
	case '[':
		var events []replay.RecordedEvent
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return nil, err
		}
		return events, nil
	case '{':
		var event replay.RecordedEvent
		if err := json.Unmarshal(trimmed, &event); err != nil {
			return nil, err
		}
		return []replay.RecordedEvent{event}, nil
	default:
		return nil, fmt.Errorf("not a JSON batch")
	}
}

// eventsFromValue converts generically-decoded data (from the legacy
// text format or a passthrough blob) into recorded events.
func eventsFromValue(v any) ([]replay.RecordedEvent, bool) {
	switch t := v.(type) {
	case []any:
		events := make([]replay.RecordedEvent, 0, len(t))
		for _, item := range t {
			ev, ok := eventFromValue(item)
			if !ok {
				return nil, false
			}
			events = append(events, ev)
		}
		return events, true
	case map[string]any:
		ev, ok := eventFromValue(t)
		if !ok {
			return nil, false
		}
		return []replay.RecordedEvent{ev}, true
	case []replay.RecordedEvent:
		return t, true
	default:
		return nil, false
	}
}

func eventFromValue(v any) (replay.RecordedEvent, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return replay.RecordedEvent{}, false
	}

	var ev replay.RecordedEvent

	typ, ok := m["type"].(float64)
	if !ok {
		return replay.RecordedEvent{}, false
	}
	ev.Type = replay.EventType(typ)

	if ts, ok := m["timestamp"].(float64); ok {
		ev.Timestamp = int64(ts)
	}

	if data, ok := m["data"].(map[string]any); ok {
		ev.Data = data
	}

	return ev, true
}
