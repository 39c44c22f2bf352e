// internal/cache/snapshot.go
package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

const snapshotVersion = 1

// snapshotRecord is the persisted form of one cache entry. The payload
// is base64 in the JSON encoding; TTL is the entry's original
// time-to-live in milliseconds, zero meaning no expiry.
type snapshotRecord struct {
	Key          string            `json:"key"`
	EncodedValue []byte            `json:"encoded_value"`
	Codec        string            `json:"codec,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	TTLMillis    int64             `json:"ttl_ms"`
	Tags         []string          `json:"tags,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	SizeBytes    int64             `json:"size_bytes"`
	RawSize      int64             `json:"raw_size"`
}

// snapshotEnvelope is the full export document.
type snapshotEnvelope struct {
	Version    int              `json:"version"`
	ExportedAt time.Time        `json:"exported_at"`
	Records    []snapshotRecord `json:"records"`
}

// recordSchema validates a single snapshot record on import. Records
// that fail validation are skipped, not fatal.
const recordSchema = `{
	"type": "object",
	"required": ["key", "encoded_value", "created_at", "ttl_ms", "size_bytes"],
	"properties": {
		"key":           {"type": "string", "minLength": 1},
		"encoded_value": {"type": "string"},
		"codec":         {"type": "string", "enum": ["none", "zstd", "snappy", ""]},
		"created_at":    {"type": "string"},
		"ttl_ms":        {"type": "integer", "minimum": 0},
		"tags":          {"type": "array", "items": {"type": "string"}},
		"metadata":      {"type": "object", "additionalProperties": {"type": "string"}},
		"size_bytes":    {"type": "integer", "minimum": 0},
		"raw_size":      {"type": "integer", "minimum": 0}
	}
}`

var compiledRecordSchema = gojsonschema.NewStringLoader(recordSchema)

// Export serializes all non-expired entries into a snapshot document.
func (s *Store) Export() ([]byte, error) {
	s.mu.RLock()
	now := time.Now()
	records := make([]snapshotRecord, 0, s.lruList.Len())
	for elem := s.lruList.Front(); elem != nil; elem = elem.Next() {
		entry := elem.Value.(*Entry)
		if entry.Expired(now) {
			continue
		}

		var ttl int64
		if !entry.ExpiresAt.IsZero() {
			ttl = entry.ExpiresAt.Sub(entry.CreatedAt).Milliseconds()
		}

		records = append(records, snapshotRecord{
			Key:          entry.Key,
			EncodedValue: entry.Payload,
			Codec:        entry.Codec,
			CreatedAt:    entry.CreatedAt,
			TTLMillis:    ttl,
			Tags:         entry.Tags,
			Metadata:     entry.Metadata,
			SizeBytes:    entry.StoredSize,
			RawSize:      entry.RawSize,
		})
	}
	s.mu.RUnlock()

	envelope := snapshotEnvelope{
		Version:    snapshotVersion,
		ExportedAt: now,
		Records:    records,
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

// Import restores entries from a snapshot produced by Export. Each
// record is validated independently; malformed or already-expired
// records are skipped and logged, and do not abort the rest. Returns
// the number of entries imported and whether the snapshot itself was
// readable.
func (s *Store) Import(data []byte) (int, bool) {
	var envelope struct {
		Version    int               `json:"version"`
		ExportedAt time.Time         `json:"exported_at"`
		Records    []json.RawMessage `json:"records"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		s.logger.Warn("failed to parse snapshot", zap.Error(err))
		return 0, false
	}
	if envelope.Version != snapshotVersion {
		s.logger.Warn("unsupported snapshot version", zap.Int("version", envelope.Version))
		return 0, false
	}

	now := time.Now()
	imported := 0
	skipped := 0

	for _, raw := range envelope.Records {
		record, err := s.validateRecord(raw)
		if err != nil {
			skipped++
			s.logger.Warn("skipping snapshot record", zap.Error(err))
			continue
		}

		entry := &Entry{
			Key:            record.Key,
			Payload:        record.EncodedValue,
			Codec:          record.Codec,
			RawSize:        record.RawSize,
			StoredSize:     int64(len(record.EncodedValue)),
			CreatedAt:      record.CreatedAt,
			Tags:           record.Tags,
			Metadata:       record.Metadata,
			LastAccessedAt: now,
		}
		if entry.Codec == "" {
			entry.Codec = CompressionNone
		}
		if record.TTLMillis > 0 {
			entry.ExpiresAt = record.CreatedAt.Add(time.Duration(record.TTLMillis) * time.Millisecond)
			if entry.Expired(now) {
				skipped++
				continue
			}
		}

		s.mu.Lock()
		s.insertLocked(entry)
		s.evictToBudgetLocked()
		s.mu.Unlock()
		imported++
	}

	if skipped > 0 {
		s.logger.Info("snapshot import finished with skipped records",
			zap.Int("imported", imported), zap.Int("skipped", skipped))
	}
	return imported, true
}

// validateRecord checks one raw record against the snapshot schema and
// decodes it.
func (s *Store) validateRecord(raw json.RawMessage) (*snapshotRecord, error) {
	result, err := gojsonschema.Validate(compiledRecordSchema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImportRecord, err)
	}
	if !result.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrImportRecord, result.Errors())
	}

	var record snapshotRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImportRecord, err)
	}
	return &record, nil
}
