// internal/cache/store.go
package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sentinel errors for internal classification. None of these cross the
// public boundary: Set and Get report expected failures through their
// return values.
var (
	ErrEncode       = errors.New("cache: value cannot be encoded")
	ErrTooLarge     = errors.New("cache: encoded value exceeds max entry size")
	ErrDecode       = errors.New("cache: stored bytes cannot be decoded")
	ErrImportRecord = errors.New("cache: snapshot record failed validation")
)

// Config configures a Store.
type Config struct {
	MaxEntries    int
	MaxSize       int64
	MaxEntrySize  int64
	DefaultTTL    time.Duration
	Compression   string
	EncryptionKey []byte
	SweepInterval time.Duration
}

// Validate checks configuration.
func (c *Config) Validate() error {
	if c.MaxEntries < 0 {
		return fmt.Errorf("cache: max entries must be >= 0, got %d", c.MaxEntries)
	}
	if c.MaxSize < 0 {
		return fmt.Errorf("cache: max size must be >= 0, got %d", c.MaxSize)
	}
	if c.DefaultTTL < 0 {
		return fmt.Errorf("cache: default TTL must be >= 0, got %s", c.DefaultTTL)
	}
	switch c.Compression {
	case "", CompressionNone, CompressionZstd, CompressionSnappy:
	default:
		return fmt.Errorf("cache: invalid compression algorithm: %s", c.Compression)
	}
	if n := len(c.EncryptionKey); n != 0 && n != 32 {
		return fmt.Errorf("cache: encryption key must be 32 bytes, got %d", n)
	}
	return nil
}

// ApplyDefaults fills in default values.
func (c *Config) ApplyDefaults() {
	if c.MaxEntries == 0 {
		c.MaxEntries = 10000
	}
	if c.MaxSize == 0 {
		c.MaxSize = 64 * 1024 * 1024
	}
	if c.MaxEntrySize == 0 {
		c.MaxEntrySize = 4 * 1024 * 1024
	}
	if c.Compression == "" {
		c.Compression = CompressionNone
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = time.Minute
	}
}

// Stats contains store statistics. Counters are monotonic and reset
// only by Clear.
type Stats struct {
	Hits             int64   `json:"hits"`
	Misses           int64   `json:"misses"`
	Entries          int     `json:"entries"`
	SizeBytes        int64   `json:"size_bytes"`
	CompressionRatio float64 `json:"compression_ratio"`
	Evictions        int64   `json:"evictions"`
}

// HitRate calculates the cache hit rate.
func (s *Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Store is a TTL- and tag-aware LRU cache with independent entry-count
// and byte-size budgets. Values are JSON-encoded, optionally compressed
// and encrypted, before size accounting.
type Store struct {
	mu     sync.RWMutex
	config Config
	codecs map[string]Compressor
	cipher *encryptor
	logger *zap.Logger

	items        map[string]*list.Element
	lruList      *list.List
	tagIndex     map[string]map[string]struct{}
	currentBytes int64

	// Statistics
	hits        int64
	misses      int64
	evictions   int64
	rawBytes    int64
	storedBytes int64

	janitor *janitor
}

// NewStore creates a store. The janitor sweep is not started; call
// StartJanitor to enable periodic expiry cleanup.
func NewStore(config Config, logger *zap.Logger) (*Store, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cipher, err := newEncryptor(config.EncryptionKey)
	if err != nil {
		return nil, err
	}

	codecs := make(map[string]Compressor)
	for _, algo := range []string{CompressionNone, CompressionZstd, CompressionSnappy} {
		codec, err := NewCompressor(algo)
		if err != nil {
			return nil, err
		}
		codecs[algo] = codec
	}

	return &Store{
		config:   config,
		codecs:   codecs,
		cipher:   cipher,
		logger:   logger,
		items:    make(map[string]*list.Element),
		lruList:  list.New(),
		tagIndex: make(map[string]map[string]struct{}),
	}, nil
}

// SetOption customizes a Set call.
type SetOption func(*setOptions)

type setOptions struct {
	ttl      time.Duration
	ttlSet   bool
	tags     []string
	metadata map[string]string
}

// WithTTL sets the entry's time-to-live. Zero means no expiry.
func WithTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) {
		o.ttl = ttl
		o.ttlSet = true
	}
}

// WithTags attaches tags used for bulk invalidation.
func WithTags(tags ...string) SetOption {
	return func(o *setOptions) { o.tags = tags }
}

// WithMetadata attaches descriptive metadata. Metadata never influences
// eviction.
func WithMetadata(metadata map[string]string) SetOption {
	return func(o *setOptions) { o.metadata = metadata }
}

// Set stores a value under key, replacing any existing entry. It
// returns false if the value cannot be encoded or the encoded payload
// exceeds the per-entry maximum; it never returns an error to the
// caller.
func (s *Store) Set(ctx context.Context, key string, value any, opts ...SetOption) bool {
	options := setOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	s.mu.RLock()
	ttl := s.config.DefaultTTL
	s.mu.RUnlock()
	if options.ttlSet {
		ttl = options.ttl
	}
	if ttl < 0 {
		s.logger.Warn("rejecting set with negative ttl",
			zap.String("key", key), zap.Duration("ttl", ttl))
		return false
	}

	payload, codec, rawSize, err := s.encode(value)
	if err != nil {
		s.logger.Warn("failed to encode value",
			zap.String("key", key), zap.Error(err))
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if int64(len(payload)) > s.config.MaxEntrySize {
		s.logger.Warn("rejecting oversized entry",
			zap.String("key", key),
			zap.Int("payload_bytes", len(payload)),
			zap.Int64("max_entry_bytes", s.config.MaxEntrySize))
		return false
	}

	now := time.Now()
	entry := &Entry{
		Key:            key,
		Payload:        payload,
		Codec:          codec,
		RawSize:        rawSize,
		StoredSize:     int64(len(payload)),
		CreatedAt:      now,
		Tags:           options.tags,
		Metadata:       options.metadata,
		LastAccessedAt: now,
	}
	if ttl > 0 {
		entry.ExpiresAt = now.Add(ttl)
	}

	s.insertLocked(entry)

	s.rawBytes += rawSize
	s.storedBytes += entry.StoredSize

	s.evictToBudgetLocked()
	return true
}

// Get loads the value stored under key into dest. It returns false on a
// miss, an expired entry, or an entry whose payload can no longer be
// decoded; corrupted entries are removed. A hit refreshes the entry's
// LRU position and access statistics.
func (s *Store) Get(ctx context.Context, key string, dest any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, exists := s.items[key]
	if !exists {
		s.misses++
		return false
	}

	entry := elem.Value.(*Entry)
	if entry.Expired(time.Now()) {
		s.removeLocked(elem)
		s.misses++
		return false
	}

	if err := s.decode(entry, dest); err != nil {
		// Fail open to miss: purge the entry rather than surface the error.
		s.logger.Warn("purging corrupted entry",
			zap.String("key", key), zap.Error(err))
		s.removeLocked(elem)
		s.misses++
		return false
	}

	s.lruList.MoveToFront(elem)
	entry.AccessCount++
	entry.LastAccessedAt = time.Now()
	s.hits++
	return true
}

// Delete removes the entry under key, reporting whether it existed.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, exists := s.items[key]
	if !exists {
		return false
	}
	s.removeLocked(elem)
	return true
}

// DeleteByTag removes every entry carrying the given tag and returns
// the number removed.
func (s *Store) DeleteByTag(tag string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, exists := s.tagIndex[tag]
	if !exists {
		return 0
	}

	count := 0
	for key := range keys {
		if elem, ok := s.items[key]; ok {
			s.removeLocked(elem)
			count++
		}
	}
	return count
}

// Clear drops all entries and resets counters.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*list.Element)
	s.lruList = list.New()
	s.tagIndex = make(map[string]map[string]struct{})
	s.currentBytes = 0
	s.hits = 0
	s.misses = 0
	s.evictions = 0
	s.rawBytes = 0
	s.storedBytes = 0
}

// CleanupExpired removes all entries past their expiry and returns the
// number removed. Safe to call concurrently with reads and writes.
func (s *Store) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	count := 0
	for elem := s.lruList.Front(); elem != nil; {
		next := elem.Next()
		if elem.Value.(*Entry).Expired(now) {
			s.removeLocked(elem)
			count++
		}
		elem = next
	}
	return count
}

// Stats returns current store statistics.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ratio := 1.0
	if s.storedBytes > 0 {
		ratio = float64(s.rawBytes) / float64(s.storedBytes)
	}

	return Stats{
		Hits:             s.hits,
		Misses:           s.misses,
		Entries:          s.lruList.Len(),
		SizeBytes:        s.currentBytes,
		CompressionRatio: ratio,
		Evictions:        s.evictions,
	}
}

// Keys returns the keys of all live entries, most recently used first.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, s.lruList.Len())
	for elem := s.lruList.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*Entry).Key)
	}
	return keys
}

// UpdateConfig applies new budgets and codec settings. Shrinking a
// budget evicts immediately; existing entries keep the codec they were
// written with.
func (s *Store) UpdateConfig(config Config) error {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return err
	}

	cipher, err := newEncryptor(config.EncryptionKey)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.config = config
	s.cipher = cipher
	s.evictToBudgetLocked()
	return nil
}

// Close stops the janitor if one is running.
func (s *Store) Close() {
	s.StopJanitor()
}

// insertLocked adds or replaces an entry and maintains the tag index.
func (s *Store) insertLocked(entry *Entry) {
	if elem, exists := s.items[entry.Key]; exists {
		s.removeLocked(elem)
	}

	elem := s.lruList.PushFront(entry)
	s.items[entry.Key] = elem
	s.currentBytes += entry.StoredSize

	for _, tag := range entry.Tags {
		keys, exists := s.tagIndex[tag]
		if !exists {
			keys = make(map[string]struct{})
			s.tagIndex[tag] = keys
		}
		keys[entry.Key] = struct{}{}
	}
}

// removeLocked removes an entry and its tag index references.
func (s *Store) removeLocked(elem *list.Element) {
	entry := elem.Value.(*Entry)
	s.lruList.Remove(elem)
	delete(s.items, entry.Key)
	s.currentBytes -= entry.StoredSize

	for _, tag := range entry.Tags {
		if keys, exists := s.tagIndex[tag]; exists {
			delete(keys, entry.Key)
			if len(keys) == 0 {
				delete(s.tagIndex, tag)
			}
		}
	}
}

// evictToBudgetLocked removes least-recently-used entries until both
// the entry-count and byte-size budgets hold, or the store is empty.
// Among entries with identical access times the list preserves
// insertion order, so the oldest-created entry goes first.
func (s *Store) evictToBudgetLocked() {
	for (s.lruList.Len() > s.config.MaxEntries || s.currentBytes > s.config.MaxSize) &&
		s.lruList.Len() > 0 {
		elem := s.lruList.Back()
		if elem == nil {
			break
		}
		entry := elem.Value.(*Entry)
		s.removeLocked(elem)
		s.evictions++
		s.logger.Debug("evicted entry",
			zap.String("key", entry.Key),
			zap.Int64("stored_bytes", entry.StoredSize))
	}
}

// encode serializes, compresses and encrypts a value. Returns the
// stored payload, the codec it was written with, and the
// pre-compression size.
func (s *Store) encode(value any) ([]byte, string, int64, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, "", 0, fmt.Errorf("%w: %v", ErrEncode, err)
	}

	s.mu.RLock()
	algorithm := s.config.Compression
	codec := s.codecs[algorithm]
	cipher := s.cipher
	s.mu.RUnlock()

	compressed, err := codec.Compress(raw)
	if err != nil {
		return nil, "", 0, fmt.Errorf("%w: %v", ErrEncode, err)
	}

	sealed, err := cipher.seal(compressed)
	if err != nil {
		return nil, "", 0, fmt.Errorf("%w: %v", ErrEncode, err)
	}

	return sealed, algorithm, int64(len(raw)), nil
}

// decode reverses encode into dest using the codec the entry was
// written with. Callers hold the store lock.
func (s *Store) decode(entry *Entry, dest any) error {
	opened, err := s.cipher.open(entry.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}

	codec, exists := s.codecs[entry.Codec]
	if !exists {
		return fmt.Errorf("%w: unknown codec %q", ErrDecode, entry.Codec)
	}
	raw, err := codec.Decompress(opened)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}
