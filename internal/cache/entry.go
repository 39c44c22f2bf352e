package cache

import "time"

// Entry is a single cached record. Payload holds the value after
// encoding, compression and encryption have been applied, in that order.
type Entry struct {
	Key            string
	Payload        []byte
	Codec          string
	RawSize        int64
	StoredSize     int64
	CreatedAt      time.Time
	ExpiresAt      time.Time // zero means no expiry
	Tags           []string
	Metadata       map[string]string
	AccessCount    int64
	LastAccessedAt time.Time
}

// Expired reports whether the entry is past its expiry at the given time.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// HasTag reports whether the entry carries the given tag.
func (e *Entry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
