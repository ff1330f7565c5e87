package cache

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// record is the self-describing stored form of an entry.
type record struct {
	Data      []byte    `msgpack:"data"`
	CreatedAt time.Time `msgpack:"createdAt"`
	ExpiresAt time.Time `msgpack:"expiresAt"`
}

func encodeRecord(r record) ([]byte, error) {
	return msgpack.Marshal(&r)
}

func decodeRecord(raw []byte) (record, error) {
	var r record
	if err := msgpack.Unmarshal(raw, &r); err != nil {
		return record{}, fmt.Errorf("cache: decode record: %w", err)
	}
	if !r.ExpiresAt.After(r.CreatedAt) {
		return record{}, fmt.Errorf("cache: decode record: expiresAt %s not after createdAt %s",
			r.ExpiresAt.Format(time.RFC3339), r.CreatedAt.Format(time.RFC3339))
	}
	return r, nil
}

// expired reports whether the record is absent at now.
func (r record) expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Entry describes one stored cache entry.
type Entry struct {
	Key       string
	Payload   []byte
	CreatedAt time.Time
	ExpiresAt time.Time
	SizeBytes int
	Tier      Tier
}

// Expired reports whether the entry is absent at now.
func (e Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}
