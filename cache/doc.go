// Package cache provides the two-tier cache in front of every external call.
//
// A [TieredCache] routes each entry by the size of its encoded record:
// records under [DefaultSizeThreshold] go to the Fast tier with TTLs clamped
// to [DefaultFastCeiling], larger ones to the Durable tier. Writes to one key
// are serialized, so a move between tiers leaves a single copy. Entries are stored
// as self-describing msgpack records carrying their creation and expiry
// times, so any tier can judge freshness on read. Expired entries are absent
// immediately and are removed lazily on Get or in bulk by Cleanup.
//
// Stores:
//   - [MemoryStore]: in-process map, the default Fast tier
//   - [SturdycStore]: sharded in-memory store with capacity eviction
//   - [RedisStore]: a Fast tier shared across processes on one host
//   - [SQLStore]: SQLite or Postgres, the Durable tier; survives restarts
//
// Keys are "{category}:{identifier}" with categories ai, img, trends and cms.
// [Cached] is the typed call-site helper: hit returns the decoded value,
// miss runs the producer once per key and stores only successful results.
package cache
