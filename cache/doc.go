// Package cache provides the key-value store contract and key building used by
// the caching and locking decorators.
//
// # Overview
//
// The package exports:
//
//   - Store: get/set with ttl, counters, sets, token-owned leases and Settle
//   - BuildKey and the key helpers shared by decorators and reconciliation jobs
//   - Codec: serialization of cached results (msgpack by default)
//
// Two Store implementations are provided. NewRedisStore talks to Redis and is
// the one to use when more than one process shares counters and locks.
// NewMemoryStore keeps everything inside the process and is meant for tests,
// single node deployments and as the local fallback for locks.
//
// # Keys
//
// Keys are built from a prefix, an optional static sub-key and the call's
// arguments:
//
//	cache.BuildKey("post", "postid", "postID", cache.Args{cache.A("postID", 42)})
//	// post:postid:42
//
//	cache.BuildKey("post", "groupid", "", cache.Args{cache.A("groupID", 7), cache.A("page", 2)})
//	// post:groupid:7:2
//
// When a discriminator is named and present among the arguments only its value
// is appended. Otherwise every argument value is appended in order, so callers
// must pass arguments in a fixed order.
//
// Around every cached entry a few bookkeeping keys exist:
//
//	viewCount:post:postid:42      counter (ViewCountKey)
//	post:postid:42:user:9         per-actor rate-limit marker (RateLimitKey)
//	post:update                   counters awaiting flush (PendingSetKey)
//	post:history                  entries read since the last daily reset (HistorySetKey)
//
// # Degradation
//
// Every store failure other than a miss matches ErrUnavailable. Callers are
// expected to fall back to the source of truth instead of failing the request.
// WithBreaker wraps a Store so a dead backend is detected once and then
// skipped until it recovers.
package cache
