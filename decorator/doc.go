// Package decorator wraps application operations with caching, eviction and
// distributed locking.
//
// # Overview
//
// Operations opt in by explicit composition. Each decorator is built once with
// its own configuration and then wraps calls:
//
//	getPost, _ := decorator.NewCached[Post](store, decorator.CacheConfig{
//		Prefix:          "post",
//		Key:             "postid",
//		Discriminator:   "postID",
//		TTL:             10 * time.Minute,
//		TrackViewCount:  true,
//		ViewCountWindow: 10 * time.Minute,
//		RecordHistory:   true,
//	})
//
//	post, err := getPost.Do(decorator.WithActor(ctx, "9"), cache.Args{cache.A("postID", id)},
//		func(ctx context.Context) (Post, error) {
//			return repo.GetPost(ctx, id)
//		})
//
// # Reads and mutations
//
// A cache hit returns the stored value and the wrapped function does not run
// at all. Only side-effect free functions may be cached, so Cached accepts a
// Read while Locked and Evicting accept a Mutation. Converting a Mutation
// into a Read is possible but has to be written out.
//
// # Cached
//
// Per call, in order:
//
//  1. the key is built with cache.BuildKey
//  2. with TrackViewCount, the first call per actor and window increments
//     viewCount:<key> and adds it to <prefix>:update
//  3. with RecordHistory, the key is added to <prefix>:history
//  4. a hit returns the decoded value
//  5. a miss runs the read and stores the result with TTL
//
// Any store failure skips the remaining cache steps and returns the read's
// result directly. Errors returned by the read are never cached.
//
// # Locked
//
// The lock key is lock:<snake(Name)>[:args]. Acquisition retries with
// exponential backoff starting at RetryBaseDelay until MaxWaitTime, then
// fails with a *LockTimeoutError. Leases are owned by a random token so a
// caller whose lease expired cannot release a lock someone else now holds.
//
// If the operation runs longer than LeaseTime, another caller may enter the
// critical section. Enable KeepAlive for operations that can run that long.
// A lost lease is logged and reported through Recorder.
//
// # Evicting
//
// Evicting deletes the entry of a cached read before a mutation runs and
// again once it succeeds.
package decorator
