package post

import (
	"context"
	"time"

	"github.com/goliatone/go-community-cache/cache"
	"github.com/goliatone/go-community-cache/decorator"
	"github.com/goliatone/go-community-cache/internal/like"
	"github.com/goliatone/go-community-cache/internal/persistence"
)

// Config tunes caching of post reads.
type Config struct {
	PostTTL         time.Duration
	TopTTL          time.Duration
	TopLimit        int
	ViewCountWindow time.Duration
	Lock            decorator.LockConfig
}

// DefaultConfig caches a post for 10 minutes, a group's top list for 2
// minutes and counts one view per member every 5 minutes.
func DefaultConfig() Config {
	return Config{
		PostTTL:         10 * time.Minute,
		TopTTL:          2 * time.Minute,
		TopLimit:        10,
		ViewCountWindow: 5 * time.Minute,
		Lock:            decorator.DefaultLockConfig("like"),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.TopLimit <= 0 {
		return &decorator.ConfigError{Field: "TopLimit", Message: "must be greater than 0"}
	}
	return nil
}

// PostCacheConfig is the cached read of a single post. Its keys look like
// "post:postid:42", the layout the reconciliation scheduler expects.
func PostCacheConfig(cfg Config) decorator.CacheConfig {
	return decorator.CacheConfig{
		Prefix:          "post",
		Key:             "postid",
		Discriminator:   "id",
		TTL:             cfg.PostTTL,
		TrackViewCount:  true,
		ViewCountWindow: cfg.ViewCountWindow,
		RecordHistory:   true,
	}
}

// UpdateInput holds the editable fields of a post. An empty Status keeps
// the current one.
type UpdateInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Status  string `json:"postStatus"`
}

// Service composes the cache, lock and eviction decorators around the post
// store and the like service.
type Service struct {
	posts *persistence.PostStore
	likes *like.Service
	cfg   Config

	get    *decorator.Cached[persistence.Post]
	top    *decorator.Cached[[]persistence.Post]
	update *decorator.Evicting[persistence.Post]
	remove *decorator.Evicting[struct{}]

	likeLocks map[like.Kind]*decorator.Locked[like.Result]
	likeEvict *decorator.Evicting[like.Result]
}

// NewService wires the decorators. Locks are taken through locker, which
// is usually the store or a fallback locker around it.
func NewService(store cache.Store, locker cache.Locker, posts *persistence.PostStore, likes *like.Service, cfg Config, opts ...decorator.Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if locker == nil {
		locker = store
	}

	s := &Service{posts: posts, likes: likes, cfg: cfg, likeLocks: make(map[like.Kind]*decorator.Locked[like.Result])}
	postCfg := PostCacheConfig(cfg)

	var err error
	if s.get, err = decorator.NewCached[persistence.Post](store, postCfg, opts...); err != nil {
		return nil, err
	}
	topCfg := decorator.CacheConfig{Prefix: "post", Key: "top", Discriminator: "groupID", TTL: cfg.TopTTL}
	if s.top, err = decorator.NewCached[[]persistence.Post](store, topCfg, opts...); err != nil {
		return nil, err
	}
	if s.update, err = decorator.NewEvicting[persistence.Post](store, decorator.EvictFor(postCfg), opts...); err != nil {
		return nil, err
	}
	if s.remove, err = decorator.NewEvicting[struct{}](store, decorator.EvictFor(postCfg), opts...); err != nil {
		return nil, err
	}
	if s.likeEvict, err = decorator.NewEvicting[like.Result](store, decorator.EvictFor(postCfg), opts...); err != nil {
		return nil, err
	}

	for kind, name := range map[like.Kind]string{
		like.KindPost:    "LikePost",
		like.KindComment: "LikeComment",
		like.KindGroup:   "LikeGroup",
	} {
		lockCfg := cfg.Lock
		lockCfg.Name = name
		lockCfg.Discriminator = "id"
		l, err := decorator.NewLocked[like.Result](locker, lockCfg, opts...)
		if err != nil {
			return nil, err
		}
		s.likeLocks[kind] = l
	}
	return s, nil
}

func idArgs(id int64) cache.Args {
	return cache.Args{cache.A("id", id)}
}

// GetPost returns an active post. Calls carrying an actor (see
// decorator.WithActor) count one view per actor and window.
func (s *Service) GetPost(ctx context.Context, id int64) (persistence.Post, error) {
	return s.get.Do(ctx, idArgs(id), func(ctx context.Context) (persistence.Post, error) {
		return s.posts.Get(ctx, id)
	})
}

// TopPosts lists the most viewed public posts of a group.
func (s *Service) TopPosts(ctx context.Context, groupID int64) ([]persistence.Post, error) {
	return s.top.Do(ctx, cache.Args{cache.A("groupID", groupID)}, func(ctx context.Context) ([]persistence.Post, error) {
		return s.posts.TopByGroup(ctx, groupID, persistence.OnlyPublic(), persistence.Limit(s.cfg.TopLimit))
	})
}

// UpdatePost edits a post and evicts its cached copy.
func (s *Service) UpdatePost(ctx context.Context, id int64, in UpdateInput) (persistence.Post, error) {
	return s.update.Do(ctx, idArgs(id), func(ctx context.Context) (persistence.Post, error) {
		return s.posts.Update(ctx, id, in.Title, in.Content, in.Status)
	})
}

// DeletePost soft deletes a post with its attachments and comments and
// evicts its cached copy.
func (s *Service) DeletePost(ctx context.Context, id int64) error {
	_, err := s.remove.Do(ctx, idArgs(id), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.posts.SoftDelete(ctx, id)
	})
	return err
}

// ToggleLike likes or unlikes a subject for memberID under the subject
// lock. Liking a post also evicts its cached copy so the count is fresh.
func (s *Service) ToggleLike(ctx context.Context, kind like.Kind, subjectID, memberID int64) (like.Result, error) {
	if _, err := like.ParseKind(string(kind)); err != nil {
		return like.Result{}, err
	}

	toggle := func(ctx context.Context) (like.Result, error) {
		return s.likeLocks[kind].Do(ctx, idArgs(subjectID), func(ctx context.Context) (like.Result, error) {
			return s.likes.Toggle(ctx, kind, subjectID, memberID)
		})
	}
	if kind == like.KindPost {
		return s.likeEvict.Do(ctx, idArgs(subjectID), toggle)
	}
	return toggle(ctx)
}

// IsLiked reports whether memberID likes the subject.
func (s *Service) IsLiked(ctx context.Context, kind like.Kind, subjectID, memberID int64) (bool, error) {
	return s.likes.IsLiked(ctx, kind, subjectID, memberID)
}
