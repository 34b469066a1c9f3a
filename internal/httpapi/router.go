package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/goliatone/go-community-cache/decorator"
	"github.com/goliatone/go-community-cache/internal/like"
	"github.com/goliatone/go-community-cache/internal/metrics"
	"github.com/goliatone/go-community-cache/internal/persistence"
	"github.com/goliatone/go-community-cache/internal/post"
)

// MemberHeader carries the acting member id. Authentication happens in
// front of this service.
const MemberHeader = "X-Member-Id"

// PostService is what the handlers call.
type PostService interface {
	GetPost(ctx context.Context, id int64) (persistence.Post, error)
	TopPosts(ctx context.Context, groupID int64) ([]persistence.Post, error)
	UpdatePost(ctx context.Context, id int64, in post.UpdateInput) (persistence.Post, error)
	DeletePost(ctx context.Context, id int64) error
	ToggleLike(ctx context.Context, kind like.Kind, subjectID, memberID int64) (like.Result, error)
	IsLiked(ctx context.Context, kind like.Kind, subjectID, memberID int64) (bool, error)
}

// Checker is a dependency probed by /healthz.
type Checker func(ctx context.Context) error

// Router serves the post API.
type Router struct {
	posts   PostService
	metrics *metrics.Collector
	checks  map[string]Checker
	logger  *zap.Logger
}

// NewRouter creates a router. A nil collector disables /metrics.
func NewRouter(posts PostService, collector *metrics.Collector, checks map[string]Checker, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{posts: posts, metrics: collector, checks: checks, logger: logger.Named("http")}
}

// Setup configures all routes and middleware.
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(rt.observe)
	router.Use(member)

	router.Get("/healthz", rt.health)
	router.Method(http.MethodGet, "/metrics", rt.metrics.Handler())

	router.Route("/api", func(r chi.Router) {
		r.Route("/posts/{postID}", func(r chi.Router) {
			r.Get("/", rt.getPost)
			r.Put("/", rt.updatePost)
			r.Delete("/", rt.deletePost)
		})
		r.Get("/groups/{groupID}/posts/top", rt.topPosts)
		r.Route("/likes/{kind}/{subjectID}", func(r chi.Router) {
			r.Get("/", rt.isLiked)
			r.Post("/", rt.toggleLike)
		})
	})

	return router
}

// observe logs and measures every request.
func (rt *Router) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		took := time.Since(start)
		rt.metrics.ObserveHTTP(r.Method, route, ww.Status(), took)
		rt.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", took),
			zap.String("requestID", chimiddleware.GetReqID(r.Context())),
		)
	})
}

type memberKey struct{}

// member reads MemberHeader. Valid ids become the cache actor so views are
// counted per member.
func member(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(MemberHeader)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid "+MemberHeader)
			return
		}
		ctx := context.WithValue(r.Context(), memberKey{}, id)
		ctx = decorator.WithActor(ctx, raw)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func memberFrom(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(memberKey{}).(int64)
	return id, ok
}

func (rt *Router) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	result := make(map[string]string, len(rt.checks))
	for name, check := range rt.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			result[name] = err.Error()
			continue
		}
		result[name] = "ok"
	}
	writeJSON(w, status, result)
}
