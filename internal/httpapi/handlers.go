package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/goliatone/go-community-cache/decorator"
	"github.com/goliatone/go-community-cache/internal/like"
	"github.com/goliatone/go-community-cache/internal/persistence"
	"github.com/goliatone/go-community-cache/internal/post"
)

func (rt *Router) getPost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "postID")
	if !ok {
		return
	}
	p, err := rt.posts.GetPost(r.Context(), id)
	if err != nil {
		rt.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (rt *Router) updatePost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "postID")
	if !ok {
		return
	}
	var in post.UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if in.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	p, err := rt.posts.UpdatePost(r.Context(), id, in)
	if err != nil {
		rt.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (rt *Router) deletePost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "postID")
	if !ok {
		return
	}
	if err := rt.posts.DeletePost(r.Context(), id); err != nil {
		rt.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) topPosts(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}
	posts, err := rt.posts.TopPosts(r.Context(), id)
	if err != nil {
		rt.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

func (rt *Router) toggleLike(w http.ResponseWriter, r *http.Request) {
	kind, subjectID, memberID, ok := likeTarget(w, r)
	if !ok {
		return
	}
	res, err := rt.posts.ToggleLike(r.Context(), kind, subjectID, memberID)
	if err != nil {
		rt.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (rt *Router) isLiked(w http.ResponseWriter, r *http.Request) {
	kind, subjectID, memberID, ok := likeTarget(w, r)
	if !ok {
		return
	}
	liked, err := rt.posts.IsLiked(r.Context(), kind, subjectID, memberID)
	if err != nil {
		rt.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"liked": liked})
}

func likeTarget(w http.ResponseWriter, r *http.Request) (like.Kind, int64, int64, bool) {
	memberID, ok := memberFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, MemberHeader+" is required")
		return "", 0, 0, false
	}
	kind, err := like.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", 0, 0, false
	}
	subjectID, ok := pathID(w, r, "subjectID")
	if !ok {
		return "", 0, 0, false
	}
	return kind, subjectID, memberID, true
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+param)
		return 0, false
	}
	return id, true
}

// fail maps domain errors to status codes.
func (rt *Router) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, decorator.ErrLockTimeout):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusConflict, "resource is busy, retry")
	case errors.Is(err, like.ErrDuplicateAssociation):
		rt.logger.Error("duplicate like association despite row lock", zap.Error(err))
		writeError(w, http.StatusConflict, "concurrent update, retry")
	case errors.Is(err, like.ErrUnknownKind):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		rt.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
