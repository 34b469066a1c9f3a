package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/goliatone/go-community-cache/decorator"
	"github.com/goliatone/go-community-cache/reconcile"
)

var (
	_ decorator.Recorder = (*Collector)(nil)
	_ reconcile.Recorder = (*Collector)(nil)
)

func TestCollector_Records(t *testing.T) {
	c := NewCollector("community")

	c.CacheResult("post", decorator.ResultHit)
	c.CacheResult("post", decorator.ResultHit)
	c.CacheResult("post", decorator.ResultMiss)
	c.ViewCounted("post")
	c.LockResult("like_post", decorator.LockTimeout)
	c.LockWait("like_post", 20*time.Millisecond)
	c.TaskRun(reconcile.TaskFlush, reconcile.OutcomeSuccess, time.Second)
	c.ObserveHTTP(http.MethodGet, "/posts/{id}", http.StatusOK, time.Millisecond)

	if got := testutil.ToFloat64(c.CacheResults.WithLabelValues("post", decorator.ResultHit)); got != 2 {
		t.Errorf("expected 2 hits, got %v", got)
	}
	if got := testutil.ToFloat64(c.CacheResults.WithLabelValues("post", decorator.ResultMiss)); got != 1 {
		t.Errorf("expected 1 miss, got %v", got)
	}
	if got := testutil.ToFloat64(c.ViewsCounted.WithLabelValues("post")); got != 1 {
		t.Errorf("expected 1 view, got %v", got)
	}
	if got := testutil.ToFloat64(c.LockResults.WithLabelValues("like_post", decorator.LockTimeout)); got != 1 {
		t.Errorf("expected 1 lock timeout, got %v", got)
	}
	if got := testutil.ToFloat64(c.TaskRuns.WithLabelValues(reconcile.TaskFlush, reconcile.OutcomeSuccess)); got != 1 {
		t.Errorf("expected 1 task run, got %v", got)
	}
	if got := testutil.ToFloat64(c.HTTPRequests.WithLabelValues(http.MethodGet, "/posts/{id}", "200")); got != 1 {
		t.Errorf("expected 1 request, got %v", got)
	}
}

func TestCollector_NilIsSafe(t *testing.T) {
	var c *Collector
	c.CacheResult("post", decorator.ResultHit)
	c.ViewCounted("post")
	c.LockResult("x", decorator.LockAcquired)
	c.LockWait("x", time.Second)
	c.TaskRun("x", reconcile.OutcomeError, time.Second)
	c.ObserveHTTP(http.MethodGet, "/", http.StatusOK, time.Second)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 from nil collector, got %d", rec.Code)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("community")
	c.CacheResult("post", decorator.ResultBypass)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), `community_cache_results_total{prefix="post",result="bypass"} 1`) {
		t.Errorf("expected cache metric in output, got:\n%s", body)
	}
}

func TestCollectors_AreIndependent(t *testing.T) {
	first := NewCollector("community")
	second := NewCollector("community")
	first.ViewCounted("post")

	if got := testutil.ToFloat64(second.ViewsCounted.WithLabelValues("post")); got != 0 {
		t.Errorf("expected separate registries, got %v", got)
	}
}
