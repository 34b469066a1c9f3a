package persistence_test

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/goliatone/go-community-cache/internal/persistence"
	"github.com/goliatone/go-community-cache/pkg/testsupport"
)

var day0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newPostStore(t *testing.T) (*persistence.PostStore, *testsupport.Clock) {
	t.Helper()
	db := testsupport.NewSQLiteDB(t)
	testsupport.Seed(t, db, testsupport.DefaultCommunity(day0))
	clock := testsupport.NewClock(day0)
	return persistence.NewPostStore(db, clock.Now), clock
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     persistence.Config
		wantErr bool
	}{
		{name: "sqlite", cfg: persistence.Config{Driver: "sqlite3", DSN: "file::memory:"}},
		{name: "postgres", cfg: persistence.Config{Driver: "postgres", DSN: "postgres://localhost/db"}},
		{name: "unknown driver", cfg: persistence.Config{Driver: "mysql", DSN: "x"}, wantErr: true},
		{name: "empty dsn", cfg: persistence.Config{Driver: "sqlite3"}, wantErr: true},
		{name: "negative pool", cfg: persistence.Config{Driver: "sqlite3", DSN: "x", MaxOpenConns: -1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPostStore_GetAndCreate(t *testing.T) {
	store, _ := newPostStore(t)
	ctx := context.Background()

	post, err := store.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if post.Title != "first" {
		t.Errorf("unexpected post %+v", post)
	}

	if _, err := store.Get(ctx, 99); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	created := persistence.Post{GroupID: 1, MemberID: 1, Nickname: "alice", Title: "third", Content: "c"}
	if err := store.Create(ctx, &created); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ID == 0 {
		t.Error("expected id to be assigned")
	}
	if created.PostStatus != persistence.PostStatusPublic {
		t.Errorf("expected default status PUBLIC, got %q", created.PostStatus)
	}
}

func TestPostStore_AddViewCounts(t *testing.T) {
	store, _ := newPostStore(t)
	ctx := context.Background()

	existing, err := store.AddViewCounts(ctx, map[int64]int64{1: 3, 2: 5, 404: 7})
	if err != nil {
		t.Fatalf("AddViewCounts failed: %v", err)
	}
	sort.Slice(existing, func(i, j int) bool { return existing[i] < existing[j] })
	if len(existing) != 2 || existing[0] != 1 || existing[1] != 2 {
		t.Errorf("expected ids [1 2], got %v", existing)
	}

	if _, err := store.AddViewCounts(ctx, map[int64]int64{1: 2}); err != nil {
		t.Fatalf("AddViewCounts failed: %v", err)
	}

	first, _ := store.Get(ctx, 1)
	second, _ := store.Get(ctx, 2)
	if first.TodayViewCount != 5 {
		t.Errorf("expected post 1 to have 5 views today, got %d", first.TodayViewCount)
	}
	if second.TodayViewCount != 5 {
		t.Errorf("expected post 2 to have 5 views today, got %d", second.TodayViewCount)
	}
}

func TestPostStore_AddViewCountsKeepsLikeCount(t *testing.T) {
	store, _ := newPostStore(t)
	ctx := context.Background()

	if _, err := store.DB().NewUpdate().
		Model((*persistence.Post)(nil)).
		Set("like_count = ?", 4).
		Where("id = ?", 1).
		Exec(ctx); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	if _, err := store.AddViewCounts(ctx, map[int64]int64{1: 1}); err != nil {
		t.Fatalf("AddViewCounts failed: %v", err)
	}
	post, _ := store.Get(ctx, 1)
	if post.LikeCount != 4 {
		t.Errorf("expected like count to survive the view update, got %d", post.LikeCount)
	}
}

func TestPostStore_RollupToday(t *testing.T) {
	store, _ := newPostStore(t)
	ctx := context.Background()
	_, _ = store.AddViewCounts(ctx, map[int64]int64{1: 3, 2: 4})

	n, err := store.RollupToday(ctx, []int64{1})
	if err != nil {
		t.Fatalf("RollupToday failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected one row rolled up, got %d", n)
	}

	first, _ := store.Get(ctx, 1)
	if first.TodayViewCount != 0 || first.TotalViewCount != 3 {
		t.Errorf("unexpected counters for post 1: today=%d total=%d", first.TodayViewCount, first.TotalViewCount)
	}
	second, _ := store.Get(ctx, 2)
	if second.TodayViewCount != 4 || second.TotalViewCount != 0 {
		t.Errorf("expected post 2 untouched, got today=%d total=%d", second.TodayViewCount, second.TotalViewCount)
	}

	if _, err := store.RollupToday(ctx, nil); err != nil {
		t.Fatalf("RollupToday(all) failed: %v", err)
	}
	second, _ = store.Get(ctx, 2)
	if second.TodayViewCount != 0 || second.TotalViewCount != 4 {
		t.Errorf("expected all posts rolled up, got today=%d total=%d", second.TodayViewCount, second.TotalViewCount)
	}
}

func TestPostStore_TopByGroup(t *testing.T) {
	store, _ := newPostStore(t)
	ctx := context.Background()
	_, _ = store.AddViewCounts(ctx, map[int64]int64{2: 10, 1: 1})

	posts, err := store.TopByGroup(ctx, 1, persistence.OnlyPublic(), persistence.Limit(1))
	if err != nil {
		t.Fatalf("TopByGroup failed: %v", err)
	}
	if len(posts) != 1 || posts[0].ID != 2 {
		t.Errorf("expected most viewed post 2 first, got %+v", posts)
	}
}

func TestPostStore_UpdateAndSoftDelete(t *testing.T) {
	store, clock := newPostStore(t)
	ctx := context.Background()

	clock.Advance(time.Hour)
	updated, err := store.Update(ctx, 1, "edited", "new body", "")
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Title != "edited" || !updated.ModifiedAt.Equal(day0.Add(time.Hour)) {
		t.Errorf("unexpected update result %+v", updated)
	}

	if err := store.SoftDelete(ctx, 1); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	if _, err := store.Get(ctx, 1); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("expected disabled post to be hidden, got %v", err)
	}
	if err := store.SoftDelete(ctx, 1); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("expected second delete to report ErrNotFound, got %v", err)
	}
	if _, err := store.Update(ctx, 1, "x", "y", ""); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("expected update of disabled post to fail, got %v", err)
	}

	var attachment persistence.Attachment
	if err := store.DB().NewSelect().Model(&attachment).Where("a.post_id = ?", 1).Scan(ctx); err != nil {
		t.Fatalf("select attachment failed: %v", err)
	}
	if !attachment.Disabled {
		t.Error("expected attachment to be disabled with its post")
	}
}

func TestPostStore_PurgeDisabled(t *testing.T) {
	store, clock := newPostStore(t)
	ctx := context.Background()
	db := store.DB()

	extra := persistence.Post{GroupID: 1, MemberID: 1, Nickname: "alice", Title: "recent", Content: "c"}
	if err := store.Create(ctx, &extra); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// post 1 disabled at day0, post 3 two days later, post 2 stays active
	if err := store.SoftDelete(ctx, 1); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	clock.Advance(48 * time.Hour)
	if err := store.SoftDelete(ctx, extra.ID); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	if _, err := db.NewInsert().Model(&persistence.Like{
		SubjectType: "post", SubjectID: 1, MemberID: 2, CreatedAt: day0, ModifiedAt: day0,
	}).Exec(ctx); err != nil {
		t.Fatalf("insert like failed: %v", err)
	}

	// now = day0 + 8 days, retention 7 days
	now := day0.Add(8 * 24 * time.Hour)
	result, err := store.PurgeDisabled(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeDisabled failed: %v", err)
	}

	if result.Posts != 1 {
		t.Errorf("expected one post purged, got %d", result.Posts)
	}
	if result.Attachments != 1 || len(result.Files) != 1 || result.Files[0] != "posts/1/a-1.png" {
		t.Errorf("expected attachment of post 1 purged, got %+v", result)
	}
	if result.Comments != 1 || result.Likes != 1 {
		t.Errorf("expected comment and like of post 1 purged, got %+v", result)
	}

	var remaining []int64
	if err := db.NewSelect().Model((*persistence.Post)(nil)).Column("id").Order("id").Scan(ctx, &remaining); err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if len(remaining) != 2 || remaining[0] != 2 || remaining[1] != extra.ID {
		t.Errorf("expected active post and recently disabled post to remain, got %v", remaining)
	}

	again, err := store.PurgeDisabled(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("second purge failed: %v", err)
	}
	if again.Posts != 0 || again.Attachments != 0 || len(again.Files) != 0 {
		t.Errorf("expected second purge to remove nothing, got %+v", again)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	db := testsupport.NewSQLiteDB(t)
	ctx := context.Background()

	like := persistence.Like{SubjectType: "post", SubjectID: 1, MemberID: 1, CreatedAt: day0, ModifiedAt: day0}
	if _, err := db.NewInsert().Model(&like).Exec(ctx); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	dup := persistence.Like{SubjectType: "post", SubjectID: 1, MemberID: 1, CreatedAt: day0, ModifiedAt: day0}
	_, err := db.NewInsert().Model(&dup).Exec(ctx)
	if !persistence.IsUniqueViolation(err) {
		t.Errorf("expected unique violation, got %v", err)
	}
	if persistence.IsUniqueViolation(errors.New("other")) {
		t.Error("expected unrelated error not to be a unique violation")
	}
}
