package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// PostStore reads and writes posts and their view counters.
type PostStore struct {
	db  *bun.DB
	now func() time.Time
}

// NewPostStore builds a PostStore. now defaults to time.Now.
func NewPostStore(db *bun.DB, now func() time.Time) *PostStore {
	if now == nil {
		now = time.Now
	}
	return &PostStore{db: db, now: now}
}

// DB exposes the underlying handle for callers running their own
// transactions.
func (s *PostStore) DB() *bun.DB { return s.db }

// Get returns an active post.
func (s *PostStore) Get(ctx context.Context, id int64) (Post, error) {
	var post Post
	err := s.db.NewSelect().
		Model(&post).
		Where("p.id = ?", id).
		Where("p.disabled = ?", false).
		Scan(ctx)
	if err != nil {
		return Post{}, notFound(err)
	}
	return post, nil
}

// Create inserts post and fills its id.
func (s *PostStore) Create(ctx context.Context, post *Post) error {
	now := s.now().UTC()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.ModifiedAt = now
	if post.PostStatus == "" {
		post.PostStatus = PostStatusPublic
	}
	_, err := s.db.NewInsert().Model(post).Exec(ctx)
	return err
}

// OnlyPublic keeps posts visible to everyone.
func OnlyPublic() repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("p.post_status IN (?)", bun.In([]string{PostStatusPublic, PostStatusNotice}))
	}
}

// Limit caps the number of rows.
func Limit(n int) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Limit(n)
	}
}

// TopByGroup lists active posts of a group, most viewed today first.
func (s *PostStore) TopByGroup(ctx context.Context, groupID int64, criteria ...repository.SelectCriteria) ([]Post, error) {
	var posts []Post
	q := s.db.NewSelect().
		Model(&posts).
		Where("p.group_id = ?", groupID).
		Where("p.disabled = ?", false).
		OrderExpr("p.today_view_count DESC, p.id DESC")
	for _, c := range criteria {
		q = c(q)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return posts, nil
}

// Update changes the editable fields of an active post.
func (s *PostStore) Update(ctx context.Context, id int64, title, content, status string) (Post, error) {
	var post Post
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewSelect().Model(&post).Where("p.id = ?", id).Where("p.disabled = ?", false)
		if err := ForUpdate(tx, q).Scan(ctx); err != nil {
			return notFound(err)
		}

		post.Title = title
		post.Content = content
		if status != "" {
			post.PostStatus = status
		}
		post.ModifiedAt = s.now().UTC()

		_, err := tx.NewUpdate().
			Model(&post).
			Column("title", "content", "post_status", "modified_at").
			WherePK().
			Exec(ctx)
		return err
	})
	if err != nil {
		return Post{}, err
	}
	return post, nil
}

// SoftDelete disables a post with its attachments and comments. Rows stay
// until the retention window passes.
func (s *PostStore) SoftDelete(ctx context.Context, id int64) error {
	now := s.now().UTC()
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*Post)(nil)).
			Set("disabled = ?", true).
			Set("modified_at = ?", now).
			Where("id = ?", id).
			Where("disabled = ?", false).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}

		for _, model := range []any{(*Attachment)(nil), (*Comment)(nil)} {
			_, err = tx.NewUpdate().
				Model(model).
				Set("disabled = ?", true).
				Set("modified_at = ?", now).
				Where("post_id = ?", id).
				Where("disabled = ?", false).
				Exec(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// AddViewCounts adds deltas to today's view count of each post in one
// transaction. It returns the ids that exist; deltas for missing posts are
// dropped. Nothing is written when any update fails.
func (s *PostStore) AddViewCounts(ctx context.Context, deltas map[int64]int64) ([]int64, error) {
	if len(deltas) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var existing []int64
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		existing = existing[:0]
		if err := tx.NewSelect().
			Model((*Post)(nil)).
			Column("id").
			Where("id IN (?)", bun.In(ids)).
			Order("id").
			Scan(ctx, &existing); err != nil {
			return err
		}

		for _, id := range existing {
			delta := deltas[id]
			if delta == 0 {
				continue
			}
			// relative update so concurrent like_count or content writes survive
			if _, err := tx.NewUpdate().
				Model((*Post)(nil)).
				Set("today_view_count = today_view_count + ?", delta).
				Where("id = ?", id).
				Exec(ctx); err != nil {
				return fmt.Errorf("add views to post %d: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return existing, nil
}

// RollupToday folds today's views into the running total and zeroes them
// for the given posts. An empty list rolls up every post with views today.
func (s *PostStore) RollupToday(ctx context.Context, ids []int64) (int64, error) {
	q := s.db.NewUpdate().
		Model((*Post)(nil)).
		Set("total_view_count = total_view_count + today_view_count").
		Set("today_view_count = 0").
		Where("today_view_count <> 0")
	if len(ids) > 0 {
		q = q.Where("id IN (?)", bun.In(ids))
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
