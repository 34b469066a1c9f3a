package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/uptrace/bun"
)

// PurgeResult reports what a purge removed. Files lists the storage paths of
// the deleted attachments; the rows are already gone when it is returned.
type PurgeResult struct {
	Posts       int64
	Attachments int64
	Comments    int64
	Likes       int64
	Files       []string
}

// PurgeDisabled physically deletes posts and attachments disabled before
// cutoff, together with the comments and likes of those posts. Everything
// happens in one transaction; running it again with the same cutoff finds
// nothing left to delete.
func (s *PostStore) PurgeDisabled(ctx context.Context, cutoff time.Time) (PurgeResult, error) {
	var result PurgeResult
	cutoff = cutoff.UTC()

	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		result = PurgeResult{}

		var postIDs []int64
		if err := tx.NewSelect().
			Model((*Post)(nil)).
			Column("id").
			Where("disabled = ?", true).
			Where("modified_at < ?", cutoff).
			Scan(ctx, &postIDs); err != nil {
			return err
		}

		var attachments []Attachment
		q := tx.NewSelect().Model(&attachments).Column("id", "store_file_path")
		if len(postIDs) > 0 {
			q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.
					WhereGroup(" OR ", expiredGroup(cutoff)).
					WhereOr("post_id IN (?)", bun.In(postIDs))
			})
		} else {
			q = q.WhereGroup(" AND ", expiredGroup(cutoff))
		}
		if err := q.Scan(ctx); err != nil {
			return err
		}

		if len(attachments) > 0 {
			ids := make([]int64, len(attachments))
			for i, a := range attachments {
				ids[i] = a.ID
				if a.StoreFilePath != "" {
					result.Files = append(result.Files, a.StoreFilePath)
				}
			}
			res, err := tx.NewDelete().Model((*Attachment)(nil)).Where("id IN (?)", bun.In(ids)).Exec(ctx)
			if err != nil {
				return err
			}
			result.Attachments, _ = res.RowsAffected()
		}

		if len(postIDs) == 0 {
			return nil
		}

		var commentIDs []int64
		if err := tx.NewSelect().
			Model((*Comment)(nil)).
			Column("id").
			Where("post_id IN (?)", bun.In(postIDs)).
			Scan(ctx, &commentIDs); err != nil {
			return err
		}

		likes := tx.NewDelete().
			Model((*Like)(nil)).
			Where("subject_type = ? AND subject_id IN (?)", "post", bun.In(postIDs))
		if len(commentIDs) > 0 {
			likes = likes.WhereOr("subject_type = ? AND subject_id IN (?)", "comment", bun.In(commentIDs))
		}
		res, err := likes.Exec(ctx)
		if err != nil {
			return err
		}
		result.Likes, _ = res.RowsAffected()

		if len(commentIDs) > 0 {
			res, err = tx.NewDelete().Model((*Comment)(nil)).Where("id IN (?)", bun.In(commentIDs)).Exec(ctx)
			if err != nil {
				return err
			}
			result.Comments, _ = res.RowsAffected()
		}

		res, err = tx.NewDelete().
			Model((*Post)(nil)).
			Where("id IN (?)", bun.In(postIDs)).
			Where("disabled = ?", true).
			Exec(ctx)
		if err != nil {
			return err
		}
		result.Posts, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return PurgeResult{}, err
	}
	return result, nil
}

func expiredGroup(cutoff time.Time) func(*bun.SelectQuery) *bun.SelectQuery {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("disabled = ?", true).Where("modified_at < ?", cutoff)
	}
}
