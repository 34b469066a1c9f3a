package like

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/goliatone/go-community-cache/internal/persistence"
)

// Kind is the type of a likeable subject.
type Kind string

// Likeable subjects.
const (
	KindPost    Kind = "post"
	KindComment Kind = "comment"
	KindGroup   Kind = "group"
)

var (
	// ErrUnknownKind is returned for a subject kind without a table.
	ErrUnknownKind = errors.New("like: unknown subject kind")

	// ErrDuplicateAssociation is returned when a concurrent insert created
	// the association first. The caller may retry the toggle.
	ErrDuplicateAssociation = errors.New("like: association already exists")
)

// Result is the state after a toggle.
type Result struct {
	Liked     bool  `json:"liked"`
	LikeID    int64 `json:"likeId"`
	LikeCount int64 `json:"likeCount"`
}

// Service flips like associations between members and subjects and keeps
// the subject like_count in step.
type Service struct {
	db     *bun.DB
	now    func() time.Time
	logger *zap.Logger
}

// NewService builds a Service. now defaults to time.Now.
func NewService(db *bun.DB, now func() time.Time, logger *zap.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, now: now, logger: logger.Named("like")}
}

// Toggle likes subjectID on behalf of actorID when it is not liked yet and
// unlikes it otherwise. The subject row is locked for the whole transaction
// so toggles of one subject never interleave. An association row is
// created once and re-enabled on later likes, so its id is stable.
func (s *Service) Toggle(ctx context.Context, kind Kind, subjectID, actorID int64) (Result, error) {
	model, err := subjectModel(kind)
	if err != nil {
		return Result{}, err
	}

	var result Result
	err = s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		result = Result{}
		now := s.now().UTC()

		var id int64
		q := tx.NewSelect().Model(model).Column("id").Where("id = ?", subjectID).Where("disabled = ?", false)
		if err := persistence.ForUpdate(tx, q).Scan(ctx, &id); err != nil {
			return fmt.Errorf("%s %d: %w", kind, subjectID, mapNotFound(err))
		}

		exists, err := tx.NewSelect().
			Model((*persistence.Member)(nil)).
			Where("id = ?", actorID).
			Where("disabled = ?", false).
			Exists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("member %d: %w", actorID, persistence.ErrNotFound)
		}

		var assoc persistence.Like
		lq := tx.NewSelect().
			Model(&assoc).
			Where("l.subject_type = ?", string(kind)).
			Where("l.subject_id = ?", subjectID).
			Where("l.member_id = ?", actorID)
		err = persistence.ForUpdate(tx, lq).Scan(ctx)

		var delta int64
		switch {
		case errors.Is(err, sql.ErrNoRows):
			assoc = persistence.Like{
				SubjectType: string(kind),
				SubjectID:   subjectID,
				MemberID:    actorID,
				CreatedAt:   now,
				ModifiedAt:  now,
			}
			if _, err := tx.NewInsert().Model(&assoc).Exec(ctx); err != nil {
				if persistence.IsUniqueViolation(err) {
					return ErrDuplicateAssociation
				}
				return err
			}
			delta = 1
		case err != nil:
			return err
		default:
			assoc.Disabled = !assoc.Disabled
			assoc.ModifiedAt = now
			if _, err := tx.NewUpdate().
				Model(&assoc).
				Column("disabled", "modified_at").
				WherePK().
				Exec(ctx); err != nil {
				return err
			}
			delta = 1
			if assoc.Disabled {
				delta = -1
			}
		}

		if _, err := tx.NewUpdate().
			Model(model).
			Set("like_count = like_count + ?", delta).
			Where("id = ?", subjectID).
			Exec(ctx); err != nil {
			return fmt.Errorf("adjust like count of %s %d: %w", kind, subjectID, err)
		}

		var count int64
		if err := tx.NewSelect().Model(model).Column("like_count").Where("id = ?", subjectID).Scan(ctx, &count); err != nil {
			return err
		}

		result = Result{Liked: !assoc.Disabled, LikeID: assoc.ID, LikeCount: count}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	s.logger.Debug("like toggled",
		zap.String("kind", string(kind)),
		zap.Int64("subject", subjectID),
		zap.Int64("member", actorID),
		zap.Bool("liked", result.Liked),
	)
	return result, nil
}

// IsLiked reports whether actorID currently likes the subject.
func (s *Service) IsLiked(ctx context.Context, kind Kind, subjectID, actorID int64) (bool, error) {
	if _, err := subjectModel(kind); err != nil {
		return false, err
	}
	return s.db.NewSelect().
		Model((*persistence.Like)(nil)).
		Where("l.subject_type = ?", string(kind)).
		Where("l.subject_id = ?", subjectID).
		Where("l.member_id = ?", actorID).
		Where("l.disabled = ?", false).
		Exists(ctx)
}

// ParseKind maps a route segment to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, err := subjectModel(k); err != nil {
		return "", err
	}
	return k, nil
}

func subjectModel(kind Kind) (any, error) {
	switch kind {
	case KindPost:
		return (*persistence.Post)(nil), nil
	case KindComment:
		return (*persistence.Comment)(nil), nil
	case KindGroup:
		return (*persistence.Group)(nil), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.ErrNotFound
	}
	return err
}
