package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/goliatone/go-community-cache/cache"
	"github.com/goliatone/go-community-cache/decorator"
)

// FlushResult summarises one counter flush.
type FlushResult struct {
	// Keys is the number of pending counters read.
	Keys int
	// Entities is the number of rows that received views.
	Entities int
	// Views is the total added to durable counters.
	Views int64
	// Ignored counts pending members that do not name an entity of this
	// scheduler or hold no number. They stay in the set.
	Ignored int
	// Unsettled counts counters whose cache side could not be reduced
	// after the durable write committed.
	Unsettled int
}

// ResetResult summarises a daily reset.
type ResetResult struct {
	Flush      FlushResult
	RolledUp   int64
	HistoryLen int
}

// PurgeReport summarises a purge of soft deleted rows.
type PurgeReport struct {
	Posts        int64
	Attachments  int64
	Comments     int64
	Likes        int64
	Files        int
	FilesDeleted bool
}

var errBadCounter = errors.New("malformed counter")

type pending struct {
	key    string
	id     int64
	amount int64
}

// FlushViewCounts moves pending view counts into the durable store. All
// durable updates of a run share one transaction; cache counters are only
// reduced after it commits, and only by the amount that was written, so
// views counted while the flush runs stay for the next run.
//
// Flushes never overlap: each one holds the flush lock, waiting up to
// LockLease for a running flush to finish, and returns a
// *decorator.LockTimeoutError when it does not.
func (s *Scheduler) FlushViewCounts(ctx context.Context) (FlushResult, error) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	return s.flushLock.Do(ctx, nil, s.flushPending)
}

func (s *Scheduler) flushPending(ctx context.Context) (FlushResult, error) {
	var result FlushResult
	setKey := cache.PendingSetKey(s.cfg.Prefix)

	members, err := s.store.SetMembers(ctx, setKey)
	if err != nil {
		return result, fmt.Errorf("read pending set: %w", err)
	}
	result.Keys = len(members)
	if len(members) == 0 {
		return result, nil
	}

	var (
		batch  []pending
		deltas = make(map[int64]int64)
		stale  []string
	)
	for _, key := range members {
		id, ok := cache.EntityID(key, s.cfg.EntityBase)
		if !ok {
			result.Ignored++
			s.logger.Debug("pending member is not an entity counter", zap.String("key", key))
			continue
		}

		amount, err := s.readCounter(ctx, key)
		switch {
		case errors.Is(err, cache.ErrMiss):
			stale = append(stale, key)
			continue
		case errors.Is(err, errBadCounter):
			result.Ignored++
			s.logger.Warn("pending counter is not a number", zap.String("key", key), zap.Error(err))
			continue
		case err != nil:
			return result, fmt.Errorf("read counter %s: %w", key, err)
		case amount <= 0:
			stale = append(stale, key)
			continue
		}

		batch = append(batch, pending{key: key, id: id, amount: amount})
		deltas[id] += amount
	}

	// settling by zero drops the member only if no view arrived since the read
	for _, key := range stale {
		if _, err := s.store.Settle(ctx, key, setKey, 0); err != nil {
			s.logger.Warn("failed to drop stale pending member", zap.String("key", key), zap.Error(err))
		}
	}
	if len(batch) == 0 {
		return result, nil
	}

	existing, err := s.posts.AddViewCounts(ctx, deltas)
	if err != nil {
		// nothing was written, the counters stay pending for the next run
		return result, fmt.Errorf("write view counts: %w", err)
	}
	result.Entities = len(existing)

	written := make(map[int64]bool, len(existing))
	for _, id := range existing {
		written[id] = true
		result.Views += deltas[id]
	}

	for _, p := range batch {
		if !written[p.id] {
			s.logger.Info("dropping views of a missing entity", zap.Int64("id", p.id), zap.Int64("views", p.amount))
		}
		if _, err := s.store.Settle(ctx, p.key, setKey, p.amount); err != nil {
			result.Unsettled++
			s.logger.Error("failed to settle flushed counter, views may be counted twice",
				zap.String("key", p.key),
				zap.Int64("amount", p.amount),
				zap.Error(err),
			)
		}
	}

	if result.Unsettled > 0 {
		return result, fmt.Errorf("%d counters flushed but not settled", result.Unsettled)
	}
	return result, nil
}

// ResetDailyCounters flushes pending counts, folds today's views into the
// running totals and clears the access history. Rows named in the history
// are rolled up; with an empty history every row with views today is.
func (s *Scheduler) ResetDailyCounters(ctx context.Context) (ResetResult, error) {
	var result ResetResult

	flushed, err := s.FlushViewCounts(ctx)
	result.Flush = flushed
	if errors.Is(err, decorator.ErrLockTimeout) {
		// reported as a failure, not as a skipped run
		return result, fmt.Errorf("flush before reset: %s", err.Error())
	}
	if err != nil {
		return result, err
	}

	historyKey := cache.HistorySetKey(s.cfg.Prefix)
	members, err := s.store.SetMembers(ctx, historyKey)
	if err != nil {
		return result, fmt.Errorf("read history set: %w", err)
	}
	result.HistoryLen = len(members)

	seen := make(map[int64]bool, len(members))
	ids := make([]int64, 0, len(members))
	for _, key := range members {
		id, ok := cache.EntityID(key, s.cfg.EntityBase)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(members) > 0 && len(ids) == 0 {
		// history only holds foreign keys, nothing of ours was read
		return result, s.store.SetClear(ctx, historyKey)
	}

	result.RolledUp, err = s.posts.RollupToday(ctx, ids)
	if err != nil {
		return result, fmt.Errorf("roll up daily views: %w", err)
	}

	if err := s.store.SetClear(ctx, historyKey); err != nil {
		return result, fmt.Errorf("clear history set: %w", err)
	}
	return result, nil
}

// PurgeSoftDeleted removes rows disabled longer than the retention window,
// then asks file storage to delete their attachments. Rows go first: a
// failed file deletion leaves an orphaned blob, never an orphaned row.
func (s *Scheduler) PurgeSoftDeleted(ctx context.Context) (PurgeReport, error) {
	cutoff := s.now().Add(-s.cfg.Retention)

	purged, err := s.posts.PurgeDisabled(ctx, cutoff)
	if err != nil {
		return PurgeReport{}, fmt.Errorf("purge rows disabled before %s: %w", cutoff.Format("2006-01-02T15:04:05Z07:00"), err)
	}

	report := PurgeReport{
		Posts:       purged.Posts,
		Attachments: purged.Attachments,
		Comments:    purged.Comments,
		Likes:       purged.Likes,
		Files:       len(purged.Files),
	}
	if len(purged.Files) == 0 {
		return report, nil
	}

	if err := s.files.DeleteFiles(ctx, purged.Files); err != nil {
		s.logger.Warn("failed to delete purged attachment files",
			zap.Int("files", len(purged.Files)),
			zap.Error(err),
		)
		return report, nil
	}
	report.FilesDeleted = true
	return report, nil
}

func (s *Scheduler) readCounter(ctx context.Context, key string) (int64, error) {
	data, err := s.store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s holds %q", errBadCounter, key, data)
	}
	return n, nil
}
