// Package reconcile moves state accumulated in the cache store back into the
// durable store and cleans up soft deleted rows.
//
// Three tasks run on cron specs:
//
//	flush_view_counts     every 10 minutes, adds pending view counters to posts
//	reset_daily_counters  at midnight, flushes and folds today's views into totals
//	purge_soft_deleted    at 04:00, deletes rows disabled longer than the retention
//
// Every run holds a lock named after its task, acquired without waiting.
// When another instance already holds it the run is skipped. A failed run
// is logged and retried at the next tick; all tasks are safe to repeat.
//
// Basic usage:
//
//	sched, err := reconcile.NewScheduler(store, postStore, reconcile.DefaultConfig(),
//		reconcile.WithLogger(logger),
//		reconcile.WithFileDeleter(files),
//	)
//	if err != nil {
//		return err
//	}
//	sched.Start()
//	defer sched.Stop(ctx)
package reconcile
