package reporting

import "context"

// Store is the persisted report-event queue the scheduler scans. Real
// deployments back this with whatever key/value store the mail server
// already uses; this package only needs the range-scan and enqueue/remove
// operations below.
type Store interface {
	// NextBatch returns every ReportEvent with Due <= now, in (kind, due,
	// policy_hash, seq_id, domain) order, plus the event with the smallest
	// Due > now across the full key space, if any, for wake-up timing.
	NextBatch(ctx context.Context, now int64) (due []ReportEvent, nextFuture *ReportEvent, err error)
	// Enqueue persists a new ReportEvent, called when a ReportingCommand
	// schedules fresh work.
	Enqueue(ctx context.Context, e ReportEvent) error
	// Remove deletes an event once its report has been sent.
	Remove(ctx context.Context, e ReportEvent) error
}

// LockStore is the distributed advisory-lock service: try_lock(key, ttl)
// and unlock. Its methods take no namespace argument: a lock is identified
// by its key (ReportEvent.LockName) alone.
type LockStore interface {
	// TryLock installs an advisory lock under key, returning true iff this
	// call installed it (not if it was already held). The lock
	// auto-expires after ttlSeconds even if never
	// explicitly unlocked, guaranteeing liveness if a holder crashes.
	TryLock(ctx context.Context, key string, ttlSeconds int64) (bool, error)
	// Unlock releases a lock this caller believes it holds. Safe to call
	// even if the lock already expired.
	Unlock(ctx context.Context, key string) error
}

// LockNamespaceQueueReport is the namespace tag for report-queue locks.
// No LockStore call in this package passes it, and MemLockStore does not
// use it.
const LockNamespaceQueueReport = "queue-report"
