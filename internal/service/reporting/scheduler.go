package reporting

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// ReportSender performs the actual aggregate-report assembly and delivery.
// The wire format / transport for the outgoing report is collapsed behind
// this interface - a production implementation hands off to SMTP/JMAP
// machinery this package never needs to know about.
type ReportSender interface {
	SendDmarcAggregateReport(ctx context.Context, e ReportEvent) error
	SendTlsAggregateReport(ctx context.Context, group []ReportEvent) error
}

// Scheduler is the report scheduler state machine: scan -> compute next
// wake-up -> spawn a detached dispatch pass -> wait on (timer | inbound
// command).
type Scheduler struct {
	store   Store
	locks   LockStore
	sender  ReportSender
	logger  *slog.Logger
	commands chan ReportingCommand

	// sf is an in-process complement to the distributed lock: it collapses
	// concurrent dispatch passes within *this* process that would
	// otherwise both attempt try_lock on the same key at the same instant
	// (e.g. a pass spawned after a rescan while the previous pass's
	// detached goroutine is still sending). The LockStore (store.go)
	// remains the sole cross-node authority; singleflight never
	// substitutes for it.
	sf singleflight.Group
}

func NewScheduler(store Store, locks LockStore, sender ReportSender, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		locks:    locks,
		sender:   sender,
		logger:   logger,
		commands: make(chan ReportingCommand, 64),
	}
}

// Commands returns the bounded inbound command channel - the send side of
// the "{ Dmarc(e) | Tls(e) | Stop }" command union. The AMQP command
// handler pushes onto this; Run is the only consumer.
func (s *Scheduler) Commands() chan<- ReportingCommand {
	return s.commands
}

// Run drives the scheduler loop until ctx is cancelled or a Stop command
// arrives. Intended to be started once from an fx.Lifecycle OnStart hook,
// running until OnStop cancels ctx.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		now := time.Now().Unix()
		due, nextFuture, err := s.store.NextBatch(ctx, now)
		if err != nil {
			s.logger.Error("REPORT_SCAN_FAILED", "err", err)
		}

		nextWakeUp := time.Duration(ReportRefresh) * time.Second
		if nextFuture != nil && nextFuture.Due > now {
			nextWakeUp = time.Duration(nextFuture.Due-now) * time.Second
		}

		// Dispatch the due batch on a detached goroutine so a slow report
		// send never delays the next scan/wait cycle.
		go s.dispatch(ctx, due)

		timer := time.NewTimer(nextWakeUp)
		select {
		case <-ctx.Done():
			timer.Stop()
			return

		case cmd := <-s.commands:
			timer.Stop()
			if cmd.Stop {
				return
			}
			if cmd.Dmarc != nil {
				if err := s.store.Enqueue(ctx, *cmd.Dmarc); err != nil {
					s.logger.Error("REPORT_SCHEDULE_FAILED", "kind", "dmarc", "err", err)
				}
			}
			if cmd.Tls != nil {
				if err := s.store.Enqueue(ctx, *cmd.Tls); err != nil {
					s.logger.Error("REPORT_SCHEDULE_FAILED", "kind", "tls", "err", err)
				}
			}

		case <-timer.C:
		}
	}
}

// RunOnce performs a single scan/dispatch pass and waits for it to finish,
// bypassing the wait-on-timer loop entirely - the operator-facing "report
// run-once" CLI subcommand uses this against a freshly constructed
// Scheduler rather than racing the long-running Run loop of a live server
// process.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	now := time.Now().Unix()
	due, _, err := s.store.NextBatch(ctx, now)
	if err != nil {
		return 0, err
	}
	s.dispatch(ctx, due)
	return len(due), nil
}

// dispatch sends every due DMARC header individually and every due TLS
// header grouped by domain, each under its own try_lock/unlock pair.
func (s *Scheduler) dispatch(ctx context.Context, due []ReportEvent) {
	tlsGroups := make(map[string][]ReportEvent)

	for _, e := range due {
		switch e.Kind {
		case KindDmarc:
			s.dispatchOne(ctx, e, func() error {
				return s.sender.SendDmarcAggregateReport(ctx, e)
			})
		case KindTls:
			tlsGroups[e.Domain] = append(tlsGroups[e.Domain], e)
		}
	}

	for domain, group := range tlsGroups {
		group := group
		s.dispatchOne(ctx, group[0], func() error {
			return s.sender.SendTlsAggregateReport(ctx, group)
		})
		_ = domain
	}
}

// dispatchOne acquires the distributed lock for e's lock name, runs send,
// then releases - logging a Locked event and skipping entirely if another
// holder already has the lock. A concurrent call for the same lock name in
// this process waits for and shares the first call's outcome through
// singleflight, without a log entry of its own.
func (s *Scheduler) dispatchOne(ctx context.Context, e ReportEvent, send func() error) {
	lockName := e.LockName()

	_, _, _ = s.sf.Do(lockName, func() (any, error) {
		acquired, err := s.locks.TryLock(ctx, lockName, LockExpiry)
		if err != nil {
			s.logger.Error("REPORT_LOCK_ERROR", "lock", lockName, "err", err)
			return nil, nil
		}
		if !acquired {
			s.logger.Info("REPORT_LOCK_CONTENDED", "lock", lockName)
			return nil, nil
		}
		defer func() {
			if err := s.locks.Unlock(ctx, lockName); err != nil {
				s.logger.Error("REPORT_UNLOCK_FAILED", "lock", lockName, "err", err)
			}
		}()

		if err := send(); err != nil {
			s.logger.Error("REPORT_SEND_FAILED", "lock", lockName, "err", err)
			return nil, err
		}
		if err := s.store.Remove(ctx, e); err != nil {
			s.logger.Error("REPORT_REMOVE_FAILED", "lock", lockName, "err", err)
		}
		return nil, nil
	})
}
