package reporting

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSender struct {
	dmarcCalls atomic.Int32
	tlsCalls   atomic.Int32
}

func (f *fakeSender) SendDmarcAggregateReport(ctx context.Context, e ReportEvent) error {
	f.dmarcCalls.Add(1)
	return nil
}

func (f *fakeSender) SendTlsAggregateReport(ctx context.Context, group []ReportEvent) error {
	f.tlsCalls.Add(1)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// S5: two schedulers sharing a LockStore contend for the same due DMARC
// report; exactly one must send it.
func TestReportLockContention(t *testing.T) {
	store := NewMemStore()
	locks := NewMemLockStore()
	now := time.Now().Unix()
	ev := ReportEvent{Due: now - 1, Domain: "x", Kind: KindDmarc, PolicyHash: 1, SeqID: 1}
	_ = store.Enqueue(context.Background(), ev)

	sender1 := &fakeSender{}
	sender2 := &fakeSender{}
	s1 := NewScheduler(store, locks, sender1, testLogger())
	s2 := NewScheduler(store, locks, sender2, testLogger())

	ctx := context.Background()
	due, _, _ := store.NextBatch(ctx, now)

	done := make(chan struct{}, 2)
	go func() { s1.dispatch(ctx, due); done <- struct{}{} }()
	go func() { s2.dispatch(ctx, due); done <- struct{}{} }()
	<-done
	<-done

	total := sender1.dmarcCalls.Load() + sender2.dmarcCalls.Load()
	if total != 1 {
		t.Fatalf("expected exactly one dmarc send across both schedulers, got %d", total)
	}
}

// The next wake-up must be the true minimum future due across the whole
// scan, not whatever NextBatch happens to return last.
func TestNextWakeUpUsesMinimumFutureDue(t *testing.T) {
	store := NewMemStore()
	now := time.Now().Unix()

	far := ReportEvent{Due: now + 10000, Domain: "far", Kind: KindDmarc, PolicyHash: 1, SeqID: 1}
	near := ReportEvent{Due: now + 5, Domain: "near", Kind: KindDmarc, PolicyHash: 2, SeqID: 2}
	_ = store.Enqueue(context.Background(), far)
	_ = store.Enqueue(context.Background(), near)

	_, nextFuture, err := store.NextBatch(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if nextFuture == nil {
		t.Fatal("expected a next future event")
	}
	if nextFuture.Due != near.Due {
		t.Fatalf("expected the nearer due (%d) to win, got %d", near.Due, nextFuture.Due)
	}
}

func TestTlsReportsGroupedByDomain(t *testing.T) {
	store := NewMemStore()
	locks := NewMemLockStore()
	now := time.Now().Unix()

	for i := 0; i < 3; i++ {
		_ = store.Enqueue(context.Background(), ReportEvent{
			Due: now - 1, Domain: "example.com", Kind: KindTls, PolicyHash: uint64(i), SeqID: uint64(i),
		})
	}

	sender := &fakeSender{}
	sched := NewScheduler(store, locks, sender, testLogger())

	due, _, _ := store.NextBatch(context.Background(), now)
	sched.dispatch(context.Background(), due)

	time.Sleep(10 * time.Millisecond)
	if got := sender.tlsCalls.Load(); got != 1 {
		t.Fatalf("expected one grouped TLS send for the shared domain, got %d", got)
	}
}
