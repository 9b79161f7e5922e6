package gojob

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-hooks/core"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/adapters/postgres"
	_ "github.com/mattn/go-sqlite3"
)

type queueClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *queueClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *queueClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestSQLQueue(t *testing.T) (*SQLQueue, *queueClock) {
	t.Helper()
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	clock := &queueClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	q, err := NewSQLQueue(db, SQLQueueConfig{Driver: "sqlite3", VisibilityTimeout: time.Minute},
		postgres.WithClock(clock.Now),
	)
	if err != nil {
		t.Fatalf("new sql queue: %v", err)
	}
	if err := q.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate queue: %v", err)
	}
	return q, clock
}

func TestSQLQueue_EnqueueDequeueAckRoundTrip(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestSQLQueue(t)

	msg := core.DeliveryExecutionMessage(core.DeliveryJob{ID: "job_1", WebhookID: "hook_1", EventType: "git:push:0.1"})
	receipt, err := NewEnqueuerAdapter(q, nil).EnqueueWithReceipt(ctx, msg)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if receipt.DispatchID == "" || receipt.EnqueuedAt.IsZero() {
		t.Fatalf("expected a dispatch receipt, got %+v", receipt)
	}

	delivery, err := NewDequeuerAdapter(q, RetryPolicy{}).Dequeue(ctx)
	if err != nil || delivery == nil {
		t.Fatalf("expected delivery, got %v err=%v", delivery, err)
	}
	jobID, err := core.DeliveryJobIDFromMessage(delivery.Message())
	if err != nil || jobID != "job_1" {
		t.Fatalf("expected delivery job id to survive the broker, got %q err=%v", jobID, err)
	}
	if got := delivery.Message().Parameters[core.DeliveryParamEventType]; got != "git:push:0.1" {
		t.Fatalf("expected event type parameter, got %#v", got)
	}
	if err := delivery.Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}

	status, err := q.GetDispatchStatus(ctx, receipt.DispatchID)
	if err != nil {
		t.Fatalf("dispatch status: %v", err)
	}
	if status.State != queue.DispatchStateSucceeded {
		t.Fatalf("expected succeeded dispatch, got %s", status.State)
	}
	if next, err := q.Dequeue(ctx); err != nil || next != nil {
		t.Fatalf("expected empty queue after ack, got %v err=%v", next, err)
	}
}

func TestSQLQueue_DelayedRetryAndDeadLetter(t *testing.T) {
	ctx := context.Background()
	q, clock := newTestSQLQueue(t)

	receipt, err := NewEnqueuerAdapter(q, nil).EnqueueWithReceipt(ctx, core.DeliveryExecutionMessage(core.DeliveryJob{ID: "job_2"}))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	dequeuer := NewDequeuerAdapter(q, RetryPolicy{MaxDelay: 10 * time.Minute})

	delivery, err := dequeuer.Dequeue(ctx)
	if err != nil || delivery == nil {
		t.Fatalf("expected delivery, got err=%v", err)
	}
	if err := delivery.Nack(ctx, core.JobNackOptions{Delay: time.Hour, Requeue: true, Reason: "Bad HTTP response: 503"}); err != nil {
		t.Fatalf("nack: %v", err)
	}
	status, err := q.GetDispatchStatus(ctx, receipt.DispatchID)
	if err != nil || status.State != queue.DispatchStateRetrying {
		t.Fatalf("expected retrying dispatch, got %+v err=%v", status, err)
	}
	if status.NextRunAt == nil || !status.NextRunAt.Equal(clock.Now().Add(10*time.Minute)) {
		t.Fatalf("expected retry delay to be capped, got %v", status.NextRunAt)
	}

	clock.Advance(9 * time.Minute)
	if next, err := dequeuer.Dequeue(ctx); err != nil || next != nil {
		t.Fatalf("expected delayed message to stay hidden, got %v err=%v", next, err)
	}

	clock.Advance(time.Minute)
	delivery, err = dequeuer.Dequeue(ctx)
	if err != nil || delivery == nil {
		t.Fatalf("expected delayed message once due, got err=%v", err)
	}
	if err := delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: "unsupported job"}); err != nil {
		t.Fatalf("dead letter: %v", err)
	}
	status, err = q.GetDispatchStatus(ctx, receipt.DispatchID)
	if err != nil || status.State != queue.DispatchStateDeadLetter || status.TerminalReason != "unsupported job" {
		t.Fatalf("expected dead-lettered dispatch, got %+v err=%v", status, err)
	}
}

func TestSQLQueue_ExpiredLeaseIsRedelivered(t *testing.T) {
	ctx := context.Background()
	q, clock := newTestSQLQueue(t)

	if err := NewEnqueuerAdapter(q, nil).Enqueue(ctx, core.DeliveryExecutionMessage(core.DeliveryJob{ID: "job_3"})); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	dequeuer := NewDequeuerAdapter(q, RetryPolicy{})
	first, err := dequeuer.Dequeue(ctx)
	if err != nil || first == nil {
		t.Fatalf("expected delivery, got err=%v", err)
	}
	if next, err := dequeuer.Dequeue(ctx); err != nil || next != nil {
		t.Fatalf("expected leased message to be hidden, got %v err=%v", next, err)
	}

	clock.Advance(time.Minute)
	second, err := dequeuer.Dequeue(ctx)
	if err != nil || second == nil {
		t.Fatalf("expected redelivery after the lease expired, got err=%v", err)
	}
	if got := second.(*DeliveryAdapter).Attempt(); got != 2 {
		t.Fatalf("expected second attempt, got %d", got)
	}
	if err := first.Ack(ctx); err == nil {
		t.Fatalf("expected stale delivery ack to be rejected")
	}
	if err := second.Ack(ctx); err != nil {
		t.Fatalf("ack current lease: %v", err)
	}
}

func TestSQLQueue_FeedsDeliveryConsumer(t *testing.T) {
	ctx := context.Background()
	q, clock := newTestSQLQueue(t)
	if err := NewEnqueuerAdapter(q, nil).Enqueue(ctx, core.DeliveryExecutionMessage(core.DeliveryJob{ID: "job_4"})); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	processor := &scriptedProcessor{outcomes: map[string]core.DeliveryOutcome{
		"job_4": {
			JobID:      "job_4",
			Claimed:    true,
			Status:     core.DeliveryJobStatusPending,
			RetryDelay: time.Hour,
			Message:    "Bad HTTP response: 500",
		},
	}}
	hook := &capturingHook{}
	consumer, err := NewDeliveryConsumer(
		NewDequeuerAdapter(q, RetryPolicy{MaxAttempts: 2, DeadLetterOnMax: true}),
		processor,
		WithConsumerHook(hook),
	)
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}

	handled, err := consumer.ConsumeOne(ctx)
	if err != nil || !handled {
		t.Fatalf("expected handled message, got handled=%v err=%v", handled, err)
	}
	if len(hook.retries) != 1 || hook.retries[0].Delay != time.Hour {
		t.Fatalf("expected retry event with the engine delay, got %+v", hook.retries)
	}
	handled, err = consumer.ConsumeOne(ctx)
	if err != nil || handled {
		t.Fatalf("expected nothing due before the retry delay, got handled=%v err=%v", handled, err)
	}

	clock.Advance(time.Hour)
	handled, err = consumer.ConsumeOne(ctx)
	if err != nil || !handled {
		t.Fatalf("expected redelivered message, got handled=%v err=%v", handled, err)
	}
	if len(processor.calls) != 2 {
		t.Fatalf("expected two processing attempts, got %v", processor.calls)
	}

	clock.Advance(time.Hour)
	handled, err = consumer.ConsumeOne(ctx)
	if err != nil || handled {
		t.Fatalf("expected exhausted message to leave the queue, got handled=%v err=%v", handled, err)
	}
}
