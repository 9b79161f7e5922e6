package adapters_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-command"
	"github.com/goliatone/go-hooks/adapters/gocommand"
	"github.com/goliatone/go-hooks/adapters/gojob"
	"github.com/goliatone/go-hooks/adapters/gologger"
	hookcommand "github.com/goliatone/go-hooks/command"
	"github.com/goliatone/go-hooks/core"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	glog "github.com/goliatone/go-logger/glog"
)

func TestRuntimeCompatibility_GoJobGoCommandGoLogger(t *testing.T) {
	ctx := context.Background()

	loggers := gologger.ResolveComponents(&compatProvider{logger: compatLogger{}}, nil)
	if loggers.JobProvider == nil || loggers.Consumer == nil {
		t.Fatalf("expected go-job logger bridges")
	}

	captured := &compatEnqueuer{}
	enqueueAdapter := gojob.NewEnqueuerAdapter(captured, loggers.Dispatcher)
	msg := core.DeliveryExecutionMessage(core.DeliveryJob{ID: "job_1", WebhookID: "hook_1", EventType: "push"})
	if err := enqueueAdapter.Enqueue(ctx, msg); err != nil {
		t.Fatalf("enqueue via gojob adapter: %v", err)
	}
	if captured.last == nil || captured.last.JobID != core.DeliveryExecutionJobID {
		t.Fatalf("expected go-job message mapping through enqueuer adapter")
	}
	if captured.last.IdempotencyKey != "job_1" {
		t.Fatalf("expected delivery job id as idempotency key, got %q", captured.last.IdempotencyKey)
	}
	jobID, err := core.DeliveryJobIDFromMessage(gojob.FromExecutionMessage(captured.last))
	if err != nil || jobID != "job_1" {
		t.Fatalf("expected delivery job id round trip, got %q err=%v", jobID, err)
	}

	queueRegistry := jobqueuecommand.NewRegistry()
	commandAdapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	if err := commandAdapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := commandAdapter.RegisterCommand(command.CommandFunc[compatMessage](func(context.Context, compatMessage) error {
		return nil
	})); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := commandAdapter.Initialize(); err != nil {
		t.Fatalf("initialize command registry: %v", err)
	}
	if _, ok := queueRegistry.Get("hooks.compat.command"); !ok {
		t.Fatalf("expected command resolver hook to mirror command into go-job queue registry")
	}
}

func TestRuntimeCompatibility_RetryCommandFeedsConsumer(t *testing.T) {
	svc := &compatMutatingService{}
	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())

	sub, err := gocommand.RegisterAndSubscribe(adapter, hookcommand.NewRetryDeliveryCommand(svc))
	if err != nil {
		t.Fatalf("register retry wrapper: %v", err)
	}
	defer sub.Unsubscribe()
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize adapter: %v", err)
	}

	if err := gocommand.Dispatch(context.Background(), hookcommand.RetryDeliveryMessage{JobID: "job_9", Reset: true}); err != nil {
		t.Fatalf("dispatch retry: %v", err)
	}
	if svc.retryCalls != 1 || svc.lastRetryJobID != "job_9" || !svc.lastRetryReset {
		t.Fatalf("expected retry wrapper invocation, got calls=%d id=%q reset=%v", svc.retryCalls, svc.lastRetryJobID, svc.lastRetryReset)
	}

	// the retried job travels through the queue to the consumer
	enqueued := &compatEnqueuer{}
	if err := gojob.NewEnqueuerAdapter(enqueued, nil).Enqueue(context.Background(), core.DeliveryExecutionMessage(svc.retried)); err != nil {
		t.Fatalf("enqueue retried job: %v", err)
	}
	delivery := &compatDelivery{msg: enqueued.last}
	processor := &compatProcessor{}
	consumer, err := gojob.NewDeliveryConsumer(
		&compatDequeuer{delivery: delivery},
		processor,
		gojob.WithConsumerLogger(glog.Nop()),
	)
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	handled, err := consumer.ConsumeOne(context.Background())
	if err != nil || !handled {
		t.Fatalf("expected handled delivery, got handled=%v err=%v", handled, err)
	}
	if processor.lastJobID != "job_9" {
		t.Fatalf("expected processor to receive job_9, got %q", processor.lastJobID)
	}
	if !delivery.acked {
		t.Fatalf("expected completed delivery to be acked")
	}
}

type compatMessage struct{}

func (compatMessage) Type() string { return "hooks.compat.command" }

type compatEnqueuer struct {
	last *job.ExecutionMessage
}

func (e *compatEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	e.last = msg
	return queue.EnqueueReceipt{DispatchID: "dispatch-" + msg.IdempotencyKey, EnqueuedAt: time.Now()}, nil
}

type compatDequeuer struct {
	delivery *compatDelivery
}

func (d *compatDequeuer) Dequeue(context.Context) (core.JobDelivery, error) {
	if d.delivery == nil {
		return nil, nil
	}
	out := d.delivery
	d.delivery = nil
	return out, nil
}

type compatDelivery struct {
	msg    *job.ExecutionMessage
	acked  bool
	nacked bool
}

func (d *compatDelivery) Message() *core.JobExecutionMessage { return gojob.FromExecutionMessage(d.msg) }

func (d *compatDelivery) Ack(context.Context) error {
	d.acked = true
	return nil
}

func (d *compatDelivery) Nack(context.Context, core.JobNackOptions) error {
	d.nacked = true
	return nil
}

type compatProcessor struct {
	lastJobID string
}

func (p *compatProcessor) ProcessDelivery(_ context.Context, jobID string) (core.DeliveryOutcome, error) {
	p.lastJobID = jobID
	return core.DeliveryOutcome{JobID: jobID, Claimed: true, Status: core.DeliveryJobStatusCompleted}, nil
}

type compatProvider struct {
	logger glog.Logger
}

func (p *compatProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type compatLogger struct{}

func (compatLogger) Trace(string, ...any)                    {}
func (compatLogger) Debug(string, ...any)                    {}
func (compatLogger) Info(string, ...any)                     {}
func (compatLogger) Warn(string, ...any)                     {}
func (compatLogger) Error(string, ...any)                    {}
func (compatLogger) Fatal(string, ...any)                    {}
func (compatLogger) WithContext(context.Context) glog.Logger { return compatLogger{} }

type compatMutatingService struct {
	retryCalls     int
	lastRetryJobID string
	lastRetryReset bool
	retried        core.DeliveryJob
}

func (s *compatMutatingService) CreateWebhook(context.Context, core.CreateWebhookInput) (core.Webhook, error) {
	return core.Webhook{}, nil
}

func (s *compatMutatingService) UpdateWebhook(context.Context, string, core.UpdateWebhookInput) (core.Webhook, error) {
	return core.Webhook{}, nil
}

func (s *compatMutatingService) DeleteWebhook(context.Context, string) error {
	return nil
}

func (s *compatMutatingService) Trigger(context.Context, core.TriggerRequest) (int, error) {
	return 0, nil
}

func (s *compatMutatingService) Ping(context.Context, string) (core.DeliveryJob, error) {
	return core.DeliveryJob{}, nil
}

func (s *compatMutatingService) RetryDelivery(_ context.Context, jobID string, reset bool) (core.DeliveryJob, error) {
	s.retryCalls++
	s.lastRetryJobID = jobID
	s.lastRetryReset = reset
	s.retried = core.DeliveryJob{
		ID:          jobID,
		WebhookID:   "hook_1",
		EventType:   "push",
		Status:      core.DeliveryJobStatusPending,
		DateCreated: time.Now().UTC(),
	}
	return s.retried, nil
}

func (s *compatMutatingService) PruneDeliveries(context.Context, time.Duration) (int, error) {
	return 0, nil
}
