package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// TargetHandle is what a target's owning module exposes to the webhook layer.
type TargetHandle interface {
	Ref() TargetRef
	OwnerID() string
	ValidEventTypes() []string
	SupportsGitRefPattern() bool
}

type TargetLookup func(ctx context.Context, id string) (TargetHandle, error)

type TargetResolver interface {
	Resolve(ctx context.Context, ref TargetRef) (TargetHandle, error)
}

// VisibilityPolicy answers whether viewerID may see subject under the
// subject's normal access rules.
type VisibilityPolicy interface {
	CanView(ctx context.Context, viewerID string, subject TargetRef) (bool, error)
}

type WebhookStore interface {
	Create(ctx context.Context, webhook Webhook) (Webhook, error)
	Get(ctx context.Context, id string) (Webhook, error)
	FindByTarget(ctx context.Context, target TargetRef) ([]Webhook, error)
	Update(ctx context.Context, webhook Webhook) (Webhook, error)
	Delete(ctx context.Context, id string) error
}

// DeliveryJobStore is the durable queue the delivery engine rides on. Job
// state and lease bookkeeping live in the same record.
type DeliveryJobStore interface {
	Enqueue(ctx context.Context, in EnqueueDeliveryInput) (DeliveryJob, error)
	Get(ctx context.Context, id string) (DeliveryJob, error)
	ListByWebhook(ctx context.Context, filter ListDeliveriesFilter) (DeliveryPage, error)

	Claim(ctx context.Context, id string, lease time.Duration) (DeliveryJob, bool, error)
	ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]DeliveryJob, error)

	// SaveResult, Complete, Fail and Reschedule apply only while the job is
	// running under the given claim. A superseded claim gets an error
	// satisfying IsLeaseConflict and changes nothing.
	SaveResult(ctx context.Context, job DeliveryJob) error
	Complete(ctx context.Context, lease DeliveryLease) error
	Fail(ctx context.Context, lease DeliveryLease, message string) error
	Reschedule(ctx context.Context, lease DeliveryLease, delay time.Duration, message string) error
	Retry(ctx context.Context, id string, reset bool) error

	// ClaimUndispatched stamps dispatched_at on committed pending jobs that
	// have not been handed to the execution substrate yet.
	ClaimUndispatched(ctx context.Context, limit int) ([]DeliveryJob, error)
	ReleaseDispatch(ctx context.Context, id string) error

	DeleteByWebhook(ctx context.Context, webhookID string) (int, error)
	Prune(ctx context.Context, finishedBefore time.Time) (int, error)
}

// DeliveryRequest carries everything the HTTP client needs for one attempt.
type DeliveryRequest struct {
	URL       string
	Proxy     string
	UserAgent string
	Timeout   time.Duration
	Secret    string
	JobID     string
	EventType string
	Payload   map[string]any
}

// DeliveryResponse is the raw outcome of one attempt. Headers and Body are
// available for a single log line and are never persisted.
type DeliveryResponse struct {
	ConnectionError string
	StatusCode      int
	Headers         map[string]string
	Body            []byte
}

type DeliveryClient interface {
	Deliver(ctx context.Context, req DeliveryRequest) (DeliveryResponse, error)
}

type SecretCodec interface {
	Seal(ctx context.Context, plaintext string) (string, error)
	Open(ctx context.Context, sealed string) (string, error)
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// DeliveryOutcome reports what happened to a job after one processing pass.
// Claimed is false when another worker holds the lease or the job is not due.
type DeliveryOutcome struct {
	JobID      string
	Claimed    bool
	Status     DeliveryJobStatus
	RetryDelay time.Duration
	Message    string
}

type DeliveryProcessor interface {
	ProcessDelivery(ctx context.Context, jobID string) (DeliveryOutcome, error)
}

type DeliveryDispatcher interface {
	DispatchPending(ctx context.Context, batchSize int) (DispatchStats, error)
}

// TxRunner runs fn inside one transaction carried by the returned context.
// Stores that receive that context write through the same transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type DispatchStats struct {
	Claimed    int
	Dispatched int
	Failed     int
}
