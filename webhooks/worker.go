package webhooks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-hooks/core"
	glog "github.com/goliatone/go-logger/glog"
	"golang.org/x/sync/errgroup"
)

type WorkerStats struct {
	Claimed    int
	Completed  int
	Retried    int
	Failed     int
	Errored    int
	Superseded int
}

// Worker claims due delivery jobs under a lease and runs them through the
// engine with bounded concurrency. A job whose worker dies keeps its lease
// until expiry and is then claimable again.
type Worker struct {
	engine *Engine
	jobs   core.DeliveryJobStore
	config core.Config
	logger glog.Logger
}

func NewWorker(engine *Engine, jobs core.DeliveryJobStore, cfg core.Config, logger glog.Logger) (*Worker, error) {
	if engine == nil {
		return nil, fmt.Errorf("webhooks: engine is required")
	}
	if jobs == nil {
		return nil, fmt.Errorf("webhooks: delivery job store is required")
	}
	if logger == nil {
		logger = glog.Nop()
	}
	return &Worker{engine: engine, jobs: jobs, config: cfg, logger: logger}, nil
}

// Start polls for due jobs until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	interval := w.config.Worker.PollInterval
	if interval <= 0 {
		interval = core.DefaultWorkerPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("webhook worker pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce claims one batch of due jobs and processes it.
func (w *Worker) RunOnce(ctx context.Context) (WorkerStats, error) {
	batch := w.config.Worker.BatchSize
	if batch <= 0 {
		batch = core.DefaultWorkerBatchSize
	}
	jobs, err := w.jobs.ClaimDue(ctx, batch, w.lease())
	if err != nil {
		return WorkerStats{}, err
	}
	stats := WorkerStats{Claimed: len(jobs)}
	if len(jobs) == 0 {
		return stats, nil
	}

	outcomes := make([]core.DeliveryOutcome, len(jobs))
	errs := make([]error, len(jobs))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(w.concurrency())
	for i := range jobs {
		i := i
		group.Go(func() error {
			outcomes[i], errs[i] = w.process(groupCtx, jobs[i])
			return nil
		})
	}
	_ = group.Wait()

	var passErr error
	for i := range jobs {
		if errs[i] != nil {
			stats.Errored++
			passErr = joinErrors(passErr, errs[i])
			continue
		}
		if !outcomes[i].Claimed {
			stats.Superseded++
			continue
		}
		switch outcomes[i].Status {
		case core.DeliveryJobStatusCompleted:
			stats.Completed++
		case core.DeliveryJobStatusPending:
			stats.Retried++
		case core.DeliveryJobStatusFailed:
			stats.Failed++
		}
	}
	return stats, passErr
}

// ProcessDelivery claims a single job by id and runs it. Used by queue
// consumers that receive job ids instead of polling.
func (w *Worker) ProcessDelivery(ctx context.Context, jobID string) (core.DeliveryOutcome, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return core.DeliveryOutcome{}, fmt.Errorf("webhooks: job id is required")
	}
	job, claimed, err := w.jobs.Claim(ctx, jobID, w.lease())
	if err != nil {
		return core.DeliveryOutcome{JobID: jobID}, err
	}
	if !claimed {
		return core.DeliveryOutcome{JobID: jobID, Claimed: false, Status: job.Status}, nil
	}
	return w.process(ctx, job)
}

func (w *Worker) process(ctx context.Context, job core.DeliveryJob) (core.DeliveryOutcome, error) {
	outcome := core.DeliveryOutcome{JobID: job.ID, Claimed: true}
	lease := job.Lease()
	var settleErr error
	runErr := w.engine.Run(ctx, job)
	if retryable, ok := AsRetryable(runErr); ok {
		outcome.Status = core.DeliveryJobStatusPending
		outcome.RetryDelay = retryable.Delay
		outcome.Message = retryable.Message
		settleErr = w.jobs.Reschedule(ctx, lease, retryable.Delay, retryable.Message)
	} else if terminal, ok := AsTerminal(runErr); ok {
		outcome.Status = core.DeliveryJobStatusFailed
		outcome.Message = terminal.Message
		settleErr = w.jobs.Fail(ctx, lease, terminal.Message)
	} else if runErr == nil {
		outcome.Status = core.DeliveryJobStatusCompleted
		settleErr = w.jobs.Complete(ctx, lease)
	} else {
		settleErr = runErr
	}

	if core.IsLeaseConflict(settleErr) {
		// Another claim owns the job now; its holder settles it.
		w.logger.Warn("webhook delivery lease lost",
			"job_id", job.ID,
			"claim", lease.Claim,
		)
		return core.DeliveryOutcome{JobID: job.ID, Claimed: false, Status: core.DeliveryJobStatusRunning}, nil
	}
	return outcome, settleErr
}

func (w *Worker) lease() time.Duration {
	if w.config.Delivery.LeaseDuration > 0 {
		return w.config.Delivery.LeaseDuration
	}
	return core.DefaultLeaseDuration
}

func (w *Worker) concurrency() int {
	if w.config.Worker.Concurrency > 0 {
		return w.config.Worker.Concurrency
	}
	return core.DefaultWorkerConcurrency
}

func joinErrors(existing error, next error) error {
	if existing == nil {
		return next
	}
	if next == nil {
		return existing
	}
	return fmt.Errorf("%w; %v", existing, next)
}

var _ core.DeliveryProcessor = (*Worker)(nil)
