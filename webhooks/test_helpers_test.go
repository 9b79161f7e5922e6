package webhooks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-hooks/core"
)

type stubWebhookStore struct {
	hooks map[string]core.Webhook
}

func newStubWebhookStore(hooks ...core.Webhook) *stubWebhookStore {
	store := &stubWebhookStore{hooks: map[string]core.Webhook{}}
	for _, hook := range hooks {
		store.hooks[hook.ID] = hook
	}
	return store
}

func (s *stubWebhookStore) Create(_ context.Context, webhook core.Webhook) (core.Webhook, error) {
	s.hooks[webhook.ID] = webhook
	return webhook, nil
}

func (s *stubWebhookStore) Get(_ context.Context, id string) (core.Webhook, error) {
	hook, ok := s.hooks[id]
	if !ok {
		return core.Webhook{}, fmt.Errorf("webhook %s not found", id)
	}
	return hook, nil
}

func (s *stubWebhookStore) FindByTarget(context.Context, core.TargetRef) ([]core.Webhook, error) {
	return nil, nil
}

func (s *stubWebhookStore) Update(_ context.Context, webhook core.Webhook) (core.Webhook, error) {
	s.hooks[webhook.ID] = webhook
	return webhook, nil
}

func (s *stubWebhookStore) Delete(_ context.Context, id string) error {
	delete(s.hooks, id)
	return nil
}

// recordingJobStore keeps jobs in memory and records the lifecycle calls the
// engine and worker make.
type recordingJobStore struct {
	mu          sync.Mutex
	jobs        map[string]core.DeliveryJob
	saved       []core.DeliveryJob
	completed   []string
	failed      map[string]string
	rescheduled map[string]time.Duration
	saveErr     error
	claimErr    error
}

func newRecordingJobStore(jobs ...core.DeliveryJob) *recordingJobStore {
	store := &recordingJobStore{
		jobs:        map[string]core.DeliveryJob{},
		failed:      map[string]string{},
		rescheduled: map[string]time.Duration{},
	}
	for _, job := range jobs {
		store.jobs[job.ID] = job
	}
	return store
}

func (s *recordingJobStore) Enqueue(_ context.Context, in core.EnqueueDeliveryInput) (core.DeliveryJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := core.DeliveryJob{
		ID:        fmt.Sprintf("job_%d", len(s.jobs)+1),
		WebhookID: in.WebhookID,
		JobType:   core.JobTypeDelivery,
		Status:    core.DeliveryJobStatusPending,
		EventType: in.EventType,
		Payload:   in.Payload,
	}
	s.jobs[job.ID] = job
	return job, nil
}

func (s *recordingJobStore) Get(_ context.Context, id string) (core.DeliveryJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return core.DeliveryJob{}, fmt.Errorf("delivery job %s not found", id)
	}
	return job, nil
}

func (s *recordingJobStore) ListByWebhook(context.Context, core.ListDeliveriesFilter) (core.DeliveryPage, error) {
	return core.DeliveryPage{}, nil
}

func (s *recordingJobStore) Claim(_ context.Context, id string, lease time.Duration) (core.DeliveryJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return core.DeliveryJob{}, false, s.claimErr
	}
	job, ok := s.jobs[id]
	if !ok {
		return core.DeliveryJob{}, false, fmt.Errorf("delivery job %s not found", id)
	}
	if job.Status != core.DeliveryJobStatusPending {
		return job, false, nil
	}
	return s.claimLocked(job, lease), true, nil
}

func (s *recordingJobStore) ClaimDue(_ context.Context, limit int, lease time.Duration) ([]core.DeliveryJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	ids := make([]string, 0, len(s.jobs))
	for id, job := range s.jobs {
		if job.Status == core.DeliveryJobStatusPending {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	claimed := []core.DeliveryJob{}
	for _, id := range ids {
		if len(claimed) >= limit {
			break
		}
		claimed = append(claimed, s.claimLocked(s.jobs[id], lease))
	}
	return claimed, nil
}

func (s *recordingJobStore) claimLocked(job core.DeliveryJob, lease time.Duration) core.DeliveryJob {
	expires := time.Now().UTC().Add(lease)
	job.Status = core.DeliveryJobStatusRunning
	job.AttemptCount++
	job.ClaimCount++
	job.LeaseExpiresAt = &expires
	s.jobs[job.ID] = job
	return job
}

func (s *recordingJobStore) SaveResult(_ context.Context, job core.DeliveryJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	if err := s.fenceLocked(job.Lease()); err != nil {
		return err
	}
	s.saved = append(s.saved, job)
	s.jobs[job.ID] = job
	return nil
}

func (s *recordingJobStore) Complete(_ context.Context, lease core.DeliveryLease) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fenceLocked(lease); err != nil {
		return err
	}
	s.completed = append(s.completed, lease.JobID)
	return s.setStatusLocked(lease.JobID, core.DeliveryJobStatusCompleted)
}

func (s *recordingJobStore) Fail(_ context.Context, lease core.DeliveryLease, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fenceLocked(lease); err != nil {
		return err
	}
	s.failed[lease.JobID] = message
	return s.setStatusLocked(lease.JobID, core.DeliveryJobStatusFailed)
}

func (s *recordingJobStore) Reschedule(_ context.Context, lease core.DeliveryLease, delay time.Duration, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fenceLocked(lease); err != nil {
		return err
	}
	s.rescheduled[lease.JobID] = delay
	job := s.jobs[lease.JobID]
	job.Status = core.DeliveryJobStatusPending
	start := time.Now().UTC().Add(delay)
	job.ScheduledStart = &start
	job.LeaseExpiresAt = nil
	s.jobs[lease.JobID] = job
	return nil
}

// fenceLocked rejects writes from a claim that a later claim has replaced.
func (s *recordingJobStore) fenceLocked(lease core.DeliveryLease) error {
	job, ok := s.jobs[lease.JobID]
	if ok && job.Status == core.DeliveryJobStatusRunning && job.ClaimCount != lease.Claim {
		return core.NewLeaseConflictError(lease)
	}
	return nil
}

// reclaim simulates a second worker claiming id after the first lease lapsed.
func (s *recordingJobStore) reclaim(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claimLocked(s.jobs[id], time.Minute)
}

func (s *recordingJobStore) Retry(_ context.Context, id string, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setStatusLocked(id, core.DeliveryJobStatusPending)
}

func (s *recordingJobStore) ClaimUndispatched(context.Context, int) ([]core.DeliveryJob, error) {
	return nil, nil
}

func (s *recordingJobStore) ReleaseDispatch(context.Context, string) error {
	return nil
}

func (s *recordingJobStore) DeleteByWebhook(context.Context, string) (int, error) {
	return 0, nil
}

func (s *recordingJobStore) Prune(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (s *recordingJobStore) setStatusLocked(id string, status core.DeliveryJobStatus) error {
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("delivery job %s not found", id)
	}
	job.Status = status
	job.LeaseExpiresAt = nil
	s.jobs[id] = job
	return nil
}

func (s *recordingJobStore) lastSaved() core.DeliveryJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saved) == 0 {
		return core.DeliveryJob{}
	}
	return s.saved[len(s.saved)-1]
}

type countingClient struct {
	mu       sync.Mutex
	calls    int
	requests []core.DeliveryRequest
	response core.DeliveryResponse
	err      error
}

func (c *countingClient) Deliver(_ context.Context, req core.DeliveryRequest) (core.DeliveryResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.requests = append(c.requests, req)
	return c.response, c.err
}

type fixedChecker bool

func (f fixedChecker) IsLimitedEffort(context.Context, string) bool {
	return bool(f)
}

func activeHook(id string, url string) core.Webhook {
	secret := "s3cret"
	return core.Webhook{
		ID:          id,
		Target:      core.TargetRef{Kind: core.TargetKindProject, ID: "launchpad"},
		DeliveryURL: url,
		Active:      true,
		Secret:      &secret,
		EventTypes:  []string{"bug:0.1"},
	}
}

func pendingJob(id string, webhookID string) core.DeliveryJob {
	return core.DeliveryJob{
		ID:        id,
		WebhookID: webhookID,
		JobType:   core.JobTypeDelivery,
		Status:    core.DeliveryJobStatusPending,
		EventType: "bug:0.1",
		Payload:   map[string]any{"bug": "/bugs/1", "description": "line one\nline two"},
	}
}
