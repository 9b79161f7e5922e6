package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type memoryWebhookStore struct {
	mu    sync.Mutex
	next  int
	hooks map[string]Webhook
}

func newMemoryWebhookStore() *memoryWebhookStore {
	return &memoryWebhookStore{hooks: map[string]Webhook{}}
}

func (s *memoryWebhookStore) Create(_ context.Context, webhook Webhook) (Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	webhook.ID = fmt.Sprintf("hook_%d", s.next)
	s.hooks[webhook.ID] = webhook
	return webhook, nil
}

func (s *memoryWebhookStore) Get(_ context.Context, id string) (Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	webhook, ok := s.hooks[id]
	if !ok {
		return Webhook{}, fmt.Errorf("webhook %s not found", id)
	}
	return webhook, nil
}

func (s *memoryWebhookStore) FindByTarget(_ context.Context, target TargetRef) ([]Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Webhook{}
	for _, webhook := range s.hooks {
		if webhook.Target == target {
			out = append(out, webhook)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryWebhookStore) Update(_ context.Context, webhook Webhook) (Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hooks[webhook.ID]; !ok {
		return Webhook{}, fmt.Errorf("webhook %s not found", webhook.ID)
	}
	s.hooks[webhook.ID] = webhook
	return webhook, nil
}

func (s *memoryWebhookStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hooks[id]; !ok {
		return fmt.Errorf("webhook %s not found", id)
	}
	delete(s.hooks, id)
	return nil
}

type memoryJobStore struct {
	mu          sync.Mutex
	next        int
	jobs        map[string]DeliveryJob
	enqueueErr  error
	releases    []string
	retryCalls  []bool
	pruneBefore time.Time
}

func newMemoryJobStore() *memoryJobStore {
	return &memoryJobStore{jobs: map[string]DeliveryJob{}}
}

func (s *memoryJobStore) Enqueue(_ context.Context, in EnqueueDeliveryInput) (DeliveryJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enqueueErr != nil {
		return DeliveryJob{}, s.enqueueErr
	}
	s.next++
	job := DeliveryJob{
		ID:          fmt.Sprintf("job_%d", s.next),
		WebhookID:   in.WebhookID,
		JobType:     JobTypeDelivery,
		Status:      DeliveryJobStatusPending,
		EventType:   in.EventType,
		Payload:     in.Payload,
		DateCreated: time.Now().UTC(),
	}
	s.jobs[job.ID] = job
	return job, nil
}

func (s *memoryJobStore) Get(_ context.Context, id string) (DeliveryJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return DeliveryJob{}, fmt.Errorf("delivery job %s not found", id)
	}
	return job, nil
}

func (s *memoryJobStore) ListByWebhook(_ context.Context, filter ListDeliveriesFilter) (DeliveryPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := []DeliveryJob{}
	for _, job := range s.jobs {
		if job.WebhookID == filter.WebhookID {
			items = append(items, job)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })
	return DeliveryPage{Items: items, Page: filter.Page, PerPage: filter.PerPage, Total: len(items)}, nil
}

func (s *memoryJobStore) Claim(context.Context, string, time.Duration) (DeliveryJob, bool, error) {
	return DeliveryJob{}, false, nil
}

func (s *memoryJobStore) ClaimDue(context.Context, int, time.Duration) ([]DeliveryJob, error) {
	return nil, nil
}

func (s *memoryJobStore) SaveResult(context.Context, DeliveryJob) error { return nil }

func (s *memoryJobStore) Complete(context.Context, DeliveryLease) error { return nil }

func (s *memoryJobStore) Fail(context.Context, DeliveryLease, string) error { return nil }

func (s *memoryJobStore) Reschedule(context.Context, DeliveryLease, time.Duration, string) error {
	return nil
}

func (s *memoryJobStore) Retry(_ context.Context, id string, reset bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("delivery job %s not found", id)
	}
	s.retryCalls = append(s.retryCalls, reset)
	job.Status = DeliveryJobStatusPending
	job.AttemptCount = 0
	job.ScheduledStart = nil
	if reset {
		job.DateFirstSent = nil
	}
	s.jobs[id] = job
	return nil
}

func (s *memoryJobStore) ClaimUndispatched(_ context.Context, limit int) ([]DeliveryJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.jobs))
	for id, job := range s.jobs {
		if job.DispatchedAt == nil && job.Status == DeliveryJobStatusPending {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	now := time.Now().UTC()
	out := make([]DeliveryJob, 0, len(ids))
	for _, id := range ids {
		job := s.jobs[id]
		job.DispatchedAt = &now
		s.jobs[id] = job
		out = append(out, job)
	}
	return out, nil
}

func (s *memoryJobStore) ReleaseDispatch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases = append(s.releases, id)
	job := s.jobs[id]
	job.DispatchedAt = nil
	s.jobs[id] = job
	return nil
}

func (s *memoryJobStore) DeleteByWebhook(_ context.Context, webhookID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, job := range s.jobs {
		if job.WebhookID == webhookID {
			delete(s.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *memoryJobStore) Prune(_ context.Context, finishedBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneBefore = finishedBefore
	return 0, nil
}

func (s *memoryJobStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *memoryJobStore) all() []DeliveryJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DeliveryJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type recordingMetrics struct {
	mu       sync.Mutex
	counters map[string]int64
}

func (r *recordingMetrics) IncCounter(_ context.Context, name string, value int64, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counters == nil {
		r.counters = map[string]int64{}
	}
	r.counters[name] += value
}

func (r *recordingMetrics) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func (r *recordingMetrics) counter(name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[name]
}

type stubEnqueuer struct {
	mu       sync.Mutex
	messages []*JobExecutionMessage
	failFor  map[string]bool
}

func (e *stubEnqueuer) Enqueue(_ context.Context, msg *JobExecutionMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, _ := DeliveryJobIDFromMessage(msg)
	if e.failFor[id] {
		return fmt.Errorf("queue unavailable")
	}
	e.messages = append(e.messages, msg)
	return nil
}

var bugTarget = TargetRef{Kind: TargetKindProject, ID: "launchpad"}

var repoTarget = TargetRef{Kind: TargetKindGitRepository, ID: "repo-1"}

func newTestService(t interface {
	Fatalf(format string, args ...any)
}, visibility VisibilityPolicy) (*Service, *memoryWebhookStore, *memoryJobStore) {
	registry := NewTargetRegistry()
	if err := registry.Register(TargetKindProject, func(_ context.Context, id string) (TargetHandle, error) {
		return StaticTarget{
			Target:     TargetRef{Kind: TargetKindProject, ID: id},
			Owner:      "owner-1",
			EventTypes: []string{"bug:0.1", "bug:comment:0.1"},
		}, nil
	}); err != nil {
		t.Fatalf("register project lookup: %v", err)
	}
	if err := registry.Register(TargetKindGitRepository, func(_ context.Context, id string) (TargetHandle, error) {
		return StaticTarget{
			Target:        TargetRef{Kind: TargetKindGitRepository, ID: id},
			Owner:         "owner-2",
			EventTypes:    []string{"git:push:0.1", "merge-proposal:0.1"},
			GitRefPattern: true,
		}, nil
	}); err != nil {
		t.Fatalf("register repository lookup: %v", err)
	}

	hooks := newMemoryWebhookStore()
	jobs := newMemoryJobStore()
	opts := []Option{
		WithWebhookStore(hooks),
		WithDeliveryJobStore(jobs),
		WithTargetResolver(registry),
	}
	if visibility != nil {
		opts = append(opts, WithVisibilityPolicy(visibility))
	}
	svc, err := NewService(Config{}, opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, hooks, jobs
}
