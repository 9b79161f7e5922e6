package core

import (
	"context"
	"strings"
	"time"
)

const (
	defaultDeliveriesPerPage = 50
	maxDeliveriesPerPage     = 500
)

// Trigger fans an event out to every matching webhook on req.Target and
// returns the number of delivery jobs created. Jobs are written through the
// transaction carried by ctx when there is one, so they only become visible
// to the dispatcher once the caller commits.
func (s *Service) Trigger(ctx context.Context, req TriggerRequest) (created int, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"target_kind": string(req.Target.Kind),
		"target_id":   req.Target.ID,
		"event_type":  req.EventType,
	}
	defer func() {
		fields["jobs"] = created
		s.observeOperation(ctx, startedAt, "trigger", err, fields)
	}()

	if err := s.requireWebhookStore(); err != nil {
		return 0, err
	}
	if err := s.requireJobStore(); err != nil {
		return 0, err
	}
	target := req.Target.normalized()
	if !target.Kind.Valid() || target.ID == "" {
		return 0, badInputError("target", "valid target is required")
	}
	eventType := strings.TrimSpace(req.EventType)
	if eventType == "" {
		return 0, badInputError("event_type", "event type is required")
	}

	handle, err := s.targets.Resolve(ctx, target)
	if err != nil {
		return 0, s.mapError(err)
	}
	subject := req.Context.normalized()
	if subject.IsZero() {
		subject = target
	}
	visible, err := s.visibility.CanView(ctx, handle.OwnerID(), subject)
	if err != nil {
		return 0, s.mapError(err)
	}
	if !visible {
		fields["suppressed"] = true
		s.recordCounter(ctx, MetricTriggerSuppressed, 1, map[string]string{
			"target_kind": string(target.Kind),
			"event_type":  eventType,
		})
		return 0, nil
	}

	hooks, err := s.webhookStore.FindByTarget(ctx, target)
	if err != nil {
		return 0, s.mapError(err)
	}
	matched := make([]Webhook, 0, len(hooks))
	for _, hook := range hooks {
		if !hook.Active || !hook.Subscribes(eventType) {
			continue
		}
		if !matchesGitRefs(hook.GitRefPattern, req.GitRefs) {
			continue
		}
		matched = append(matched, hook)
	}
	if len(matched) == 0 {
		return 0, nil
	}

	err = s.txRunner.RunInTx(ctx, func(txCtx context.Context) error {
		for _, hook := range matched {
			if _, err := s.jobStore.Enqueue(txCtx, EnqueueDeliveryInput{
				WebhookID: hook.ID,
				EventType: eventType,
				Payload:   ClonePayload(req.Payload),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, s.mapError(err)
	}
	s.recordCounter(ctx, MetricTriggerJobs, int64(len(matched)), map[string]string{
		"target_kind": string(target.Kind),
		"event_type":  eventType,
	})
	return len(matched), nil
}

// Ping queues a test delivery for a single webhook, bypassing the fan-out
// filters.
func (s *Service) Ping(ctx context.Context, webhookID string) (job DeliveryJob, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"webhook_id": webhookID, "event_type": EventTypePing}
	defer func() {
		s.observeOperation(ctx, startedAt, "ping", err, fields)
	}()

	return s.EnqueueDelivery(ctx, EnqueueDeliveryInput{
		WebhookID: webhookID,
		EventType: EventTypePing,
		Payload:   map[string]any{PingPayloadKey: true},
	})
}

// EnqueueDelivery creates one delivery job for an existing webhook.
func (s *Service) EnqueueDelivery(ctx context.Context, in EnqueueDeliveryInput) (DeliveryJob, error) {
	if err := s.requireJobStore(); err != nil {
		return DeliveryJob{}, err
	}
	webhook, err := s.GetWebhook(ctx, in.WebhookID)
	if err != nil {
		return DeliveryJob{}, err
	}
	eventType := strings.TrimSpace(in.EventType)
	if eventType == "" {
		return DeliveryJob{}, badInputError("event_type", "event type is required")
	}
	job, err := s.jobStore.Enqueue(ctx, EnqueueDeliveryInput{
		WebhookID: webhook.ID,
		EventType: eventType,
		Payload:   ClonePayload(in.Payload),
	})
	if err != nil {
		return DeliveryJob{}, s.mapError(err)
	}
	return job, nil
}

// RetryDelivery puts a job back in the queue immediately. With reset the
// retry window restarts from the next attempt.
func (s *Service) RetryDelivery(ctx context.Context, jobID string, reset bool) (job DeliveryJob, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"job_id": jobID, "reset": reset}
	defer func() {
		s.observeOperation(ctx, startedAt, "retry_delivery", err, fields)
	}()

	if err := s.requireJobStore(); err != nil {
		return DeliveryJob{}, err
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return DeliveryJob{}, badInputError("job_id", "job id is required")
	}
	if err := s.jobStore.Retry(ctx, jobID, reset); err != nil {
		return DeliveryJob{}, s.mapError(err)
	}
	job, err = s.jobStore.Get(ctx, jobID)
	if err != nil {
		return DeliveryJob{}, s.mapError(err)
	}
	return job, nil
}

func (s *Service) GetDelivery(ctx context.Context, jobID string) (DeliveryJob, error) {
	if err := s.requireJobStore(); err != nil {
		return DeliveryJob{}, err
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return DeliveryJob{}, badInputError("job_id", "job id is required")
	}
	job, err := s.jobStore.Get(ctx, jobID)
	if err != nil {
		return DeliveryJob{}, s.mapError(err)
	}
	return job, nil
}

// ListDeliveries returns the delivery history of a webhook, newest first.
func (s *Service) ListDeliveries(ctx context.Context, filter ListDeliveriesFilter) (DeliveryPage, error) {
	if err := s.requireJobStore(); err != nil {
		return DeliveryPage{}, err
	}
	filter.WebhookID = strings.TrimSpace(filter.WebhookID)
	if filter.WebhookID == "" {
		return DeliveryPage{}, badInputError("webhook_id", "webhook id is required")
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PerPage <= 0 {
		filter.PerPage = defaultDeliveriesPerPage
	}
	if filter.PerPage > maxDeliveriesPerPage {
		filter.PerPage = maxDeliveriesPerPage
	}
	page, err := s.jobStore.ListByWebhook(ctx, filter)
	if err != nil {
		return DeliveryPage{}, s.mapError(err)
	}
	return page, nil
}

// PruneDeliveries removes finished jobs older than olderThan. A zero value
// uses the configured retention.
func (s *Service) PruneDeliveries(ctx context.Context, olderThan time.Duration) (deleted int, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		fields["deleted"] = deleted
		s.observeOperation(ctx, startedAt, "prune_deliveries", err, fields)
	}()

	if err := s.requireJobStore(); err != nil {
		return 0, err
	}
	if olderThan <= 0 {
		olderThan = s.config.Retention.Deliveries
	}
	if olderThan <= 0 {
		olderThan = DefaultDeliveryRetention
	}
	fields["older_than"] = olderThan.String()
	deleted, err = s.jobStore.Prune(ctx, s.now().Add(-olderThan))
	if err != nil {
		return 0, s.mapError(err)
	}
	return deleted, nil
}

// matchesGitRefs passes when either side leaves the filter unset.
func matchesGitRefs(pattern *string, refs []string) bool {
	if pattern == nil || strings.TrimSpace(*pattern) == "" || refs == nil {
		return true
	}
	for _, ref := range refs {
		if MatchGlob(*pattern, ref) {
			return true
		}
	}
	return false
}

// ClonePayload deep-copies a JSON-like tree.
func ClonePayload(payload map[string]any) map[string]any {
	if payload == nil {
		return map[string]any{}
	}
	return clonePayloadValue(payload).(map[string]any)
}

func clonePayloadValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, nested := range typed {
			out[key] = clonePayloadValue(nested)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = clonePayloadValue(typed[i])
		}
		return out
	case []string:
		return append([]string(nil), typed...)
	default:
		return value
	}
}
