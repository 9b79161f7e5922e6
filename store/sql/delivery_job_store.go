package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-hooks/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

const deliveryJobColumns = `
	id,
	webhook_id,
	job_type,
	status,
	event_type,
	payload,
	result,
	date_first_sent,
	date_sent,
	date_finished,
	scheduled_start,
	attempt_count,
	claim_count,
	lease_expires_at,
	last_error,
	dispatched_at,
	created_at,
	updated_at`

// claimablePredicate matches pending jobs that are due and running jobs
// whose lease has lapsed. Arguments: status pending, now, status running, now.
const claimablePredicate = `(
	(status = ? AND (scheduled_start IS NULL OR scheduled_start <= ?))
	OR (status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at <= ?)
)`

type DeliveryJobStore struct {
	db   *bun.DB
	repo repository.Repository[*deliveryJobRecord]
	now  func() time.Time
}

func NewDeliveryJobStore(db *bun.DB) (*DeliveryJobStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deliveryJobRecord](db, deliveryJobHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid delivery job repository wiring: %w", err)
		}
	}
	return &DeliveryJobStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *DeliveryJobStore) Enqueue(ctx context.Context, in core.EnqueueDeliveryInput) (core.DeliveryJob, error) {
	if s == nil || s.repo == nil {
		return core.DeliveryJob{}, fmt.Errorf("sqlstore: delivery job store is not configured")
	}
	webhookID := strings.TrimSpace(in.WebhookID)
	if webhookID == "" {
		return core.DeliveryJob{}, fmt.Errorf("sqlstore: webhook id is required")
	}
	eventType := strings.TrimSpace(in.EventType)
	if eventType == "" {
		return core.DeliveryJob{}, fmt.Errorf("sqlstore: event type is required")
	}
	payload := in.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	now := s.now()
	record := &deliveryJobRecord{
		ID:        uuid.NewString(),
		WebhookID: webhookID,
		JobType:   core.JobTypeDelivery,
		Status:    string(core.DeliveryJobStatusPending),
		EventType: eventType,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var err error
	if tx, ok := TxFromContext(ctx); ok {
		_, err = s.repo.CreateTx(ctx, tx, record)
	} else {
		_, err = s.repo.Create(ctx, record)
	}
	if err != nil {
		return core.DeliveryJob{}, err
	}
	return record.toDomain(), nil
}

func (s *DeliveryJobStore) Get(ctx context.Context, id string) (core.DeliveryJob, error) {
	if s == nil || s.db == nil {
		return core.DeliveryJob{}, fmt.Errorf("sqlstore: delivery job store is not configured")
	}
	record, err := s.find(ctx, id)
	if err != nil {
		return core.DeliveryJob{}, err
	}
	return record.toDomain(), nil
}

// ListByWebhook pages through a webhook's jobs, newest first.
func (s *DeliveryJobStore) ListByWebhook(ctx context.Context, filter core.ListDeliveriesFilter) (core.DeliveryPage, error) {
	if s == nil || s.repo == nil {
		return core.DeliveryPage{}, fmt.Errorf("sqlstore: delivery job store is not configured")
	}
	webhookID := strings.TrimSpace(filter.WebhookID)
	if webhookID == "" {
		return core.DeliveryPage{}, fmt.Errorf("sqlstore: webhook id is required")
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 50
	}
	records, total, err := s.repo.List(ctx,
		repository.SelectBy("webhook_id", "=", webhookID),
		repository.OrderBy("created_at DESC"),
		repository.OrderBy("id DESC"),
		repository.SelectPaginate(perPage, (page-1)*perPage),
	)
	if err != nil {
		return core.DeliveryPage{}, err
	}
	items := make([]core.DeliveryJob, 0, len(records))
	for _, record := range records {
		items = append(items, record.toDomain())
	}
	return core.DeliveryPage{
		Items:   items,
		Page:    page,
		PerPage: perPage,
		Total:   total,
		HasNext: page*perPage < total,
	}, nil
}

// Claim leases a single job if it is claimable. A job that exists but is
// not claimable comes back with claimed=false.
func (s *DeliveryJobStore) Claim(ctx context.Context, id string, lease time.Duration) (core.DeliveryJob, bool, error) {
	if s == nil || s.db == nil {
		return core.DeliveryJob{}, false, fmt.Errorf("sqlstore: delivery job store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.DeliveryJob{}, false, fmt.Errorf("sqlstore: delivery job id is required")
	}
	now := s.now()
	query := `
UPDATE webhook_delivery_jobs
SET status = ?, attempt_count = attempt_count + 1, claim_count = claim_count + 1,
	lease_expires_at = ?, updated_at = ?
WHERE id = ?
  AND ` + claimablePredicate + `
RETURNING` + deliveryJobColumns

	var records []deliveryJobRecord
	err := conn(ctx, s.db).NewRaw(query,
		string(core.DeliveryJobStatusRunning), now.Add(normalizeLease(lease)), now,
		id,
		string(core.DeliveryJobStatusPending), now, string(core.DeliveryJobStatusRunning), now,
	).Scan(ctx, &records)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return core.DeliveryJob{}, false, err
	}
	if len(records) > 0 {
		return records[0].toDomain(), true, nil
	}
	current, err := s.find(ctx, id)
	if err != nil {
		return core.DeliveryJob{}, false, err
	}
	return current.toDomain(), false, nil
}

// ClaimDue leases up to limit claimable jobs, oldest first.
func (s *DeliveryJobStore) ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]core.DeliveryJob, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: delivery job store is not configured")
	}
	if limit <= 0 {
		limit = 1
	}
	now := s.now()
	query := `
WITH due AS (
	SELECT id
	FROM webhook_delivery_jobs
	WHERE ` + claimablePredicate + `
	ORDER BY created_at ASC, id ASC
	LIMIT ?` + s.skipLocked() + `
)
UPDATE webhook_delivery_jobs
SET status = ?, attempt_count = attempt_count + 1, claim_count = claim_count + 1,
	lease_expires_at = ?, updated_at = ?
WHERE id IN (SELECT id FROM due)
  AND ` + claimablePredicate + `
RETURNING` + deliveryJobColumns

	var records []deliveryJobRecord
	err := conn(ctx, s.db).NewRaw(query,
		string(core.DeliveryJobStatusPending), now, string(core.DeliveryJobStatusRunning), now,
		limit,
		string(core.DeliveryJobStatusRunning), now.Add(normalizeLease(lease)), now,
		string(core.DeliveryJobStatusPending), now, string(core.DeliveryJobStatusRunning), now,
	).Scan(ctx, &records)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return recordsToDomain(records), nil
}

// SaveResult commits the outcome of an attempt. It is the point after which
// an attempt counts even if the worker dies.
func (s *DeliveryJobStore) SaveResult(ctx context.Context, job core.DeliveryJob) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery job store is not configured")
	}
	lease := job.Lease()
	lease.JobID = strings.TrimSpace(lease.JobID)
	if lease.JobID == "" {
		return fmt.Errorf("sqlstore: delivery job id is required")
	}
	res, err := s.fenced(ctx, lease).
		Set("result = ?", resultToMap(job.Result)).
		Set("date_sent = ?", utcPointer(job.DateSent)).
		Set("date_first_sent = ?", utcPointer(job.DateFirstSent)).
		Set("updated_at = ?", s.now()).
		Exec(ctx)
	return s.requireLease(ctx, res, err, lease)
}

func (s *DeliveryJobStore) Complete(ctx context.Context, lease core.DeliveryLease) error {
	return s.finish(ctx, lease, core.DeliveryJobStatusCompleted, "")
}

func (s *DeliveryJobStore) Fail(ctx context.Context, lease core.DeliveryLease, message string) error {
	return s.finish(ctx, lease, core.DeliveryJobStatusFailed, message)
}

// Reschedule returns a job to pending with a start time delay from now. The
// dispatch stamp is kept: queue consumers requeue the message themselves.
func (s *DeliveryJobStore) Reschedule(ctx context.Context, lease core.DeliveryLease, delay time.Duration, message string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery job store is not configured")
	}
	lease.JobID = strings.TrimSpace(lease.JobID)
	if delay < 0 {
		delay = 0
	}
	now := s.now()
	res, err := s.fenced(ctx, lease).
		Set("status = ?", string(core.DeliveryJobStatusPending)).
		Set("scheduled_start = ?", now.Add(delay)).
		Set("lease_expires_at = NULL").
		Set("last_error = ?", strings.TrimSpace(message)).
		Set("updated_at = ?", now).
		Exec(ctx)
	return s.requireLease(ctx, res, err, lease)
}

// Retry puts a job back in the queue to run now and clears its attempt
// count. reset also clears the first send date so the retry window restarts.
// claim_count is kept, so a claim held when Retry ran stays superseded.
func (s *DeliveryJobStore) Retry(ctx context.Context, id string, reset bool) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery job store is not configured")
	}
	id = strings.TrimSpace(id)
	query := conn(ctx, s.db).NewUpdate().
		Model((*deliveryJobRecord)(nil)).
		Set("status = ?", string(core.DeliveryJobStatusPending)).
		Set("scheduled_start = NULL").
		Set("lease_expires_at = NULL").
		Set("date_finished = NULL").
		Set("dispatched_at = NULL").
		Set("attempt_count = 0").
		Set("updated_at = ?", s.now()).
		Where("id = ?", id)
	if reset {
		query = query.Set("date_first_sent = NULL")
	}
	res, err := query.Exec(ctx)
	return requireAffected(res, err, id)
}

// ClaimUndispatched stamps dispatched_at on up to limit pending jobs that
// have not been handed to the execution substrate.
func (s *DeliveryJobStore) ClaimUndispatched(ctx context.Context, limit int) ([]core.DeliveryJob, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: delivery job store is not configured")
	}
	if limit <= 0 {
		limit = 1
	}
	now := s.now()
	query := `
WITH undispatched AS (
	SELECT id
	FROM webhook_delivery_jobs
	WHERE status = ?
	  AND dispatched_at IS NULL
	ORDER BY created_at ASC, id ASC
	LIMIT ?` + s.skipLocked() + `
)
UPDATE webhook_delivery_jobs
SET dispatched_at = ?, updated_at = ?
WHERE id IN (SELECT id FROM undispatched)
  AND dispatched_at IS NULL
RETURNING` + deliveryJobColumns

	var records []deliveryJobRecord
	err := conn(ctx, s.db).NewRaw(query,
		string(core.DeliveryJobStatusPending),
		limit,
		now,
		now,
	).Scan(ctx, &records)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return recordsToDomain(records), nil
}

func (s *DeliveryJobStore) ReleaseDispatch(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery job store is not configured")
	}
	id = strings.TrimSpace(id)
	res, err := conn(ctx, s.db).NewUpdate().
		Model((*deliveryJobRecord)(nil)).
		Set("dispatched_at = NULL").
		Set("attempt_count = 0").
		Set("updated_at = ?", s.now()).
		Where("id = ?", id).
		Exec(ctx)
	return requireAffected(res, err, id)
}

func (s *DeliveryJobStore) DeleteByWebhook(ctx context.Context, webhookID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: delivery job store is not configured")
	}
	webhookID = strings.TrimSpace(webhookID)
	if webhookID == "" {
		return 0, fmt.Errorf("sqlstore: webhook id is required")
	}
	res, err := conn(ctx, s.db).NewDelete().
		Model((*deliveryJobRecord)(nil)).
		Where("webhook_id = ?", webhookID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

// Prune deletes completed and failed jobs that finished before the cutoff.
func (s *DeliveryJobStore) Prune(ctx context.Context, finishedBefore time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: delivery job store is not configured")
	}
	if finishedBefore.IsZero() {
		return 0, fmt.Errorf("sqlstore: prune cutoff is required")
	}
	res, err := conn(ctx, s.db).NewDelete().
		Model((*deliveryJobRecord)(nil)).
		Where("status IN (?)", bun.In([]string{
			string(core.DeliveryJobStatusCompleted),
			string(core.DeliveryJobStatusFailed),
		})).
		Where("date_finished IS NOT NULL").
		Where("date_finished < ?", finishedBefore.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

func (s *DeliveryJobStore) finish(ctx context.Context, lease core.DeliveryLease, status core.DeliveryJobStatus, message string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery job store is not configured")
	}
	lease.JobID = strings.TrimSpace(lease.JobID)
	now := s.now()
	res, err := s.fenced(ctx, lease).
		Set("status = ?", string(status)).
		Set("date_finished = ?", now).
		Set("lease_expires_at = NULL").
		Set("scheduled_start = NULL").
		Set("last_error = ?", strings.TrimSpace(message)).
		Set("updated_at = ?", now).
		Exec(ctx)
	return s.requireLease(ctx, res, err, lease)
}

// fenced scopes an update to the claim that lease names.
func (s *DeliveryJobStore) fenced(ctx context.Context, lease core.DeliveryLease) *bun.UpdateQuery {
	return conn(ctx, s.db).NewUpdate().
		Model((*deliveryJobRecord)(nil)).
		Where("id = ?", lease.JobID).
		Where("status = ?", string(core.DeliveryJobStatusRunning)).
		Where("claim_count = ?", lease.Claim)
}

// requireLease tells a missing job apart from a superseded claim.
func (s *DeliveryJobStore) requireLease(ctx context.Context, res sql.Result, err error, lease core.DeliveryLease) error {
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected > 0 {
		return nil
	}
	if _, err := s.find(ctx, lease.JobID); err != nil {
		return err
	}
	return core.NewLeaseConflictError(lease)
}

func (s *DeliveryJobStore) find(ctx context.Context, id string) (*deliveryJobRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("sqlstore: delivery job id is required")
	}
	record := &deliveryJobRecord{}
	err := conn(ctx, s.db).NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, deliveryJobNotFound(id)
		}
		return nil, err
	}
	return record, nil
}

// skipLocked keeps concurrent postgres claimers off each other's rows.
// SQLite serializes writers and has no row locks.
func (s *DeliveryJobStore) skipLocked() string {
	if s.db.Dialect().Name() == dialect.PG {
		return "\n\tFOR UPDATE SKIP LOCKED"
	}
	return ""
}

func (r *deliveryJobRecord) toDomain() core.DeliveryJob {
	job := core.DeliveryJob{
		ID:             r.ID,
		WebhookID:      r.WebhookID,
		JobType:        r.JobType,
		Status:         core.DeliveryJobStatus(r.Status),
		EventType:      r.EventType,
		Payload:        r.Payload,
		DateCreated:    r.CreatedAt.UTC(),
		DateFirstSent:  utcPointer(r.DateFirstSent),
		DateSent:       utcPointer(r.DateSent),
		DateFinished:   utcPointer(r.DateFinished),
		ScheduledStart: utcPointer(r.ScheduledStart),
		AttemptCount:   r.AttemptCount,
		ClaimCount:     r.ClaimCount,
		LeaseExpiresAt: utcPointer(r.LeaseExpiresAt),
		LastError:      r.LastError,
		DispatchedAt:   utcPointer(r.DispatchedAt),
	}
	if job.Payload == nil {
		job.Payload = map[string]any{}
	}
	if len(r.Result) > 0 {
		job.Result = core.DeliveryResultFromMap(r.Result)
	}
	return job
}

func recordsToDomain(records []deliveryJobRecord) []core.DeliveryJob {
	out := make([]core.DeliveryJob, 0, len(records))
	for i := range records {
		out = append(out, records[i].toDomain())
	}
	return out
}

func resultToMap(result *core.DeliveryResult) map[string]any {
	if result == nil {
		return nil
	}
	return result.ToMap()
}

func normalizeLease(lease time.Duration) time.Duration {
	if lease <= 0 {
		return core.DefaultLeaseDuration
	}
	return lease
}

func utcPointer(value *time.Time) *time.Time {
	if value == nil || value.IsZero() {
		return nil
	}
	utc := value.UTC()
	return &utc
}

func requireAffected(res sql.Result, err error, id string) error {
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return deliveryJobNotFound(id)
	}
	return nil
}

func deliveryJobNotFound(id string) error {
	return core.NewWebhookError("delivery job not found", goerrors.CategoryNotFound, core.WebhookErrorNotFound).
		WithMetadata(map[string]any{"job_id": id})
}
