package core

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

type TargetKind string

const (
	TargetKindGitRepository TargetKind = "git_repository"
	TargetKindBranch        TargetKind = "branch"
	TargetKindSnap          TargetKind = "snap"
	TargetKindLiveFS        TargetKind = "livefs"
	TargetKindOCIRecipe     TargetKind = "oci_recipe"
	TargetKindCharmRecipe   TargetKind = "charm_recipe"
	TargetKindRockRecipe    TargetKind = "rock_recipe"
	TargetKindCraftRecipe   TargetKind = "craft_recipe"
	TargetKindProject       TargetKind = "project"
	TargetKindDistribution  TargetKind = "distribution"
	TargetKindSourcePackage TargetKind = "source_package"
)

// TargetKinds lists every kind a webhook may be attached to.
func TargetKinds() []TargetKind {
	return []TargetKind{
		TargetKindGitRepository,
		TargetKindBranch,
		TargetKindSnap,
		TargetKindLiveFS,
		TargetKindOCIRecipe,
		TargetKindCharmRecipe,
		TargetKindRockRecipe,
		TargetKindCraftRecipe,
		TargetKindProject,
		TargetKindDistribution,
		TargetKindSourcePackage,
	}
}

func (k TargetKind) Valid() bool {
	for _, known := range TargetKinds() {
		if k == known {
			return true
		}
	}
	return false
}

func NormalizeTargetKind(value string) TargetKind {
	return TargetKind(strings.TrimSpace(strings.ToLower(value)))
}

// TargetRef is the opaque foreign key of a webhook target or trigger context.
// Context refs may use kinds outside TargetKinds (bugs, merge proposals, ...).
type TargetRef struct {
	Kind TargetKind
	ID   string
}

func (r TargetRef) IsZero() bool {
	return strings.TrimSpace(string(r.Kind)) == "" && strings.TrimSpace(r.ID) == ""
}

func (r TargetRef) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

func (r TargetRef) normalized() TargetRef {
	return TargetRef{Kind: NormalizeTargetKind(string(r.Kind)), ID: strings.TrimSpace(r.ID)}
}

type Webhook struct {
	ID               string
	Target           TargetRef
	RegistrantID     string
	DeliveryURL      string
	Active           bool
	Secret           *string
	EventTypes       []string
	GitRefPattern    *string
	DateCreated      time.Time
	DateLastModified time.Time
}

func (w Webhook) Subscribes(eventType string) bool {
	eventType = strings.TrimSpace(eventType)
	for _, candidate := range w.EventTypes {
		if candidate == eventType {
			return true
		}
	}
	return false
}

func (w Webhook) SecretValue() string {
	if w.Secret == nil {
		return ""
	}
	return *w.Secret
}

type CreateWebhookInput struct {
	Target        TargetRef
	RegistrantID  string
	DeliveryURL   string
	Active        bool
	Secret        string
	EventTypes    []string
	GitRefPattern string
}

// UpdateWebhookInput applies only the non-nil fields. An empty Secret or
// GitRefPattern clears the stored value.
type UpdateWebhookInput struct {
	DeliveryURL   *string
	Active        *bool
	Secret        *string
	EventTypes    []string
	GitRefPattern *string
}

type DeliveryJobStatus string

const (
	DeliveryJobStatusPending   DeliveryJobStatus = "pending"
	DeliveryJobStatusRunning   DeliveryJobStatus = "running"
	DeliveryJobStatusCompleted DeliveryJobStatus = "completed"
	DeliveryJobStatusFailed    DeliveryJobStatus = "failed"
)

const JobTypeDelivery = "delivery"

const (
	EventTypePing  = "ping"
	PingPayloadKey = "ping"
)

// DeliveryResult is the recorded outcome of the latest attempt. Exactly one
// of the fields is set.
type DeliveryResult struct {
	ConnectionError    *string
	StatusCode         *int
	WebhookDeactivated bool
}

func ConnectionErrorResult(message string) *DeliveryResult {
	return &DeliveryResult{ConnectionError: &message}
}

func ResponseResult(statusCode int) *DeliveryResult {
	return &DeliveryResult{StatusCode: &statusCode}
}

func DeactivatedResult() *DeliveryResult {
	return &DeliveryResult{WebhookDeactivated: true}
}

func (r *DeliveryResult) Successful() bool {
	if r == nil || r.WebhookDeactivated || r.ConnectionError != nil || r.StatusCode == nil {
		return false
	}
	return *r.StatusCode >= http.StatusOK && *r.StatusCode < http.StatusMultipleChoices
}

func (r *DeliveryResult) ErrorMessage() string {
	switch {
	case r == nil:
		return ""
	case r.WebhookDeactivated:
		return "Webhook deactivated"
	case r.ConnectionError != nil:
		return "Connection error: " + *r.ConnectionError
	case r.StatusCode != nil && !r.Successful():
		return fmt.Sprintf("Bad HTTP response: %d", *r.StatusCode)
	default:
		return ""
	}
}

// ToMap renders the persisted JSON shape.
func (r *DeliveryResult) ToMap() map[string]any {
	switch {
	case r == nil:
		return nil
	case r.WebhookDeactivated:
		return map[string]any{"webhook_deactivated": true}
	case r.ConnectionError != nil:
		return map[string]any{"connection_error": *r.ConnectionError}
	case r.StatusCode != nil:
		return map[string]any{"response": map[string]any{"status_code": *r.StatusCode}}
	default:
		return nil
	}
}

func DeliveryResultFromMap(raw map[string]any) *DeliveryResult {
	if len(raw) == 0 {
		return nil
	}
	if deactivated, ok := raw["webhook_deactivated"].(bool); ok && deactivated {
		return DeactivatedResult()
	}
	if value, ok := raw["connection_error"]; ok && value != nil {
		return ConnectionErrorResult(fmt.Sprint(value))
	}
	if response, ok := raw["response"].(map[string]any); ok {
		if code, ok := toInt(response["status_code"]); ok {
			return ResponseResult(code)
		}
	}
	return nil
}

type DeliveryJob struct {
	ID             string
	WebhookID      string
	JobType        string
	Status         DeliveryJobStatus
	EventType      string
	Payload        map[string]any
	Result         *DeliveryResult
	DateCreated    time.Time
	DateFirstSent  *time.Time
	DateSent       *time.Time
	DateFinished   *time.Time
	ScheduledStart *time.Time
	AttemptCount   int
	// ClaimCount counts every claim and is never reset, unlike AttemptCount.
	ClaimCount     int
	LeaseExpiresAt *time.Time
	LastError      string
	DispatchedAt   *time.Time
}

// DeliveryLease identifies one claim of a job. A lease taken over by a later
// claim never matches again.
type DeliveryLease struct {
	JobID string
	Claim int
}

func (j DeliveryJob) Lease() DeliveryLease {
	return DeliveryLease{JobID: j.ID, Claim: j.ClaimCount}
}

// Successful is nil until at least one attempt has been recorded.
func (j DeliveryJob) Successful() *bool {
	if j.Result == nil {
		return nil
	}
	value := j.Result.Successful()
	return &value
}

func (j DeliveryJob) ErrorMessage() string {
	return j.Result.ErrorMessage()
}

func (j DeliveryJob) Pending() bool {
	return j.Status == DeliveryJobStatusPending || j.Status == DeliveryJobStatusRunning
}

type EnqueueDeliveryInput struct {
	WebhookID string
	EventType string
	Payload   map[string]any
}

type TriggerRequest struct {
	Target    TargetRef
	EventType string
	Payload   map[string]any
	// Context defaults to Target when zero.
	Context TargetRef
	GitRefs []string
}

type ListDeliveriesFilter struct {
	WebhookID string
	Page      int
	PerPage   int
}

type DeliveryPage struct {
	Items   []DeliveryJob
	Page    int
	PerPage int
	Total   int
	HasNext bool
}

func toInt(value any) (int, bool) {
	switch typed := value.(type) {
	case int:
		return typed, true
	case int32:
		return int(typed), true
	case int64:
		return int(typed), true
	case float64:
		return int(typed), true
	case float32:
		return int(typed), true
	default:
		return 0, false
	}
}
