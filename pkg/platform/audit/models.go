package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategoryCompliance covers changes to key ownership that must be
	// retained for the directory's dispute process.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers verification failures and lockouts.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity such as sweeps.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        uuid.UUID
	Category  EventCategory
	Timestamp time.Time
	UserID    uuid.UUID
	// Subject is the key ID the action applies to.
	Subject   string
	Action    string
	Decision  string
	Reason    string
	RequestID string
	// ActorID is set when the action was not initiated by the key owner,
	// e.g. "sweeper" or "directory".
	ActorID string
}

type AuditEvent string

const (
	EventKeyRegistered           AuditEvent = "key_registered"
	EventVerificationAttempted   AuditEvent = "verification_attempted"
	EventVerificationCodeIssued  AuditEvent = "verification_code_issued"
	EventVerificationLockedOut   AuditEvent = "verification_locked_out"
	EventKeyTransitionApplied    AuditEvent = "key_transition_applied"
	EventKeyTransitionFailed     AuditEvent = "key_transition_failed"
	EventKeyRecovered            AuditEvent = "key_recovered"
	EventSweepCompleted          AuditEvent = "sweep_completed"
	EventCallbackTokenRejected   AuditEvent = "callback_token_rejected"
	EventOwnershipClaimCompleted AuditEvent = "ownership_claim_completed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventKeyRegistered:           CategoryCompliance,
	EventKeyTransitionApplied:    CategoryCompliance,
	EventKeyRecovered:            CategoryCompliance,
	EventOwnershipClaimCompleted: CategoryCompliance,

	EventVerificationAttempted:  CategorySecurity,
	EventVerificationLockedOut:  CategorySecurity,
	EventKeyTransitionFailed:    CategorySecurity,
	EventCallbackTokenRejected:  CategorySecurity,
	EventVerificationCodeIssued: CategoryOperations,

	EventSweepCompleted: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Event, error)
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
}
