// Package events defines the notifications the workflow engine emits after
// every persisted transition, and the outbox that delivers them.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dictkeys/internal/key/models"
)

// CreateAction names the pseudo-trigger of the event emitted when a key is
// first registered.
const CreateAction = "create"

// Payload is the public projection of the key at emission time plus the
// failure details for ERROR transitions.
type Payload struct {
	ID             string         `json:"id"`
	Key            string         `json:"key"`
	Type           models.KeyType `json:"type"`
	State          models.State   `json:"state"`
	CreatedAt      time.Time      `json:"createdAt"`
	Reason         string         `json:"reason,omitempty"`
	FailureCode    string         `json:"failureCode,omitempty"`
	FailureMessage string         `json:"failureMessage,omitempty"`
}

type Event struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    Payload   `json:"payload"`
}

// Notifier delivers one event per persisted transition. Emit is called
// inside the engine's unit of work; an error aborts the transition.
type Notifier interface {
	Emit(ctx context.Context, event Event) error
}

// Name builds "key.<action>.<state>" with the state in lower case.
func Name(action string, state models.State) string {
	return fmt.Sprintf("key.%s.%s", action, state.Lower())
}

// ForKey builds the event for key having just reached its current state via
// action.
func ForKey(key *models.Key, action, reason string, now time.Time) Event {
	return Event{
		ID:         uuid.New(),
		Name:       Name(action, key.State),
		OccurredAt: now,
		Payload: Payload{
			ID:             key.ID.String(),
			Key:            key.Value,
			Type:           key.Type,
			State:          key.State,
			CreatedAt:      key.CreatedAt,
			Reason:         reason,
			FailureCode:    key.FailureCode,
			FailureMessage: key.FailureMessage,
		},
	}
}

// Record is one outbox row.
type Record struct {
	ID          uuid.UUID
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
	PublishedAt *time.Time
}

func newRecord(event Event) (Record, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return Record{}, fmt.Errorf("marshal event: %w", err)
	}
	return Record{
		ID:          event.ID,
		AggregateID: event.Payload.ID,
		EventType:   event.Name,
		Payload:     body,
		CreatedAt:   event.OccurredAt,
	}, nil
}
