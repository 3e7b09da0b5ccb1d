package models

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "dictkeys/pkg/domain-errors"
)

// KeyType is the addressing key variant.
type KeyType string

const (
	KeyTypeCPF   KeyType = "CPF"
	KeyTypeCNPJ  KeyType = "CNPJ"
	KeyTypePhone KeyType = "PHONE"
	KeyTypeEmail KeyType = "EMAIL"
	KeyTypeEVP   KeyType = "EVP"
)

func (t KeyType) IsValid() bool {
	switch t {
	case KeyTypeCPF, KeyTypeCNPJ, KeyTypePhone, KeyTypeEmail, KeyTypeEVP:
		return true
	}
	return false
}

// RequiresVerification reports whether ownership of the value must be proven
// with a one-time code before the key is confirmed.
func (t KeyType) RequiresVerification() bool {
	return t == KeyTypePhone || t == KeyTypeEmail
}

const maxEmailLength = 77

var (
	cpfPattern   = regexp.MustCompile(`^\d{11}$`)
	cnpjPattern  = regexp.MustCompile(`^\d{14}$`)
	phonePattern = regexp.MustCompile(`^\+\d{10,14}$`)
	ispbPattern  = regexp.MustCompile(`^\d{8}$`)
)

// NormalizeValue validates value for t and returns its canonical form. An
// empty EVP value is replaced by a fresh random one.
func NormalizeValue(t KeyType, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch t {
	case KeyTypeCPF:
		if !cpfPattern.MatchString(value) {
			return "", dErrors.New(dErrors.CodeValidation, "CPF key must have 11 digits")
		}
	case KeyTypeCNPJ:
		if !cnpjPattern.MatchString(value) {
			return "", dErrors.New(dErrors.CodeValidation, "CNPJ key must have 14 digits")
		}
	case KeyTypePhone:
		if !phonePattern.MatchString(value) {
			return "", dErrors.New(dErrors.CodeValidation, "phone key must be in E.164 format")
		}
	case KeyTypeEmail:
		value = strings.ToLower(value)
		at := strings.Index(value, "@")
		if at < 1 || at == len(value)-1 || len(value) > maxEmailLength {
			return "", dErrors.New(dErrors.CodeValidation, "email key is malformed")
		}
	case KeyTypeEVP:
		if value == "" {
			return uuid.NewString(), nil
		}
		parsed, err := uuid.Parse(value)
		if err != nil {
			return "", dErrors.New(dErrors.CodeValidation, "random key must be a uuid")
		}
		value = parsed.String()
	default:
		return "", dErrors.New(dErrors.CodeValidation, "unknown key type")
	}
	return value, nil
}

// ValidISPB reports whether s is an 8-digit participant identifier.
func ValidISPB(s string) bool {
	return ispbPattern.MatchString(s)
}

// Key is the aggregate root for one registered addressing key.
//
// Invariants:
//   - State is always a member of AllStates
//   - At most one Key with a non-terminal State exists per Value
//   - State only changes along edges of Transitions, or to ERROR on a
//     failed directory call
//   - PreviousState holds the state before the last change; recover from
//     ERROR restores it
//   - LastTrigger is the trigger that produced the current State and is the
//     basis for idempotent replays
//   - Version increases by one on every persisted change
type Key struct {
	ID             uuid.UUID
	Value          string
	Type           KeyType
	OwnerID        uuid.UUID
	OwnerDocument  string
	State          State
	PreviousState  State
	LastTrigger    Trigger
	FailureCode    string
	FailureMessage string
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	StateChangedAt time.Time
}

func NewKey(id, ownerID uuid.UUID, keyType KeyType, value, ownerDocument string, now time.Time) (*Key, error) {
	if ownerID == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeValidation, "owner is required")
	}
	if !keyType.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown key type")
	}
	normalized, err := NormalizeValue(keyType, value)
	if err != nil {
		return nil, err
	}
	return &Key{
		ID:             id,
		Value:          normalized,
		Type:           keyType,
		OwnerID:        ownerID,
		OwnerDocument:  strings.TrimSpace(ownerDocument),
		State:          StatePending,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
		StateChangedAt: now,
	}, nil
}

// AlreadyApplied reports whether t is a replay of the trigger that produced
// the current state.
func (k *Key) AlreadyApplied(t Trigger) bool {
	if k.LastTrigger != t {
		return false
	}
	if t == TriggerRecover {
		return !k.State.IsFailure()
	}
	for _, target := range t.Targets() {
		if k.State == target {
			return true
		}
	}
	return false
}

// ApplyTransition moves the key along tr. Call Lookup first.
func (k *Key) ApplyTransition(tr Transition, now time.Time) {
	to := tr.To
	if tr.RestoresPrevious() {
		to = k.PreviousState
	}
	k.PreviousState = k.State
	k.State = to
	k.LastTrigger = tr.Trigger
	k.FailureCode = ""
	k.FailureMessage = ""
	k.touch(now)
}

// ApplyFailure records a failed directory call for trigger and parks the
// key in ERROR.
func (k *Key) ApplyFailure(trigger Trigger, code, message string, now time.Time) {
	k.PreviousState = k.State
	k.State = StateError
	k.LastTrigger = trigger
	k.FailureCode = code
	k.FailureMessage = message
	k.touch(now)
}

func (k *Key) touch(now time.Time) {
	k.Version++
	k.UpdatedAt = now
	k.StateChangedAt = now
}

// PublicKey is the projection other subsystems read. Directory-internal
// fields are not exposed.
type PublicKey struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Type      KeyType   `json:"type"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (k *Key) Public() PublicKey {
	return PublicKey{
		ID:        k.ID.String(),
		Key:       k.Value,
		Type:      k.Type,
		State:     k.State,
		CreatedAt: k.CreatedAt,
		UpdatedAt: k.UpdatedAt,
	}
}

// AgeField selects the timestamp an overdue query measures against.
type AgeField string

const (
	AgeFromCreated     AgeField = "created_at"
	AgeFromStateChange AgeField = "state_changed_at"
)

func (k *Key) Age(field AgeField) time.Time {
	if field == AgeFromCreated {
		return k.CreatedAt
	}
	return k.StateChangedAt
}
