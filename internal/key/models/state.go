package models

import "strings"

// State is the local, authoritative lifecycle state of a Key.
type State string

const (
	StatePending       State = "PENDING"
	StateConfirmed     State = "CONFIRMED"
	StateNotConfirmed  State = "NOT_CONFIRMED"
	StateAddKeyReady   State = "ADD_KEY_READY"
	StateReady         State = "READY"
	StateCanceled      State = "CANCELED"
	StateError         State = "ERROR"
	StateDeleting      State = "DELETING"
	StateDeleted       State = "DELETED"
	StateDeletedError  State = "DELETED_ERROR"

	StatePortabilityPending   State = "PORTABILITY_PENDING"
	StatePortabilityOpened    State = "PORTABILITY_OPENED"
	StatePortabilityStarted   State = "PORTABILITY_STARTED"
	StatePortabilityReady     State = "PORTABILITY_READY"
	StatePortabilityConfirmed State = "PORTABILITY_CONFIRMED"
	StatePortabilityCanceled  State = "PORTABILITY_CANCELED"

	StatePortabilityRequestPending        State = "PORTABILITY_REQUEST_PENDING"
	StatePortabilityRequestCancelOpened   State = "PORTABILITY_REQUEST_CANCEL_OPENED"
	StatePortabilityRequestCancelStarted  State = "PORTABILITY_REQUEST_CANCEL_STARTED"
	StatePortabilityRequestConfirmOpened  State = "PORTABILITY_REQUEST_CONFIRM_OPENED"
	StatePortabilityRequestConfirmStarted State = "PORTABILITY_REQUEST_CONFIRM_STARTED"
	StatePortabilityRequestAutoConfirmed  State = "PORTABILITY_REQUEST_AUTO_CONFIRMED"

	StateOwnershipPending   State = "OWNERSHIP_PENDING"
	StateOwnershipOpened    State = "OWNERSHIP_OPENED"
	StateOwnershipStarted   State = "OWNERSHIP_STARTED"
	StateOwnershipConfirmed State = "OWNERSHIP_CONFIRMED"
	StateOwnershipReady     State = "OWNERSHIP_READY"
	StateOwnershipCanceled  State = "OWNERSHIP_CANCELED"
	StateOwnershipWaiting   State = "OWNERSHIP_WAITING"

	StateClaimNotConfirmed State = "CLAIM_NOT_CONFIRMED"
	StateClaimPending      State = "CLAIM_PENDING"
	StateClaimClosing      State = "CLAIM_CLOSING"
	StateClaimDenied       State = "CLAIM_DENIED"
	StateClaimClosed       State = "CLAIM_CLOSED"
)

// AllStates lists every member of the state set.
var AllStates = []State{
	StatePending, StateConfirmed, StateNotConfirmed, StateAddKeyReady, StateReady,
	StateCanceled, StateError, StateDeleting, StateDeleted, StateDeletedError,
	StatePortabilityPending, StatePortabilityOpened, StatePortabilityStarted,
	StatePortabilityReady, StatePortabilityConfirmed, StatePortabilityCanceled,
	StatePortabilityRequestPending, StatePortabilityRequestCancelOpened,
	StatePortabilityRequestCancelStarted, StatePortabilityRequestConfirmOpened,
	StatePortabilityRequestConfirmStarted, StatePortabilityRequestAutoConfirmed,
	StateOwnershipPending, StateOwnershipOpened, StateOwnershipStarted,
	StateOwnershipConfirmed, StateOwnershipReady, StateOwnershipCanceled,
	StateOwnershipWaiting,
	StateClaimNotConfirmed, StateClaimPending, StateClaimClosing, StateClaimDenied,
	StateClaimClosed,
}

// TerminalStates do not block re-registration of the same key value.
var TerminalStates = []State{StateDeleted, StateCanceled, StateClaimClosed, StateClaimDenied}

func (s State) IsValid() bool {
	for _, known := range AllStates {
		if s == known {
			return true
		}
	}
	return false
}

func (s State) IsTerminal() bool {
	for _, t := range TerminalStates {
		if s == t {
			return true
		}
	}
	return false
}

// IsFailure reports whether only recover can leave s.
func (s State) IsFailure() bool {
	return s == StateError || s == StateDeletedError
}

func (s State) String() string {
	return string(s)
}

// Lower is the form used in event names.
func (s State) Lower() string {
	return strings.ToLower(string(s))
}
