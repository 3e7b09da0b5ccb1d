package models

// Trigger names one inbound event that may move a Key between states.
type Trigger string

const (
	TriggerConfirm  Trigger = "confirm"
	TriggerRegister Trigger = "register"
	TriggerCancel   Trigger = "cancel"
	TriggerExpire   Trigger = "expire"
	TriggerLockout  Trigger = "lockout"
	TriggerRecover  Trigger = "recover"

	TriggerDelete        Trigger = "delete"
	TriggerDeleteConfirm Trigger = "delete_confirm"
	TriggerDeleteFail    Trigger = "delete_fail"

	TriggerOwnershipRequest  Trigger = "ownership_request"
	TriggerOwnershipOpen     Trigger = "ownership_open"
	TriggerOwnershipStart    Trigger = "ownership_start"
	TriggerOwnershipWait     Trigger = "ownership_wait"
	TriggerOwnershipConfirm  Trigger = "ownership_confirm"
	TriggerOwnershipComplete Trigger = "ownership_complete"
	TriggerOwnershipCancel   Trigger = "ownership_cancel"

	TriggerPortabilityRequest  Trigger = "portability_request"
	TriggerPortabilityOpen     Trigger = "portability_open"
	TriggerPortabilityStart    Trigger = "portability_start"
	TriggerPortabilityConfirm  Trigger = "portability_confirm"
	TriggerPortabilityComplete Trigger = "portability_complete"
	TriggerPortabilityCancel   Trigger = "portability_cancel"

	TriggerDonorPortabilityOpen         Trigger = "donor_portability_open"
	TriggerDonorPortabilityConfirm      Trigger = "donor_portability_confirm"
	TriggerDonorPortabilityConfirmStart Trigger = "donor_portability_confirm_start"
	TriggerDonorPortabilityAutoConfirm  Trigger = "donor_portability_auto_confirm"
	TriggerDonorPortabilityComplete     Trigger = "donor_portability_complete"
	TriggerDonorPortabilityCancel       Trigger = "donor_portability_cancel"
	TriggerDonorPortabilityCancelStart  Trigger = "donor_portability_cancel_start"
	TriggerDonorPortabilityCanceled     Trigger = "donor_portability_canceled"

	TriggerClaimOpen   Trigger = "claim_open"
	TriggerClaimClose  Trigger = "claim_close"
	TriggerClaimClosed Trigger = "claim_closed"
	TriggerClaimDeny   Trigger = "claim_deny"
)

// Origin says who may fire a trigger.
type Origin string

const (
	// OriginUser triggers are invoked by the key owner over the API.
	OriginUser Origin = "user"
	// OriginCallback triggers are the directory reporting a change.
	OriginCallback Origin = "callback"
	// OriginSystem triggers are fired by the sweeper or the verification gate.
	OriginSystem Origin = "system"
)

// GatewayCall names the directory operation a transition mirrors.
type GatewayCall string

const (
	CallNone                     GatewayCall = ""
	CallRegisterKey              GatewayCall = "RegisterKey"
	CallDeleteKey                GatewayCall = "DeleteKey"
	CallOpenOwnershipClaim       GatewayCall = "OpenOwnershipClaim"
	CallConfirmOwnershipStart    GatewayCall = "ConfirmOwnershipStart"
	CallConfirmOwnership         GatewayCall = "ConfirmOwnership"
	CallCancelOwnership          GatewayCall = "CancelOwnership"
	CallOpenPortabilityClaim     GatewayCall = "OpenPortabilityClaim"
	CallConfirmPortabilityStart  GatewayCall = "ConfirmPortabilityStart"
	CallConfirmPortability       GatewayCall = "ConfirmPortability"
	CallAutoConfirmPortability   GatewayCall = "AutoConfirmPortability"
	CallCancelPortability        GatewayCall = "CancelPortability"
	CallCancelPortabilityRequest GatewayCall = "CancelPortabilityRequest"
	CallCloseClaim               GatewayCall = "CloseClaim"
)

// TriggerSpec is the per-trigger half of the transition table: everything
// that does not depend on the from-state.
type TriggerSpec struct {
	Trigger        Trigger
	Origin         Origin
	Call           GatewayCall
	RequiresReason bool
	// OpensClaim creates the claim of this kind; the trigger then needs a
	// ClaimInput.
	OpensClaim ClaimKind
	// ClaimKind is the kind of the claim the trigger operates on.
	ClaimKind   ClaimKind
	ClaimStatus ClaimStatus
	ClosesClaim bool
}

// RequiresClaimInput reports whether the caller must supply directory claim
// details.
func (s TriggerSpec) RequiresClaimInput() bool {
	return s.OpensClaim != ""
}

// Transition is one edge of the state machine.
type Transition struct {
	TriggerSpec
	From State
	// To is empty for recover from ERROR, which restores the state recorded
	// when the failure happened.
	To State
}

// RestoresPrevious reports whether the target is the key's previous state.
func (t Transition) RestoresPrevious() bool {
	return t.To == ""
}

type rule struct {
	spec  TriggerSpec
	edges map[State]State
}

func toState(to State, from ...State) map[State]State {
	edges := make(map[State]State, len(from))
	for _, f := range from {
		edges[f] = to
	}
	return edges
}

var readyStates = []State{StateReady, StateOwnershipReady, StatePortabilityReady}

var rules = []rule{
	{TriggerSpec{Trigger: TriggerConfirm, Origin: OriginCallback}, map[State]State{
		StatePending:     StateConfirmed,
		StateAddKeyReady: StateReady,
	}},
	{TriggerSpec{Trigger: TriggerRegister, Origin: OriginUser, Call: CallRegisterKey},
		toState(StateAddKeyReady, StateConfirmed)},
	{TriggerSpec{Trigger: TriggerCancel, Origin: OriginUser},
		toState(StateCanceled, StatePending, StateConfirmed, StateNotConfirmed)},
	{TriggerSpec{Trigger: TriggerExpire, Origin: OriginSystem}, map[State]State{
		StatePending:      StateCanceled,
		StateClaimPending: StateClaimNotConfirmed,
	}},
	{TriggerSpec{Trigger: TriggerLockout, Origin: OriginSystem},
		toState(StateNotConfirmed, StatePending)},
	{TriggerSpec{Trigger: TriggerRecover, Origin: OriginUser}, map[State]State{
		StateError:        "",
		StateDeletedError: StateReady,
	}},

	{TriggerSpec{Trigger: TriggerDelete, Origin: OriginUser, Call: CallDeleteKey},
		toState(StateDeleting, readyStates...)},
	{TriggerSpec{Trigger: TriggerDeleteConfirm, Origin: OriginCallback},
		toState(StateDeleted, StateDeleting)},
	{TriggerSpec{Trigger: TriggerDeleteFail, Origin: OriginCallback},
		toState(StateDeletedError, StateDeleting)},

	{TriggerSpec{Trigger: TriggerOwnershipRequest, Origin: OriginUser, Call: CallOpenOwnershipClaim},
		toState(StateOwnershipPending, StateConfirmed)},
	{TriggerSpec{Trigger: TriggerOwnershipOpen, Origin: OriginCallback, OpensClaim: ClaimOwnership, ClaimKind: ClaimOwnership, ClaimStatus: ClaimStatusOpen},
		toState(StateOwnershipOpened, append([]State{StateOwnershipPending}, readyStates...)...)},
	{TriggerSpec{Trigger: TriggerOwnershipStart, Origin: OriginUser, Call: CallConfirmOwnershipStart, ClaimKind: ClaimOwnership, ClaimStatus: ClaimStatusOpen},
		toState(StateOwnershipStarted, StateOwnershipOpened)},
	{TriggerSpec{Trigger: TriggerOwnershipWait, Origin: OriginCallback, ClaimKind: ClaimOwnership, ClaimStatus: ClaimStatusWaitingResolution},
		toState(StateOwnershipWaiting, StateOwnershipStarted)},
	{TriggerSpec{Trigger: TriggerOwnershipConfirm, Origin: OriginUser, Call: CallConfirmOwnership, ClaimKind: ClaimOwnership, ClaimStatus: ClaimStatusConfirmed},
		toState(StateOwnershipConfirmed, StateOwnershipStarted, StateOwnershipWaiting)},
	{TriggerSpec{Trigger: TriggerOwnershipComplete, Origin: OriginCallback, ClaimKind: ClaimOwnership, ClosesClaim: true},
		toState(StateOwnershipReady, StateOwnershipConfirmed)},
	{TriggerSpec{Trigger: TriggerOwnershipCancel, Origin: OriginUser, Call: CallCancelOwnership, RequiresReason: true, ClaimKind: ClaimOwnership, ClosesClaim: true},
		toState(StateOwnershipCanceled, StateOwnershipOpened, StateOwnershipStarted, StateOwnershipWaiting)},

	{TriggerSpec{Trigger: TriggerPortabilityRequest, Origin: OriginUser, Call: CallOpenPortabilityClaim},
		toState(StatePortabilityPending, StateConfirmed)},
	{TriggerSpec{Trigger: TriggerPortabilityOpen, Origin: OriginCallback, OpensClaim: ClaimPortability, ClaimKind: ClaimPortability, ClaimStatus: ClaimStatusOpen},
		toState(StatePortabilityOpened, StatePortabilityPending)},
	{TriggerSpec{Trigger: TriggerPortabilityStart, Origin: OriginUser, Call: CallConfirmPortabilityStart, ClaimKind: ClaimPortability, ClaimStatus: ClaimStatusOpen},
		toState(StatePortabilityStarted, StatePortabilityOpened)},
	{TriggerSpec{Trigger: TriggerPortabilityConfirm, Origin: OriginUser, Call: CallConfirmPortability, ClaimKind: ClaimPortability, ClaimStatus: ClaimStatusConfirmed},
		toState(StatePortabilityConfirmed, StatePortabilityStarted)},
	{TriggerSpec{Trigger: TriggerPortabilityComplete, Origin: OriginCallback, ClaimKind: ClaimPortability, ClosesClaim: true},
		toState(StatePortabilityReady, StatePortabilityConfirmed)},
	{TriggerSpec{Trigger: TriggerPortabilityCancel, Origin: OriginUser, Call: CallCancelPortability, RequiresReason: true, ClaimKind: ClaimPortability, ClosesClaim: true},
		toState(StatePortabilityCanceled, StatePortabilityPending, StatePortabilityOpened, StatePortabilityStarted)},

	{TriggerSpec{Trigger: TriggerDonorPortabilityOpen, Origin: OriginCallback, OpensClaim: ClaimPortability, ClaimKind: ClaimPortability, ClaimStatus: ClaimStatusOpen},
		toState(StatePortabilityRequestPending, readyStates...)},
	{TriggerSpec{Trigger: TriggerDonorPortabilityConfirm, Origin: OriginUser, Call: CallConfirmPortability, ClaimKind: ClaimPortability, ClaimStatus: ClaimStatusConfirmed},
		toState(StatePortabilityRequestConfirmOpened, StatePortabilityRequestPending)},
	{TriggerSpec{Trigger: TriggerDonorPortabilityConfirmStart, Origin: OriginCallback, ClaimKind: ClaimPortability},
		toState(StatePortabilityRequestConfirmStarted, StatePortabilityRequestConfirmOpened)},
	{TriggerSpec{Trigger: TriggerDonorPortabilityAutoConfirm, Origin: OriginSystem, Call: CallAutoConfirmPortability, ClaimKind: ClaimPortability, ClaimStatus: ClaimStatusConfirmed},
		toState(StatePortabilityRequestAutoConfirmed, StatePortabilityRequestPending)},
	{TriggerSpec{Trigger: TriggerDonorPortabilityComplete, Origin: OriginCallback, ClaimKind: ClaimPortability, ClosesClaim: true},
		toState(StateDeleted, StatePortabilityRequestConfirmStarted, StatePortabilityRequestAutoConfirmed)},
	{TriggerSpec{Trigger: TriggerDonorPortabilityCancel, Origin: OriginUser, Call: CallCancelPortabilityRequest, RequiresReason: true, ClaimKind: ClaimPortability, ClaimStatus: ClaimStatusCanceled},
		toState(StatePortabilityRequestCancelOpened, StatePortabilityRequestPending)},
	{TriggerSpec{Trigger: TriggerDonorPortabilityCancelStart, Origin: OriginCallback, ClaimKind: ClaimPortability},
		toState(StatePortabilityRequestCancelStarted, StatePortabilityRequestCancelOpened)},
	{TriggerSpec{Trigger: TriggerDonorPortabilityCanceled, Origin: OriginCallback, ClaimKind: ClaimPortability, ClosesClaim: true},
		toState(StateReady, StatePortabilityRequestCancelStarted)},

	{TriggerSpec{Trigger: TriggerClaimOpen, Origin: OriginCallback, OpensClaim: ClaimOwnership, ClaimKind: ClaimOwnership, ClaimStatus: ClaimStatusOpen},
		toState(StateClaimPending, StateAddKeyReady)},
	{TriggerSpec{Trigger: TriggerClaimClose, Origin: OriginUser, Call: CallCloseClaim, ClaimKind: ClaimOwnership, ClaimStatus: ClaimStatusCompleted},
		toState(StateClaimClosing, StateClaimPending, StateClaimNotConfirmed)},
	{TriggerSpec{Trigger: TriggerClaimClosed, Origin: OriginCallback, ClaimKind: ClaimOwnership, ClosesClaim: true},
		toState(StateClaimClosed, StateClaimClosing)},
	{TriggerSpec{Trigger: TriggerClaimDeny, Origin: OriginCallback, ClaimKind: ClaimOwnership, ClosesClaim: true},
		toState(StateClaimDenied, StateClaimPending, StateClaimNotConfirmed)},
}

type transitionKey struct {
	trigger Trigger
	from    State
}

var (
	// Transitions is the legal-transition table keyed by (trigger, from).
	Transitions = map[transitionKey]Transition{}
	specs       = map[Trigger]TriggerSpec{}
	targets     = map[Trigger][]State{}
	// AllTriggers lists triggers in table order.
	AllTriggers []Trigger
)

func init() {
	for _, r := range rules {
		AllTriggers = append(AllTriggers, r.spec.Trigger)
		specs[r.spec.Trigger] = r.spec
		seen := map[State]bool{}
		for from, to := range r.edges {
			Transitions[transitionKey{r.spec.Trigger, from}] = Transition{TriggerSpec: r.spec, From: from, To: to}
			if to != "" && !seen[to] {
				seen[to] = true
				targets[r.spec.Trigger] = append(targets[r.spec.Trigger], to)
			}
		}
	}
}

// Lookup returns the edge for (t, from) if it is legal.
func Lookup(t Trigger, from State) (Transition, bool) {
	tr, ok := Transitions[transitionKey{t, from}]
	return tr, ok
}

// Spec returns the trigger-level metadata.
func (t Trigger) Spec() (TriggerSpec, bool) {
	s, ok := specs[t]
	return s, ok
}

func (t Trigger) IsValid() bool {
	_, ok := specs[t]
	return ok
}

// Sources lists the legal from-states of t.
func (t Trigger) Sources() []State {
	var out []State
	for _, s := range AllStates {
		if _, ok := Lookup(t, s); ok {
			out = append(out, s)
		}
	}
	return out
}

// Targets lists the states t can produce. Recover's restored states are not
// listed.
func (t Trigger) Targets() []State {
	return targets[t]
}

// TriggersFor returns the triggers of the given origin in table order.
func TriggersFor(origin Origin) []Trigger {
	var out []Trigger
	for _, t := range AllTriggers {
		if specs[t].Origin == origin {
			out = append(out, t)
		}
	}
	return out
}
