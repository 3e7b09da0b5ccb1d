package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dictkeys/internal/key/events"
	"dictkeys/internal/key/models"
	dErrors "dictkeys/pkg/domain-errors"
	"dictkeys/pkg/platform/sentinel"
)

// TestApply_EveryTriggerFromEveryState walks the full states x triggers grid.
// Pairs without an edge must fail with InvalidState and leave the key, the
// outbox and the directory untouched; pairs with an edge must land on the
// edge's target and emit exactly one event.
func TestApply_EveryTriggerFromEveryState(t *testing.T) {
	for _, trigger := range models.AllTriggers {
		spec, ok := trigger.Spec()
		require.True(t, ok)
		for _, from := range models.AllStates {
			tr, legal := models.Lookup(trigger, from)
			t.Run(fmt.Sprintf("%s/%s", trigger, from), func(t *testing.T) {
				h := newHarness(t)
				key := h.seedKey(from)
				if spec.ClaimKind != "" && !spec.RequiresClaimInput() {
					h.seedClaim(key, spec.ClaimKind)
				}
				in := TriggerInput{KeyID: key.ID, Reason: "requested by test"}
				if spec.RequiresClaimInput() {
					c := claimInput()
					in.Claim = &c
				}

				if !legal {
					_, err := h.service.Apply(h.ctx(), trigger, in)
					require.Error(t, err)
					assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState), "got %v", err)
					stored := h.reload(key.ID)
					assert.Equal(t, from, stored.State)
					assert.Equal(t, key.Version, stored.Version)
					assert.Empty(t, h.outbox.Events())
					return
				}

				h.allowGateway()
				got, err := h.service.Apply(h.ctx(), trigger, in)
				require.NoError(t, err)

				want := tr.To
				if tr.RestoresPrevious() {
					want = key.PreviousState
				}
				assert.Equal(t, want, got.State)
				assert.Equal(t, from, got.PreviousState)
				assert.Equal(t, trigger, got.LastTrigger)
				assert.Equal(t, key.Version+1, got.Version)
				assert.Equal(t, []string{events.Name(string(trigger), want)}, h.outbox.Names())

				_, claimErr := h.claims.FindByKey(context.Background(), key.ID, spec.ClaimKind)
				switch {
				case spec.OpensClaim != "":
					assert.NoError(t, claimErr, "opening trigger stores the claim")
				case spec.ClosesClaim:
					assert.ErrorIs(t, claimErr, sentinel.ErrNotFound, "closing trigger leaves no open claim")
					history, err := h.claims.ListByKey(context.Background(), key.ID)
					require.NoError(t, err)
					var closed []*models.Claim
					for _, c := range history {
						if c.Kind == spec.ClaimKind && c.ClosedAt != nil {
							closed = append(closed, c)
						}
					}
					if assert.Len(t, closed, 1, "closing trigger keeps the claim with its closing date") {
						assert.Equal(t, h.now, *closed[0].ClosedAt)
					}
				}
			})
		}
	}
}

func TestTransitionTable_CoversEveryState(t *testing.T) {
	reachable := map[models.State]bool{models.StatePending: true}
	for _, trigger := range models.AllTriggers {
		for _, s := range trigger.Sources() {
			reachable[s] = true
		}
		for _, s := range trigger.Targets() {
			reachable[s] = true
		}
	}
	reachable[models.StateError] = true
	for _, s := range models.AllStates {
		assert.True(t, reachable[s], "state %s is not part of any transition", s)
	}
}
