package service

//go:generate mockgen -source=service.go -destination=mocks/service_mock.go -package=mocks KeyStore,ClaimStore,VerificationStore,CodeSender,AuditPublisher
//go:generate mockgen -source=../gateway/gateway.go -destination=mocks/gateway_mock.go -package=mocks Gateway

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"dictkeys/internal/key/events"
	"dictkeys/internal/key/gateway"
	"dictkeys/internal/key/models"
	"dictkeys/internal/key/service/mocks"
	claimstore "dictkeys/internal/key/store/claim"
	keystore "dictkeys/internal/key/store/key"
	verificationstore "dictkeys/internal/key/store/verification"
	txcontext "dictkeys/pkg/platform/tx"
	"dictkeys/pkg/requestcontext"
)

const testCounterpartISPB = "99999999"

// harness wires the engine to in-memory stores and gomock ports.
type harness struct {
	t             *testing.T
	gateway       *mocks.MockGateway
	sender        *mocks.MockCodeSender
	keys          *keystore.InMemory
	claims        *claimstore.InMemory
	verifications *verificationstore.InMemory
	outbox        *events.MemoryOutbox
	service       *Service
	owner         uuid.UUID
	now           time.Time

	mu    sync.Mutex
	codes map[uuid.UUID]string
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	h := &harness{
		t:             t,
		gateway:       mocks.NewMockGateway(ctrl),
		sender:        mocks.NewMockCodeSender(ctrl),
		keys:          keystore.NewInMemory(),
		claims:        claimstore.NewInMemory(),
		verifications: verificationstore.NewInMemory(),
		outbox:        events.NewMemoryOutbox(),
		owner:         uuid.New(),
		now:           time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
		codes:         map[uuid.UUID]string{},
	}
	h.sender.EXPECT().SendCode(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, key *models.Key, code string) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.codes[key.ID] = code
			return nil
		}).AnyTimes()

	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithCodeSender(h.sender),
		WithParticipant("12345678"),
	}, opts...)
	svc, err := New(h.keys, h.claims, h.verifications, txcontext.NewMemoryRunner(), h.gateway, h.outbox, opts...)
	require.NoError(t, err)
	h.service = svc
	return h
}

func (h *harness) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), h.now)
}

func (h *harness) code(keyID uuid.UUID) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.codes[keyID]
}

// seedKey stores a key directly in state, bypassing the engine.
func (h *harness) seedKey(state models.State) *models.Key {
	h.t.Helper()
	key, err := models.NewKey(uuid.New(), h.owner, models.KeyTypeEVP, "", "", h.now.Add(-time.Hour))
	require.NoError(h.t, err)
	key.State = state
	if state == models.StateError {
		key.PreviousState = models.StateReady
		key.LastTrigger = models.TriggerDelete
	}
	require.NoError(h.t, h.keys.Create(context.Background(), key))
	return key
}

func (h *harness) seedClaim(key *models.Key, kind models.ClaimKind) *models.Claim {
	h.t.Helper()
	claim := models.NewClaim(uuid.New(), key, kind, claimInput(), h.now.Add(-time.Hour))
	require.NoError(h.t, h.claims.Create(context.Background(), claim))
	return claim
}

func (h *harness) reload(id uuid.UUID) *models.Key {
	h.t.Helper()
	key, err := h.keys.FindByID(context.Background(), id)
	require.NoError(h.t, err)
	return key
}

// allowGateway accepts every directory call.
func (h *harness) allowGateway() {
	ok := func() *gateway.Response { return &gateway.Response{Status: "OK", Timestamp: h.now} }
	x := gomock.Any()
	h.gateway.EXPECT().RegisterKey(x, x).Return(ok(), nil).AnyTimes()
	h.gateway.EXPECT().DeleteKey(x, x).Return(ok(), nil).AnyTimes()
	h.gateway.EXPECT().OpenClaim(x, x, x).Return(ok(), nil).AnyTimes()
	h.gateway.EXPECT().ConfirmOwnershipStart(x, x).Return(ok(), nil).AnyTimes()
	h.gateway.EXPECT().ConfirmOwnership(x, x).Return(ok(), nil).AnyTimes()
	h.gateway.EXPECT().CancelOwnership(x, x).Return(ok(), nil).AnyTimes()
	h.gateway.EXPECT().ConfirmPortabilityStart(x, x).Return(ok(), nil).AnyTimes()
	h.gateway.EXPECT().ConfirmPortability(x, x).Return(ok(), nil).AnyTimes()
	h.gateway.EXPECT().AutoConfirmPortability(x, x).Return(ok(), nil).AnyTimes()
	h.gateway.EXPECT().CancelPortability(x, x).Return(ok(), nil).AnyTimes()
	h.gateway.EXPECT().CancelPortabilityRequest(x, x).Return(ok(), nil).AnyTimes()
	h.gateway.EXPECT().CloseClaim(x, x).Return(ok(), nil).AnyTimes()
}

func claimInput() models.ClaimInput {
	return models.ClaimInput{
		DirectoryClaimID: "dir-" + uuid.NewString(),
		CounterpartISPB:  testCounterpartISPB,
	}
}
