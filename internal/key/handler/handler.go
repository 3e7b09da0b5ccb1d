// Package handler exposes the key directory over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	keymetrics "dictkeys/internal/key/metrics"
	"dictkeys/internal/key/models"
	"dictkeys/internal/key/service"
	"dictkeys/pkg/domain"
	dErrors "dictkeys/pkg/domain-errors"
	"dictkeys/pkg/platform/httputil"
	"dictkeys/pkg/platform/middleware/auth"
	"dictkeys/pkg/platform/middleware/callback"
	"dictkeys/pkg/requestcontext"
)

// Service is the part of the key service the handlers call.
type Service interface {
	Register(ctx context.Context, req service.RegisterRequest) (*models.Key, error)
	Get(ctx context.Context, userID, keyID uuid.UUID) (*models.Key, error)
	ListByOwner(ctx context.Context, userID uuid.UUID) ([]*models.Key, error)
	ListClaims(ctx context.Context, userID, keyID uuid.UUID) ([]*models.Claim, error)
	VerifyCode(ctx context.Context, req service.VerifyRequest) (*models.Key, error)
	ResendCode(ctx context.Context, userID, keyID uuid.UUID) error
	Apply(ctx context.Context, trigger models.Trigger, in service.TriggerInput) (*models.Key, error)
}

type Handler struct {
	keys          Service
	logger        *slog.Logger
	metrics       *keymetrics.Metrics
	validator     auth.TokenValidator
	callbackToken string
}

func New(keys Service, validator auth.TokenValidator, callbackToken string, logger *slog.Logger, metrics *keymetrics.Metrics) *Handler {
	return &Handler{
		keys:          keys,
		logger:        logger,
		metrics:       metrics,
		validator:     validator,
		callbackToken: callbackToken,
	}
}

// Register mounts the owner routes behind bearer auth and the directory
// callback routes behind the shared callback token.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(h.validator, h.logger))
		r.Post("/keys", h.handleRegister)
		r.Get("/keys", h.handleList)
		r.Get("/keys/{id}", h.handleGet)
		r.Get("/keys/{id}/claims", h.handleListClaims)
		r.Post("/keys/{id}/verify", h.handleVerify)
		r.Post("/keys/{id}/verification/resend", h.handleResend)
		r.Post("/keys/{id}/actions/{trigger}", h.handleAction)
	})
	r.Group(func(r chi.Router) {
		r.Use(callback.RequireToken(h.callbackToken, h.logger))
		r.Post("/directory/callbacks/{trigger}", h.handleCallback)
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req RegisterKeyRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	key, err := h.keys.Register(ctx, service.RegisterRequest{
		UserID:        requestcontext.UserID(ctx),
		Type:          models.KeyType(req.Type),
		Value:         req.Key,
		OwnerDocument: req.OwnerDocument,
	})
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toKeyResponse(key))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	keys, err := h.keys.ListByOwner(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	out := make([]KeyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, toKeyResponse(k))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"keys": out})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	keyID, err := domain.ParseKeyID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	key, err := h.keys.Get(ctx, requestcontext.UserID(ctx), keyID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toKeyResponse(key))
}

func (h *Handler) handleListClaims(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	keyID, err := domain.ParseKeyID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	claims, err := h.keys.ListClaims(ctx, requestcontext.UserID(ctx), keyID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	out := make([]ClaimResponse, 0, len(claims))
	for _, c := range claims {
		out = append(out, toClaimResponse(c))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"claims": out})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	keyID, err := domain.ParseKeyID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	var req VerifyKeyRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	key, err := h.keys.VerifyCode(ctx, service.VerifyRequest{
		UserID: requestcontext.UserID(ctx),
		KeyID:  keyID,
		Code:   req.Code,
		Reason: req.Reason,
	})
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toKeyResponse(key))
}

func (h *Handler) handleResend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	keyID, err := domain.ParseKeyID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if err := h.keys.ResendCode(ctx, requestcontext.UserID(ctx), keyID); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleAction fires one owner-initiated trigger.
func (h *Handler) handleAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	trigger, err := parseTrigger(chi.URLParam(r, "trigger"), models.OriginUser)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	keyID, err := domain.ParseKeyID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	var req ActionRequest
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			h.writeError(ctx, w, err)
			return
		}
	}

	key, err := h.keys.Apply(ctx, trigger, service.TriggerInput{
		KeyID:  keyID,
		UserID: requestcontext.UserID(ctx),
		Reason: req.Reason,
	})
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toKeyResponse(key))
}

// handleCallback applies a directory-originated trigger. Callbacks are not
// scoped to an owner.
func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw := chi.URLParam(r, "trigger")
	trigger, err := parseTrigger(raw, models.OriginCallback)
	if err != nil {
		h.metrics.IncrementCallback(raw, keymetrics.OutcomeRejected)
		h.writeError(ctx, w, err)
		return
	}
	var req CallbackRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.metrics.IncrementCallback(raw, keymetrics.OutcomeRejected)
		h.writeError(ctx, w, err)
		return
	}
	keyID, err := domain.ParseKeyID(req.KeyID)
	if err != nil {
		h.metrics.IncrementCallback(raw, keymetrics.OutcomeRejected)
		h.writeError(ctx, w, err)
		return
	}

	key, err := h.keys.Apply(ctx, trigger, service.TriggerInput{
		KeyID:  keyID,
		Reason: req.Reason,
		Claim:  req.Claim,
	})
	if err != nil {
		h.metrics.IncrementCallback(raw, outcomeFor(err))
		h.writeError(ctx, w, err)
		return
	}
	h.metrics.IncrementCallback(raw, keymetrics.OutcomeApplied)
	httputil.WriteJSON(w, http.StatusOK, toKeyResponse(key))
}

// parseTrigger accepts only triggers of the given origin.
func parseTrigger(raw string, origin models.Origin) (models.Trigger, error) {
	trigger := models.Trigger(raw)
	spec, ok := trigger.Spec()
	if !ok || spec.Origin != origin {
		return "", dErrors.New(dErrors.CodeNotFound, "unknown action "+raw)
	}
	return trigger, nil
}

func outcomeFor(err error) string {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeGatewayFailure:
		return keymetrics.OutcomeFailed
	case dErrors.CodeInternal, dErrors.CodeInvariantViolation:
		return keymetrics.OutcomeError
	}
	return keymetrics.OutcomeRejected
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "request failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
