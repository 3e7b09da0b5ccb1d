// Package callback consumes directory callbacks from kafka and applies them
// to keys.
package callback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	keymetrics "dictkeys/internal/key/metrics"
	"dictkeys/internal/key/models"
	"dictkeys/internal/key/service"
	"dictkeys/internal/platform/kafka"
	"dictkeys/pkg/domain"
	dErrors "dictkeys/pkg/domain-errors"
	"dictkeys/pkg/requestcontext"
)

// TriggerHeader may carry the trigger when the body omits it.
const TriggerHeader = "trigger"

// Record is the JSON body of one callback.
type Record struct {
	Trigger string             `json:"trigger"`
	KeyID   string             `json:"key_id"`
	Reason  string             `json:"reason,omitempty"`
	Claim   *models.ClaimInput `json:"claim,omitempty"`
}

type Engine interface {
	Apply(ctx context.Context, trigger models.Trigger, in service.TriggerInput) (*models.Key, error)
}

type Handler struct {
	engine  Engine
	logger  *slog.Logger
	metrics *keymetrics.Metrics
}

func NewHandler(engine Engine, logger *slog.Logger, metrics *keymetrics.Metrics) *Handler {
	return &Handler{engine: engine, logger: logger, metrics: metrics}
}

// Handle applies one record. Records that can never succeed (malformed,
// unknown key, illegal in the key's current state) are logged and dropped
// by returning nil; any other failure is returned so the consumer retries.
func (h *Handler) Handle(ctx context.Context, msg kafka.Message) error {
	ctx = requestcontext.WithRequestID(ctx, fmt.Sprintf("kafka:%s/%d/%d", msg.Topic, msg.Partition, msg.Offset))

	trigger, in, err := decode(msg)
	if err != nil {
		return h.drop(ctx, msg, string(trigger), err)
	}

	key, err := h.engine.Apply(ctx, trigger, in)
	if err != nil {
		if permanent(err) {
			return h.drop(ctx, msg, string(trigger), err)
		}
		h.metrics.IncrementCallback(string(trigger), keymetrics.OutcomeError)
		return err
	}

	h.metrics.IncrementCallback(string(trigger), keymetrics.OutcomeApplied)
	h.logger.InfoContext(ctx, "directory callback applied",
		"request_id", requestcontext.RequestID(ctx),
		"trigger", trigger,
		"key_id", key.ID,
		"state", key.State,
	)
	return nil
}

func decode(msg kafka.Message) (models.Trigger, service.TriggerInput, error) {
	var rec Record
	if err := json.Unmarshal(msg.Value, &rec); err != nil {
		return "", service.TriggerInput{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed callback record")
	}
	if rec.Trigger == "" {
		rec.Trigger = msg.Headers[TriggerHeader]
	}
	trigger := models.Trigger(rec.Trigger)
	spec, ok := trigger.Spec()
	if !ok || spec.Origin != models.OriginCallback {
		return trigger, service.TriggerInput{}, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%q is not a directory callback", rec.Trigger))
	}
	keyID, err := domain.ParseKeyID(rec.KeyID)
	if err != nil {
		return trigger, service.TriggerInput{}, err
	}
	return trigger, service.TriggerInput{KeyID: keyID, Reason: rec.Reason, Claim: rec.Claim}, nil
}

func permanent(err error) bool {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeNotFound,
		dErrors.CodeInvalidState, dErrors.CodeConflict, dErrors.CodeInvariantViolation:
		return true
	}
	return false
}

func (h *Handler) drop(ctx context.Context, msg kafka.Message, trigger string, err error) error {
	h.metrics.IncrementCallback(trigger, keymetrics.OutcomeRejected)
	level := slog.LevelWarn
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		// Stored data is inconsistent; replaying the record cannot fix it.
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, "dropping directory callback",
		"request_id", requestcontext.RequestID(ctx),
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"trigger", trigger,
		"error", err,
	)
	return nil
}
