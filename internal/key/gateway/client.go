package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"dictkeys/internal/key/models"
	"dictkeys/pkg/platform/circuit"
)

const (
	defaultTimeout  = 5 * time.Second
	maxErrorBody    = 1 << 10
	participantHdr  = "X-Participant-ISPB"
	tracerName      = "dictkeys/internal/key/gateway"
	claimsPath      = "/claims"
	entriesPath     = "/entries"
	deleteEntryPath = "/entries/delete"
)

// Observer receives the outcome of every directory call. err is nil on
// success.
type Observer func(call string, elapsed time.Duration, err error)

// HTTPClient talks JSON to the directory over HTTP. Each call gets its own
// timeout and passes through a circuit breaker; calls are never retried here.
type HTTPClient struct {
	baseURL     string
	participant string
	client      *http.Client
	timeout     time.Duration
	breaker     *circuit.Breaker
	logger      *slog.Logger
	observe     Observer
	tracer      trace.Tracer
}

type Option func(*HTTPClient)

func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) {
		if c != nil {
			h.client = c
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(h *HTTPClient) {
		if d > 0 {
			h.timeout = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(h *HTTPClient) {
		h.breaker = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *HTTPClient) {
		h.logger = logger
	}
}

func WithObserver(o Observer) Option {
	return func(h *HTTPClient) {
		h.observe = o
	}
}

// NewHTTPClient creates a client for the directory at baseURL acting on
// behalf of participant (our ISPB).
func NewHTTPClient(baseURL, participant string, opts ...Option) *HTTPClient {
	h := &HTTPClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		participant: participant,
		client:      &http.Client{},
		timeout:     defaultTimeout,
		breaker:     circuit.New("directory"),
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type callBody struct {
	Operation string           `json:"operation"`
	Kind      models.ClaimKind `json:"kind,omitempty"`
	Request
}

func (h *HTTPClient) RegisterKey(ctx context.Context, req Request) (*Response, error) {
	return h.do(ctx, string(models.CallRegisterKey), entriesPath, "", req)
}

func (h *HTTPClient) DeleteKey(ctx context.Context, req Request) (*Response, error) {
	return h.do(ctx, string(models.CallDeleteKey), deleteEntryPath, "", req)
}

func (h *HTTPClient) OpenClaim(ctx context.Context, kind models.ClaimKind, req Request) (*Response, error) {
	call := string(models.CallOpenOwnershipClaim)
	if kind == models.ClaimPortability {
		call = string(models.CallOpenPortabilityClaim)
	}
	return h.do(ctx, call, claimsPath, kind, req)
}

func (h *HTTPClient) ConfirmOwnershipStart(ctx context.Context, req Request) (*Response, error) {
	return h.claimCall(ctx, models.CallConfirmOwnershipStart, "acknowledge", req)
}

func (h *HTTPClient) ConfirmOwnership(ctx context.Context, req Request) (*Response, error) {
	return h.claimCall(ctx, models.CallConfirmOwnership, "confirm", req)
}

func (h *HTTPClient) CancelOwnership(ctx context.Context, req Request) (*Response, error) {
	return h.claimCall(ctx, models.CallCancelOwnership, "cancel", req)
}

func (h *HTTPClient) ConfirmPortabilityStart(ctx context.Context, req Request) (*Response, error) {
	return h.claimCall(ctx, models.CallConfirmPortabilityStart, "acknowledge", req)
}

func (h *HTTPClient) ConfirmPortability(ctx context.Context, req Request) (*Response, error) {
	return h.claimCall(ctx, models.CallConfirmPortability, "confirm", req)
}

func (h *HTTPClient) AutoConfirmPortability(ctx context.Context, req Request) (*Response, error) {
	return h.claimCall(ctx, models.CallAutoConfirmPortability, "confirm", req)
}

func (h *HTTPClient) CancelPortability(ctx context.Context, req Request) (*Response, error) {
	return h.claimCall(ctx, models.CallCancelPortability, "cancel", req)
}

func (h *HTTPClient) CancelPortabilityRequest(ctx context.Context, req Request) (*Response, error) {
	return h.claimCall(ctx, models.CallCancelPortabilityRequest, "cancel", req)
}

func (h *HTTPClient) CloseClaim(ctx context.Context, req Request) (*Response, error) {
	return h.claimCall(ctx, models.CallCloseClaim, "complete", req)
}

func (h *HTTPClient) claimCall(ctx context.Context, call models.GatewayCall, action string, req Request) (*Response, error) {
	if strings.TrimSpace(req.ClaimID) == "" {
		return nil, NewError(CategoryBadData, string(call), "claim id is required", nil)
	}
	path := claimsPath + "/" + url.PathEscape(req.ClaimID) + "/" + action
	return h.do(ctx, string(call), path, "", req)
}

func (h *HTTPClient) do(ctx context.Context, call, path string, kind models.ClaimKind, req Request) (resp *Response, err error) {
	ctx, span := h.tracer.Start(ctx, "directory."+call,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("directory.call", call),
			attribute.String("key.type", string(req.KeyType)),
		))
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(CategoryOf(err)))
		}
		span.End()
		if h.observe != nil {
			h.observe(call, time.Since(start), err)
		}
	}()

	if h.breaker != nil && !h.breaker.Allow() {
		return nil, NewError(CategoryOutage, call, "directory unavailable", ErrCircuitOpen)
	}

	resp, err = h.send(ctx, call, path, kind, req)
	h.record(call, err)
	return resp, err
}

func (h *HTTPClient) send(ctx context.Context, call, path string, kind models.ClaimKind, req Request) (*Response, error) {
	if req.ParticipantID == "" {
		req.ParticipantID = h.participant
	}
	payload, err := json.Marshal(callBody{Operation: call, Kind: kind, Request: req})
	if err != nil {
		return nil, NewError(CategoryBadData, call, "encode request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, NewError(CategoryBadData, call, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(participantHdr, h.participant)

	httpResp, err := h.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, NewError(CategoryTimeout, call, fmt.Sprintf("no answer within %s", h.timeout), err)
		}
		return nil, NewError(CategoryOutage, call, "directory request failed", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		ge := NewError(categoryForStatus(httpResp.StatusCode), call, statusMessage(httpResp, body), nil)
		ge.StatusCode = httpResp.StatusCode
		return nil, ge
	}

	var out Response
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return nil, NewError(CategoryBadData, call, "decode response", err)
	}
	if out.Timestamp.IsZero() {
		out.Timestamp = time.Now().UTC()
	}
	return &out, nil
}

// record feeds the breaker. A rejection is a healthy directory saying no.
func (h *HTTPClient) record(call string, err error) {
	if h.breaker == nil {
		return
	}
	if err == nil || CategoryOf(err) == CategoryRejected {
		if _, change := h.breaker.RecordSuccess(); change.Closed && h.logger != nil {
			h.logger.Info("directory circuit closed", "breaker", h.breaker.Name())
		}
		return
	}
	if !IsRetryable(err) {
		return
	}
	if _, change := h.breaker.RecordFailure(); change.Opened && h.logger != nil {
		h.logger.Warn("directory circuit opened", "breaker", h.breaker.Name(), "call", call, "error", err)
	}
}

func categoryForStatus(status int) Category {
	switch {
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return CategoryTimeout
	case status == http.StatusTooManyRequests || status >= 500:
		return CategoryOutage
	default:
		return CategoryRejected
	}
}

func statusMessage(resp *http.Response, body []byte) string {
	var payload struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		if payload.Description != "" {
			return payload.Error + ": " + payload.Description
		}
		return payload.Error
	}
	return "directory returned " + resp.Status
}
