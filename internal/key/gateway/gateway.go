// Package gateway is the port to the external key directory and its HTTP
// adapter. The directory is authoritative for key registration and claims;
// every call here mirrors a local state transition.
package gateway

import (
	"context"
	"time"

	"dictkeys/internal/key/models"
)

// Request carries the fields every directory call needs. ClaimID is the
// directory's claim identifier and is empty for key-level calls.
type Request struct {
	KeyValue      string         `json:"key"`
	KeyType       models.KeyType `json:"key_type"`
	ParticipantID string         `json:"participant"`
	ClaimID       string         `json:"claim_id,omitempty"`
	Reason        string         `json:"reason,omitempty"`
}

// Response is the directory's acknowledgement.
type Response struct {
	DirectoryClaimID string    `json:"claim_id,omitempty"`
	Status           string    `json:"status"`
	Timestamp        time.Time `json:"timestamp"`
}

// Gateway is the set of directory operations the workflow engine drives.
// Implementations must honour ctx cancellation and return *Error for every
// failure.
type Gateway interface {
	RegisterKey(ctx context.Context, req Request) (*Response, error)
	DeleteKey(ctx context.Context, req Request) (*Response, error)
	OpenClaim(ctx context.Context, kind models.ClaimKind, req Request) (*Response, error)
	ConfirmOwnershipStart(ctx context.Context, req Request) (*Response, error)
	ConfirmOwnership(ctx context.Context, req Request) (*Response, error)
	CancelOwnership(ctx context.Context, req Request) (*Response, error)
	ConfirmPortabilityStart(ctx context.Context, req Request) (*Response, error)
	ConfirmPortability(ctx context.Context, req Request) (*Response, error)
	AutoConfirmPortability(ctx context.Context, req Request) (*Response, error)
	CancelPortability(ctx context.Context, req Request) (*Response, error)
	CancelPortabilityRequest(ctx context.Context, req Request) (*Response, error)
	CloseClaim(ctx context.Context, req Request) (*Response, error)
}

// Invoke dispatches call to the matching Gateway method.
func Invoke(ctx context.Context, g Gateway, call models.GatewayCall, req Request) (*Response, error) {
	switch call {
	case models.CallRegisterKey:
		return g.RegisterKey(ctx, req)
	case models.CallDeleteKey:
		return g.DeleteKey(ctx, req)
	case models.CallOpenOwnershipClaim:
		return g.OpenClaim(ctx, models.ClaimOwnership, req)
	case models.CallOpenPortabilityClaim:
		return g.OpenClaim(ctx, models.ClaimPortability, req)
	case models.CallConfirmOwnershipStart:
		return g.ConfirmOwnershipStart(ctx, req)
	case models.CallConfirmOwnership:
		return g.ConfirmOwnership(ctx, req)
	case models.CallCancelOwnership:
		return g.CancelOwnership(ctx, req)
	case models.CallConfirmPortabilityStart:
		return g.ConfirmPortabilityStart(ctx, req)
	case models.CallConfirmPortability:
		return g.ConfirmPortability(ctx, req)
	case models.CallAutoConfirmPortability:
		return g.AutoConfirmPortability(ctx, req)
	case models.CallCancelPortability:
		return g.CancelPortability(ctx, req)
	case models.CallCancelPortabilityRequest:
		return g.CancelPortabilityRequest(ctx, req)
	case models.CallCloseClaim:
		return g.CloseClaim(ctx, req)
	}
	return nil, NewError(CategoryBadData, string(call), "unknown directory call", nil)
}
