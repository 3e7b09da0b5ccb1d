package handler

import (
	"strings"
	"time"

	"dictkeys/internal/key/models"
	dErrors "dictkeys/pkg/domain-errors"
)

type RegisterKeyRequest struct {
	Type          string `json:"type"`
	Key           string `json:"key"`
	OwnerDocument string `json:"owner_document,omitempty"`
}

func (r *RegisterKeyRequest) Normalize() {
	r.Type = strings.ToUpper(strings.TrimSpace(r.Type))
	r.Key = strings.TrimSpace(r.Key)
	r.OwnerDocument = strings.TrimSpace(r.OwnerDocument)
}

func (r *RegisterKeyRequest) Validate() error {
	if r.Type == "" {
		return dErrors.New(dErrors.CodeValidation, "type is required")
	}
	if !models.KeyType(r.Type).IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown key type")
	}
	if r.Key == "" && models.KeyType(r.Type) != models.KeyTypeEVP {
		return dErrors.New(dErrors.CodeValidation, "key is required")
	}
	return nil
}

type VerifyKeyRequest struct {
	Code   string `json:"code"`
	Reason string `json:"reason,omitempty"`
}

type ActionRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CallbackRequest is the body the directory posts when a key changed on its
// side. Claim is required by the callbacks that open a claim.
type CallbackRequest struct {
	KeyID  string             `json:"key_id"`
	Reason string             `json:"reason,omitempty"`
	Claim  *models.ClaimInput `json:"claim,omitempty"`
}

type KeyResponse struct {
	ID             string         `json:"id"`
	Key            string         `json:"key"`
	Type           models.KeyType `json:"type"`
	State          models.State   `json:"state"`
	PreviousState  models.State   `json:"previous_state,omitempty"`
	FailureCode    string         `json:"failure_code,omitempty"`
	FailureMessage string         `json:"failure_message,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func toKeyResponse(k *models.Key) KeyResponse {
	return KeyResponse{
		ID:             k.ID.String(),
		Key:            k.Value,
		Type:           k.Type,
		State:          k.State,
		PreviousState:  k.PreviousState,
		FailureCode:    k.FailureCode,
		FailureMessage: k.FailureMessage,
		CreatedAt:      k.CreatedAt,
		UpdatedAt:      k.UpdatedAt,
	}
}

type ClaimResponse struct {
	ID               string             `json:"id"`
	Kind             models.ClaimKind   `json:"kind"`
	Status           models.ClaimStatus `json:"status"`
	DirectoryClaimID string             `json:"directory_claim_id"`
	CounterpartISPB  string             `json:"counterpart_ispb"`
	OpenedAt         time.Time          `json:"opened_at"`
	ResolutionAt     *time.Time         `json:"resolution_at,omitempty"`
	ClosedAt         *time.Time         `json:"closed_at,omitempty"`
}

func toClaimResponse(c *models.Claim) ClaimResponse {
	return ClaimResponse{
		ID:               c.ID.String(),
		Kind:             c.Kind,
		Status:           c.Status,
		DirectoryClaimID: c.DirectoryClaimID,
		CounterpartISPB:  c.CounterpartISPB,
		OpenedAt:         c.OpenedAt,
		ResolutionAt:     c.ResolutionAt,
		ClosedAt:         c.ClosedAt,
	}
}
