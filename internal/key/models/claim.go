package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "dictkeys/pkg/domain-errors"
)

type ClaimKind string

const (
	ClaimOwnership   ClaimKind = "OWNERSHIP"
	ClaimPortability ClaimKind = "PORTABILITY"
)

// ClaimStatus mirrors the directory's view of the claim. It is advisory;
// the Key state is authoritative.
type ClaimStatus string

const (
	ClaimStatusOpen              ClaimStatus = "OPEN"
	ClaimStatusWaitingResolution ClaimStatus = "WAITING_RESOLUTION"
	ClaimStatusConfirmed         ClaimStatus = "CONFIRMED"
	ClaimStatusCanceled          ClaimStatus = "CANCELED"
	ClaimStatusCompleted         ClaimStatus = "COMPLETED"
)

// Claim is an ownership dispute or portability request against a Key. At
// most one open Claim per (KeyID, Kind) exists. ClosedAt is stamped when the
// key leaves the claim branch and the row is kept as history.
type Claim struct {
	ID                  uuid.UUID
	KeyID               uuid.UUID
	KeyValue            string
	Kind                ClaimKind
	Status              ClaimStatus
	DirectoryClaimID    string
	CounterpartISPB     string
	CounterpartDocument string
	OpenedAt            time.Time
	LastChangedAt       time.Time
	ResolutionAt        *time.Time
	CanceledAt          *time.Time
	ClosedAt            *time.Time
	CancelReason        string
}

// ClaimInput carries the directory's claim details on opening callbacks.
type ClaimInput struct {
	DirectoryClaimID    string     `json:"directory_claim_id"`
	CounterpartISPB     string     `json:"counterpart_ispb"`
	CounterpartDocument string     `json:"counterpart_document,omitempty"`
	ResolutionAt        *time.Time `json:"resolution_at,omitempty"`
}

func (in ClaimInput) Validate() error {
	if strings.TrimSpace(in.DirectoryClaimID) == "" {
		return dErrors.New(dErrors.CodeValidation, "directory claim id is required")
	}
	if !ValidISPB(in.CounterpartISPB) {
		return dErrors.New(dErrors.CodeValidation, "counterpart ispb must have 8 digits")
	}
	return nil
}

func NewClaim(id uuid.UUID, key *Key, kind ClaimKind, in ClaimInput, now time.Time) *Claim {
	return &Claim{
		ID:                  id,
		KeyID:               key.ID,
		KeyValue:            key.Value,
		Kind:                kind,
		Status:              ClaimStatusOpen,
		DirectoryClaimID:    strings.TrimSpace(in.DirectoryClaimID),
		CounterpartISPB:     in.CounterpartISPB,
		CounterpartDocument: in.CounterpartDocument,
		OpenedAt:            now,
		LastChangedAt:       now,
		ResolutionAt:        in.ResolutionAt,
	}
}

// Close stamps the closing date.
func (c *Claim) Close(now time.Time) {
	c.ClosedAt = &now
	c.LastChangedAt = now
}

func (c *Claim) IsOpen() bool {
	return c.ClosedAt == nil
}

// ApplyStatus mirrors a directory status change.
func (c *Claim) ApplyStatus(status ClaimStatus, reason string, now time.Time) {
	c.Status = status
	c.LastChangedAt = now
	if status == ClaimStatusCanceled {
		c.CanceledAt = &now
		c.CancelReason = reason
	}
}
