package service

import (
	"context"

	"dictkeys/internal/key/models"
)

// One method per trigger; all of them run through Apply.

// Confirm moves a PENDING key to CONFIRMED, or an ADD_KEY_READY key to
// READY once the directory acknowledged the entry.
func (s *Service) Confirm(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerConfirm, in)
}

// SubmitRegistration registers a CONFIRMED key with the directory.
func (s *Service) SubmitRegistration(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerRegister, in)
}

func (s *Service) Cancel(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerCancel, in)
}

// Expire is fired by the sweeper for keys that waited too long.
func (s *Service) Expire(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerExpire, in)
}

func (s *Service) Lockout(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerLockout, in)
}

// Recover restores the state a key held before a directory failure, or
// returns a key whose deletion failed to READY.
func (s *Service) Recover(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerRecover, in)
}

func (s *Service) Delete(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerDelete, in)
}

func (s *Service) DeleteConfirm(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerDeleteConfirm, in)
}

func (s *Service) DeleteFail(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerDeleteFail, in)
}

// OwnershipRequest asks the directory to open an ownership claim against
// the current holder of the value.
func (s *Service) OwnershipRequest(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerOwnershipRequest, in)
}

// OwnershipOpen records an ownership claim the directory opened.
// in.Claim is required.
func (s *Service) OwnershipOpen(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerOwnershipOpen, in)
}

func (s *Service) OwnershipStart(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerOwnershipStart, in)
}

func (s *Service) OwnershipWait(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerOwnershipWait, in)
}

func (s *Service) OwnershipConfirm(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerOwnershipConfirm, in)
}

func (s *Service) OwnershipComplete(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerOwnershipComplete, in)
}

// OwnershipCancel requires a reason.
func (s *Service) OwnershipCancel(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerOwnershipCancel, in)
}

func (s *Service) PortabilityRequest(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerPortabilityRequest, in)
}

// PortabilityOpen records a portability claim the directory opened.
// in.Claim is required.
func (s *Service) PortabilityOpen(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerPortabilityOpen, in)
}

func (s *Service) PortabilityStart(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerPortabilityStart, in)
}

func (s *Service) PortabilityConfirm(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerPortabilityConfirm, in)
}

func (s *Service) PortabilityComplete(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerPortabilityComplete, in)
}

// PortabilityCancel requires a reason.
func (s *Service) PortabilityCancel(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerPortabilityCancel, in)
}

// DonorPortabilityOpen records another participant's request to take one
// of our keys. in.Claim is required.
func (s *Service) DonorPortabilityOpen(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerDonorPortabilityOpen, in)
}

func (s *Service) DonorPortabilityConfirm(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerDonorPortabilityConfirm, in)
}

func (s *Service) DonorPortabilityConfirmStart(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerDonorPortabilityConfirmStart, in)
}

// DonorPortabilityAutoConfirm is fired by the sweeper when the donor did
// not answer in time.
func (s *Service) DonorPortabilityAutoConfirm(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerDonorPortabilityAutoConfirm, in)
}

func (s *Service) DonorPortabilityComplete(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerDonorPortabilityComplete, in)
}

// DonorPortabilityCancel requires a reason.
func (s *Service) DonorPortabilityCancel(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerDonorPortabilityCancel, in)
}

func (s *Service) DonorPortabilityCancelStart(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerDonorPortabilityCancelStart, in)
}

func (s *Service) DonorPortabilityCanceled(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerDonorPortabilityCanceled, in)
}

// ClaimOpen records a claim opened against a key we just registered.
// in.Claim is required.
func (s *Service) ClaimOpen(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerClaimOpen, in)
}

func (s *Service) ClaimClose(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerClaimClose, in)
}

func (s *Service) ClaimClosed(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerClaimClosed, in)
}

func (s *Service) ClaimDeny(ctx context.Context, in TriggerInput) (*models.Key, error) {
	return s.Apply(ctx, models.TriggerClaimDeny, in)
}
