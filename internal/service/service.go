package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tenderprep/internal/config"
	"tenderprep/internal/models"
	"tenderprep/internal/repository"
)

// Service is the workflow facade. Every mutating operation runs inside
// one transaction that first locks the prep row, so the ledger check
// and the status transition it implies can never interleave with
// another request for the same prep.
type Service struct {
	repo                 *repository.Repository
	lease                time.Duration
	requireAllSignatures bool
}

func NewService(repo *repository.Repository, cfg *config.WorkflowConfig) *Service {
	return &Service{
		repo:                 repo,
		lease:                cfg.LeaseDuration(),
		requireAllSignatures: cfg.RequireAllOfficerSignatures,
	}
}

//// Preparations

func (s *Service) CreatePrep(ctx context.Context, prep models.TenderPrep) (models.TenderPrep, error) {
	prep, err := s.repo.AddPrep(ctx, prep)
	if err != nil {
		return prep, fmt.Errorf("service.Service.CreatePrep: %w", err)
	}
	return prep, nil
}

func (s *Service) EditContent(ctx context.Context, caller models.Caller, prepId string, changes map[string]string) (models.TenderPrep, error) {
	tx, prep, err := s.prepForUpdate(ctx, prepId)
	if err != nil {
		return prep, fmt.Errorf("service.Service.EditContent: %w", err)
	}

	caps := models.CapabilitiesFor(caller, &prep)
	if !caps.CanLock {
		return prep, abort(tx, models.ErrNotAssigned)
	}

	// The editability conjunction, checked gate by gate so the caller
	// learns which one failed.
	if prep.Status != models.PrepDrafting {
		return prep, abort(tx, models.ErrInvalidTransition)
	}

	lock, ok, err := s.repo.GetLock(ctx, prepId, tx)
	if err != nil {
		return prep, fmt.Errorf("service.Service.EditContent: %w", wrapAbort(tx, err))
	}
	if !ok || !lock.OwnedBy(caller.Id, time.Now().UTC()) {
		return prep, abort(tx, models.ErrLockNotHeld)
	}

	live, err := s.repo.LiveOfficerApprovals(ctx, prepId, prep.Round, tx)
	if err != nil {
		return prep, fmt.Errorf("service.Service.EditContent: %w", wrapAbort(tx, err))
	}
	if len(live) > 0 {
		return prep, abort(tx, models.ErrApprovalBlocksEdit)
	}

	if v, ok := changes["name"]; ok {
		prep.Name = v
	}
	if v, ok := changes["description"]; ok {
		prep.Description = v
	}

	err = s.repo.UpdatePrepContent(ctx, tx, prepId, prep.Name, prep.Description)
	if err != nil {
		return prep, fmt.Errorf("service.Service.EditContent: %w", wrapAbort(tx, err))
	}

	err = tx.Commit()
	if err != nil {
		return prep, fmt.Errorf("service.Service.EditContent: failed to commit transaction: %w", err)
	}
	return prep, nil
}

// Editability recomputes the edit eligibility conjunction for a
// caller. Plain reads only; the result is advisory and a later
// EditContent re-checks everything under the row lock.
func (s *Service) Editability(ctx context.Context, caller models.Caller, prepId string) (models.Editability, error) {
	var e models.Editability

	prep, err := s.loadPrep(ctx, prepId)
	if err != nil {
		return e, fmt.Errorf("service.Service.Editability: %w", err)
	}

	e.StatusOk = prep.Status == models.PrepDrafting

	lock, ok, err := s.repo.GetLock(ctx, prepId, nil)
	if err != nil {
		return e, fmt.Errorf("service.Service.Editability: %w", err)
	}
	e.HoldsLock = ok && lock.OwnedBy(caller.Id, time.Now().UTC())

	live, err := s.repo.LiveOfficerApprovals(ctx, prepId, prep.Round, nil)
	if err != nil {
		return e, fmt.Errorf("service.Service.Editability: %w", err)
	}
	e.NoLiveApproval = len(live) == 0

	e.Editable = e.StatusOk && e.HoldsLock && e.NoLiveApproval
	return e, nil
}

//// Locks

// AcquireLock acquires or renews the edit lock. The same call serves
// both: a live owner renewing gets a fresh lease, anyone else gets the
// lock only when no live lease stands in the way. Contention comes
// back as a LockHeldError naming the holder, never as a wait.
func (s *Service) AcquireLock(ctx context.Context, caller models.Caller, prepId string) (models.EditLock, error) {
	tx, prep, err := s.prepForUpdate(ctx, prepId)
	if err != nil {
		return models.EditLock{}, fmt.Errorf("service.Service.AcquireLock: %w", err)
	}

	caps := models.CapabilitiesFor(caller, &prep)
	if !caps.CanLock {
		return models.EditLock{}, abort(tx, models.ErrNotAssigned)
	}

	if prep.Status != models.PrepDrafting && prep.Status != models.PrepPending {
		return models.EditLock{}, abort(tx, models.ErrInvalidTransition)
	}

	lock, ok, err := s.repo.GetLock(ctx, prepId, tx)
	if err != nil {
		return models.EditLock{}, fmt.Errorf("service.Service.AcquireLock: %w", wrapAbort(tx, err))
	}
	if ok && lock.Live(time.Now().UTC()) && lock.OwnerId != caller.Id {
		return models.EditLock{}, abort(tx, &models.LockHeldError{OwnerId: lock.OwnerId, ExpiresAt: lock.ExpiresAt})
	}

	lock, err = s.repo.UpsertLock(ctx, tx, prepId, caller.Id, s.lease)
	if err != nil {
		return models.EditLock{}, fmt.Errorf("service.Service.AcquireLock: %w", wrapAbort(tx, err))
	}

	err = tx.Commit()
	if err != nil {
		return models.EditLock{}, fmt.Errorf("service.Service.AcquireLock: failed to commit transaction: %w", err)
	}
	return lock, nil
}

// ReleaseLock drops the caller's lock if they hold it. Redundant
// release is a silent no-op: teardown hooks fire this best-effort and
// correctness rests on lease expiry anyway.
func (s *Service) ReleaseLock(ctx context.Context, caller models.Caller, prepId string) error {
	err := s.repo.DeleteLockOwned(ctx, prepId, caller.Id, nil)
	if err != nil {
		return fmt.Errorf("service.Service.ReleaseLock: %w", err)
	}
	return nil
}

func (s *Service) InspectLock(ctx context.Context, prepId string) (models.LockState, error) {
	_, err := s.loadPrep(ctx, prepId)
	if err != nil {
		return models.LockState{}, fmt.Errorf("service.Service.InspectLock: %w", err)
	}

	lock, ok, err := s.repo.GetLock(ctx, prepId, nil)
	if err != nil {
		return models.LockState{}, fmt.Errorf("service.Service.InspectLock: %w", err)
	}

	return lockState(lock, ok), nil
}

//// Approvals

func (s *Service) OfficerApprove(ctx context.Context, caller models.Caller, prepId string) (models.TenderPrep, error) {
	tx, prep, err := s.prepForUpdate(ctx, prepId)
	if err != nil {
		return prep, fmt.Errorf("service.Service.OfficerApprove: %w", err)
	}

	caps := models.CapabilitiesFor(caller, &prep)
	if !caps.CanApproveAsOfficer {
		return prep, abort(tx, models.ErrNotAssigned)
	}

	switch prep.Status {
	case models.PrepDrafting, models.PrepPending:
	case models.PrepSubmitted, models.PrepRejected:
		return prep, abort(tx, models.ErrPrepFinalized)
	default:
		return prep, abort(tx, models.ErrInvalidTransition)
	}

	live, err := s.repo.OfficerApprovalLive(ctx, tx, prepId, prep.Round, caller.Id)
	if err != nil {
		return prep, fmt.Errorf("service.Service.OfficerApprove: %w", wrapAbort(tx, err))
	}
	if live {
		return prep, abort(tx, models.ErrAlreadyApproved)
	}

	_, err = s.repo.AddApproval(ctx, tx, models.ApprovalRecord{
		PrepId:        prepId,
		Round:         prep.Round,
		ParticipantId: caller.Id,
		Role:          models.RoleOfficer,
		Decision:      models.DecisionApproved,
	})
	if err != nil {
		return prep, fmt.Errorf("service.Service.OfficerApprove: %w", wrapAbort(tx, err))
	}

	// The first approval of the round advances the status; further
	// officers may still add theirs for the record.
	if prep.Status == models.PrepDrafting {
		prep.Status = models.PrepPending
		err = s.repo.UpdatePrepStatus(ctx, tx, prepId, prep.Status, prep.Round)
		if err != nil {
			return prep, fmt.Errorf("service.Service.OfficerApprove: %w", wrapAbort(tx, err))
		}
	}

	err = tx.Commit()
	if err != nil {
		return prep, fmt.Errorf("service.Service.OfficerApprove: failed to commit transaction: %w", err)
	}
	return prep, nil
}

// WithdrawApproval cancels the caller's live approval. Deliberately
// not gated by lock ownership: any approver may pull their approval
// back while the manager has not decided. Withdrawing the last live
// approval reopens drafting with a fresh round.
func (s *Service) WithdrawApproval(ctx context.Context, caller models.Caller, prepId string) (models.TenderPrep, error) {
	tx, prep, err := s.prepForUpdate(ctx, prepId)
	if err != nil {
		return prep, fmt.Errorf("service.Service.WithdrawApproval: %w", err)
	}

	switch prep.Status {
	case models.PrepDrafting, models.PrepPending:
	case models.PrepSubmitted, models.PrepRejected:
		return prep, abort(tx, models.ErrPrepFinalized)
	default:
		return prep, abort(tx, models.ErrInvalidTransition)
	}

	live, err := s.repo.OfficerApprovalLive(ctx, tx, prepId, prep.Round, caller.Id)
	if err != nil {
		return prep, fmt.Errorf("service.Service.WithdrawApproval: %w", wrapAbort(tx, err))
	}
	if !live {
		return prep, abort(tx, models.ErrNoActiveApproval)
	}

	_, err = s.repo.AddApproval(ctx, tx, models.ApprovalRecord{
		PrepId:        prepId,
		Round:         prep.Round,
		ParticipantId: caller.Id,
		Role:          models.RoleOfficer,
		Decision:      models.DecisionWithdrawn,
	})
	if err != nil {
		return prep, fmt.Errorf("service.Service.WithdrawApproval: %w", wrapAbort(tx, err))
	}

	remaining, err := s.repo.LiveOfficerApprovals(ctx, prepId, prep.Round, tx)
	if err != nil {
		return prep, fmt.Errorf("service.Service.WithdrawApproval: %w", wrapAbort(tx, err))
	}

	if len(remaining) == 0 && prep.Status == models.PrepPending {
		prep.Status = models.PrepDrafting
		prep.Round++
		err = s.repo.UpdatePrepStatus(ctx, tx, prepId, prep.Status, prep.Round)
		if err != nil {
			return prep, fmt.Errorf("service.Service.WithdrawApproval: %w", wrapAbort(tx, err))
		}
	}

	err = tx.Commit()
	if err != nil {
		return prep, fmt.Errorf("service.Service.WithdrawApproval: failed to commit transaction: %w", err)
	}
	return prep, nil
}

// ManagerDecision applies an approve, return or reject to a pending
// preparation. Manager decisions are orthogonal to the edit lock: the
// acting officer may well still hold a live lease at this moment.
func (s *Service) ManagerDecision(ctx context.Context, caller models.Caller, prepId string, decision models.Decision, reason string) (models.TenderPrep, error) {
	if !models.ValidManagerDecision(decision) {
		return models.TenderPrep{}, fmt.Errorf("service.Service.ManagerDecision: %w: unknown decision %s", models.ErrInvalidTransition, decision)
	}

	tx, prep, err := s.prepForUpdate(ctx, prepId)
	if err != nil {
		return prep, fmt.Errorf("service.Service.ManagerDecision: %w", err)
	}

	caps := models.CapabilitiesFor(caller, &prep)
	if !caps.CanDecideAsManager {
		return prep, abort(tx, models.ErrForbidden)
	}

	if prep.Status != models.PrepPending {
		if prep.Status.Final() {
			return prep, abort(tx, models.ErrPrepFinalized)
		}
		return prep, abort(tx, models.ErrInvalidTransition)
	}

	if decision == models.DecisionApproved {
		reason = ""
	}

	_, err = s.repo.AddApproval(ctx, tx, models.ApprovalRecord{
		PrepId:        prepId,
		Round:         prep.Round,
		ParticipantId: caller.Id,
		Role:          models.RoleManager,
		Decision:      decision,
		Reason:        reason,
	})
	if err != nil {
		return prep, fmt.Errorf("service.Service.ManagerDecision: %w", wrapAbort(tx, err))
	}

	switch decision {
	case models.DecisionApproved:
		prep.Status = models.PrepApproved
		err = s.repo.DeleteLock(ctx, tx, prepId)
	case models.DecisionReturned:
		// A return starts a new round: every officer approval of the
		// old round goes historical, the reason stays in the ledger.
		// The lock survives so the holder can resume without a race.
		prep.Status = models.PrepDrafting
		prep.Round++
	case models.DecisionRejected:
		prep.Status = models.PrepRejected
		err = s.repo.DeleteLock(ctx, tx, prepId)
	}
	if err != nil {
		return prep, fmt.Errorf("service.Service.ManagerDecision: %w", wrapAbort(tx, err))
	}

	err = s.repo.UpdatePrepStatus(ctx, tx, prepId, prep.Status, prep.Round)
	if err != nil {
		return prep, fmt.Errorf("service.Service.ManagerDecision: %w", wrapAbort(tx, err))
	}

	err = tx.Commit()
	if err != nil {
		return prep, fmt.Errorf("service.Service.ManagerDecision: failed to commit transaction: %w", err)
	}
	return prep, nil
}

func (s *Service) ApprovalHistory(ctx context.Context, prepId string) ([]models.ApprovalRecord, error) {
	_, err := s.loadPrep(ctx, prepId)
	if err != nil {
		return nil, fmt.Errorf("service.Service.ApprovalHistory: %w", err)
	}

	history, err := s.repo.ApprovalHistory(ctx, prepId, nil)
	if err != nil {
		return nil, fmt.Errorf("service.Service.ApprovalHistory: %w", err)
	}
	return history, nil
}

//// Signatures

// Sign records the caller's signature. The slot is resolved from the
// caller's real identity, not from the role claim: an admin with no
// slot of their own cannot sign for anybody.
func (s *Service) Sign(ctx context.Context, caller models.Caller, prepId string, blob []byte, kind models.SignatureKind) (models.SignoffRecord, error) {
	if len(blob) == 0 || !models.ValidSignatureKind(kind) {
		return models.SignoffRecord{}, fmt.Errorf("service.Service.Sign: %w", models.ErrInvalidSignature)
	}

	tx, prep, err := s.prepForUpdate(ctx, prepId)
	if err != nil {
		return models.SignoffRecord{}, fmt.Errorf("service.Service.Sign: %w", err)
	}

	role, ok := prep.SignoffRole(caller.Id)
	if !ok {
		return models.SignoffRecord{}, abort(tx, models.ErrForbidden)
	}

	if prep.Status != models.PrepApproved {
		if prep.Status.Final() {
			return models.SignoffRecord{}, abort(tx, models.ErrPrepFinalized)
		}
		return models.SignoffRecord{}, abort(tx, models.ErrInvalidTransition)
	}

	rec, err := s.repo.UpsertSignoff(ctx, tx, prepId, caller.Id, role, blob, kind)
	if err != nil {
		return rec, fmt.Errorf("service.Service.Sign: %w", wrapAbort(tx, err))
	}

	err = tx.Commit()
	if err != nil {
		return rec, fmt.Errorf("service.Service.Sign: failed to commit transaction: %w", err)
	}
	return rec, nil
}

// Unsign clears the caller's signature. Allowed in any status short of
// final: before prep approval no signature can exist, so the clear is a
// silent no-op there, same as a redundant lock release.
func (s *Service) Unsign(ctx context.Context, caller models.Caller, prepId string) error {
	tx, prep, err := s.prepForUpdate(ctx, prepId)
	if err != nil {
		return fmt.Errorf("service.Service.Unsign: %w", err)
	}

	_, ok := prep.SignoffRole(caller.Id)
	if !ok {
		return abort(tx, models.ErrForbidden)
	}

	if prep.Status.Final() {
		return abort(tx, models.ErrPrepFinalized)
	}

	err = s.repo.ClearSignoff(ctx, tx, prepId, caller.Id)
	if err != nil {
		return fmt.Errorf("service.Service.Unsign: %w", wrapAbort(tx, err))
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("service.Service.Unsign: failed to commit transaction: %w", err)
	}
	return nil
}

// Submit is the terminal manager action. It requires the manager's own
// signature; officer signatures gate it only under the
// RequireAllOfficerSignatures policy.
func (s *Service) Submit(ctx context.Context, caller models.Caller, prepId string) (models.TenderPrep, error) {
	tx, prep, err := s.prepForUpdate(ctx, prepId)
	if err != nil {
		return prep, fmt.Errorf("service.Service.Submit: %w", err)
	}

	caps := models.CapabilitiesFor(caller, &prep)
	if !caps.CanDecideAsManager {
		return prep, abort(tx, models.ErrForbidden)
	}

	if prep.Status != models.PrepApproved {
		if prep.Status.Final() {
			return prep, abort(tx, models.ErrPrepFinalized)
		}
		return prep, abort(tx, models.ErrInvalidTransition)
	}

	managerSig, ok, err := s.repo.GetSignoff(ctx, tx, prepId, prep.ManagerId)
	if err != nil {
		return prep, fmt.Errorf("service.Service.Submit: %w", wrapAbort(tx, err))
	}
	if !ok || !managerSig.Signed() {
		return prep, abort(tx, models.ErrInvalidTransition)
	}

	if s.requireAllSignatures {
		signoffs, err := s.repo.GetSignoffs(ctx, prepId, tx)
		if err != nil {
			return prep, fmt.Errorf("service.Service.Submit: %w", wrapAbort(tx, err))
		}
		signed := make(map[string]bool, len(signoffs))
		for _, rec := range signoffs {
			if rec.Signed() {
				signed[rec.ParticipantId] = true
			}
		}
		for _, officerId := range prep.OfficerIds {
			if !signed[officerId] {
				return prep, abort(tx, models.ErrInvalidTransition)
			}
		}
	}

	prep.Status = models.PrepSubmitted
	err = s.repo.UpdatePrepStatus(ctx, tx, prepId, prep.Status, prep.Round)
	if err != nil {
		return prep, fmt.Errorf("service.Service.Submit: %w", wrapAbort(tx, err))
	}

	err = s.repo.DeleteLock(ctx, tx, prepId)
	if err != nil {
		return prep, fmt.Errorf("service.Service.Submit: %w", wrapAbort(tx, err))
	}

	err = tx.Commit()
	if err != nil {
		return prep, fmt.Errorf("service.Service.Submit: failed to commit transaction: %w", err)
	}
	return prep, nil
}

// UpdateComment edits the free-text rationale on the signature form.
// Any participant may change it until the first officer signature
// lands; after that it is frozen so signatures keep the context they
// were given under.
func (s *Service) UpdateComment(ctx context.Context, caller models.Caller, prepId, comment string) (models.TenderPrep, error) {
	tx, prep, err := s.prepForUpdate(ctx, prepId)
	if err != nil {
		return prep, fmt.Errorf("service.Service.UpdateComment: %w", err)
	}

	if !prep.Participant(caller.Id) && caller.Claim != models.ClaimAdmin {
		return prep, abort(tx, models.ErrForbidden)
	}

	if prep.Status.Final() {
		return prep, abort(tx, models.ErrPrepFinalized)
	}

	frozen, err := s.repo.AnyOfficerSigned(ctx, tx, prepId)
	if err != nil {
		return prep, fmt.Errorf("service.Service.UpdateComment: %w", wrapAbort(tx, err))
	}
	if frozen {
		return prep, abort(tx, models.ErrCommentFrozen)
	}

	err = s.repo.UpdateSignoffComment(ctx, tx, prepId, comment)
	if err != nil {
		return prep, fmt.Errorf("service.Service.UpdateComment: %w", wrapAbort(tx, err))
	}
	prep.SignoffComment = comment

	err = tx.Commit()
	if err != nil {
		return prep, fmt.Errorf("service.Service.UpdateComment: failed to commit transaction: %w", err)
	}
	return prep, nil
}

//// Read models

func (s *Service) GetPrepView(ctx context.Context, prepId string) (models.PrepView, error) {
	var view models.PrepView

	prep, err := s.loadPrep(ctx, prepId)
	if err != nil {
		return view, fmt.Errorf("service.Service.GetPrepView: %w", err)
	}
	view.TenderPrep = prep

	lock, ok, err := s.repo.GetLock(ctx, prepId, nil)
	if err != nil {
		return view, fmt.Errorf("service.Service.GetPrepView: %w", err)
	}
	view.Lock = lockState(lock, ok)

	view.LiveApprovals, err = s.repo.LiveOfficerApprovals(ctx, prepId, prep.Round, nil)
	if err != nil {
		return view, fmt.Errorf("service.Service.GetPrepView: %w", err)
	}

	view.Signoffs, err = s.signoffSlots(ctx, &prep)
	if err != nil {
		return view, fmt.Errorf("service.Service.GetPrepView: %w", err)
	}

	return view, nil
}

// Signoffs returns one slot per participant, signed or not, so the
// caller sees the whole ledger including who has yet to sign.
func (s *Service) Signoffs(ctx context.Context, prepId string) ([]models.SignoffRecord, error) {
	prep, err := s.loadPrep(ctx, prepId)
	if err != nil {
		return nil, fmt.Errorf("service.Service.Signoffs: %w", err)
	}

	slots, err := s.signoffSlots(ctx, &prep)
	if err != nil {
		return nil, fmt.Errorf("service.Service.Signoffs: %w", err)
	}
	return slots, nil
}

func (s *Service) signoffSlots(ctx context.Context, prep *models.TenderPrep) ([]models.SignoffRecord, error) {
	stored, err := s.repo.GetSignoffs(ctx, prep.Id, nil)
	if err != nil {
		return nil, err
	}

	byParticipant := make(map[string]models.SignoffRecord, len(stored))
	for _, rec := range stored {
		byParticipant[rec.ParticipantId] = rec
	}

	slots := make([]models.SignoffRecord, 0, len(prep.OfficerIds)+1)
	for _, officerId := range prep.OfficerIds {
		if rec, ok := byParticipant[officerId]; ok {
			slots = append(slots, rec)
			continue
		}
		slots = append(slots, models.SignoffRecord{PrepId: prep.Id, ParticipantId: officerId, Role: models.RoleOfficer})
	}
	if rec, ok := byParticipant[prep.ManagerId]; ok {
		slots = append(slots, rec)
	} else {
		slots = append(slots, models.SignoffRecord{PrepId: prep.Id, ParticipantId: prep.ManagerId, Role: models.RoleManager})
	}

	return slots, nil
}

//// Helpers

func (s *Service) loadPrep(ctx context.Context, prepId string) (models.TenderPrep, error) {
	prep, err := s.repo.GetPrepByUUID(ctx, prepId, nil)
	if errors.Is(err, sql.ErrNoRows) {
		return prep, models.ErrNoPrep
	} else if err != nil {
		return prep, err
	}
	return prep, nil
}

func (s *Service) prepForUpdate(ctx context.Context, prepId string) (*sql.Tx, models.TenderPrep, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, models.TenderPrep{}, err
	}

	prep, err := s.repo.GetPrepForUpdate(ctx, tx, prepId)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, prep, abort(tx, models.ErrNoPrep)
	} else if err != nil {
		return nil, prep, wrapAbort(tx, err)
	}

	return tx, prep, nil
}

// abort rolls back and returns a business-rule outcome untouched. A
// rejected operation must leave no partial state behind.
func abort(tx *sql.Tx, err error) error {
	tx.Rollback()
	return err
}

func wrapAbort(tx *sql.Tx, err error) error {
	rollerr := tx.Rollback()
	if rollerr == nil {
		return err
	}
	return fmt.Errorf("failed to rollback transaction after previous error: %w, %w", rollerr, err)
}

func lockState(lock models.EditLock, ok bool) models.LockState {
	if !ok || !lock.Live(time.Now().UTC()) {
		return models.LockState{State: models.LockStateNone}
	}
	expires := lock.ExpiresAt
	return models.LockState{State: models.LockStateOwned, OwnerId: lock.OwnerId, ExpiresAt: &expires}
}
