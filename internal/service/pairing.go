package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/iwandwip/intan-kiosk/internal/audit"
	"github.com/iwandwip/intan-kiosk/internal/database"
	apperrors "github.com/iwandwip/intan-kiosk/internal/errors"
	"github.com/iwandwip/intan-kiosk/internal/model"
	"github.com/iwandwip/intan-kiosk/internal/repository"
	"github.com/iwandwip/intan-kiosk/internal/util"
)

// TxRunner runs fn inside a database transaction. *database.DB satisfies it.
type TxRunner interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

// PairingService binds an RFID card to a user, either through a tap on the
// station or by typing the card code by hand.
type PairingService struct {
	lock  *Lock
	db    TxRunner
	users repository.UserRepository
}

func NewPairingService(lock *Lock, db TxRunner, users repository.UserRepository) *PairingService {
	return &PairingService{
		lock:  lock,
		db:    db,
		users: users,
	}
}

// StartDevicePairing claims the station so the firmware waits for a card
// tap on behalf of targetUserID.
func (s *PairingService) StartDevicePairing(ctx context.Context, requester *model.UserProfile, targetUserID string) (*model.DeviceSessionRecord, error) {
	target, err := s.resolveTarget(ctx, requester, targetUserID)
	if err != nil {
		return nil, err
	}

	return s.lock.Acquire(ctx, AcquireParams{
		Type:      model.SessionTypeRFIDPairing,
		OwnerID:   requester.ID,
		OwnerName: requester.Name,
		Parameters: model.PairingParameters{
			TargetUserID:   target.ID,
			TargetUserName: target.Name,
		}.Map(),
	})
}

// DetectedCard returns the card read during ownerID's pairing session, or
// nil while the firmware is still waiting for a tap.
func (s *PairingService) DetectedCard(ctx context.Context, ownerID string) (*model.DetectedCard, error) {
	rec, err := s.lock.Current(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkPairingOwner(rec, ownerID); err != nil {
		return nil, err
	}
	if rec.DetectedRfid == "" {
		return nil, nil
	}
	return &model.DetectedCard{
		SessionID:    rec.SessionID,
		Code:         rec.DetectedRfid,
		TargetUserID: model.ParsePairingParameters(rec.Parameters).TargetUserID,
	}, nil
}

// Confirm assigns the detected card with the human readable number to the
// pairing target, then releases the station. The card is only written while
// the same session still holds the device. A duplicate number leaves the
// session open so the user can correct it.
func (s *PairingService) Confirm(ctx context.Context, ownerID, number string) (*model.UserProfile, error) {
	number, err := normalizeRfidNumber(number)
	if err != nil {
		return nil, err
	}

	rec, err := s.lock.Current(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkPairingOwner(rec, ownerID); err != nil {
		return nil, err
	}
	if rec.DetectedRfid == "" {
		return nil, apperrors.InvalidStep(string(rec.Step), "card detected")
	}

	params := model.ParsePairingParameters(rec.Parameters)
	user, err := s.assign(ctx, rec.SessionID, ownerID, params.TargetUserID, model.RFIDCredential{
		Code:   rec.DetectedRfid,
		Number: number,
	})
	if err != nil {
		return nil, err
	}
	s.finish(ctx, rec.SessionID)

	audit.Log(ctx, audit.Event{
		Type:      audit.EventRFIDPaired,
		UserID:    ownerID,
		SessionID: rec.SessionID,
		Details:   map[string]interface{}{"targetUserId": user.ID, "rfidNumber": number},
	})
	return user, nil
}

// ManualPair assigns a typed card code and number. The station is held for
// the duration so no device pairing can run at the same time.
func (s *PairingService) ManualPair(ctx context.Context, requester *model.UserProfile, targetUserID, code, number string) (*model.UserProfile, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperrors.MissingRequired("rfid")
	}
	number, err := normalizeRfidNumber(number)
	if err != nil {
		return nil, err
	}

	target, err := s.resolveTarget(ctx, requester, targetUserID)
	if err != nil {
		return nil, err
	}

	rec, err := s.lock.Acquire(ctx, AcquireParams{
		Type:      model.SessionTypeRFIDPairing,
		OwnerID:   requester.ID,
		OwnerName: requester.Name,
		Parameters: model.PairingParameters{
			TargetUserID:   target.ID,
			TargetUserName: target.Name,
			Manual:         true,
		}.Map(),
	})
	if err != nil {
		return nil, err
	}
	defer s.finish(ctx, rec.SessionID)

	user, err := s.assign(ctx, rec.SessionID, requester.ID, target.ID, model.RFIDCredential{Code: code, Number: number})
	if err != nil {
		return nil, err
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventRFIDPaired,
		UserID:    requester.ID,
		SessionID: rec.SessionID,
		Details:   map[string]interface{}{"targetUserId": user.ID, "rfidNumber": number, "manual": true},
	})
	return user, nil
}

// Cancel ends ownerID's pairing session without touching any profile. A
// waiting session passes through canceled before the station is released.
// Any other session of ownerID is simply released.
func (s *PairingService) Cancel(ctx context.Context, ownerID string) error {
	rec, err := s.lock.Current(ctx)
	if err != nil {
		return err
	}
	if rec.SessionType != model.SessionTypeRFIDPairing || rec.Step != model.StepWaitingForTap || !rec.IsOwnedBy(ownerID) {
		return s.lock.Release(ctx, ownerID)
	}

	canceled, err := s.lock.AdvanceSession(ctx, rec.SessionID, ownerID, model.StepWaitingForTap, model.StepCanceled)
	if err != nil {
		if _, ok := apperrors.AsAppError(err); ok {
			return s.lock.Release(ctx, ownerID)
		}
		return err
	}
	_, err = s.lock.ReleaseSession(ctx, canceled.SessionID)
	return err
}

// RemoveRFID clears the card of userID.
func (s *PairingService) RemoveRFID(ctx context.Context, adminID, userID string) (*model.UserProfile, error) {
	user, err := s.users.ClearRFID(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if user == nil {
		return nil, apperrors.NotFound("User")
	}

	audit.Log(ctx, audit.Event{
		Type:    audit.EventRFIDRemoved,
		UserID:  adminID,
		Details: map[string]interface{}{"targetUserId": userID},
	})
	return user, nil
}

// assign checks both the card number and the card code against every other
// user before writing them, inside one transaction. The write is gated on
// moving sessionID from waiting_for_tap to completed, so a session that was
// lost in the meantime rolls the transaction back.
func (s *PairingService) assign(ctx context.Context, sessionID, ownerID, userID string, cred model.RFIDCredential) (*model.UserProfile, error) {
	var updated *model.UserProfile
	completed := false

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		users := s.users.WithTx(tx)

		holder, err := users.FindByRfidNumber(ctx, cred.Number, userID)
		if err != nil {
			return apperrors.Database(err)
		}
		if holder != nil {
			return apperrors.DuplicateRfidNumber(cred.Number, holder.Name)
		}

		holder, err = users.FindByRfid(ctx, cred.Code, userID)
		if err != nil {
			return apperrors.Database(err)
		}
		if holder != nil {
			return apperrors.DuplicateRfid(holder.Name)
		}

		if _, err := s.lock.AdvanceSession(ctx, sessionID, ownerID, model.StepWaitingForTap, model.StepCompleted); err != nil {
			return err
		}
		completed = true

		updated, err = users.SetRFID(ctx, userID, cred)
		switch {
		case errors.Is(err, repository.ErrRfidNumberTaken):
			return apperrors.DuplicateRfidNumber(cred.Number, "pengguna lain")
		case errors.Is(err, repository.ErrRfidTaken):
			return apperrors.DuplicateRfid("pengguna lain")
		case err != nil:
			return apperrors.Database(err)
		case updated == nil:
			return apperrors.NotFound("User")
		}
		return nil
	})
	if err != nil {
		if completed {
			s.reopen(ctx, sessionID, ownerID)
		}
		if apperrors.Is(err, apperrors.ErrCodeDuplicateRfidNumber) || apperrors.Is(err, apperrors.ErrCodeDuplicateRfid) {
			audit.Log(ctx, audit.Event{
				Type:    audit.EventDuplicateRFID,
				UserID:  userID,
				Details: map[string]interface{}{"rfidNumber": cred.Number},
			})
		}
		return nil, err
	}
	return updated, nil
}

// reopen puts a session marked completed back to waiting_for_tap after the
// profile write was rolled back.
func (s *PairingService) reopen(ctx context.Context, sessionID, ownerID string) {
	if _, err := s.lock.AdvanceSession(context.WithoutCancel(ctx), sessionID, ownerID, model.StepCompleted, model.StepWaitingForTap); err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("failed to reopen pairing session")
	}
}

func (s *PairingService) resolveTarget(ctx context.Context, requester *model.UserProfile, targetUserID string) (*model.UserProfile, error) {
	if targetUserID == "" || targetUserID == requester.ID {
		return requester, nil
	}
	if !canManage(requester) {
		return nil, apperrors.Forbidden("Only teachers and admins can pair cards for other users")
	}

	target, err := s.users.FindByID(ctx, targetUserID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if target == nil {
		return nil, apperrors.NotFound("User")
	}
	return target, nil
}

// finish releases the station for sessionID. Release errors are logged and
// the supervisor reclaims the session on timeout.
func (s *PairingService) finish(ctx context.Context, sessionID string) {
	if _, err := s.lock.ReleaseSession(context.WithoutCancel(ctx), sessionID); err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to release pairing session")
	}
}

func checkPairingOwner(rec *model.DeviceSessionRecord, ownerID string) error {
	if err := checkOwner(rec, ownerID); err != nil {
		return err
	}
	if rec.SessionType != model.SessionTypeRFIDPairing {
		return apperrors.InvalidStep(string(rec.Step), string(model.StepWaitingForTap))
	}
	return nil
}

func normalizeRfidNumber(number string) (string, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return "", apperrors.MissingRequired("rfidNumber")
	}
	if !util.IsDigits(number) {
		return "", apperrors.InvalidInput("rfidNumber", "must contain digits only")
	}
	return number, nil
}

func canManage(u *model.UserProfile) bool {
	return u.IsAdmin || u.Role == model.UserRoleTeacher
}
