package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/iwandwip/intan-kiosk/internal/audit"
	"github.com/iwandwip/intan-kiosk/internal/devicestate"
	apperrors "github.com/iwandwip/intan-kiosk/internal/errors"
	"github.com/iwandwip/intan-kiosk/internal/model"
	"github.com/iwandwip/intan-kiosk/internal/util"
)

// DeviceService is the firmware side of the record. It writes only the
// fields the device owns: the detected card, the tapped card and its
// verification, live readings and the result. Ownership is never touched.
type DeviceService struct {
	lock *Lock
}

func NewDeviceService(lock *Lock) *DeviceService {
	return &DeviceService{lock: lock}
}

// State returns the record the firmware polls for sessionType and parameters.
func (s *DeviceService) State(ctx context.Context) (*model.DeviceSessionRecord, error) {
	return s.lock.Current(ctx)
}

// ReportPairingTap stores the card read during a pairing session. Only the
// first card is kept until the owner confirms or cancels. Manual pairings
// take no card from the station.
func (s *DeviceService) ReportPairingTap(ctx context.Context, code string) (*model.DeviceSessionRecord, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperrors.MissingRequired("rfid")
	}

	return s.lock.Store().Update(ctx, func(rec *model.DeviceSessionRecord) error {
		if err := expectStep(rec, model.SessionTypeRFIDPairing, model.StepWaitingForTap); err != nil {
			return err
		}
		if model.ParsePairingParameters(rec.Parameters).Manual {
			return apperrors.InvalidStep(string(rec.Step), "device pairing")
		}
		if rec.DetectedRfid != "" {
			return devicestate.ErrNoChange
		}
		rec.DetectedRfid = code
		rec.Touch(s.lock.Now())
		return nil
	})
}

// ReportWeighingTap verifies the tapped card against the session's expected
// card. The record passes through rfid_verifying and ends at weighing on a
// match or rfid_failed with verificationFailed set otherwise.
func (s *DeviceService) ReportWeighingTap(ctx context.Context, code string) (*model.DeviceSessionRecord, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperrors.MissingRequired("rfid")
	}

	verifying, err := s.lock.Store().Update(ctx, func(rec *model.DeviceSessionRecord) error {
		if err := expectStep(rec, model.SessionTypeWeighing, model.StepWaitingForRFIDTap); err != nil {
			return err
		}
		rec.Step = model.StepRFIDVerifying
		rec.TappedRfid = code
		rec.Touch(s.lock.Now())
		return nil
	})
	if err != nil {
		return nil, err
	}

	sessionID := verifying.SessionID
	rec, err := s.lock.Store().Update(ctx, func(rec *model.DeviceSessionRecord) error {
		if rec.SessionID != sessionID {
			return devicestate.ErrNoChange
		}
		if err := expectStep(rec, model.SessionTypeWeighing, model.StepRFIDVerifying); err != nil {
			return err
		}
		expected := rec.Parameters[model.ParamExpectedRfid]
		if expected != "" && strings.EqualFold(expected, rec.TappedRfid) {
			rec.Step = model.StepWeighing
		} else {
			rec.Step = model.StepRFIDFailed
			rec.VerificationFailed = true
		}
		rec.Touch(s.lock.Now())
		return nil
	})
	if err != nil {
		return nil, err
	}

	if rec.VerificationFailed && rec.SessionID == sessionID {
		log.Warn().Str("sessionId", sessionID).Msg("rfid verification failed")
		audit.Log(ctx, audit.Event{
			Type:      audit.EventVerificationFailed,
			UserID:    rec.OwnerID,
			SessionID: sessionID,
			Details:   map[string]interface{}{"tapped": util.MaskRFID(rec.TappedRfid)},
		})
	}
	return rec, nil
}

// StreamReadings updates the live weight during the weighing step and the
// live height during the height step.
func (s *DeviceService) StreamReadings(ctx context.Context, readings model.LiveReadings) (*model.DeviceSessionRecord, error) {
	if readings.Weight < 0 || readings.Height < 0 {
		return nil, apperrors.InvalidInput("readings", "must not be negative")
	}

	return s.lock.Store().Update(ctx, func(rec *model.DeviceSessionRecord) error {
		if err := expectSession(rec, model.SessionTypeWeighing); err != nil {
			return err
		}
		switch rec.Step {
		case model.StepWeighing:
			if rec.LiveReadings.Weight == readings.Weight {
				return devicestate.ErrNoChange
			}
			rec.LiveReadings.Weight = readings.Weight
		case model.StepHeight:
			if rec.LiveReadings.Height == readings.Height {
				return devicestate.ErrNoChange
			}
			rec.LiveReadings.Height = readings.Height
		default:
			return apperrors.InvalidStep(string(rec.Step), string(model.StepWeighing))
		}
		return nil
	})
}

// ReportResult stores the index and nutrition status computed by the
// firmware once the session is calculating.
func (s *DeviceService) ReportResult(ctx context.Context, result model.MeasurementResult) (*model.DeviceSessionRecord, error) {
	if result.Weight <= 0 || result.Height <= 0 || result.Index <= 0 {
		return nil, apperrors.InvalidInput("result", "weight, height and index must be positive")
	}
	if !result.Status.Valid() {
		return nil, apperrors.InvalidInput("status", "unknown nutrition status")
	}

	return s.lock.Store().Update(ctx, func(rec *model.DeviceSessionRecord) error {
		if err := expectStep(rec, model.SessionTypeWeighing, model.StepCalculating); err != nil {
			return err
		}
		if rec.VerificationFailed {
			return apperrors.VerificationFailed()
		}
		if rec.Result != nil {
			return devicestate.ErrNoChange
		}
		r := result
		rec.Result = &r
		rec.Touch(s.lock.Now())
		return nil
	})
}

func expectSession(rec *model.DeviceSessionRecord, sessionType model.SessionType) error {
	if rec.TimedOut {
		return apperrors.SessionTimeout()
	}
	if !rec.InUse || rec.SessionType != sessionType {
		return apperrors.InvalidStep(string(rec.Step), string(model.InitialStep(sessionType)))
	}
	return nil
}

func expectStep(rec *model.DeviceSessionRecord, sessionType model.SessionType, step model.Step) error {
	if err := expectSession(rec, sessionType); err != nil {
		return err
	}
	if rec.Step != step {
		return apperrors.InvalidStep(string(rec.Step), string(step))
	}
	return nil
}
