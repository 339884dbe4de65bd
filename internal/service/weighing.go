package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/iwandwip/intan-kiosk/internal/audit"
	"github.com/iwandwip/intan-kiosk/internal/devicestate"
	apperrors "github.com/iwandwip/intan-kiosk/internal/errors"
	"github.com/iwandwip/intan-kiosk/internal/model"
	"github.com/iwandwip/intan-kiosk/internal/repository"
	"github.com/iwandwip/intan-kiosk/internal/util"
)

type StartWeighingInput struct {
	EatingPattern string `json:"eatingPattern"`
	ChildResponse string `json:"childResponse"`
}

// WeighingService drives a weighing session from the owner's side and
// turns a firmware result into a stored measurement.
type WeighingService struct {
	lock         *Lock
	users        repository.UserRepository
	measurements repository.MeasurementRepository
}

func NewWeighingService(
	lock *Lock,
	users repository.UserRepository,
	measurements repository.MeasurementRepository,
) *WeighingService {
	return &WeighingService{
		lock:         lock,
		users:        users,
		measurements: measurements,
	}
}

// Start claims the station for a weighing of the requester. Age comes from
// the birthdate when known and the expected card from the profile.
func (s *WeighingService) Start(ctx context.Context, requester *model.UserProfile, input StartWeighingInput) (*model.DeviceSessionRecord, error) {
	if !util.IsOneOf(input.EatingPattern, model.EatingPatterns) {
		return nil, apperrors.InvalidInput("eatingPattern", "must be kurang, cukup or berlebih")
	}
	if !util.IsOneOf(input.ChildResponse, model.ChildResponses) {
		return nil, apperrors.InvalidInput("childResponse", "must be pasif, sedang or aktif")
	}
	if !requester.HasRFID() {
		return nil, apperrors.RFIDNotPaired()
	}
	if !util.IsOneOf(requester.Gender, model.Genders) {
		return nil, apperrors.InvalidInput("gender", "profile gender must be laki-laki or perempuan")
	}

	age := model.Age{Years: requester.AgeYears, Months: requester.AgeMonths}
	if requester.Birthdate != nil {
		age = model.CalculateAge(*requester.Birthdate, s.lock.Now())
	}

	return s.lock.Acquire(ctx, AcquireParams{
		Type:      model.SessionTypeWeighing,
		OwnerID:   requester.ID,
		OwnerName: requester.Name,
		Parameters: model.WeighingParameters{
			EatingPattern: input.EatingPattern,
			ChildResponse: input.ChildResponse,
			AgeYears:      age.Years,
			AgeMonths:     age.Months,
			Gender:        requester.Gender,
			ExpectedRfid:  requester.Rfid,
		}.Map(),
	})
}

// Confirm accepts the current live reading: weighing moves on to height,
// height moves on to calculating.
func (s *WeighingService) Confirm(ctx context.Context, ownerID string) (*model.DeviceSessionRecord, error) {
	rec, err := s.lock.Current(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(rec, ownerID); err != nil {
		return nil, err
	}
	if rec.SessionType != model.SessionTypeWeighing {
		return nil, apperrors.InvalidStep(string(rec.Step), string(model.StepWeighing))
	}

	switch rec.Step {
	case model.StepWeighing:
		if rec.LiveReadings.Weight <= 0 {
			return nil, apperrors.ValidationError("No weight reading yet")
		}
		return s.lock.Advance(ctx, ownerID, model.StepWeighing, model.StepHeight)
	case model.StepHeight:
		if rec.LiveReadings.Height <= 0 {
			return nil, apperrors.ValidationError("No height reading yet")
		}
		return s.lock.Advance(ctx, ownerID, model.StepHeight, model.StepCalculating)
	}
	return nil, apperrors.InvalidStep(string(rec.Step), string(model.StepWeighing))
}

// Cancel ends ownerID's session. Cancelling an idle station is a no-op.
func (s *WeighingService) Cancel(ctx context.Context, ownerID string) error {
	return s.lock.Release(ctx, ownerID)
}

// Observe reacts to one notification of the record: a failed RFID check
// releases the station, a result is stored. It is safe to call repeatedly
// with the same or an older record.
func (s *WeighingService) Observe(ctx context.Context, rec *model.DeviceSessionRecord) error {
	if rec == nil || rec.SessionType != model.SessionTypeWeighing || !rec.IsActive() {
		return nil
	}
	if rec.VerificationFailed {
		_, err := s.lock.ReleaseVerificationFailure(ctx, rec.SessionID)
		return err
	}
	if rec.Result == nil {
		return nil
	}
	switch rec.Step {
	case model.StepCalculating, model.StepComplete:
		_, err := s.Complete(ctx, rec)
		return err
	}
	return nil
}

// Complete stores the measurement of a finished session and releases the
// station. The station is released even when storing fails. A session that
// was already stored returns a nil measurement.
func (s *WeighingService) Complete(ctx context.Context, observed *model.DeviceSessionRecord) (*model.MeasurementRecord, error) {
	sessionID := observed.SessionID

	rec, err := s.lock.Store().Update(ctx, func(rec *model.DeviceSessionRecord) error {
		if rec.SessionID != sessionID || !rec.IsActive() || rec.VerificationFailed || rec.Result == nil {
			return devicestate.ErrNoChange
		}
		if rec.Step != model.StepCalculating {
			return devicestate.ErrNoChange
		}
		rec.Step = model.StepComplete
		rec.Touch(s.lock.Now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rec.SessionID != sessionID || !rec.IsActive() || rec.Step != model.StepComplete || rec.Result == nil || rec.VerificationFailed {
		return nil, nil
	}

	defer func() {
		if _, err := s.lock.ReleaseSession(context.WithoutCancel(ctx), sessionID); err != nil {
			log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to release weighing session")
		}
	}()

	params, err := model.ParseWeighingParameters(rec.Parameters)
	if err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("malformed weighing parameters")
	}
	if !rec.Result.Status.Valid() {
		log.Warn().Str("sessionId", sessionID).Str("status", string(rec.Result.Status)).Msg("unknown nutrition status from device")
	}

	m, err := s.measurements.Append(ctx, rec.OwnerID, model.AppendMeasurementParams{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		Weight:          rec.Result.Weight,
		Height:          rec.Result.Height,
		Imt:             rec.Result.Index,
		NutritionStatus: rec.Result.Status,
		EatingPattern:   params.EatingPattern,
		ChildResponse:   params.ChildResponse,
		AgeYears:        params.AgeYears,
		AgeMonths:       params.AgeMonths,
		Gender:          params.Gender,
		MeasuredAt:      s.lock.Now(),
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if m == nil {
		return nil, nil
	}

	if err := s.users.UpdateLatestWeighing(ctx, rec.OwnerID, m.Latest()); err != nil {
		log.Warn().Err(err).Str("userId", rec.OwnerID).Msg("failed to update latest weighing")
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventMeasurementStored,
		UserID:    rec.OwnerID,
		SessionID: sessionID,
		Details: map[string]interface{}{
			"weight": m.Weight,
			"height": m.Height,
			"imt":    m.Imt,
			"status": string(m.NutritionStatus),
		},
	})
	return m, nil
}

// Measurements lists userID's measurements, newest first.
func (s *WeighingService) Measurements(ctx context.Context, userID string, limit, offset int) ([]model.MeasurementRecord, int, error) {
	records, err := s.measurements.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, apperrors.Database(err)
	}
	total, err := s.measurements.CountByUser(ctx, userID)
	if err != nil {
		return nil, 0, apperrors.Database(err)
	}
	return records, total, nil
}
