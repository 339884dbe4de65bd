package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/iwandwip/intan-kiosk/internal/audit"
	"github.com/iwandwip/intan-kiosk/internal/devicestate"
	apperrors "github.com/iwandwip/intan-kiosk/internal/errors"
	"github.com/iwandwip/intan-kiosk/internal/model"
)

// SessionTimeouts bounds how long each session type may hold the device,
// measured from startedAt.
type SessionTimeouts struct {
	Pairing  time.Duration
	Weighing time.Duration
}

func (t SessionTimeouts) For(sessionType model.SessionType) time.Duration {
	switch sessionType {
	case model.SessionTypeRFIDPairing:
		return t.Pairing
	case model.SessionTypeWeighing:
		return t.Weighing
	}
	return 0
}

type AcquireParams struct {
	Type       model.SessionType
	OwnerID    string
	OwnerName  string
	Parameters map[string]string
}

// Lock is the only writer of the record's inUse, sessionType and ownership
// fields.
type Lock struct {
	store    devicestate.Store
	deviceID string
	timeouts SessionTimeouts
	now      func() time.Time
}

func NewLock(store devicestate.Store, deviceID string, timeouts SessionTimeouts) *Lock {
	return &Lock{
		store:    store,
		deviceID: deviceID,
		timeouts: timeouts,
		now:      time.Now,
	}
}

// WithClock replaces the time source.
func (l *Lock) WithClock(now func() time.Time) *Lock {
	l.now = now
	return l
}

func (l *Lock) Now() time.Time {
	return l.now()
}

func (l *Lock) Timeouts() SessionTimeouts {
	return l.timeouts
}

func (l *Lock) Store() devicestate.Store {
	return l.store
}

// Acquire claims the device. It fails with DeviceBusy while another live
// session holds it; timed out sessions are always preempted.
func (l *Lock) Acquire(ctx context.Context, params AcquireParams) (*model.DeviceSessionRecord, error) {
	if !params.Type.Valid() {
		return nil, apperrors.InvalidInput("sessionType", "must be rfid_pairing or weighing")
	}
	if params.OwnerID == "" {
		return nil, apperrors.MissingRequired("ownerId")
	}

	var preempted *model.DeviceSessionRecord
	rec, err := l.store.Update(ctx, func(rec *model.DeviceSessionRecord) error {
		preempted = nil
		if !rec.IsAvailable() {
			return apperrors.DeviceBusy(rec.OwnerName, string(rec.SessionType))
		}
		if rec.InUse {
			preempted = rec.Clone()
		}

		now := l.now()
		rec.Reset()
		rec.InUse = true
		rec.SessionID = uuid.NewString()
		rec.SessionType = params.Type
		rec.OwnerID = params.OwnerID
		rec.OwnerName = params.OwnerName
		rec.StartedAt = &now
		rec.Touch(now)
		rec.Step = model.InitialStep(params.Type)
		for k, v := range params.Parameters {
			rec.Parameters[k] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if preempted != nil {
		audit.Log(ctx, audit.Event{
			Type:      audit.EventSessionPreempt,
			UserID:    params.OwnerID,
			DeviceID:  l.deviceID,
			SessionID: preempted.SessionID,
		})
	}
	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionAcquire,
		UserID:    params.OwnerID,
		DeviceID:  l.deviceID,
		SessionID: rec.SessionID,
		Details:   map[string]interface{}{"sessionType": string(rec.SessionType)},
	})

	return rec, nil
}

// Release resets the record to the idle shape on behalf of ownerID. It is a
// no-op on an idle record. A timed out record may be cleared by anyone.
func (l *Lock) Release(ctx context.Context, ownerID string) error {
	var released *model.DeviceSessionRecord
	_, err := l.store.Update(ctx, func(rec *model.DeviceSessionRecord) error {
		released = nil
		if rec.IsIdleShape() {
			return devicestate.ErrNoChange
		}
		if rec.IsActive() && !rec.IsOwnedBy(ownerID) {
			return apperrors.NotSessionOwner()
		}
		released = rec.Clone()
		rec.Reset()
		return nil
	})
	if err != nil {
		return err
	}

	if released != nil {
		audit.Log(ctx, audit.Event{
			Type:      audit.EventSessionRelease,
			UserID:    ownerID,
			DeviceID:  l.deviceID,
			SessionID: released.SessionID,
			Details:   map[string]interface{}{"step": string(released.Step)},
		})
	}
	return nil
}

// ReleaseSession resets the record only while it still carries sessionID.
// Flow cleanup uses it so a late cleanup never ends a newer session.
func (l *Lock) ReleaseSession(ctx context.Context, sessionID string) (bool, error) {
	released := false
	_, err := l.store.Update(ctx, func(rec *model.DeviceSessionRecord) error {
		released = false
		if sessionID == "" || rec.SessionID != sessionID {
			return devicestate.ErrNoChange
		}
		released = true
		rec.Reset()
		return nil
	})
	if err != nil {
		return false, err
	}

	if released {
		audit.Log(ctx, audit.Event{
			Type:      audit.EventSessionRelease,
			DeviceID:  l.deviceID,
			SessionID: sessionID,
		})
	}
	return released, nil
}

// ForceRelease resets the record regardless of ownership.
func (l *Lock) ForceRelease(ctx context.Context, actorID, reason string) error {
	var previous *model.DeviceSessionRecord
	_, err := l.store.Update(ctx, func(rec *model.DeviceSessionRecord) error {
		previous = nil
		if rec.IsIdleShape() {
			return devicestate.ErrNoChange
		}
		previous = rec.Clone()
		rec.Reset()
		return nil
	})
	if err != nil {
		return err
	}

	if previous != nil {
		audit.Log(ctx, audit.Event{
			Type:      audit.EventSessionForceReset,
			UserID:    actorID,
			DeviceID:  l.deviceID,
			SessionID: previous.SessionID,
			Details: map[string]interface{}{
				"reason":        reason,
				"previousOwner": previous.OwnerID,
				"step":          string(previous.Step),
			},
		})
	}
	return nil
}

// Advance moves the owner's session from one step to the next. Repeating an
// advance that already happened is a no-op.
func (l *Lock) Advance(ctx context.Context, ownerID string, from, to model.Step) (*model.DeviceSessionRecord, error) {
	return l.store.Update(ctx, func(rec *model.DeviceSessionRecord) error {
		if err := checkOwner(rec, ownerID); err != nil {
			return err
		}
		if !model.StepBelongsTo(rec.SessionType, to) {
			return apperrors.InvalidStep(string(rec.Step), string(from))
		}
		if rec.Step == to {
			return devicestate.ErrNoChange
		}
		if rec.Step != from {
			return apperrors.InvalidStep(string(rec.Step), string(from))
		}
		rec.Step = to
		rec.Touch(l.now())
		return nil
	})
}

// AdvanceSession is Advance for one specific session. It fails when the
// session that sessionID names no longer holds the device.
func (l *Lock) AdvanceSession(ctx context.Context, sessionID, ownerID string, from, to model.Step) (*model.DeviceSessionRecord, error) {
	return l.store.Update(ctx, func(rec *model.DeviceSessionRecord) error {
		if sessionID == "" || rec.SessionID != sessionID {
			if rec.IsActive() {
				return apperrors.NotSessionOwner()
			}
			return apperrors.SessionTimeout()
		}
		if err := checkOwner(rec, ownerID); err != nil {
			return err
		}
		if !model.StepBelongsTo(rec.SessionType, to) {
			return apperrors.InvalidStep(string(rec.Step), string(from))
		}
		if rec.Step == to {
			return devicestate.ErrNoChange
		}
		if rec.Step != from {
			return apperrors.InvalidStep(string(rec.Step), string(from))
		}
		rec.Step = to
		rec.Touch(l.now())
		return nil
	})
}

// ExpireStale marks a session that has outlived its timeout as timed out and
// clears its ownership, making the device acquirable again.
func (l *Lock) ExpireStale(ctx context.Context, now time.Time) (bool, error) {
	var expired *model.DeviceSessionRecord
	_, err := l.store.Update(ctx, func(rec *model.DeviceSessionRecord) error {
		expired = nil
		if !rec.IsActive() {
			return devicestate.ErrNoChange
		}
		timeout := l.timeouts.For(rec.SessionType)
		if timeout <= 0 || rec.Elapsed(now) < timeout {
			return devicestate.ErrNoChange
		}

		expired = rec.Clone()
		rec.TimedOut = true
		rec.Step = model.StepTimedOut
		rec.OwnerID = ""
		rec.OwnerName = ""
		rec.Parameters = map[string]string{}
		rec.DetectedRfid = ""
		rec.TappedRfid = ""
		rec.LiveReadings = model.LiveReadings{}
		rec.Touch(now)
		return nil
	})
	if err != nil {
		return false, err
	}
	if expired == nil {
		return false, nil
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionTimeout,
		UserID:    expired.OwnerID,
		DeviceID:  l.deviceID,
		SessionID: expired.SessionID,
		Details: map[string]interface{}{
			"sessionType": string(expired.SessionType),
			"step":        string(expired.Step),
			"elapsed":     expired.Elapsed(now),
		},
	})
	return true, nil
}

// ClearTimedOut resets a timed out record to the idle shape once it has been
// visible for at least retention.
func (l *Lock) ClearTimedOut(ctx context.Context, now time.Time, retention time.Duration) (bool, error) {
	cleared := false
	_, err := l.store.Update(ctx, func(rec *model.DeviceSessionRecord) error {
		cleared = false
		if !rec.TimedOut {
			return devicestate.ErrNoChange
		}
		if rec.LastActivityAt != nil && now.Sub(*rec.LastActivityAt) < retention {
			return devicestate.ErrNoChange
		}
		cleared = true
		rec.Reset()
		return nil
	})
	if err != nil {
		return false, err
	}
	if cleared {
		log.Debug().Str("deviceId", l.deviceID).Msg("timed out session cleared")
	}
	return cleared, nil
}

func (l *Lock) Current(ctx context.Context) (*model.DeviceSessionRecord, error) {
	return l.store.Get(ctx)
}

func (l *Lock) EnsureInitialized(ctx context.Context) (*model.DeviceSessionRecord, error) {
	return l.store.EnsureInitialized(ctx)
}

// IsAvailable reports whether rec may be acquired.
func IsAvailable(rec *model.DeviceSessionRecord) bool {
	return rec.IsAvailable()
}

// IsOwnedBy reports whether id holds the session in rec.
func IsOwnedBy(rec *model.DeviceSessionRecord, id string) bool {
	return rec.IsOwnedBy(id)
}

// checkOwner verifies ownerID holds a live session.
func checkOwner(rec *model.DeviceSessionRecord, ownerID string) error {
	if rec.TimedOut {
		return apperrors.SessionTimeout()
	}
	if !rec.InUse {
		return apperrors.InvalidStep(string(rec.Step), "active session")
	}
	if !rec.IsOwnedBy(ownerID) {
		return apperrors.NotSessionOwner()
	}
	return nil
}

// ReleaseFailedVerification releases a weighing session whose RFID check
// failed once the failure has been visible for at least retention.
func (l *Lock) ReleaseFailedVerification(ctx context.Context, now time.Time, retention time.Duration) (bool, error) {
	return l.releaseFailed(ctx, func(rec *model.DeviceSessionRecord) bool {
		return rec.LastActivityAt == nil || now.Sub(*rec.LastActivityAt) >= retention
	})
}

// ReleaseVerificationFailure releases sessionID at once if its RFID check
// failed.
func (l *Lock) ReleaseVerificationFailure(ctx context.Context, sessionID string) (bool, error) {
	return l.releaseFailed(ctx, func(rec *model.DeviceSessionRecord) bool {
		return sessionID != "" && rec.SessionID == sessionID
	})
}

func (l *Lock) releaseFailed(ctx context.Context, due func(rec *model.DeviceSessionRecord) bool) (bool, error) {
	var failed *model.DeviceSessionRecord
	_, err := l.store.Update(ctx, func(rec *model.DeviceSessionRecord) error {
		failed = nil
		if !rec.IsActive() || !rec.VerificationFailed || !due(rec) {
			return devicestate.ErrNoChange
		}
		failed = rec.Clone()
		rec.Reset()
		return nil
	})
	if err != nil {
		return false, err
	}
	if failed == nil {
		return false, nil
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionRelease,
		UserID:    failed.OwnerID,
		DeviceID:  l.deviceID,
		SessionID: failed.SessionID,
		Details:   map[string]interface{}{"reason": "verification_failed"},
	})
	return true, nil
}
