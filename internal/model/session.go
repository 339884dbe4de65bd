package model

import (
	"time"
)

// DeviceSessionRecord is the single shared record of a weighing station. All
// clients and the firmware read and write the same record.
type DeviceSessionRecord struct {
	InUse              bool               `json:"inUse"`
	SessionID          string             `json:"sessionId"`
	SessionType        SessionType        `json:"sessionType"`
	OwnerID            string             `json:"ownerId"`
	OwnerName          string             `json:"ownerName"`
	StartedAt          *time.Time         `json:"startedAt"`
	LastActivityAt     *time.Time         `json:"lastActivityAt"`
	TimedOut           bool               `json:"timedOut"`
	Step               Step               `json:"step"`
	Parameters         map[string]string  `json:"parameters"`
	DetectedRfid       string             `json:"detectedRfid"`
	TappedRfid         string             `json:"tappedRfid"`
	LiveReadings       LiveReadings       `json:"liveReadings"`
	Result             *MeasurementResult `json:"result"`
	VerificationFailed bool               `json:"verificationFailed"`
	Version            int64              `json:"version"`
}

type LiveReadings struct {
	Weight float64 `json:"weight"`
	Height float64 `json:"height"`
}

// MeasurementResult is written by the firmware once it has computed the index
// and nutrition status.
type MeasurementResult struct {
	Weight float64         `json:"weight"`
	Height float64         `json:"height"`
	Index  float64         `json:"index"`
	Status NutritionStatus `json:"status"`
}

// NewIdleRecord returns the record in its idle shape.
func NewIdleRecord() *DeviceSessionRecord {
	r := &DeviceSessionRecord{}
	r.Reset()
	return r
}

// Reset puts every field back to the idle shape. Version is kept so that
// subscribers can still order notifications.
func (r *DeviceSessionRecord) Reset() {
	version := r.Version
	*r = DeviceSessionRecord{
		SessionType: SessionTypeNone,
		Step:        StepIdle,
		Parameters:  map[string]string{},
		Version:     version,
	}
}

// IsIdleShape reports whether the record matches the idle shape exactly.
func (r *DeviceSessionRecord) IsIdleShape() bool {
	return !r.InUse &&
		r.SessionID == "" &&
		r.SessionType == SessionTypeNone &&
		r.OwnerID == "" &&
		r.OwnerName == "" &&
		r.StartedAt == nil &&
		r.LastActivityAt == nil &&
		!r.TimedOut &&
		r.Step == StepIdle &&
		len(r.Parameters) == 0 &&
		r.DetectedRfid == "" &&
		r.TappedRfid == "" &&
		r.LiveReadings == (LiveReadings{}) &&
		r.Result == nil &&
		!r.VerificationFailed
}

// IsAvailable reports whether a new session may be acquired.
func (r *DeviceSessionRecord) IsAvailable() bool {
	return !r.InUse || r.TimedOut
}

// IsOwnedBy reports whether id holds the current session.
func (r *DeviceSessionRecord) IsOwnedBy(id string) bool {
	return id != "" && r.OwnerID == id
}

// IsActive reports whether a live (not timed out) session holds the device.
func (r *DeviceSessionRecord) IsActive() bool {
	return r.InUse && !r.TimedOut
}

// StepConsistent reports whether Step belongs to the active session type.
func (r *DeviceSessionRecord) StepConsistent() bool {
	if !r.InUse {
		return r.SessionType == SessionTypeNone && r.Step == StepIdle
	}
	return StepBelongsTo(r.SessionType, r.Step)
}

func (r *DeviceSessionRecord) Touch(now time.Time) {
	t := now
	r.LastActivityAt = &t
}

// Elapsed returns how long the session has been running at now.
func (r *DeviceSessionRecord) Elapsed(now time.Time) time.Duration {
	if r.StartedAt == nil {
		return 0
	}
	return now.Sub(*r.StartedAt)
}

// Clone returns a deep copy.
func (r *DeviceSessionRecord) Clone() *DeviceSessionRecord {
	c := *r
	c.Parameters = make(map[string]string, len(r.Parameters))
	for k, v := range r.Parameters {
		c.Parameters[k] = v
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		c.StartedAt = &t
	}
	if r.LastActivityAt != nil {
		t := *r.LastActivityAt
		c.LastActivityAt = &t
	}
	if r.Result != nil {
		res := *r.Result
		c.Result = &res
	}
	return &c
}
