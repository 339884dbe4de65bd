// Package reconcile derives what a client should show from the shared device
// record. Clients never keep their own session state: every notification is
// passed through Derive and the result replaces whatever was on screen.
package reconcile

import (
	"fmt"

	"github.com/iwandwip/intan-kiosk/internal/model"
)

type Status string

const (
	StatusAvailable             Status = "available"
	StatusBusy                  Status = "busy"
	StatusTimedOut              Status = "timed_out"
	StatusPairingWaitingForTap  Status = "pairing_waiting_for_tap"
	StatusPairingConfirmNumber  Status = "pairing_confirm_number"
	StatusPairingCompleted      Status = "pairing_completed"
	StatusPairingCanceled       Status = "pairing_canceled"
	StatusWeighingWaitingForTap Status = "weighing_waiting_for_tap"
	StatusWeighingVerifying     Status = "weighing_verifying"
	StatusWeighingRFIDFailed    Status = "weighing_rfid_failed"
	StatusWeighingLiveWeight    Status = "weighing_live_weight"
	StatusWeighingLiveHeight    Status = "weighing_live_height"
	StatusWeighingCalculating   Status = "weighing_calculating"
	StatusWeighingComplete      Status = "weighing_complete"
	StatusUnknown               Status = "unknown"
)

const (
	MessageReady        = "Siap untuk mulai"
	MessageTimedOut     = "Session timeout, silakan coba lagi"
	MessageComplete     = "Pengukuran selesai!"
	MessageCardRead     = "RFID berhasil dibaca!"
	MessageCardMismatch = "Kartu RFID yang ditap tidak sesuai dengan akun Anda. Sesi akan direset."
	MessageUnknown      = "Status perangkat tidak dikenal"
	messageWeighingBy   = "Sedang digunakan untuk timbang oleh %s"
	messagePairingBy    = "Sedang digunakan untuk pairing RFID oleh %s"
	messageInUseBy      = "Sedang digunakan oleh %s"
)

// View is the client's rendering of the record.
type View struct {
	Status       Status                   `json:"status"`
	Step         model.Step               `json:"step"`
	SessionType  model.SessionType        `json:"sessionType"`
	SessionID    string                   `json:"sessionId,omitempty"`
	Available    bool                     `json:"available"`
	Mine         bool                     `json:"mine"`
	OwnerName    string                   `json:"ownerName,omitempty"`
	Message      string                   `json:"message"`
	LiveReadings *model.LiveReadings      `json:"liveReadings,omitempty"`
	Result       *model.MeasurementResult `json:"result,omitempty"`
	DetectedRfid string                   `json:"detectedRfid,omitempty"`
	Version      int64                    `json:"version"`
}

var weighingStatuses = map[model.Step]Status{
	model.StepWaitingForRFIDTap: StatusWeighingWaitingForTap,
	model.StepRFIDVerifying:     StatusWeighingVerifying,
	model.StepRFIDFailed:        StatusWeighingRFIDFailed,
	model.StepWeighing:          StatusWeighingLiveWeight,
	model.StepHeight:            StatusWeighingLiveHeight,
	model.StepCalculating:       StatusWeighingCalculating,
	model.StepComplete:          StatusWeighingComplete,
}

// Derive returns the view of rec for viewerID. It depends only on its
// arguments; an older record simply yields an older view.
func Derive(rec *model.DeviceSessionRecord, viewerID string) View {
	if rec == nil {
		rec = model.NewIdleRecord()
	}

	v := View{
		Step:        rec.Step,
		SessionType: rec.SessionType,
		Available:   rec.IsAvailable(),
		Version:     rec.Version,
		Message:     Message(rec),
	}

	switch {
	case !rec.InUse:
		v.Status = StatusAvailable
		if !rec.StepConsistent() {
			v.Status = StatusUnknown
			v.Message = MessageUnknown
		}
		return v
	case rec.TimedOut:
		v.Status = StatusTimedOut
		v.SessionID = rec.SessionID
		return v
	case !rec.StepConsistent():
		v.Status = StatusUnknown
		v.Message = MessageUnknown
		return v
	}

	v.SessionID = rec.SessionID
	v.OwnerName = rec.OwnerName
	v.Mine = rec.IsOwnedBy(viewerID)
	if !v.Mine {
		v.Status = StatusBusy
		return v
	}

	switch rec.SessionType {
	case model.SessionTypeRFIDPairing:
		derivePairing(&v, rec)
	case model.SessionTypeWeighing:
		deriveWeighing(&v, rec)
	}
	return v
}

func derivePairing(v *View, rec *model.DeviceSessionRecord) {
	v.DetectedRfid = rec.DetectedRfid
	switch rec.Step {
	case model.StepWaitingForTap:
		v.Status = StatusPairingWaitingForTap
		if rec.DetectedRfid != "" {
			v.Status = StatusPairingConfirmNumber
		}
	case model.StepCompleted:
		v.Status = StatusPairingCompleted
	case model.StepCanceled:
		v.Status = StatusPairingCanceled
	default:
		v.Status = StatusUnknown
		v.Message = MessageUnknown
	}
}

func deriveWeighing(v *View, rec *model.DeviceSessionRecord) {
	status, ok := weighingStatuses[rec.Step]
	if !ok {
		v.Status = StatusUnknown
		v.Message = MessageUnknown
		return
	}
	v.Status = status

	switch rec.Step {
	case model.StepRFIDFailed:
		v.Message = MessageCardMismatch
	case model.StepWeighing, model.StepHeight, model.StepCalculating, model.StepComplete:
		readings := rec.LiveReadings
		v.LiveReadings = &readings
	}
	if rec.Result != nil && !rec.VerificationFailed {
		res := *rec.Result
		v.Result = &res
	}
}

// Message returns the status line shown to every viewer of rec.
func Message(rec *model.DeviceSessionRecord) string {
	if rec == nil || !rec.InUse {
		return MessageReady
	}
	if rec.TimedOut {
		return MessageTimedOut
	}

	switch rec.SessionType {
	case model.SessionTypeWeighing:
		if rec.Step == model.StepComplete {
			return MessageComplete
		}
		return fmt.Sprintf(messageWeighingBy, rec.OwnerName)
	case model.SessionTypeRFIDPairing:
		if rec.DetectedRfid != "" {
			return MessageCardRead
		}
		return fmt.Sprintf(messagePairingBy, rec.OwnerName)
	}
	return fmt.Sprintf(messageInUseBy, rec.OwnerName)
}
