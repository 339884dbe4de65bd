package model

type SessionType string

const (
	SessionTypeNone        SessionType = ""
	SessionTypeRFIDPairing SessionType = "rfid_pairing"
	SessionTypeWeighing    SessionType = "weighing"
)

func (t SessionType) Valid() bool {
	switch t {
	case SessionTypeRFIDPairing, SessionTypeWeighing:
		return true
	}
	return false
}

type Step string

const (
	StepIdle     Step = "idle"
	StepTimedOut Step = "timed_out"

	// RFID pairing
	StepWaitingForTap Step = "waiting_for_tap"
	StepCompleted     Step = "completed"
	StepCanceled      Step = "canceled"

	// Weighing
	StepWaitingForRFIDTap Step = "waiting_for_rfid_tap"
	StepRFIDVerifying     Step = "rfid_verifying"
	StepRFIDFailed        Step = "rfid_failed"
	StepWeighing          Step = "weighing"
	StepHeight            Step = "height"
	StepCalculating       Step = "calculating"
	StepComplete          Step = "complete"
)

var pairingSteps = map[Step]bool{
	StepWaitingForTap: true,
	StepCompleted:     true,
	StepCanceled:      true,
	StepTimedOut:      true,
}

var weighingSteps = map[Step]bool{
	StepWaitingForRFIDTap: true,
	StepRFIDVerifying:     true,
	StepRFIDFailed:        true,
	StepWeighing:          true,
	StepHeight:            true,
	StepCalculating:       true,
	StepComplete:          true,
	StepTimedOut:          true,
}

// InitialStep returns the step a freshly acquired session starts in.
func InitialStep(t SessionType) Step {
	switch t {
	case SessionTypeRFIDPairing:
		return StepWaitingForTap
	case SessionTypeWeighing:
		return StepWaitingForRFIDTap
	}
	return StepIdle
}

// StepBelongsTo reports whether step is part of the protocol for t.
func StepBelongsTo(t SessionType, step Step) bool {
	switch t {
	case SessionTypeRFIDPairing:
		return pairingSteps[step]
	case SessionTypeWeighing:
		return weighingSteps[step]
	case SessionTypeNone:
		return step == StepIdle
	}
	return false
}

type NutritionStatus string

const (
	NutritionSeverelyUnderweight NutritionStatus = "gizi buruk"
	NutritionUnderweight         NutritionStatus = "gizi kurang"
	NutritionNormal              NutritionStatus = "gizi baik"
	NutritionOverweight          NutritionStatus = "overweight"
	NutritionObese               NutritionStatus = "obesitas"
)

func (s NutritionStatus) Valid() bool {
	switch s {
	case NutritionSeverelyUnderweight, NutritionUnderweight, NutritionNormal,
		NutritionOverweight, NutritionObese:
		return true
	}
	return false
}

const (
	EatingPatternLow    = "kurang"
	EatingPatternEnough = "cukup"
	EatingPatternExcess = "berlebih"
)

var EatingPatterns = []string{EatingPatternLow, EatingPatternEnough, EatingPatternExcess}

const (
	ChildResponsePassive  = "pasif"
	ChildResponseModerate = "sedang"
	ChildResponseActive   = "aktif"
)

var ChildResponses = []string{ChildResponsePassive, ChildResponseModerate, ChildResponseActive}

const (
	GenderMale   = "laki-laki"
	GenderFemale = "perempuan"
)

var Genders = []string{GenderMale, GenderFemale}

type UserRole string

const (
	UserRoleStudent UserRole = "student"
	UserRoleTeacher UserRole = "teacher"
)
