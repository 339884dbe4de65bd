package model

import (
	"time"
)

// MeasurementRecord is one entry of a user's append-only measurement log.
type MeasurementRecord struct {
	ID              string          `db:"id" json:"id"`
	UserID          string          `db:"user_id" json:"userId"`
	SessionID       string          `db:"session_id" json:"sessionId"`
	Weight          float64         `db:"weight" json:"weight"`
	Height          float64         `db:"height" json:"height"`
	Imt             float64         `db:"imt" json:"imt"`
	NutritionStatus NutritionStatus `db:"nutrition_status" json:"nutritionStatus"`
	EatingPattern   string          `db:"eating_pattern" json:"eatingPattern"`
	ChildResponse   string          `db:"child_response" json:"childResponse"`
	AgeYears        int             `db:"age_years" json:"ageYears"`
	AgeMonths       int             `db:"age_months" json:"ageMonths"`
	Gender          string          `db:"gender" json:"gender"`
	MeasuredAt      time.Time       `db:"measured_at" json:"dateTime"`
}

type AppendMeasurementParams struct {
	ID              string
	SessionID       string
	Weight          float64
	Height          float64
	Imt             float64
	NutritionStatus NutritionStatus
	EatingPattern   string
	ChildResponse   string
	AgeYears        int
	AgeMonths       int
	Gender          string
	MeasuredAt      time.Time
}

func (m *MeasurementRecord) Latest() LatestWeighing {
	return LatestWeighing{
		Weight:          m.Weight,
		Height:          m.Height,
		Imt:             m.Imt,
		NutritionStatus: m.NutritionStatus,
		EatingPattern:   m.EatingPattern,
		ChildResponse:   m.ChildResponse,
		AgeYears:        m.AgeYears,
		AgeMonths:       m.AgeMonths,
		Gender:          m.Gender,
		DateTime:        m.MeasuredAt,
	}
}
