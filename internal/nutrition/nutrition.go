// Package nutrition computes the body mass index and the nutrition status
// band the station reports. The firmware is authoritative for real
// measurements; this package backs the device simulator.
package nutrition

import (
	"math"

	"github.com/iwandwip/intan-kiosk/internal/model"
)

// Band upper bounds, exclusive.
const (
	severelyUnderweightBelow = 13.0
	underweightBelow         = 14.5
	normalBelow              = 18.5
	overweightBelow          = 20.0
)

// Index returns weight (kg) over height (m) squared, rounded to one decimal.
// It returns 0 for a non-positive height or weight.
func Index(weightKg, heightCm float64) float64 {
	if weightKg <= 0 || heightCm <= 0 {
		return 0
	}
	h := heightCm / 100
	return math.Round(weightKg/(h*h)*10) / 10
}

func Classify(index float64) model.NutritionStatus {
	switch {
	case index < severelyUnderweightBelow:
		return model.NutritionSeverelyUnderweight
	case index < underweightBelow:
		return model.NutritionUnderweight
	case index < normalBelow:
		return model.NutritionNormal
	case index < overweightBelow:
		return model.NutritionOverweight
	default:
		return model.NutritionObese
	}
}

// Evaluate builds the result the firmware would write for the readings.
func Evaluate(weightKg, heightCm float64) model.MeasurementResult {
	index := Index(weightKg, heightCm)
	return model.MeasurementResult{
		Weight: weightKg,
		Height: heightCm,
		Index:  index,
		Status: Classify(index),
	}
}
