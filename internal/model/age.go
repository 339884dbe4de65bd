package model

import "time"

type Age struct {
	Years  int `json:"years"`
	Months int `json:"months"`
}

// CalculateAge returns the completed years and months between birthdate and
// now. A month only counts once its day of month has been reached.
func CalculateAge(birthdate, now time.Time) Age {
	if birthdate.IsZero() || now.Before(birthdate) {
		return Age{}
	}

	years := now.Year() - birthdate.Year()
	months := int(now.Month()) - int(birthdate.Month())
	if months < 0 {
		years--
		months += 12
	}

	if now.Day() < birthdate.Day() {
		months--
		if months < 0 {
			years--
			months += 12
		}
	}

	return Age{Years: years, Months: months}
}

func (a Age) TotalMonths() int {
	return a.Years*12 + a.Months
}
