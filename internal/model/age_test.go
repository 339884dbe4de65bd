package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCalculateAge(t *testing.T) {
	tests := []struct {
		name      string
		birthdate time.Time
		now       time.Time
		want      Age
	}{
		{"exact birthday", date(2020, 5, 10), date(2025, 5, 10), Age{Years: 5}},
		{"day before birthday", date(2020, 5, 10), date(2025, 5, 9), Age{Years: 4, Months: 11}},
		{"months after birthday", date(2020, 5, 10), date(2025, 8, 12), Age{Years: 5, Months: 3}},
		{"month not yet complete", date(2020, 5, 20), date(2025, 8, 12), Age{Years: 5, Months: 2}},
		{"earlier month of year", date(2020, 11, 1), date(2025, 2, 1), Age{Years: 4, Months: 3}},
		{"zero birthdate", time.Time{}, date(2025, 1, 1), Age{}},
		{"birthdate in future", date(2030, 1, 1), date(2025, 1, 1), Age{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CalculateAge(tc.birthdate, tc.now))
		})
	}
}

func TestAge_TotalMonths(t *testing.T) {
	assert.Equal(t, 63, Age{Years: 5, Months: 3}.TotalMonths())
}
