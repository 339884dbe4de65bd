package model

import (
	"encoding/json"
	"time"
)

type UserProfile struct {
	ID             string           `db:"id" json:"id"`
	Email          string           `db:"email" json:"email"`
	Name           string           `db:"name" json:"name"`
	ParentName     string           `db:"parent_name" json:"parentName"`
	Birthdate      *time.Time       `db:"birthdate" json:"birthdate,omitempty"`
	Gender         string           `db:"gender" json:"gender"`
	AgeYears       int              `db:"age_years" json:"ageYears"`
	AgeMonths      int              `db:"age_months" json:"ageMonths"`
	Rfid           string           `db:"rfid" json:"rfid"`
	RfidNumber     string           `db:"rfid_number" json:"rfidNumber"`
	LatestWeighing *json.RawMessage `db:"latest_weighing" json:"latestWeighing,omitempty"`
	Role           UserRole         `db:"role" json:"role"`
	IsAdmin        bool             `db:"is_admin" json:"isAdmin"`
	APITokenHash   *string          `db:"api_token_hash" json:"-"`
	CreatedAt      time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updatedAt"`
}

func (u *UserProfile) HasRFID() bool {
	return u.Rfid != ""
}

// UpdateProfileParams carries the fields to change; nil fields are left as is.
type UpdateProfileParams struct {
	Name       *string
	ParentName *string
	Birthdate  *time.Time
	Gender     *string
	AgeYears   *int
	AgeMonths  *int
	Rfid       *string
	RfidNumber *string
}

// LatestWeighing is the cached copy of the most recent measurement kept on the
// profile.
type LatestWeighing struct {
	Weight          float64         `json:"weight"`
	Height          float64         `json:"height"`
	Imt             float64         `json:"imt"`
	NutritionStatus NutritionStatus `json:"nutritionStatus"`
	EatingPattern   string          `json:"eatingPattern"`
	ChildResponse   string          `json:"childResponse"`
	AgeYears        int             `json:"ageYears"`
	AgeMonths       int             `json:"ageMonths"`
	Gender          string          `json:"gender"`
	DateTime        time.Time       `json:"dateTime"`
}
