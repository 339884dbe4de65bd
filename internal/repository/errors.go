package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	ErrRfidTaken       = errors.New("rfid already assigned to another user")
	ErrRfidNumberTaken = errors.New("rfid number already assigned to another user")
)

const uniqueViolation = "23505"

// translateUniqueViolation maps violations of the partial unique indexes on
// users.rfid and users.rfid_number to sentinel errors.
func translateUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return err
	}
	switch pqErr.Constraint {
	case "users_rfid_unique":
		return ErrRfidTaken
	case "users_rfid_number_unique":
		return ErrRfidNumberTaken
	}
	return err
}
