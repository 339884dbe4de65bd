package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iwandwip/intan-kiosk/internal/model"
)

// UserRepository is the UserProfile store. Identity and lifecycle belong to
// the CRUD layer; the session core only reads profiles and writes the RFID
// credential and the latest measurement cache.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.UserProfile, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.UserProfile, error)
	// FindByRfidNumber returns the user other than excludingID holding number.
	FindByRfidNumber(ctx context.Context, number, excludingID string) (*model.UserProfile, error)
	// FindByRfid returns the user other than excludingID holding code.
	FindByRfid(ctx context.Context, code, excludingID string) (*model.UserProfile, error)
	Update(ctx context.Context, id string, params model.UpdateProfileParams) (*model.UserProfile, error)
	SetRFID(ctx context.Context, id string, cred model.RFIDCredential) (*model.UserProfile, error)
	ClearRFID(ctx context.Context, id string) (*model.UserProfile, error)
	UpdateLatestWeighing(ctx context.Context, id string, latest model.LatestWeighing) error
	WithTx(tx *sqlx.Tx) UserRepository
}

type userRepo struct {
	db sqlxDB
}

// sqlxDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type sqlxDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) WithTx(tx *sqlx.Tx) UserRepository {
	return &userRepo{db: tx}
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*model.UserProfile, error) {
	var user model.UserProfile
	err := r.db.GetContext(ctx, &user, `
		SELECT * FROM users WHERE id = $1
	`, id)
	return HandleNotFound(&user, err)
}

func (r *userRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.UserProfile, error) {
	var user model.UserProfile
	err := r.db.GetContext(ctx, &user, `
		SELECT * FROM users WHERE api_token_hash = $1
	`, tokenHash)
	return HandleNotFound(&user, err)
}

func (r *userRepo) FindByRfidNumber(ctx context.Context, number, excludingID string) (*model.UserProfile, error) {
	var user model.UserProfile
	err := r.db.GetContext(ctx, &user, `
		SELECT * FROM users
		WHERE rfid_number = $1 AND rfid_number <> '' AND id <> $2
		LIMIT 1
	`, number, excludingID)
	return HandleNotFound(&user, err)
}

func (r *userRepo) FindByRfid(ctx context.Context, code, excludingID string) (*model.UserProfile, error) {
	var user model.UserProfile
	err := r.db.GetContext(ctx, &user, `
		SELECT * FROM users
		WHERE rfid = $1 AND rfid <> '' AND id <> $2
		LIMIT 1
	`, code, excludingID)
	return HandleNotFound(&user, err)
}

func (r *userRepo) Update(ctx context.Context, id string, params model.UpdateProfileParams) (*model.UserProfile, error) {
	var user model.UserProfile
	err := r.db.GetContext(ctx, &user, `
		UPDATE users SET
			name = COALESCE($2, name),
			parent_name = COALESCE($3, parent_name),
			birthdate = COALESCE($4, birthdate),
			gender = COALESCE($5, gender),
			age_years = COALESCE($6, age_years),
			age_months = COALESCE($7, age_months),
			rfid = COALESCE($8, rfid),
			rfid_number = COALESCE($9, rfid_number),
			updated_at = $10
		WHERE id = $1
		RETURNING *
	`, id, params.Name, params.ParentName, params.Birthdate, params.Gender,
		params.AgeYears, params.AgeMonths, params.Rfid, params.RfidNumber, time.Now())
	return HandleNotFound(&user, err)
}

func (r *userRepo) SetRFID(ctx context.Context, id string, cred model.RFIDCredential) (*model.UserProfile, error) {
	user, err := r.Update(ctx, id, model.UpdateProfileParams{
		Rfid:       &cred.Code,
		RfidNumber: &cred.Number,
	})
	if err != nil {
		return nil, translateUniqueViolation(err)
	}
	return user, nil
}

func (r *userRepo) ClearRFID(ctx context.Context, id string) (*model.UserProfile, error) {
	var user model.UserProfile
	err := r.db.GetContext(ctx, &user, `
		UPDATE users SET
			rfid = '',
			rfid_number = '',
			updated_at = $2
		WHERE id = $1
		RETURNING *
	`, id, time.Now())
	return HandleNotFound(&user, err)
}

func (r *userRepo) UpdateLatestWeighing(ctx context.Context, id string, latest model.LatestWeighing) error {
	data, err := json.Marshal(latest)
	if err != nil {
		return fmt.Errorf("marshal latest weighing: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE users SET
			latest_weighing = $2,
			updated_at = $3
		WHERE id = $1
	`, id, string(data), time.Now())
	return err
}
