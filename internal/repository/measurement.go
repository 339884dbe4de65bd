package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/iwandwip/intan-kiosk/internal/model"
)

// MeasurementRepository is the append-only measurement log.
type MeasurementRepository interface {
	// Append stores a measurement. It returns nil, nil when a measurement
	// for the same session already exists.
	Append(ctx context.Context, userID string, params model.AppendMeasurementParams) (*model.MeasurementRecord, error)
	FindBySessionID(ctx context.Context, sessionID string) (*model.MeasurementRecord, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.MeasurementRecord, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	WithTx(tx *sqlx.Tx) MeasurementRepository
}

type measurementRepo struct {
	db sqlxDB
}

func NewMeasurementRepository(db *sqlx.DB) MeasurementRepository {
	return &measurementRepo{db: db}
}

func (r *measurementRepo) WithTx(tx *sqlx.Tx) MeasurementRepository {
	return &measurementRepo{db: tx}
}

func (r *measurementRepo) Append(ctx context.Context, userID string, params model.AppendMeasurementParams) (*model.MeasurementRecord, error) {
	var m model.MeasurementRecord
	err := r.db.GetContext(ctx, &m, `
		INSERT INTO measurements (
			id, user_id, session_id, weight, height, imt, nutrition_status,
			eating_pattern, child_response, age_years, age_months, gender, measured_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (session_id) DO NOTHING
		RETURNING *
	`, params.ID, userID, params.SessionID, params.Weight, params.Height, params.Imt,
		params.NutritionStatus, params.EatingPattern, params.ChildResponse,
		params.AgeYears, params.AgeMonths, params.Gender, params.MeasuredAt)
	return HandleNotFound(&m, err)
}

func (r *measurementRepo) FindBySessionID(ctx context.Context, sessionID string) (*model.MeasurementRecord, error) {
	var m model.MeasurementRecord
	err := r.db.GetContext(ctx, &m, `
		SELECT * FROM measurements WHERE session_id = $1
	`, sessionID)
	return HandleNotFound(&m, err)
}

func (r *measurementRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.MeasurementRecord, error) {
	var records []model.MeasurementRecord
	err := r.db.SelectContext(ctx, &records, `
		SELECT * FROM measurements
		WHERE user_id = $1
		ORDER BY measured_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return NonNil(records), nil
}

func (r *measurementRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM measurements WHERE user_id = $1
	`, userID)
	return count, err
}
