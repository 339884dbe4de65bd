package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iwandwip/intan-kiosk/internal/model"
)

func measurementParams(sessionID string, at time.Time) model.AppendMeasurementParams {
	return model.AppendMeasurementParams{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		Weight:          18.4,
		Height:          102,
		Imt:             17.7,
		NutritionStatus: model.NutritionNormal,
		EatingPattern:   model.EatingPatternEnough,
		ChildResponse:   model.ChildResponseActive,
		AgeYears:        4,
		AgeMonths:       8,
		Gender:          model.GenderFemale,
		MeasuredAt:      at,
	}
}

func TestMeasurementRepository_Append(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMeasurementRepository(db.DB)
	ctx := context.Background()

	a := insertUser(t, db, "Ani", "AB12", "001")
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("appends a measurement", func(t *testing.T) {
		m, err := repo.Append(ctx, a.ID, measurementParams("sess-1", now))
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, a.ID, m.UserID)
		assert.Equal(t, model.NutritionNormal, m.NutritionStatus)
	})

	t.Run("second append for the same session is ignored", func(t *testing.T) {
		m, err := repo.Append(ctx, a.ID, measurementParams("sess-1", now))
		require.NoError(t, err)
		assert.Nil(t, m)

		count, err := repo.CountByUser(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestMeasurementRepository_ListByUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMeasurementRepository(db.DB)
	ctx := context.Background()

	a := insertUser(t, db, "Ani", "AB12", "001")
	base := time.Now().UTC().Truncate(time.Second)

	for i, sessionID := range []string{"sess-1", "sess-2", "sess-3"} {
		_, err := repo.Append(ctx, a.ID, measurementParams(sessionID, base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}

	records, err := repo.ListByUser(ctx, a.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "sess-3", records[0].SessionID)
	assert.Equal(t, "sess-2", records[1].SessionID)

	found, err := repo.FindBySessionID(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, a.ID, found.UserID)
}
