package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/iwandwip/intan-kiosk/internal/errors"
	"github.com/iwandwip/intan-kiosk/internal/model"
)

func TestDeviceService_PairingTap(t *testing.T) {
	lock, _, _ := newTestLock()
	device := NewDeviceService(lock)
	ctx := context.Background()

	_, err := device.ReportPairingTap(ctx, "CD34")
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidStep))

	_, err = lock.Acquire(ctx, AcquireParams{Type: model.SessionTypeRFIDPairing, OwnerID: "user-b"})
	require.NoError(t, err)

	_, err = device.ReportPairingTap(ctx, "  ")
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeMissingRequired))

	rec, err := device.ReportPairingTap(ctx, "CD34")
	require.NoError(t, err)
	assert.Equal(t, "CD34", rec.DetectedRfid)
	assert.Equal(t, "user-b", rec.OwnerID)

	// the first card read is kept
	rec, err = device.ReportPairingTap(ctx, "EF56")
	require.NoError(t, err)
	assert.Equal(t, "CD34", rec.DetectedRfid)
}

func TestDeviceService_PairingTapOnManualSession(t *testing.T) {
	lock, _, _ := newTestLock()
	device := NewDeviceService(lock)
	ctx := context.Background()

	_, err := lock.Acquire(ctx, AcquireParams{
		Type:       model.SessionTypeRFIDPairing,
		OwnerID:    "user-b",
		Parameters: model.PairingParameters{TargetUserID: "user-b", Manual: true}.Map(),
	})
	require.NoError(t, err)

	_, err = device.ReportPairingTap(ctx, "CD34")
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidStep))

	current, err := lock.Current(ctx)
	require.NoError(t, err)
	assert.Empty(t, current.DetectedRfid)
}

func TestDeviceService_WeighingTapWrongSession(t *testing.T) {
	lock, _, _ := newTestLock()
	device := NewDeviceService(lock)
	ctx := context.Background()

	_, err := lock.Acquire(ctx, AcquireParams{Type: model.SessionTypeRFIDPairing, OwnerID: "user-b"})
	require.NoError(t, err)

	_, err = device.ReportWeighingTap(ctx, "AB12")
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidStep))
}

func TestDeviceService_WeighingTapWithoutExpectedCard(t *testing.T) {
	lock, _, _ := newTestLock()
	device := NewDeviceService(lock)
	ctx := context.Background()

	_, err := lock.Acquire(ctx, AcquireParams{Type: model.SessionTypeWeighing, OwnerID: "user-a"})
	require.NoError(t, err)

	rec, err := device.ReportWeighingTap(ctx, "AB12")
	require.NoError(t, err)
	assert.Equal(t, model.StepRFIDFailed, rec.Step)
	assert.True(t, rec.VerificationFailed)
}

func TestDeviceService_StreamReadings(t *testing.T) {
	lock, store, _ := newTestLock()
	device := NewDeviceService(lock)
	ctx := context.Background()

	acquireWeighing(t, lock, "user-a", "Ani")

	_, err := device.StreamReadings(ctx, model.LiveReadings{Weight: 18})
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidStep))

	_, err = device.StreamReadings(ctx, model.LiveReadings{Weight: -1})
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidInput))

	_, err = device.ReportWeighingTap(ctx, "AB12")
	require.NoError(t, err)

	rec, err := device.StreamReadings(ctx, model.LiveReadings{Weight: 18.1, Height: 99})
	require.NoError(t, err)
	assert.Equal(t, 18.1, rec.LiveReadings.Weight)
	assert.Zero(t, rec.LiveReadings.Height)

	// an unchanged reading does not write
	again, err := device.StreamReadings(ctx, model.LiveReadings{Weight: 18.1})
	require.NoError(t, err)
	assert.Equal(t, rec.Version, again.Version)

	_, err = store.Update(ctx, func(r *model.DeviceSessionRecord) error {
		r.Step = model.StepHeight
		return nil
	})
	require.NoError(t, err)

	rec, err = device.StreamReadings(ctx, model.LiveReadings{Weight: 30, Height: 101.5})
	require.NoError(t, err)
	assert.Equal(t, 18.1, rec.LiveReadings.Weight)
	assert.Equal(t, 101.5, rec.LiveReadings.Height)
}

func TestDeviceService_ReportResult(t *testing.T) {
	lock, store, _ := newTestLock()
	device := NewDeviceService(lock)
	ctx := context.Background()

	_, err := device.ReportResult(ctx, model.MeasurementResult{Weight: 18.4, Height: 102, Index: 17.7, Status: "sehat"})
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidInput))

	_, err = device.ReportResult(ctx, model.MeasurementResult{Height: 102, Index: 17.7, Status: model.NutritionNormal})
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidInput))

	acquireWeighing(t, lock, "user-a", "Ani")
	_, err = device.ReportResult(ctx, aniResult)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidStep))

	_, err = store.Update(ctx, func(r *model.DeviceSessionRecord) error {
		r.Step = model.StepCalculating
		return nil
	})
	require.NoError(t, err)

	rec, err := device.ReportResult(ctx, aniResult)
	require.NoError(t, err)
	require.NotNil(t, rec.Result)
	assert.Equal(t, aniResult, *rec.Result)

	again, err := device.ReportResult(ctx, model.MeasurementResult{Weight: 20, Height: 100, Index: 20, Status: model.NutritionObese})
	require.NoError(t, err)
	assert.Equal(t, aniResult, *again.Result)
}

func TestDeviceService_ReportResultAfterTimeout(t *testing.T) {
	lock, store, clock := newTestLock()
	device := NewDeviceService(lock)
	ctx := context.Background()

	acquireWeighing(t, lock, "user-a", "Ani")
	_, err := store.Update(ctx, func(r *model.DeviceSessionRecord) error {
		r.Step = model.StepCalculating
		return nil
	})
	require.NoError(t, err)

	clock.Advance(testTimeouts.Weighing)
	_, err = lock.ExpireStale(ctx, clock.Now())
	require.NoError(t, err)

	_, err = device.ReportResult(ctx, aniResult)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeSessionTimeout))
}
