package simulator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iwandwip/intan-kiosk/internal/devicestate"
	"github.com/iwandwip/intan-kiosk/internal/model"
	"github.com/iwandwip/intan-kiosk/internal/service"
)

type harness struct {
	store  *devicestate.MemoryStore
	lock   *service.Lock
	sim    *Simulator
	driver *service.FlowDriver
}

func newHarness(t *testing.T, matchProbability float64) *harness {
	t.Helper()

	store := devicestate.NewMemoryStore()
	lock := service.NewLock(store, "station-1", service.SessionTimeouts{
		Pairing:  5 * time.Minute,
		Weighing: 10 * time.Minute,
	})
	sim := New(service.NewDeviceService(lock), Config{
		MatchProbability: matchProbability,
		ReadingInterval:  5 * time.Millisecond,
		SettleTime:       50 * time.Millisecond,
	})
	driver := service.NewFlowDriver(store, sim)
	driver.Start()

	t.Cleanup(func() {
		driver.Stop()
		sim.Stop()
	})
	return &harness{store: store, lock: lock, sim: sim, driver: driver}
}

func (h *harness) current(t *testing.T) *model.DeviceSessionRecord {
	t.Helper()
	rec, err := h.lock.Current(context.Background())
	require.NoError(t, err)
	return rec
}

func (h *harness) eventually(t *testing.T, cond func(rec *model.DeviceSessionRecord) bool) {
	t.Helper()
	assert.Eventually(t, func() bool {
		rec, err := h.lock.Current(context.Background())
		return err == nil && cond(rec)
	}, 2*time.Second, 10*time.Millisecond)
}

func startWeighing(t *testing.T, lock *service.Lock) *model.DeviceSessionRecord {
	t.Helper()
	rec, err := lock.Acquire(context.Background(), service.AcquireParams{
		Type:      model.SessionTypeWeighing,
		OwnerID:   "user-a",
		OwnerName: "Ani",
		Parameters: model.WeighingParameters{
			EatingPattern: model.EatingPatternEnough,
			ChildResponse: model.ChildResponseActive,
			AgeYears:      4,
			AgeMonths:     8,
			Gender:        model.GenderFemale,
			ExpectedRfid:  "AB12",
		}.Map(),
	})
	require.NoError(t, err)
	return rec
}

func TestSimulator_WeighingFlow(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	startWeighing(t, h.lock)

	h.eventually(t, func(rec *model.DeviceSessionRecord) bool {
		return rec.Step == model.StepWeighing && rec.LiveReadings.Weight >= 10
	})
	assert.Equal(t, "AB12", h.current(t).TappedRfid)

	_, err := h.lock.Advance(ctx, "user-a", model.StepWeighing, model.StepHeight)
	require.NoError(t, err)

	h.eventually(t, func(rec *model.DeviceSessionRecord) bool {
		return rec.LiveReadings.Height >= 85
	})

	_, err = h.lock.Advance(ctx, "user-a", model.StepHeight, model.StepCalculating)
	require.NoError(t, err)

	h.eventually(t, func(rec *model.DeviceSessionRecord) bool {
		return rec.Result != nil
	})

	rec := h.current(t)
	assert.Equal(t, model.StepCalculating, rec.Step)
	assert.True(t, rec.Result.Status.Valid())
	assert.Equal(t, rec.LiveReadings.Weight, rec.Result.Weight)
	assert.Equal(t, rec.LiveReadings.Height, rec.Result.Height)
	assert.Greater(t, rec.Result.Index, 0.0)
}

func TestSimulator_MismatchedCard(t *testing.T) {
	h := newHarness(t, 0)

	startWeighing(t, h.lock)

	h.eventually(t, func(rec *model.DeviceSessionRecord) bool {
		return rec.Step == model.StepRFIDFailed
	})
	rec := h.current(t)
	assert.True(t, rec.VerificationFailed)
	assert.NotEqual(t, "AB12", rec.TappedRfid)
}

func TestSimulator_PairingTap(t *testing.T) {
	h := newHarness(t, 1)

	_, err := h.lock.Acquire(context.Background(), service.AcquireParams{
		Type:      model.SessionTypeRFIDPairing,
		OwnerID:   "teacher-1",
		OwnerName: "Bu Siti",
		Parameters: model.PairingParameters{
			TargetUserID:   "user-b",
			TargetUserName: "Budi",
		}.Map(),
	})
	require.NoError(t, err)

	h.eventually(t, func(rec *model.DeviceSessionRecord) bool {
		return rec.DetectedRfid != ""
	})
	assert.Len(t, h.current(t).DetectedRfid, 8)
}

func TestSimulator_IdleRecordStartsNothing(t *testing.T) {
	sim := New(nil, Config{})
	defer sim.Stop()

	require.NoError(t, sim.Observe(context.Background(), model.NewIdleRecord()))
	assert.Nil(t, sim.cancel)
}

func TestActionKey_IgnoresReadings(t *testing.T) {
	rec := model.NewIdleRecord()
	rec.InUse = true
	rec.SessionID = "s-1"
	rec.SessionType = model.SessionTypeWeighing
	rec.Step = model.StepWeighing

	before := actionKey(rec)
	rec.LiveReadings.Weight = 12.3
	assert.Equal(t, before, actionKey(rec))

	rec.Step = model.StepHeight
	assert.NotEqual(t, before, actionKey(rec))
}

func TestSettle(t *testing.T) {
	settleTime := 2 * time.Second

	assert.Equal(t, 0.0, settle(18.4, 0, settleTime))
	assert.Equal(t, 18.4, settle(18.4, settleTime, settleTime))
	assert.Equal(t, 18.4, settle(18.4, 3*time.Second, settleTime))
	assert.Equal(t, 18.4, settle(18.4, 0, 0))

	half := settle(18.4, time.Second, settleTime)
	assert.InDelta(t, 16.1, half, 0.01)

	// readings never overshoot and only grow
	prev := 0.0
	for elapsed := time.Duration(0); elapsed <= settleTime; elapsed += 100 * time.Millisecond {
		v := settle(18.4, elapsed, settleTime)
		assert.GreaterOrEqual(t, v, prev)
		assert.LessOrEqual(t, v, 18.4)
		prev = v
	}
}
