package service

import (
	"context"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/iwandwip/intan-kiosk/internal/database"
	"github.com/iwandwip/intan-kiosk/internal/devicestate"
	"github.com/iwandwip/intan-kiosk/internal/model"
	"github.com/iwandwip/intan-kiosk/internal/repository"
)

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.UserProfile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UserProfile), args.Error(1)
}

func (m *mockUserRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.UserProfile, error) {
	args := m.Called(ctx, tokenHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UserProfile), args.Error(1)
}

func (m *mockUserRepo) FindByRfidNumber(ctx context.Context, number, excludingID string) (*model.UserProfile, error) {
	args := m.Called(ctx, number, excludingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UserProfile), args.Error(1)
}

func (m *mockUserRepo) FindByRfid(ctx context.Context, code, excludingID string) (*model.UserProfile, error) {
	args := m.Called(ctx, code, excludingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UserProfile), args.Error(1)
}

func (m *mockUserRepo) Update(ctx context.Context, id string, params model.UpdateProfileParams) (*model.UserProfile, error) {
	args := m.Called(ctx, id, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UserProfile), args.Error(1)
}

func (m *mockUserRepo) SetRFID(ctx context.Context, id string, cred model.RFIDCredential) (*model.UserProfile, error) {
	args := m.Called(ctx, id, cred)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UserProfile), args.Error(1)
}

func (m *mockUserRepo) ClearRFID(ctx context.Context, id string) (*model.UserProfile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UserProfile), args.Error(1)
}

func (m *mockUserRepo) UpdateLatestWeighing(ctx context.Context, id string, latest model.LatestWeighing) error {
	args := m.Called(ctx, id, latest)
	return args.Error(0)
}

func (m *mockUserRepo) WithTx(tx *sqlx.Tx) repository.UserRepository {
	return m
}

type mockMeasurementRepo struct {
	mock.Mock
}

func (m *mockMeasurementRepo) Append(ctx context.Context, userID string, params model.AppendMeasurementParams) (*model.MeasurementRecord, error) {
	args := m.Called(ctx, userID, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MeasurementRecord), args.Error(1)
}

func (m *mockMeasurementRepo) FindBySessionID(ctx context.Context, sessionID string) (*model.MeasurementRecord, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MeasurementRecord), args.Error(1)
}

func (m *mockMeasurementRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.MeasurementRecord, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.MeasurementRecord), args.Error(1)
}

func (m *mockMeasurementRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *mockMeasurementRepo) WithTx(tx *sqlx.Tx) repository.MeasurementRepository {
	return m
}

// fakeTx runs the function without a real transaction.
type fakeTx struct{}

func (fakeTx) WithTx(ctx context.Context, fn database.TxFunc) error {
	return fn(nil)
}

type fakeLimiter struct {
	allowed bool
}

func (f fakeLimiter) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Time) {
	return f.allowed, time.Now().Add(window)
}

// recordingStore remembers the step of every committed write.
type recordingStore struct {
	devicestate.Store

	mu    sync.Mutex
	steps []model.Step
}

func (s *recordingStore) Update(ctx context.Context, fn devicestate.UpdateFunc) (*model.DeviceSessionRecord, error) {
	changed := false
	rec, err := s.Store.Update(ctx, func(rec *model.DeviceSessionRecord) error {
		changed = false
		if err := fn(rec); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err == nil && changed {
		s.mu.Lock()
		s.steps = append(s.steps, rec.Step)
		s.mu.Unlock()
	}
	return rec, err
}

func (s *recordingStore) Steps() []model.Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Step(nil), s.steps...)
}

// testClock is a settable time source.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testTimeouts = SessionTimeouts{Pairing: 5 * time.Minute, Weighing: 10 * time.Minute}

func newTestLock() (*Lock, *devicestate.MemoryStore, *testClock) {
	store := devicestate.NewMemoryStore()
	clock := newTestClock()
	lock := NewLock(store, "test-kiosk", testTimeouts).WithClock(clock.Now)
	return lock, store, clock
}

func studentAni() *model.UserProfile {
	birthdate := time.Date(2021, 6, 15, 0, 0, 0, 0, time.UTC)
	return &model.UserProfile{
		ID:         "user-a",
		Name:       "Ani",
		Gender:     model.GenderFemale,
		Birthdate:  &birthdate,
		Rfid:       "AB12",
		RfidNumber: "001",
		Role:       model.UserRoleStudent,
	}
}

func studentBudi() *model.UserProfile {
	return &model.UserProfile{
		ID:        "user-b",
		Name:      "Budi",
		Gender:    model.GenderMale,
		AgeYears:  3,
		AgeMonths: 2,
		Role:      model.UserRoleStudent,
	}
}

func teacherSiti() *model.UserProfile {
	return &model.UserProfile{
		ID:   "teacher-1",
		Name: "Bu Siti",
		Role: model.UserRoleTeacher,
	}
}
