package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iwandwip/intan-kiosk/internal/database"
	"github.com/iwandwip/intan-kiosk/internal/devicestate"
	"github.com/iwandwip/intan-kiosk/internal/middleware"
	"github.com/iwandwip/intan-kiosk/internal/model"
	"github.com/iwandwip/intan-kiosk/internal/repository"
	"github.com/iwandwip/intan-kiosk/internal/service"
)

// fakeUsers is an in-memory UserRepository.
type fakeUsers struct {
	mu    sync.Mutex
	users map[string]*model.UserProfile
}

func newFakeUsers(users ...*model.UserProfile) *fakeUsers {
	f := &fakeUsers{users: make(map[string]*model.UserProfile)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) get(id string) (*model.UserProfile, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) FindByID(ctx context.Context, id string) (*model.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.get(id)
}

func (f *fakeUsers) FindByTokenHash(ctx context.Context, tokenHash string) (*model.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, u := range f.users {
		if u.APITokenHash != nil && *u.APITokenHash == tokenHash {
			return f.get(id)
		}
	}
	return nil, nil
}

func (f *fakeUsers) FindByRfidNumber(ctx context.Context, number, excludingID string) (*model.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, u := range f.users {
		if id != excludingID && u.RfidNumber == number {
			return f.get(id)
		}
	}
	return nil, nil
}

func (f *fakeUsers) FindByRfid(ctx context.Context, code, excludingID string) (*model.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, u := range f.users {
		if id != excludingID && u.Rfid != "" && strings.EqualFold(u.Rfid, code) {
			return f.get(id)
		}
	}
	return nil, nil
}

func (f *fakeUsers) Update(ctx context.Context, id string, params model.UpdateProfileParams) (*model.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.get(id)
}

func (f *fakeUsers) SetRFID(ctx context.Context, id string, cred model.RFIDCredential) (*model.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	u.Rfid = cred.Code
	u.RfidNumber = cred.Number
	return f.get(id)
}

func (f *fakeUsers) ClearRFID(ctx context.Context, id string) (*model.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	u.Rfid = ""
	u.RfidNumber = ""
	return f.get(id)
}

func (f *fakeUsers) UpdateLatestWeighing(ctx context.Context, id string, latest model.LatestWeighing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil
	}
	raw, err := json.Marshal(latest)
	if err != nil {
		return err
	}
	msg := json.RawMessage(raw)
	u.LatestWeighing = &msg
	return nil
}

func (f *fakeUsers) WithTx(tx *sqlx.Tx) repository.UserRepository {
	return f
}

// fakeMeasurements is an in-memory MeasurementRepository.
type fakeMeasurements struct {
	mu      sync.Mutex
	records []model.MeasurementRecord
}

func (f *fakeMeasurements) Append(ctx context.Context, userID string, params model.AppendMeasurementParams) (*model.MeasurementRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.SessionID == params.SessionID {
			return nil, nil
		}
	}
	rec := model.MeasurementRecord{
		ID:              params.ID,
		UserID:          userID,
		SessionID:       params.SessionID,
		Weight:          params.Weight,
		Height:          params.Height,
		Imt:             params.Imt,
		NutritionStatus: params.NutritionStatus,
		EatingPattern:   params.EatingPattern,
		ChildResponse:   params.ChildResponse,
		AgeYears:        params.AgeYears,
		AgeMonths:       params.AgeMonths,
		Gender:          params.Gender,
		MeasuredAt:      params.MeasuredAt,
	}
	f.records = append(f.records, rec)
	return &rec, nil
}

func (f *fakeMeasurements) FindBySessionID(ctx context.Context, sessionID string) (*model.MeasurementRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.SessionID == sessionID {
			c := r
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeMeasurements) ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.MeasurementRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.MeasurementRecord
	for _, r := range f.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].MeasuredAt.After(out[j].MeasuredAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeMeasurements) CountByUser(ctx context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.records {
		if r.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (f *fakeMeasurements) WithTx(tx *sqlx.Tx) repository.MeasurementRepository {
	return f
}

type fakeTx struct{}

func (fakeTx) WithTx(ctx context.Context, fn database.TxFunc) error {
	return fn(nil)
}

type allowAll struct{}

func (allowAll) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Time) {
	return true, time.Now().Add(window)
}

const adminPassword = "rahasia"

func studentAni() *model.UserProfile {
	birth := time.Date(2021, 6, 15, 0, 0, 0, 0, time.UTC)
	return &model.UserProfile{
		ID:         "user-a",
		Name:       "Ani",
		Birthdate:  &birth,
		Gender:     model.GenderFemale,
		Rfid:       "AB12",
		RfidNumber: "001",
		Role:       model.UserRoleStudent,
	}
}

func studentBudi() *model.UserProfile {
	return &model.UserProfile{
		ID:       "user-b",
		Name:     "Budi",
		Gender:   model.GenderMale,
		AgeYears: 3,
		Role:     model.UserRoleStudent,
	}
}

func studentCitra() *model.UserProfile {
	return &model.UserProfile{
		ID:         "user-c",
		Name:       "Citra",
		Gender:     model.GenderFemale,
		AgeYears:   4,
		Rfid:       "CD34",
		RfidNumber: "002",
		Role:       model.UserRoleStudent,
	}
}

func teacherSiti() *model.UserProfile {
	return &model.UserProfile{
		ID:      "teacher-1",
		Name:    "Bu Siti",
		Role:    model.UserRoleTeacher,
		IsAdmin: true,
	}
}

// testApp wires real services over an in-memory device store.
type testApp struct {
	store        *devicestate.MemoryStore
	lock         *service.Lock
	users        *fakeUsers
	measurements *fakeMeasurements
	pairing      *service.PairingService
	weighing     *service.WeighingService
	device       *service.DeviceService
	admin        *service.AdminService
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	require.NoError(t, err)

	store := devicestate.NewMemoryStore()
	lock := service.NewLock(store, "station-1", service.SessionTimeouts{
		Pairing:  5 * time.Minute,
		Weighing: 10 * time.Minute,
	})
	_, err = lock.EnsureInitialized(context.Background())
	require.NoError(t, err)

	users := newFakeUsers(studentAni(), studentBudi(), studentCitra(), teacherSiti())
	measurements := &fakeMeasurements{}
	pairing := service.NewPairingService(lock, fakeTx{}, users)
	weighing := service.NewWeighingService(lock, users, measurements)

	return &testApp{
		store:        store,
		lock:         lock,
		users:        users,
		measurements: measurements,
		pairing:      pairing,
		weighing:     weighing,
		device:       service.NewDeviceService(lock),
		admin:        service.NewAdminService(lock, pairing, weighing, users, allowAll{}, string(hash)),
	}
}

func (a *testApp) user(t *testing.T, id string) *model.UserProfile {
	t.Helper()
	u, err := a.users.FindByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

// do sends a request through h as user. A nil user sends it unauthenticated.
func do(h http.Handler, method, path string, user *model.UserProfile, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != nil {
		req = req.WithContext(middleware.WithUser(req.Context(), user))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func doRaw(h http.Handler, method, path string, user *model.UserProfile, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		req = req.WithContext(middleware.WithUser(req.Context(), user))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
