package service

import (
	"context"
	"time"

	"github.com/iwandwip/intan-kiosk/internal/audit"
	apperrors "github.com/iwandwip/intan-kiosk/internal/errors"
	"github.com/iwandwip/intan-kiosk/internal/model"
	"github.com/iwandwip/intan-kiosk/internal/repository"
	"github.com/iwandwip/intan-kiosk/internal/util"
)

const (
	reauthAttemptLimit  = 5
	reauthAttemptWindow = 15 * time.Minute
)

// AdminService holds the operations that bypass session ownership.
type AdminService struct {
	lock              *Lock
	pairing           *PairingService
	weighing          *WeighingService
	users             repository.UserRepository
	limiter           Limiter
	adminPasswordHash string
}

func NewAdminService(
	lock *Lock,
	pairing *PairingService,
	weighing *WeighingService,
	users repository.UserRepository,
	limiter Limiter,
	adminPasswordHash string,
) *AdminService {
	return &AdminService{
		lock:              lock,
		pairing:           pairing,
		weighing:          weighing,
		users:             users,
		limiter:           limiter,
		adminPasswordHash: adminPasswordHash,
	}
}

// ResetDevice force releases the station after the admin reconfirms the
// admin password.
func (s *AdminService) ResetDevice(ctx context.Context, admin *model.UserProfile, password, reason string) error {
	if !admin.IsAdmin {
		return apperrors.Forbidden("Admin access required")
	}
	if s.adminPasswordHash == "" {
		return apperrors.Forbidden("Device reset is disabled")
	}

	if allowed, _ := s.limiter.CheckLimit(ctx, "reauth:"+admin.ID, reauthAttemptLimit, reauthAttemptWindow); !allowed {
		audit.Log(ctx, audit.Event{Type: audit.EventRateLimitExceed, UserID: admin.ID})
		return apperrors.RateLimitExceeded()
	}

	if !util.CheckPasswordHash(password, s.adminPasswordHash) {
		audit.Log(ctx, audit.Event{Type: audit.EventAdminReauthFailure, UserID: admin.ID})
		return apperrors.InvalidCredential()
	}

	if reason == "" {
		reason = "admin reset"
	}
	return s.lock.ForceRelease(ctx, admin.ID, reason)
}

func (s *AdminService) RemoveRFID(ctx context.Context, admin *model.UserProfile, userID string) (*model.UserProfile, error) {
	if !admin.IsAdmin {
		return nil, apperrors.Forbidden("Admin access required")
	}
	return s.pairing.RemoveRFID(ctx, admin.ID, userID)
}

func (s *AdminService) UserMeasurements(ctx context.Context, admin *model.UserProfile, userID string, limit, offset int) ([]model.MeasurementRecord, int, error) {
	if !canManage(admin) {
		return nil, 0, apperrors.Forbidden("Admin access required")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, 0, apperrors.Database(err)
	}
	if user == nil {
		return nil, 0, apperrors.NotFound("User")
	}
	return s.weighing.Measurements(ctx, userID, limit, offset)
}
