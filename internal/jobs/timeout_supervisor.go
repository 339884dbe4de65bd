package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iwandwip/intan-kiosk/internal/config"
)

// SessionSweeper is the part of the session lock the supervisor drives.
type SessionSweeper interface {
	Now() time.Time
	ExpireStale(ctx context.Context, now time.Time) (bool, error)
	ReleaseFailedVerification(ctx context.Context, now time.Time, retention time.Duration) (bool, error)
	ClearTimedOut(ctx context.Context, now time.Time, retention time.Duration) (bool, error)
}

// TimeoutSupervisor periodically expires sessions that outlived their
// timeout, releases failed RFID verifications and returns timed out records
// to idle.
type TimeoutSupervisor struct {
	lock     SessionSweeper
	interval time.Duration
	done     chan struct{}
}

func NewTimeoutSupervisor(lock SessionSweeper, interval time.Duration) *TimeoutSupervisor {
	return &TimeoutSupervisor{
		lock:     lock,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *TimeoutSupervisor) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("timeout supervisor started")
}

func (j *TimeoutSupervisor) Stop() {
	close(j.done)
	log.Info().Msg("timeout supervisor stopped")
}

func (j *TimeoutSupervisor) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *TimeoutSupervisor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := j.lock.Now()
	j.runStep(ctx, "expire stale session", func(ctx context.Context) (bool, error) {
		return j.lock.ExpireStale(ctx, now)
	})
	j.runStep(ctx, "release failed verification", func(ctx context.Context) (bool, error) {
		return j.lock.ReleaseFailedVerification(ctx, now, config.FailedVerificationRetention)
	})
	j.runStep(ctx, "clear timed out session", func(ctx context.Context) (bool, error) {
		return j.lock.ClearTimedOut(ctx, now, config.TimedOutRetention)
	})
}

func (j *TimeoutSupervisor) runStep(ctx context.Context, name string, fn func(context.Context) (bool, error)) {
	changed, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to %s", name)
	} else if changed {
		log.Info().Msgf("supervisor: %s", name)
	}
}
