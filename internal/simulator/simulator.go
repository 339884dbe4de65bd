// Package simulator plays the station firmware against the shared device
// record: it taps cards, streams scale readings and reports the result.
package simulator

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/fatih/stopwatch"
	"github.com/rs/zerolog/log"

	"github.com/iwandwip/intan-kiosk/internal/model"
	"github.com/iwandwip/intan-kiosk/internal/nutrition"
	"github.com/iwandwip/intan-kiosk/internal/service"
)

type Config struct {
	// MatchProbability is the chance a weighing tap presents the expected
	// card.
	MatchProbability float64
	MinDelay         time.Duration
	MaxDelay         time.Duration
	ReadingInterval  time.Duration
	// SettleTime is how long the scale takes to settle on a reading.
	SettleTime time.Duration
}

// Simulator implements service.Observer. Each record starts at most one
// action; a record that moves the session on cancels the running one.
type Simulator struct {
	device *service.DeviceService
	cfg    Config

	ctx    context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	key    string
	cancel context.CancelFunc
	done   chan struct{}

	sessionID string
	timer     *stopwatch.Stopwatch
}

func New(device *service.DeviceService, cfg Config) *Simulator {
	if cfg.ReadingInterval <= 0 {
		cfg.ReadingInterval = 500 * time.Millisecond
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Simulator{
		device: device,
		cfg:    cfg,
		ctx:    ctx,
		stop:   stop,
	}
}

func (s *Simulator) Observe(ctx context.Context, rec *model.DeviceSessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trackSession(rec)

	key := actionKey(rec)
	if key == s.key {
		return nil
	}
	s.key = key
	s.cancelAction()

	action := s.actionFor(rec)
	if action == nil {
		return nil
	}

	actionCtx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	snapshot := rec.Clone()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		if err := action(actionCtx, snapshot); err != nil && actionCtx.Err() == nil {
			log.Warn().
				Err(err).
				Str("sessionId", snapshot.SessionID).
				Str("step", string(snapshot.Step)).
				Msg("simulated device action failed")
		}
	}()
	return nil
}

// cancelAction stops the running action and waits for it, so no write from
// an earlier step lands after the record has moved on.
func (s *Simulator) cancelAction() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
}

// Stop cancels the running action and waits for it to return.
func (s *Simulator) Stop() {
	s.stop()
	s.wg.Wait()
}

type action func(ctx context.Context, rec *model.DeviceSessionRecord) error

// actionKey identifies the part of the record the simulator reacts to.
// Readings written by the simulator itself do not change it.
func actionKey(rec *model.DeviceSessionRecord) string {
	return fmt.Sprintf("%s/%s/%t/%t/%t",
		rec.SessionID, rec.Step, rec.TimedOut, rec.DetectedRfid != "", rec.Result != nil)
}

func (s *Simulator) actionFor(rec *model.DeviceSessionRecord) action {
	if !rec.IsActive() {
		return nil
	}

	switch rec.SessionType {
	case model.SessionTypeRFIDPairing:
		if rec.Step == model.StepWaitingForTap && rec.DetectedRfid == "" && !model.ParsePairingParameters(rec.Parameters).Manual {
			return s.tapForPairing
		}
	case model.SessionTypeWeighing:
		switch rec.Step {
		case model.StepWaitingForRFIDTap:
			return s.tapForWeighing
		case model.StepWeighing:
			return s.streamWeight
		case model.StepHeight:
			return s.streamHeight
		case model.StepCalculating:
			if rec.Result == nil {
				return s.reportResult
			}
		}
	}
	return nil
}

func (s *Simulator) tapForPairing(ctx context.Context, rec *model.DeviceSessionRecord) error {
	if err := s.pause(ctx); err != nil {
		return err
	}
	card := randomCard()
	log.Info().Str("sessionId", rec.SessionID).Msg("simulating pairing tap")
	_, err := s.device.ReportPairingTap(ctx, card)
	return err
}

func (s *Simulator) tapForWeighing(ctx context.Context, rec *model.DeviceSessionRecord) error {
	if err := s.pause(ctx); err != nil {
		return err
	}

	card := rec.Parameters[model.ParamExpectedRfid]
	match := rand.Float64() < s.cfg.MatchProbability
	if !match || card == "" {
		card = randomCard()
	}
	log.Info().Str("sessionId", rec.SessionID).Bool("match", match).Msg("simulating weighing tap")

	_, err := s.device.ReportWeighingTap(ctx, card)
	return err
}

func (s *Simulator) streamWeight(ctx context.Context, rec *model.DeviceSessionRecord) error {
	target := randomBetween(10, 25)
	return s.stream(ctx, target, func(v float64) model.LiveReadings {
		return model.LiveReadings{Weight: v}
	})
}

func (s *Simulator) streamHeight(ctx context.Context, rec *model.DeviceSessionRecord) error {
	target := randomBetween(85, 120)
	return s.stream(ctx, target, func(v float64) model.LiveReadings {
		return model.LiveReadings{Weight: rec.LiveReadings.Weight, Height: v}
	})
}

// stream sends readings that settle on target within SettleTime, then keeps
// reporting target until ctx ends.
func (s *Simulator) stream(ctx context.Context, target float64, reading func(float64) model.LiveReadings) error {
	ticker := time.NewTicker(s.cfg.ReadingInterval)
	defer ticker.Stop()

	sw := stopwatch.Start(0)
	defer sw.Stop()

	for {
		value := settle(target, sw.ElapsedTime(), s.cfg.SettleTime)
		if _, err := s.device.StreamReadings(ctx, reading(round1(value))); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// settle eases from zero to target over settleTime.
func settle(target float64, elapsed, settleTime time.Duration) float64 {
	if settleTime <= 0 || elapsed >= settleTime {
		return target
	}
	remaining := 1 - float64(elapsed)/float64(settleTime)
	return target * (1 - remaining*remaining*remaining)
}

func (s *Simulator) reportResult(ctx context.Context, rec *model.DeviceSessionRecord) error {
	if err := s.pause(ctx); err != nil {
		return err
	}

	result := nutrition.Evaluate(rec.LiveReadings.Weight, rec.LiveReadings.Height)
	log.Info().
		Str("sessionId", rec.SessionID).
		Float64("index", result.Index).
		Str("status", string(result.Status)).
		Msg("simulating result")

	_, err := s.device.ReportResult(ctx, result)
	return err
}

// trackSession times every session the simulator sees.
func (s *Simulator) trackSession(rec *model.DeviceSessionRecord) {
	if rec.SessionID == s.sessionID {
		return
	}
	if s.sessionID != "" && s.timer != nil {
		s.timer.Stop()
		log.Info().
			Str("sessionId", s.sessionID).
			Dur("elapsed", s.timer.ElapsedTime()).
			Msg("session ended")
	}

	s.sessionID = rec.SessionID
	if s.sessionID == "" {
		return
	}
	if s.timer == nil {
		s.timer = stopwatch.Start(0)
	} else {
		s.timer.Reset()
		s.timer.Start(0)
	}
	log.Info().
		Str("sessionId", s.sessionID).
		Str("type", string(rec.SessionType)).
		Str("owner", rec.OwnerName).
		Msg("session started")
}

func (s *Simulator) pause(ctx context.Context) error {
	delay := s.cfg.MinDelay
	if spread := s.cfg.MaxDelay - s.cfg.MinDelay; spread > 0 {
		delay += rand.N(spread)
	}
	if delay <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func randomCard() string {
	return fmt.Sprintf("%08X", rand.Uint32())
}

func randomBetween(lo, hi float64) float64 {
	return round1(lo + rand.Float64()*(hi-lo))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
