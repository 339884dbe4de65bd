package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iwandwip/intan-kiosk/internal/devicestate"
	"github.com/iwandwip/intan-kiosk/internal/model"
)

const (
	flowObserveTimeout = 30 * time.Second
	flowRetryDelay     = 2 * time.Second
)

// Observer reacts to a committed device record.
type Observer interface {
	Observe(ctx context.Context, rec *model.DeviceSessionRecord) error
}

// FlowDriver feeds every record notification to an Observer. Several
// instances may run against the same store.
type FlowDriver struct {
	store    devicestate.Store
	observer Observer
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewFlowDriver(store devicestate.Store, observer Observer) *FlowDriver {
	return &FlowDriver{
		store:    store,
		observer: observer,
	}
}

func (d *FlowDriver) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(ctx)
	}()
	log.Info().Msg("flow driver started")
}

func (d *FlowDriver) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	log.Info().Msg("flow driver stopped")
}

func (d *FlowDriver) run(ctx context.Context) {
	for {
		if err := d.consume(ctx); err != nil {
			log.Error().Err(err).Msg("device record subscription failed, retrying")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(flowRetryDelay):
		}
	}
}

// consume processes notifications until the subscription ends.
func (d *FlowDriver) consume(ctx context.Context) error {
	sub, err := d.store.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	for rec := range sub.Records() {
		d.observe(ctx, rec)
	}
	return nil
}

func (d *FlowDriver) observe(ctx context.Context, rec *model.DeviceSessionRecord) {
	ctx, cancel := context.WithTimeout(ctx, flowObserveTimeout)
	defer cancel()

	if err := d.observer.Observe(ctx, rec); err != nil {
		log.Error().
			Err(err).
			Str("sessionId", rec.SessionID).
			Str("step", string(rec.Step)).
			Msg("failed to process device record")
	}
}
