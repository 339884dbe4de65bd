// Package devicestate holds the shared record of a weighing station. Every
// participant (mobile clients through the API, the firmware, the timeout
// supervisor) reads and writes the same record through a Store.
package devicestate

import (
	"context"
	"errors"
	"sync"

	"github.com/iwandwip/intan-kiosk/internal/model"
)

// ErrNoChange may be returned by an UpdateFunc to leave the record untouched.
// Update then returns the current record and a nil error.
var ErrNoChange = errors.New("devicestate: no change")

// UpdateFunc mutates a private copy of the record. Returning an error aborts
// the write.
type UpdateFunc func(rec *model.DeviceSessionRecord) error

type Store interface {
	// Get returns the current record, or the idle shape if none exists yet.
	Get(ctx context.Context) (*model.DeviceSessionRecord, error)
	// Update applies fn as one atomic read-modify-write and notifies
	// subscribers with the full committed record.
	Update(ctx context.Context, fn UpdateFunc) (*model.DeviceSessionRecord, error)
	// Subscribe delivers the current record, then every committed record.
	// Slow subscribers only ever see the latest record.
	Subscribe(ctx context.Context) (*Subscription, error)
	// EnsureInitialized writes the idle record if none exists.
	EnsureInitialized(ctx context.Context) (*model.DeviceSessionRecord, error)
}

// Subscription is a cancellable stream of committed records.
type Subscription struct {
	records chan *model.DeviceSessionRecord
	once    sync.Once
	stop    func()
}

func newSubscription(stop func()) *Subscription {
	return &Subscription{
		records: make(chan *model.DeviceSessionRecord, 1),
		stop:    stop,
	}
}

// Records is closed once the subscription ends.
func (s *Subscription) Records() <-chan *model.DeviceSessionRecord {
	return s.records
}

func (s *Subscription) Close() {
	s.once.Do(s.stop)
}

// deliver replaces any undelivered record with rec. Only one goroutine may
// deliver to a given subscription at a time.
func (s *Subscription) deliver(rec *model.DeviceSessionRecord) {
	for {
		select {
		case s.records <- rec:
			return
		default:
		}
		select {
		case <-s.records:
		default:
		}
	}
}
