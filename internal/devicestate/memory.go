package devicestate

import (
	"context"
	"errors"
	"sync"

	"github.com/iwandwip/intan-kiosk/internal/model"
)

// MemoryStore keeps the record in process. It serves tests and single
// instance deployments.
type MemoryStore struct {
	mu     sync.Mutex
	record *model.DeviceSessionRecord
	subs   map[*Subscription]struct{}
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subs: make(map[*Subscription]struct{}),
	}
}

func (s *MemoryStore) Get(ctx context.Context) (*model.DeviceSessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current().Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, fn UpdateFunc) (*model.DeviceSessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.current()
	next := current.Clone()
	if err := fn(next); err != nil {
		if errors.Is(err, ErrNoChange) {
			return current.Clone(), nil
		}
		return nil, err
	}
	next.Version = current.Version + 1
	s.record = next

	for sub := range s.subs {
		sub.deliver(next.Clone())
	}
	return next.Clone(), nil
}

func (s *MemoryStore) Subscribe(ctx context.Context) (*Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)

	var sub *Subscription
	sub = newSubscription(func() {
		cancel()
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[sub]; ok {
			delete(s.subs, sub)
			close(sub.records)
		}
	})

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	sub.deliver(s.current().Clone())
	s.mu.Unlock()

	go func() {
		<-subCtx.Done()
		sub.Close()
	}()

	return sub, nil
}

func (s *MemoryStore) EnsureInitialized(ctx context.Context) (*model.DeviceSessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		s.record = model.NewIdleRecord()
	}
	return s.record.Clone(), nil
}

// SubscriberCount returns the number of open subscriptions.
func (s *MemoryStore) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *MemoryStore) current() *model.DeviceSessionRecord {
	if s.record == nil {
		return model.NewIdleRecord()
	}
	return s.record
}
