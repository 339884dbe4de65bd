package devicestate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/iwandwip/intan-kiosk/internal/config"
	apperrors "github.com/iwandwip/intan-kiosk/internal/errors"
	"github.com/iwandwip/intan-kiosk/internal/model"
	redisclient "github.com/iwandwip/intan-kiosk/internal/redis"
)

// RedisStore keeps the record as JSON under one key. Writes run inside a
// WATCH/MULTI transaction that also publishes the committed record, so a
// write and its notification are never separated.
type RedisStore struct {
	client     *redis.Client
	deviceID   string
	key        string
	channel    string
	maxRetries int
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, deviceID string) *RedisStore {
	return &RedisStore{
		client:     client,
		deviceID:   deviceID,
		key:        redisclient.SessionKey(deviceID),
		channel:    redisclient.SessionChannel(deviceID),
		maxRetries: config.DeviceStoreMaxRetries,
	}
}

func (s *RedisStore) Get(ctx context.Context) (*model.DeviceSessionRecord, error) {
	rec, err := s.load(ctx, s.client)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	return rec, nil
}

func (s *RedisStore) Update(ctx context.Context, fn UpdateFunc) (*model.DeviceSessionRecord, error) {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		var (
			committed *model.DeviceSessionRecord
			fnErr     error
		)

		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := s.load(ctx, tx)
			if err != nil {
				return err
			}

			next := current.Clone()
			if fnErr = fn(next); fnErr != nil {
				if errors.Is(fnErr, ErrNoChange) {
					committed = current
				}
				return fnErr
			}
			next.Version = current.Version + 1

			data, err := json.Marshal(next)
			if err != nil {
				return fmt.Errorf("marshal record: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, s.key, data, 0)
				pipe.Publish(ctx, s.channel, data)
				return nil
			})
			if err == nil {
				committed = next
			}
			return err
		}, s.key)

		switch {
		case err == nil:
			return committed, nil
		case fnErr != nil && errors.Is(fnErr, ErrNoChange):
			return committed, nil
		case fnErr != nil:
			return nil, fnErr
		case errors.Is(err, redis.TxFailedErr):
			log.Debug().
				Str("deviceId", s.deviceID).
				Int("attempt", attempt+1).
				Msg("device record changed concurrently, retrying")
			continue
		default:
			return nil, apperrors.StoreUnavailable(err)
		}
	}

	return nil, apperrors.StoreUnavailable(fmt.Errorf("update aborted after %d conflicting attempts", s.maxRetries))
}

func (s *RedisStore) Subscribe(ctx context.Context) (*Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	pubsub := s.client.Subscribe(subCtx, s.channel)

	// Wait for the subscription to be live so no write after the snapshot
	// below can be missed.
	if _, err := pubsub.Receive(subCtx); err != nil {
		cancel()
		pubsub.Close()
		return nil, apperrors.StoreUnavailable(err)
	}

	snapshot, err := s.Get(subCtx)
	if err != nil {
		cancel()
		pubsub.Close()
		return nil, err
	}

	sub := newSubscription(cancel)
	sub.deliver(snapshot)

	go func() {
		defer close(sub.records)
		defer pubsub.Close()

		lastVersion := snapshot.Version
		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return

			case msg, ok := <-ch:
				if !ok {
					return
				}

				var rec model.DeviceSessionRecord
				if err := json.Unmarshal([]byte(msg.Payload), &rec); err != nil {
					log.Error().Err(err).Str("deviceId", s.deviceID).Msg("failed to unmarshal device record")
					continue
				}
				if rec.Version < lastVersion {
					// Either a late publish or the key was recreated and its
					// version restarted. The stored record tells them apart.
					current, err := s.Get(subCtx)
					if err != nil {
						log.Warn().Err(err).Str("deviceId", s.deviceID).Msg("failed to resync device record")
						continue
					}
					if current.Version >= lastVersion {
						continue
					}
					log.Warn().
						Str("deviceId", s.deviceID).
						Int64("lastVersion", lastVersion).
						Int64("version", current.Version).
						Msg("device record version went backwards, resyncing")
					lastVersion = current.Version
					sub.deliver(current)
					continue
				}
				lastVersion = rec.Version
				sub.deliver(&rec)
			}
		}
	}()

	return sub, nil
}

func (s *RedisStore) EnsureInitialized(ctx context.Context) (*model.DeviceSessionRecord, error) {
	data, err := json.Marshal(model.NewIdleRecord())
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}

	created, err := s.client.SetNX(ctx, s.key, data, 0).Result()
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	if created {
		log.Info().Str("deviceId", s.deviceID).Msg("device record initialized")
	}

	return s.Get(ctx)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) load(ctx context.Context, c getter) (*model.DeviceSessionRecord, error) {
	data, err := c.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.NewIdleRecord(), nil
	}
	if err != nil {
		return nil, err
	}

	var rec model.DeviceSessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		log.Error().Err(err).Str("deviceId", s.deviceID).Msg("device record unreadable, treating as idle")
		return model.NewIdleRecord(), nil
	}
	if rec.Parameters == nil {
		rec.Parameters = map[string]string{}
	}
	return &rec, nil
}
