package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iwandwip/intan-kiosk/internal/devicestate"
	"github.com/iwandwip/intan-kiosk/internal/model"
)

const resubscribeDelay = 2 * time.Second

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Client receives the latest device record. A slow client skips records
// rather than blocking the others.
type Client struct {
	ViewerID string
	Records  chan *model.DeviceSessionRecord
	Done     chan struct{}
}

// Broker holds a single store subscription and fans every committed record
// out to the connected clients.
type Broker struct {
	store   devicestate.Store
	clients map[*Client]bool
	latest  *model.DeviceSessionRecord
	started bool
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewBroker(store devicestate.Store) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		store:   store,
		clients: make(map[*Client]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *Broker) Subscribe(viewerID string) *Client {
	client := &Client{
		ViewerID: viewerID,
		Records:  make(chan *model.DeviceSessionRecord, 1),
		Done:     make(chan struct{}),
	}

	b.mu.Lock()
	if !b.started {
		b.started = true
		go b.watch()
	}
	b.clients[client] = true
	if b.latest != nil {
		deliver(client, b.latest)
	}
	clientCount := len(b.clients)
	b.mu.Unlock()

	log.Info().
		Str("viewerId", viewerID).
		Int("clientCount", clientCount).
		Msg("sse client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.clients[client]; ok {
		delete(b.clients, client)
		close(client.Done)

		log.Info().
			Str("viewerId", client.ViewerID).
			Int("clientCount", len(b.clients)).
			Msg("sse client unsubscribed")
	}
}

// watch follows the store until the broker is closed, resubscribing when
// the subscription drops.
func (b *Broker) watch() {
	for {
		if err := b.follow(); err != nil {
			log.Error().Err(err).Msg("device record subscription failed, retrying")
		}

		select {
		case <-b.ctx.Done():
			return
		case <-time.After(resubscribeDelay):
		}
	}
}

func (b *Broker) follow() error {
	sub, err := b.store.Subscribe(b.ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	log.Debug().Msg("sse broker subscribed to device record")

	for rec := range sub.Records() {
		b.broadcast(rec)
	}
	return nil
}

func (b *Broker) broadcast(rec *model.DeviceSessionRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.latest = rec
	for client := range b.clients {
		deliver(client, rec)
	}
}

// deliver replaces any record the client has not read yet.
func deliver(client *Client, rec *model.DeviceSessionRecord) {
	for {
		select {
		case client.Records <- rec:
			return
		default:
		}
		select {
		case <-client.Records:
		default:
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for client := range b.clients {
		close(client.Done)
	}
	b.clients = make(map[*Client]bool)
}

func (b *Broker) TotalClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
