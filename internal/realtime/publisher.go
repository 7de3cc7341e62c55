// Package realtime fans live events out through Redis pub/sub and relays
// them to WebSocket clients.
//
// Channels:
//
//	snippet:<id>             cursor, content and presence events for one snippet
//	notifications:user:<id>  notifications addressed to one user
//
// A Publisher built with a nil Redis client is a no-op, so the REST API keeps
// working on a single box without Redis.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrDisabled is returned by Subscribe when no Redis client is configured.
var ErrDisabled = errors.New("realtime: redis not configured")

func SnippetChannel(snippetID string) string {
	return "snippet:" + snippetID
}

func UserChannel(userID string) string {
	return "notifications:user:" + userID
}

// Event is the envelope of every message on a channel.
type Event struct {
	Type       string          `json:"type"`
	ResourceID string          `json:"resourceId,omitempty"`
	UserID     string          `json:"userId,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	At         time.Time       `json:"at"`
}

type Publisher struct {
	rdb *redis.Client
}

func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

func (p *Publisher) Enabled() bool {
	return p != nil && p.rdb != nil
}

// Publish marshals payload into an Event and publishes it. Delivery is
// fire-and-forget: subscribers that are not connected miss it.
func (p *Publisher) Publish(ctx context.Context, channel, eventType, resourceID, userID string, payload any) error {
	if !p.Enabled() {
		return nil
	}

	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("realtime: marshal payload: %w", err)
		}
		raw = b
	}

	msg, err := json.Marshal(Event{
		Type:       eventType,
		ResourceID: resourceID,
		UserID:     userID,
		Payload:    raw,
		At:         time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("realtime: marshal event: %w", err)
	}
	if err := p.rdb.Publish(ctx, channel, msg).Err(); err != nil {
		return fmt.Errorf("realtime: publish to %s: %w", channel, err)
	}
	return nil
}

// Subscription is a live subscription to one channel.
type Subscription struct {
	ps   *redis.PubSub
	msgs chan []byte
	done chan struct{}
}

// Subscribe returns once Redis has confirmed the subscription, so messages
// published after it returns are never missed. Close must be called.
func (p *Publisher) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	if !p.Enabled() {
		return nil, ErrDisabled
	}

	ps := p.rdb.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("realtime: subscribe to %s: %w", channel, err)
	}

	s := &Subscription{
		ps:   ps,
		msgs: make(chan []byte, 64),
		done: make(chan struct{}),
	}
	go s.pump()
	return s, nil
}

func (s *Subscription) pump() {
	defer close(s.msgs)
	ch := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			select {
			case s.msgs <- []byte(m.Payload):
			case <-s.done:
				return
			}
		}
	}
}

// Messages is closed after Close.
func (s *Subscription) Messages() <-chan []byte {
	return s.msgs
}

func (s *Subscription) Close() error {
	select {
	case <-s.done:
		return nil
	default:
		close(s.done)
	}
	return s.ps.Close()
}
