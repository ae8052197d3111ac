// Package events publishes domain events for other services. Delivery is
// fire-and-forget: the engine never waits on a consumer.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Subjects
const (
	RoomFinished        = "rooms.finished"
	MatchCompleted      = "tournaments.match_completed"
	TournamentCompleted = "tournaments.completed"
	TournamentCancelled = "tournaments.cancelled"
	LedgerSettled       = "ledger.settled"
)

// Publisher sends an event payload on a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
	Close()
}

// Nop drops every event. Used when NATS_URL is not set.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }
func (Nop) Close()                                     {}

// Envelope wraps every published payload.
type Envelope struct {
	Subject    string          `json:"subject"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// NATS publishes events on a NATS connection.
type NATS struct {
	nc *nats.Conn
}

// Connect dials NATS and keeps reconnecting in the background.
func Connect(url string) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("game-room-engine"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Str("component", "events").Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("component", "events").Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATS{nc: nc}, nil
}

func encode(subject string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", subject, err)
	}
	return json.Marshal(Envelope{Subject: subject, OccurredAt: time.Now().UTC(), Data: data})
}

func (n *NATS) Publish(_ context.Context, subject string, payload any) error {
	msg, err := encode(subject, payload)
	if err != nil {
		return err
	}
	if err := n.nc.Publish(subject, msg); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe delivers decoded envelopes for subject to handler.
func (n *NATS) Subscribe(subject string, handler func(Envelope)) (*nats.Subscription, error) {
	return n.nc.Subscribe(subject, func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping malformed event")
			return
		}
		handler(env)
	})
}

func (n *NATS) Close() {
	if err := n.nc.Drain(); err != nil {
		n.nc.Close()
	}
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Envelope
}

func (r *Recorder) Publish(_ context.Context, subject string, payload any) error {
	msg, err := encode(subject, payload)
	if err != nil {
		return err
	}
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return err
	}
	r.mu.Lock()
	r.events = append(r.events, env)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Close() {}

// Events returns every envelope published on subject, or all of them when
// subject is empty.
func (r *Recorder) Events(subject string) []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Envelope
	for _, e := range r.events {
		if subject == "" || e.Subject == subject {
			out = append(out, e)
		}
	}
	return out
}

// Emit publishes and logs a failure instead of returning it.
func Emit(ctx context.Context, p Publisher, subject string, payload any) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, subject, payload); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("failed to publish event")
	}
}
