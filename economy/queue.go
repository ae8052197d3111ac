package economy

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"game-room-engine/store"
)

var ErrQueueClosed = errors.New("settlement queue closed")

const recoverBatch = 200

// Queue settles finished rooms in the background. A settlement is retried
// with exponential backoff until it succeeds or the queue stops; the
// settlement key makes every retry safe.
type Queue struct {
	svc        *Service
	jobs       chan Settlement
	newBackOff func() backoff.BackOff
	onSettled  func(*Result)

	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	pending sync.WaitGroup

	inflightMu sync.Mutex
	inflight   map[string]int
}

// NewQueue returns a queue with room for buffer pending settlements.
func NewQueue(svc *Service, buffer int) *Queue {
	return &Queue{
		svc:      svc,
		jobs:     make(chan Settlement, buffer),
		inflight: make(map[string]int),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// OnSettled registers a callback run after each successful settlement.
func (q *Queue) OnSettled(fn func(*Result)) {
	q.onSettled = fn
}

// Start runs workers until ctx is done.
func (q *Queue) Start(ctx context.Context, workers int) {
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.run(ctx)
	}
}

// Enqueue schedules a settlement. It blocks while the buffer is full.
func (q *Queue) Enqueue(ctx context.Context, s Settlement) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.pending.Add(1)
	q.track(s.Key(), 1)
	select {
	case q.jobs <- s:
		return nil
	case <-ctx.Done():
		q.track(s.Key(), -1)
		q.pending.Done()
		return ctx.Err()
	}
}

func (q *Queue) track(key string, delta int) {
	q.inflightMu.Lock()
	defer q.inflightMu.Unlock()
	if q.inflight[key] += delta; q.inflight[key] <= 0 {
		delete(q.inflight, key)
	}
}

func (q *Queue) queued(key string) bool {
	q.inflightMu.Lock()
	defer q.inflightMu.Unlock()
	return q.inflight[key] > 0
}

// Recover queues every room finished after since that has no settlement on
// record and is not already queued. It returns how many were queued.
func (q *Queue) Recover(ctx context.Context, rooms store.Rooms, since time.Time) (int, error) {
	finished, err := rooms.FinishedRooms(ctx, since, recoverBatch)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, room := range finished {
		s, ok, err := SettlementFromRoom(room)
		if err != nil {
			log.Error().Err(err).Str("component", "settlement").Str("room_id", room.ID).Msg("unreadable room outcome")
			continue
		}
		if !ok || q.queued(s.Key()) {
			continue
		}
		settled, err := q.svc.Settled(ctx, s.Key())
		if err != nil {
			return n, err
		}
		if settled {
			continue
		}
		if err := q.Enqueue(ctx, s); err != nil {
			return n, err
		}
		n++
		log.Warn().Str("component", "settlement").Str("key", s.Key()).Msg("unsettled room recovered")
	}
	return n, nil
}

// Drain waits until every enqueued settlement has been processed.
func (q *Queue) Drain() {
	q.pending.Wait()
}

// Close stops accepting settlements and waits for the workers to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *Queue) run(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-q.jobs:
			if !ok {
				return
			}
			q.settle(ctx, s)
			q.track(s.Key(), -1)
			q.pending.Done()
		}
	}
}

func (q *Queue) settle(ctx context.Context, s Settlement) {
	var res *Result
	op := func() error {
		var err error
		res, err = q.svc.Settle(ctx, s)
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("component", "settlement").Str("key", s.Key()).
			Dur("retry_in", wait).Msg("settlement failed, retrying")
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(q.newBackOff(), ctx), notify); err != nil {
		log.Error().Err(err).Str("component", "settlement").Str("key", s.Key()).Msg("settlement abandoned")
		return
	}
	if q.onSettled != nil {
		q.onSettled(res)
	}
}
