package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"game-room-engine/bracket"
	"game-room-engine/economy"
	"game-room-engine/room"
	"game-room-engine/store"
)

// Intervals of the background jobs.
const (
	TournamentStartEvery = 30 * time.Second
	RoomSweepEvery       = 30 * time.Second
	ReconcileEvery       = 5 * time.Minute
	RecoverEvery         = 5 * time.Minute

	// RecoverWindow bounds how far back finished rooms are checked for a
	// missing settlement.
	RecoverWindow = 24 * time.Hour
)

// StartScheduler runs the periodic jobs: scheduled tournament starts and
// retries of match rooms, eviction of stale rooms, ledger reconciliation and
// recovery of unsettled rooms. Recovery also runs once at start-up. The caller
// shuts the scheduler down.
func StartScheduler(ctx context.Context, rooms *room.Manager, brackets *bracket.Manager, econ *economy.Service,
	settlements *economy.Queue, roomStore store.Rooms) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	jobs := []struct {
		name    string
		every   time.Duration
		run     func()
		atStart bool
	}{
		{"tournament-start", TournamentStartEvery, func() {
			if n := brackets.StartDue(ctx, time.Now()); n > 0 {
				log.Info().Str("component", "scheduler").Int("started", n).Msg("scheduled tournaments started")
			}
			brackets.RetryPending(ctx)
		}, false},
		{"room-sweep", RoomSweepEvery, func() {
			rooms.Sweep(ctx)
		}, false},
		{"ledger-reconcile", ReconcileEvery, func() {
			if _, err := econ.Reconcile(ctx); err != nil {
				log.Error().Err(err).Str("component", "scheduler").Msg("ledger reconciliation failed")
			}
		}, false},
		{"settlement-recovery", RecoverEvery, func() {
			n, err := settlements.Recover(ctx, roomStore, time.Now().Add(-RecoverWindow))
			if err != nil {
				log.Error().Err(err).Str("component", "scheduler").Msg("settlement recovery failed")
				return
			}
			if n > 0 {
				log.Info().Str("component", "scheduler").Int("queued", n).Msg("unsettled rooms queued")
			}
		}, true},
	}
	for _, j := range jobs {
		opts := []gocron.JobOption{
			gocron.WithName(j.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		}
		if j.atStart {
			opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
		}
		if _, err := sched.NewJob(gocron.DurationJob(j.every), gocron.NewTask(j.run), opts...); err != nil {
			_ = sched.Shutdown()
			return nil, err
		}
	}
	sched.Start()
	log.Info().Str("component", "scheduler").Int("jobs", len(jobs)).Msg("scheduler started")
	return sched, nil
}
