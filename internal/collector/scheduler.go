package collector

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/user/signalhub/internal/storage"
	"github.com/user/signalhub/pkg/logger"
)

// Scheduler runs every registered adapter on its own interval. Each adapter
// gets one goroutine, which guarantees at-most-one in-flight run per adapter;
// push-driven adapters can request an immediate extra run through Kick.
type Scheduler struct {
	db      *storage.Database
	log     zerolog.Logger
	entries map[string]*entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type entry struct {
	adapter  Adapter
	interval time.Duration
	kick     chan struct{}
}

// NewScheduler creates a scheduler bound to the database.
func NewScheduler(db *storage.Database) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		db:      db,
		log:     logger.With("scheduler"),
		entries: make(map[string]*entry),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds an adapter with its collection interval. Must be called
// before Start.
func (s *Scheduler) Register(a Adapter, interval time.Duration) {
	if interval < time.Minute {
		interval = time.Minute // external APIs are rate limited
	}
	s.entries[a.Name()] = &entry{
		adapter:  a,
		interval: interval,
		kick:     make(chan struct{}, 1),
	}
}

// Kick requests an immediate collection run for the named adapter. A kick
// arriving while a run is in flight coalesces into a single follow-up run.
func (s *Scheduler) Kick(name string) {
	e, ok := s.entries[name]
	if !ok {
		return
	}
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// Start launches one loop per registered adapter.
func (s *Scheduler) Start() {
	for _, e := range s.entries {
		s.wg.Add(1)
		go s.loop(e)
	}
	s.log.Info().Int("adapters", len(s.entries)).Msg("Scheduler started")
}

// Stop stops all adapter loops and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.log.Info().Msg("Stopping scheduler")
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) loop(e *entry) {
	defer s.wg.Done()

	s.runOnce(e.adapter)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(e.adapter)
		case <-e.kick:
			s.runOnce(e.adapter)
		}
	}
}

// runOnce executes a full collection cycle for one adapter inside a single
// transaction. A failed cycle rolls back wholesale and terminates only that
// cycle.
func (s *Scheduler) runOnce(a Adapter) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("adapter", a.Name()).Any("panic", r).Msg("Collection cycle panicked")
		}
	}()

	start := time.Now()
	err := s.db.WithTx(s.ctx, func(st *storage.Store) error {
		if err := a.UpdateCommunities(s.ctx, st); err != nil {
			return err
		}
		return a.Collect(s.ctx, st)
	})
	if err != nil {
		s.log.Error().Err(err).Str("adapter", a.Name()).Msg("Collection cycle failed")
		return
	}
	s.log.Debug().
		Str("adapter", a.Name()).
		Dur("elapsed", time.Since(start)).
		Msg("Collection cycle complete")
}
