// Package scheduler drives periodic synchronization runs for the daemon
// mode, where the sealed bundle lives in a file-backed slot instead of a
// browser cookie.
package scheduler

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/openbanklink/banklink/pkg/logger"
	"github.com/openbanklink/banklink/pkg/sync"
	"github.com/openbanklink/banklink/pkg/token"
)

// Engine is the slice of sync.Engine the scheduler needs.
type Engine interface {
	Sync(ctx context.Context, accessToken string) (*sync.Snapshot, error)
}

// Consumer receives each run's snapshot. Persisting it is the consumer's
// concern, not the scheduler's.
type Consumer interface {
	Consume(ctx context.Context, snapshot *sync.Snapshot) error
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(ctx context.Context, snapshot *sync.Snapshot) error

func (f ConsumerFunc) Consume(ctx context.Context, snapshot *sync.Snapshot) error {
	return f(ctx, snapshot)
}

// Scheduler runs the sync loop on a cron schedule.
type Scheduler struct {
	store     *token.Store
	refresher token.Refresher
	engine    Engine
	consumer  Consumer
	runLogger *logger.RunLogger
	cron      *cron.Cron
}

// New creates a scheduler. The consumer may be nil, in which case snapshots
// are only logged.
func New(store *token.Store, refresher token.Refresher, engine Engine, consumer Consumer, runLogger *logger.RunLogger) *Scheduler {
	return &Scheduler{
		store:     store,
		refresher: refresher,
		engine:    engine,
		consumer:  consumer,
		runLogger: runLogger,
		cron:      cron.New(),
	}
}

// Start registers the schedule and begins ticking. The spec accepts the
// standard cron format plus descriptors like "@every 6h".
func (s *Scheduler) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, func() {
		if err := s.RunOnce(context.Background()); err != nil {
			log.Printf("sync run failed: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", schedule, err)
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron loop, waiting for an in-flight run to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce performs a single synchronization pass: read the stored bundle,
// refresh it if stale, persist the result, fetch and hand the snapshot to
// the consumer. A missing bundle or failed refresh ends the run; the loop
// itself keeps ticking.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	runID := uuid.NewString()
	s.runLogger.StartRun(runID)

	snapshot, err := s.run(ctx)
	if err != nil {
		s.runLogger.FinishRun(0, 0, err)
		return err
	}

	s.runLogger.FinishRun(len(snapshot.Accounts), len(snapshot.Transactions), nil)
	return nil
}

func (s *Scheduler) run(ctx context.Context) (*sync.Snapshot, error) {
	bundle := s.store.Read()
	if bundle == nil {
		return nil, fmt.Errorf("no linked bank session; run the connect flow first")
	}

	fresh, err := token.EnsureValid(ctx, bundle, s.refresher)
	if err != nil {
		// The session is disconnected; clear it so the next run reports
		// "not linked" instead of retrying a dead refresh token.
		s.store.Clear()
		return nil, fmt.Errorf("session disconnected: %w", err)
	}

	if fresh != bundle {
		if err := s.store.Persist(fresh); err != nil {
			return nil, fmt.Errorf("failed to persist refreshed bundle: %w", err)
		}
	}

	snapshot, err := s.engine.Sync(ctx, fresh.AccessToken)
	if err != nil {
		return nil, err
	}

	if s.consumer != nil {
		if err := s.consumer.Consume(ctx, snapshot); err != nil {
			return nil, fmt.Errorf("snapshot consumer failed: %w", err)
		}
	}

	return snapshot, nil
}
