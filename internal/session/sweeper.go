package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Sweepable yields the ids of sessions evicted for inactivity.
type Sweepable interface {
	Sweep(ctx context.Context) ([]uuid.UUID, error)
}

// CollectionDeleter drops a session's indexed chunks.
// Satisfied by *vecstore.Store.
type CollectionDeleter interface {
	DeleteCollection(ctx context.Context, collection string) (int64, error)
}

// Sweeper periodically evicts idle sessions and deletes their document
// collections. A sweep failure is logged and retried on the next tick;
// the sweeper never stops on its own.
type Sweeper struct {
	registry Sweepable
	deleter  CollectionDeleter
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a Sweeper that runs every interval.
func NewSweeper(registry Sweepable, deleter CollectionDeleter, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		registry: registry,
		deleter:  deleter,
		interval: interval,
		logger:   logger,
	}
}

// Run blocks, sweeping on every tick until ctx is canceled.
// Start it in its own goroutine:
//
//	go sweeper.Run(ctx)
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	evicted, err := s.registry.Sweep(ctx)
	if err != nil {
		s.logger.Error("session sweep failed", "error", err)
		return
	}

	for _, id := range evicted {
		deleted, err := s.deleter.DeleteCollection(ctx, Collection(id))
		if err != nil {
			// The session row is already gone; the orphaned chunks are
			// unreachable and a later manual cleanup can remove them.
			s.logger.Error("deleting collection for swept session",
				"session_id", id, "error", err)
			continue
		}
		s.logger.Debug("evicted session", "session_id", id, "chunks_deleted", deleted)
	}
}
