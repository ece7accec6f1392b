// Package session tracks anonymous browser sessions in PostgreSQL.
//
// A session is created implicitly on first contact and refreshed on every
// request. Sessions idle past the configured threshold are swept
// periodically; sweeping a session also drops the vector collection
// holding the documents it ingested, so abandoned uploads do not
// accumulate.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Collection returns the vector collection name for a session's documents.
func Collection(id uuid.UUID) string {
	return "session:" + id.String()
}

// Registry persists sessions and their last-activity timestamps.
//
// Registry is safe for concurrent use by multiple goroutines.
type Registry struct {
	pool   *pgxpool.Pool
	idle   time.Duration
	logger *slog.Logger
}

// NewRegistry creates a Registry. idle is the inactivity threshold after
// which Sweep evicts a session. A nil logger falls back to slog.Default().
func NewRegistry(pool *pgxpool.Pool, idle time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		pool:   pool,
		idle:   idle,
		logger: logger,
	}
}

// IdleThreshold returns the configured inactivity threshold.
func (r *Registry) IdleThreshold() time.Duration {
	return r.idle
}

// Touch refreshes the session's last-activity timestamp, creating the
// session if it does not exist. A nil id, or an id that was already swept,
// results in a fresh session. Returns the effective session id and whether
// a new session was created.
func (r *Registry) Touch(ctx context.Context, id *uuid.UUID) (uuid.UUID, bool, error) {
	if id != nil {
		tag, err := r.pool.Exec(ctx,
			`UPDATE sessions SET last_seen = now() WHERE id = $1`, *id)
		if err != nil {
			return uuid.Nil, false, fmt.Errorf("touching session %s: %w", *id, err)
		}
		if tag.RowsAffected() == 1 {
			return *id, false, nil
		}
		// Unknown or already swept: fall through and mint a fresh session.
	}

	fresh := uuid.New()
	if _, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (id) VALUES ($1)`, fresh); err != nil {
		return uuid.Nil, false, fmt.Errorf("creating session: %w", err)
	}

	r.logger.Debug("created session", "session_id", fresh)
	return fresh, true, nil
}

// Sweep deletes every session idle past the threshold and returns the ids
// of the evicted sessions so their collections can be dropped.
func (r *Registry) Sweep(ctx context.Context) ([]uuid.UUID, error) {
	cutoff := time.Now().Add(-r.idle)

	rows, err := r.pool.Query(ctx,
		`DELETE FROM sessions WHERE last_seen < $1 RETURNING id`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("sweeping sessions: %w", err)
	}
	defer rows.Close()

	var evicted []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning swept session id: %w", err)
		}
		evicted = append(evicted, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading swept session ids: %w", err)
	}

	if len(evicted) > 0 {
		r.logger.Info("swept idle sessions", "count", len(evicted))
	}
	return evicted, nil
}

// Count returns the number of live sessions.
func (r *Registry) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM sessions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting sessions: %w", err)
	}
	return count, nil
}
