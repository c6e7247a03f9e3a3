// Package dbpool owns the process-scoped Postgres pool shared across warm
// invocations, so credential resolution is paid once per process instead of
// once per write.
package dbpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// State tracks the manager's lifecycle: Uninitialized → Resolving → Ready.
// A failed resolution reports its error and returns the manager to
// Uninitialized so the next invocation may retry.
type State int

const (
	Uninitialized State = iota
	Resolving
	Ready
)

// Resolver turns a resource identifier into a database connection string.
type Resolver interface {
	ConnString(ctx context.Context, resourceID string) (string, error)
}

// Manager lazily builds and caches a pgx pool. The pool is capped at one
// connection: concurrent invocations in the same process serialize on it,
// matching the low per-process concurrency of the invocation model. It is
// never torn down explicitly; process teardown reclaims it.
type Manager struct {
	Resolver   Resolver
	ResourceID string
	Log        zerolog.Logger

	mu    sync.Mutex
	state State
	pool  *pgxpool.Pool
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Pool returns the shared pool, resolving credentials and constructing it
// on first use. Callers must treat an error as a hard failure for the
// invocation; there is no silent retry inside one call.
func (m *Manager) Pool(ctx context.Context) (*pgxpool.Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Ready {
		return m.pool, nil
	}

	m.state = Resolving
	pool, err := m.build(ctx)
	if err != nil {
		m.state = Uninitialized
		return nil, err
	}

	m.state = Ready
	m.pool = pool
	m.Log.Info().Msg("db pool initialized")
	return pool, nil
}

func (m *Manager) build(ctx context.Context) (*pgxpool.Pool, error) {
	start := time.Now()
	connString, err := m.Resolver.ConnString(ctx, m.ResourceID)
	if err != nil {
		return nil, fmt.Errorf("resolve db credentials: %w", err)
	}
	m.Log.Debug().Dur("took", time.Since(start)).Msg("resolved db credentials")

	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse db conn string: %w", err)
	}
	cfg.MinConns = 0
	cfg.MaxConns = 1
	cfg.MaxConnIdleTime = 2 * time.Minute
	cfg.ConnConfig.ConnectTimeout = 10 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build db pool: %w", err)
	}
	return pool, nil
}
