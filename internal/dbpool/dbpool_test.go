package dbpool

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	calls int
	cs    string
	err   error
}

func (r *fakeResolver) ConnString(ctx context.Context, id string) (string, error) {
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	return r.cs, nil
}

func TestPoolResolvesOnce(t *testing.T) {
	resolver := &fakeResolver{cs: "postgres://u:p@localhost:5432/photos"}
	m := &Manager{Resolver: resolver, ResourceID: "addon-1", Log: zerolog.Nop()}
	require.Equal(t, Uninitialized, m.State())

	first, err := m.Pool(context.Background())
	require.NoError(t, err)
	require.NotNil(t, first)
	require.Equal(t, Ready, m.State())

	second, err := m.Pool(context.Background())
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, 1, resolver.calls, "credentials resolved once per process")

	first.Close()
}

func TestPoolCapsConnections(t *testing.T) {
	resolver := &fakeResolver{cs: "postgres://u:p@localhost:5432/photos"}
	m := &Manager{Resolver: resolver, Log: zerolog.Nop()}

	pool, err := m.Pool(context.Background())
	require.NoError(t, err)
	defer pool.Close()
	require.Equal(t, int32(1), pool.Config().MaxConns)
}

func TestPoolResolutionFailureLeavesUninitialized(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("api down")}
	m := &Manager{Resolver: resolver, Log: zerolog.Nop()}

	_, err := m.Pool(context.Background())
	require.ErrorContains(t, err, "api down")
	require.Equal(t, Uninitialized, m.State())

	// A later invocation retries the resolution.
	resolver.err = nil
	resolver.cs = "postgres://u:p@localhost:5432/photos"
	pool, err := m.Pool(context.Background())
	require.NoError(t, err)
	defer pool.Close()
	require.Equal(t, 2, resolver.calls)
}

func TestPoolBadConnString(t *testing.T) {
	resolver := &fakeResolver{cs: "://not-a-url"}
	m := &Manager{Resolver: resolver, Log: zerolog.Nop()}

	_, err := m.Pool(context.Background())
	require.Error(t, err)
	require.Equal(t, Uninitialized, m.State())
}
