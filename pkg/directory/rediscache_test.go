package directory

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingSchools struct {
	inner Schools
	calls int
}

func (c *countingSchools) FindByID(ctx context.Context, id string) (School, error) {
	c.calls++
	return c.inner.FindByID(ctx, id)
}

func (c *countingSchools) FindByDomain(ctx context.Context, domain string) (School, error) {
	c.calls++
	return c.inner.FindByDomain(ctx, domain)
}

func TestCachedSchools(t *testing.T) {
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	log := zap.NewNop().Sugar()

	mem := NewMemoryProvider(log)
	mem.AddSchool(School{ID: "acme", Name: "Acme High", Domain: "acme.edu", Active: true})
	inner := &countingSchools{inner: mem}
	schools := NewCachedSchools(inner, rdb, time.Minute, log)
	ctx := context.Background()

	sc, err := schools.FindByID(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, "Acme High", sc.Name)
	require.Equal(t, 1, inner.calls)

	// second read is served from redis
	sc, err = schools.FindByID(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, "Acme High", sc.Name)
	require.Equal(t, 1, inner.calls)

	_, err = schools.FindByDomain(ctx, "acme.edu")
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)

	// misses are not cached
	_, err = schools.FindByID(ctx, "ghost")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = schools.FindByID(ctx, "ghost")
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 4, inner.calls)
}

func TestCachedSchoolsDisabled(t *testing.T) {
	log := zap.NewNop().Sugar()
	mem := NewMemoryProvider(log)
	require.Equal(t, mem, NewCachedSchools(mem, nil, time.Minute, log))
	require.Equal(t, mem, NewCachedSchools(mem, redis.NewClient(&redis.Options{}), 0, log))
}
