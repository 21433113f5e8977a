package tenantdb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"schoolcore/pkg/directory"
	"schoolcore/pkg/schema"
)

type fakeStore struct {
	mu      sync.Mutex
	pingErr error
	bindErr map[string]error
	binds   []string
	closed  bool
}

func (s *fakeStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pingErr
}

func (s *fakeStore) EnsureCollection(ctx context.Context, def schema.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.binds = append(s.binds, def.Name)
	if err, ok := s.bindErr[def.Name]; ok {
		return err
	}
	return nil
}

func (s *fakeStore) FindUserByEmail(ctx context.Context, email string) (directory.User, error) {
	return directory.User{}, directory.ErrNotFound
}

func (s *fakeStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStore) setPingErr(err error) {
	s.mu.Lock()
	s.pingErr = err
	s.mu.Unlock()
}

func (s *fakeStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeDialer struct {
	mu       sync.Mutex
	dials    int
	failures int           // fail this many leading attempts
	delay    time.Duration // simulated connect latency
	dialErr  error
	bindErr  map[string]error
	stores   []*fakeStore
}

func (d *fakeDialer) dial(ctx context.Context, uri, dbName string) (Store, error) {
	d.mu.Lock()
	d.dials++
	n := d.dials
	delay := d.delay
	d.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if n <= d.failures {
		return nil, errors.New("connection refused")
	}
	st := &fakeStore{bindErr: d.bindErr}
	d.stores = append(d.stores, st)
	return st, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func fastRetries() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), maxConnectRetries)
}

func newTestPool(t *testing.T, d *fakeDialer, schools ...directory.School) *Pool {
	t.Helper()
	log := zap.NewNop().Sugar()
	dir := directory.NewMemoryProvider(log)
	for _, sc := range schools {
		dir.AddSchool(sc)
	}
	cfg := Config{
		BaseURI:         "mongodb://localhost:27017/app",
		ConnectTimeout:  time.Second,
		PingTimeout:     time.Second,
		ShutdownTimeout: time.Second,
		RetryPolicy:     fastRetries,
	}
	return New(cfg, dir, schema.NewRegistry(), d.dial, nil, log)
}

func TestGetBuildsRegistersAndCaches(t *testing.T) {
	d := &fakeDialer{}
	p := newTestPool(t, d, directory.School{ID: "s1", Name: "One", DBName: "one", Active: true})
	ctx := context.Background()

	h, err := p.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, StateReady, h.State())
	require.Equal(t, []string{"Direction", "Notification", "School", "Subject", "User"}, h.BoundEntities())
	require.False(t, h.LastVerified().IsZero())

	again, err := p.Get(ctx, "s1")
	require.NoError(t, err)
	require.Same(t, h, again)
	require.Equal(t, 1, d.dialCount())
}

func TestGetEmptySchoolID(t *testing.T) {
	d := &fakeDialer{}
	p := newTestPool(t, d)
	_, err := p.Get(context.Background(), "")
	require.Error(t, err)
	require.Zero(t, d.dialCount())
}

func TestGetSingleFlight(t *testing.T) {
	d := &fakeDialer{delay: 50 * time.Millisecond}
	p := newTestPool(t, d, directory.School{ID: "s3", Name: "Three", Active: true})
	ctx := context.Background()

	const callers = 8
	handles := make([]*Handle, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = p.Get(ctx, "s3")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
	}
	require.Equal(t, 1, d.dialCount(), "exactly one connect sequence must run")
	for i := 1; i < callers; i++ {
		require.Same(t, handles[0], handles[i], "all callers observe the same handle")
	}
}

func TestGetExhaustedRetries(t *testing.T) {
	d := &fakeDialer{dialErr: errors.New("no route to host")}
	p := newTestPool(t, d, directory.School{ID: "s2", Name: "Two", Active: true})

	_, err := p.Get(context.Background(), "s2")
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	require.Equal(t, "s2", connErr.SchoolID)
	require.Equal(t, 1+maxConnectRetries, connErr.Attempts)
	require.Equal(t, 1+maxConnectRetries, d.dialCount())

	// failed attempts are never cached
	_, ok := p.Cached(context.Background(), "s2")
	require.False(t, ok)
}

func TestGetRecoversAfterTransientFailures(t *testing.T) {
	d := &fakeDialer{failures: 2}
	p := newTestPool(t, d, directory.School{ID: "s1", Name: "One", Active: true})

	h, err := p.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, StateReady, h.State())
	require.Equal(t, 3, d.dialCount())
}

func TestProbeFailureEvictsAndRebuilds(t *testing.T) {
	d := &fakeDialer{}
	p := newTestPool(t, d, directory.School{ID: "s1", Name: "One", Active: true})
	ctx := context.Background()

	h1, err := p.Get(ctx, "s1")
	require.NoError(t, err)

	d.stores[0].setPingErr(errors.New("connection reset"))

	h2, err := p.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotSame(t, h1, h2, "broken handle must never be reused")
	require.Equal(t, StateBroken, h1.State())
	require.True(t, d.stores[0].isClosed())
	require.Equal(t, 2, d.dialCount())
}

func TestCachedNeverBuilds(t *testing.T) {
	d := &fakeDialer{}
	p := newTestPool(t, d, directory.School{ID: "s1", Name: "One", Active: true})

	_, ok := p.Cached(context.Background(), "s1")
	require.False(t, ok)
	require.Zero(t, d.dialCount())
}

func TestCachedEvictsOnProbeFailure(t *testing.T) {
	d := &fakeDialer{}
	p := newTestPool(t, d, directory.School{ID: "s1", Name: "One", Active: true})
	ctx := context.Background()

	_, err := p.Get(ctx, "s1")
	require.NoError(t, err)
	d.stores[0].setPingErr(errors.New("gone"))

	_, ok := p.Cached(ctx, "s1")
	require.False(t, ok)
	require.True(t, d.stores[0].isClosed())
}

func TestActiveEvictsBrokenDuringScan(t *testing.T) {
	d := &fakeDialer{}
	p := newTestPool(t, d,
		directory.School{ID: "a", Name: "A", Active: true},
		directory.School{ID: "b", Name: "B", Active: true},
	)
	ctx := context.Background()

	_, err := p.Get(ctx, "a")
	require.NoError(t, err)
	_, err = p.Get(ctx, "b")
	require.NoError(t, err)

	d.stores[0].setPingErr(errors.New("down"))

	active := p.Active(ctx)
	require.Len(t, active, 1)
	require.Equal(t, "b", active[0].SchoolID())

	// the broken entry is gone from the cache
	_, ok := p.Cached(ctx, "a")
	require.False(t, ok)
}

func TestRegistrationFailureDiscardsHandle(t *testing.T) {
	d := &fakeDialer{bindErr: map[string]error{"Subject": errors.New("index build failed")}}
	p := newTestPool(t, d, directory.School{ID: "s1", Name: "One", Active: true})

	_, err := p.Get(context.Background(), "s1")
	var regErr *RegistrationError
	require.ErrorAs(t, err, &regErr)
	require.Equal(t, "s1", regErr.SchoolID)

	// best effort: the remaining entities were still attempted
	require.Equal(t, []string{"School", "Direction", "Subject", "Notification", "User"}, d.stores[0].binds)
	require.True(t, d.stores[0].isClosed())

	_, ok := p.Cached(context.Background(), "s1")
	require.False(t, ok)
}

func TestCloseAll(t *testing.T) {
	d := &fakeDialer{}
	p := newTestPool(t, d,
		directory.School{ID: "a", Name: "A", Active: true},
		directory.School{ID: "b", Name: "B", Active: true},
	)
	ctx := context.Background()

	_, err := p.Get(ctx, "a")
	require.NoError(t, err)
	_, err = p.Get(ctx, "b")
	require.NoError(t, err)

	require.NoError(t, p.CloseAll(ctx))
	for _, st := range d.stores {
		require.True(t, st.isClosed())
	}
	require.Empty(t, p.Active(ctx))

	// a later request rebuilds from scratch
	_, err = p.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, 3, d.dialCount())
}

func TestDefaultRetryPolicyDelays(t *testing.T) {
	p := defaultRetryPolicy()
	require.Equal(t, 2*time.Second, p.NextBackOff())
	require.Equal(t, 4*time.Second, p.NextBackOff())
	require.Equal(t, 8*time.Second, p.NextBackOff())
	require.Equal(t, backoff.Stop, p.NextBackOff(), "a fourth retry never occurs")
}
