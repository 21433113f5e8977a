// pkg/tenantdb/pool.go
package tenantdb

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"schoolcore/pkg/directory"
	"schoolcore/pkg/schema"
)

const (
	defaultConnectTimeout  = 5 * time.Second
	defaultPingTimeout     = 2 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	// One immediate attempt plus this many delayed retries.
	maxConnectRetries = 3
)

// defaultRetryPolicy yields delays of 2s, 4s, 8s between connection attempts,
// capped at 10s, no jitter.
func defaultRetryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0
	// NewExponentialBackOff seeds its current interval from the defaults;
	// re-seed it from the overridden fields so the first delay is 2s even
	// when the policy is consumed without a prior Reset.
	b.Reset()
	return backoff.WithMaxRetries(b, maxConnectRetries)
}

type Config struct {
	BaseURI         string
	ConnectTimeout  time.Duration
	PingTimeout     time.Duration
	ShutdownTimeout time.Duration
	// RetryPolicy produces a fresh backoff policy per build; tests override it.
	RetryPolicy func() backoff.BackOff
}

type cacheEntry struct {
	handle   *Handle
	cachedAt time.Time
}

// Pool owns the map from school id to an established, live connection handle.
// It creates connections lazily, verifies liveness on every cache read,
// retries failed attempts with backoff and guarantees at most one connection
// handle — and at most one in-flight connection attempt — per school.
type Pool struct {
	cfg     Config
	schools directory.Schools
	reg     *schema.Registry
	dial    DialFunc
	metrics *Metrics
	log     *zap.SugaredLogger

	group singleflight.Group

	mu    sync.RWMutex
	conns map[string]*cacheEntry
}

func New(cfg Config, schools directory.Schools, reg *schema.Registry, dial DialFunc, metrics *Metrics, log *zap.SugaredLogger) *Pool {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = defaultPingTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.RetryPolicy == nil {
		cfg.RetryPolicy = defaultRetryPolicy
	}
	if dial == nil {
		dial = Dial(cfg.ConnectTimeout)
	}
	return &Pool{
		cfg:     cfg,
		schools: schools,
		reg:     reg,
		dial:    dial,
		metrics: metrics,
		log:     log,
		conns:   map[string]*cacheEntry{},
	}
}

// Get returns a ready, fully registered handle for the school, building one
// if needed. Concurrent callers for the same uncached school share a single
// in-flight build; all observe the same handle or the same failure.
func (p *Pool) Get(ctx context.Context, schoolID string) (*Handle, error) {
	if schoolID == "" {
		return nil, errors.New("tenantdb: empty school id")
	}
	if h, ok := p.Cached(ctx, schoolID); ok {
		return h, nil
	}
	v, err, _ := p.group.Do(schoolID, func() (any, error) {
		// A caller that queued behind a finished build finds the fresh
		// handle here instead of building again.
		if h, ok := p.Cached(ctx, schoolID); ok {
			return h, nil
		}
		return p.build(ctx, schoolID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

// Cached returns the cached handle for the school if it passes a liveness
// probe. A failed probe evicts the entry. Never builds a connection.
func (p *Pool) Cached(ctx context.Context, schoolID string) (*Handle, bool) {
	p.mu.RLock()
	e, ok := p.conns[schoolID]
	p.mu.RUnlock()
	if !ok {
		p.metrics.miss()
		return nil, false
	}
	if e.handle.State() != StateReady {
		p.metrics.miss()
		p.evict(schoolID, e.handle)
		return nil, false
	}
	if err := e.handle.probe(ctx, p.cfg.PingTimeout); err != nil {
		p.log.Warnw("liveness probe failed, evicting", "school", schoolID, "err", err)
		p.metrics.miss()
		p.evict(schoolID, e.handle)
		return nil, false
	}
	p.metrics.hit()
	return e.handle, true
}

// Active returns every cached handle that is ready and passes a liveness
// probe, evicting and skipping those that do not. Sorted by school id.
func (p *Pool) Active(ctx context.Context) []*Handle {
	p.mu.RLock()
	snapshot := make(map[string]*Handle, len(p.conns))
	for id, e := range p.conns {
		snapshot[id] = e.handle
	}
	p.mu.RUnlock()

	out := make([]*Handle, 0, len(snapshot))
	for id, h := range snapshot {
		if h.State() != StateReady {
			p.evict(id, h)
			continue
		}
		if err := h.probe(ctx, p.cfg.PingTimeout); err != nil {
			p.log.Warnw("liveness probe failed during scan, evicting", "school", id, "err", err)
			p.evict(id, h)
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SchoolID() < out[j].SchoolID() })
	return out
}

// Evict drops the school's cached handle, closing it. Returns whether an
// entry existed.
func (p *Pool) Evict(schoolID string) bool {
	p.mu.RLock()
	e, ok := p.conns[schoolID]
	p.mu.RUnlock()
	if !ok {
		return false
	}
	p.evict(schoolID, e.handle)
	return true
}

// CloseAll closes every cached connection concurrently and clears the cache.
// It waits for every close but never longer than the shutdown deadline.
func (p *Pool) CloseAll(ctx context.Context) error {
	p.mu.Lock()
	conns := p.conns
	p.conns = map[string]*cacheEntry{}
	p.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, p.cfg.ShutdownTimeout)
	defer cancel()

	var g errgroup.Group
	for id, e := range conns {
		id, h := id, e.handle
		g.Go(func() error {
			h.markBroken()
			if err := h.close(cctx); err != nil {
				p.log.Warnw("close connection", "school", id, "err", err)
				return err
			}
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		p.log.Infow("all school connections closed", "count", len(conns))
	}
	return err
}

// build runs the critical section for one school: descriptor lookup, URI
// derivation, dial with retries, registration, then cache insert. Callers
// hold the singleflight slot for the school id.
func (p *Pool) build(ctx context.Context, schoolID string) (*Handle, error) {
	sc, err := p.schools.FindByID(ctx, schoolID)
	if err != nil {
		return nil, &ConnectionError{SchoolID: schoolID, Err: err}
	}
	uri, dbName, err := StoreURI(p.cfg.BaseURI, sc)
	if err != nil {
		return nil, &ConnectionError{SchoolID: schoolID, Err: err}
	}

	attempts := 0
	op := func() (Store, error) {
		attempts++
		p.metrics.connect()
		actx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
		defer cancel()
		st, err := p.dial(actx, uri, dbName)
		if err != nil {
			p.metrics.connectFailure()
			p.log.Warnw("store connect failed", "school", schoolID, "attempt", attempts, "err", err)
		}
		return st, err
	}
	st, err := backoff.RetryWithData(op, backoff.WithContext(p.cfg.RetryPolicy(), ctx))
	if err != nil {
		return nil, &ConnectionError{SchoolID: schoolID, Attempts: attempts, Err: err}
	}

	h := newHandle(schoolID, st)
	if err := schema.RegisterAll(ctx, p.reg, h, p.log); err != nil {
		cctx, cancel := context.WithTimeout(context.Background(), p.cfg.ConnectTimeout)
		_ = st.Close(cctx)
		cancel()
		return nil, &RegistrationError{SchoolID: schoolID, Err: err}
	}
	h.markReady()

	p.mu.Lock()
	p.conns[schoolID] = &cacheEntry{handle: h, cachedAt: time.Now()}
	p.mu.Unlock()

	p.log.Infow("school store ready", "school", schoolID, "db", dbName, "entities", len(h.BoundEntities()))
	return h, nil
}

// evict removes the entry only if it still maps to the same handle, so a
// rebuild racing with an evict never loses a fresh connection.
func (p *Pool) evict(schoolID string, h *Handle) {
	p.mu.Lock()
	if e, ok := p.conns[schoolID]; ok && e.handle == h {
		delete(p.conns, schoolID)
	}
	p.mu.Unlock()
	h.markBroken()
	p.metrics.eviction()

	cctx, cancel := context.WithTimeout(context.Background(), p.cfg.ConnectTimeout)
	defer cancel()
	if err := h.close(cctx); err != nil {
		p.log.Warnw("close evicted handle", "school", schoolID, "err", err)
	}
}
