// pkg/tenantdb/handle.go
package tenantdb

import (
	"context"
	"sort"
	"sync"
	"time"

	"schoolcore/pkg/directory"
	"schoolcore/pkg/schema"
)

type State int

const (
	StateConnecting State = iota
	StateReady
	StateBroken
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateBroken:
		return "broken"
	default:
		return "unknown"
	}
}

// Handle wraps a live link to one school's store. A handle in StateReady has
// every entity definition from the registry bound to it; partial registration
// never reaches callers.
type Handle struct {
	schoolID string
	store    Store

	mu           sync.Mutex
	state        State
	bound        map[string]struct{}
	lastVerified time.Time
}

func newHandle(schoolID string, store Store) *Handle {
	return &Handle{
		schoolID: schoolID,
		store:    store,
		state:    StateConnecting,
		bound:    map[string]struct{}{},
	}
}

func (h *Handle) SchoolID() string { return h.schoolID }
func (h *Handle) Store() Store     { return h.store }

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handle) LastVerified() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastVerified
}

// Bound reports whether the named entity is already registered on this handle.
func (h *Handle) Bound(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.bound[name]
	return ok
}

// Bind registers one entity definition on the underlying store and records it.
func (h *Handle) Bind(ctx context.Context, def schema.Definition) error {
	if err := h.store.EnsureCollection(ctx, def); err != nil {
		return err
	}
	h.mu.Lock()
	h.bound[def.Name] = struct{}{}
	h.mu.Unlock()
	return nil
}

// BoundEntities returns the registered entity names, sorted.
func (h *Handle) BoundEntities() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.bound))
	for name := range h.bound {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// FindUserByEmail looks up an identity in this school's bound User entity.
func (h *Handle) FindUserByEmail(ctx context.Context, email string) (directory.User, error) {
	return h.store.FindUserByEmail(ctx, email)
}

func (h *Handle) markReady() {
	h.mu.Lock()
	h.state = StateReady
	h.lastVerified = time.Now()
	h.mu.Unlock()
}

func (h *Handle) markBroken() {
	h.mu.Lock()
	h.state = StateBroken
	h.mu.Unlock()
}

// probe runs a bounded liveness check. Success refreshes lastVerified;
// failure transitions the handle to StateBroken. The probe is detached from
// the caller's cancellation so an aborted request cannot evict a healthy
// connection.
func (h *Handle) probe(ctx context.Context, timeout time.Duration) error {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := h.store.Ping(pctx); err != nil {
		h.markBroken()
		return err
	}
	h.mu.Lock()
	h.lastVerified = time.Now()
	h.mu.Unlock()
	return nil
}

func (h *Handle) close(ctx context.Context) error {
	return h.store.Close(ctx)
}
