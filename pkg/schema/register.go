// pkg/schema/register.go
package schema

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Target is the surface a connection handle exposes to the registration
// protocol. Bound reports whether an entity is already usable on the handle;
// Bind makes it usable.
type Target interface {
	Bound(name string) bool
	Bind(ctx context.Context, def Definition) error
}

// RegisterAll binds every definition from the registry onto the target, in
// registry order. Already-bound entities are skipped, so calling it on a
// fully registered handle is a no-op. Individual binding failures do not stop
// the walk; they are aggregated and returned, and a handle must not be
// treated as ready unless RegisterAll returned nil.
func RegisterAll(ctx context.Context, reg *Registry, t Target, log *zap.SugaredLogger) error {
	var errs error
	for _, def := range reg.Definitions() {
		if t.Bound(def.Name) {
			continue
		}
		if err := t.Bind(ctx, def); err != nil {
			log.Warnw("bind entity", "entity", def.Name, "collection", def.Collection, "err", err)
			errs = multierr.Append(errs, fmt.Errorf("bind %s: %w", def.Name, err))
		}
	}
	return errs
}
