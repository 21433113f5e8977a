// pkg/resolve/resolver.go
package resolve

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"schoolcore/pkg/auth"
	"schoolcore/pkg/directory"
	"schoolcore/pkg/tenantdb"
)

// Connector is the slice of the connection pool the resolver needs.
type Connector interface {
	Get(ctx context.Context, schoolID string) (*tenantdb.Handle, error)
}

// Evidence is the identity material extracted from one request. It is never
// persisted; every request carries its own.
type Evidence struct {
	Claims   *auth.Claims    // verified bearer-token claims, if any
	Identity *directory.User // previously resolved identity record, if any
	Email    string          // explicit email, e.g. from a sign-in payload
}

// Result is the outcome of resolution. A nil School means the identity is
// hosted directly in the system-of-record store.
type Result struct {
	School     *directory.School
	Conn       *tenantdb.Handle
	Superadmin bool
}

func (r Result) HasSchool() bool { return r.School != nil }

// Resolver determines which school a request belongs to, trying strategies
// in a fixed priority order and stopping at the first success:
//
//  1. school id embedded in the token claims
//  2. school reference on a previously resolved identity
//  3. email-domain lookup
//  4. superadmin carve-out — role alone, and only when 1-3 produced nothing;
//     a superadmin whose token carries a school id is still scoped to it
//  5. fallback lookup in the system of record: a found record with a school
//     reference scopes the request like strategy 2; one without stays on the
//     system-of-record store (ungrouped)
type Resolver struct {
	schools    directory.Schools
	identities directory.Identities
	pool       Connector
	log        *zap.SugaredLogger
}

func New(schools directory.Schools, identities directory.Identities, pool Connector, log *zap.SugaredLogger) *Resolver {
	return &Resolver{schools: schools, identities: identities, pool: pool, log: log}
}

// Resolve runs the pipeline. A resolved school is returned together with its
// ready connection so downstream collaborators never resolve twice.
func (r *Resolver) Resolve(ctx context.Context, ev Evidence) (Result, error) {
	if ev.Claims != nil && ev.Claims.SchoolID != "" {
		sc, err := r.schools.FindByID(ctx, ev.Claims.SchoolID)
		if err == nil {
			return r.attach(ctx, sc)
		}
		if !errors.Is(err, directory.ErrNotFound) {
			return Result{}, err
		}
		r.log.Warnw("token school claim does not match any school", "school", ev.Claims.SchoolID)
	}

	if ev.Identity != nil && ev.Identity.SchoolID != "" {
		sc, err := r.schools.FindByID(ctx, ev.Identity.SchoolID)
		if err == nil {
			return r.attach(ctx, sc)
		}
		if !errors.Is(err, directory.ErrNotFound) {
			return Result{}, err
		}
	}

	email := r.email(ev)
	if domain := emailDomain(email); domain != "" {
		sc, err := r.schools.FindByDomain(ctx, domain)
		if err == nil {
			return r.attach(ctx, sc)
		}
		if !errors.Is(err, directory.ErrNotFound) {
			return Result{}, err
		}
	}

	if r.role(ev) == directory.RoleSuperadmin {
		return Result{Superadmin: true}, nil
	}

	// Fall back to the system of record. A record found here may still carry
	// a school reference (e.g. a token without a sid claim and a personal
	// email address); that reference scopes the request like any other
	// evidence, so only genuinely ungrouped identities land here.
	if ev.Identity != nil {
		return Result{}, nil
	}
	if email != "" {
		u, err := r.identities.FindUserByEmail(ctx, email)
		if err == nil {
			return r.grouped(ctx, u)
		}
		if !errors.Is(err, directory.ErrNotFound) {
			return Result{}, err
		}
	}
	if ev.Claims != nil && ev.Claims.Subject != "" {
		u, err := r.identities.FindUserByID(ctx, ev.Claims.Subject)
		if err == nil {
			return r.grouped(ctx, u)
		}
		if !errors.Is(err, directory.ErrNotFound) {
			return Result{}, err
		}
	}

	res := &ResolutionError{Email: email}
	if ev.Claims != nil {
		res.Subject = ev.Claims.Subject
	}
	return Result{}, res
}

// grouped finishes resolution for an identity record found in the system of
// record: a school reference on the record scopes the request to that school,
// a record without one stays on the system-of-record store.
func (r *Resolver) grouped(ctx context.Context, u directory.User) (Result, error) {
	if u.SchoolID == "" {
		return Result{}, nil
	}
	sc, err := r.schools.FindByID(ctx, u.SchoolID)
	if err == nil {
		return r.attach(ctx, sc)
	}
	if !errors.Is(err, directory.ErrNotFound) {
		return Result{}, err
	}
	r.log.Warnw("identity references an unknown school, treating as ungrouped", "school", u.SchoolID, "user", u.ID)
	return Result{}, nil
}

func (r *Resolver) attach(ctx context.Context, sc directory.School) (Result, error) {
	if !sc.Active {
		return Result{}, &TenantInactiveError{SchoolID: sc.ID}
	}
	conn, err := r.pool.Get(ctx, sc.ID)
	if err != nil {
		return Result{}, err
	}
	return Result{School: &sc, Conn: conn}, nil
}

func (r *Resolver) email(ev Evidence) string {
	if ev.Claims != nil && ev.Claims.Email != "" {
		return ev.Claims.Email
	}
	if ev.Identity != nil && ev.Identity.Email != "" {
		return ev.Identity.Email
	}
	return ev.Email
}

func (r *Resolver) role(ev Evidence) string {
	if ev.Claims != nil && ev.Claims.Role != "" {
		return ev.Claims.Role
	}
	if ev.Identity != nil {
		return ev.Identity.Role
	}
	return ""
}

func emailDomain(email string) string {
	i := strings.LastIndex(email, "@")
	if i < 0 || i == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[i+1:])
}
