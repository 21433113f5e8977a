package directory

import (
	"context"
	"errors"
)

// ErrNotFound is returned by all lookups when no record matches.
var ErrNotFound = errors.New("not found")

// Schools looks up tenant descriptors in the system-of-record store.
type Schools interface {
	FindByID(ctx context.Context, id string) (School, error)
	FindByDomain(ctx context.Context, domain string) (School, error)
}

// Identities looks up tenant-independent identities in the system-of-record
// store. Per-school identities live behind the tenant connection instead.
type Identities interface {
	FindUserByID(ctx context.Context, id string) (User, error)
	FindUserByEmail(ctx context.Context, email string) (User, error)
}

type Provider interface {
	Schools
	Identities
}
