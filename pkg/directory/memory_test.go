package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryLookups(t *testing.T) {
	dir := NewMemoryProvider(zap.NewNop().Sugar())
	dir.AddSchool(School{ID: "acme", Name: "Acme High", Domain: "Acme.EDU", Active: true})
	dir.AddUser(User{ID: "u1", Email: "Root@Acme.edu", Role: "admin", SchoolID: "acme"})
	ctx := context.Background()

	sc, err := dir.FindByID(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, "Acme High", sc.Name)

	sc, err = dir.FindByDomain(ctx, "acme.edu")
	require.NoError(t, err)
	require.Equal(t, "acme", sc.ID)

	u, err := dir.FindUserByEmail(ctx, "root@acme.edu")
	require.NoError(t, err)
	require.Equal(t, "u1", u.ID)

	u, err = dir.FindUserByID(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "acme", u.SchoolID)

	_, err = dir.FindByID(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = dir.FindUserByEmail(ctx, "ghost@acme.edu")
	require.ErrorIs(t, err, ErrNotFound)
}
