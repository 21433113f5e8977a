package tenantdb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"schoolcore/pkg/directory"
)

func TestStoreURIExplicitWins(t *testing.T) {
	sc := directory.School{ID: "s1", DBName: "ignored", ConnURI: "mongodb://other:27017/dedicated?replicaSet=rs1"}
	uri, db, err := StoreURI("mongodb://base:27017/app", sc)
	require.NoError(t, err)
	require.Equal(t, "mongodb://other:27017/dedicated?replicaSet=rs1", uri)
	require.Equal(t, "dedicated", db)
}

func TestStoreURIDerivedKeepsQueryParams(t *testing.T) {
	sc := directory.School{ID: "s1", DBName: "acme"}
	uri, db, err := StoreURI("mongodb://base:27017/app?authSource=admin&replicaSet=rs0", sc)
	require.NoError(t, err)
	require.Equal(t, "mongodb://base:27017/acme?authSource=admin&replicaSet=rs0", uri)
	require.Equal(t, "acme", db)
}

func TestStoreURIFallsBackToSchoolID(t *testing.T) {
	sc := directory.School{ID: "6543af"}
	uri, db, err := StoreURI("mongodb://base:27017/app", sc)
	require.NoError(t, err)
	require.Equal(t, "mongodb://base:27017/6543af", uri)
	require.Equal(t, "6543af", db)
}

func TestStoreURIBadBase(t *testing.T) {
	_, _, err := StoreURI("://not-a-uri", directory.School{ID: "s1"})
	require.Error(t, err)
}
