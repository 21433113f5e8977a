// pkg/tenantdb/uri.go
package tenantdb

import (
	"fmt"
	"net/url"
	"strings"

	"schoolcore/pkg/directory"
)

// StoreURI builds the connection URI for a school's store. An explicit
// per-school URI wins; otherwise the school's logical db name (falling back
// to the school id) replaces the path of the base URI, preserving its query
// parameters.
func StoreURI(baseURI string, sc directory.School) (uri, dbName string, err error) {
	if sc.ConnURI != "" {
		u, err := url.Parse(sc.ConnURI)
		if err != nil {
			return "", "", fmt.Errorf("school %s: bad conn uri: %w", sc.ID, err)
		}
		dbName = strings.TrimPrefix(u.Path, "/")
		if dbName == "" {
			dbName = sc.ID
		}
		return sc.ConnURI, dbName, nil
	}

	dbName = sc.DBName
	if dbName == "" {
		dbName = sc.ID
	}
	u, err := url.Parse(baseURI)
	if err != nil {
		return "", "", fmt.Errorf("bad base store uri: %w", err)
	}
	u.Path = "/" + dbName
	return u.String(), dbName, nil
}
