package directory

// School represents one tenant: an isolated customer space with its own
// logical data store. Descriptors are administered out-of-band in the
// system-of-record store and are read-only here.
type School struct {
	ID      string // uuid
	Name    string // human-readable ("Acme High")
	Domain  string // routing domain for email-based resolution (acme.edu)
	DBName  string // logical store name; substituted into the base store URI
	ConnURI string // optional explicit connection URI, overrides DBName
	Active  bool
}

// User is an identity record. SchoolID is empty for ungrouped identities
// hosted directly in the system-of-record store.
type User struct {
	ID       string
	Email    string
	Role     string
	SchoolID string
}

const RoleSuperadmin = "superadmin"
