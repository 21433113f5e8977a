// pkg/schema/registry.go
package schema

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Definition describes one entity to be bound onto a school's store:
// its collection, the entities it references for cross-entity lookups,
// and the indexes the binding must ensure.
type Definition struct {
	Name       string
	Collection string
	Refs       []string
	Indexes    []mongo.IndexModel
}

// Registry holds the ordered list of entity definitions. The order is fixed
// so registration is deterministic and diagnosable; referencing entities come
// after their dependencies.
type Registry struct {
	defs []Definition
}

// NewRegistry declares the standard entity set.
func NewRegistry() *Registry {
	return &Registry{defs: []Definition{
		{
			Name:       "School",
			Collection: "schools",
		},
		{
			Name:       "Direction",
			Collection: "directions",
			Refs:       []string{"School"},
		},
		{
			Name:       "Subject",
			Collection: "subjects",
			Refs:       []string{"Direction"},
		},
		{
			Name:       "Notification",
			Collection: "notifications",
			Refs:       []string{"User", "School", "Direction", "Subject"},
			Indexes: []mongo.IndexModel{
				{Keys: bson.D{{Key: "createdAt", Value: -1}}},
				{Keys: bson.D{{Key: "user", Value: 1}}},
			},
		},
		{
			Name:       "User",
			Collection: "users",
			Refs:       []string{"School", "Direction"},
			Indexes: []mongo.IndexModel{
				{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			},
		},
	}}
}

// Definitions returns the entity definitions in registration order.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, len(r.defs))
	copy(out, r.defs)
	return out
}
