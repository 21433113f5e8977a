// pkg/tenantdb/store.go
package tenantdb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"schoolcore/pkg/directory"
	"schoolcore/pkg/schema"
)

// Store is the low-level link to one school's isolated document store.
// The pool only ever talks to stores through this interface so tests can
// substitute fakes for the Mongo client.
type Store interface {
	Ping(ctx context.Context) error
	EnsureCollection(ctx context.Context, def schema.Definition) error
	FindUserByEmail(ctx context.Context, email string) (directory.User, error)
	Close(ctx context.Context) error
}

// DialFunc establishes a Store for the given URI and logical database name.
type DialFunc func(ctx context.Context, uri, dbName string) (Store, error)

const namespaceExistsCode = 48

type mongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// Dial returns the production DialFunc backed by the Mongo driver. The
// connect timeout bounds server selection as well, so a down store fails the
// attempt instead of hanging into the retry window.
func Dial(connectTimeout time.Duration) DialFunc {
	return func(ctx context.Context, uri, dbName string) (Store, error) {
		opts := options.Client().
			ApplyURI(uri).
			SetConnectTimeout(connectTimeout).
			SetServerSelectionTimeout(connectTimeout).
			SetAppName("schoolcore").
			SetRetryWrites(true).
			SetRetryReads(true)
		cctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		client, err := mongo.Connect(cctx, opts)
		if err != nil {
			return nil, err
		}
		if err := client.Ping(cctx, readpref.Primary()); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		return &mongoStore{client: client, db: client.Database(dbName)}, nil
	}
}

func (s *mongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *mongoStore) EnsureCollection(ctx context.Context, def schema.Definition) error {
	if err := s.db.CreateCollection(ctx, def.Collection); err != nil {
		var se mongo.ServerError
		if !(errors.As(err, &se) && se.HasErrorCode(namespaceExistsCode)) {
			return err
		}
	}
	if len(def.Indexes) > 0 {
		if _, err := s.db.Collection(def.Collection).Indexes().CreateMany(ctx, def.Indexes); err != nil {
			return err
		}
	}
	return nil
}

func (s *mongoStore) FindUserByEmail(ctx context.Context, email string) (directory.User, error) {
	var doc struct {
		ID       string `bson:"_id"`
		Email    string `bson:"email"`
		Role     string `bson:"role"`
		SchoolID string `bson:"school"`
	}
	err := s.db.Collection("users").FindOne(ctx, bson.M{"email": email}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return directory.User{}, directory.ErrNotFound
		}
		return directory.User{}, err
	}
	return directory.User{ID: doc.ID, Email: doc.Email, Role: doc.Role, SchoolID: doc.SchoolID}, nil
}

func (s *mongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// DatabaseOf returns the raw database behind a handle for business-logic
// collaborators that need direct collection access. Nil when the handle is
// not backed by the Mongo driver.
func DatabaseOf(h *Handle) *mongo.Database {
	if s, ok := h.store.(*mongoStore); ok {
		return s.db
	}
	return nil
}
