// Package mongo implements repository.AccountStore on MongoDB, the
// production account store.
//
// One collection, "users", holds both local accounts and OAuth identities.
// Two partial unique indexes carry the uniqueness rules:
//
//	username_unique  { username: 1 }  where username exists
//	sub_unique       { sub: 1 }       where sub exists
//
// Because the fields are omitempty, a local account has no "sub" key and an
// OAuth identity has no "username" key, so neither index sees them.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/pGUPT4/news-app/internal/apperror"
	"github.com/pGUPT4/news-app/internal/model"
	"github.com/pGUPT4/news-app/internal/repository"
)

const usersCollection = "users"

// compile-time check that *Store implements repository.AccountStore
var _ repository.AccountStore = (*Store)(nil)

// defaultTimeout bounds each operation when Connect is given no timeout.
const defaultTimeout = 10 * time.Second

// Store is the MongoDB account store.
type Store struct {
	client  *mongo.Client
	users   *mongo.Collection
	timeout time.Duration
}

// Connect dials uri, pings the primary and ensures the indexes exist.
// Every later operation is bounded by timeout, whatever the caller's
// context allows; the driver itself never gives up on a stalled primary.
//
// mongo.Connect only validates options; the Ping is what proves the
// server is reachable, so a bad MONGO_URI fails startup instead of the
// first registration.
func Connect(ctx context.Context, uri, database string, timeout time.Duration) (*Store, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connecting: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo: pinging: %w", err)
	}

	s := &Store{
		client:  client,
		users:   client.Database(database).Collection(usersCollection),
		timeout: timeout,
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return s, nil
}

// opContext derives the context for one driver call. A caller deadline
// that is already shorter wins.
func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Close disconnects the client, waiting for in-flight operations up to
// ctx's deadline.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// indexModels returns the unique indexes on the users collection.
// CreateMany is idempotent for identical definitions.
func indexModels() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "username", Value: 1}},
			Options: options.Index().
				SetName("username_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"username": bson.M{"$exists": true}}),
		},
		{
			Keys: bson.D{{Key: "sub", Value: 1}},
			Options: options.Index().
				SetName("sub_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"sub": bson.M{"$exists": true}}),
		},
	}
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	if _, err := s.users.Indexes().CreateMany(ctx, indexModels()); err != nil {
		return fmt.Errorf("mongo: creating indexes: %w", err)
	}
	return nil
}

// Insert creates a local account. The username_unique index is the only
// duplicate check, so it holds under concurrent registrations.
func (s *Store) Insert(ctx context.Context, user *model.User) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if _, err := s.users.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.Conflict("username", user.Username)
		}
		return fmt.Errorf("mongo: inserting user %q: %w", user.Username, err)
	}
	return nil
}

// UpsertBySubject creates the identity or refreshes its email and name.
//
// $setOnInsert writes _id and created_at only when the upsert inserts, so
// the account id is stable across logins. Two first-time logins racing on
// one subject can both try to insert; the loser gets a duplicate key error
// and retries, which then matches the winner's document.
func (s *Store) UpsertBySubject(ctx context.Context, user *model.User) error {
	if user.Subject == "" {
		return apperror.ValidationFailed("sub", "subject is required")
	}

	// One budget covers the retry too.
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var stored model.User
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = s.users.FindOneAndUpdate(ctx,
			bson.M{"sub": user.Subject},
			upsertUpdate(user, time.Now().UTC().Truncate(time.Millisecond)),
			options.FindOneAndUpdate().
				SetUpsert(true).
				SetReturnDocument(options.After),
		).Decode(&stored)
		if err == nil || !mongo.IsDuplicateKeyError(err) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("mongo: upserting user sub=%s: %w", user.Subject, err)
	}

	*user = stored
	return nil
}

// upsertUpdate builds the update document for UpsertBySubject.
func upsertUpdate(user *model.User, now time.Time) bson.M {
	return bson.M{
		"$set": bson.M{
			"email":      user.Email,
			"name":       user.Name,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"_id":        xid.New().String(),
			"created_at": now,
		},
	}
}

// FindByUsername returns the local account with that username.
func (s *Store) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.findOne(ctx, bson.M{"username": username}, username)
}

// FindBySubject returns the OAuth identity with that subject.
func (s *Store) FindBySubject(ctx context.Context, subject string) (*model.User, error) {
	return s.findOne(ctx, bson.M{"sub": subject}, subject)
}

// GetByID returns the account with that id.
func (s *Store) GetByID(ctx context.Context, id string) (*model.User, error) {
	return s.findOne(ctx, bson.M{"_id": id}, id)
}

func (s *Store) findOne(ctx context.Context, filter bson.M, key string) (*model.User, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var u model.User
	if err := s.users.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("user", key)
		}
		return nil, fmt.Errorf("mongo: finding user %s: %w", key, err)
	}
	return &u, nil
}
