// Package mongodb implements the repository interfaces on MongoDB.
//
// ONE STORE PER COLLECTION:
// Each collection gets its own small store type (UserStore, EventStore, ...)
// holding a *mongo.Collection. DB owns the client and hands out the stores,
// so the server only has one thing to open and close.
//
// ATOMICITY:
// MongoDB updates are atomic per document. Every membership change is a single
// update with the precondition folded into the filter ($ne on the member list,
// $expr on the array size), so two concurrent joins can never both pass a
// capacity check or add the same user twice. Nothing here spans two documents;
// the one cross-document flow (joining an event) is coordinated, and
// compensated, in the service layer.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/volunteer-hub/internal/repository"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names.
const (
	usersCollection        = "users"
	eventsCollection       = "events"
	teamsCollection        = "teams"
	helpRequestsCollection = "help_requests"
)

// DefaultTimeout bounds a single store operation when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// Options configures the connection.
type Options struct {
	URI         string
	Database    string
	Timeout     time.Duration // per operation
	MaxPoolSize uint64
}

// DB wraps a connected client and the application database.
type DB struct {
	client  *mongo.Client
	db      *mongo.Database
	timeout time.Duration
}

// New connects to MongoDB and verifies the connection with a ping.
//
// mongo.Connect does not fail on an unreachable server (it connects lazily),
// so without the ping a bad URI would only show up on the first request.
func New(ctx context.Context, opts Options) (*DB, error) {
	if opts.URI == "" {
		return nil, errors.New("mongodb: URI is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongodb: database name is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	clientOpts := options.Client().ApplyURI(opts.URI)
	if opts.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(opts.MaxPoolSize)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: connecting: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb: pinging server: %w", err)
	}

	return &DB{
		client:  client,
		db:      client.Database(opts.Database),
		timeout: opts.Timeout,
	}, nil
}

// Close disconnects the client, waiting for in-flight operations up to ctx.
func (db *DB) Close(ctx context.Context) error {
	return db.client.Disconnect(ctx)
}

// Ping checks that the primary is reachable. Used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, db.timeout)
	defer cancel()
	return db.client.Ping(ctx, readpref.Primary())
}

// Database exposes the underlying database (tests and index maintenance).
func (db *DB) Database() *mongo.Database {
	return db.db
}

func (db *DB) Users() *UserStore {
	return &UserStore{c: db.db.Collection(usersCollection), timeout: db.timeout}
}

func (db *DB) Events() *EventStore {
	return &EventStore{c: db.db.Collection(eventsCollection), timeout: db.timeout}
}

func (db *DB) Teams() *TeamStore {
	return &TeamStore{c: db.db.Collection(teamsCollection), timeout: db.timeout}
}

func (db *DB) HelpRequests() *HelpRequestStore {
	return &HelpRequestStore{c: db.db.Collection(helpRequestsCollection), timeout: db.timeout}
}

// Stores returns every store behind the repository interfaces.
func (db *DB) Stores() repository.Stores {
	return repository.Stores{
		Users:        db.Users(),
		Events:       db.Events(),
		Teams:        db.Teams(),
		HelpRequests: db.HelpRequests(),
	}
}

// opContext derives a per-operation deadline from the request context.
func opContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
