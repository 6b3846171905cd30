// Package runlog archives run reports to MongoDB. The ledger is
// operational history, not application state: a missing URI disables it
// silently and an unreachable server never fails a run.
package runlog

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	reportCollection = "run_reports"

	connectTimeout = 15 * time.Second
	writeTimeout   = 10 * time.Second
)

// Ledger wraps an optional MongoDB connection. The zero value is a
// disabled ledger whose methods are no-ops.
type Ledger struct {
	client   *mongo.Client
	database *mongo.Database
}

// Open connects the ledger. With an empty URI archiving is disabled and
// every call becomes a no-op; connection failures degrade the same way.
func Open(ctx context.Context, uri, database string) *Ledger {
	if uri == "" {
		log.Println("[runlog] MONGODB_URI not set, run ledger disabled")
		return &Ledger{}
	}

	cctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetMaxPoolSize(4).
		SetConnectTimeout(connectTimeout).
		SetRetryWrites(true)

	client, err := mongo.Connect(cctx, clientOptions)
	if err != nil {
		log.Printf("[runlog] connect failed, run ledger disabled: %v", err)
		return &Ledger{}
	}
	if err := client.Ping(cctx, nil); err != nil {
		log.Printf("[runlog] ping failed, run ledger disabled: %v", err)
		client.Disconnect(cctx)
		return &Ledger{}
	}

	log.Printf("[runlog] run ledger connected (db %s)", database)
	return &Ledger{client: client, database: client.Database(database)}
}

func (l *Ledger) Enabled() bool { return l.client != nil }

// Archive inserts one run report document, best effort.
func (l *Ledger) Archive(ctx context.Context, doc any) {
	if l.client == nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if _, err := l.database.Collection(reportCollection).InsertOne(wctx, doc); err != nil {
		log.Printf("[runlog] archive failed: %v", err)
	}
}

func (l *Ledger) Close() {
	if l.client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.client.Disconnect(ctx); err != nil {
		log.Printf("[runlog] disconnect: %v", err)
	}
}
