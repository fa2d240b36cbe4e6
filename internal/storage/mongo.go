package storage

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/intelliw/LSAssetDataService/internal/etl"
)

// ── MongoDB ────────────────────────────────────────────────

const (
	defaultMongoDatabase   = "lsassetdata"
	defaultMongoCollection = "run_logs"
	mongoConnectTimeout    = 10 * time.Second
)

// MongoRunLogStore implements RunLogStore on a MongoDB collection, for
// sites that keep service history centrally.
type MongoRunLogStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoRunLogStore connects to uri and prepares the run log collection.
func NewMongoRunLogStore(ctx context.Context, uri, database, collection string) (*MongoRunLogStore, error) {
	if database == "" {
		database = defaultMongoDatabase
	}
	if collection == "" {
		collection = defaultMongoCollection
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", RedactURI(uri), err)
	}

	ctx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping %s: %w", RedactURI(uri), err)
	}

	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "job", Value: 1}, {Key: "started_at", Value: -1}},
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &MongoRunLogStore{client: client, coll: coll}, nil
}

func (s *MongoRunLogStore) Save(ctx context.Context, l *etl.RunLog) error {
	prepare(l)
	_, err := s.coll.InsertOne(ctx, l)
	return err
}

func (s *MongoRunLogStore) List(ctx context.Context, job string, limit int) ([]etl.RunLog, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}}).
		SetLimit(int64(listLimit(limit)))
	cur, err := s.coll.Find(ctx, bson.D{{Key: "job", Value: job}}, opts)
	if err != nil {
		return nil, err
	}
	var logs []etl.RunLog
	if err := cur.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *MongoRunLogStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// RedactURI masks the password in a connection string for logging.
func RedactURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "<invalid uri>"
	}
	return u.Redacted()
}
