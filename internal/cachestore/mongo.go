package cachestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"edgecache/internal/core"
)

const mongoCollection = "cache_entries"

// mongoEntry is the document shape stored in MongoDB.
type mongoEntry struct {
	ID        string `bson:"_id"`
	Namespace string `bson:"namespace"`
	URL       string `bson:"url"`
	Data      []byte `bson:"data"`
}

// MongoStore implements Store on MongoDB.
type MongoStore struct {
	client   *mongo.Client
	coll     *mongo.Collection
	compress bool
}

// NewMongoStore connects to MongoDB and verifies the connection.
func NewMongoStore(ctx context.Context, url, database string, compress bool) (*MongoStore, error) {
	if url == "" {
		return nil, fmt.Errorf("MongoDB URL is required")
	}
	if database == "" {
		database = "edgecache"
	}

	clientOpts := options.Client().ApplyURI(url)
	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	coll := client.Database(database).Collection(mongoCollection)

	// Index on namespace for sweep enumeration
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "namespace", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create namespace index: %w", err)
	}

	return &MongoStore{client: client, coll: coll, compress: compress}, nil
}

func mongoID(namespace, url string) string {
	return namespace + ":" + entryKey(url)
}

// Get retrieves a snapshot.
func (s *MongoStore) Get(ctx context.Context, namespace, url string) (*core.Response, error) {
	var entry mongoEntry
	err := s.coll.FindOne(ctx, bson.M{"_id": mongoID(namespace, url)}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil // miss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cache entry: %w", err)
	}
	return decodeEntry(entry.Data)
}

// Set upserts a snapshot.
func (s *MongoStore) Set(ctx context.Context, namespace, url string, resp *core.Response) error {
	data, err := encodeEntry(resp, s.compress)
	if err != nil {
		return err
	}
	entry := mongoEntry{
		ID:        mongoID(namespace, url),
		Namespace: namespace,
		URL:       url,
		Data:      data,
	}
	_, err = s.coll.ReplaceOne(ctx, bson.M{"_id": entry.ID}, entry, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// Delete removes one entry.
func (s *MongoStore) Delete(ctx context.Context, namespace, url string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": mongoID(namespace, url)}); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Namespaces lists distinct namespaces with entries.
func (s *MongoStore) Namespaces(ctx context.Context) ([]string, error) {
	values, err := s.coll.Distinct(ctx, "namespace", bson.M{}).Raw()
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}

	elements, err := values.Values()
	if err != nil {
		return nil, fmt.Errorf("failed to decode namespaces: %w", err)
	}
	names := make([]string, 0, len(elements))
	for _, v := range elements {
		if name, ok := v.StringValueOK(); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

// DeleteNamespace removes every entry under the namespace.
func (s *MongoStore) DeleteNamespace(ctx context.Context, namespace string) error {
	if _, err := s.coll.DeleteMany(ctx, bson.M{"namespace": namespace}); err != nil {
		return fmt.Errorf("failed to delete namespace %s: %w", namespace, err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	if s.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.client.Disconnect(ctx)
	}
	return nil
}
