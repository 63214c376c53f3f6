package mongodb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ezbox-project/go-ezcfg/internal/storage"
	"github.com/ezbox-project/go-ezcfg/pkg/config"
)

// commitRecord is one committed snapshot of the NVRAM.
type commitRecord struct {
	CreatedAt time.Time       `bson:"created_at"`
	Entries   []storage.Entry `bson:"entries"`
}

// Store implements MongoDB storage
type Store struct {
	client   *mongo.Client
	database *mongo.Database
	cfg      *config.MongoDBConfig
	total    int

	entries *mongo.Collection
	commits *mongo.Collection

	mu   sync.Mutex
	used int

	sockMu sync.Mutex
}

// NewStore creates a new MongoDB store. An empty nvram collection is
// restored from the latest commit.
func NewStore(ctx context.Context, cfg *config.MongoDBConfig, totalSpace int) (*Store, error) {
	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(time.Duration(cfg.Timeout) * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	database := client.Database(cfg.Database)
	s := &Store{
		client:   client,
		database: database,
		cfg:      cfg,
		total:    totalSpace,
		entries:  database.Collection("nvram"),
		commits:  database.Collection("nvram_commits"),
	}

	if err := s.createIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	if err := s.load(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	_, err := s.commits.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: -1}},
	})
	return err
}

func (s *Store) load(ctx context.Context) error {
	entries, err := s.List(ctx)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		var rec commitRecord
		opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
		err := s.commits.FindOne(ctx, bson.M{}, opts).Decode(&rec)
		switch {
		case err == mongo.ErrNoDocuments:
		case err != nil:
			return storage.BackendError("load", err)
		case len(rec.Entries) > 0:
			docs := make([]interface{}, len(rec.Entries))
			for i, e := range rec.Entries {
				docs[i] = e
			}
			if _, err := s.entries.InsertMany(ctx, docs); err != nil {
				return storage.BackendError("restore", err)
			}
			entries = rec.Entries
		}
	}

	used := storage.UsedSpace(entries)
	if used > s.total {
		return fmt.Errorf("stored entries need %d bytes: %w", used, storage.ErrNoSpace)
	}
	s.used = used
	return nil
}

func (s *Store) Get(ctx context.Context, name string) (string, error) {
	var e storage.Entry
	err := s.entries.FindOne(ctx, bson.M{"_id": name}).Decode(&e)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return "", storage.ErrNotFound
		}
		return "", storage.BackendError("get", err)
	}
	return e.Value, nil
}

func (s *Store) Set(ctx context.Context, name, value string) error {
	if err := storage.Validate(name, value); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	used := s.used + storage.EntrySize(name, value)
	old, err := s.Get(ctx, name)
	switch {
	case err == nil:
		used -= storage.EntrySize(name, old)
	case err != storage.ErrNotFound:
		return err
	}
	if used > s.total {
		return storage.ErrNoSpace
	}

	_, err = s.entries.ReplaceOne(ctx, bson.M{"_id": name},
		storage.Entry{Name: name, Value: value}, options.Replace().SetUpsert(true))
	if err != nil {
		return storage.BackendError("set", err)
	}
	s.used = used
	return nil
}

func (s *Store) Unset(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var e storage.Entry
	err := s.entries.FindOneAndDelete(ctx, bson.M{"_id": name}).Decode(&e)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return storage.ErrNotFound
		}
		return storage.BackendError("unset", err)
	}
	s.used -= storage.EntrySize(e.Name, e.Value)
	return nil
}

func (s *Store) List(ctx context.Context) ([]storage.Entry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.entries.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, storage.BackendError("list", err)
	}
	defer cursor.Close(ctx)

	entries := []storage.Entry{}
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, storage.BackendError("list", err)
	}
	return entries, nil
}

// Commit stores a snapshot of every entry in the nvram_commits collection.
func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.List(ctx)
	if err != nil {
		return err
	}
	_, err = s.commits.InsertOne(ctx, commitRecord{CreatedAt: time.Now().UTC(), Entries: entries})
	if err != nil {
		return storage.BackendError("commit", err)
	}
	return nil
}

func (s *Store) Info(ctx context.Context) (*storage.Info, error) {
	s.mu.Lock()
	used := s.used
	s.mu.Unlock()

	return &storage.Info{
		Version:    storage.Version,
		TotalSpace: s.total,
		FreeSpace:  s.total - used,
		UsedSpace:  used,
		Storage: []storage.StorageInfo{
			{Backend: "mongodb", Coding: "bson", Path: s.cfg.Database + "/nvram"},
		},
	}, nil
}

func (s *Store) InsertSocket(ctx context.Context, entries []storage.Entry) error {
	s.sockMu.Lock()
	defer s.sockMu.Unlock()

	_, err := storage.InsertSocket(ctx, s, entries)
	return err
}

func (s *Store) RemoveSocket(ctx context.Context, entries []storage.Entry) error {
	s.sockMu.Lock()
	defer s.sockMu.Unlock()

	_, err := storage.RemoveSocket(ctx, s, entries)
	return err
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}
