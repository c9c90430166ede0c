// Package mongostore keeps credentials, agents and run progress in MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/BDNK1/autoflow/runtime"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CredentialsCollection = "credentials"
	AgentsCollection      = "agents"
	RunsCollection        = "runs"
)

var (
	_ runtime.CredentialStore = (*Store)(nil)
	_ runtime.AgentRegistry   = (*Store)(nil)
	_ runtime.ProgressStore   = (*Store)(nil)
)

type Config struct {
	URI            string        `yaml:"uri" validate:"required,startswith=mongodb"`
	Database       string        `yaml:"database" default:"autoflow" validate:"required"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"10s" validate:"gte=0"`
	EnsureIndexes  bool          `yaml:"ensure_indexes" default:"true"`
}

type Store struct {
	Config Config
	client *mongo.Client
	l      *slog.Logger
}

func New(cfg Config, l *slog.Logger) *Store {
	return &Store{Config: cfg, l: l}
}

// Registry decodes nested documents into map[string]any and arrays into
// []any, the shapes the rest of the engine works with.
func Registry() *bsoncodec.Registry {
	return bson.NewRegistryBuilder().
		RegisterTypeMapEntry(bsontype.EmbeddedDocument, reflect.TypeOf(map[string]any{})).
		RegisterTypeMapEntry(bsontype.Array, reflect.TypeOf([]any{})).
		Build()
}

func (s *Store) Initialize(ctx context.Context) error {
	s.l.InfoContext(ctx, "Connecting to MongoDB", "database", s.Config.Database)

	opts := options.Client().
		ApplyURI(s.Config.URI).
		SetRegistry(Registry())
	if s.Config.ConnectTimeout > 0 {
		opts.SetServerSelectionTimeout(s.Config.ConnectTimeout)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return fmt.Errorf("mongostore: failed to connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return fmt.Errorf("mongostore: failed to ping: %w", err)
	}
	s.client = client

	if s.Config.EnsureIndexes {
		if err := s.ensureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.WithoutCancel(ctx))
			s.client = nil
			return err
		}
	}

	s.l.InfoContext(ctx, "MongoDB store initialized")
	return nil
}

func (s *Store) Shutdown(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	s.l.InfoContext(ctx, "Disconnecting from MongoDB")
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("mongostore: failed to disconnect: %w", err)
	}
	s.client = nil
	return nil
}

func (s *Store) collection(name string) *mongo.Collection {
	return s.client.Database(s.Config.Database).Collection(name)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.collection(CredentialsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "platform", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("mongostore: failed to create credential indexes: %w", err)
	}
	_, err = s.collection(RunsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "started_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("mongostore: failed to create run indexes: %w", err)
	}
	return nil
}

// credentialDocument tolerates non-string field values written by other
// tools; they are stringified on read.
type credentialDocument struct {
	UserID   string         `bson:"user_id"`
	Platform string         `bson:"platform"`
	Fields   map[string]any `bson:"fields"`
	IsActive bool           `bson:"is_active"`
}

func (d credentialDocument) record() runtime.CredentialRecord {
	return runtime.CredentialRecord{
		UserID:   d.UserID,
		Platform: d.Platform,
		Fields:   runtime.ToStringValueMap(d.Fields),
		IsActive: d.IsActive,
	}
}

func activeCredentialsFilter(userID string) bson.M {
	return bson.M{"user_id": userID, "is_active": true}
}

func (s *Store) ActiveCredentials(ctx context.Context, userID string) ([]runtime.CredentialRecord, error) {
	cur, err := s.collection(CredentialsCollection).Find(ctx, activeCredentialsFilter(userID),
		options.Find().SetSort(bson.D{{Key: "platform", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongostore: credentials query failed: %w", err)
	}
	defer cur.Close(ctx)

	var out []runtime.CredentialRecord
	for cur.Next(ctx) {
		var doc credentialDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongostore: failed to decode credentials: %w", err)
		}
		out = append(out, doc.record())
	}
	return out, cur.Err()
}

// PutCredential inserts or replaces the record for (user, platform).
func (s *Store) PutCredential(ctx context.Context, rec runtime.CredentialRecord) error {
	rec.Platform = strings.ToLower(rec.Platform)
	_, err := s.collection(CredentialsCollection).UpdateOne(ctx,
		bson.M{"user_id": rec.UserID, "platform": rec.Platform},
		bson.M{"$set": rec},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongostore: failed to save credential: %w", err)
	}
	return nil
}

func (s *Store) Agent(ctx context.Context, id string) (*runtime.Agent, error) {
	var a runtime.Agent
	err := s.collection(AgentsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, runtime.ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: agent query failed: %w", err)
	}
	return &a, nil
}

func (s *Store) PutAgent(ctx context.Context, a runtime.Agent) error {
	_, err := s.collection(AgentsCollection).ReplaceOne(ctx, bson.M{"_id": a.ID}, a,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongostore: failed to save agent: %w", err)
	}
	return nil
}

// SaveProgress upserts the run document keyed by run id.
func (s *Store) SaveProgress(ctx context.Context, p *runtime.Progress) error {
	_, err := s.collection(RunsCollection).ReplaceOne(ctx, bson.M{"_id": p.RunID}, p,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongostore: failed to save progress: %w", err)
	}
	return nil
}

func (s *Store) LoadProgress(ctx context.Context, runID string) (*runtime.Progress, error) {
	var p runtime.Progress
	err := s.collection(RunsCollection).FindOne(ctx, bson.M{"_id": runID}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, runtime.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: progress query failed: %w", err)
	}
	return &p, nil
}
