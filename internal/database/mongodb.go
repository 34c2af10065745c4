package database

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoDB wraps the MongoDB client and database
type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
	dbName   string
}

// Collection names
const (
	CollectionUsers         = "users"
	CollectionConversations = "conversations"
	CollectionAuditLog      = "audit_log"
)

// DefaultDatabase is used when the URI names no database
const DefaultDatabase = "mobilespo"

// auditRetention is how long audit records are kept
const auditRetention = 365 * 24 * time.Hour

// NewMongoDB creates a new MongoDB connection with connection pooling
func NewMongoDB(uri string) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(30 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dbName := extractDBName(uri)

	db := &MongoDB{
		client:   client,
		database: client.Database(dbName),
		dbName:   dbName,
	}

	log.Printf("✅ Connected to MongoDB database: %s", dbName)

	return db, nil
}

// extractDBName returns the path component of a MongoDB URI:
// mongodb://localhost:27017/mobilespo?authSource=admin -> mobilespo
func extractDBName(uri string) string {
	rest := uri
	if i := strings.Index(rest, "://"); i != -1 {
		rest = rest[i+3:]
	}
	if i := strings.IndexByte(rest, '?'); i != -1 {
		rest = rest[:i]
	}

	slash := strings.IndexByte(rest, '/')
	if slash == -1 || slash == len(rest)-1 {
		return DefaultDatabase
	}
	return rest[slash+1:]
}

// Initialize creates indexes for all collections
func (m *MongoDB) Initialize(ctx context.Context) error {
	log.Println("📦 Initializing MongoDB indexes...")

	if err := m.createIndexes(ctx, CollectionUsers, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "profile.phoneNumber", Value: 1}}, Options: options.Index().SetSparse(true)},
	}); err != nil {
		return fmt.Errorf("failed to create users indexes: %w", err)
	}

	if err := m.createIndexes(ctx, CollectionConversations, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "isActive", Value: 1}, {Key: "updatedAt", Value: -1}}}, // List user's conversations by recency
		{Keys: bson.D{{Key: "emergency", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("failed to create conversations indexes: %w", err)
	}

	if err := m.createIndexes(ctx, CollectionAuditLog, []mongo.IndexModel{
		{Keys: bson.D{{Key: "category", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "createdAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(int32(auditRetention.Seconds()))},
	}); err != nil {
		return fmt.Errorf("failed to create audit_log indexes: %w", err)
	}

	log.Println("✅ MongoDB indexes initialized")
	return nil
}

func (m *MongoDB) createIndexes(ctx context.Context, collectionName string, indexes []mongo.IndexModel) error {
	collection := m.database.Collection(collectionName)
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// Collection returns a collection handle
func (m *MongoDB) Collection(name string) *mongo.Collection {
	return m.database.Collection(name)
}

// Close closes the MongoDB connection
func (m *MongoDB) Close(ctx context.Context) error {
	log.Println("🔌 Closing MongoDB connection...")
	return m.client.Disconnect(ctx)
}

// Ping checks if the database connection is alive
func (m *MongoDB) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}
