package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"mobilespo/internal/database"
)

// AuditRecord is one entry in the audit_log collection
type AuditRecord struct {
	ID        string                 `bson:"_id" json:"id"`
	Event     string                 `bson:"event" json:"event"`
	Category  string                 `bson:"category" json:"category"`
	Metadata  map[string]interface{} `bson:"metadata" json:"metadata"`
	CreatedAt time.Time              `bson:"createdAt" json:"createdAt"`
}

// AuditService writes audit events to the log stream and, when MongoDB is
// configured, to the audit_log collection. Record never fails the caller.
type AuditService struct {
	db      *database.MongoDB
	timeout time.Duration
}

// NewAuditService creates an audit sink. db may be nil.
func NewAuditService(db *database.MongoDB, timeout time.Duration) *AuditService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AuditService{db: db, timeout: timeout}
}

func (s *AuditService) Record(ctx context.Context, event string, metadata map[string]interface{}) {
	category, _ := metadata["category"].(string)
	if category == "" {
		category = "general"
	}

	attrs := make([]any, 0, 4+2*len(metadata))
	attrs = append(attrs, "audit_event", event, "category", category)
	for k, v := range metadata {
		if k == "category" {
			continue
		}
		attrs = append(attrs, k, v)
	}
	slog.Info("audit", attrs...)

	if s.db == nil {
		return
	}

	record := AuditRecord{
		ID:        uuid.New().String(),
		Event:     event,
		Category:  category,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if _, err := s.db.Collection(database.CollectionAuditLog).InsertOne(writeCtx, record); err != nil {
		slog.Error("failed to persist audit record", "audit_event", event, "error", err)
	}
}
