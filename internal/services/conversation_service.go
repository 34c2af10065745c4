package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mobilespo/internal/crypto"
	"mobilespo/internal/database"
	"mobilespo/internal/models"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
)

// ConversationService persists health chat threads. Message text is
// encrypted per user when an encryption service is configured.
type ConversationService struct {
	collection *mongo.Collection
	encryption *crypto.EncryptionService
	now        func() time.Time
}

// NewConversationService creates a conversation service. encryption may be nil.
func NewConversationService(db *database.MongoDB, encryption *crypto.EncryptionService) *ConversationService {
	if encryption == nil {
		log.Println("⚠️  [CONVERSATION] ENCRYPTION_MASTER_KEY not set, conversations stored in plaintext")
	}
	return &ConversationService{
		collection: db.Collection(database.CollectionConversations),
		encryption: encryption,
		now:        time.Now,
	}
}

// SaveExchange appends a user message and the assistant reply. An empty
// conversationID starts a new conversation.
func (s *ConversationService) SaveExchange(ctx context.Context, userID, conversationID, userMessage, reply string, meta *models.MessageMetadata) (*models.Conversation, error) {
	now := s.now().UTC()

	userTurn, err := s.newMessage(userID, "user", userMessage, nil, now)
	if err != nil {
		return nil, err
	}
	assistantTurn, err := s.newMessage(userID, "assistant", reply, meta, now)
	if err != nil {
		return nil, err
	}
	emergency := meta != nil && meta.IsEmergency

	if conversationID == "" {
		conv := &models.Conversation{
			ID:        primitive.NewObjectID(),
			UserID:    userID,
			Title:     "Health chat " + now.Format("2 Jan 2006"),
			Messages:  []models.ConversationMessage{userTurn, assistantTurn},
			Emergency: emergency,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err := s.collection.InsertOne(ctx, conv); err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
		return conv, nil
	}

	oid, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return nil, ErrConversationNotFound
	}

	set := bson.M{"updatedAt": now}
	if emergency {
		set["emergency"] = true
	}

	var conv models.Conversation
	err = s.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": oid, "userId": userID, "isActive": true},
		bson.M{
			"$push": bson.M{"messages": bson.M{"$each": []models.ConversationMessage{userTurn, assistantTurn}}},
			"$set":  set,
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&conv)
	if err == mongo.ErrNoDocuments {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to append to conversation: %w", err)
	}
	return &conv, nil
}

func (s *ConversationService) newMessage(userID, role, content string, meta *models.MessageMetadata, now time.Time) (models.ConversationMessage, error) {
	msg := models.ConversationMessage{
		ID:        primitive.NewObjectID(),
		Role:      role,
		Content:   content,
		Metadata:  meta,
		CreatedAt: now,
	}
	if s.encryption != nil {
		sealed, err := s.encryption.EncryptString(userID, content)
		if err != nil {
			return msg, fmt.Errorf("failed to encrypt message: %w", err)
		}
		msg.Content = sealed
		msg.Encrypted = true
	}
	return msg, nil
}

// Get returns a conversation with decrypted messages
func (s *ConversationService) Get(ctx context.Context, userID, conversationID string) (*models.Conversation, error) {
	oid, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return nil, ErrConversationNotFound
	}

	var conv models.Conversation
	err = s.collection.FindOne(ctx, bson.M{"_id": oid, "userId": userID, "isActive": true}).Decode(&conv)
	if err == mongo.ErrNoDocuments {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	if err := s.decrypt(userID, conv.Messages); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *ConversationService) decrypt(userID string, messages []models.ConversationMessage) error {
	for i := range messages {
		if !messages[i].Encrypted {
			continue
		}
		if s.encryption == nil {
			return errors.New("conversation is encrypted but no encryption key is configured")
		}
		plain, err := s.encryption.DecryptString(userID, messages[i].Content)
		if err != nil {
			return fmt.Errorf("failed to decrypt message: %w", err)
		}
		messages[i].Content = plain
		messages[i].Encrypted = false
	}
	return nil
}

// History returns up to limit most recent turns for the assistant
func (s *ConversationService) History(ctx context.Context, userID, conversationID string, limit int) ([]models.ChatTurn, error) {
	conv, err := s.Get(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	messages := conv.Messages
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}

	turns := make([]models.ChatTurn, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, models.ChatTurn{Role: m.Role, Content: m.Content})
	}
	return turns, nil
}

// List returns a page of the user's active conversations, most recent first
func (s *ConversationService) List(ctx context.Context, userID string, page, limit int) ([]models.ConversationSummary, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))

	cursor, err := s.collection.Find(ctx, bson.M{"userId": userID, "isActive": true}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer cursor.Close(ctx)

	var conversations []models.Conversation
	if err := cursor.All(ctx, &conversations); err != nil {
		return nil, fmt.Errorf("failed to decode conversations: %w", err)
	}

	summaries := make([]models.ConversationSummary, 0, len(conversations))
	for _, c := range conversations {
		summaries = append(summaries, models.ConversationSummary{
			ID:            c.ID.Hex(),
			Title:         c.Title,
			MessageCount:  len(c.Messages),
			Emergency:     c.Emergency,
			LastMessageAt: c.UpdatedAt,
		})
	}
	return summaries, nil
}

// Count returns the number of the user's active conversations
func (s *ConversationService) Count(ctx context.Context, userID string) (int64, error) {
	n, err := s.collection.CountDocuments(ctx, bson.M{"userId": userID, "isActive": true})
	if err != nil {
		return 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return n, nil
}

// Delete soft-deletes a conversation
func (s *ConversationService) Delete(ctx context.Context, userID, conversationID string) error {
	oid, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return ErrConversationNotFound
	}

	result, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": oid, "userId": userID, "isActive": true},
		bson.M{"$set": bson.M{"isActive": false, "updatedAt": s.now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// AddFeedback attaches a rating to an assistant message
func (s *ConversationService) AddFeedback(ctx context.Context, userID, conversationID, messageID string, rating int, comment string) error {
	convID, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return ErrConversationNotFound
	}
	msgID, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return ErrMessageNotFound
	}

	feedback := models.MessageFeedback{Rating: rating, Comment: comment, CreatedAt: s.now().UTC()}
	result, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": convID, "userId": userID, "isActive": true, "messages._id": msgID},
		bson.M{"$set": bson.M{"messages.$.feedback": feedback}},
	)
	if err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrMessageNotFound
	}
	return nil
}
