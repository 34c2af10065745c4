package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Conversation is a persisted health chat thread
type Conversation struct {
	ID        primitive.ObjectID    `bson:"_id,omitempty" json:"id"`
	UserID    string                `bson:"userId" json:"userId"`
	Title     string                `bson:"title" json:"title"`
	Messages  []ConversationMessage `bson:"messages" json:"messages"`
	Emergency bool                  `bson:"emergency" json:"emergency"` // any turn was flagged
	IsActive  bool                  `bson:"isActive" json:"-"`
	CreatedAt time.Time             `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time             `bson:"updatedAt" json:"updatedAt"`
}

// ConversationMessage is one turn. Content is ciphertext when Encrypted is set.
type ConversationMessage struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	Role      string             `bson:"role" json:"role"` // "user" or "assistant"
	Content   string             `bson:"content" json:"content"`
	Encrypted bool               `bson:"encrypted" json:"-"`
	Metadata  *MessageMetadata   `bson:"metadata,omitempty" json:"metadata,omitempty"`
	Feedback  *MessageFeedback   `bson:"feedback,omitempty" json:"feedback,omitempty"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}

// MessageMetadata records the classifier output for an assistant turn
type MessageMetadata struct {
	Confidence      float64        `bson:"confidence" json:"confidence"`
	MedicalTopics   []string       `bson:"medicalTopics" json:"medicalTopics"`
	IsEmergency     bool           `bson:"isEmergency" json:"isEmergency"`
	EmergencyLevel  EmergencyLevel `bson:"emergencyLevel" json:"emergencyLevel"`
	Recommendations []string       `bson:"recommendations" json:"recommendations"`
}

// MessageFeedback is the user's rating of an assistant turn
type MessageFeedback struct {
	Rating    int       `bson:"rating" json:"rating"`
	Comment   string    `bson:"comment,omitempty" json:"comment,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// ConversationSummary is the list view of a conversation
type ConversationSummary struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	MessageCount  int       `json:"messageCount"`
	Emergency     bool      `json:"emergency"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}

// ChatMessageRequest is the body of POST /chat/message and /chat/test
type ChatMessageRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
}

// ChatFeedbackRequest is the body of POST /chat/feedback
type ChatFeedbackRequest struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Rating         int    `json:"rating"`
	Feedback       string `json:"feedback,omitempty"`
}
