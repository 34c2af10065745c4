package models

import "time"

// Sentiment is the coarse polarity of a health message
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Complexity is a length-based annotation of a message
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Medical topics recognised by the keyword classifier
const (
	TopicPainManagement = "pain_management"
	TopicMentalHealth   = "mental_health"
	TopicIllness        = "illness"
	TopicMedication     = "medication"
	TopicSleepHealth    = "sleep_health"
)

// MessageAnalysis is the keyword classifier output for one message
type MessageAnalysis struct {
	MedicalTerms []string            `json:"medicalTerms"`
	Topics       []string            `json:"topics"`
	Sentiment    Sentiment           `json:"sentiment"`
	Complexity   Complexity          `json:"complexity"`
	Emergency    EmergencyAssessment `json:"emergency"`
}

// HasTopic reports whether topic was identified
func (a MessageAnalysis) HasTopic(topic string) bool {
	for _, t := range a.Topics {
		if t == topic {
			return true
		}
	}
	return false
}

// ChatTurn is one prior message passed to the assistant as context
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// PatientContext carries optional caller details into a health query
type PatientContext struct {
	Age         int      `json:"age,omitempty"`
	Gender      string   `json:"gender,omitempty"`
	Conditions  []string `json:"conditions,omitempty"`
	Medications []string `json:"medications,omitempty"`
	Language    Language `json:"language,omitempty"`
	Interface   string   `json:"interface,omitempty"` // "chat" or "ussd"
}

// HealthQueryResult is the assistant reply for a health question
type HealthQueryResult struct {
	Response        string          `json:"response"`
	Confidence      float64         `json:"confidence"`
	IsEmergency     bool            `json:"isEmergency"`
	EmergencyLevel  EmergencyLevel  `json:"emergencyLevel"`
	MedicalTopics   []string        `json:"medicalTopics"`
	Recommendations []string        `json:"recommendations"`
	Disclaimers     []string        `json:"disclaimers"`
	Analysis        MessageAnalysis `json:"-"`
	Timestamp       time.Time       `json:"timestamp"`
}
