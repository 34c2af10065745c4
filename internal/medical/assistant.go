package medical

import (
	"context"
	"errors"
	"strings"
	"time"

	"mobilespo/internal/models"
)

// ErrEmptyQuery is returned for blank messages
var ErrEmptyQuery = errors.New("health query is empty")

const defaultConfidence = 0.8

var disclaimers = []string{
	"This AI assistant provides general health information only and is not a substitute for professional medical advice.",
	"Always consult with a qualified healthcare provider for medical concerns.",
	"In case of emergency, contact your local emergency services immediately.",
	"This information is processed locally to protect your privacy.",
}

const (
	replyMentalHealthNegative = "I understand you're going through a difficult time. It's important to know that you're not alone, and there are people who want to help. Would you like to talk about what's been troubling you? Remember, seeking professional help is a sign of strength, not weakness."
	replyMentalHealth         = "It's great that you're taking care of your mental health. Mental wellness is just as important as physical health. What specific aspects of your mental health would you like to discuss?"
	replyPain                 = "I understand you're experiencing pain, which can be very challenging. Pain can have many causes and affects everyone differently. Can you describe the type of pain you're experiencing and when it started? This information can help determine the best approach for management."
	replyIllness              = "I'm sorry to hear you're not feeling well. Many illnesses are common and treatable, but it's important to monitor your symptoms. Can you tell me more about what symptoms you're experiencing and how long you've had them?"
	replyGeneral              = "Thank you for reaching out about your health. I'm here to provide general health information and support. What specific health topic would you like to discuss today?"
)

// Assistant produces rule-based replies to health questions. All processing
// is local; no message leaves the process.
type Assistant struct {
	classifier *Classifier
	maxHistory int
	now        func() time.Time
}

// NewAssistant creates an assistant that considers at most maxHistory prior turns
func NewAssistant(maxHistory int) *Assistant {
	if maxHistory <= 0 {
		maxHistory = 50
	}
	return &Assistant{
		classifier: NewClassifier(),
		maxHistory: maxHistory,
		now:        time.Now,
	}
}

// Disclaimers returns the disclaimers attached to every reply
func Disclaimers() []string {
	return append([]string(nil), disclaimers...)
}

// ProcessQuery classifies message and builds a reply. When the message itself
// names no topic, the topics of the latest prior user turn are used so that
// short follow-ups ("it started yesterday") stay on subject.
func (a *Assistant) ProcessQuery(ctx context.Context, message string, history []models.ChatTurn, patient models.PatientContext) (*models.HealthQueryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyQuery
	}

	analysis := a.classifier.Classify(message)

	replyAnalysis := analysis
	if len(replyAnalysis.Topics) == 0 {
		if previous := a.lastUserTurn(history); previous != "" {
			replyAnalysis.Topics = Topics(previous)
		}
	}

	reply, recommendations := generateReply(replyAnalysis)

	return &models.HealthQueryResult{
		Response:        reply,
		Confidence:      defaultConfidence,
		IsEmergency:     analysis.Emergency.IsEmergency,
		EmergencyLevel:  analysis.Emergency.Level,
		MedicalTopics:   analysis.Topics,
		Recommendations: recommendations,
		Disclaimers:     Disclaimers(),
		Analysis:        analysis,
		Timestamp:       a.now().UTC(),
	}, nil
}

// FallbackResult is the reply used when processing fails
func FallbackResult(now time.Time) *models.HealthQueryResult {
	return &models.HealthQueryResult{
		Response:        "I apologize, but I'm having trouble processing your request right now. For immediate health concerns, please contact a healthcare professional or emergency services.",
		Confidence:      0,
		IsEmergency:     false,
		EmergencyLevel:  models.EmergencyNone,
		MedicalTopics:   []string{},
		Recommendations: []string{"Contact a healthcare provider for medical concerns"},
		Disclaimers:     Disclaimers(),
		Timestamp:       now.UTC(),
	}
}

func (a *Assistant) lastUserTurn(history []models.ChatTurn) string {
	if len(history) > a.maxHistory {
		history = history[len(history)-a.maxHistory:]
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "user" {
			return history[i].Content
		}
	}
	return ""
}

// generateReply picks a template by topic priority: mental health, pain, illness, general
func generateReply(analysis models.MessageAnalysis) (string, []string) {
	switch {
	case analysis.HasTopic(models.TopicMentalHealth):
		reply := replyMentalHealth
		if analysis.Sentiment == models.SentimentNegative {
			reply = replyMentalHealthNegative
		}
		return reply, []string{
			"Consider speaking with a mental health professional",
			"Practice stress-reduction techniques",
		}
	case analysis.HasTopic(models.TopicPainManagement):
		return replyPain, []string{
			"Monitor pain levels and triggers",
			"Consider consulting a healthcare provider if pain persists",
		}
	case analysis.HasTopic(models.TopicIllness):
		return replyIllness, []string{
			"Rest and stay hydrated",
			"Monitor symptoms and seek medical care if they worsen",
		}
	default:
		return replyGeneral, []string{
			"Maintain a healthy lifestyle",
			"Regular check-ups with healthcare providers are important",
		}
	}
}
