// Package medical implements the keyword classifier and the rule-based health
// assistant used by the chat API and the USSD health chat.
package medical

import (
	"strings"

	"mobilespo/internal/emergency"
	"mobilespo/internal/models"
)

// topicRule maps any of its keywords to a topic
type topicRule struct {
	topic    string
	keywords []string
}

var topicRules = []topicRule{
	{models.TopicPainManagement, []string{"pain", "hurt"}},
	{models.TopicMentalHealth, []string{"anxiety", "stress"}},
	{models.TopicIllness, []string{"fever", "sick"}},
	{models.TopicMedication, []string{"medication", "medicine"}},
	{models.TopicSleepHealth, []string{"sleep", "insomnia"}},
}

var (
	positiveWords = []string{"good", "better", "fine", "well", "happy", "improving"}
	negativeWords = []string{"bad", "worse", "terrible", "awful", "depressed", "anxious"}
)

// vocabulary is the single-word medical lexicon used to annotate messages
var vocabulary = toSet(
	// symptoms
	"pain", "headache", "fever", "nausea", "vomiting", "diarrhea", "constipation",
	"fatigue", "weakness", "dizziness", "cough", "congestion", "rash", "itching", "swelling",
	// mental health
	"anxiety", "depression", "stress", "panic", "worry", "sad", "hopeless",
	"overwhelmed", "insomnia", "irritable",
	// conditions
	"diabetes", "hypertension", "asthma", "allergies", "migraine", "arthritis",
	"stroke", "cancer", "infection", "flu", "cold",
	// body parts
	"head", "neck", "chest", "abdomen", "back", "arms", "legs", "hands", "feet",
	"heart", "lungs", "stomach", "liver", "kidneys", "brain", "eyes", "ears",
)

// Classifier annotates free text with topics, sentiment, complexity and an
// emergency assessment. It is stateless and safe for concurrent use.
type Classifier struct{}

// NewClassifier creates a classifier
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify analyses a message
func (c *Classifier) Classify(text string) models.MessageAnalysis {
	lower := strings.ToLower(text)

	return models.MessageAnalysis{
		MedicalTerms: medicalTerms(lower),
		Topics:       Topics(lower),
		Sentiment:    Sentiment(lower),
		Complexity:   Complexity(text),
		Emergency:    emergency.Detect(text),
	}
}

// Topics returns the topics whose keywords appear in text, in rule order
func Topics(text string) []string {
	lower := strings.ToLower(text)
	topics := make([]string, 0, len(topicRules))
	for _, rule := range topicRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				topics = append(topics, rule.topic)
				break
			}
		}
	}
	return topics
}

// Sentiment counts positive and negative words present in text; ties are neutral
func Sentiment(text string) models.Sentiment {
	lower := strings.ToLower(text)
	positive := countPresent(lower, positiveWords)
	negative := countPresent(lower, negativeWords)

	switch {
	case positive > negative:
		return models.SentimentPositive
	case negative > positive:
		return models.SentimentNegative
	default:
		return models.SentimentNeutral
	}
}

// Complexity grades a message by length
func Complexity(text string) models.Complexity {
	switch n := len(text); {
	case n > 200:
		return models.ComplexityHigh
	case n > 100:
		return models.ComplexityMedium
	default:
		return models.ComplexityLow
	}
}

func countPresent(text string, words []string) int {
	count := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			count++
		}
	}
	return count
}

func medicalTerms(lower string) []string {
	terms := []string{}
	for _, word := range strings.Fields(lower) {
		word = strings.Trim(word, ".,!?;:\"'()")
		if _, ok := vocabulary[word]; ok {
			terms = append(terms, word)
		}
	}
	return terms
}

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
