package medical

import (
	"reflect"
	"strings"
	"testing"

	"mobilespo/internal/models"
)

func TestTopicsInRuleOrder(t *testing.T) {
	got := Topics("I can't sleep because of stress and back pain")
	expected := []string{models.TopicPainManagement, models.TopicMentalHealth, models.TopicSleepHealth}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestTopicsEmpty(t *testing.T) {
	if got := Topics("hello there"); len(got) != 0 {
		t.Errorf("Expected no topics, got %v", got)
	}
}

func TestSentiment(t *testing.T) {
	tests := []struct {
		text     string
		expected models.Sentiment
	}{
		{"I feel much better today", models.SentimentPositive},
		{"Everything is terrible and I feel awful", models.SentimentNegative},
		{"I feel good but also bad", models.SentimentNeutral},
		{"what time is it", models.SentimentNeutral},
	}

	for _, tt := range tests {
		if got := Sentiment(tt.text); got != tt.expected {
			t.Errorf("Sentiment(%q): expected %s, got %s", tt.text, tt.expected, got)
		}
	}
}

func TestComplexity(t *testing.T) {
	if got := Complexity(strings.Repeat("a", 100)); got != models.ComplexityLow {
		t.Errorf("Expected low at 100 chars, got %s", got)
	}
	if got := Complexity(strings.Repeat("a", 101)); got != models.ComplexityMedium {
		t.Errorf("Expected medium at 101 chars, got %s", got)
	}
	if got := Complexity(strings.Repeat("a", 201)); got != models.ComplexityHigh {
		t.Errorf("Expected high at 201 chars, got %s", got)
	}
}

func TestClassifyIncludesEmergencyAndTerms(t *testing.T) {
	analysis := NewClassifier().Classify("My chest hurts, I think it's a heart attack.")

	if !analysis.Emergency.IsEmergency || analysis.Emergency.Level != models.EmergencyHigh {
		t.Errorf("Expected high emergency, got %+v", analysis.Emergency)
	}
	if !analysis.HasTopic(models.TopicPainManagement) {
		t.Errorf("Expected pain_management topic from 'hurts', got %v", analysis.Topics)
	}
	if !reflect.DeepEqual(analysis.MedicalTerms, []string{"chest", "heart"}) {
		t.Errorf("Expected medical terms [chest heart], got %v", analysis.MedicalTerms)
	}
}
