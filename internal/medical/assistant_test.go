package medical

import (
	"context"
	"errors"
	"strings"
	"testing"

	"mobilespo/internal/models"
)

func TestProcessQueryTopicPriority(t *testing.T) {
	assistant := NewAssistant(10)

	tests := []struct {
		name    string
		message string
		prefix  string
	}{
		{"mental health beats pain", "stress gives me pain", "It's great that you're taking care"},
		{"negative mental health", "my anxiety is terrible", "I understand you're going through a difficult time"},
		{"pain", "my knee hurts", "I understand you're experiencing pain"},
		{"illness", "I have a fever", "I'm sorry to hear you're not feeling well"},
		{"general", "how do I stay healthy", "Thank you for reaching out about your health"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := assistant.ProcessQuery(context.Background(), tt.message, nil, models.PatientContext{})
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !strings.HasPrefix(result.Response, tt.prefix) {
				t.Errorf("Expected reply starting with %q, got %q", tt.prefix, result.Response)
			}
			if result.Confidence != 0.8 {
				t.Errorf("Expected confidence 0.8, got %v", result.Confidence)
			}
			if len(result.Disclaimers) != 4 {
				t.Errorf("Expected 4 disclaimers, got %d", len(result.Disclaimers))
			}
			if len(result.Recommendations) != 2 {
				t.Errorf("Expected 2 recommendations, got %d", len(result.Recommendations))
			}
		})
	}
}

func TestProcessQueryFlagsEmergency(t *testing.T) {
	result, err := NewAssistant(10).ProcessQuery(context.Background(), "I want to kill myself", nil, models.PatientContext{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !result.IsEmergency || result.EmergencyLevel != models.EmergencyCritical {
		t.Errorf("Expected critical emergency, got %v/%s", result.IsEmergency, result.EmergencyLevel)
	}
}

func TestProcessQueryFollowUpUsesHistory(t *testing.T) {
	history := []models.ChatTurn{
		{Role: "user", Content: "I have a fever"},
		{Role: "assistant", Content: "I'm sorry to hear that"},
	}

	result, err := NewAssistant(10).ProcessQuery(context.Background(), "it started yesterday", history, models.PatientContext{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.HasPrefix(result.Response, "I'm sorry to hear you're not feeling well") {
		t.Errorf("Expected illness reply for follow-up, got %q", result.Response)
	}
	if len(result.MedicalTopics) != 0 {
		t.Errorf("Expected reported topics to describe the message only, got %v", result.MedicalTopics)
	}
}

func TestProcessQueryRejectsEmpty(t *testing.T) {
	_, err := NewAssistant(10).ProcessQuery(context.Background(), "   ", nil, models.PatientContext{})
	if !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("Expected ErrEmptyQuery, got %v", err)
	}
}

func TestProcessQueryHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewAssistant(10).ProcessQuery(ctx, "hello", nil, models.PatientContext{}); err == nil {
		t.Fatal("Expected error for cancelled context")
	}
}
