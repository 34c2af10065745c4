package models

import "time"

// EmergencyLevel is the severity tier of a detected crisis
type EmergencyLevel string

const (
	EmergencyNone     EmergencyLevel = "none"
	EmergencyModerate EmergencyLevel = "moderate"
	EmergencyHigh     EmergencyLevel = "high"
	EmergencyCritical EmergencyLevel = "critical"
)

// Rank orders levels: none < moderate < high < critical. Unknown levels rank -1.
func (l EmergencyLevel) Rank() int {
	switch l {
	case EmergencyNone:
		return 0
	case EmergencyModerate:
		return 1
	case EmergencyHigh:
		return 2
	case EmergencyCritical:
		return 3
	default:
		return -1
	}
}

// ResponseAction is the recommended handling for an assessment
type ResponseAction string

const (
	ActionImmediateIntervention ResponseAction = "immediate_intervention"
	ActionUrgentResponse        ResponseAction = "urgent_response"
	ActionMonitorAndSupport     ResponseAction = "monitor_and_support"
)

// EmergencyAssessment is the result of scanning free text for crisis keywords
type EmergencyAssessment struct {
	IsEmergency bool           `json:"isEmergency"`
	Level       EmergencyLevel `json:"level"`
	Keyword     string         `json:"keyword,omitempty"`
	Confidence  float64        `json:"confidence"`
	Action      ResponseAction `json:"action,omitempty"`
}

// EmergencyContact is a phone line listed inside an action step
type EmergencyContact struct {
	Name      string `json:"name"`
	Number    string `json:"number,omitempty"`
	Available string `json:"available,omitempty"`
	Note      string `json:"note,omitempty"`
}

// EmergencyActionStep is one item of an escalation action plan
type EmergencyActionStep struct {
	Type       string             `json:"type"`
	Message    string             `json:"message"`
	Priority   EmergencyLevel     `json:"priority,omitempty"`
	Contacts   []EmergencyContact `json:"contacts,omitempty"`
	Steps      []string           `json:"steps,omitempty"`
	Strategies []string           `json:"strategies,omitempty"`
}

// EmergencyResource describes a hotline
type EmergencyResource struct {
	Name        string `json:"name"`
	Number      string `json:"number"`
	Description string `json:"description"`
	Available   string `json:"available"`
}

// EmergencyResources is the full hotline block returned with every plan
type EmergencyResources struct {
	Crisis    EmergencyResource `json:"crisis"`
	Suicide   EmergencyResource `json:"suicide"`
	Emergency EmergencyResource `json:"emergency"`
	SMS       EmergencyResource `json:"sms"`
}

// EmergencyResponse is the action plan produced by the escalation engine
type EmergencyResponse struct {
	UserID        string                `json:"userId"`
	Level         EmergencyLevel        `json:"emergencyLevel"`
	Timestamp     time.Time             `json:"timestamp"`
	Resources     EmergencyResources    `json:"resources"`
	Actions       []EmergencyActionStep `json:"actions"`
	Notifications []NotificationOutcome `json:"notifications,omitempty"`
}
