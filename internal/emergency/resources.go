package emergency

import (
	"mobilespo/internal/config"
	"mobilespo/internal/models"
)

// Resources builds the hotline block from configured numbers
func Resources(cfg *config.Config) models.EmergencyResources {
	return models.EmergencyResources{
		Crisis: models.EmergencyResource{
			Name:        "Crisis Helpline",
			Number:      cfg.EmergencyCrisisLine,
			Description: "Free 24/7 mental health crisis support",
			Available:   "24/7",
		},
		Suicide: models.EmergencyResource{
			Name:        "Suicide Prevention Lifeline",
			Number:      cfg.EmergencySuicidePrevention,
			Description: "Immediate suicide prevention support",
			Available:   "24/7",
		},
		Emergency: models.EmergencyResource{
			Name:        "Emergency Services",
			Number:      cfg.EmergencyServices,
			Description: "Police, ambulance, fire services",
			Available:   "24/7",
		},
		SMS: models.EmergencyResource{
			Name:        "SMS Counseling",
			Number:      cfg.EmergencySMS,
			Description: `Text "Hi" for confidential support`,
			Available:   "24/7",
		},
	}
}

// ActionPlan returns the fixed action steps for a level, or nil for none/unknown
func ActionPlan(level models.EmergencyLevel, res models.EmergencyResources) []models.EmergencyActionStep {
	switch level {
	case models.EmergencyCritical:
		return []models.EmergencyActionStep{
			{
				Type:     "immediate_intervention",
				Message:  "🚨 IMMEDIATE HELP NEEDED - You are not alone. Please reach out for help right now.",
				Priority: models.EmergencyCritical,
			},
			{
				Type:    "emergency_contacts",
				Message: "Please call one of these numbers immediately:",
				Contacts: []models.EmergencyContact{
					contactFor(res.Suicide, ""),
					contactFor(res.Crisis, ""),
					contactFor(res.Emergency, ""),
				},
			},
			{
				Type:    "safety_plan",
				Message: "If you are in immediate danger, please:",
				Steps: []string{
					"Call emergency services (" + res.Emergency.Number + ") immediately",
					"Go to your nearest hospital emergency room",
					"Call a trusted friend or family member",
					"Remove any means of self-harm from your immediate area",
				},
			},
		}

	case models.EmergencyHigh:
		return []models.EmergencyActionStep{
			{
				Type:     "urgent_support",
				Message:  "I'm concerned about you. Please consider reaching out for professional help.",
				Priority: models.EmergencyHigh,
			},
			{
				Type:    "crisis_resources",
				Message: "Here are some resources that can help:",
				Contacts: []models.EmergencyContact{
					contactFor(res.Crisis, ""),
					contactFor(res.SMS, `Text "Hi"`),
				},
			},
			{
				Type:    "safety_check",
				Message: "Are you in a safe place right now? Do you have someone you can talk to?",
			},
		}

	case models.EmergencyModerate:
		return []models.EmergencyActionStep{
			{
				Type:     "supportive_response",
				Message:  "I understand you're going through a difficult time. Help is available.",
				Priority: models.EmergencyModerate,
			},
			{
				Type:    "resources",
				Message: "Consider these support options:",
				Contacts: []models.EmergencyContact{
					contactFor(res.Crisis, ""),
					{Name: "Mental Health Support", Note: "Speak with a healthcare provider"},
				},
			},
			{
				Type:    "coping_strategies",
				Message: "Some immediate coping strategies:",
				Strategies: []string{
					"Take slow, deep breaths",
					"Reach out to a trusted friend or family member",
					"Consider professional counseling",
					"Use grounding techniques (5-4-3-2-1 method)",
				},
			},
		}
	}

	return nil
}

func contactFor(r models.EmergencyResource, note string) models.EmergencyContact {
	return models.EmergencyContact{
		Name:      r.Name,
		Number:    r.Number,
		Available: r.Available,
		Note:      note,
	}
}
