// Package emergency detects crisis language in free text and escalates it.
//
// Detection uses one keyword table per tier, shared by the REST chat path and
// the USSD gateway. Tiers are scanned strictly in order critical, high,
// moderate; the first tier with a hit wins.
package emergency

import (
	"strings"

	"mobilespo/internal/models"
)

// tier is one row of the keyword table
type tier struct {
	level      models.EmergencyLevel
	confidence float64
	action     models.ResponseAction
	keywords   []string
}

// tiers is the authoritative keyword table, most severe first
var tiers = []tier{
	{
		level:      models.EmergencyCritical,
		confidence: 0.95,
		action:     models.ActionImmediateIntervention,
		keywords: []string{
			"suicide", "kill myself", "end my life", "want to die", "better off dead",
			"overdose", "pills", "hanging", "jumping", "cutting deep",
		},
	},
	{
		level:      models.EmergencyHigh,
		confidence: 0.85,
		action:     models.ActionUrgentResponse,
		keywords: []string{
			"hurt myself", "self harm", "self-harm", "cutting", "burning myself",
			"chest pain", "can't breathe", "cannot breathe", "heart attack", "stroke", "seizure",
		},
	},
	{
		level:      models.EmergencyModerate,
		confidence: 0.75,
		action:     models.ActionMonitorAndSupport,
		keywords: []string{
			"emergency", "urgent", "crisis", "help me", "severe pain",
			"bleeding", "unconscious", "allergic reaction", "poisoning",
		},
	},
}

var apostrophes = strings.NewReplacer("’", "'", "‘", "'", "`", "'")

// Detect scans text for crisis keywords. Matching is case-insensitive
// substring containment; typographic apostrophes are folded to ASCII.
func Detect(text string) models.EmergencyAssessment {
	normalized := apostrophes.Replace(strings.ToLower(text))

	for _, t := range tiers {
		for _, keyword := range t.keywords {
			if strings.Contains(normalized, keyword) {
				return models.EmergencyAssessment{
					IsEmergency: true,
					Level:       t.level,
					Keyword:     keyword,
					Confidence:  t.confidence,
					Action:      t.action,
				}
			}
		}
	}

	return models.EmergencyAssessment{
		IsEmergency: false,
		Level:       models.EmergencyNone,
		Confidence:  0,
	}
}

// Keywords returns a copy of the keyword list for a level
func Keywords(level models.EmergencyLevel) []string {
	for _, t := range tiers {
		if t.level == level {
			return append([]string(nil), t.keywords...)
		}
	}
	return nil
}
