package screening

import (
	"fmt"
	"strings"

	"harmoni/internal/models"
)

// Interpret renders the one-line summary shown after a submission.
func Interpret(severity models.Severity, risk models.RiskLevel) string {
	label := strings.ToLower(strings.ReplaceAll(string(severity), "_", " "))
	text := fmt.Sprintf("Your responses suggest %s depression symptoms.", label)
	if risk.IsHigh() {
		text += " We recommend speaking with a mental health professional as soon as possible."
	}
	return text
}

var severityRecommendations = map[models.Severity][]string{
	models.SeverityMinimal: {
		"Continue maintaining your mental health with regular self-care",
		"Stay connected with friends and family",
	},
	models.SeverityMild: {
		"Consider talking to a counselor or therapist",
		"Practice stress management techniques",
		"Maintain regular exercise and sleep schedule",
	},
	models.SeverityModerate: {
		"We recommend speaking with a mental health professional",
		"Consider therapy or counseling",
		"Discuss your symptoms with your primary care doctor",
	},
	models.SeverityModeratelySevere: {
		"Seek professional mental health treatment immediately",
		"Consider both therapy and medication options",
		"Build a strong support system",
	},
	models.SeveritySevere: {
		"Seek professional mental health treatment immediately",
		"Consider both therapy and medication options",
		"Build a strong support system",
	},
}

// CrisisResources lists the contacts surfaced whenever self-harm is indicated.
var CrisisResources = []string{
	"🚨 If you are having thoughts of self-harm, please contact a crisis helpline immediately or go to your nearest emergency room.",
	"National Suicide Prevention Lifeline: 988 (US)",
}

// Recommendations returns the ordered advice for a scored submission.
// Crisis contacts come first when self-harm is indicated.
func Recommendations(severity models.Severity, risk models.RiskLevel, suicidal bool) []string {
	var out []string
	if suicidal {
		out = append(out, CrisisResources...)
	}
	if risk.IsHigh() {
		out = append(out,
			"Seek immediate professional help from a mental health provider",
			"Consider contacting your primary care physician",
		)
	}
	out = append(out, severityRecommendations[severity]...)
	return append(out, "Regular follow-up assessments can help track your progress")
}
