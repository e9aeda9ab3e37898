package ai

import (
	"fmt"
	"strings"

	"harmoni/internal/models"
	"harmoni/internal/service/screening"
)

// BasePersona is the default system instruction for the companion.
const BasePersona = "You are Harmoni, a compassionate AI therapeutic companion. " +
	"Provide empathetic, supportive responses that help users process their emotions and thoughts. " +
	"Be warm, understanding, and non-judgmental. " +
	"Offer gentle guidance and coping strategies when appropriate, " +
	"but always encourage users to seek professional help for serious mental health concerns."

// ScreeningContext is the part of a screening result the instruction uses.
type ScreeningContext struct {
	TotalScore int
	Severity   models.Severity
}

var severityGuidance = map[models.Severity]string{
	models.SeverityMinimal: "They are doing relatively well but may benefit from preventive mental health strategies and ongoing support.",
	models.SeverityMild:    "They may be experiencing some depressive symptoms. Focus on validation, coping strategies, and gentle encouragement.",
	models.SeverityModerate: "They are experiencing moderate depressive symptoms. " +
		"Provide supportive strategies while gently encouraging professional help if symptoms persist.",
	models.SeverityModeratelySevere: "They are experiencing significant depressive symptoms. " +
		"While providing support, consistently encourage professional mental health care and be alert to crisis situations.",
	models.SeveritySevere: "They are experiencing severe depressive symptoms and may be at risk. " +
		"Stay calm and warm, watch closely for any sign of crisis or self-harm, and if one appears, urge them to contact " +
		"a crisis line such as 988 (US) or local emergency services right away. " +
		"Strongly and consistently encourage professional mental health care.",
}

const closingInstruction = "Tailor your responses to their current mental health state, " +
	"but don't constantly reference their assessment unless relevant to the conversation."

// BuildInstruction appends a screening context block to base. Without a
// screening the base is returned unchanged. An unrecognised severity yields
// only the score statement.
func BuildInstruction(base string, sc *ScreeningContext) string {
	if sc == nil {
		return base
	}

	var b strings.Builder
	b.WriteString(base)
	fmt.Fprintf(&b, "\n\nIMPORTANT CONTEXT: This user recently completed a PHQ-9 depression assessment with a score of %d/%d",
		sc.TotalScore, screening.MaxTotalScore)

	guidance, ok := severityGuidance[sc.Severity]
	if !ok {
		b.WriteString(".")
		return b.String()
	}
	fmt.Fprintf(&b, " indicating %s symptoms. ", severityLabel(sc.Severity))
	b.WriteString(guidance)
	b.WriteString(" ")
	b.WriteString(closingInstruction)
	return b.String()
}

func severityLabel(s models.Severity) string {
	return strings.ToLower(strings.ReplaceAll(string(s), "_", " "))
}
