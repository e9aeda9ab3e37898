package ai

import (
	"strings"

	"harmoni/internal/models"
)

var crisisPhrases = []string{
	"suicide",
	"suicidal",
	"kill myself",
	"want to die",
	"end it all",
	"no reason to live",
	"better off dead",
	"hurt myself",
	"self-harm",
	"self harm",
	"cutting",
	"overdose",
	"plan to die",
	"ending my life",
	"give up",
}

// ContainsCrisisLanguage reports whether text contains a crisis phrase.
func ContainsCrisisLanguage(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range crisisPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// DetectCrisis checks the most recent user turn.
func DetectCrisis(history []*models.Message) bool {
	for i := len(history) - 1; i >= 0; i-- {
		if msg := history[i]; msg != nil && msg.Role == models.RoleUser {
			return ContainsCrisisLanguage(msg.Content)
		}
	}
	return false
}
