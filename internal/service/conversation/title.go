package conversation

import "strings"

type titleRule struct {
	keywords []string
	title    string
}

var titleRules = []titleRule{
	{[]string{"anxious", "anxiety", "worry"}, "Anxiety & Worries"},
	{[]string{"sad", "depressed", "down"}, "Feeling Down"},
	{[]string{"stress", "overwhelmed", "pressure"}, "Stress & Pressure"},
	{[]string{"relationship", "partner", "friend"}, "Relationship Issues"},
}

const (
	defaultTitle   = "New Conversation"
	titleWordLimit = 3
	titleCharLimit = 20
)

// DeriveTitle names a conversation from its first user message.
func DeriveTitle(firstMessage string) string {
	lower := strings.ToLower(firstMessage)
	for _, rule := range titleRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.title
			}
		}
	}

	words := strings.Fields(firstMessage)
	if len(words) == 0 {
		return defaultTitle
	}
	if len(words) > titleWordLimit {
		words = words[:titleWordLimit]
	}
	title := strings.Join(words, " ")
	if r := []rune(title); len(r) > titleCharLimit {
		title = string(r[:titleCharLimit])
	}
	return title + "..."
}
