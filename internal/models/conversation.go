package models

import "time"

// Conversation groups the ordered messages of one chat thread owned by a user.
type Conversation struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	Title       string     `json:"title"`
	Messages    []*Message `json:"messages"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastUpdated time.Time  `json:"lastUpdated"`
}

// FirstUserMessage returns the content of the earliest user turn, if any.
func (c *Conversation) FirstUserMessage() string {
	if c == nil {
		return ""
	}
	for _, msg := range c.Messages {
		if msg != nil && msg.Role == RoleUser {
			return msg.Content
		}
	}
	return ""
}
