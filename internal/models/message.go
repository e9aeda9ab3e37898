package models

import (
	"strings"
	"time"
)

// Role identifies the author of a message in a conversation.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// NormalizeRole maps any value other than the literal "model" to RoleUser.
func NormalizeRole(raw string) Role {
	if strings.TrimSpace(raw) == string(RoleModel) {
		return RoleModel
	}
	return RoleUser
}

// Message is a single turn of a conversation.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
