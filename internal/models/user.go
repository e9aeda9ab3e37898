package models

import "time"

// User is the owner of screening responses. Identity is an opaque key
// supplied by the request middleware.
type User struct {
	ID        string    `json:"id"`
	Identity  string    `json:"identity"`
	Email     string    `json:"email,omitempty"`
	Username  string    `json:"username,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
