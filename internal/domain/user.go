package domain

import (
	"strings"
	"time"
)

// User represents an authenticated traveller.
type User struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	CreatedAt time.Time
}

// DisplayFirstName returns the first name, falling back to the email local part.
func (u *User) DisplayFirstName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	if i := strings.Index(u.Email, "@"); i > 0 {
		return u.Email[:i]
	}
	return u.Email
}
