package models

import "github.com/google/uuid"

// RoleAdmin may see operator attribution on payments
const RoleAdmin = "admin"

// Actor is the authenticated operator on whose behalf a core operation runs.
// It is passed explicitly into every service call.
type Actor struct {
	UserID    uuid.UUID
	Email     string
	Roles     []string
	IPAddress string
	UserAgent string
}

// HasRole reports whether the actor carries role
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// CreatedBy returns the attribution recorded on new payments
func (a Actor) CreatedBy() *CreatedBy {
	if a.UserID == uuid.Nil {
		return nil
	}
	return &CreatedBy{ID: a.UserID, Email: a.Email}
}
