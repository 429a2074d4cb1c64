// Package models defines server-side data models persisted in the database.
package models

import "time"

// Identity is one account. Email is the unique handle; ExternalID is the
// identity provider subject and is unique when present.
type Identity struct {
	ID                int64
	Email             string
	PasswordHash      *string
	ExternalID        *string
	EmailVerified     bool
	AdminApproved     bool
	VerificationToken *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasPassword reports whether a password credential is set. Accounts created
// through the external provider have none.
func (i *Identity) HasPassword() bool {
	return i.PasswordHash != nil && *i.PasswordHash != ""
}
