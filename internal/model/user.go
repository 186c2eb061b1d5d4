// Package model defines the data structures used throughout the application.
package model

import "time"

// User is a persisted account. It has two shapes that share one collection:
//
//   - local accounts: Username + PasswordHash, created by POST /register
//   - OAuth identities: Subject + Email + Name, upserted on every Google login
//
// WHY ONE TYPE FOR BOTH?
// Both kinds are looked up the same way by the session gate (username or
// user id) and stored in the same collection. Fields that don't apply to a
// record are left empty and omitted from the stored document.
//
// PasswordHash never leaves the server: the json:"-" tag keeps it out of
// every API response, including GET /me.
type User struct {
	ID           string    `json:"id"                 bson:"_id"`
	Username     string    `json:"username,omitempty" bson:"username,omitempty"`
	PasswordHash string    `json:"-"                  bson:"password_hash,omitempty"`
	Subject      string    `json:"sub,omitempty"      bson:"sub,omitempty"` // Identity provider subject id
	Email        string    `json:"email,omitempty"    bson:"email,omitempty"`
	Name         string    `json:"name,omitempty"     bson:"name,omitempty"`
	CreatedAt    time.Time `json:"createdAt"          bson:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt"          bson:"updated_at"`
}

// IsOAuth reports whether the record came from an identity provider.
func (u *User) IsOAuth() bool {
	return u.Subject != ""
}
