package models

import (
	"strings"
	"time"

	"github.com/anonto42/lovesignal/backend/internal/store"
	"github.com/golang-jwt/jwt/v4"
)

// MinUsernameLength is the shortest username accepted at registration.
const MinUsernameLength = 3

// UnknownUsername is shown for identities without a profile.
const UnknownUsername = "unknown"

// Profile is the public record of an identity, stored in the profiles collection under the
// identity id. It is written once at registration and never edited.
type Profile struct {
	IdentityID string    `json:"identity_id"`
	Username   string    `json:"username"`
	Email      string    `json:"email,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NormalizeUsername case-folds a username the way it is stored and looked up.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Fields returns the document body of the profile.
func (p Profile) Fields() store.Fields {
	return store.Fields{
		FieldIdentityID: p.IdentityID,
		FieldUsername:   p.Username,
		FieldEmail:      p.Email,
		FieldCreatedAt:  store.ServerTimestamp,
	}
}

// ProfileFromDocument decodes a profiles document.
func ProfileFromDocument(doc store.Document) Profile {
	p := Profile{
		IdentityID: fieldString(doc.Fields, FieldIdentityID),
		Username:   fieldString(doc.Fields, FieldUsername),
		Email:      fieldString(doc.Fields, FieldEmail),
		CreatedAt:  fieldTime(doc.Fields, FieldCreatedAt),
	}
	if p.IdentityID == "" {
		p.IdentityID = doc.ID
	}
	return p
}

// PlaceholderProfile stands in for an identity whose profile could not be found.
func PlaceholderProfile(identityID string) Profile {
	return Profile{IdentityID: identityID, Username: UnknownUsername}
}

// UsernameReservationFields is the body of a usernames document, keyed by the username.
func UsernameReservationFields(identityID string) store.Fields {
	return store.Fields{FieldIdentityID: identityID}
}

// Account is a locally managed identity (PostgreSQL), used when the service issues its own
// tokens instead of delegating to Firebase.
type Account struct {
	ID           uint    `json:"-" gorm:"primaryKey"`
	IdentityID   string  `json:"identity_id" gorm:"size:64;uniqueIndex"`
	Email        *string `json:"email,omitempty" gorm:"uniqueIndex"`
	PasswordHash string  `json:"-"`
	Anonymous    bool    `json:"anonymous"`

	// Tokens issued before this instant are rejected; sign-out moves it forward.
	TokensValidAfter time.Time `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Username string `json:"username" validate:"required,min=3,max=30"`
}

type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse is returned by every sign-in style endpoint.
type AuthResponse struct {
	IdentityID string   `json:"identity_id"`
	Token      string   `json:"token"`
	Anonymous  bool     `json:"anonymous"`
	Profile    *Profile `json:"profile,omitempty"`
}

// JwtCustomClaims are the claims of locally issued tokens.
type JwtCustomClaims struct {
	IdentityID string `json:"identity_id"`
	Anonymous  bool   `json:"anonymous,omitempty"`
	jwt.RegisteredClaims
}
