// Package model defines the data structures used throughout the application.
package model

// Identity is the authenticated caller as reported by the identity
// provider. This service never creates or mutates identities.
//
// AccessToken is the verified session token the identity was derived from.
// The ledger RPC runs as the caller, so the token travels with the identity
// inside the request context; it is never serialized.
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	AccessToken string `json:"-"`
}
