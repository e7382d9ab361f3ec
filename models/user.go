// Package models holds the records the service stores and returns.
package models

// User is a profile created on first sign-in. ID is the identity
// provider's subject and never changes; Name and AvatarURL are editable.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// IdentityClaim is what the identity provider vouches for after it has
// verified a bearer credential.
type IdentityClaim struct {
	Subject  string `json:"sub"`
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Nickname string `json:"nickname,omitempty"`
	Picture  string `json:"picture,omitempty"`
}

// ProfileUpdate carries the editable profile fields. Nil means "leave as is".
type ProfileUpdate struct {
	Name      *string `json:"name"`
	AvatarURL *string `json:"avatarUrl"`
}
