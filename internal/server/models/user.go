package models

import "time"

// User is the persistent account record. PasswordHash and RefreshToken are
// excluded from JSON so a serialized user is always the sanitized
// projection; read paths that do not need them leave them empty.
type User struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FullName      string    `json:"fullName"`
	AvatarURL     string    `json:"avatar"`
	CoverImageURL string    `json:"coverImage,omitempty"`
	PasswordHash  string    `json:"-"`
	RefreshToken  string    `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Sanitize clears the credential and session fields in place and returns
// the same user, for handing the record to a caller.
func (u *User) Sanitize() *User {
	u.PasswordHash = ""
	u.RefreshToken = ""
	return u
}
