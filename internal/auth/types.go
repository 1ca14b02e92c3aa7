package auth

import "time"

// RoleUser is the default role granted to self-registered and federated
// accounts.
const RoleUser = "user"

// User is the authenticated principal record. The password hash is opaque
// to the core; only the stores read or write it.
type User struct {
	ID             string
	UserName       string
	Email          string
	EmailConfirmed bool
	PasswordHash   string
	LockedUntil    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Tokens is the credential pair returned to a caller. The access token is
// stateless and self-verifying; the refresh token is tracked server-side.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// RefreshToken is the persisted half of a token pair. Rotation deletes the
// row; there is no in-place update path.
type RefreshToken struct {
	ID        string
	UserID    string
	Token     string
	IsActive  bool
	CreatedAt time.Time
}

// SignInResult reports the outcome of a password sign-in attempt.
type SignInResult struct {
	Succeeded    bool
	IsNotAllowed bool
	IsLockedOut  bool
}
