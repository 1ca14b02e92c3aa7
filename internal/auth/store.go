package auth

import "context"

// UserStore is the persistence and credential API for principals. The core
// never touches password hashes directly; hashing, verification and
// one-time-token bookkeeping live behind this interface.
type UserStore interface {
	Find(ctx context.Context, id string) (*User, error)
	FindByName(ctx context.Context, userName string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	// Create stores a new user. An empty password creates a passwordless
	// (federated) account.
	Create(ctx context.Context, u *User, password string) error

	Roles(ctx context.Context, userID string) ([]string, error)
	AddToRole(ctx context.Context, userID, role string) error

	// SignIn verifies the password with lockout disabled.
	SignIn(ctx context.Context, userID, password string) (SignInResult, error)

	ConfirmEmail(ctx context.Context, userID, token string) error
	GenerateConfirmationToken(ctx context.Context, userID string) (string, error)

	GenerateResetToken(ctx context.Context, userID string) (string, error)
	ResetPassword(ctx context.Context, userID, token, password string) error
	AddPassword(ctx context.Context, userID, password string) error
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
}

// TokenStore manages refresh-token rows.
type TokenStore interface {
	Insert(ctx context.Context, tok *RefreshToken) error
	// FindActive returns the active row matching the (user, token) pair.
	FindActive(ctx context.Context, userID, token string) (*RefreshToken, error)
	// Delete removes the active row matching the pair and reports whether a
	// row was removed. The check and the removal are one atomic step: under
	// concurrent duplicate presentation exactly one caller sees true.
	Delete(ctx context.Context, userID, token string) (bool, error)
}

// Notifier delivers outbound mail.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// GoogleVerifier exchanges a third-party identity token for a verified
// email address.
type GoogleVerifier interface {
	Verify(ctx context.Context, idToken, audience string) (string, error)
}
