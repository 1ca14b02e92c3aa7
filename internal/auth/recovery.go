package auth

import (
	"context"
	"fmt"

	"gatekey.org/internal/validation"
)

// Recovery handles the password reset/add/change flows. The actual
// credential mutation happens inside the user store; Recovery validates
// input, resolves the principal and translates outcomes.
type Recovery struct {
	users  UserStore
	mail   Notifier
	policy validation.PasswordPolicy
}

// NewRecovery constructs the recovery orchestrator.
func NewRecovery(users UserStore, mail Notifier, policy validation.PasswordPolicy) *Recovery {
	return &Recovery{users: users, mail: mail, policy: policy}
}

// ForgotPassword mails a reset link for the account with the given email.
func (r *Recovery) ForgotPassword(ctx context.Context, email, confirmURL, callbackURL string) error {
	user, err := r.users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	token, err := r.users.GenerateResetToken(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	link := confirmationLink(confirmURL, user.ID, token, callbackURL)
	return r.mail.Send(ctx, email, "Password recovery",
		fmt.Sprintf("Reset your password by <a href=%s>this link</a>", link))
}

// ResetPassword sets a new password for the account with the given email,
// authorized by a reset token instead of a session.
func (r *Recovery) ResetPassword(ctx context.Context, email, token, password string) error {
	if err := validation.Validate(
		validation.Email("Email", email),
		validation.Password("Password", password, r.policy),
	); err != nil {
		return err
	}
	user, err := r.users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	return r.users.ResetPassword(ctx, user.ID, token, password)
}

// AddPassword sets the first password on a federated (passwordless)
// account.
func (r *Recovery) AddPassword(ctx context.Context, userID, password string) error {
	if err := validation.Validate(
		validation.Password("Password", password, r.policy),
	); err != nil {
		return err
	}
	if _, err := r.users.Find(ctx, userID); err != nil {
		return err
	}
	return r.users.AddPassword(ctx, userID, password)
}

// ChangePassword replaces the password after verifying the current one.
func (r *Recovery) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if err := validation.Validate(
		validation.Password("NewPassword", newPassword, r.policy),
	); err != nil {
		return err
	}
	if _, err := r.users.Find(ctx, userID); err != nil {
		return err
	}
	return r.users.ChangePassword(ctx, userID, oldPassword, newPassword)
}
