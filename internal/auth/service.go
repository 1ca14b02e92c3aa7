package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"gatekey.org/internal/obs"
	"gatekey.org/internal/result"
	"gatekey.org/internal/validation"
)

// Service orchestrates login, federated login, registration and email
// confirmation. It holds no mutable state beyond injected configuration.
type Service struct {
	users          UserStore
	tokens         *TokenService
	mail           Notifier
	google         GoogleVerifier
	googleAudience string
	policy         validation.PasswordPolicy
}

// NewService constructs the auth orchestrator.
func NewService(users UserStore, tokens *TokenService, mail Notifier, google GoogleVerifier, googleAudience string, policy validation.PasswordPolicy) *Service {
	return &Service{
		users:          users,
		tokens:         tokens,
		mail:           mail,
		google:         google,
		googleAudience: googleAudience,
		policy:         policy,
	}
}

// Login resolves the principal by username or email and exchanges the
// password for a token pair.
func (s *Service) Login(ctx context.Context, userName, password string) (Tokens, error) {
	user, err := s.findByNameOrEmail(ctx, userName)
	if err != nil {
		obs.ObserveLogin("not_found")
		return Tokens{}, err
	}

	res, err := s.users.SignIn(ctx, user.ID, password)
	if err != nil {
		return Tokens{}, fmt.Errorf("sign in: %w", err)
	}
	switch {
	case res.IsNotAllowed:
		obs.ObserveLogin("forbidden")
		return Tokens{}, result.Forbidden("Forbidden", "IsNotAllowed")
	case res.IsLockedOut:
		obs.ObserveLogin("forbidden")
		return Tokens{}, result.Forbidden("Forbidden", "IsLockedOut")
	case !res.Succeeded:
		obs.ObserveLogin("failed")
		return Tokens{}, result.Failf("Unable to log in user")
	}

	tokens, err := s.tokens.Issue(ctx, user)
	if err != nil {
		return Tokens{}, err
	}
	obs.ObserveLogin("ok")
	return tokens, nil
}

// GoogleLogin verifies the identity token against the configured audience
// and issues a pair for the matching account, provisioning one when the
// verified email is unknown. Federated identities arrive pre-verified, so a
// provisioned account starts with a confirmed email and no password.
func (s *Service) GoogleLogin(ctx context.Context, idToken string) (Tokens, error) {
	// Without a configured audience the verifier would accept tokens
	// minted for any other application, so refuse outright.
	if s.googleAudience == "" {
		return Tokens{}, result.Failf("Federated login is not configured")
	}
	email, err := s.google.Verify(ctx, idToken, s.googleAudience)
	if err != nil {
		return Tokens{}, result.Failf("Unable to verify identity token")
	}

	user, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return s.tokens.Issue(ctx, user)
	case !errors.Is(err, result.ErrNotFound):
		return Tokens{}, err
	}

	user = &User{
		UserName:       email,
		Email:          email,
		EmailConfirmed: true,
	}
	if err := s.users.Create(ctx, user, ""); err != nil {
		return Tokens{}, err
	}
	if err := s.users.AddToRole(ctx, user.ID, RoleUser); err != nil {
		return Tokens{}, err
	}
	return s.tokens.Issue(ctx, user)
}

// Register validates and creates a local account with the default role.
func (s *Service) Register(ctx context.Context, userName, email, password string) (*User, error) {
	if err := validation.Validate(
		validation.Username("Username", userName),
		validation.Email("Email", email),
		validation.Password("Password", password, s.policy),
	); err != nil {
		return nil, err
	}

	user := &User{UserName: userName, Email: email}
	if err := s.users.Create(ctx, user, password); err != nil {
		return nil, err
	}
	if err := s.users.AddToRole(ctx, user.ID, RoleUser); err != nil {
		return nil, err
	}
	return user, nil
}

// ConfirmEmail delegates token verification to the user store and surfaces
// its failure reasons verbatim.
func (s *Service) ConfirmEmail(ctx context.Context, userID, token string) error {
	if _, err := s.users.Find(ctx, userID); err != nil {
		return err
	}
	return s.users.ConfirmEmail(ctx, userID, token)
}

// SendEmailConfirmation generates a confirmation token and mails the
// composed link. Fails when the email is already confirmed.
func (s *Service) SendEmailConfirmation(ctx context.Context, userID, confirmURL, callbackURL string) error {
	user, err := s.users.Find(ctx, userID)
	if err != nil {
		return err
	}
	if user.EmailConfirmed {
		return result.Failf("Email of the user is already confirmed")
	}

	token, err := s.users.GenerateConfirmationToken(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("generate confirmation token: %w", err)
	}

	link := confirmationLink(confirmURL, user.ID, token, callbackURL)
	return s.mail.Send(ctx, user.Email, "Email confirmation",
		fmt.Sprintf("Confirm your email by <a href=%s>this link</a>", link))
}

func (s *Service) findByNameOrEmail(ctx context.Context, userName string) (*User, error) {
	user, err := s.users.FindByName(ctx, userName)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, result.ErrNotFound) {
		return nil, err
	}
	return s.users.FindByEmail(ctx, userName)
}

func confirmationLink(confirmURL, userID, token, callbackURL string) string {
	var sb strings.Builder
	sb.WriteString(confirmURL)
	sb.WriteString("?userId=")
	sb.WriteString(userID)
	sb.WriteString("&token=")
	sb.WriteString(url.QueryEscape(token))
	sb.WriteString("&callbackUrl=")
	sb.WriteString(url.QueryEscape(callbackURL))
	return sb.String()
}
