package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekey.org/internal/result"
	"gatekey.org/internal/validation"
)

var testPolicy = validation.PasswordPolicy{
	RequireDigit:           true,
	RequireLowercase:       true,
	RequireUppercase:       true,
	RequireNonAlphanumeric: true,
	MinLength:              6,
}

type sentMail struct {
	to, subject, body string
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

type fakeGoogle struct {
	email       string
	err         error
	gotAudience string
	calls       int
}

func (g *fakeGoogle) Verify(_ context.Context, _, audience string) (string, error) {
	g.gotAudience = audience
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return g.email, nil
}

type fixture struct {
	svc    *Service
	users  *MemoryUserStore
	tokens *MemoryTokenStore
	mailer *fakeMailer
	google *fakeGoogle
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	users := NewMemoryUserStore()
	tokens := NewMemoryTokenStore()
	mailer := &fakeMailer{}
	google := &fakeGoogle{}
	tokenSvc := NewTokenService(testKey, 15, users, tokens)
	return &fixture{
		svc:    NewService(users, tokenSvc, mailer, google, "client-id-1", testPolicy),
		users:  users,
		tokens: tokens,
		mailer: mailer,
		google: google,
	}
}

func TestLoginByUsernameAndEmail(t *testing.T) {
	f := newFixture(t)
	f.users.Seed("ABC", "email1@gmail.com", "1String!")

	for _, name := range []string{"ABC", "email1@gmail.com"} {
		tokens, err := f.svc.Login(context.Background(), name, "1String!")
		require.NoError(t, err, "login as %q", name)
		assert.NotEmpty(t, tokens.AccessToken)
		assert.NotEmpty(t, tokens.RefreshToken)
	}
}

func TestLoginUnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Login(context.Background(), "ghost", "x")
	assert.ErrorIs(t, err, result.ErrNotFound)
}

func TestLoginWrongPassword(t *testing.T) {
	f := newFixture(t)
	f.users.Seed("ABC", "email1@gmail.com", "1String!")

	_, err := f.svc.Login(context.Background(), "ABC", "wrong")
	require.Error(t, err)
	assert.Equal(t, result.KindOperation, result.KindOf(err))
	assert.Contains(t, err.Error(), "Unable to log in user")
}

func TestLoginUnconfirmedEmailForbidden(t *testing.T) {
	f := newFixture(t)
	u := f.users.Seed("ABC", "email1@gmail.com", "1String!")
	f.users.SetEmailConfirmed(u.ID, false)

	_, err := f.svc.Login(context.Background(), "ABC", "1String!")
	require.ErrorIs(t, err, result.ErrForbidden)
	assert.Contains(t, err.Error(), "IsNotAllowed")
}

func TestLoginLockedOutForbidden(t *testing.T) {
	f := newFixture(t)
	u := f.users.Seed("ABC", "email1@gmail.com", "1String!")
	until := time.Now().Add(time.Hour)
	f.users.SetLockedUntil(u.ID, &until)

	_, err := f.svc.Login(context.Background(), "ABC", "1String!")
	require.ErrorIs(t, err, result.ErrForbidden)
	assert.Contains(t, err.Error(), "IsLockedOut")
}

func TestLoginThenRefreshNeverRepeatsTokens(t *testing.T) {
	f := newFixture(t)
	f.users.Seed("ABC", "email1@gmail.com", "1String!")
	ctx := context.Background()

	seenAccess := map[string]bool{}
	seenRefresh := map[string]bool{}

	pair, err := f.svc.Login(ctx, "ABC", "1String!")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.False(t, seenAccess[pair.AccessToken], "access token repeated")
		require.False(t, seenRefresh[pair.RefreshToken], "refresh token repeated")
		seenAccess[pair.AccessToken] = true
		seenRefresh[pair.RefreshToken] = true

		pair, err = f.svc.tokens.Refresh(ctx, pair)
		require.NoError(t, err)
	}
}

func TestGoogleLoginExistingAccount(t *testing.T) {
	f := newFixture(t)
	existing := f.users.Seed("ABC", "email1@gmail.com", "1String!")
	f.google.email = "email1@gmail.com"

	tokens, err := f.svc.GoogleLogin(context.Background(), "id-token")
	require.NoError(t, err)
	assert.Equal(t, "client-id-1", f.google.gotAudience)

	claims, err := f.svc.tokens.Claims(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, claims.Subject, "must link to the existing account by email")
}

func TestGoogleLoginProvisionsAccount(t *testing.T) {
	f := newFixture(t)
	f.google.email = "new@gmail.com"

	tokens, err := f.svc.GoogleLogin(context.Background(), "id-token")
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)

	user, err := f.users.FindByEmail(context.Background(), "new@gmail.com")
	require.NoError(t, err)
	assert.True(t, user.EmailConfirmed, "federated identities are pre-verified")
	assert.Empty(t, user.PasswordHash)

	roles, err := f.users.Roles(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{RoleUser}, roles)
}

func TestGoogleLoginVerifierFailure(t *testing.T) {
	f := newFixture(t)
	f.google.err = errors.New("bad audience")

	_, err := f.svc.GoogleLogin(context.Background(), "id-token")
	require.Error(t, err)
	assert.Equal(t, result.KindOperation, result.KindOf(err))
}

func TestGoogleLoginWithoutAudienceRejected(t *testing.T) {
	users := NewMemoryUserStore()
	tokens := NewMemoryTokenStore()
	google := &fakeGoogle{email: "fed@gmail.com"}
	svc := NewService(users, NewTokenService(testKey, 15, users, tokens), &fakeMailer{}, google, "", testPolicy)

	_, err := svc.GoogleLogin(context.Background(), "token-for-some-other-app")
	require.Error(t, err)
	assert.Equal(t, result.KindOperation, result.KindOf(err))
	assert.Contains(t, err.Error(), "Federated login is not configured")

	assert.Zero(t, google.calls, "verifier must not be consulted without an audience")
	_, err = users.FindByEmail(context.Background(), "fed@gmail.com")
	assert.ErrorIs(t, err, result.ErrNotFound, "no account may be provisioned")
}

func TestRegisterValidates(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Register(context.Background(), "ab", "nope", "abc")
	require.Error(t, err)
	var fail *result.Failure
	require.ErrorAs(t, err, &fail)
	require.Equal(t, result.KindValidation, fail.Kind)
	require.Len(t, fail.Fields, 3)
	assert.Equal(t, "Username", fail.Fields[0].Field)
	assert.Equal(t, "Email", fail.Fields[1].Field)
	assert.Equal(t, "Password", fail.Fields[2].Field)
}

func TestRegisterCreatesUnconfirmedAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.svc.Register(ctx, "newuser", "new@example.com", "1String!")
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)

	roles, err := f.users.Roles(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{RoleUser}, roles)

	// Until the email is confirmed, login is not allowed.
	_, err = f.svc.Login(ctx, "newuser", "1String!")
	assert.ErrorIs(t, err, result.ErrForbidden)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	f := newFixture(t)
	f.users.Seed("ABC", "email1@gmail.com", "1String!")

	_, err := f.svc.Register(context.Background(), "ABC", "other@example.com", "1String!")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already taken")
}

func TestConfirmEmailFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, err := f.svc.Register(ctx, "newuser", "new@example.com", "1String!")
	require.NoError(t, err)

	err = f.svc.ConfirmEmail(ctx, "ghost", "tok")
	assert.ErrorIs(t, err, result.ErrNotFound)

	token, err := f.users.GenerateConfirmationToken(ctx, user.ID)
	require.NoError(t, err)

	err = f.svc.ConfirmEmail(ctx, user.ID, "wrong-token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid token")

	require.NoError(t, f.svc.ConfirmEmail(ctx, user.ID, token))

	confirmed, err := f.users.Find(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, confirmed.EmailConfirmed)

	// Confirmation tokens are single use.
	err = f.svc.ConfirmEmail(ctx, user.ID, token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid token")
}

func TestSendEmailConfirmation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, err := f.svc.Register(ctx, "newuser", "new@example.com", "1String!")
	require.NoError(t, err)

	err = f.svc.SendEmailConfirmation(ctx, "ghost", "https://app/confirm", "https://app/done")
	assert.ErrorIs(t, err, result.ErrNotFound)

	err = f.svc.SendEmailConfirmation(ctx, user.ID, "https://app/confirm", "https://app/done")
	require.NoError(t, err)
	require.Len(t, f.mailer.sent, 1)
	msg := f.mailer.sent[0]
	assert.Equal(t, "new@example.com", msg.to)
	assert.Equal(t, "Email confirmation", msg.subject)
	assert.Contains(t, msg.body, "https://app/confirm?userId="+user.ID)
	assert.Contains(t, msg.body, "callbackUrl=https%3A%2F%2Fapp%2Fdone")
}

func TestSendEmailConfirmationAlreadyConfirmed(t *testing.T) {
	f := newFixture(t)
	user := f.users.Seed("ABC", "email1@gmail.com", "1String!")

	err := f.svc.SendEmailConfirmation(context.Background(), user.ID, "https://app/confirm", "https://app/done")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already confirmed")
	assert.Empty(t, f.mailer.sent)
}

func TestSendEmailConfirmationMailFailureVerbatim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, err := f.svc.Register(ctx, "newuser", "new@example.com", "1String!")
	require.NoError(t, err)
	f.mailer.err = result.Failf("Unable to send email")

	err = f.svc.SendEmailConfirmation(ctx, user.ID, "https://app/confirm", "https://app/done")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unable to send email")
}
