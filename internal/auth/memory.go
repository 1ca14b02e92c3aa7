package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"gatekey.org/internal/ids"
	"gatekey.org/internal/result"
)

const (
	purposeConfirm = "confirm"
	purposeReset   = "reset"

	oneTimeTokenTTL = 24 * time.Hour
)

type oneTimeToken struct {
	token     string
	expiresAt time.Time
}

// MemoryUserStore is a mutex-guarded UserStore used by tests and the smoke
// binary. Semantics match the Postgres store.
type MemoryUserStore struct {
	mu      sync.Mutex
	users   map[string]*User
	roles   map[string][]string
	oneTime map[string]oneTimeToken // userID + "\x00" + purpose
	now     func() time.Time
}

// NewMemoryUserStore constructs an empty in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		users:   make(map[string]*User),
		roles:   make(map[string][]string),
		oneTime: make(map[string]oneTimeToken),
		now:     time.Now,
	}
}

// Seed inserts a confirmed user with the given password, bypassing
// validation. Test helper.
func (s *MemoryUserStore) Seed(userName, email, password string) *User {
	hash, err := HashPassword(password)
	if err != nil {
		panic(err)
	}
	u := &User{
		ID:             ids.New(),
		UserName:       userName,
		Email:          email,
		EmailConfirmed: true,
		PasswordHash:   hash,
		CreatedAt:      s.now().UTC(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	s.roles[u.ID] = []string{RoleUser}
	clone := *u
	return &clone
}

// SetEmailConfirmed flips the confirmation flag in place. Test helper.
func (s *MemoryUserStore) SetEmailConfirmed(userID string, confirmed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.EmailConfirmed = confirmed
	}
}

// SetLockedUntil sets the lockout deadline in place. Test helper.
func (s *MemoryUserStore) SetLockedUntil(userID string, until *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.LockedUntil = until
	}
}

func (s *MemoryUserStore) Find(ctx context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, result.NotFound()
	}
	clone := *u
	return &clone, nil
}

func (s *MemoryUserStore) FindByName(ctx context.Context, userName string) (*User, error) {
	return s.findBy(func(u *User) bool { return u.UserName == userName })
}

func (s *MemoryUserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.findBy(func(u *User) bool { return strings.EqualFold(u.Email, email) })
}

func (s *MemoryUserStore) findBy(match func(*User) bool) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if match(u) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, result.NotFound()
}

func (s *MemoryUserStore) Create(ctx context.Context, u *User, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.UserName == u.UserName {
			return result.Failf("Username '%s' is already taken", u.UserName)
		}
		if strings.EqualFold(existing.Email, u.Email) {
			return result.Failf("Email '%s' is already taken", u.Email)
		}
	}
	if password != "" {
		hash, err := HashPassword(password)
		if err != nil {
			return err
		}
		u.PasswordHash = hash
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	u.CreatedAt = s.now().UTC()
	clone := *u
	s.users[u.ID] = &clone
	return nil
}

func (s *MemoryUserStore) Roles(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.roles[userID]...), nil
}

func (s *MemoryUserStore) AddToRole(ctx context.Context, userID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles[userID] {
		if r == role {
			return nil
		}
	}
	s.roles[userID] = append(s.roles[userID], role)
	return nil
}

func (s *MemoryUserStore) SignIn(ctx context.Context, userID, password string) (SignInResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return SignInResult{}, result.NotFound()
	}
	if u.LockedUntil != nil && u.LockedUntil.After(s.now()) {
		return SignInResult{IsLockedOut: true}, nil
	}
	if !u.EmailConfirmed {
		return SignInResult{IsNotAllowed: true}, nil
	}
	if err := VerifyPassword(u.PasswordHash, password); err != nil {
		return SignInResult{}, nil
	}
	return SignInResult{Succeeded: true}, nil
}

func (s *MemoryUserStore) ConfirmEmail(ctx context.Context, userID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.consumeOneTime(userID, purposeConfirm, token); err != nil {
		return err
	}
	s.users[userID].EmailConfirmed = true
	return nil
}

func (s *MemoryUserStore) GenerateConfirmationToken(ctx context.Context, userID string) (string, error) {
	return s.generateOneTime(userID, purposeConfirm)
}

func (s *MemoryUserStore) GenerateResetToken(ctx context.Context, userID string) (string, error) {
	return s.generateOneTime(userID, purposeReset)
}

func (s *MemoryUserStore) ResetPassword(ctx context.Context, userID, token, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.consumeOneTime(userID, purposeReset, token); err != nil {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	s.users[userID].PasswordHash = hash
	return nil
}

func (s *MemoryUserStore) AddPassword(ctx context.Context, userID, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return result.NotFound()
	}
	if u.PasswordHash != "" {
		return result.Failf("User already has a password")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (s *MemoryUserStore) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return result.NotFound()
	}
	if err := VerifyPassword(u.PasswordHash, oldPassword); err != nil {
		return result.Failf("Incorrect password")
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (s *MemoryUserStore) generateOneTime(userID, purpose string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return "", result.NotFound()
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	s.oneTime[userID+"\x00"+purpose] = oneTimeToken{
		token:     token,
		expiresAt: s.now().Add(oneTimeTokenTTL),
	}
	return token, nil
}

// consumeOneTime must be called with the mutex held.
func (s *MemoryUserStore) consumeOneTime(userID, purpose, token string) error {
	if _, ok := s.users[userID]; !ok {
		return result.NotFound()
	}
	key := userID + "\x00" + purpose
	stored, ok := s.oneTime[key]
	if !ok || stored.token != token || s.now().After(stored.expiresAt) {
		return result.Failf("Invalid token")
	}
	delete(s.oneTime, key)
	return nil
}

// MemoryTokenStore is a mutex-guarded TokenStore. Delete removes the row
// under the lock, so it is atomic with respect to duplicate refreshes.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*RefreshToken // userID + "\x00" + token
}

// NewMemoryTokenStore constructs an empty in-memory token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]*RefreshToken)}
}

func (s *MemoryTokenStore) Insert(ctx context.Context, tok *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *tok
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	s.tokens[tok.UserID+"\x00"+tok.Token] = &clone
	return nil
}

func (s *MemoryTokenStore) FindActive(ctx context.Context, userID, token string) (*RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tokens[userID+"\x00"+token]
	if !ok || !rec.IsActive {
		return nil, result.NotFound()
	}
	clone := *rec
	return &clone, nil
}

func (s *MemoryTokenStore) Delete(ctx context.Context, userID, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userID + "\x00" + token
	rec, ok := s.tokens[key]
	if !ok || !rec.IsActive {
		return false, nil
	}
	delete(s.tokens, key)
	return true, nil
}

// Len reports the number of stored rows. Test helper.
func (s *MemoryTokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}
