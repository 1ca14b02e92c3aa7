package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"gatekey.org/internal/ids"
	"gatekey.org/internal/result"
)

var (
	_ UserStore  = (*PGUserStore)(nil)
	_ TokenStore = (*PGTokenStore)(nil)
)

// PGUserStore implements UserStore on PostgreSQL via database/sql (pgx
// stdlib driver).
type PGUserStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPGUserStore constructs a Postgres-backed user store.
func NewPGUserStore(db *sql.DB) *PGUserStore {
	return &PGUserStore{db: db, now: time.Now}
}

const userColumns = `id, username, email, email_confirmed, coalesce(password_hash, ''), locked_until, created_at, updated_at`

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.UserName, &u.Email, &u.EmailConfirmed, &u.PasswordHash, &u.LockedUntil, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, result.NotFound()
		}
		return nil, err
	}
	return &u, nil
}

func (s *PGUserStore) Find(ctx context.Context, id string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id))
}

func (s *PGUserStore) FindByName(ctx context.Context, userName string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where username=$1`, userName))
}

func (s *PGUserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where lower(email)=lower($1)`, email))
}

func (s *PGUserStore) Create(ctx context.Context, u *User, password string) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	var hash sql.NullString
	if password != "" {
		h, err := HashPassword(password)
		if err != nil {
			return err
		}
		hash = sql.NullString{String: h, Valid: true}
		u.PasswordHash = h
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, username, email, email_confirmed, password_hash) values($1,$2,$3,$4,$5)`,
		u.ID, u.UserName, u.Email, u.EmailConfirmed, hash,
	)
	if err != nil {
		return result.Failf("Unable to create user: %v", err)
	}
	return nil
}

func (s *PGUserStore) Roles(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select role from user_roles where user_id=$1 order by role`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (s *PGUserStore) AddToRole(ctx context.Context, userID, role string) error {
	_, err := s.db.ExecContext(ctx,
		`insert into user_roles(user_id, role) values($1,$2) on conflict do nothing`,
		userID, role)
	return err
}

func (s *PGUserStore) SignIn(ctx context.Context, userID, password string) (SignInResult, error) {
	user, err := s.Find(ctx, userID)
	if err != nil {
		return SignInResult{}, err
	}
	if user.LockedUntil != nil && user.LockedUntil.After(s.now()) {
		return SignInResult{IsLockedOut: true}, nil
	}
	if !user.EmailConfirmed {
		return SignInResult{IsNotAllowed: true}, nil
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return SignInResult{}, nil
	}
	return SignInResult{Succeeded: true}, nil
}

func (s *PGUserStore) ConfirmEmail(ctx context.Context, userID, token string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := consumeUserToken(ctx, tx, userID, purposeConfirm, token, s.now()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`update users set email_confirmed=true, updated_at=now() where id=$1`, userID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PGUserStore) GenerateConfirmationToken(ctx context.Context, userID string) (string, error) {
	return s.generateUserToken(ctx, userID, purposeConfirm)
}

func (s *PGUserStore) GenerateResetToken(ctx context.Context, userID string) (string, error) {
	return s.generateUserToken(ctx, userID, purposeReset)
}

func (s *PGUserStore) ResetPassword(ctx context.Context, userID, token, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := consumeUserToken(ctx, tx, userID, purposeReset, token, s.now()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`update users set password_hash=$2, updated_at=now() where id=$1`, userID, hash); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PGUserStore) AddPassword(ctx context.Context, userID, password string) error {
	user, err := s.Find(ctx, userID)
	if err != nil {
		return err
	}
	if user.PasswordHash != "" {
		return result.Failf("User already has a password")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`update users set password_hash=$2, updated_at=now() where id=$1`, userID, hash)
	return err
}

func (s *PGUserStore) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := s.Find(ctx, userID)
	if err != nil {
		return err
	}
	if err := VerifyPassword(user.PasswordHash, oldPassword); err != nil {
		return result.Failf("Incorrect password")
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`update users set password_hash=$2, updated_at=now() where id=$1`, userID, hash)
	return err
}

func (s *PGUserStore) generateUserToken(ctx context.Context, userID, purpose string) (string, error) {
	if _, err := s.Find(ctx, userID); err != nil {
		return "", err
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	_, err := s.db.ExecContext(ctx,
		`insert into user_tokens(user_id, purpose, token, expires_at) values($1,$2,$3,$4)
		 on conflict (user_id, purpose) do update set token=excluded.token, expires_at=excluded.expires_at`,
		userID, purpose, token, s.now().Add(oneTimeTokenTTL))
	if err != nil {
		return "", err
	}
	return token, nil
}

// consumeUserToken deletes the matching one-time token inside the caller's
// transaction. No row deleted means the token is unknown, stale or already
// used; the caller sees only "Invalid token".
func consumeUserToken(ctx context.Context, tx *sql.Tx, userID, purpose, token string, now time.Time) error {
	res, err := tx.ExecContext(ctx,
		`delete from user_tokens where user_id=$1 and purpose=$2 and token=$3 and expires_at > $4`,
		userID, purpose, token, now)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return result.Failf("Invalid token")
	}
	return nil
}

// PGTokenStore implements TokenStore on PostgreSQL.
type PGTokenStore struct {
	db *sql.DB
}

// NewPGTokenStore constructs a Postgres-backed refresh-token store.
func NewPGTokenStore(db *sql.DB) *PGTokenStore {
	return &PGTokenStore{db: db}
}

func (s *PGTokenStore) Insert(ctx context.Context, tok *RefreshToken) error {
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(id, user_id, token, is_active) values($1,$2,$3,$4)`,
		tok.ID, tok.UserID, tok.Token, tok.IsActive)
	return err
}

func (s *PGTokenStore) FindActive(ctx context.Context, userID, token string) (*RefreshToken, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, token, is_active, created_at from refresh_tokens
		 where user_id=$1 and token=$2 and is_active`, userID, token)
	var rec RefreshToken
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.Token, &rec.IsActive, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, result.NotFound()
		}
		return nil, err
	}
	return &rec, nil
}

// Delete is the rotation primitive: a single conditional DELETE. Postgres
// row-locks the matched row, so two concurrent duplicates cannot both see
// an affected row.
func (s *PGTokenStore) Delete(ctx context.Context, userID, token string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from refresh_tokens where user_id=$1 and token=$2 and is_active`,
		userID, token)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
