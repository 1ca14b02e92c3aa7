package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"gatekey.org/internal/result"
)

func TestPGTokenStoreDeleteReportsConsumption(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewPGTokenStore(db)
	ctx := context.Background()

	mock.ExpectExec("delete from refresh_tokens where user_id=.* and token=.* and is_active").
		WithArgs("user-1", "tok-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	deleted, err := store.Delete(ctx, "user-1", "tok-1")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !deleted {
		t.Fatal("expected first delete to consume the row")
	}

	// Second presentation matches no active row.
	mock.ExpectExec("delete from refresh_tokens").
		WithArgs("user-1", "tok-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	deleted, err = store.Delete(ctx, "user-1", "tok-1")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if deleted {
		t.Fatal("consumed token must not delete again")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGTokenStoreInsertAndFindActive(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewPGTokenStore(db)
	ctx := context.Background()

	mock.ExpectExec("insert into refresh_tokens").
		WithArgs(sqlmock.AnyArg(), "user-1", "tok-1", true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	rec := &RefreshToken{UserID: "user-1", Token: "tok-1", IsActive: true}
	if err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if rec.ID == "" {
		t.Fatal("Insert must assign an id")
	}

	rows := sqlmock.NewRows([]string{"id", "user_id", "token", "is_active", "created_at"}).
		AddRow(rec.ID, "user-1", "tok-1", true, time.Now())
	mock.ExpectQuery("select id, user_id, token, is_active, created_at from refresh_tokens").
		WithArgs("user-1", "tok-1").
		WillReturnRows(rows)
	found, err := store.FindActive(ctx, "user-1", "tok-1")
	if err != nil {
		t.Fatalf("FindActive: %v", err)
	}
	if found.Token != "tok-1" || !found.IsActive {
		t.Fatalf("unexpected record: %+v", found)
	}

	mock.ExpectQuery("select id, user_id, token, is_active, created_at from refresh_tokens").
		WithArgs("user-1", "gone").
		WillReturnError(sql.ErrNoRows)
	if _, err := store.FindActive(ctx, "user-1", "gone"); !errors.Is(err, result.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGUserStoreFindNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewPGUserStore(db)

	mock.ExpectQuery("select id, username, email, email_confirmed").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	if _, err := store.Find(context.Background(), "missing"); !errors.Is(err, result.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGUserStoreConfirmEmailInvalidToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewPGUserStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("delete from user_tokens").
		WithArgs("user-1", purposeConfirm, "stale", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = store.ConfirmEmail(context.Background(), "user-1", "stale")
	if err == nil || err.Error() != "Invalid token" {
		t.Fatalf("expected Invalid token, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGUserStoreConfirmEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewPGUserStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("delete from user_tokens").
		WithArgs("user-1", purposeConfirm, "good", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update users set email_confirmed=true").
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.ConfirmEmail(context.Background(), "user-1", "good"); err != nil {
		t.Fatalf("ConfirmEmail: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
