package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	tokens := NewTokenService(NewKeyManager(""))
	return NewService(NewPGStore(db), tokens), mock
}

func TestIssueRefreshToken(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectExec("insert into refresh_tokens").
		WithArgs(sqlmock.AnyArg(), "user-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	raw, err := svc.IssueRefreshToken(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	if len(raw) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(raw))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRefreshRotates(t *testing.T) {
	svc, mock := newMockService(t)
	raw := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

	mock.ExpectQuery("update refresh_tokens set revoked_at").
		WithArgs(hashRefreshToken(raw)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}).AddRow("rt-1", "user-1"))
	mock.ExpectQuery("select id, email, name, role, created_at from users").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "role", "created_at"}).
			AddRow("user-1", "a@b.c", "Ann", "rider", time.Now()))
	mock.ExpectExec("insert into refresh_tokens").
		WithArgs(sqlmock.AnyArg(), "user-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	pair, user, err := svc.Refresh(context.Background(), raw)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if user.ID != "user-1" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("incomplete pair: %+v", pair)
	}
	if pair.RefreshToken == raw {
		t.Fatalf("refresh token was not rotated")
	}
	if pair.ExpiresIn != int(AccessTokenTTL.Seconds()) {
		t.Fatalf("unexpected expires_in: %d", pair.ExpiresIn)
	}

	claims, err := svc.Tokens().Verify(pair.AccessToken)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.CredentialType != CredentialFirstParty || claims.Role != "rider" || claims.Subject != "user-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRefreshUnknownToken(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectQuery("update refresh_tokens set revoked_at").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}))

	if _, _, err := svc.Refresh(context.Background(), "deadbeef"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestRefreshStoreFailureFailsClosed(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectQuery("update refresh_tokens set revoked_at").
		WithArgs(sqlmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	if _, _, err := svc.Refresh(context.Background(), "deadbeef"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on store failure, got %v", err)
	}
}

func TestRefreshDeletedUser(t *testing.T) {
	svc, mock := newMockService(t)
	raw := "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"

	mock.ExpectQuery("update refresh_tokens set revoked_at").
		WithArgs(hashRefreshToken(raw)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}).AddRow("rt-1", "gone"))
	mock.ExpectQuery("select id, email, name, role, created_at from users").
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "role", "created_at"}))

	if _, _, err := svc.Refresh(context.Background(), raw); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRefreshEmptyToken(t *testing.T) {
	svc, _ := newMockService(t)
	if _, _, err := svc.Refresh(context.Background(), ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestRevokeRefreshToken(t *testing.T) {
	svc, mock := newMockService(t)

	// Empty raw value is a no-op without touching the store.
	if err := svc.RevokeRefreshToken(context.Background(), ""); err != nil {
		t.Fatalf("RevokeRefreshToken empty: %v", err)
	}

	mock.ExpectExec("update refresh_tokens set revoked_at").
		WithArgs(hashRefreshToken("some-token")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := svc.RevokeRefreshToken(context.Background(), "some-token"); err != nil {
		t.Fatalf("RevokeRefreshToken unknown: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
