package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func orgRows(id, ownerID string, scopes string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "owner_id", "name", "contact_email", "scopes", "created_at", "updated_at"}).
		AddRow(id, ownerID, "Acme Racing", "ops@acme.test", []byte(scopes), time.Now(), nil)
}

func TestCreateAPIKey(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectQuery("from organizations where id=\\$1 and owner_id=\\$2").
		WithArgs("org-1", "user-1").
		WillReturnRows(orgRows("org-1", "user-1", `["events:read","events:write"]`))
	mock.ExpectQuery("insert into api_keys").
		WithArgs(sqlmock.AnyArg(), "org-1", sqlmock.AnyArg(), sqlmock.AnyArg(), "ci", sqlmock.AnyArg(), nil).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	created, err := svc.CreateAPIKey(context.Background(), "org-1", "user-1", "ci", []string{"events:read"})
	if err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	if !strings.HasPrefix(created.Key, "ltk_") {
		t.Fatalf("raw key missing tag: %s", created.Key)
	}
	if len(created.Key) != len("ltk_")+32 {
		t.Fatalf("unexpected raw key length: %d", len(created.Key))
	}
	if created.KeyPrefix != created.Key[:8] {
		t.Fatalf("prefix must be the first 8 raw characters")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateAPIKeyScopesOutsideOrganization(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectQuery("from organizations where id=\\$1 and owner_id=\\$2").
		WithArgs("org-1", "user-1").
		WillReturnRows(orgRows("org-1", "user-1", `["events:read"]`))

	_, err := svc.CreateAPIKey(context.Background(), "org-1", "user-1", "", []string{"events:write"})
	if !errors.Is(err, ErrInvalidScopes) {
		t.Fatalf("expected ErrInvalidScopes, got %v", err)
	}
}

func TestCreateAPIKeyNotOwner(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectQuery("from organizations where id=\\$1 and owner_id=\\$2").
		WithArgs("org-1", "intruder").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "name", "contact_email", "scopes", "created_at", "updated_at"}))

	_, err := svc.CreateAPIKey(context.Background(), "org-1", "intruder", "", nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExchangeAPIKey(t *testing.T) {
	svc, mock := newMockService(t)

	rawKey := "ltk_0123456789abcdef0123456789abcdef"
	hash, err := hashSecret(rawKey)
	if err != nil {
		t.Fatalf("hashSecret: %v", err)
	}

	mock.ExpectQuery("select id, org_id, key_hash, key_prefix, scopes").
		WithArgs(rawKey[:8]).
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "key_hash", "key_prefix", "scopes"}).
			AddRow("key-1", "org-1", hash, rawKey[:8], []byte(`["events:read"]`)))
	mock.ExpectQuery("from organizations where id=\\$1\\b").
		WithArgs("org-1").
		WillReturnRows(orgRows("org-1", "user-1", `["events:read","events:write"]`))
	mock.ExpectExec("update api_keys set last_used_at").
		WithArgs("key-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	token, err := svc.ExchangeAPIKey(context.Background(), rawKey, "")
	if err != nil {
		t.Fatalf("ExchangeAPIKey: %v", err)
	}
	claims, err := svc.Tokens().Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.CredentialType != CredentialThirdParty {
		t.Fatalf("unexpected credential type: %s", claims.CredentialType)
	}
	if claims.Subject != "org-1" || claims.OrgID != "" {
		t.Fatalf("unexpected subject claims: %+v", claims)
	}
	if len(claims.Scopes) != 1 || claims.Scopes[0] != "events:read" {
		t.Fatalf("unexpected scopes: %v", claims.Scopes)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestExchangeAPIKeyOnBehalfOf(t *testing.T) {
	svc, mock := newMockService(t)

	rawKey := "ltk_0123456789abcdef0123456789abcdef"
	hash, err := hashSecret(rawKey)
	if err != nil {
		t.Fatalf("hashSecret: %v", err)
	}

	mock.ExpectQuery("select id, org_id, key_hash, key_prefix, scopes").
		WithArgs(rawKey[:8]).
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "key_hash", "key_prefix", "scopes"}).
			AddRow("key-1", "org-1", hash, rawKey[:8], []byte(`["tracker:read"]`)))
	mock.ExpectQuery("from organizations where id=\\$1\\b").
		WithArgs("org-1").
		WillReturnRows(orgRows("org-1", "user-1", `["tracker:read"]`))
	mock.ExpectExec("update api_keys set last_used_at").
		WithArgs("key-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	token, err := svc.ExchangeAPIKey(context.Background(), rawKey, "rider-42")
	if err != nil {
		t.Fatalf("ExchangeAPIKey: %v", err)
	}
	claims, err := svc.Tokens().Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "rider-42" || claims.OrgID != "org-1" {
		t.Fatalf("delegation claims wrong: %+v", claims)
	}
}

func TestExchangeAPIKeyWrongSecret(t *testing.T) {
	svc, mock := newMockService(t)

	stored := "ltk_0123456789abcdef0123456789abcdef"
	hash, err := hashSecret(stored)
	if err != nil {
		t.Fatalf("hashSecret: %v", err)
	}
	// Same prefix, different body.
	presented := "ltk_0123ffffffffffffffffffffffffffff"

	mock.ExpectQuery("select id, org_id, key_hash, key_prefix, scopes").
		WithArgs(presented[:8]).
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "key_hash", "key_prefix", "scopes"}).
			AddRow("key-1", "org-1", hash, presented[:8], []byte(`["events:read"]`)))

	if _, err := svc.ExchangeAPIKey(context.Background(), presented, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestExchangeAPIKeyNarrowedOrganization(t *testing.T) {
	svc, mock := newMockService(t)

	rawKey := "ltk_0123456789abcdef0123456789abcdef"
	hash, err := hashSecret(rawKey)
	if err != nil {
		t.Fatalf("hashSecret: %v", err)
	}

	// The key still carries events:write but the organization no longer does.
	mock.ExpectQuery("select id, org_id, key_hash, key_prefix, scopes").
		WithArgs(rawKey[:8]).
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "key_hash", "key_prefix", "scopes"}).
			AddRow("key-1", "org-1", hash, rawKey[:8], []byte(`["events:write"]`)))
	mock.ExpectQuery("from organizations where id=\\$1\\b").
		WithArgs("org-1").
		WillReturnRows(orgRows("org-1", "user-1", `["events:read"]`))

	if _, err := svc.ExchangeAPIKey(context.Background(), rawKey, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after scope narrowing, got %v", err)
	}
}

func TestExchangeAPIKeyUnknownPrefix(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectQuery("select id, org_id, key_hash, key_prefix, scopes").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "key_hash", "key_prefix", "scopes"}))

	if _, err := svc.ExchangeAPIKey(context.Background(), "ltk_unknownunknownunknownunknownunkn", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestExchangeAPIKeyTooShort(t *testing.T) {
	svc, _ := newMockService(t)
	if _, err := svc.ExchangeAPIKey(context.Background(), "ltk", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestRevokeAPIKeyGone(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectQuery("from organizations where id=\\$1 and owner_id=\\$2").
		WithArgs("org-1", "user-1").
		WillReturnRows(orgRows("org-1", "user-1", `[]`))
	mock.ExpectExec("update api_keys set revoked_at").
		WithArgs("key-1", "org-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := svc.RevokeAPIKey(context.Background(), "org-1", "key-1", "user-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListAPIKeys(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectQuery("from organizations where id=\\$1 and owner_id=\\$2").
		WithArgs("org-1", "user-1").
		WillReturnRows(orgRows("org-1", "user-1", `["events:read"]`))
	mock.ExpectQuery("from api_keys").
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "key_prefix", "label", "scopes", "expires_at", "last_used_at", "created_at"}).
			AddRow("key-2", "org-1", "ltk_bbbb", "new", []byte(`["events:read"]`), nil, nil, time.Now()).
			AddRow("key-1", "org-1", "ltk_aaaa", nil, []byte(`[]`), nil, time.Now(), time.Now().Add(-time.Hour)))

	keys, err := svc.ListAPIKeys(context.Background(), "org-1", "user-1")
	if err != nil {
		t.Fatalf("ListAPIKeys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}
	if keys[0].ID != "key-2" {
		t.Fatalf("expected newest first, got %s", keys[0].ID)
	}
	if keys[1].LastUsedAt == nil {
		t.Fatalf("last_used_at not mapped")
	}
	for _, k := range keys {
		if k.KeyHash != "" {
			t.Fatalf("key hash must never be listed")
		}
	}
}
