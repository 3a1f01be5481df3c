package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestCreateOrganization(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectQuery("insert into organizations").
		WithArgs(sqlmock.AnyArg(), "user-1", "Acme Racing", "ops@acme.test", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	org, err := svc.CreateOrganization(context.Background(), "user-1", "  Acme Racing  ", "ops@acme.test", []string{"events:read"})
	if err != nil {
		t.Fatalf("CreateOrganization: %v", err)
	}
	if org.ID == "" {
		t.Fatalf("missing generated id")
	}
	if org.Name != "Acme Racing" {
		t.Fatalf("name not trimmed: %q", org.Name)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateOrganizationValidation(t *testing.T) {
	svc, _ := newMockService(t)

	cases := []struct {
		name    string
		orgName string
		email   string
		scopes  []string
		want    error
	}{
		{"empty name", "", "a@b.c", nil, ErrInvalidInput},
		{"blank name", "   ", "a@b.c", nil, ErrInvalidInput},
		{"bad email", "Acme", "not-an-email", nil, ErrInvalidInput},
		{"unknown scope", "Acme", "a@b.c", []string{"events:admin"}, ErrInvalidScopes},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateOrganization(context.Background(), "user-1", tc.orgName, tc.email, tc.scopes)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestUpdateOrganization(t *testing.T) {
	svc, mock := newMockService(t)

	name := "New Name"
	mock.ExpectQuery("update organizations set").
		WithArgs("org-1", "user-1", "New Name", nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "name", "contact_email", "scopes", "created_at", "updated_at"}).
			AddRow("org-1", "user-1", "New Name", "ops@acme.test", []byte(`["events:read"]`), time.Now(), time.Now()))

	org, err := svc.UpdateOrganization(context.Background(), "org-1", "user-1", OrganizationUpdate{Name: &name})
	if err != nil {
		t.Fatalf("UpdateOrganization: %v", err)
	}
	if org.Name != "New Name" {
		t.Fatalf("name not updated: %q", org.Name)
	}
	if org.UpdatedAt == nil {
		t.Fatalf("updated_at not mapped")
	}
}

func TestUpdateOrganizationEmptyPatch(t *testing.T) {
	svc, mock := newMockService(t)

	// Nothing to change reads the current row instead of updating.
	mock.ExpectQuery("from organizations where id=\\$1 and owner_id=\\$2").
		WithArgs("org-1", "user-1").
		WillReturnRows(orgRows("org-1", "user-1", `["events:read"]`))

	org, err := svc.UpdateOrganization(context.Background(), "org-1", "user-1", OrganizationUpdate{})
	if err != nil {
		t.Fatalf("UpdateOrganization: %v", err)
	}
	if org.ID != "org-1" {
		t.Fatalf("unexpected organization: %+v", org)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateOrganizationValidation(t *testing.T) {
	svc, _ := newMockService(t)

	blank := "   "
	if _, err := svc.UpdateOrganization(context.Background(), "org-1", "user-1", OrganizationUpdate{Name: &blank}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	badEmail := "nope"
	if _, err := svc.UpdateOrganization(context.Background(), "org-1", "user-1", OrganizationUpdate{ContactEmail: &badEmail}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.UpdateOrganization(context.Background(), "org-1", "user-1", OrganizationUpdate{Scopes: []string{"nope"}}); !errors.Is(err, ErrInvalidScopes) {
		t.Fatalf("expected ErrInvalidScopes, got %v", err)
	}
}

func TestGetOrganizationNotOwned(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectQuery("from organizations where id=\\$1 and owner_id=\\$2").
		WithArgs("org-1", "someone-else").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "name", "contact_email", "scopes", "created_at", "updated_at"}))

	if _, err := svc.GetOrganization(context.Background(), "org-1", "someone-else"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
