package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ComputClaw/airlock/internal/app/domain"
)

func TestCreateCredentialMapsUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO credentials").
		WillReturnError(&pqError{"duplicate key value violates unique constraint"})

	store := New(db)
	err = store.CreateCredential(context.Background(), &domain.Credential{Name: "API_KEY"})
	if err == nil {
		t.Fatal("expected error")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetCredentialByNameNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id, name, description, value, created_at, updated_at FROM credentials").
		WithArgs("MISSING").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "value", "created_at", "updated_at"}))

	store := New(db)
	got, err := store.GetCredentialByName(context.Background(), "MISSING")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetProfileLoadsCredentialRefs(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	now := time.Now()
	profileRows := sqlmock.NewRows([]string{
		"id", "description", "locked", "key_id", "key_secret_encrypted",
		"expires_at", "revoked", "created_at", "updated_at", "last_used_at",
	}).AddRow("p1", "r", true, "ark_abc", []byte("blob"), nil, false, now, now, nil)

	mock.ExpectQuery("SELECT id, description, locked").WithArgs("p1").WillReturnRows(profileRows)
	mock.ExpectQuery("SELECT credential_name FROM profile_credentials").
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"credential_name"}).AddRow("API_KEY"))

	store := New(db)
	p, err := store.GetProfile(context.Background(), "p1")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if p.State() != domain.ProfileLocked {
		t.Fatalf("expected locked state, got %s", p.State())
	}
	if len(p.CredentialNames) != 1 || p.CredentialNames[0] != "API_KEY" {
		t.Fatalf("expected [API_KEY], got %v", p.CredentialNames)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

// pqError is a minimal stand-in for a lib/pq error carrying a message that
// isUniqueViolation's substring check recognizes.
type pqError struct {
	msg string
}

func (e *pqError) Error() string { return e.msg }
