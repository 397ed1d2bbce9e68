package memory

import (
	"context"
	"testing"

	"github.com/ComputClaw/airlock/internal/app/domain"
)

func TestCreateCredentialRejectsDuplicateName(t *testing.T) {
	s := New()
	ctx := context.Background()
	c := &domain.Credential{Name: "API_KEY", Description: "k"}
	if err := s.CreateCredential(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateCredential(ctx, c); err == nil {
		t.Fatal("expected duplicate name error")
	}
}

func TestDeleteCredentialRemovesProfileRefs(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.CreateCredential(ctx, &domain.Credential{Name: "K"}); err != nil {
		t.Fatalf("create credential: %v", err)
	}
	p := &domain.Profile{ID: "p1", Description: "r"}
	if err := s.CreateProfile(ctx, p); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	if err := s.AddCredentialRef(ctx, "p1", "K"); err != nil {
		t.Fatalf("add ref: %v", err)
	}

	if err := s.DeleteCredential(ctx, "K"); err != nil {
		t.Fatalf("delete credential: %v", err)
	}

	got, err := s.GetProfile(ctx, "p1")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if len(got.CredentialNames) != 0 {
		t.Fatalf("expected dangling ref removed, got %v", got.CredentialNames)
	}
}

func TestLockedProfilesReferencing(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.CreateCredential(ctx, &domain.Credential{Name: "K"}); err != nil {
		t.Fatalf("create credential: %v", err)
	}
	unlocked := &domain.Profile{ID: "p1"}
	locked := &domain.Profile{ID: "p2", Locked: true}
	if err := s.CreateProfile(ctx, unlocked); err != nil {
		t.Fatalf("create p1: %v", err)
	}
	if err := s.CreateProfile(ctx, locked); err != nil {
		t.Fatalf("create p2: %v", err)
	}
	if err := s.AddCredentialRef(ctx, "p1", "K"); err != nil {
		t.Fatalf("ref p1: %v", err)
	}
	if err := s.AddCredentialRef(ctx, "p2", "K"); err != nil {
		t.Fatalf("ref p2: %v", err)
	}

	ids, err := s.LockedProfilesReferencing(ctx, "K")
	if err != nil {
		t.Fatalf("locked refs: %v", err)
	}
	if len(ids) != 1 || ids[0] != "p2" {
		t.Fatalf("expected only p2, got %v", ids)
	}
}
