package auth

import (
	"testing"
	"time"
)

func TestSessionIssueAndVerify(t *testing.T) {
	p, err := NewSessionProvider([]byte("test-secret"), time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tok, err := p.Issue("project-1", "user-1", []string{"orders:read", "orders:read"})
	if err != nil {
		t.Fatalf("unexpected error issuing: %v", err)
	}

	ctx, err := p.Verify(tok)
	if err != nil {
		t.Fatalf("unexpected error verifying: %v", err)
	}
	if ctx.ProjectID != "project-1" || ctx.UserID != "user-1" {
		t.Fatalf("unexpected context: %+v", ctx)
	}
	if len(ctx.Scopes) != 1 || ctx.Scopes[0] != "orders:read" {
		t.Fatalf("expected deduped scopes, got %v", ctx.Scopes)
	}
}

func TestSessionVerifyRejectsWrongSecret(t *testing.T) {
	p1, _ := NewSessionProvider([]byte("secret-one"), time.Minute)
	p2, _ := NewSessionProvider([]byte("secret-two"), time.Minute)

	tok, err := p1.Issue("project-1", "user-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p2.Verify(tok); err == nil {
		t.Fatal("expected verification to fail under a different secret")
	}
}

func TestSessionVerifyRejectsExpired(t *testing.T) {
	p, _ := NewSessionProvider([]byte("secret"), time.Millisecond)
	tok, err := p.Issue("project-1", "user-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := p.Verify(tok); err != ErrTokenExpired {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}
