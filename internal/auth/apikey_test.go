package auth

import (
	"context"
	"testing"
)

func TestAPIKeyVerifyRoundTrip(t *testing.T) {
	token := "abcdef0123456789"
	hash, prefix := HashAPIKey(token)

	lookup := func(_ context.Context, p string) ([]APIKeyRecord, error) {
		if p != prefix {
			return nil, nil
		}
		return []APIKeyRecord{{ProjectID: "project-1", Prefix: prefix, Hash: hash, Status: "active"}}, nil
	}
	v := NewAPIKeyVerifier(lookup)

	ctx, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctx.ProjectID != "project-1" {
		t.Fatalf("unexpected project id: %s", ctx.ProjectID)
	}
}

func TestAPIKeyVerifyRevoked(t *testing.T) {
	token := "abcdef0123456789"
	hash, prefix := HashAPIKey(token)

	lookup := func(_ context.Context, p string) ([]APIKeyRecord, error) {
		return []APIKeyRecord{{ProjectID: "project-1", Prefix: prefix, Hash: hash, Status: "revoked"}}, nil
	}
	v := NewAPIKeyVerifier(lookup)

	if _, err := v.Verify(context.Background(), token); err != ErrAPIKeyRevoked {
		t.Fatalf("expected ErrAPIKeyRevoked, got %v", err)
	}
}

func TestAPIKeyVerifyWrongToken(t *testing.T) {
	hash, prefix := HashAPIKey("real-token-0123")
	lookup := func(_ context.Context, p string) ([]APIKeyRecord, error) {
		return []APIKeyRecord{{ProjectID: "project-1", Prefix: prefix, Hash: hash, Status: "active"}}, nil
	}
	v := NewAPIKeyVerifier(lookup)

	if _, err := v.Verify(context.Background(), "wrong-t"+"oken-01"); err != ErrAPIKeyNotFound {
		t.Fatalf("expected ErrAPIKeyNotFound, got %v", err)
	}
}
