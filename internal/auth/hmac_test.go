package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"
)

func TestCanonicalizeSortsQuery(t *testing.T) {
	a := Canonicalize("post", "/v1/orders/evaluate", "b=2&a=1", "1700000000", "nonce-1")
	b := Canonicalize("POST", "/v1/orders/evaluate", "a=1&b=2", "1700000000", "nonce-1")
	if a != b {
		t.Fatalf("expected canonicalization to be order-insensitive on query and case-insensitive on method:\n%q\n%q", a, b)
	}
}

func TestHMACVerifyRoundTrip(t *testing.T) {
	fullKey := []byte("super-secret-key-material")
	lookup := func(_ context.Context, keyID string) (HMACKeyRecord, error) {
		if keyID != "key-123" {
			return HMACKeyRecord{}, ErrHMACUnknownKey
		}
		return HMACKeyRecord{ProjectID: "project-1", FullKey: fullKey}, nil
	}
	v := NewHMACVerifier(lookup, nil)

	ts := fmt.Sprintf("%d", time.Now().UTC().Unix())
	nonce := "abc123"
	method, path, query := "POST", "/v1/orders/evaluate", ""

	canonical := Canonicalize(method, path, query, ts, nonce)
	mac := hmac.New(sha256.New, fullKey)
	mac.Write([]byte(canonical))
	sig := hex.EncodeToString(mac.Sum(nil))

	authz := fmt.Sprintf("HMAC keyId=key-123&ts=%s&nonce=%s&signature=%s", ts, nonce, sig)

	c, err := v.Verify(context.Background(), method, path, query, authz)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ProjectID != "project-1" {
		t.Fatalf("unexpected project id: %s", c.ProjectID)
	}
}

func TestHMACVerifyRejectsStaleTimestamp(t *testing.T) {
	fullKey := []byte("super-secret-key-material")
	lookup := func(_ context.Context, keyID string) (HMACKeyRecord, error) {
		return HMACKeyRecord{ProjectID: "project-1", FullKey: fullKey}, nil
	}
	v := NewHMACVerifier(lookup, nil)

	staleTS := fmt.Sprintf("%d", time.Now().UTC().Add(-10*time.Minute).Unix())
	nonce := "abc123"
	canonical := Canonicalize("POST", "/v1/orders/evaluate", "", staleTS, nonce)
	mac := hmac.New(sha256.New, fullKey)
	mac.Write([]byte(canonical))
	sig := hex.EncodeToString(mac.Sum(nil))

	authz := fmt.Sprintf("HMAC keyId=key-123&ts=%s&nonce=%s&signature=%s", staleTS, nonce, sig)
	if _, err := v.Verify(context.Background(), "POST", "/v1/orders/evaluate", "", authz); err != ErrHMACClockSkew {
		t.Fatalf("expected ErrHMACClockSkew, got %v", err)
	}
}

func TestHMACVerifyRejectsTamperedSignature(t *testing.T) {
	lookup := func(_ context.Context, keyID string) (HMACKeyRecord, error) {
		return HMACKeyRecord{ProjectID: "project-1", FullKey: []byte("key")}, nil
	}
	v := NewHMACVerifier(lookup, nil)
	ts := fmt.Sprintf("%d", time.Now().UTC().Unix())
	authz := fmt.Sprintf("HMAC keyId=key-123&ts=%s&nonce=n1&signature=%s", ts, "00"+zeroHex())
	if _, err := v.Verify(context.Background(), "POST", "/v1/x", "", authz); err != ErrHMACSignature && err != ErrHMACMalformed {
		t.Fatalf("expected signature mismatch, got %v", err)
	}
}

func zeroHex() string {
	b := make([]byte, 62)
	for i := range b {
		b[i] = '0'
	}
	return string(b)
}
