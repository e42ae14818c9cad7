package main

import "testing"

func TestParseDisposableBodyJSON(t *testing.T) {
	got, err := parseDisposableBody([]byte(`["mailinator.com", "tempmail.com"]`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 domains, got %v", got)
	}
}

func TestParseDisposableBodyPlaintext(t *testing.T) {
	body := "# comment\nmailinator.com\n\ntempmail.com\n"
	got, err := parseDisposableBody([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "mailinator.com" || got[1] != "tempmail.com" {
		t.Fatalf("unexpected result: %v", got)
	}
}

func TestParseDisposableBodyEmpty(t *testing.T) {
	if _, err := parseDisposableBody([]byte("   \n")); err == nil {
		t.Fatal("expected error for empty body")
	}
}
