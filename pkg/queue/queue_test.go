package queue

import "testing"

func TestNormalizeEnvelopeRequiresType(t *testing.T) {
	if _, err := NormalizeEnvelope(Envelope{}); err == nil {
		t.Fatal("expected error for envelope with no type")
	}
}

func TestNormalizeEnvelopeDerivesPayloadBytes(t *testing.T) {
	env, err := NormalizeEnvelope(Envelope{Type: "job", Payload: []byte("hello")})
	if err != nil {
		t.Fatalf("NormalizeEnvelope: %v", err)
	}
	if env.PayloadBytes != int64(len("hello")) {
		t.Fatalf("expected derived PayloadBytes=%d, got %d", len("hello"), env.PayloadBytes)
	}
}

func TestNormalizeEnvelopeRejectsPayloadBytesMismatch(t *testing.T) {
	_, err := NormalizeEnvelope(Envelope{Type: "job", Payload: []byte("hello"), PayloadBytes: 99})
	if err == nil {
		t.Fatal("expected error for declared/actual payload size mismatch")
	}
}

func TestNormalizeEnvelopeNormalizesHeaders(t *testing.T) {
	env, err := NormalizeEnvelope(Envelope{
		Type:    "job",
		Headers: map[string]string{" X-Tenant ": " acme "},
	})
	if err != nil {
		t.Fatalf("NormalizeEnvelope: %v", err)
	}
	if env.Headers["x-tenant"] != "acme" {
		t.Fatalf("expected lowercased/trimmed header key, got %+v", env.Headers)
	}
}

func TestStableEnvelopeHashIsDeterministicAndContentSensitive(t *testing.T) {
	a, err := StableEnvelopeHash(Envelope{Type: "job", Tenant: "acme", Payload: []byte("x")})
	if err != nil {
		t.Fatalf("StableEnvelopeHash: %v", err)
	}
	b, err := StableEnvelopeHash(Envelope{Type: "job", Tenant: "acme", Payload: []byte("x")})
	if err != nil {
		t.Fatalf("StableEnvelopeHash: %v", err)
	}
	if a != b {
		t.Fatalf("expected identical hash for identical envelope, got %q vs %q", a, b)
	}
	c, err := StableEnvelopeHash(Envelope{Type: "job", Tenant: "acme", Payload: []byte("y")})
	if err != nil {
		t.Fatalf("StableEnvelopeHash: %v", err)
	}
	if a == c {
		t.Fatal("expected different hash for different payload")
	}
}
