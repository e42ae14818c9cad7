package canonical

import "testing"

func TestNewEntityRefNormalizesKind(t *testing.T) {
	ref, err := NewEntityRef("tenant-a", "  Customer  ", "cust_123")
	if err != nil {
		t.Fatalf("NewEntityRef: %v", err)
	}
	if ref.Kind != "customer" {
		t.Fatalf("expected normalized kind %q, got %q", "customer", ref.Kind)
	}
	if ref.String() != "tenant-a/customer/cust_123" {
		t.Fatalf("unexpected ref string: %q", ref.String())
	}
}

func TestNewEntityRefRejectsInvalidTenant(t *testing.T) {
	if _, err := NewEntityRef("Tenant_A!", "customer", "cust_123"); err == nil {
		t.Fatalf("expected error for invalid tenant id")
	}
}

func TestParseEntityRefRoundTrips(t *testing.T) {
	ref, err := ParseEntityRef("tenant-a/address/addr_456")
	if err != nil {
		t.Fatalf("ParseEntityRef: %v", err)
	}
	if ref.Tenant != "tenant-a" || ref.Kind != "address" || ref.ID != "addr_456" {
		t.Fatalf("unexpected parsed ref: %+v", ref)
	}
}

func TestParseEntityRefRejectsMalformedInput(t *testing.T) {
	cases := []string{"", "tenant-a/address", "tenant-a/address/id/extra", "/address/id"}
	for _, c := range cases {
		if _, err := ParseEntityRef(c); err == nil {
			t.Fatalf("expected error for malformed ref %q", c)
		}
	}
}

func TestValidateEntityIDRejectsEmpty(t *testing.T) {
	if err := ValidateEntityID(""); err == nil {
		t.Fatalf("expected error for empty entity id")
	}
}
