package errors

import "testing"

func TestKnownAndMetaAgree(t *testing.T) {
	for _, c := range List() {
		if !Known(c) {
			t.Errorf("List() returned %q but Known(%q) = false", c, c)
		}
		if _, ok := Meta(c); !ok {
			t.Errorf("Meta(%q) missing for a listed code", c)
		}
	}
}

func TestUnknownCodeIsNotKnown(t *testing.T) {
	if Known(Code("not_a_real_code")) {
		t.Fatal("expected an unregistered code to be unknown")
	}
}

func TestListIsSortedAndStable(t *testing.T) {
	a := List()
	b := List()
	if len(a) != len(b) {
		t.Fatalf("List() length changed between calls: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("List() not stable at index %d: %q vs %q", i, a[i], b[i])
		}
		if i > 0 && a[i-1] >= a[i] {
			t.Fatalf("List() not sorted: %q >= %q", a[i-1], a[i])
		}
	}
}

func TestExportJSONRoundTripsEveryCode(t *testing.T) {
	b := ExportJSON()
	if len(b) == 0 {
		t.Fatal("expected non-empty catalogue JSON")
	}
}
