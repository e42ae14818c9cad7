package reason

import "testing"

func TestAllSortedAndKnown(t *testing.T) {
	all := All()
	if len(all) == 0 {
		t.Fatal("expected a non-empty catalogue")
	}
	for i := 1; i < len(all); i++ {
		if all[i-1] >= all[i] {
			t.Fatalf("All() not sorted at %d: %q >= %q", i, all[i-1], all[i])
		}
	}
	for _, c := range all {
		if !Known(c) {
			t.Fatalf("code %q listed by All() but not Known()", c)
		}
		if _, ok := Lookup(c); !ok {
			t.Fatalf("code %q listed by All() but Lookup() failed", c)
		}
	}
}

func TestDedupPreservesFirstOccurrence(t *testing.T) {
	in := []Code{EmailInvalidFormat, EmailMXNotFound, EmailInvalidFormat, AddressPOBox}
	got := Dedup(in)
	want := []Code{EmailInvalidFormat, EmailMXNotFound, AddressPOBox}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestUnknownCodeNotInCatalogue(t *testing.T) {
	if Known(Code("email.not_a_real_code")) {
		t.Fatal("invented code must not be known")
	}
}
