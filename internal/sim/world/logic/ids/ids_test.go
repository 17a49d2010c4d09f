package ids

import "testing"

func TestBodyIDRoundTrip(t *testing.T) {
	for _, seq := range []uint64{0, 7, 999999, 1234567} {
		id := BodyID(seq)
		got, ok := ParseBodyID(id)
		if !ok || got != seq {
			t.Fatalf("ParseBodyID(%q)=%d,%v want %d", id, got, ok, seq)
		}
	}
	if BodyID(42) != "B000042" {
		t.Fatalf("BodyID(42)=%q", BodyID(42))
	}
}

func TestParseBodyIDRejectsInvalid(t *testing.T) {
	tests := []string{
		"",
		"B",
		"B12",
		"X000001",
		"B00000x",
		"B-00001",
	}
	for _, id := range tests {
		if _, ok := ParseBodyID(id); ok {
			t.Fatalf("expected invalid id: %q", id)
		}
	}
}
