package testfixtures

import "testing"

func TestIDGeneratorAllocatesSequentially(t *testing.T) {
	gen := NewIDGenerator("sched")

	if first, second := gen.Next(), gen.Next(); first != "sched-1" || second != "sched-2" {
		t.Fatalf("unexpected identifiers: %q, %q", first, second)
	}
}

func TestIDGeneratorDefaultsPrefix(t *testing.T) {
	gen := NewIDGenerator("")
	if got := gen.Next(); got != "id-1" {
		t.Fatalf("expected id-1 for the empty prefix, got %q", got)
	}
}

func TestIDGeneratorReset(t *testing.T) {
	gen := NewIDGenerator("occ")
	_ = gen.Next()
	_ = gen.Next()
	gen.Reset()

	if next := gen.Next(); next != "occ-1" {
		t.Fatalf("expected occ-1 after reset, got %q", next)
	}
}
