package taxon

import "testing"

func TestUnclassifiedIsZero(t *testing.T) {
	var id ID
	if !id.IsUnclassified() {
		t.Fatalf("zero value should be unclassified")
	}
	if Unclassified.String() != "0" {
		t.Fatalf("unexpected string form: %q", Unclassified.String())
	}
}

func TestSetIntersects(t *testing.T) {
	a := NewSet(1, 2, 3)
	b := NewSet(4, 5, 3)
	if !a.Intersects(b) {
		t.Fatalf("expected intersection on shared id 3")
	}
	c := NewSet(6, 7)
	if a.Intersects(c) {
		t.Fatalf("expected no intersection")
	}
}

func TestSetContains(t *testing.T) {
	s := NewSet(10, 20)
	if !s.Contains(10) || s.Contains(99) {
		t.Fatalf("Contains behaved unexpectedly")
	}
}
