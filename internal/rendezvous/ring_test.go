package rendezvous

import "testing"

func TestOwner_DeterministicAcrossCalls(t *testing.T) {
	s := NewSet()
	s.Add(ParseSocketNode("10.0.0.1:9000"))
	s.Add(ParseSocketNode("10.0.0.2:9000"))
	s.Add(ParseSocketNode("10.0.0.3:9000"))

	first, ok := s.Owner("some/path/file.txt")
	if !ok {
		t.Fatal("expected an owner with 3 live nodes")
	}
	for i := 0; i < 10; i++ {
		got, _ := s.Owner("some/path/file.txt")
		if got != first {
			t.Fatalf("owner is not stable across repeated calls: %v vs %v", got, first)
		}
	}
}

func TestOwner_SameSetAcrossTwoIndependentRings(t *testing.T) {
	a := NewSet()
	b := NewSet()
	nodes := []string{"10.0.0.1:9000", "10.0.0.2:9000", "10.0.0.3:9000"}
	for _, n := range nodes {
		a.Add(ParseSocketNode(n))
		b.Add(ParseSocketNode(n))
	}

	for _, key := range []string{"a.txt", "dir/b.txt", "dir/nested/c.bin"} {
		oa, _ := a.Owner(key)
		ob, _ := b.Owner(key)
		if oa != ob {
			t.Fatalf("I3 violated for key %q: %v vs %v", key, oa, ob)
		}
	}
}

func TestOwner_EmptySetHasNoOwner(t *testing.T) {
	s := NewSet()
	if _, ok := s.Owner("x"); ok {
		t.Fatal("expected no owner for empty ring")
	}
}

func TestRemove_EvictsFromCandidates(t *testing.T) {
	s := NewSet()
	n1 := ParseSocketNode("10.0.0.1:9000")
	n2 := ParseSocketNode("10.0.0.2:9000")
	s.Add(n1)
	s.Add(n2)

	s.Remove(n1)
	if s.Len() != 1 {
		t.Fatalf("expected 1 live node after remove, got %d", s.Len())
	}
	owner, ok := s.Owner("anything")
	if !ok || owner != n2 {
		t.Fatalf("expected remaining node to own everything, got %v", owner)
	}
}

func TestCandidates_OrderedDescendingAndStable(t *testing.T) {
	s := NewSet()
	nodes := []string{"10.0.0.1:9000", "10.0.0.2:9000", "10.0.0.3:9000", "10.0.0.4:9000"}
	for _, n := range nodes {
		s.Add(ParseSocketNode(n))
	}
	c1 := s.Candidates("key")
	c2 := s.Candidates("key")
	if len(c1) != len(nodes) {
		t.Fatalf("expected %d candidates, got %d", len(nodes), len(c1))
	}
	for i := range c1 {
		if c1[i] != c2[i] {
			t.Fatalf("candidate order not stable at index %d", i)
		}
	}
}
