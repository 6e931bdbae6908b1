package etherdfs

import "testing"

func TestMappingTableMapAndLookup(t *testing.T) {
	tab := NewMappingTable()

	if _, ok := tab.Lookup(2); ok {
		t.Fatal("fresh table should report unmapped")
	}

	if err := tab.Map(2, 0); err != nil {
		t.Fatalf("Map failed: %v", err)
	}

	remote, ok := tab.Lookup(2)
	if !ok || remote != 0 {
		t.Fatalf("Lookup(2) = (%d, %v), want (0, true)", remote, ok)
	}

	if err := tab.Map(2, 1); err == nil {
		t.Fatal("expected error remapping an already-mapped letter")
	}
}

func TestMappingTableUnmap(t *testing.T) {
	tab := NewMappingTable()
	_ = tab.Map(5, 3)
	tab.Unmap(5)
	if _, ok := tab.Lookup(5); ok {
		t.Fatal("expected letter to be unmapped")
	}
}

func TestMappingTableFirstMappedAndLetters(t *testing.T) {
	tab := NewMappingTable()
	if _, ok := tab.FirstMapped(); ok {
		t.Fatal("empty table should report no mapped drives")
	}

	_ = tab.Map(3, 0)
	_ = tab.Map(1, 0)

	first, ok := tab.FirstMapped()
	if !ok || first != 1 {
		t.Fatalf("FirstMapped() = (%d, %v), want (1, true)", first, ok)
	}

	letters := tab.Letters()
	if len(letters) != 2 || letters[0] != 1 || letters[1] != 3 {
		t.Fatalf("Letters() = %v, want [1 3]", letters)
	}
}

func TestMappingTableOutOfRange(t *testing.T) {
	tab := NewMappingTable()
	if err := tab.Map(26, 0); err == nil {
		t.Fatal("expected error for out-of-range local ordinal")
	}
	if _, ok := tab.Lookup(26); ok {
		t.Fatal("out-of-range lookup should report unmapped")
	}
}
