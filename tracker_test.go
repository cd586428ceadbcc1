package whse

import "testing"

func TestTrackerInsertTailOrder(t *testing.T) {
	tr := newTracker(MatchRangeContainment, nil)
	a := tr.Insert(AllocationNode{GuestPhysicalAddress: 0x1000, Size: PageSize})
	b := tr.Insert(AllocationNode{GuestPhysicalAddress: 0x2000, Size: PageSize})
	nodes := tr.Nodes()
	if len(nodes) != 2 || nodes[0].GuestPhysicalAddress != a.GuestPhysicalAddress || nodes[1].GuestPhysicalAddress != b.GuestPhysicalAddress {
		t.Fatalf("nodes = %+v, want tail-insert order [%#x, %#x]", nodes, a.GuestPhysicalAddress, b.GuestPhysicalAddress)
	}
}

func TestTrackerFindByGPARangeContainment(t *testing.T) {
	tr := newTracker(MatchRangeContainment, nil)
	tr.Insert(AllocationNode{GuestPhysicalAddress: 0x1000, Size: 3 * PageSize})

	found, ok := tr.FindByGPA(0x1000 + PageSize)
	if !ok {
		t.Fatal("expected to find node containing mid-range GPA")
	}
	if found.GuestPhysicalAddress != 0x1000 {
		t.Fatalf("found wrong node: %+v", found)
	}
	if _, ok := tr.FindByGPA(0x1000 + 3*PageSize); ok {
		t.Fatal("GPA one past the end should not match")
	}
}

func TestTrackerFindByGPAExactEquality(t *testing.T) {
	tr := newTracker(MatchExactEquality, nil)
	tr.Insert(AllocationNode{GuestPhysicalAddress: 0x1000, Size: 3 * PageSize})

	if _, ok := tr.FindByGPA(0x1000 + PageSize); ok {
		t.Fatal("exact-equality mode should not match a mid-range address")
	}
	if _, ok := tr.FindByGPA(0x1000); !ok {
		t.Fatal("exact-equality mode should match the exact start address")
	}
}

func TestTrackerFindByGVAZeroNeverMatches(t *testing.T) {
	tr := newTracker(MatchRangeContainment, nil)
	tr.Insert(AllocationNode{GuestPhysicalAddress: 0x1000, GuestVirtualAddress: 0, Size: PageSize})
	if _, ok := tr.FindByGVA(0); ok {
		t.Fatal("a zero GVA should never be considered tracked")
	}
}

func TestTrackerFreeAllDispatchesByKind(t *testing.T) {
	tr := newTracker(MatchRangeContainment, nil)
	tr.Insert(AllocationNode{GuestPhysicalAddress: 0x1000, Size: PageSize})
	tr.Insert(AllocationNode{GuestPhysicalAddress: 0x2000, GuestVirtualAddress: 0x5000, Size: PageSize})

	var physFreed, virtFreed []uint64
	err := tr.FreeAll(
		func(n *AllocationNode) error { physFreed = append(physFreed, n.GuestPhysicalAddress); return nil },
		func(n *AllocationNode) error { virtFreed = append(virtFreed, n.GuestVirtualAddress); return nil },
	)
	if err != nil {
		t.Fatalf("FreeAll: %v", err)
	}
	if len(physFreed) != 1 || physFreed[0] != 0x1000 {
		t.Fatalf("physFreed = %v, want [0x1000]", physFreed)
	}
	if len(virtFreed) != 1 || virtFreed[0] != 0x5000 {
		t.Fatalf("virtFreed = %v, want [0x5000]", virtFreed)
	}
	if len(tr.Nodes()) != 0 {
		t.Fatal("FreeAll should drain the tracker")
	}
}

func TestTrackerFreeAllContinuesPastError(t *testing.T) {
	tr := newTracker(MatchRangeContainment, nil)
	tr.Insert(AllocationNode{GuestPhysicalAddress: 0x1000, Size: PageSize})
	tr.Insert(AllocationNode{GuestPhysicalAddress: 0x2000, Size: PageSize})

	var calls int
	err := tr.FreeAll(
		func(n *AllocationNode) error { calls++; return ErrInternal },
		func(n *AllocationNode) error { calls++; return nil },
	)
	if err == nil {
		t.Fatal("expected the first error to be returned")
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2 (every node visited despite earlier failure)", calls)
	}
}

func TestTrackerRemove(t *testing.T) {
	tr := newTracker(MatchRangeContainment, nil)
	a := tr.Insert(AllocationNode{GuestPhysicalAddress: 0x1000, Size: PageSize})
	tr.Insert(AllocationNode{GuestPhysicalAddress: 0x2000, Size: PageSize})

	tr.Remove(a)
	nodes := tr.Nodes()
	if len(nodes) != 1 || nodes[0].GuestPhysicalAddress != 0x2000 {
		t.Fatalf("nodes after Remove = %+v, want only the 0x2000 node", nodes)
	}

	// FreeAll must not see the removed node.
	var calls int
	if err := tr.FreeAll(
		func(n *AllocationNode) error { calls++; return nil },
		func(n *AllocationNode) error { calls++; return nil },
	); err != nil {
		t.Fatalf("FreeAll: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestTrackerFreeAllRejectsUntaggedNode(t *testing.T) {
	tr := newTracker(MatchRangeContainment, nil)
	tr.Insert(AllocationNode{Size: PageSize})
	err := tr.FreeAll(
		func(n *AllocationNode) error { return nil },
		func(n *AllocationNode) error { return nil },
	)
	if err == nil {
		t.Fatal("expected an error for a node with neither GPA nor GVA")
	}
}
