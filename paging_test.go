package whse

import (
	"testing"
	"unsafe"
)

func TestGVADecomposeComposeRoundTrip(t *testing.T) {
	addrs := []uint64{
		0,
		0x1000,
		0x0000_7FFF_FFFF_F000,
		KernelSpaceLow,
		0xFFFF_FFFF_FFFF_F000,
		TrapPageGVA,
	}
	for _, addr := range addrs {
		idx := decomposeGVA(addr)
		got := composeGVA(idx)
		if got != addr {
			t.Errorf("round trip %#x -> %+v -> %#x", addr, idx, got)
		}
	}
}

func TestGVADecomposeIndicesInRange(t *testing.T) {
	idx := decomposeGVA(0x0000_1234_5678_9ABC)
	for name, v := range map[string]int{"pml4": idx.pml4, "pdp": idx.pdp, "pd": idx.pd, "pt": idx.pt} {
		if v < 0 || v > 511 {
			t.Errorf("%s index %d out of range", name, v)
		}
	}
	if idx.offset > 0xFFF {
		t.Errorf("offset %#x out of range", idx.offset)
	}
}

func TestPTEAccessors(t *testing.T) {
	var p PTE
	p.SetValid(true)
	p.SetWrite(true)
	p.SetOwner(false)
	p.SetNoExecute(true)
	p.SetPFN(0xABCDEF)

	if !p.Valid() || !p.Write() || p.Owner() || !p.NoExecute() {
		t.Fatalf("accessor mismatch: %+v (raw %#x)", p, uint64(p))
	}
	if pfn := p.PFN(); pfn != 0xABCDEF {
		t.Fatalf("PFN() = %#x, want %#x", pfn, 0xABCDEF)
	}
}

func TestPTESetPFNPreservesFlags(t *testing.T) {
	var p PTE
	p.SetValid(true)
	p.SetWrite(true)
	p.SetPFN(1)
	p.SetPFN(2)
	if !p.Valid() || !p.Write() {
		t.Fatalf("SetPFN clobbered flag bits: %#x", uint64(p))
	}
	if p.PFN() != 2 {
		t.Fatalf("PFN() = %d, want 2", p.PFN())
	}
}

func TestPTEZeroValueIsInvalid(t *testing.T) {
	var p PTE
	if p.Valid() {
		t.Fatal("zero-value PTE reports Valid")
	}
}

// fakePageTableAllocator backs page-table pages with plain Go-allocated
// memory instead of VirtualAlloc, so paging logic can be exercised without a
// hypervisor.
type fakePageTableAllocator struct {
	pages map[uint64]uintptr
	next  uint64
}

func newFakePageTableAllocator() *fakePageTableAllocator {
	return &fakePageTableAllocator{pages: make(map[uint64]uintptr), next: PageSize}
}

func (f *fakePageTableAllocator) AllocatePageTablePage() (uint64, uintptr, error) {
	gpa := f.next
	f.next += PageSize
	buf := make([]byte, PageSize)
	hva := uintptr(unsafe.Pointer(&buf[0]))
	f.pages[gpa>>12] = hva
	return gpa, hva, nil
}

func (f *fakePageTableAllocator) ResolveHVA(pfn uint64) (uintptr, error) {
	hva, ok := f.pages[pfn]
	if !ok {
		return 0, ErrNotFound
	}
	return hva, nil
}

func TestPagingBuilderSetupPopulatesPDPSlots(t *testing.T) {
	alloc := newFakePageTableAllocator()
	b := NewPagingBuilder(alloc, nil)
	_, pml4HVA, err := b.SetupPaging()
	if err != nil {
		t.Fatalf("SetupPaging: %v", err)
	}
	pml4 := pageTable(pml4HVA)
	for i := 0; i < 512; i++ {
		if !pml4[i].Valid() {
			t.Fatalf("pml4[%d] not valid after setup", i)
		}
	}
}

func TestPagingBuilderInstallAndReinstall(t *testing.T) {
	alloc := newFakePageTableAllocator()
	b := NewPagingBuilder(alloc, nil)
	_, pml4HVA, err := b.SetupPaging()
	if err != nil {
		t.Fatalf("SetupPaging: %v", err)
	}

	gva := uint64(0x0000_1234_5000)
	phys := uint64(0x0010_0000)
	if err := b.InstallPageTableEntry(pml4HVA, gva, phys, true, false, false); err != nil {
		t.Fatalf("InstallPageTableEntry: %v", err)
	}
	// Re-installing the same mapping must be a no-op success.
	if err := b.InstallPageTableEntry(pml4HVA, gva, phys, true, false, false); err != nil {
		t.Fatalf("InstallPageTableEntry (repeat): %v", err)
	}

	idx := decomposeGVA(gva)
	pml4 := pageTable(pml4HVA)
	pdpHVA, err := alloc.ResolveHVA(pml4[idx.pml4].PFN())
	if err != nil {
		t.Fatalf("resolve pdp: %v", err)
	}
	pdp := pageTable(pdpHVA)
	pdHVA, err := alloc.ResolveHVA(pdp[idx.pdp].PFN())
	if err != nil {
		t.Fatalf("resolve pd: %v", err)
	}
	pd := pageTable(pdHVA)
	ptHVA, err := alloc.ResolveHVA(pd[idx.pd].PFN())
	if err != nil {
		t.Fatalf("resolve pt: %v", err)
	}
	pt := pageTable(ptHVA)
	pte := pt[idx.pt]
	if !pte.Valid() || pte.PFN() != phys>>12 {
		t.Fatalf("leaf pte = %+v, want valid mapping to %#x", pte, phys)
	}
}
