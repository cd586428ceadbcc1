package whse

import (
	"fmt"
	"unsafe"

	"github.com/sirupsen/logrus"
)

// PTE is a single 4 KiB-page, four-level x86-64 page-table entry.
type PTE uint64

const (
	pteValidBit        = 0
	pteWriteBit        = 1
	pteOwnerBit        = 2
	pteWriteThroughBit = 3
	pteCacheDisableBit = 4
	pteAccessedBit     = 5
	pteDirtyBit        = 6
	pteLargePageBit    = 7
	pteNoExecuteBit    = 63

	ptePFNShift = 12
	ptePFNMask  = 0x0000_000F_FFFF_FFFF // bits 12..47 inclusive, 36 bits
)

func (p PTE) bit(n uint) bool    { return p&(1<<n) != 0 }
func (p *PTE) setBit(n uint, v bool) {
	if v {
		*p |= 1 << n
	} else {
		*p &^= 1 << n
	}
}

func (p PTE) Valid() bool            { return p.bit(pteValidBit) }
func (p *PTE) SetValid(v bool)       { p.setBit(pteValidBit, v) }
func (p PTE) Write() bool            { return p.bit(pteWriteBit) }
func (p *PTE) SetWrite(v bool)       { p.setBit(pteWriteBit, v) }
func (p PTE) Owner() bool            { return p.bit(pteOwnerBit) }
func (p *PTE) SetOwner(v bool)       { p.setBit(pteOwnerBit, v) }
func (p PTE) WriteThrough() bool     { return p.bit(pteWriteThroughBit) }
func (p *PTE) SetWriteThrough(v bool) { p.setBit(pteWriteThroughBit, v) }
func (p PTE) CacheDisable() bool     { return p.bit(pteCacheDisableBit) }
func (p *PTE) SetCacheDisable(v bool) { p.setBit(pteCacheDisableBit, v) }
func (p PTE) Accessed() bool         { return p.bit(pteAccessedBit) }
func (p PTE) Dirty() bool            { return p.bit(pteDirtyBit) }
func (p PTE) LargePage() bool        { return p.bit(pteLargePageBit) }
func (p PTE) NoExecute() bool        { return p.bit(pteNoExecuteBit) }
func (p *PTE) SetNoExecute(v bool)   { p.setBit(pteNoExecuteBit, v) }

// PFN returns the page-frame number this entry points at.
func (p PTE) PFN() uint64 { return (uint64(p) >> ptePFNShift) & ptePFNMask }

// SetPFN sets the page-frame number this entry points at.
func (p *PTE) SetPFN(pfn uint64) {
	*p = PTE(uint64(*p)&^(ptePFNMask<<ptePFNShift) | ((pfn & ptePFNMask) << ptePFNShift))
}

// gvaIndex is a decomposed canonical 48-bit guest-virtual address.
type gvaIndex struct {
	pml4   int
	pdp    int
	pd     int
	pt     int
	offset uint64
}

func decomposeGVA(gva uint64) gvaIndex {
	return gvaIndex{
		pml4:   int((gva >> 39) & 0x1FF),
		pdp:    int((gva >> 30) & 0x1FF),
		pd:     int((gva >> 21) & 0x1FF),
		pt:     int((gva >> 12) & 0x1FF),
		offset: gva & 0xFFF,
	}
}

func composeGVA(idx gvaIndex) uint64 {
	v := uint64(idx.pml4)<<39 | uint64(idx.pdp)<<30 | uint64(idx.pd)<<21 | uint64(idx.pt)<<12 | idx.offset
	if v&(1<<47) != 0 {
		v |= 0xFFFF_0000_0000_0000
	}
	return v
}

// pageTable reinterprets size-4096-bytes of host memory at hva as 512 PTEs.
func pageTable(hva uintptr) *[512]PTE {
	return (*[512]PTE)(unsafe.Pointer(hva))
}

// PageTableAllocator is the narrow surface PagingBuilder needs from the
// guest memory manager: a way to get a fresh zeroed guest-physical page
// (for page-table storage) and a way to resolve a page-frame number back to
// the host address backing it.
type PageTableAllocator interface {
	AllocatePageTablePage() (gpa uint64, hva uintptr, err error)
	ResolveHVA(pfn uint64) (uintptr, error)
}

// PagingBuilder constructs and mutates the four-level paging hierarchy.
type PagingBuilder struct {
	alloc PageTableAllocator
	log   *logrus.Entry
}

func NewPagingBuilder(alloc PageTableAllocator, log *logrus.Entry) *PagingBuilder {
	if log == nil {
		log = discardLogger
	}
	return &PagingBuilder{alloc: alloc, log: log}
}

// SetupPaging allocates the PML4 and eagerly populates all 512 of its slots
// with freshly allocated page-directory-pointer pages. PD and PT levels stay
// lazy; they are installed by InstallPageTableEntry as GVAs are mapped.
// Returns the PML4's guest-physical address (destined for Cr3) and its host
// address (so the caller can keep mutating it directly, e.g. descriptor
// table setup that front-loads mappings before any exit has occurred).
func (b *PagingBuilder) SetupPaging() (pml4GPA uint64, pml4HVA uintptr, err error) {
	pml4GPA, pml4HVA, err = b.alloc.AllocatePageTablePage()
	if err != nil {
		return 0, 0, fmt.Errorf("whse: allocate pml4: %w", err)
	}
	pml4 := pageTable(pml4HVA)
	for i := 0; i < 512; i++ {
		pdpGPA, _, err := b.alloc.AllocatePageTablePage()
		if err != nil {
			return 0, 0, fmt.Errorf("whse: allocate pdp[%d]: %w", i, err)
		}
		var e PTE
		e.SetValid(true)
		e.SetWrite(true)
		e.SetOwner(true)
		e.SetPFN(pdpGPA >> 12)
		pml4[i] = e
	}
	b.log.WithField("pml4_gpa", fmt.Sprintf("%#x", pml4GPA)).Debug("paging: setup complete")
	return pml4GPA, pml4HVA, nil
}

// InstallPageTableEntry maps gva to physical, allocating any missing PD/PT
// level along the way. Re-installing an entry that already maps gva to
// physical is a no-op success.
func (b *PagingBuilder) InstallPageTableEntry(pml4HVA uintptr, gva uint64, physical uint64, write, user, noExecute bool) error {
	idx := decomposeGVA(gva)

	pml4 := pageTable(pml4HVA)
	pml4e := &pml4[idx.pml4]
	if !pml4e.Valid() {
		return fmt.Errorf("%w: pml4 slot %d not populated (setup_paging not run?)", ErrInternal, idx.pml4)
	}

	pdpHVA, err := b.alloc.ResolveHVA(pml4e.PFN())
	if err != nil {
		return fmt.Errorf("whse: resolve pdp: %w", err)
	}
	pdp := pageTable(pdpHVA)
	pdpe := &pdp[idx.pdp]
	if !pdpe.Valid() {
		pdGPA, _, err := b.alloc.AllocatePageTablePage()
		if err != nil {
			return fmt.Errorf("whse: allocate pd: %w", err)
		}
		var e PTE
		e.SetValid(true)
		e.SetWrite(true)
		e.SetOwner(true)
		e.SetPFN(pdGPA >> 12)
		*pdpe = e
	}

	pdHVA, err := b.alloc.ResolveHVA(pdpe.PFN())
	if err != nil {
		return fmt.Errorf("whse: resolve pd: %w", err)
	}
	pd := pageTable(pdHVA)
	pde := &pd[idx.pd]
	if !pde.Valid() {
		ptGPA, _, err := b.alloc.AllocatePageTablePage()
		if err != nil {
			return fmt.Errorf("whse: allocate pt: %w", err)
		}
		var e PTE
		e.SetValid(true)
		e.SetWrite(true)
		e.SetOwner(true)
		e.SetPFN(ptGPA >> 12)
		*pde = e
	}

	ptHVA, err := b.alloc.ResolveHVA(pde.PFN())
	if err != nil {
		return fmt.Errorf("whse: resolve pt: %w", err)
	}
	pt := pageTable(ptHVA)
	pte := &pt[idx.pt]
	if pte.Valid() && pte.PFN() == physical>>12 {
		return nil
	}

	var e PTE
	e.SetValid(true)
	e.SetWrite(write)
	e.SetOwner(user)
	e.SetNoExecute(noExecute)
	e.SetPFN(physical >> 12)
	*pte = e
	return nil
}
