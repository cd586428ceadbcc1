package whse

import (
	"fmt"
	"unsafe"

	"github.com/sirupsen/logrus"

	"github.com/Midi12/whse/internal/bindings"
)

// GuestMemoryManager is the authoritative API for allocating, mapping and
// freeing guest memory. Every operation keeps the tracker, the arena, the
// paging tables and the platform's own GPA map in agreement.
type GuestMemoryManager struct {
	handle      bindings.PartitionHandle
	tracker     *Tracker
	arena       *Arena
	paging      *PagingBuilder
	pml4GPA     uint64
	pml4HVA     uintptr
	initialized bool
	log         *logrus.Entry
}

func newGuestMemoryManager(handle bindings.PartitionHandle, tracker *Tracker, arena *Arena, log *logrus.Entry) *GuestMemoryManager {
	if log == nil {
		log = discardLogger
	}
	m := &GuestMemoryManager{handle: handle, tracker: tracker, arena: arena, log: log}
	m.paging = NewPagingBuilder(m, log)
	return m
}

// AllocatePageTablePage implements PageTableAllocator: it is how the
// paging builder obtains storage for PML4/PDP/PD/PT pages, which are
// themselves tracked as ordinary BlockPageTable nodes.
func (m *GuestMemoryManager) AllocatePageTablePage() (uint64, uintptr, error) {
	return m.allocatePhysical(0, PageSize, bindings.MapGPARangeFlagRead|bindings.MapGPARangeFlagWrite, BlockPageTable, 0)
}

// ResolveHVA implements PageTableAllocator by resolving a page-frame number
// to the host address backing it, via the tracker. This is the single
// source of truth relationship the paging tables depend on: every table
// page is itself a tracked allocation.
func (m *GuestMemoryManager) ResolveHVA(pfn uint64) (uintptr, error) {
	node, ok := m.tracker.FindByGPA(pfn << 12)
	if !ok {
		return 0, fmt.Errorf("%w: no tracked node for pfn %#x", ErrNotFound, pfn)
	}
	return node.HostVirtualAddress, nil
}

// flagsToProtect maps the platform's GPA range flags onto a host page
// protection constant using a closed table: None -> NoAccess, {R} ->
// ReadOnly, {R,W} -> ReadWrite, {R,W,X} -> ExecuteReadWrite. Anything else
// (including pure Execute, which has no host-protection equivalent) is
// rejected rather than approximated.
func flagsToProtect(flags bindings.MapGPARangeFlags) (uint32, error) {
	rwx := flags &^ bindings.MapGPARangeFlagTrackDirty
	switch rwx {
	case bindings.MapGPARangeFlagNone:
		return bindings.PAGE_NOACCESS, nil
	case bindings.MapGPARangeFlagRead:
		return bindings.PAGE_READONLY, nil
	case bindings.MapGPARangeFlagRead | bindings.MapGPARangeFlagWrite:
		return bindings.PAGE_READWRITE, nil
	case bindings.MapGPARangeFlagRead | bindings.MapGPARangeFlagWrite | bindings.MapGPARangeFlagExecute:
		return bindings.PAGE_EXECUTE_READWRITE, nil
	default:
		return 0, fmt.Errorf("%w: unsupported map flags %#x", ErrInvalidArgument, flags)
	}
}

// allocatePhysical implements both allocate_physical and map_host_to_physical.
// When borrowedHVA is zero, size bytes of fresh host memory are allocated and
// owned by the resulting node. When borrowedHVA is non-zero, it is used
// as-is, no VirtualAlloc occurs, and the node is tagged Borrowed so teardown
// never frees host memory this library does not own.
func (m *GuestMemoryManager) allocatePhysical(gpaHint uint64, size uint64, flags bindings.MapGPARangeFlags, blockType BlockType, borrowedHVA uintptr) (gpa uint64, hva uintptr, err error) {
	size = AlignUp(size, PageSize)
	if size == 0 {
		return 0, 0, ErrInvalidArgument
	}
	if gpaHint != 0 {
		gpa = AlignDown(gpaHint, PageSize)
		if _, ok := m.tracker.FindByGPA(gpa); ok {
			return 0, 0, ErrAlreadyMapped
		}
	} else {
		gpa, err = m.arena.SuggestPhysical(size)
		if err != nil {
			return 0, 0, err
		}
	}

	borrowed := borrowedHVA != 0
	var alloc *bindings.Allocation
	if borrowed {
		hva = borrowedHVA
	} else {
		protect, err := flagsToProtect(flags)
		if err != nil {
			return 0, 0, err
		}
		alloc, err = bindings.VirtualAlloc(0, uintptr(size), bindings.MEM_COMMIT|bindings.MEM_RESERVE, protect)
		if err != nil {
			return 0, 0, wrapPlatform("virtual_alloc", err)
		}
		hva = uintptr(alloc.Pointer())
	}

	if err := bindings.MapGPARange(m.handle, unsafe.Pointer(hva), bindings.GuestPhysicalAddress(gpa), uint64(size), flags); err != nil {
		if !borrowed {
			bindings.VirtualFree(alloc, bindings.MEM_RELEASE)
		}
		return 0, 0, wrapPlatform("map_gpa_range", err)
	}

	m.tracker.Insert(AllocationNode{
		BlockType:            blockType,
		HostVirtualAddress:   hva,
		GuestPhysicalAddress: gpa,
		Size:                 size,
		Borrowed:             borrowed,
		hostAlloc:            alloc,
	})
	m.log.WithFields(logrus.Fields{"gpa": fmt.Sprintf("%#x", gpa), "size": size, "borrowed": borrowed}).Debug("memory: allocate_physical")
	return gpa, hva, nil
}

// AllocatePhysical allocates size bytes of host memory and maps it at gpaHint
// (or a fresh address from the arena when gpaHint is zero).
func (m *GuestMemoryManager) AllocatePhysical(gpaHint uint64, size uint64, flags bindings.MapGPARangeFlags) (gpa uint64, hva uintptr, err error) {
	return m.allocatePhysical(gpaHint, size, flags, BlockPhysical, 0)
}

// MapHostToPhysical maps externally-owned host memory at hva into the guest
// physical address space at gpaHint (or a fresh address when gpaHint is
// zero). The library never allocates or frees hva; teardown only unmaps the
// guest-physical range and drops the tracker node.
func (m *GuestMemoryManager) MapHostToPhysical(hva uintptr, gpaHint uint64, size uint64, flags bindings.MapGPARangeFlags) (gpa uint64, err error) {
	if hva == 0 {
		return 0, ErrInvalidArgument
	}
	gpa, _, err = m.allocatePhysical(gpaHint, size, flags, BlockPhysical, hva)
	return gpa, err
}

// validateVirtualRange rejects a [gva, gva+size) range that falls outside
// the subrange belonging to mode, including its guard region, regardless of
// whether gva came from the arena or was supplied explicitly by the caller.
func validateVirtualRange(gva, size uint64, mode ProcessorMode) error {
	low, high := UserSpaceLow, UserSpaceHigh
	if mode == ModeKernel {
		low, high = KernelSpaceLow, KernelSpaceHigh
	}
	end := gva + size
	if end < gva || gva < low || end > high {
		return fmt.Errorf("%w: gva range [%#x, %#x) outside %s space", ErrInvalidArgument, gva, end, mode)
	}
	return nil
}

// allocateVirtual implements both allocate_virtual and map_host_to_virtual.
// When borrowedHVA is zero, size bytes of fresh host memory are allocated
// and owned by the resulting node. When borrowedHVA is non-zero, it is used
// as-is, no VirtualAlloc occurs, and the node is tagged Borrowed.
func (m *GuestMemoryManager) allocateVirtual(gvaHint uint64, size uint64, mode ProcessorMode, flags bindings.MapGPARangeFlags, borrowedHVA uintptr) (gva uint64, hva uintptr, err error) {
	if m.pml4HVA == 0 {
		return 0, 0, ErrNotInitialized
	}
	size = AlignUp(size, PageSize)
	if size == 0 {
		return 0, 0, ErrInvalidArgument
	}
	if gvaHint != 0 {
		gva = AlignDown(gvaHint, PageSize)
		if err := validateVirtualRange(gva, size, mode); err != nil {
			return 0, 0, err
		}
		if _, ok := m.tracker.FindByGVA(gva); ok {
			return 0, 0, ErrAlreadyMapped
		}
	} else {
		gva, err = m.arena.SuggestVirtual(size, mode)
		if err != nil {
			return 0, 0, err
		}
	}

	gpa, err := m.arena.SuggestPhysical(size)
	if err != nil {
		return 0, 0, err
	}

	borrowed := borrowedHVA != 0
	var alloc *bindings.Allocation
	if borrowed {
		hva = borrowedHVA
	} else {
		protect, err := flagsToProtect(flags)
		if err != nil {
			return 0, 0, err
		}
		alloc, err = bindings.VirtualAlloc(0, uintptr(size), bindings.MEM_COMMIT|bindings.MEM_RESERVE, protect)
		if err != nil {
			return 0, 0, wrapPlatform("virtual_alloc", err)
		}
		hva = uintptr(alloc.Pointer())
	}

	write := flags&bindings.MapGPARangeFlagWrite != 0
	noExecute := flags&bindings.MapGPARangeFlagExecute == 0
	user := mode == ModeUser
	for off := uint64(0); off < size; off += PageSize {
		if err := m.paging.InstallPageTableEntry(m.pml4HVA, gva+off, gpa+off, write, user, noExecute); err != nil {
			if !borrowed {
				bindings.VirtualFree(alloc, bindings.MEM_RELEASE)
			}
			return 0, 0, fmt.Errorf("whse: install page table entry: %w", err)
		}
	}

	if err := bindings.MapGPARange(m.handle, unsafe.Pointer(hva), bindings.GuestPhysicalAddress(gpa), uint64(size), flags); err != nil {
		if !borrowed {
			bindings.VirtualFree(alloc, bindings.MEM_RELEASE)
		}
		return 0, 0, wrapPlatform("map_gpa_range", err)
	}

	m.tracker.Insert(AllocationNode{
		BlockType:            BlockVirtual,
		HostVirtualAddress:   hva,
		GuestPhysicalAddress: gpa,
		GuestVirtualAddress:  gva,
		Size:                 size,
		Borrowed:             borrowed,
		hostAlloc:            alloc,
	})
	m.log.WithFields(logrus.Fields{"gva": fmt.Sprintf("%#x", gva), "gpa": fmt.Sprintf("%#x", gpa), "size": size, "borrowed": borrowed}).Debug("memory: allocate_virtual")
	return gva, hva, nil
}

// AllocateVirtual allocates size bytes of host memory, maps it to a fresh
// guest-physical range from the arena, installs page-table entries spanning
// [gva, gva+size) pointing at that range, and maps the backing pages into
// the platform. gva is gvaHint rounded down to a page, or a fresh address
// from mode's subrange when gvaHint is zero.
func (m *GuestMemoryManager) AllocateVirtual(gvaHint uint64, size uint64, mode ProcessorMode, flags bindings.MapGPARangeFlags) (gva uint64, hva uintptr, err error) {
	return m.allocateVirtual(gvaHint, size, mode, flags, 0)
}

// MapHostToVirtual maps externally-owned host memory at hva into the guest
// virtual address space at gvaHint (or a fresh address from mode's subrange
// when gvaHint is zero). The library never allocates or frees hva.
func (m *GuestMemoryManager) MapHostToVirtual(hva uintptr, gvaHint uint64, size uint64, mode ProcessorMode, flags bindings.MapGPARangeFlags) (gva uint64, err error) {
	if hva == 0 {
		return 0, ErrInvalidArgument
	}
	gva, _, err = m.allocateVirtual(gvaHint, size, mode, flags, hva)
	return gva, err
}

// freePhysicalNode unmaps and releases a node with no GVA; it is the
// Tracker.FreeAll callback for physical-only nodes.
func (m *GuestMemoryManager) freePhysicalNode(n *AllocationNode) error {
	if err := bindings.UnmapGPARange(m.handle, bindings.GuestPhysicalAddress(n.GuestPhysicalAddress), n.Size); err != nil {
		return wrapPlatform("unmap_gpa_range", err)
	}
	return m.releaseHost(n)
}

// FreePhysical unmaps the guest-physical range [gpa, gpa+size) and releases
// its host backing (unless the node was borrowed via MapHostToPhysical). hva
// and gpa must match the node exactly, as a cheap check against freeing the
// wrong allocation.
func (m *GuestMemoryManager) FreePhysical(hva uintptr, gpa uint64, size uint64) error {
	size = AlignUp(size, PageSize)
	node, ok := m.tracker.Find(func(n *AllocationNode) bool {
		return n.BlockType != BlockVirtual && n.HostVirtualAddress == hva && n.GuestPhysicalAddress == gpa && n.Size == size
	})
	if !ok {
		return fmt.Errorf("%w: no physical node at hva %#x gpa %#x size %d", ErrNotFound, hva, gpa, size)
	}
	if err := m.freePhysicalNode(node); err != nil {
		return err
	}
	m.tracker.Remove(node)
	return nil
}

// freeVirtualNode translates the node's GVA to find its current backing
// GPA, unmaps it, and releases the host pages. It deliberately does not
// clear the PTE: the GVA stays present (but now physically unmapped) so a
// later access through it produces a memory-access exit. That property is
// what the IDT trap page relies on.
func (m *GuestMemoryManager) freeVirtualNode(n *AllocationNode) error {
	var result bindings.TranslateGVAResult
	var gpa bindings.GuestPhysicalAddress
	if err := bindings.TranslateGVA(m.handle, 0, bindings.GuestVirtualAddress(n.GuestVirtualAddress),
		bindings.TranslateGVAFlagValidateRead|bindings.TranslateGVAFlagValidateWrite|bindings.TranslateGVAFlagPrivilegeExempt,
		&result, &gpa); err != nil {
		return wrapPlatform("translate_gva", err)
	}
	if err := bindings.UnmapGPARange(m.handle, gpa, n.Size); err != nil {
		return wrapPlatform("unmap_gpa_range", err)
	}
	return m.releaseHost(n)
}

// FreeVirtual translates gva to its current backing GPA, unmaps it, and
// releases the host pages (unless the node was borrowed via
// MapHostToVirtual). hva and gva must match the node exactly. The node is
// then removed from the tracker; as with freeVirtualNode, the PTE is left in
// place. InitializeMemoryLayout likewise removes the trap page's node after
// freeing it, so the trap page is not a tracked node; the exit loop
// recognizes it by TrapPageGVA alone.
func (m *GuestMemoryManager) FreeVirtual(hva uintptr, gva uint64, size uint64) error {
	size = AlignUp(size, PageSize)
	node, ok := m.tracker.Find(func(n *AllocationNode) bool {
		return n.HostVirtualAddress == hva && n.GuestVirtualAddress == gva && n.Size == size
	})
	if !ok {
		return fmt.Errorf("%w: no virtual node at hva %#x gva %#x size %d", ErrNotFound, hva, gva, size)
	}
	if err := m.freeVirtualNode(node); err != nil {
		return err
	}
	m.tracker.Remove(node)
	return nil
}

func (m *GuestMemoryManager) releaseHost(n *AllocationNode) error {
	if n.Borrowed || n.hostAlloc == nil {
		return nil
	}
	if err := bindings.VirtualFree(n.hostAlloc, bindings.MEM_RELEASE); err != nil {
		return wrapPlatform("virtual_free", err)
	}
	return nil
}

// TranslateGVAToGPA resolves a guest-virtual address to its current
// guest-physical mapping through the platform's own page walker.
func (m *GuestMemoryManager) TranslateGVAToGPA(gva uint64) (uint64, bindings.TranslateGVAResultCode, error) {
	var result bindings.TranslateGVAResult
	var gpa bindings.GuestPhysicalAddress
	err := bindings.TranslateGVA(m.handle, 0, bindings.GuestVirtualAddress(gva),
		bindings.TranslateGVAFlagValidateRead|bindings.TranslateGVAFlagValidateWrite|bindings.TranslateGVAFlagPrivilegeExempt,
		&result, &gpa)
	if err != nil {
		return 0, result.ResultCode, wrapPlatform("translate_gva", err)
	}
	return uint64(gpa), result.ResultCode, nil
}

// Write copies data into the host memory backing the node covering gva.
func (m *GuestMemoryManager) Write(gva uint64, data []byte) error {
	node, ok := m.tracker.FindByGVA(gva)
	if !ok {
		return fmt.Errorf("%w: no tracked node covers gva %#x", ErrNotFound, gva)
	}
	off := gva - node.GuestVirtualAddress
	if off+uint64(len(data)) > node.Size {
		return fmt.Errorf("%w: write of %d bytes at %#x overruns node of size %d", ErrInvalidArgument, len(data), gva, node.Size)
	}
	dst := unsafe.Slice((*byte)(unsafe.Pointer(node.HostVirtualAddress+uintptr(off))), len(data))
	copy(dst, data)
	return nil
}

// InitializeMemoryLayout builds the four-level paging tree, enables paging
// and long mode, then builds and installs the GDT, TSS and IDT (including
// the trap page), and lays out segment selectors for the given processor
// mode. It is one-shot: calling it again
// on an already-initialized manager returns ErrAlreadyInitialized.
func (m *GuestMemoryManager) InitializeMemoryLayout(vpState *VPStateManager, mode ProcessorMode) error {
	if m.initialized {
		return ErrAlreadyInitialized
	}

	pml4GPA, pml4HVA, err := m.paging.SetupPaging()
	if err != nil {
		return err
	}
	m.pml4GPA, m.pml4HVA = pml4GPA, pml4HVA

	tssGVA, tssHVA, err := m.AllocateVirtual(TSSBaseGVA, TSSSize, ModeKernel, bindings.MapGPARangeFlagRead|bindings.MapGPARangeFlagWrite)
	if err != nil {
		return fmt.Errorf("whse: allocate tss: %w", err)
	}
	gdtGVA, gdtHVA, err := m.AllocateVirtual(GDTBaseGVA, PageSize, ModeKernel, bindings.MapGPARangeFlagRead|bindings.MapGPARangeFlagWrite)
	if err != nil {
		return fmt.Errorf("whse: allocate gdt: %w", err)
	}
	idtGVA, idtHVA, err := m.AllocateVirtual(IDTBaseGVA, PageSize, ModeKernel, bindings.MapGPARangeFlagRead|bindings.MapGPARangeFlagWrite)
	if err != nil {
		return fmt.Errorf("whse: allocate idt: %w", err)
	}
	// The trap page is mapped only so PTEs exist, then immediately
	// unmapped at the physical layer: the PTE stays Valid, but any access
	// through it now produces a memory-access exit (GpaUnmapped). That is
	// how a CPU-delivered interrupt turns into a callback invocation.
	trapGVA, trapHVA, err := m.AllocateVirtual(TrapPageGVA, PageSize, ModeKernel, bindings.MapGPARangeFlagRead|bindings.MapGPARangeFlagWrite)
	if err != nil {
		return fmt.Errorf("whse: allocate trap page: %w", err)
	}
	_ = trapHVA
	if node, ok := m.tracker.FindByGVA(trapGVA); ok {
		if err := m.freeVirtualNode(node); err != nil {
			return fmt.Errorf("whse: unmap trap page: %w", err)
		}
		// Prevent Close's FreeAll from revisiting a node whose physical
		// backing is already gone.
		m.tracker.Remove(node)
	}

	copy(unsafe.Slice((*byte)(unsafe.Pointer(gdtHVA)), GDTSize), BuildGDT(tssGVA))
	copy(unsafe.Slice((*byte)(unsafe.Pointer(idtHVA)), IDTSize), BuildIDT(trapGVA))
	copy(unsafe.Slice((*byte)(unsafe.Pointer(tssHVA)), TSSSize), BuildTSS(0, 0))
	_ = idtGVA

	rf, err := vpState.GetRegisters()
	if err != nil {
		return err
	}
	vpState.ApplyMode(rf, mode, gdtGVA, uint16(GDTSize-1), idtGVA, uint16(IDTSize-1))

	rf.SetUint64(RegCr3, pml4GPA)
	cr0 := rf.Uint64(RegCr0)
	rf.SetUint64(RegCr0, cr0|(1<<0)|(1<<31)) // PE | PG
	cr4 := rf.Uint64(RegCr4)
	rf.SetUint64(RegCr4, (cr4|(1<<5))&^(1<<24)) // PAE set, Cr4.bit24 (unused here) clear
	efer := rf.Uint64(RegEfer)
	rf.SetUint64(RegEfer, (efer|(1<<8)|(1<<0))&^(1<<16)) // LME | SCE, bit16 clear

	if err := vpState.SetRegisters(rf); err != nil {
		return err
	}
	m.initialized = true
	return nil
}
