package whse

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Midi12/whse/internal/bindings"
)

// BlockType classifies what an AllocationNode backs.
type BlockType int

const (
	BlockPhysical BlockType = iota
	BlockVirtual
	BlockPageTable
)

func (b BlockType) String() string {
	switch b {
	case BlockPhysical:
		return "physical"
	case BlockVirtual:
		return "virtual"
	case BlockPageTable:
		return "page-table"
	default:
		return fmt.Sprintf("BlockType(%d)", int(b))
	}
}

// AllocationNode records one live guest allocation: the host memory backing
// it, where it lives in guest-physical space, and (for virtual allocations)
// where it lives in guest-virtual space.
type AllocationNode struct {
	BlockType            BlockType
	HostVirtualAddress   uintptr
	GuestPhysicalAddress uint64
	GuestVirtualAddress  uint64
	Size                 uint64
	// Borrowed marks host memory the tracker does not own (map_host_to_*
	// variants); FreeAll skips releasing it.
	Borrowed bool

	// hostAlloc keeps the platform allocation's runtime.AddCleanup-backed
	// object reachable for as long as the node lives; without this the GC
	// could finalize and release the host pages out from under an active
	// guest mapping.
	hostAlloc *bindings.Allocation
}

func (n *AllocationNode) containsGVA(gva uint64, mode TrackerMatchMode) bool {
	if n.GuestVirtualAddress == 0 {
		return false
	}
	if mode == MatchExactEquality {
		return gva == n.GuestVirtualAddress
	}
	return gva >= n.GuestVirtualAddress && gva < n.GuestVirtualAddress+n.Size
}

func (n *AllocationNode) containsGPA(gpa uint64, mode TrackerMatchMode) bool {
	if n.GuestPhysicalAddress == 0 && n.GuestVirtualAddress == 0 {
		return false
	}
	if mode == MatchExactEquality {
		return gpa == n.GuestPhysicalAddress
	}
	return gpa >= n.GuestPhysicalAddress && gpa < n.GuestPhysicalAddress+n.Size
}

// Tracker is the ordered list of live allocations. It never reorders or
// deduplicates on insert; callers are responsible for not creating
// overlapping ranges. Lookups are a linear scan, acceptable because a
// shellcode workload keeps the node count in the tens.
type Tracker struct {
	mu        sync.Mutex
	nodes     []*AllocationNode
	matchMode TrackerMatchMode
	log       *logrus.Entry
}

func newTracker(mode TrackerMatchMode, log *logrus.Entry) *Tracker {
	if log == nil {
		log = discardLogger
	}
	return &Tracker{matchMode: mode, log: log}
}

// Insert copies node and appends it to the tail of the list.
func (t *Tracker) Insert(node AllocationNode) *AllocationNode {
	t.mu.Lock()
	defer t.mu.Unlock()
	owned := node
	t.nodes = append(t.nodes, &owned)
	t.log.WithFields(logrus.Fields{
		"block_type": owned.BlockType,
		"gpa":        fmt.Sprintf("%#x", owned.GuestPhysicalAddress),
		"gva":        fmt.Sprintf("%#x", owned.GuestVirtualAddress),
		"size":       owned.Size,
	}).Debug("tracker: insert")
	return &owned
}

// Find returns the first node matching predicate.
func (t *Tracker) Find(predicate func(*AllocationNode) bool) (*AllocationNode, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, n := range t.nodes {
		if predicate(n) {
			return n, true
		}
	}
	return nil, false
}

// FindByGVA returns the first node whose guest-virtual range contains gva.
// A zero GVA never matches.
func (t *Tracker) FindByGVA(gva uint64) (*AllocationNode, bool) {
	return t.Find(func(n *AllocationNode) bool { return n.containsGVA(gva, t.matchMode) })
}

// FindByGPA returns the first node whose guest-physical range contains gpa.
func (t *Tracker) FindByGPA(gpa uint64) (*AllocationNode, bool) {
	return t.Find(func(n *AllocationNode) bool { return n.containsGPA(gpa, t.matchMode) })
}

// Remove drops node from the tracker. It is for callers that free a node
// outside the normal FreeAll teardown path (the trap page, freed immediately
// after InitializeMemoryLayout installs it) and must stop FreeAll from
// visiting it again later. A no-op if node is not currently tracked.
func (t *Tracker) Remove(node *AllocationNode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, n := range t.nodes {
		if n == node {
			t.nodes = append(t.nodes[:i], t.nodes[i+1:]...)
			return
		}
	}
}

// Nodes returns a point-in-time snapshot of the tracked nodes.
func (t *Tracker) Nodes() []*AllocationNode {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*AllocationNode, len(t.nodes))
	copy(out, t.nodes)
	return out
}

// FreeAll drains the tracker, calling freePhysical for nodes with only a GPA
// set and freeVirtual for nodes with both a GPA and a GVA set. Every node is
// visited even if an earlier free fails; the first error is returned.
func (t *Tracker) FreeAll(freePhysical, freeVirtual func(*AllocationNode) error) error {
	t.mu.Lock()
	nodes := t.nodes
	t.nodes = nil
	t.mu.Unlock()

	var firstErr error
	for _, n := range nodes {
		var err error
		switch {
		case n.GuestPhysicalAddress != 0 && n.GuestVirtualAddress != 0:
			err = freeVirtual(n)
		case n.GuestPhysicalAddress != 0:
			err = freePhysical(n)
		default:
			err = fmt.Errorf("%w: node has neither GPA nor GVA set", ErrInternal)
		}
		if err != nil {
			t.log.WithError(err).Warn("tracker: free_all: node release failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
