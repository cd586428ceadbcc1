package whse

import (
	"sync"
	"unsafe"

	"github.com/sirupsen/logrus"

	"github.com/Midi12/whse/internal/bindings"
)

// VirtualProcessor is the thin record the library keeps about the single
// vCPU it creates per partition.
type VirtualProcessor struct {
	Index  uint32
	Mode   ProcessorMode
	Vendor bindings.ProcessorVendor
}

// Partition owns a platform partition, its single virtual processor, its
// guest memory manager, and the exit/ISR callback registries. Construct one
// with NewPartition and release it with Close.
type Partition struct {
	handle bindings.PartitionHandle
	vp     VirtualProcessor

	tracker *Tracker
	arena   *Arena
	mem     *GuestMemoryManager
	vpState *VPStateManager

	exitCallbacks [exitSlotCount]ExitCallback
	isrCallbacks  [IDTVectorCount]ISRCallback

	policy Policy
	log    *logrus.Entry

	mu        sync.Mutex
	escalated bool
	savedCS   uint16
	savedSS   uint16
}

// Option configures a Partition at construction time.
type Option func(*Partition)

// WithPolicy overrides the default Policy.
func WithPolicy(p Policy) Option { return func(pt *Partition) { pt.policy = p } }

// WithLogger overrides the default logger (a stderr logger at
// Policy.LogLevel, or a discard logger when LogLevel is empty).
func WithLogger(l *logrus.Entry) Option { return func(pt *Partition) { pt.log = l } }

// NewPartition creates a platform partition constrained to a single
// processor, finalizes its setup, and creates that single virtual
// processor in the given mode.
func NewPartition(mode ProcessorMode, opts ...Option) (p *Partition, err error) {
	p = &Partition{policy: DefaultPolicy(), log: discardLogger}
	for _, o := range opts {
		o(p)
	}
	if p.log == discardLogger && p.policy.LogLevel != "" {
		p.log = loggerForLevel(p.policy.LogLevel)
	}

	handle, err := bindings.CreatePartition()
	if err != nil {
		return nil, wrapPlatform("create_partition", err)
	}
	defer func() {
		if err != nil {
			bindings.DeletePartition(handle)
		}
	}()

	if err = bindings.SetPartitionPropertyUnsafe(handle, bindings.PartitionPropertyCodeProcessorCount, uint32(1)); err != nil {
		return nil, wrapPlatform("set_partition_property(processor_count)", err)
	}
	if err = bindings.SetupPartition(handle); err != nil {
		return nil, wrapPlatform("setup_partition", err)
	}
	if err = bindings.CreateVirtualProcessor(handle, 0, 0); err != nil {
		return nil, wrapPlatform("create_virtual_processor", err)
	}

	p.handle = handle
	p.vp = VirtualProcessor{Index: 0, Mode: mode}
	p.tracker = newTracker(p.policy.TrackerMatchMode, p.log)
	p.arena = NewArena(p.policy.GuestMemorySize)
	p.mem = newGuestMemoryManager(handle, p.tracker, p.arena, p.log)
	p.vpState = newVPStateManager(handle, 0, p.log)
	return p, nil
}

// Memory exposes the guest memory manager (allocate/map/free/translate).
func (p *Partition) Memory() *GuestMemoryManager { return p.mem }

// Registers exposes the VP state manager (get/set the 33-register snapshot).
func (p *Partition) Registers() *VPStateManager { return p.vpState }

// Tracker exposes the allocation tracker, primarily for tests and
// diagnostics.
func (p *Partition) Tracker() *Tracker { return p.tracker }

// InitializeMemoryLayout builds paging, the GDT/TSS/IDT and enables paging
// and long mode on the virtual processor, using the mode this partition was
// created with.
func (p *Partition) InitializeMemoryLayout() error {
	return p.mem.InitializeMemoryLayout(p.vpState, p.vp.Mode)
}

// RegisterExitCallback installs fn for the given exit reason slot.
func (p *Partition) RegisterExitCallback(slot ExitSlot, fn ExitCallback) error {
	if slot < 0 || slot >= exitSlotCount {
		return ErrInvalidArgument
	}
	if fn == nil {
		return ErrInvalidArgument
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exitCallbacks[slot] = fn
	return nil
}

// GetExitCallback returns the callback installed for slot, if any.
func (p *Partition) GetExitCallback(slot ExitSlot) (ExitCallback, error) {
	if slot < 0 || slot >= exitSlotCount {
		return nil, ErrInvalidArgument
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCallbacks[slot], nil
}

// UnregisterExitCallback removes the callback installed for slot.
func (p *Partition) UnregisterExitCallback(slot ExitSlot) error {
	if slot < 0 || slot >= exitSlotCount {
		return ErrInvalidArgument
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exitCallbacks[slot] = nil
	return nil
}

// RegisterISR installs fn as the handler for the given interrupt vector,
// invoked when the synthetic trap page intercepts a control transfer to it.
func (p *Partition) RegisterISR(vector uint8, fn ISRCallback) error {
	if fn == nil {
		return ErrInvalidArgument
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.isrCallbacks[vector] = fn
	return nil
}

// UnregisterISR removes the handler installed for vector.
func (p *Partition) UnregisterISR(vector uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.isrCallbacks[vector] = nil
}

// CancelRun requests that a concurrently running Run() return with a
// UserCanceled exit. Safe to call from any goroutine.
func (p *Partition) CancelRun() error {
	return wrapPlatform("cancel_run_virtual_processor", bindings.CancelRunVirtualProcessor(p.handle, p.vp.Index, 0))
}

// Close tears the partition down: every tracked allocation is released,
// the virtual processor is deleted, and the platform partition is deleted.
// Every step is attempted even if an earlier one fails; the first error
// encountered is returned.
func (p *Partition) Close() error {
	var firstErr error
	if p.tracker != nil {
		if err := p.tracker.FreeAll(p.mem.freePhysicalNode, p.mem.freeVirtualNode); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := bindings.DeleteVirtualProcessor(p.handle, p.vp.Index); err != nil && firstErr == nil {
		firstErr = wrapPlatform("delete_virtual_processor", err)
	}
	if err := bindings.DeletePartition(p.handle); err != nil && firstErr == nil {
		firstErr = wrapPlatform("delete_partition", err)
	}
	return firstErr
}

// IsHypervisorPresent reports whether the host exposes a usable hypervisor.
func IsHypervisorPresent() (bool, error) {
	var present uint32
	if _, err := bindings.GetCapability(bindings.CapabilityCodeHypervisorPresent, unsafe.Pointer(&present), uint32(unsafe.Sizeof(present))); err != nil {
		return false, wrapPlatform("get_capability(hypervisor_present)", err)
	}
	return present != 0, nil
}
