package whse

import (
	"fmt"
	"unsafe"

	"github.com/Midi12/whse/internal/bindings"
)

// ExitSlot indexes the fixed exit-reason callback table.
type ExitSlot int

const (
	ExitMemoryAccess ExitSlot = iota
	ExitIoPortAccess
	ExitUnrecoverableException
	ExitInvalidVpRegisterValue
	ExitUnsupportedFeature
	ExitInterruptWindow
	ExitHalt
	ExitApicEoi
	ExitMsrAccess
	ExitCpuid
	ExitException
	ExitRdtsc
	ExitCanceled
	exitSlotCount
)

// ExitCallback handles one VM exit. Returning retry=true causes Run to call
// back into the platform without returning to the caller; retry=false (or
// a non-nil error) ends the Run call with the current exit reason.
type ExitCallback func(p *Partition, exit *bindings.RunVPExitContext) (retry bool, err error)

// ISRCallback handles a synthesized interrupt, reconstructed from a memory
// access that landed on the IDT trap page. frame is the interrupt frame the
// CPU pushed (already popped off the guest stack by the time this runs);
// errorCode/hasErrorCode reflect whether this vector's exception pushes one.
type ISRCallback func(p *Partition, frame *InterruptFrame, errorCode uint32, hasErrorCode bool) (retry bool, err error)

func exitReasonToSlot(r bindings.RunVPExitReason) (ExitSlot, bool) {
	switch r {
	case bindings.RunVPExitReasonMemoryAccess:
		return ExitMemoryAccess, true
	case bindings.RunVPExitReasonX64IoPortAccess:
		return ExitIoPortAccess, true
	case bindings.RunVPExitReasonUnrecoverableException:
		return ExitUnrecoverableException, true
	case bindings.RunVPExitReasonInvalidVpRegisterValue:
		return ExitInvalidVpRegisterValue, true
	case bindings.RunVPExitReasonUnsupportedFeature:
		return ExitUnsupportedFeature, true
	case bindings.RunVPExitReasonX64InterruptWindow:
		return ExitInterruptWindow, true
	case bindings.RunVPExitReasonX64Halt:
		return ExitHalt, true
	case bindings.RunVPExitReasonX64ApicEoi:
		return ExitApicEoi, true
	case bindings.RunVPExitReasonX64MsrAccess:
		return ExitMsrAccess, true
	case bindings.RunVPExitReasonX64Cpuid:
		return ExitCpuid, true
	case bindings.RunVPExitReasonException:
		return ExitException, true
	case bindings.RunVPExitReasonX64Rdtsc:
		return ExitRdtsc, true
	case bindings.RunVPExitReasonCanceled:
		return ExitCanceled, true
	default:
		return 0, false
	}
}

// Run drives the virtual processor until a callback declines to retry. It
// is not re-entrant: callbacks must not call Run recursively.
func (p *Partition) Run() (bindings.RunVPExitReason, error) {
	for {
		var exitCtx bindings.RunVPExitContext
		if err := bindings.RunVirtualProcessorContext(p.handle, p.vp.Index, &exitCtx); err != nil {
			return exitCtx.ExitReason, wrapPlatform("run_virtual_processor", err)
		}
		p.log.WithField("exit_reason", exitCtx.ExitReason.String()).Debug("exit loop: vm exit")

		if exitCtx.ExitReason == bindings.RunVPExitReasonMemoryAccess {
			retry, handled, err := p.dispatchTrapPage(&exitCtx)
			if err != nil {
				return exitCtx.ExitReason, err
			}
			if handled {
				if retry {
					continue
				}
				return exitCtx.ExitReason, nil
			}
		}

		slot, ok := exitReasonToSlot(exitCtx.ExitReason)
		if !ok {
			return exitCtx.ExitReason, fmt.Errorf("%w: unknown exit reason %s", ErrInternal, exitCtx.ExitReason)
		}

		if exitCtx.ExitReason == bindings.RunVPExitReasonUnrecoverableException && p.policy.AllowRingEscalation {
			escalated, err := p.maybeEscalate()
			if err != nil {
				return exitCtx.ExitReason, err
			}
			if escalated {
				// Re-run immediately under kernel selectors so the
				// exception is redelivered with the privilege its ISR
				// needs; do not hand this occurrence to the exit callback.
				continue
			}
		}

		p.mu.Lock()
		cb := p.exitCallbacks[slot]
		p.mu.Unlock()
		if cb == nil {
			return exitCtx.ExitReason, fmt.Errorf("%w: no callback registered for %s", ErrInternal, exitCtx.ExitReason)
		}
		retry, err := cb(p, &exitCtx)
		if err != nil {
			return exitCtx.ExitReason, err
		}
		if retry {
			continue
		}
		return exitCtx.ExitReason, nil
	}
}

// dispatchTrapPage checks whether a memory-access exit landed on the IDT
// trap page; if so it derives the vector, reconstructs the interrupt frame
// from the guest stack, invokes the matching ISR callback, and restores
// control-flow registers from the (possibly ISR-modified) frame.
func (p *Partition) dispatchTrapPage(exitCtx *bindings.RunVPExitContext) (retry bool, handled bool, err error) {
	mem := exitCtx.MemoryAccess()
	gva := uint64(mem.Gva)
	pageBase := AlignDown(gva, PageSize)
	if pageBase != TrapPageGVA {
		return false, false, nil
	}
	vector := uint8((gva - TrapPageGVA) / 8)

	p.mu.Lock()
	isr := p.isrCallbacks[vector]
	p.mu.Unlock()
	if isr == nil {
		return false, true, fmt.Errorf("%w: no ISR registered for vector %d", ErrInternal, vector)
	}

	rf, err := p.vpState.GetRegisters()
	if err != nil {
		return false, true, err
	}
	rsp := rf.Uint64(RegRsp)
	node, ok := p.tracker.FindByGVA(rsp)
	if !ok {
		return false, true, fmt.Errorf("%w: guest stack not tracked at rsp %#x", ErrInternal, rsp)
	}
	hva := node.HostVirtualAddress + uintptr(rsp-node.GuestVirtualAddress)

	var errorCode uint32
	hasErrorCode := PushesErrorCode(vector)
	if hasErrorCode {
		errorCode = *(*uint32)(unsafe.Pointer(hva))
		hva += 8
		rsp += 8
	}
	frame := *(*InterruptFrame)(unsafe.Pointer(hva))
	rsp += InterruptFrameSize
	rf.SetUint64(RegRsp, rsp)
	if err := p.vpState.SetRegisters(rf); err != nil {
		return false, true, err
	}

	retryISR, err := isr(p, &frame, errorCode, hasErrorCode)
	if err != nil {
		return false, true, err
	}

	rf, err = p.vpState.GetRegisters()
	if err != nil {
		return false, true, err
	}
	rf.SetUint64(RegRip, frame.Rip)
	rf.Segment(RegCs).Selector = uint16(frame.Cs)
	rf.SetUint64(RegRflags, frame.Rflags)
	rf.SetUint64(RegRsp, frame.Rsp)
	rf.Segment(RegSs).Selector = uint16(frame.Ss)

	p.mu.Lock()
	if p.escalated {
		// The exception that got us here was serviced by an ISR running in
		// the escalated kernel selectors; hand control back to ring 3 with
		// the selectors it had before escalation.
		rf.Segment(RegCs).Selector = p.savedCS
		rf.Segment(RegSs).Selector = p.savedSS
		p.escalated = false
	}
	p.mu.Unlock()

	if err := p.vpState.SetRegisters(rf); err != nil {
		return false, true, err
	}
	return retryISR, true, nil
}

// maybeEscalate transparently switches a ring-3 vCPU to kernel selectors
// when an unrecoverable exception occurs, so the ISR callback that services
// it (e.g. mapping in a missing page) can itself run privileged. Gated by
// Policy.AllowRingEscalation; without it, ring-3 shellcode can never take a
// serviceable page fault. Reports whether it actually escalated: a no-op
// when the vCPU is already in ring 0, or when an escalation is already in
// effect, is not retried by the caller. dispatchTrapPage restores savedCS/
// savedSS and clears escalated once the ISR servicing the redelivered
// exception returns.
func (p *Partition) maybeEscalate() (bool, error) {
	rf, err := p.vpState.GetRegisters()
	if err != nil {
		return false, err
	}
	cs := rf.Segment(RegCs)
	p.mu.Lock()
	if cs.Selector&0x3 != 3 || p.escalated {
		p.mu.Unlock()
		return false, nil
	}
	p.savedCS = cs.Selector
	p.savedSS = rf.Segment(RegSs).Selector
	p.escalated = true
	p.mu.Unlock()

	cs.Selector = SelectorKernelCode
	rf.Segment(RegSs).Selector = SelectorKernelData
	if err := p.vpState.SetRegisters(rf); err != nil {
		return false, err
	}
	return true, nil
}
