//go:build windows && whseIntegration

package whse

import (
	"testing"

	"github.com/Midi12/whse/internal/bindings"
)

// These tests exercise the library against a real Windows Hypervisor
// Platform partition. They only run when built with the whseIntegration
// tag on windows, and skip at runtime if the platform reports no
// hypervisor present (WHP requires an elevated, Hyper-V-capable host).

func requireHypervisor(t *testing.T) {
	t.Helper()
	present, err := IsHypervisorPresent()
	if err != nil {
		t.Fatalf("IsHypervisorPresent: %v", err)
	}
	if !present {
		t.Skip("no hypervisor present on this host")
	}
}

func TestPartitionLifecycle(t *testing.T) {
	requireHypervisor(t)

	p, err := NewPartition(ModeUser)
	if err != nil {
		t.Fatalf("NewPartition: %v", err)
	}
	defer func() {
		if err := p.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	}()

	if err := p.InitializeMemoryLayout(); err != nil {
		t.Fatalf("InitializeMemoryLayout: %v", err)
	}
}

func TestPartitionAllocateAndWriteShellcode(t *testing.T) {
	requireHypervisor(t)

	p, err := NewPartition(ModeUser)
	if err != nil {
		t.Fatalf("NewPartition: %v", err)
	}
	defer p.Close()

	if err := p.InitializeMemoryLayout(); err != nil {
		t.Fatalf("InitializeMemoryLayout: %v", err)
	}

	const codeGVA = UserSpaceLow + PageSize
	flags := bindings.MapGPARangeFlagRead | bindings.MapGPARangeFlagWrite | bindings.MapGPARangeFlagExecute
	gva, _, err := p.Memory().AllocateVirtual(codeGVA, PageSize, ModeUser, flags)
	if err != nil {
		t.Fatalf("AllocateVirtual: %v", err)
	}

	// A single HLT instruction: the simplest payload that reliably produces
	// a recognizable exit (X64Halt) without needing an I/O or MMIO device.
	payload := []byte{0xF4}
	if err := p.Memory().Write(gva, payload); err != nil {
		t.Fatalf("Write: %v", err)
	}

	rf, err := p.Registers().GetRegisters()
	if err != nil {
		t.Fatalf("GetRegisters: %v", err)
	}
	rf.SetUint64(RegRip, gva)
	rf.SetUint64(RegRsp, gva+PageSize-0x100)
	if err := p.Registers().SetRegisters(rf); err != nil {
		t.Fatalf("SetRegisters: %v", err)
	}

	halted := false
	if err := p.RegisterExitCallback(ExitHalt, func(p *Partition, exit *bindings.RunVPExitContext) (bool, error) {
		halted = true
		return false, nil
	}); err != nil {
		t.Fatalf("RegisterExitCallback: %v", err)
	}

	reason, err := p.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !halted {
		t.Errorf("Run exited with %v, expected the halt callback to fire", reason)
	}
}
