package whse

import "testing"

func TestRegisterString(t *testing.T) {
	if got := RegRax.String(); got != "RAX" {
		t.Errorf("RegRax.String() = %q, want RAX", got)
	}
	if got := Register(999).String(); got == "" {
		t.Error("out-of-range Register.String() should not be empty")
	}
}

func TestSegAttrsPacksExpectedBits(t *testing.T) {
	attrs := segAttrs(segTypeCode, true, 3, true, true, false, true)
	if attrs&0xF != segTypeCode {
		t.Errorf("type nibble = %#x, want %#x", attrs&0xF, segTypeCode)
	}
	if attrs&(1<<4) == 0 {
		t.Error("non-system bit not set")
	}
	if (attrs>>5)&0x3 != 3 {
		t.Errorf("dpl = %d, want 3", (attrs>>5)&0x3)
	}
	if attrs&(1<<7) == 0 {
		t.Error("present bit not set")
	}
	if attrs&(1<<13) == 0 {
		t.Error("long-mode bit not set")
	}
	if attrs&(1<<14) != 0 {
		t.Error("default-operand-size bit should be clear when defBit=false")
	}
	if attrs&(1<<15) == 0 {
		t.Error("granularity bit not set")
	}
}

func TestProcessorModeString(t *testing.T) {
	if ModeUser.String() != "user" {
		t.Errorf("ModeUser.String() = %q", ModeUser.String())
	}
	if ModeKernel.String() != "kernel" {
		t.Errorf("ModeKernel.String() = %q", ModeKernel.String())
	}
}
