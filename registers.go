package whse

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Midi12/whse/internal/bindings"
)

// Register indexes the fixed, ordered 33-register snapshot the platform
// exposes for a virtual processor. The order here is load-bearing: it is
// mirrored 1:1 into registerNames below, which is the slice actually handed
// to the platform's Get/SetVirtualProcessorRegisters calls.
type Register int

const (
	RegRax Register = iota
	RegRbx
	RegRcx
	RegRdx
	RegRbp
	RegRsp
	RegRsi
	RegRdi
	RegR8
	RegR9
	RegR10
	RegR11
	RegR12
	RegR13
	RegR14
	RegR15
	RegRip
	RegRflags
	RegGs
	RegFs
	RegEs
	RegDs
	RegCs
	RegSs
	RegGdtr
	RegLdtr
	RegIdtr
	RegTr
	RegCr0
	RegCr2
	RegCr3
	RegCr4
	RegEfer
	registerCount
)

var registerDisplayNames = [registerCount]string{
	RegRax: "RAX", RegRbx: "RBX", RegRcx: "RCX", RegRdx: "RDX",
	RegRbp: "RBP", RegRsp: "RSP", RegRsi: "RSI", RegRdi: "RDI",
	RegR8: "R8", RegR9: "R9", RegR10: "R10", RegR11: "R11",
	RegR12: "R12", RegR13: "R13", RegR14: "R14", RegR15: "R15",
	RegRip: "RIP", RegRflags: "RFLAGS",
	RegGs: "GS", RegFs: "FS", RegEs: "ES", RegDs: "DS", RegCs: "CS", RegSs: "SS",
	RegGdtr: "GDTR", RegLdtr: "LDTR", RegIdtr: "IDTR", RegTr: "TR",
	RegCr0: "CR0", RegCr2: "CR2", RegCr3: "CR3", RegCr4: "CR4", RegEfer: "EFER",
}

func (r Register) String() string {
	if r < 0 || r >= registerCount {
		return fmt.Sprintf("Register(%d)", int(r))
	}
	return registerDisplayNames[r]
}

var registerNames = [registerCount]bindings.RegisterName{
	RegRax: bindings.RegisterRax, RegRbx: bindings.RegisterRbx,
	RegRcx: bindings.RegisterRcx, RegRdx: bindings.RegisterRdx,
	RegRbp: bindings.RegisterRbp, RegRsp: bindings.RegisterRsp,
	RegRsi: bindings.RegisterRsi, RegRdi: bindings.RegisterRdi,
	RegR8: bindings.RegisterR8, RegR9: bindings.RegisterR9,
	RegR10: bindings.RegisterR10, RegR11: bindings.RegisterR11,
	RegR12: bindings.RegisterR12, RegR13: bindings.RegisterR13,
	RegR14: bindings.RegisterR14, RegR15: bindings.RegisterR15,
	RegRip: bindings.RegisterRip, RegRflags: bindings.RegisterRflags,
	RegGs: bindings.RegisterGs, RegFs: bindings.RegisterFs,
	RegEs: bindings.RegisterEs, RegDs: bindings.RegisterDs,
	RegCs: bindings.RegisterCs, RegSs: bindings.RegisterSs,
	RegGdtr: bindings.RegisterGdtr, RegLdtr: bindings.RegisterLdtr,
	RegIdtr: bindings.RegisterIdtr, RegTr: bindings.RegisterTr,
	RegCr0: bindings.RegisterCr0, RegCr2: bindings.RegisterCr2,
	RegCr3: bindings.RegisterCr3, RegCr4: bindings.RegisterCr4,
	RegEfer: bindings.RegisterEfer,
}

// RegisterFile is the 33-entry snapshot of a virtual processor's
// architectural state, indexed by Register.
type RegisterFile struct {
	Values [registerCount]bindings.RegisterValue
}

func (f *RegisterFile) Uint64(r Register) uint64    { return *f.Values[r].AsUint64() }
func (f *RegisterFile) SetUint64(r Register, v uint64) { f.Values[r].SetUint64(v) }

func (f *RegisterFile) Segment(r Register) *bindings.X64SegmentRegister { return f.Values[r].AsSegment() }
func (f *RegisterFile) Table(r Register) *bindings.X64TableRegister    { return f.Values[r].AsTable() }

// segAttrs packs a segment-descriptor cache attribute word: the shape the
// platform expects inside a RegisterValue's segment view.
func segAttrs(segType uint8, nonSystem bool, dpl uint8, present, long, defBit, gran bool) uint16 {
	var v uint16
	v |= uint16(segType & 0xF)
	if nonSystem {
		v |= 1 << 4
	}
	v |= uint16(dpl&0x3) << 5
	if present {
		v |= 1 << 7
	}
	if long {
		v |= 1 << 13
	}
	if defBit {
		v |= 1 << 14
	}
	if gran {
		v |= 1 << 15
	}
	return v
}

const (
	segTypeCode = 0xA // execute/read
	segTypeData = 0x2 // read/write
	rflagsReservedBit1 = 1 << 1
	rflagsIF            = 1 << 9
)

// VPStateManager gets and sets a virtual processor's full register
// snapshot and knows how to lay out the CPU-mode-dependent segment slice
// of it.
type VPStateManager struct {
	partition bindings.PartitionHandle
	vpIndex   uint32
	log       *logrus.Entry
}

func newVPStateManager(partition bindings.PartitionHandle, vpIndex uint32, log *logrus.Entry) *VPStateManager {
	if log == nil {
		log = discardLogger
	}
	return &VPStateManager{partition: partition, vpIndex: vpIndex, log: log}
}

// GetRegisters reads all 33 registers from the platform.
func (m *VPStateManager) GetRegisters() (*RegisterFile, error) {
	var rf RegisterFile
	if err := bindings.GetVirtualProcessorRegisters(m.partition, m.vpIndex, registerNames[:], rf.Values[:]); err != nil {
		return nil, wrapPlatform("get_virtual_processor_registers", err)
	}
	return &rf, nil
}

// SetRegisters writes all 33 registers to the platform.
func (m *VPStateManager) SetRegisters(rf *RegisterFile) error {
	if err := bindings.SetVirtualProcessorRegisters(m.partition, m.vpIndex, registerNames[:], rf.Values[:]); err != nil {
		return wrapPlatform("set_virtual_processor_registers", err)
	}
	return nil
}

// ApplyMode lays out CS/SS/DS/ES/FS/GS, Gdtr, Idtr and Tr for the given
// processor mode, and initializes Rflags with the reserved bit and IF set.
func (m *VPStateManager) ApplyMode(rf *RegisterFile, mode ProcessorMode, gdtBase uint64, gdtLimit uint16, idtBase uint64, idtLimit uint16) {
	var codeSel, dataSel uint16
	var dpl uint8
	if mode == ModeUser {
		codeSel, dataSel, dpl = SelectorUserCode|3, SelectorUserData|3, 3
	} else {
		codeSel, dataSel, dpl = SelectorKernelCode, SelectorKernelData, 0
	}

	cs := rf.Segment(RegCs)
	cs.Selector = codeSel
	cs.Base, cs.Limit = 0, 0xFFFFFFFF
	cs.Attributes = segAttrs(segTypeCode, true, dpl, true, true, false, true)

	for _, r := range [...]Register{RegDs, RegEs, RegSs, RegFs, RegGs} {
		seg := rf.Segment(r)
		seg.Selector = dataSel
		seg.Base, seg.Limit = 0, 0xFFFFFFFF
		seg.Attributes = segAttrs(segTypeData, true, dpl, true, false, true, true)
	}

	gdtr := rf.Table(RegGdtr)
	gdtr.Base, gdtr.Limit = gdtBase, gdtLimit
	idtr := rf.Table(RegIdtr)
	idtr.Base, idtr.Limit = idtBase, idtLimit

	tr := rf.Segment(RegTr)
	tr.Selector = SelectorTSS
	tr.Base, tr.Limit = TSSBaseGVA, tssLimit
	tr.Attributes = segAttrs(0xB, false, 0, true, false, false, false) // 64-bit TSS (busy), system descriptor

	rf.SetUint64(RegRflags, rflagsReservedBit1|rflagsIF)
}
