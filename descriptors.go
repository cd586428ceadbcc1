package whse

import "encoding/binary"

// Fixed guest-virtual placement of the descriptor tables. These addresses
// live in kernel space and are never reused for anything else.
const (
	GDTBaseGVA  uint64 = 0xFFFF_8000_0000_0000
	IDTBaseGVA  uint64 = 0xFFFF_8000_0000_1000
	TrapPageGVA uint64 = 0xFFFF_8000_0000_2000
	TSSBaseGVA  uint64 = 0xFFFF_A000_0000_0000
)

// Selectors, matching the fixed GDT layout built by BuildGDT.
const (
	SelectorNull       uint16 = 0x00
	SelectorKernelCode uint16 = 0x08
	SelectorKernelData uint16 = 0x10
	SelectorUserCode   uint16 = 0x18
	SelectorUserData   uint16 = 0x20
	SelectorTSS        uint16 = 0x28
)

const (
	gdtAccessCodeKernel = 0x9A
	gdtAccessDataKernel = 0x92
	gdtAccessCodeUser   = 0xFA
	gdtAccessDataUser   = 0xF2
	gdtAccessTSS        = 0x89
	gdtFlagsCode        = 0xA // Long=1, Granularity=1
	gdtFlagsData        = 0xC // Default=1, Granularity=1

	idtAttrsTrapGate = 0x8E // Present | DPL0 | GateType=0b1110
)

// GDTEntry is one 8-byte segment descriptor.
type GDTEntry struct {
	LimitLow       uint16
	BaseLow        uint16
	BaseMid        uint8
	Access         uint8
	LimitHighFlags uint8 // low nibble: limit[16:19], high nibble: flags
	BaseHigh       uint8
}

func newGDTEntry(base, limit uint32, access, flags uint8) GDTEntry {
	return GDTEntry{
		LimitLow:       uint16(limit & 0xFFFF),
		BaseLow:        uint16(base & 0xFFFF),
		BaseMid:        uint8((base >> 16) & 0xFF),
		Access:         access,
		LimitHighFlags: uint8((limit>>16)&0x0F) | (flags << 4),
		BaseHigh:       uint8((base >> 24) & 0xFF),
	}
}

// Bytes packs the entry into its 8-byte wire layout.
func (e GDTEntry) Bytes() [8]byte {
	return [8]byte{
		byte(e.LimitLow), byte(e.LimitLow >> 8),
		byte(e.BaseLow), byte(e.BaseLow >> 8),
		e.BaseMid, e.Access, e.LimitHighFlags, e.BaseHigh,
	}
}

// TSSDescriptor is the 16-byte system descriptor extension used for the TSS;
// a regular 8-byte GDTEntry cannot address a 64-bit base by itself.
type TSSDescriptor struct {
	Low       GDTEntry
	BaseUpper uint32
}

func newTSSDescriptor(base uint64, limit uint32, access uint8) TSSDescriptor {
	return TSSDescriptor{
		Low:       newGDTEntry(uint32(base), limit, access, 0),
		BaseUpper: uint32(base >> 32),
	}
}

// Bytes packs the descriptor into its 16-byte wire layout.
func (d TSSDescriptor) Bytes() [16]byte {
	var out [16]byte
	low := d.Low.Bytes()
	copy(out[0:8], low[:])
	binary.LittleEndian.PutUint32(out[8:12], d.BaseUpper)
	return out
}

// BuildGDT returns the five fixed 8-byte descriptors (null, kernel
// code/data, user code/data) followed by the 16-byte TSS descriptor
// pointing at tssGVA. Total length is 0x38 bytes.
func BuildGDT(tssGVA uint64) []byte {
	entries := [][8]byte{
		newGDTEntry(0, 0, 0, 0).Bytes(),
		newGDTEntry(0, 0xFFFFF, gdtAccessCodeKernel, gdtFlagsCode).Bytes(),
		newGDTEntry(0, 0xFFFFF, gdtAccessDataKernel, gdtFlagsData).Bytes(),
		newGDTEntry(0, 0xFFFFF, gdtAccessCodeUser, gdtFlagsCode).Bytes(),
		newGDTEntry(0, 0xFFFFF, gdtAccessDataUser, gdtFlagsData).Bytes(),
	}
	buf := make([]byte, 0, len(entries)*8+16)
	for _, e := range entries {
		buf = append(buf, e[:]...)
	}
	tssDesc := newTSSDescriptor(tssGVA, tssLimit, gdtAccessTSS).Bytes()
	buf = append(buf, tssDesc[:]...)
	return buf
}

// GDTSize is the byte length BuildGDT always returns.
const GDTSize = 5*8 + 16

// IDTEntry is one 16-byte interrupt-gate descriptor.
type IDTEntry struct {
	Low        uint16
	Selector   uint16
	IST        uint8
	Attributes uint8
	Mid        uint16
	High       uint32
}

func newIDTEntry(handler uint64, selector uint16, ist, attrs uint8) IDTEntry {
	return IDTEntry{
		Low:        uint16(handler & 0xFFFF),
		Selector:   selector,
		IST:        ist,
		Attributes: attrs,
		Mid:        uint16((handler >> 16) & 0xFFFF),
		High:       uint32(handler >> 32),
	}
}

// Bytes packs the entry into its 16-byte wire layout.
func (e IDTEntry) Bytes() [16]byte {
	var out [16]byte
	binary.LittleEndian.PutUint16(out[0:2], e.Low)
	binary.LittleEndian.PutUint16(out[2:4], e.Selector)
	out[4] = e.IST
	out[5] = e.Attributes
	binary.LittleEndian.PutUint16(out[6:8], e.Mid)
	binary.LittleEndian.PutUint32(out[8:12], e.High)
	return out
}

// IDTVectorCount is the number of entries a full IDT carries.
const IDTVectorCount = 256

// IDTSize is the byte length BuildIDT always returns.
const IDTSize = IDTVectorCount * 16

// BuildIDT returns 256 trap-gate entries, each pointing at a distinct
// 8-byte slot inside the (deliberately unmapped) trap page at trapPageBase.
// A CPU-delivered interrupt N therefore faults at trapPageBase + N*8,
// letting the exit loop recover N from the faulting address alone.
func BuildIDT(trapPageBase uint64) []byte {
	buf := make([]byte, IDTSize)
	for i := 0; i < IDTVectorCount; i++ {
		handler := trapPageBase + uint64(i)*8
		e := newIDTEntry(handler, SelectorKernelCode, 0, idtAttrsTrapGate)
		b := e.Bytes()
		copy(buf[i*16:i*16+16], b[:])
	}
	return buf
}

// TSSSize is the exact packed size of the x86-64 task-state segment.
const TSSSize = 104

// tssLimit is the GDT descriptor limit for the TSS (size - 1).
const tssLimit = TSSSize - 1

// BuildTSS encodes a minimal 64-bit TSS: only Rsp0 (the stack pointer
// loaded on a ring transition into kernel mode) and an IST slot are used;
// everything else this library never populates stays zero. The IOPB offset
// is set to sizeof(TSS), meaning "no I/O permission bitmap".
func BuildTSS(rsp0 uint64, ist1 uint64) []byte {
	buf := make([]byte, TSSSize)
	// buf[0:4] reserved
	binary.LittleEndian.PutUint64(buf[4:12], rsp0)
	// buf[12:20] Rsp1, buf[20:28] Rsp2 left zero
	// buf[28:36] reserved
	binary.LittleEndian.PutUint64(buf[36:44], ist1)
	// buf[44:92] Ist2..Ist7 left zero
	// buf[92:102] reserved
	binary.LittleEndian.PutUint16(buf[102:104], uint16(TSSSize))
	return buf
}

// vectorsWithErrorCode lists the x86-64 exception vectors whose CPU-pushed
// interrupt frame is preceded by a 4-byte error code.
var vectorsWithErrorCode = map[uint8]bool{
	8:  true, // #DF Double Fault
	10: true, // #TS Invalid TSS
	11: true, // #NP Segment Not Present
	12: true, // #SS Stack-Segment Fault
	13: true, // #GP General Protection Fault
	14: true, // #PF Page Fault
	17: true, // #AC Alignment Check
	21: true, // #CP Control Protection Exception
	29: true, // #VC VMM Communication Exception
	30: true, // #SX Security Exception
}

// PushesErrorCode reports whether the CPU pushes an error code onto the
// stack before the standard interrupt frame for the given vector.
func PushesErrorCode(vector uint8) bool {
	return vectorsWithErrorCode[vector]
}

// InterruptFrame is the five 8-byte words the CPU pushes for a control
// transfer through an interrupt gate (after any error code).
type InterruptFrame struct {
	Rip    uint64
	Cs     uint64
	Rflags uint64
	Rsp    uint64
	Ss     uint64
}

// InterruptFrameSize is the exact byte size of InterruptFrame.
const InterruptFrameSize = 40
