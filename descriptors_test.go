package whse

import "testing"

func TestBuildGDTSize(t *testing.T) {
	gdt := BuildGDT(TSSBaseGVA)
	if len(gdt) != GDTSize {
		t.Fatalf("len(BuildGDT) = %d, want %d", len(gdt), GDTSize)
	}
}

func TestBuildGDTNullDescriptorIsZero(t *testing.T) {
	gdt := BuildGDT(TSSBaseGVA)
	for i, b := range gdt[0:8] {
		if b != 0 {
			t.Fatalf("null descriptor byte %d = %#x, want 0", i, b)
		}
	}
}

func TestBuildGDTTSSDescriptorEncodesBase(t *testing.T) {
	gdt := BuildGDT(TSSBaseGVA)
	tssDesc := gdt[5*8 : 5*8+16]
	low := uint32(tssDesc[2]) | uint32(tssDesc[3])<<8 | uint32(tssDesc[4])<<16 | uint32(tssDesc[7])<<24
	high := uint32(tssDesc[8]) | uint32(tssDesc[9])<<8 | uint32(tssDesc[10])<<16 | uint32(tssDesc[11])<<24
	gotBase := uint64(low) | uint64(high)<<32
	if gotBase != TSSBaseGVA {
		t.Fatalf("tss descriptor base = %#x, want %#x", gotBase, TSSBaseGVA)
	}
}

func TestBuildIDTSize(t *testing.T) {
	idt := BuildIDT(TrapPageGVA)
	if len(idt) != IDTSize {
		t.Fatalf("len(BuildIDT) = %d, want %d", len(idt), IDTSize)
	}
}

func TestBuildIDTVectorPointsIntoTrapPage(t *testing.T) {
	idt := BuildIDT(TrapPageGVA)
	for vector := 0; vector < IDTVectorCount; vector++ {
		entry := idt[vector*16 : vector*16+16]
		low := uint64(entry[0]) | uint64(entry[1])<<8
		mid := uint64(entry[6]) | uint64(entry[7])<<8
		high := uint64(entry[8]) | uint64(entry[9])<<8 | uint64(entry[10])<<16 | uint64(entry[11])<<24
		handler := low | mid<<16 | high<<32
		want := TrapPageGVA + uint64(vector)*8
		if handler != want {
			t.Fatalf("vector %d handler = %#x, want %#x", vector, handler, want)
		}
	}
}

func TestBuildTSSSize(t *testing.T) {
	tss := BuildTSS(0x1000, 0x2000)
	if len(tss) != TSSSize {
		t.Fatalf("len(BuildTSS) = %d, want %d", len(tss), TSSSize)
	}
}

func TestBuildTSSEncodesRsp0(t *testing.T) {
	const rsp0 = uint64(0xDEAD_BEEF_0000_1000)
	tss := BuildTSS(rsp0, 0)
	var got uint64
	for i := 0; i < 8; i++ {
		got |= uint64(tss[4+i]) << (8 * i)
	}
	if got != rsp0 {
		t.Fatalf("Rsp0 = %#x, want %#x", got, rsp0)
	}
}

func TestPushesErrorCode(t *testing.T) {
	for _, v := range []uint8{8, 10, 11, 12, 13, 14, 17, 21, 29, 30} {
		if !PushesErrorCode(v) {
			t.Errorf("PushesErrorCode(%d) = false, want true", v)
		}
	}
	for _, v := range []uint8{0, 1, 2, 3, 6, 7, 9, 16, 18, 19, 20} {
		if PushesErrorCode(v) {
			t.Errorf("PushesErrorCode(%d) = true, want false", v)
		}
	}
}
