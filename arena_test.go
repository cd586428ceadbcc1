package whse

import "testing"

func TestAlignUpDown(t *testing.T) {
	cases := []struct {
		x, align, up, down uint64
	}{
		{0, PageSize, 0, 0},
		{1, PageSize, PageSize, 0},
		{PageSize, PageSize, PageSize, PageSize},
		{PageSize + 1, PageSize, 2 * PageSize, PageSize},
		{0x1234, 0x1000, 0x2000, 0x1000},
	}
	for _, c := range cases {
		if got := AlignUp(c.x, c.align); got != c.up {
			t.Errorf("AlignUp(%#x, %#x) = %#x, want %#x", c.x, c.align, got, c.up)
		}
		if got := AlignDown(c.x, c.align); got != c.down {
			t.Errorf("AlignDown(%#x, %#x) = %#x, want %#x", c.x, c.align, got, c.down)
		}
	}
}

func TestArenaSuggestPhysicalAdvancesWatermark(t *testing.T) {
	a := NewArena(4 * PageSize)
	first, err := a.SuggestPhysical(PageSize)
	if err != nil {
		t.Fatalf("SuggestPhysical: %v", err)
	}
	if first != PageSize {
		t.Fatalf("first suggestion = %#x, want %#x (GPA 0 reserved)", first, PageSize)
	}
	second, err := a.SuggestPhysical(PageSize)
	if err != nil {
		t.Fatalf("SuggestPhysical: %v", err)
	}
	if second != first+PageSize {
		t.Fatalf("second suggestion = %#x, want %#x", second, first+PageSize)
	}
}

func TestArenaSuggestPhysicalOutOfMemory(t *testing.T) {
	a := NewArena(2 * PageSize)
	if _, err := a.SuggestPhysical(4 * PageSize); err != ErrOutOfMemory {
		t.Fatalf("err = %v, want ErrOutOfMemory", err)
	}
}

func TestArenaSuggestVirtualSeparatesModes(t *testing.T) {
	a := NewArena(16 * PageSize)
	u, err := a.SuggestVirtual(PageSize, ModeUser)
	if err != nil {
		t.Fatalf("SuggestVirtual(user): %v", err)
	}
	if u < UserSpaceLow || u >= KernelSpaceLow {
		t.Fatalf("user suggestion %#x escaped user range", u)
	}
	k, err := a.SuggestVirtual(PageSize, ModeKernel)
	if err != nil {
		t.Fatalf("SuggestVirtual(kernel): %v", err)
	}
	if k < KernelSpaceLow {
		t.Fatalf("kernel suggestion %#x escaped kernel range", k)
	}
}

func TestArenaSuggestZeroSizeRejected(t *testing.T) {
	a := NewArena(16 * PageSize)
	if _, err := a.SuggestPhysical(0); err != ErrInvalidArgument {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
	if _, err := a.SuggestVirtual(0, ModeUser); err != ErrInvalidArgument {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}
