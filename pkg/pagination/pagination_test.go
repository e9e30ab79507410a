package pagination

import "testing"

func TestNormalizeLimit(t *testing.T) {
	cases := map[int]int{
		-1:  DefaultLimit,
		0:   DefaultLimit,
		1:   1,
		50:  50,
		51:  MaxLimit,
		500: MaxLimit,
	}
	for in, want := range cases {
		if got := NormalizeLimit(in); got != want {
			t.Fatalf("NormalizeLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestParamsOffset(t *testing.T) {
	if got := (Params{Page: 0, Limit: 0}).Offset(); got != 0 {
		t.Fatalf("expected offset 0, got %d", got)
	}
	if got := (Params{Page: 3, Limit: 20}).Offset(); got != 40 {
		t.Fatalf("expected offset 40, got %d", got)
	}
	if got := (Params{Page: 2, Limit: 1000}).Offset(); got != MaxLimit {
		t.Fatalf("expected offset clamped to %d, got %d", MaxLimit, got)
	}
}

func TestNewMeta(t *testing.T) {
	meta := NewMeta(Params{Page: 2, Limit: 10}, 21)
	if meta.TotalPages != 3 || meta.Total != 21 || meta.Page != 2 || meta.Limit != 10 {
		t.Fatalf("unexpected meta %+v", meta)
	}
	empty := NewMeta(Params{}, 0)
	if empty.TotalPages != 0 || empty.Limit != DefaultLimit {
		t.Fatalf("unexpected empty meta %+v", empty)
	}
}
