package pools

import (
	"testing"
)

func TestBytePool_TierSelection(t *testing.T) {
	bp := NewBytePool()

	cases := []struct {
		request int
		wantCap int
	}{
		{100, 512},
		{512, 512},
		{513, 2048},
		{4096, 8192},
		{32768, 32768},
	}
	for _, tc := range cases {
		buf := bp.Get(tc.request)
		if len(buf) != tc.request {
			t.Errorf("Get(%d) len = %d", tc.request, len(buf))
		}
		if cap(buf) != tc.wantCap {
			t.Errorf("Get(%d) cap = %d, want %d", tc.request, cap(buf), tc.wantCap)
		}
		bp.Put(buf)
	}
}

func TestBytePool_Oversized(t *testing.T) {
	bp := NewBytePool()

	buf := bp.Get(100000)
	if len(buf) != 100000 {
		t.Fatalf("Get(100000) len = %d", len(buf))
	}
	// Oversized slices are not retained; Put must simply not panic.
	bp.Put(buf)
}

func TestGlobalBytePool(t *testing.T) {
	buf := GetBytes(4096)
	if len(buf) != 4096 {
		t.Fatalf("GetBytes(4096) len = %d", len(buf))
	}
	PutBytes(buf)
}

func BenchmarkBytePool_GetPut(b *testing.B) {
	bp := NewBytePool()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		buf := bp.Get(4096)
		bp.Put(buf)
	}
}
