package buffer

import (
	"slices"
	"sync"
	"testing"
)

func TestRing(t *testing.T) {
	tests := []struct {
		name string
		cap  int
		add  []int
		want []int
	}{
		{"empty", 3, nil, []int{}},
		{"partial", 3, []int{1, 2}, []int{1, 2}},
		{"exact", 3, []int{1, 2, 3}, []int{1, 2, 3}},
		{"wrap", 3, []int{1, 2, 3, 4, 5}, []int{3, 4, 5}},
		{"wrap twice", 2, []int{1, 2, 3, 4, 5, 6, 7}, []int{6, 7}},
		{"zero cap", 0, []int{1, 2}, []int{2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRing[int](tt.cap)
			for _, v := range tt.add {
				r.Add(v)
			}
			if got := r.Snapshot(); !slices.Equal(got, tt.want) {
				t.Errorf("Snapshot() = %v, want %v", got, tt.want)
			}
			if r.Len() != len(tt.want) {
				t.Errorf("Len() = %d, want %d", r.Len(), len(tt.want))
			}
			if r.Total() != int64(len(tt.add)) {
				t.Errorf("Total() = %d, want %d", r.Total(), len(tt.add))
			}
		})
	}
}

func TestRingReset(t *testing.T) {
	r := NewRing[string](2)
	r.Add("a")
	r.Add("b")
	r.Add("c")
	r.Reset()
	if r.Len() != 0 || len(r.Snapshot()) != 0 {
		t.Fatalf("ring not empty after Reset: %v", r.Snapshot())
	}
	r.Add("d")
	if got := r.Snapshot(); !slices.Equal(got, []string{"d"}) {
		t.Errorf("Snapshot() = %v", got)
	}
	if r.Total() != 4 {
		t.Errorf("Total() = %d, want 4", r.Total())
	}
}

func TestRingConcurrent(t *testing.T) {
	r := NewRing[int](16)
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				r.Add(g*100 + i)
				_ = r.Snapshot()
			}
		}()
	}
	wg.Wait()
	if r.Total() != 800 || r.Len() != 16 {
		t.Errorf("Total=%d Len=%d", r.Total(), r.Len())
	}
}
