package shadercache

import (
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
)

// counter compiles a source to its length and counts calls.
type counter struct {
	calls atomic.Int32
}

func (c *counter) compile(src string) ([]uint32, error) {
	c.calls.Add(1)
	return []uint32{uint32(len(src))}, nil
}

func TestNew(t *testing.T) {
	tests := []struct {
		capacity int
		want     int
	}{
		{10, 10},
		{0, DefaultCapacity},
		{-1, DefaultCapacity},
	}
	for _, tt := range tests {
		if got := New(tt.capacity).Stats().Capacity; got != tt.want {
			t.Errorf("New(%d) capacity = %d, want %d", tt.capacity, got, tt.want)
		}
	}
}

func TestCache_CompileOnce(t *testing.T) {
	c := New(4)
	var cc counter

	for range 3 {
		words, err := c.Compile("abc", cc.compile)
		if err != nil {
			t.Fatalf("Compile() = %v", err)
		}
		if len(words) != 1 || words[0] != 3 {
			t.Fatalf("Compile() = %v, want [3]", words)
		}
	}
	if cc.calls.Load() != 1 {
		t.Errorf("compiled %d times, want 1", cc.calls.Load())
	}
	s := c.Stats()
	if s.Hits != 2 || s.Misses != 1 || s.Len != 1 {
		t.Errorf("Stats() = %+v, want 2 hits, 1 miss, 1 entry", s)
	}
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	c := New(4)
	errBad := errors.New("bad shader")
	calls := 0
	fail := func(string) ([]uint32, error) {
		calls++
		return nil, errBad
	}

	for range 2 {
		if _, err := c.Compile("broken", fail); !errors.Is(err, errBad) {
			t.Fatalf("Compile() = %v, want %v", err, errBad)
		}
	}
	if calls != 2 {
		t.Errorf("compiled %d times, want 2", calls)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New(2)
	var cc counter
	compile := func(src string) {
		t.Helper()
		if _, err := c.Compile(src, cc.compile); err != nil {
			t.Fatalf("Compile(%q) = %v", src, err)
		}
	}

	compile("a")
	compile("bb")
	compile("a")   // a becomes most recent
	compile("ccc") // evicts bb
	if cc.calls.Load() != 3 {
		t.Fatalf("compiled %d times, want 3", cc.calls.Load())
	}

	compile("a")
	if cc.calls.Load() != 3 {
		t.Errorf("a was evicted")
	}
	compile("bb")
	if cc.calls.Load() != 4 {
		t.Errorf("bb was not evicted")
	}
	if s := c.Stats(); s.Evictions != 2 || s.Len != 2 {
		t.Errorf("Stats() = %+v, want 2 evictions, 2 entries", s)
	}
}

func TestCache_Clear(t *testing.T) {
	c := New(4)
	var cc counter
	for i := range 3 {
		if _, err := c.Compile(strconv.Itoa(i), cc.compile); err != nil {
			t.Fatalf("Compile() = %v", err)
		}
	}
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d", c.Len())
	}
	if _, err := c.Compile("0", cc.compile); err != nil {
		t.Fatalf("Compile() = %v", err)
	}
	if cc.calls.Load() != 4 {
		t.Errorf("compiled %d times, want 4", cc.calls.Load())
	}
}

func TestCache_Concurrent(t *testing.T) {
	c := New(8)
	var cc counter
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				src := strconv.Itoa((g + i) % 4)
				if _, err := c.Compile(src, cc.compile); err != nil {
					t.Errorf("Compile(%q) = %v", src, err)
					return
				}
			}
		}()
	}
	wg.Wait()
	if cc.calls.Load() != 4 {
		t.Errorf("compiled %d times, want 4", cc.calls.Load())
	}
}

func BenchmarkCache_Hit(b *testing.B) {
	c := New(DefaultCapacity)
	var cc counter
	if _, err := c.Compile("@compute fn main() {}", cc.compile); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for b.Loop() {
		_, _ = c.Compile("@compute fn main() {}", cc.compile)
	}
}
