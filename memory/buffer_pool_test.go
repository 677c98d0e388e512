package memory

import (
	"strings"
	"testing"
)

// TestRoundUpToPowerOf2 tests the power of 2 rounding function
func TestRoundUpToPowerOf2(t *testing.T) {
	tests := []struct {
		input    int
		expected int
	}{
		{0, 1},
		{1, 1},
		{3, 4},
		{8, 8},
		{9, 16},
		{100, 128},
		{1025, 2048},
	}

	for _, test := range tests {
		result := roundUpToPowerOf2(test.input)
		if result != test.expected {
			t.Errorf("roundUpToPowerOf2(%d) = %d; expected %d", test.input, result, test.expected)
		}
	}
}

func TestBufferPoolGetPut(t *testing.T) {
	pool := NewBufferPool()

	buf := pool.Get(100)
	if len(buf) != 100 {
		t.Fatalf("Expected length 100, got %d", len(buf))
	}
	if cap(buf) != 128 {
		t.Errorf("Expected capacity 128, got %d", cap(buf))
	}
	if pool.InUse() != 1 {
		t.Errorf("Expected 1 buffer in use, got %d", pool.InUse())
	}

	buf[0] = 42
	pool.Put(buf)
	if pool.InUse() != 0 {
		t.Errorf("Expected 0 buffers in use after Put, got %d", pool.InUse())
	}

	again := pool.Get(128)
	for i, v := range again {
		if v != 0 {
			t.Fatalf("Recycled buffer not zeroed at %d: %v", i, v)
		}
	}
	pool.Put(again)

	stats := pool.Stats()[128]
	if stats.Gets != 2 || stats.Puts != 2 {
		t.Errorf("Expected 2 gets and 2 puts, got %+v", stats)
	}
	if stats.MaxInUse != 1 {
		t.Errorf("Expected MaxInUse 1, got %d", stats.MaxInUse)
	}
}

func TestBufferPoolIgnoresForeignBuffers(t *testing.T) {
	pool := NewBufferPool()
	pool.Put(make([]float32, 7))
	pool.Put(nil)

	if pool.InUse() != 0 {
		t.Errorf("Expected 0 in use, got %d", pool.InUse())
	}
	if len(pool.Stats()) != 0 {
		t.Errorf("Foreign buffers must not create size classes")
	}
}

func TestBufferPoolString(t *testing.T) {
	pool := NewBufferPool()
	pool.Put(pool.Get(4))

	s := pool.String()
	if !strings.Contains(s, "Size 4: Gets=1, Puts=1, InUse=0") {
		t.Errorf("Unexpected stats string: %q", s)
	}
}

func TestGlobalBufferPool(t *testing.T) {
	if GlobalBufferPool() != GlobalBufferPool() {
		t.Error("GlobalBufferPool should return a singleton")
	}
}
