package modes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestICAOCache_TTL inserts an address and ages it past the TTL
func TestICAOCache_TTL(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cache := NewICAOCache(DefaultICAOCacheSize, 60*time.Second)
	cache.SetClock(func() time.Time { return now })

	cache.Insert(0x4840D6)
	assert.True(t, cache.Lookup(0x4840D6))
	assert.False(t, cache.Lookup(0x4840D7))

	now = now.Add(60 * time.Second)
	assert.True(t, cache.Lookup(0x4840D6), "entry should survive exactly the TTL")

	now = now.Add(time.Second)
	assert.False(t, cache.Lookup(0x4840D6))

	cache.Insert(0x4840D6)
	assert.True(t, cache.Lookup(0x4840D6), "reinsert should refresh the entry")
}

// TestICAOCache_CollisionEvicts verifies that a slot holds one address
func TestICAOCache_CollisionEvicts(t *testing.T) {
	cache := NewICAOCache(16, time.Minute)

	first := uint32(0x40621D)
	var second uint32
	for a := first + 1; ; a++ {
		if icaoHash(a)&cache.mask == icaoHash(first)&cache.mask {
			second = a
			break
		}
	}

	cache.Insert(first)
	cache.Insert(second)
	assert.False(t, cache.Lookup(first))
	assert.True(t, cache.Lookup(second))
}

// TestICAOCache_ZeroAddress is never reported as seen
func TestICAOCache_ZeroAddress(t *testing.T) {
	cache := NewICAOCache(DefaultICAOCacheSize, time.Minute)
	assert.False(t, cache.Lookup(0))
	cache.Insert(0)
	assert.False(t, cache.Lookup(0))
}

// TestNewICAOCache_Size tests power-of-two rounding
func TestNewICAOCache_Size(t *testing.T) {
	tests := []struct {
		name string
		size int
		want int
	}{
		{name: "Default", size: 1024, want: 1024},
		{name: "Round up", size: 1000, want: 1024},
		{name: "One", size: 1, want: 1},
		{name: "Invalid", size: 0, want: DefaultICAOCacheSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewICAOCache(tt.size, time.Minute).Size())
		})
	}
}
