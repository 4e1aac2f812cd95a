package modes

import "time"

type icaoEntry struct {
	addr uint32
	seen int64 // unix seconds
}

// ICAOCache is a direct-mapped cache of recently validated ICAO addresses.
// A collision evicts the previous occupant, so membership may be under-reported.
// It is not safe for concurrent use.
type ICAOCache struct {
	entries []icaoEntry
	mask    uint32
	ttl     int64
	now     func() time.Time
}

// NewICAOCache creates a cache with size rounded up to a power of two
func NewICAOCache(size int, ttl time.Duration) *ICAOCache {
	if size < 1 {
		size = DefaultICAOCacheSize
	}
	n := 1
	for n < size {
		n <<= 1
	}

	return &ICAOCache{
		entries: make([]icaoEntry, n),
		mask:    uint32(n - 1),
		ttl:     int64(ttl / time.Second),
		now:     time.Now,
	}
}

// SetClock replaces the time source
func (c *ICAOCache) SetClock(now func() time.Time) {
	c.now = now
}

// Size returns the number of slots
func (c *ICAOCache) Size() int {
	return len(c.entries)
}

func icaoHash(a uint32) uint32 {
	a = ((a >> 16) ^ a) * 0x45d9f3b
	a = ((a >> 16) ^ a) * 0x45d9f3b
	a = (a >> 16) ^ a
	return a
}

// Insert records addr as seen now, overwriting whatever occupied its slot
func (c *ICAOCache) Insert(addr uint32) {
	c.entries[icaoHash(addr)&c.mask] = icaoEntry{addr: addr, seen: c.now().Unix()}
}

// Lookup reports whether addr was inserted within the TTL
func (c *ICAOCache) Lookup(addr uint32) bool {
	e := c.entries[icaoHash(addr)&c.mask]
	return e.addr != 0 && e.addr == addr && c.now().Unix()-e.seen <= c.ttl
}
