// Package cache tracks GPU-resident pyramid tiles. It deduplicates tile
// identities, partitions tiles into an active set (needed by the renderer
// this frame) and an inactive set (resident, evictable), and reclaims device
// memory from least-recently-used inactive tiles once a resident-byte budget
// is exceeded.
//
// The cache is not internally synchronized. It is designed to be driven by a
// single renderer thread; concurrent callers must serialize access
// themselves.
package cache

import (
	"fmt"
	"image"

	"go.uber.org/zap"

	"tileview/internal/device"
)

// ImageSource supplies decoded pixel data for tiles. LoadImage must be
// deterministic for a given (level, row, col); it may be slow.
//
// Sources are part of the tile identity and are compared by identity, so a
// source must be a pointer (or otherwise comparable) type.
type ImageSource interface {
	LoadImage(level, row, col int) (*image.RGBA, error)
}

// Key identifies one tile of one pyramid.
type Key struct {
	Source ImageSource
	Level  int
	Row    int
	Col    int
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d/%d", k.Level, k.Row, k.Col)
}

// less orders keys by (level, row, col). Used only to break eviction ties
// deterministically; the source is deliberately ignored.
func (k Key) less(o Key) bool {
	if k.Level != o.Level {
		return k.Level < o.Level
	}
	if k.Row != o.Row {
		return k.Row < o.Row
	}
	return k.Col < o.Col
}

// DefaultResidentLimit is the resident-byte budget used when none is
// configured: 1 GiB.
const DefaultResidentLimit = 1 << 30

// Cache owns every Tile ever requested from it, keyed by identity.
type Cache struct {
	alloc  device.Allocator
	logger *zap.Logger

	tiles    map[Key]*Tile
	active   []*Tile
	inactive []*Tile

	resident int64
	limit    int64
	clock    uint64
	closed   bool
}

// New creates a tile cache backed by alloc. limit is the resident-byte
// budget; values <= 0 select DefaultResidentLimit. logger may be nil.
func New(alloc device.Allocator, limit int64, logger *zap.Logger) *Cache {
	if limit <= 0 {
		limit = DefaultResidentLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		alloc:  alloc,
		logger: logger,
		tiles:  make(map[Key]*Tile),
		limit:  limit,
	}
}

// Request returns the Tile for key, creating it if this is the first request
// for that identity. The returned tile is unresourced and unlisted until its
// first activation. Requesting the same key again always returns the same
// Tile, for the lifetime of the cache.
func (c *Cache) Request(key Key) *Tile {
	if t, ok := c.tiles[key]; ok {
		return t
	}
	t := &Tile{cache: c, key: key, listIdx: -1}
	c.tiles[key] = t
	return t
}

// Close destroys every resident resource. The cache must not be used
// afterwards. Close is safe to call more than once.
func (c *Cache) Close() {
	if c.closed {
		return
	}
	c.closed = true

	var freed int64
	for _, t := range c.tiles {
		if t.res != nil {
			size := t.res.FootprintBytes()
			t.res.Destroy()
			t.res = nil
			c.resident -= size
			freed += size
		}
		t.state = tileUnlisted
		t.listIdx = -1
	}
	c.active = nil
	c.inactive = nil

	c.logger.Info("tile cache closed",
		zap.Int64("freed_bytes", freed),
		zap.Int("tiles", len(c.tiles)),
	)
}

// markActive moves t into the active list. Called by Tile.Activate after the
// resource is guaranteed present.
func (c *Cache) markActive(t *Tile) {
	if t.state == tileActive {
		panic("cache: markActive on active tile")
	}
	if t.state == tileInactive {
		c.removeFrom(&c.inactive, t)
	}
	t.listIdx = len(c.active)
	c.active = append(c.active, t)
	t.state = tileActive
	c.clock++
	t.lastUsed = c.clock
}

// markInactive moves t from the active to the inactive list. The resource
// and the resident count are untouched: a just-released tile stays warm.
func (c *Cache) markInactive(t *Tile) {
	if t.state != tileActive {
		panic("cache: markInactive on non-active tile")
	}
	c.removeFrom(&c.active, t)
	t.listIdx = len(c.inactive)
	c.inactive = append(c.inactive, t)
	t.state = tileInactive
}

// removeFrom takes t out of list in O(1): the last element is swapped into
// t's slot and its back index fixed up. List order is never meaningful here;
// recency lives in lastUsed.
func (c *Cache) removeFrom(list *[]*Tile, t *Tile) {
	s := *list
	i := t.listIdx
	if i < 0 || i >= len(s) || s[i] != t {
		panic("cache: tile list index out of sync")
	}
	last := len(s) - 1
	moved := s[last]
	s[i] = moved
	moved.listIdx = i
	s[last] = nil
	*list = s[:last]
}

// enforceBudget evicts least-recently-used inactive tiles until the resident
// total fits the budget or no inactive tile remains. Active tiles are never
// evicted: the budget is advisory, and exceeding it with active tiles alone
// is tolerated.
func (c *Cache) enforceBudget() {
	for c.resident > c.limit && len(c.inactive) > 0 {
		victim := c.inactive[0]
		for _, t := range c.inactive[1:] {
			if t.lastUsed < victim.lastUsed ||
				(t.lastUsed == victim.lastUsed && t.key.less(victim.key)) {
				victim = t
			}
		}
		c.evict(victim)
	}
	if c.resident > c.limit {
		c.logger.Debug("resident budget exceeded, no evictable tiles",
			zap.Int64("resident_bytes", c.resident),
			zap.Int64("limit_bytes", c.limit),
		)
	}
}

// evict destroys an inactive tile's resource and returns the tile to the
// unlisted, unresourced state. The tile stays in the identity map so a later
// Request still finds it; the next Activate reloads it.
func (c *Cache) evict(t *Tile) {
	c.removeFrom(&c.inactive, t)
	size := t.res.FootprintBytes()
	t.res.Destroy()
	t.res = nil
	c.resident -= size
	t.state = tileUnlisted
	t.listIdx = -1

	c.logger.Debug("evicted tile",
		zap.Stringer("tile", t.key),
		zap.Int64("freed_bytes", size),
		zap.Int64("resident_bytes", c.resident),
	)
}
