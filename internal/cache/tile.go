package cache

import (
	"fmt"

	"tileview/internal/device"
)

type membership int

const (
	// tileUnlisted: on neither list. The state of a tile before its first
	// activation and after eviction.
	tileUnlisted membership = iota
	tileActive
	tileInactive
)

// Tile is one addressable region of a pyramid at one resolution level. The
// cache owns the Tile; the Tile owns at most one device resource.
type Tile struct {
	cache *Cache
	key   Key

	res      device.Resource
	state    membership
	listIdx  int
	lastUsed uint64
}

func (t *Tile) Key() Key { return t.key }

// Active reports whether the renderer currently holds this tile.
func (t *Tile) Active() bool { return t.state == tileActive }

// Resident reports whether the tile's device resource is materialized.
func (t *Tile) Resident() bool { return t.res != nil }

// Resource returns the tile's device resource for rendering. It is non-nil
// and stable while the tile is active; holding on to it past Release is an
// error, since the cache may destroy it at any later activation.
func (t *Tile) Resource() device.Resource { return t.res }

// Activate marks the tile as needed by the renderer now. If the tile has no
// resource yet, its pixel data is loaded from the source and uploaded. The
// budget is enforced before the new footprint is charged: previously
// resident tiles must fit the limit, while the incoming tile may push the
// total over until the next materialization. The tile joins the active list
// last, so a tile can never evict itself.
//
// Returns ErrTileActive if the tile is already active. Load and allocation
// failures are returned to the caller and leave the cache exactly as it was:
// no membership change, no resident charge, no eviction.
func (t *Tile) Activate() error {
	if t.state == tileActive {
		return fmt.Errorf("activate tile %v: %w", t.key, ErrTileActive)
	}
	if t.res == nil {
		img, err := t.key.Source.LoadImage(t.key.Level, t.key.Row, t.key.Col)
		if err != nil {
			return fmt.Errorf("load tile %v: %w", t.key, err)
		}
		res, err := t.cache.alloc.Create(img)
		if err != nil {
			return fmt.Errorf("upload tile %v: %w", t.key, err)
		}
		t.cache.enforceBudget()
		t.res = res
		t.cache.resident += res.FootprintBytes()
	}
	t.cache.markActive(t)
	return nil
}

// Release hints that the renderer no longer needs the tile. The tile moves
// to the inactive list but keeps its resource, so re-activating it before it
// is evicted is free.
//
// Returns ErrTileNotActive if the tile is not currently active.
func (t *Tile) Release() error {
	if t.state != tileActive {
		return fmt.Errorf("release tile %v: %w", t.key, ErrTileNotActive)
	}
	t.cache.markInactive(t)
	return nil
}
