package cache

type constError string

func (e constError) Error() string { return string(e) }

const (
	// ErrTileActive is returned by Tile.Activate when the tile is already
	// active. The call has no effect on cache state.
	ErrTileActive = constError("tile already active")

	// ErrTileNotActive is returned by Tile.Release when the tile is not
	// active (never activated, already released, or evicted).
	ErrTileNotActive = constError("tile not active")
)
