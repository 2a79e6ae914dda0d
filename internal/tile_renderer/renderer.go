package tile_renderer

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image/png"
	"sync"

	"go.uber.org/zap"

	"tileview/internal/cache"
	"tileview/internal/device"
	"tileview/internal/pyramid_list"
)

// Renderer plays the renderer role against the tile cache: it requests a
// tile, activates it (loading and uploading on first use), reads the texture
// back for encoding, and releases the tile so it stays warm for the next
// request.
//
// The cache is single-threaded by contract; the mutex serializes concurrent
// HTTP requests over it.
type Renderer struct {
	mu        sync.Mutex
	scanner   *pyramid_list.Scanner
	tileCache *cache.Cache
	logger    *zap.Logger
}

type TileResult struct {
	Data []byte
	ETag string
	Size int
}

func New(scanner *pyramid_list.Scanner, tileCache *cache.Cache, logger *zap.Logger) *Renderer {
	return &Renderer{
		scanner:   scanner,
		tileCache: tileCache,
		logger:    logger,
	}
}

func (r *Renderer) RenderTile(pyramidID string, level, row, col int) (*TileResult, error) {
	p := r.scanner.GetPyramidByID(pyramidID)
	if p == nil {
		return nil, fmt.Errorf("pyramid not found: %s", pyramidID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tile := r.tileCache.Request(cache.Key{Source: p, Level: level, Row: row, Col: col})
	if err := tile.Activate(); err != nil {
		return nil, err
	}

	tex := tile.Resource().(*device.Texture)
	var buf bytes.Buffer
	encodeErr := png.Encode(&buf, tex.Image())

	if err := tile.Release(); err != nil {
		r.logger.Error("Failed to release tile", zap.Stringer("tile", tile.Key()), zap.Error(err))
	}
	if encodeErr != nil {
		return nil, fmt.Errorf("failed to encode tile: %w", encodeErr)
	}

	return &TileResult{
		Data: buf.Bytes(),
		ETag: r.generateETag(pyramidID, level, row, col),
		Size: buf.Len(),
	}, nil
}

// RenderPreview scales the root tile down to size×size for listings.
func (r *Renderer) RenderPreview(pyramidID string, size int) (*TileResult, error) {
	p := r.scanner.GetPyramidByID(pyramidID)
	if p == nil {
		return nil, fmt.Errorf("pyramid not found: %s", pyramidID)
	}
	if size <= 0 || size > p.TileSize() {
		size = p.TileSize()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tile := r.tileCache.Request(cache.Key{Source: p})
	if err := tile.Activate(); err != nil {
		return nil, err
	}

	tex := tile.Resource().(*device.Texture)
	var buf bytes.Buffer
	encodeErr := png.Encode(&buf, tex.Scaled(size, size))

	if err := tile.Release(); err != nil {
		r.logger.Error("Failed to release tile", zap.Stringer("tile", tile.Key()), zap.Error(err))
	}
	if encodeErr != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", encodeErr)
	}

	return &TileResult{
		Data: buf.Bytes(),
		ETag: r.generateETag(pyramidID, -1, size, size),
		Size: buf.Len(),
	}, nil
}

func (r *Renderer) GetPyramidMeta(pyramidID string) (map[string]interface{}, error) {
	info := r.scanner.GetInfoByID(pyramidID)
	if info == nil {
		return nil, fmt.Errorf("pyramid not found: %s", pyramidID)
	}

	return map[string]interface{}{
		"id":        info.ID,
		"filename":  info.Filename,
		"depth":     info.Depth,
		"tile_size": info.TileSize,
		"bytes":     info.Bytes,
		"format":    "png",
	}, nil
}

func (r *Renderer) generateETag(pyramidID string, level, row, col int) string {
	keyStr := fmt.Sprintf("%s/%d/%d/%d.png", pyramidID, level, row, col)
	hash := sha256.Sum256([]byte(keyStr))
	return hex.EncodeToString(hash[:])[:16]
}
