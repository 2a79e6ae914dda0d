package tqt

import (
	"encoding/binary"
	"fmt"
	"os"
)

// Writer assembles a complete TQT pyramid in memory before writing it out.
// Every node of the quadtree must receive a tile; a pyramid with holes is
// not representable in the format.
type Writer struct {
	depth    int
	tileSize int
	tiles    [][]byte
}

func NewWriter(depth, tileSize int) (*Writer, error) {
	if depth < 1 || depth > maxDepth {
		return nil, fmt.Errorf("tqt: depth %d out of range [1,%d]", depth, maxDepth)
	}
	if tileSize < 1 || tileSize > 4096 {
		return nil, fmt.Errorf("tqt: tile size %d out of range", tileSize)
	}
	return &Writer{
		depth:    depth,
		tileSize: tileSize,
		tiles:    make([][]byte, fullSize(depth)),
	}, nil
}

// SetTile stores the PNG stream for one node.
func (w *Writer) SetTile(level, row, col int, pngData []byte) error {
	if level < 0 || level >= w.depth {
		return fmt.Errorf("tqt: level %d out of range [0,%d)", level, w.depth)
	}
	n := 1 << level
	if row < 0 || row >= n || col < 0 || col >= n {
		return fmt.Errorf("tqt: tile %d/%d out of range for level %d", row, col, level)
	}
	if len(pngData) == 0 {
		return fmt.Errorf("tqt: empty tile %d/%d/%d", level, row, col)
	}
	w.tiles[nodeIndex(level, row, col)] = pngData
	return nil
}

// WriteFile writes the header, offset table and tiles to path. It fails if
// any node is missing.
func (w *Writer) WriteFile(path string) error {
	for i, tile := range w.tiles {
		if tile == nil {
			return fmt.Errorf("tqt: node %d has no tile", i)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create pyramid: %w", err)
	}
	defer f.Close()

	offsets := make([]uint64, len(w.tiles))
	off := uint64(headerSize + 8*len(w.tiles))
	for i, tile := range w.tiles {
		offsets[i] = off
		off += uint64(len(tile))
	}

	hdr := []uint32{Magic, Version, uint32(w.depth), uint32(w.tileSize)}
	if err := binary.Write(f, binary.LittleEndian, hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, offsets); err != nil {
		return fmt.Errorf("write offsets: %w", err)
	}
	for i, tile := range w.tiles {
		if _, err := f.Write(tile); err != nil {
			return fmt.Errorf("write tile %d: %w", i, err)
		}
	}
	return f.Close()
}
