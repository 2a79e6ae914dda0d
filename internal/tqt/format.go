// Package tqt reads and writes TQT texture quadtree files, the on-disk
// pyramid format: a header, an offset table addressing every node of a
// complete quadtree, and one PNG-encoded tile per node.
//
// Layout (all integers little-endian):
//
//	uint32  magic    "TQT\0" (0x00545154)
//	uint32  version  1
//	uint32  depth    number of levels; level L holds 2^L × 2^L tiles
//	uint32  tileSize tile edge length in pixels
//	uint64  offsets[fullSize(depth)]  absolute file offset of each tile
//	...     PNG streams at those offsets
package tqt

const (
	// Magic is "TQT\0" read as a little-endian uint32.
	Magic = 0x00545154

	Version = 1

	headerSize = 16
)

type constError string

func (e constError) Error() string { return string(e) }

// ErrFormat indicates the file is not a valid TQT pyramid.
const ErrFormat = constError("invalid tqt file")

// fullSize is the node count of a complete quadtree with the given depth:
// 1 + 4 + 16 + ... = 4^depth / 3 (integer division).
func fullSize(depth int) int {
	return pow4(depth) / 3
}

// nodeIndex addresses a tile in level-major, row-major order.
func nodeIndex(level, row, col int) int {
	return fullSize(level) + row<<level + col
}

func pow4(n int) int {
	return 1 << (2 * n)
}
