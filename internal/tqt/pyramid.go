package tqt

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"os"

	arc "github.com/hashicorp/golang-lru/arc/v2"
)

// DefaultDecodeCacheTiles is the number of decoded tiles kept in memory per
// pyramid when no other value is configured.
const DefaultDecodeCacheTiles = 256

// maxDepth bounds the offset table we are willing to allocate while reading
// an untrusted header. Depth 12 is a 4096×4096-tile base level.
const maxDepth = 12

type tileIndex struct {
	level, row, col int
}

// Pyramid is an open TQT file. Tiles are read lazily by offset; decoded
// pixels are kept in an ARC cache so repeated loads of a recently evicted
// tile skip the disk and the PNG decoder.
//
// Pyramid implements the cache.ImageSource contract. Loads are deterministic
// per (level, row, col).
type Pyramid struct {
	path     string
	f        *os.File
	size     int64
	depth    int
	tileSize int
	offsets  []uint64
	decoded  *arc.ARCCache[tileIndex, *image.RGBA]
}

// Open reads the header and offset table of the TQT file at path.
// decodeCacheTiles sizes the decoded-tile cache; values <= 0 select
// DefaultDecodeCacheTiles.
func Open(path string, decodeCacheTiles int) (*Pyramid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pyramid: %w", err)
	}

	p, err := readHeader(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}

	if decodeCacheTiles <= 0 {
		decodeCacheTiles = DefaultDecodeCacheTiles
	}
	p.decoded, err = arc.NewARC[tileIndex, *image.RGBA](decodeCacheTiles)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("decode cache: %w", err)
	}
	return p, nil
}

func readHeader(f *os.File, path string) (*Pyramid, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat pyramid: %w", err)
	}

	r := bufio.NewReader(f)
	var hdr struct {
		Magic, Version, Depth, TileSize uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: short header: %v", ErrFormat, err)
	}
	if hdr.Magic != Magic {
		return nil, fmt.Errorf("%w: bad magic 0x%08x", ErrFormat, hdr.Magic)
	}
	if hdr.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrFormat, hdr.Version)
	}
	if hdr.Depth < 1 || hdr.Depth > maxDepth {
		return nil, fmt.Errorf("%w: depth %d out of range", ErrFormat, hdr.Depth)
	}
	if hdr.TileSize < 1 || hdr.TileSize > 4096 {
		return nil, fmt.Errorf("%w: tile size %d out of range", ErrFormat, hdr.TileSize)
	}

	offsets := make([]uint64, fullSize(int(hdr.Depth)))
	if err := binary.Read(r, binary.LittleEndian, offsets); err != nil {
		return nil, fmt.Errorf("%w: short offset table: %v", ErrFormat, err)
	}
	for i, off := range offsets {
		if off < headerSize || off >= uint64(info.Size()) {
			return nil, fmt.Errorf("%w: tile offset %d out of bounds (%d)", ErrFormat, i, off)
		}
	}

	return &Pyramid{
		path:     path,
		f:        f,
		size:     info.Size(),
		depth:    int(hdr.Depth),
		tileSize: int(hdr.TileSize),
		offsets:  offsets,
	}, nil
}

// Depth returns the number of levels; level 0 is the single root tile.
func (p *Pyramid) Depth() int { return p.depth }

// TileSize returns the tile edge length in pixels.
func (p *Pyramid) TileSize() int { return p.tileSize }

func (p *Pyramid) Path() string { return p.path }

func (p *Pyramid) Close() error {
	p.decoded.Purge()
	return p.f.Close()
}

// LoadImage decodes the tile at (level, row, col) into RGBA pixels.
func (p *Pyramid) LoadImage(level, row, col int) (*image.RGBA, error) {
	if level < 0 || level >= p.depth {
		return nil, fmt.Errorf("tqt: level %d out of range [0,%d)", level, p.depth)
	}
	n := 1 << level
	if row < 0 || row >= n || col < 0 || col >= n {
		return nil, fmt.Errorf("tqt: tile %d/%d out of range for level %d", row, col, level)
	}

	idx := tileIndex{level, row, col}
	if img, ok := p.decoded.Get(idx); ok {
		return img, nil
	}

	off := int64(p.offsets[nodeIndex(level, row, col)])
	sr := io.NewSectionReader(p.f, off, p.size-off)
	src, err := png.Decode(bufio.NewReader(sr))
	if err != nil {
		return nil, fmt.Errorf("tqt: decode tile %d/%d/%d: %w", level, row, col, err)
	}

	b := src.Bounds()
	if b.Dx() != p.tileSize || b.Dy() != p.tileSize {
		return nil, fmt.Errorf("tqt: tile %d/%d/%d is %dx%d, want %dx%d",
			level, row, col, b.Dx(), b.Dy(), p.tileSize, p.tileSize)
	}

	rgba, ok := src.(*image.RGBA)
	if !ok || rgba.Bounds().Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, p.tileSize, p.tileSize))
		draw.Draw(rgba, rgba.Bounds(), src, b.Min, draw.Src)
	}

	p.decoded.Add(idx, rgba)
	return rgba, nil
}
