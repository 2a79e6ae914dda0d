package main

import (
	"bytes"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/cshum/vipsgen/vips"
	"go.uber.org/zap"

	"tileview/internal/logger"
	"tileview/internal/tqt"
)

// tqtbuild converts a single large image into a TQT pyramid. The image is
// anchored at the top-left of a square 2^(depth-1)*tileSize world; the
// remainder is padded with a flat background, so every quadtree node gets a
// full tile.

var background = []float64{221, 221, 221} // #ddd, matches the viewer's padding

func main() {
	var (
		in       = flag.String("in", "", "source image (tif/jpeg/png/webp)")
		out      = flag.String("out", "", "output .tqt file (default: source with .tqt extension)")
		tileSize = flag.Int("size", 256, "tile edge length in pixels")
		depth    = flag.Int("depth", 0, "pyramid depth (0 = derive from image size)")
	)
	flag.Parse()

	log, err := logger.NewConsole("info")
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	if *in == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *out == "" {
		ext := filepath.Ext(*in)
		*out = strings.TrimSuffix(*in, ext) + ".tqt"
	}

	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      256 * 1024 * 1024,
		MaxCacheFiles:    0,
		MaxCacheSize:     0,
	})
	defer vips.Shutdown()

	if err := build(*in, *out, *tileSize, *depth, log); err != nil {
		log.Fatal("Build failed", zap.Error(err))
	}
}

func build(in, out string, tileSize, depth int, log *zap.Logger) error {
	probe, err := loadImage(in)
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	width := probe.Width()
	height := probe.Height()
	probe.Close()

	maxDim := width
	if height > maxDim {
		maxDim = height
	}
	if depth <= 0 {
		depth = 1
		for tileSize<<(depth-1) < maxDim {
			depth++
		}
	}
	extent := tileSize << (depth - 1)

	log.Info("Building pyramid",
		zap.String("in", in),
		zap.String("out", out),
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Int("depth", depth),
		zap.Int("tile_size", tileSize),
		zap.Int("extent", extent),
	)

	w, err := tqt.NewWriter(depth, tileSize)
	if err != nil {
		return err
	}

	for level := 0; level < depth; level++ {
		n := 1 << level
		pixelsPerTile := extent >> level

		for row := 0; row < n; row++ {
			for col := 0; col < n; col++ {
				data, err := renderTile(in, width, height, pixelsPerTile, tileSize, row, col)
				if err != nil {
					return fmt.Errorf("tile %d/%d/%d: %w", level, row, col, err)
				}
				if err := w.SetTile(level, row, col, data); err != nil {
					return err
				}
			}
		}
		log.Info("Level complete", zap.Int("level", level), zap.Int("tiles", n*n))
	}

	if err := w.WriteFile(out); err != nil {
		return err
	}
	log.Info("Pyramid written", zap.String("out", out))
	return nil
}

// renderTile extracts one tile's source region, scales it to tileSize and
// pads edge tiles. Tiles entirely outside the image are flat background.
// The source is reopened per tile: vips operations mutate the image handle.
func renderTile(path string, imgWidth, imgHeight, pixelsPerTile, tileSize, row, col int) ([]byte, error) {
	startX := col * pixelsPerTile
	startY := row * pixelsPerTile
	if startX >= imgWidth || startY >= imgHeight {
		return backgroundTile(tileSize)
	}

	width := imgWidth - startX
	if width > pixelsPerTile {
		width = pixelsPerTile
	}
	height := imgHeight - startY
	if height > pixelsPerTile {
		height = pixelsPerTile
	}

	img, err := loadImage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer img.Close()

	if err := img.ExtractArea(startX, startY, width, height); err != nil {
		return nil, fmt.Errorf("failed to extract area: %w", err)
	}

	resizeScale := float64(tileSize) / float64(pixelsPerTile)
	resizeOpts := vips.DefaultResizeOptions()
	resizeOpts.Kernel = vips.KernelLanczos3
	if err := img.Resize(resizeScale, resizeOpts); err != nil {
		return nil, fmt.Errorf("failed to resize: %w", err)
	}

	if img.Width() < tileSize || img.Height() < tileSize {
		embedOpts := vips.DefaultEmbedOptions()
		embedOpts.Extend = vips.ExtendBackground
		embedOpts.Background = background
		if err := img.Embed(0, 0, tileSize, tileSize, embedOpts); err != nil {
			return nil, fmt.Errorf("failed to pad: %w", err)
		}
	}

	data, err := img.PngsaveBuffer(vips.DefaultPngsaveBufferOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to export: %w", err)
	}
	return data, nil
}

// backgroundTile encodes a uniform background tile without involving vips;
// there is no source region to extract.
func backgroundTile(tileSize int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, tileSize, tileSize))
	bg := color.RGBA{uint8(background[0]), uint8(background[1]), uint8(background[2]), 255}
	for y := 0; y < tileSize; y++ {
		for x := 0; x < tileSize; x++ {
			img.SetRGBA(x, y, bg)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// loadImage loads an image based on file extension, with random access for
// tile extraction.
func loadImage(path string) (*vips.Image, error) {
	ext := strings.ToLower(filepath.Ext(path))

	access := vips.AccessRandom

	switch ext {
	case ".tif", ".tiff":
		opts := vips.DefaultTiffloadOptions()
		opts.Access = access
		return vips.NewTiffload(path, opts)
	case ".jpg", ".jpeg":
		opts := vips.DefaultJpegloadOptions()
		opts.Access = access
		return vips.NewJpegload(path, opts)
	case ".png":
		opts := vips.DefaultPngloadOptions()
		opts.Access = access
		return vips.NewPngload(path, opts)
	case ".webp":
		opts := vips.DefaultWebploadOptions()
		opts.Access = access
		return vips.NewWebpload(path, opts)
	default:
		return nil, fmt.Errorf("unsupported image format: %s", ext)
	}
}
