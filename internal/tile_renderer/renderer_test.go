package tile_renderer

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"tileview/internal/cache"
	"tileview/internal/device"
	"tileview/internal/pyramid_list"
	"tileview/internal/tqt"
)

const testTileSize = 8

func setup(t *testing.T) (*Renderer, string) {
	t.Helper()

	dir := t.TempDir()
	writeTestPyramid(t, filepath.Join(dir, "map.tqt"))

	scanner := pyramid_list.New(dir, 0, zap.NewNop())
	t.Cleanup(scanner.Close)
	if err := scanner.Scan(); err != nil {
		t.Fatal(err)
	}
	if len(scanner.GetPyramids()) != 1 {
		t.Fatal("test pyramid not discovered")
	}
	id := scanner.GetPyramids()[0].ID

	tileCache := cache.New(device.NewSoftwareAllocator(), 0, nil)
	t.Cleanup(tileCache.Close)

	return New(scanner, tileCache, zap.NewNop()), id
}

func writeTestPyramid(t *testing.T, path string) {
	t.Helper()

	w, err := tqt.NewWriter(2, testTileSize)
	if err != nil {
		t.Fatal(err)
	}
	set := func(level, row, col int, c color.RGBA) {
		img := image.NewRGBA(image.Rect(0, 0, testTileSize, testTileSize))
		for i := 0; i < len(img.Pix); i += 4 {
			img.Pix[i+0] = c.R
			img.Pix[i+1] = c.G
			img.Pix[i+2] = c.B
			img.Pix[i+3] = c.A
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			t.Fatal(err)
		}
		if err := w.SetTile(level, row, col, buf.Bytes()); err != nil {
			t.Fatal(err)
		}
	}

	set(0, 0, 0, color.RGBA{255, 0, 0, 255})
	for row := 0; row < 2; row++ {
		for col := 0; col < 2; col++ {
			set(1, row, col, color.RGBA{0, uint8(100 + row*2 + col), 0, 255})
		}
	}

	if err := w.WriteFile(path); err != nil {
		t.Fatal(err)
	}
}

func TestRenderTile(t *testing.T) {
	r, id := setup(t)

	result, err := r.RenderTile(id, 1, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if result.Size != len(result.Data) || result.Size == 0 {
		t.Fatalf("inconsistent result size: Size=%d len=%d", result.Size, len(result.Data))
	}
	if result.ETag == "" {
		t.Error("empty ETag")
	}

	img, err := png.Decode(bytes.NewReader(result.Data))
	if err != nil {
		t.Fatalf("tile is not valid PNG: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != testTileSize || b.Dy() != testTileSize {
		t.Errorf("tile is %dx%d, want %dx%d", b.Dx(), b.Dy(), testTileSize, testTileSize)
	}

	// Level 1 tiles are green; the red root tile would mean bad indexing.
	red, green, _, _ := img.At(0, 0).RGBA()
	if red != 0 || green == 0 {
		t.Errorf("tile color = (%d,%d), want pure green", red>>8, green>>8)
	}
}

func TestRenderTileIsStableAcrossRequests(t *testing.T) {
	r, id := setup(t)

	first, err := r.RenderTile(id, 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	// The second request reuses the warm tile; output must be identical.
	second, err := r.RenderTile(id, 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first.Data, second.Data) {
		t.Error("same tile rendered differently on the second request")
	}
	if first.ETag != second.ETag {
		t.Error("ETag not stable across requests")
	}
}

func TestRenderTileUnknownPyramid(t *testing.T) {
	r, _ := setup(t)

	if _, err := r.RenderTile("no-such-id", 0, 0, 0); err == nil {
		t.Error("RenderTile succeeded for unknown pyramid")
	}
}

func TestRenderPreview(t *testing.T) {
	r, id := setup(t)

	result, err := r.RenderPreview(id, 4)
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(result.Data))
	if err != nil {
		t.Fatalf("preview is not valid PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 4 {
		t.Errorf("preview is %dx%d, want 4x4", b.Dx(), b.Dy())
	}
}

func TestGetPyramidMeta(t *testing.T) {
	r, id := setup(t)

	meta, err := r.GetPyramidMeta(id)
	if err != nil {
		t.Fatal(err)
	}
	if meta["depth"] != 2 || meta["tile_size"] != testTileSize {
		t.Errorf("unexpected meta: %v", meta)
	}

	if _, err := r.GetPyramidMeta("missing"); err == nil {
		t.Error("GetPyramidMeta succeeded for unknown pyramid")
	}
}
