package device

import (
	"fmt"
	"image"
	stddraw "image/draw"

	"golang.org/x/image/draw"
)

// SoftwareAllocator is the reference Allocator. Textures live in host memory,
// which keeps the cache and everything above it runnable without a graphics
// device. A GPU-backed allocator plugs in behind the same interface.
type SoftwareAllocator struct {
	sampler SamplerConfig
}

func NewSoftwareAllocator() *SoftwareAllocator {
	return &SoftwareAllocator{sampler: TileSampler()}
}

func (a *SoftwareAllocator) Create(img *image.RGBA) (Resource, error) {
	if img == nil {
		return nil, fmt.Errorf("create texture: nil image")
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("create texture: empty image %v", b)
	}

	// Copy the pixels so the texture's lifetime is independent of the
	// decoded image handed to us.
	pix := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	stddraw.Draw(pix, pix.Bounds(), img, b.Min, stddraw.Src)

	return &Texture{img: pix, sampler: a.sampler}, nil
}

// Texture is a software-resident texture object.
type Texture struct {
	img       *image.RGBA
	sampler   SamplerConfig
	destroyed bool
}

func (t *Texture) FootprintBytes() int64 {
	if t.destroyed {
		return 0
	}
	return int64(len(t.img.Pix))
}

// Destroy releases the pixel storage. Calling Destroy twice is an ownership
// bug in the caller and panics.
func (t *Texture) Destroy() {
	if t.destroyed {
		panic("device: texture destroyed twice")
	}
	t.destroyed = true
	t.img = nil
}

// Image returns the backing pixels for readback. Valid until Destroy.
func (t *Texture) Image() *image.RGBA {
	if t.destroyed {
		panic("device: readback from destroyed texture")
	}
	return t.img
}

// Scaled samples the texture into a w×h image using the filter it was
// created with.
func (t *Texture) Scaled(w, h int) *image.RGBA {
	src := t.Image()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))

	var kernel draw.Interpolator
	switch t.sampler.MagFilter {
	case FilterNearest:
		kernel = draw.NearestNeighbor
	default:
		kernel = draw.BiLinear
	}
	kernel.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}
