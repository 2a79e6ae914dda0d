package device

import "image"

// FilterMode selects the sampling filter used when a texture is read at a
// scale other than 1:1.
type FilterMode int

const (
	FilterLinear FilterMode = iota
	FilterNearest
)

// WrapMode selects how texture coordinates outside [0,1] are handled.
type WrapMode int

const (
	WrapClampToEdge WrapMode = iota
	WrapRepeat
)

// SamplerConfig describes the sampling state baked into a texture at
// creation time.
type SamplerConfig struct {
	MinFilter FilterMode
	MagFilter FilterMode
	WrapS     WrapMode
	WrapT     WrapMode
}

// TileSampler returns the sampling configuration used for all pyramid tiles:
// bilinear filtering with edge clamping. Tiles are always sampled this way;
// the configuration is not exposed as a tunable.
func TileSampler() SamplerConfig {
	return SamplerConfig{
		MinFilter: FilterLinear,
		MagFilter: FilterLinear,
		WrapS:     WrapClampToEdge,
		WrapT:     WrapClampToEdge,
	}
}

// Resource is a device texture object. It is opaque to the cache beyond its
// byte footprint and its destructor.
//
// Destroy releases the device memory backing the resource. It is not
// idempotent: the owner must call it exactly once.
type Resource interface {
	FootprintBytes() int64
	Destroy()
}

// Allocator creates device resources from decoded tile pixels. Creation may
// fail (device out of memory, lost context); a failed Create must not leak.
type Allocator interface {
	Create(img *image.RGBA) (Resource, error)
}
