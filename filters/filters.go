// Package filters decodes stream filter chains. Decoders are looked up by
// filter name in a Registry so callers can stop a chain cleanly when they hit
// a filter they have no decoder for.
package filters

import (
	"github.com/scribd/keynote/object"
)

// Decoder transforms one encoded stream payload into its decoded form.
// Params carries the filter's /DecodeParms dictionary, or nil.
type Decoder interface {
	Name() object.Name
	Decode(data []byte, params *object.Dict) ([]byte, error)
}

// Registry maps filter names to decoders.
type Registry struct {
	decoders map[object.Name]Decoder
}

// NewRegistry returns a registry with the built-in decoders installed.
func NewRegistry() *Registry {
	r := &Registry{decoders: make(map[object.Name]Decoder)}
	r.Register(&FlateDecoder{})
	r.Register(&ASCII85Decoder{})
	return r
}

func (r *Registry) Register(d Decoder) {
	r.decoders[d.Name()] = d
}

// Lookup returns the decoder for name, or nil when none is registered.
func (r *Registry) Lookup(name object.Name) Decoder {
	return r.decoders[name]
}
