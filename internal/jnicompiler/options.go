package jnicompiler

import (
	"github.com/artquick/quick/internal/isa"
	"github.com/artquick/quick/internal/jni"
)

// Options configures Compile. The zero value is not used directly; start from NewOptions.
// Every With method returns a modified copy.
type Options struct {
	cfg      *jni.Config
	features *isa.Features
	cfi      bool
	listing  bool
}

// NewOptions returns the default options: jni.NewConfig, the generic variant of the
// target, call frame information on and no listing.
func NewOptions() *Options {
	return &Options{cfg: jni.NewConfig(), cfi: true}
}

func (o *Options) clone() *Options {
	ret := *o
	return &ret
}

// WithConfig sets the runtime features the stubs cooperate with.
func (o *Options) WithConfig(cfg *jni.Config) *Options {
	ret := o.clone()
	ret.cfg = cfg
	return ret
}

// WithFeatures sets the variant of the target. nil selects the generic one.
func (o *Options) WithFeatures(features *isa.Features) *Options {
	ret := o.clone()
	ret.features = features
	return ret
}

// WithCFI toggles the generation of call frame information.
func (o *Options) WithCFI(enabled bool) *Options {
	ret := o.clone()
	ret.cfi = enabled
	return ret
}

// WithListing toggles the generation of a Go assembler listing of the stub.
func (o *Options) WithListing(enabled bool) *Options {
	ret := o.clone()
	ret.listing = enabled
	return ret
}
