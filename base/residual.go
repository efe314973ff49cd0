package base

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// ResidualConfig configures a ResidualUnit.
type ResidualConfig struct {
	Dimensions   int
	InChannels   int64
	OutChannels  int64
	Stride       int64
	KernelSize   int64
	Subunits     int
	InstanceNorm bool
	Dropout      float64
	LastConvOnly bool // last subunit skips norm, dropout and activation
}

// ResidualUnit stacks Subunits convolutions and adds a shortcut of the input.
// Only the first subunit is strided. The shortcut is the identity when shape is
// preserved, otherwise a convolution projecting to the output shape.
//
// Ref. https://arxiv.org/abs/1512.03385
type ResidualUnit struct {
	config   ResidualConfig
	units    []*Convolution
	conv     *Sequential
	residual ts.ModuleT
}

// NewResidualUnit creates a ResidualUnit. Subunits below 1 are treated as 1.
func NewResidualUnit(p *nn.Path, config ResidualConfig) *ResidualUnit {
	subunits := config.Subunits
	if subunits < 1 {
		subunits = 1
	}

	var units []*Convolution
	conv := NewSequential()
	cIn, stride := config.InChannels, config.Stride
	for i := 0; i < subunits; i++ {
		unit := NewConvolution(p.Sub(fmt.Sprintf("unit%d", i)), ConvConfig{
			Dimensions:   config.Dimensions,
			InChannels:   cIn,
			OutChannels:  config.OutChannels,
			Stride:       stride,
			KernelSize:   config.KernelSize,
			InstanceNorm: config.InstanceNorm,
			Dropout:      config.Dropout,
			ConvOnly:     config.LastConvOnly && i == subunits-1,
		})
		units = append(units, unit)
		conv.Add(unit)
		cIn, stride = config.OutChannels, 1
	}

	return &ResidualUnit{
		config:   config,
		units:    units,
		conv:     conv,
		residual: shortcut(p.Sub("residual"), config),
	}
}

func shortcut(p *nn.Path, config ResidualConfig) ts.ModuleT {
	if config.Stride == 1 && config.InChannels == config.OutChannels {
		return NewIdentity(config.InChannels)
	}

	// 1x1 projection when only channels change.
	ksize := config.KernelSize
	if config.Stride == 1 {
		ksize = 1
	}

	return NewConvolution(p, ConvConfig{
		Dimensions:  config.Dimensions,
		InChannels:  config.InChannels,
		OutChannels: config.OutChannels,
		Stride:      config.Stride,
		KernelSize:  ksize,
		ConvOnly:    true,
	})
}

// ForwardT implements ts.ModuleT for ResidualUnit struct.
func (r *ResidualUnit) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	res := r.residual.ForwardT(x, train)
	cx := r.conv.ForwardT(x, train)
	out := cx.MustAdd(res, true)
	res.MustDrop()

	return out
}

// Config returns the unit configuration.
func (r *ResidualUnit) Config() ResidualConfig { return r.config }

// Units returns the stacked subunit convolutions.
func (r *ResidualUnit) Units() []*Convolution { return r.units }

// LastConvOnly reports whether the final subunit produces raw outputs.
func (r *ResidualUnit) LastConvOnly() bool {
	return r.units[len(r.units)-1].ConvOnly()
}

func (r *ResidualUnit) InChannels() int64  { return r.config.InChannels }
func (r *ResidualUnit) OutChannels() int64 { return r.config.OutChannels }
