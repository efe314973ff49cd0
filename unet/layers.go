package unet

import (
	"github.com/pkg/errors"
	"github.com/sugarme/gotch/nn"

	"github.com/sugarme/segnet/base"
)

// builder creates the layers of a UNet under a var store path.
type builder struct {
	config Config
}

// createBlock builds one level of the network and, recursively, every level
// below it. It returns down -> skip(sublevel) -> up.
//
//	down0                          up0
//	    down1                  up1
//	        ...            ...
//	            down(n-1)  up(n-1)
//	                bottom
func (b *builder) createBlock(p *nn.Path, cIn, cOut int64, channels, strides []int64, isTop bool) *base.Sequential {
	c := channels[0]
	s := strides[0]

	var (
		subblock base.ChannelModule
		upc      int64
	)
	if len(channels) > 2 {
		subblock = b.createBlock(p.Sub("sub"), c, c, channels[1:], strides[1:], false)
		// skip passthrough (c) + subblock output (c)
		upc = c * 2
	} else {
		subblock = b.bottomLayer(p.Sub("bottom"), c, channels[1])
		// skip passthrough (c) + bottom output
		upc = c + channels[1]
	}

	down := b.downLayer(p.Sub("down"), cIn, c, s, isTop)
	up := b.upLayer(p.Sub("up"), upc, cOut, s, isTop)

	return base.NewSequential(down, base.NewSkipConnection(subblock), up)
}

// downLayer creates an encoder layer. isTop does not change the layer.
func (b *builder) downLayer(p *nn.Path, cIn, cOut, stride int64, isTop bool) base.ChannelModule {
	if b.config.ResidualUnits > 0 {
		return base.NewResidualUnit(p, base.ResidualConfig{
			Dimensions:   b.config.Dimensions,
			InChannels:   cIn,
			OutChannels:  cOut,
			Stride:       stride,
			KernelSize:   b.config.KernelSize,
			Subunits:     b.config.ResidualUnits,
			InstanceNorm: b.config.InstanceNorm,
			Dropout:      b.config.Dropout,
		})
	}

	return base.NewConvolution(p, base.ConvConfig{
		Dimensions:   b.config.Dimensions,
		InChannels:   cIn,
		OutChannels:  cOut,
		Stride:       stride,
		KernelSize:   b.config.KernelSize,
		InstanceNorm: b.config.InstanceNorm,
		Dropout:      b.config.Dropout,
	})
}

// bottomLayer creates the innermost layer: a non strided down layer.
func (b *builder) bottomLayer(p *nn.Path, cIn, cOut int64) base.ChannelModule {
	return b.downLayer(p, cIn, cOut, 1, false)
}

// upLayer creates a decoder layer: a transposed convolution, followed by a
// single residual unit in residual mode.
//
// The top layer produces raw logits. In plain mode its transposed convolution
// has no norm/activation, in residual mode the trailing residual unit has none.
func (b *builder) upLayer(p *nn.Path, cIn, cOut, stride int64, isTop bool) base.ChannelModule {
	conv := base.NewConvolution(p.Sub("conv"), base.ConvConfig{
		Dimensions:   b.config.Dimensions,
		InChannels:   cIn,
		OutChannels:  cOut,
		Stride:       stride,
		KernelSize:   b.config.UpKernelSize,
		InstanceNorm: b.config.InstanceNorm,
		Dropout:      b.config.Dropout,
		ConvOnly:     isTop && b.config.ResidualUnits == 0,
		Transposed:   true,
	})

	if b.config.ResidualUnits == 0 {
		return conv
	}

	ru := base.NewResidualUnit(p.Sub("residual"), base.ResidualConfig{
		Dimensions:   b.config.Dimensions,
		InChannels:   cOut,
		OutChannels:  cOut,
		Stride:       1,
		KernelSize:   b.config.KernelSize,
		Subunits:     1,
		InstanceNorm: b.config.InstanceNorm,
		Dropout:      b.config.Dropout,
		LastConvOnly: isTop,
	})

	return base.NewSequential(conv, ru)
}

// Depth returns the number of down/skip/up levels of a block built by New.
// It returns an error wrapping ErrConfig if a level is not a down/skip/up
// block.
func Depth(model *base.Sequential) (int, error) {
	depth := 0
	block := model
	for block != nil {
		depth++
		if block.Len() != 3 {
			return 0, errors.Wrapf(ErrConfig, "expected 3 layers at level %d, got %d", depth, block.Len())
		}
		skip, ok := block.Layers()[1].(*base.SkipConnection)
		if !ok {
			return 0, errors.Wrapf(ErrConfig, "unexpected layer %T at level %d", block.Layers()[1], depth)
		}
		block, _ = skip.Submodule().(*base.Sequential)
	}

	return depth, nil
}
