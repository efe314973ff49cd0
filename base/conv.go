package base

import (
	"log"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// ConvConfig configures a Convolution layer.
type ConvConfig struct {
	Dimensions   int // number of spatial dimensions: 1, 2 or 3
	InChannels   int64
	OutChannels  int64
	Stride       int64
	KernelSize   int64
	InstanceNorm bool    // InstanceNorm if true, else BatchNorm
	Dropout      float64 // dropout probability, no dropout layer if 0
	ConvOnly     bool    // skip norm, dropout and activation
	Transposed   bool
}

// DefaultConvConfig returns 2D, stride 1, kernel 3 config with instance norm.
func DefaultConvConfig(cIn, cOut int64) ConvConfig {
	return ConvConfig{
		Dimensions:   2,
		InChannels:   cIn,
		OutChannels:  cOut,
		Stride:       1,
		KernelSize:   3,
		InstanceNorm: true,
	}
}

// Convolution is a convolution followed by normalization, optional dropout
// and PReLU activation. With ConvOnly it is a bare convolution.
//
// Padding is chosen so that a stride-s convolution divides each spatial
// extent by s and its transposed counterpart multiplies it by s.
type Convolution struct {
	config  ConvConfig
	conv    ts.Module
	norm    ts.ModuleT
	act     ts.ModuleT
	dropout float64
}

// NewConvolution creates a Convolution.
func NewConvolution(p *nn.Path, config ConvConfig) *Convolution {
	c := &Convolution{
		config: config,
		conv:   newConv(p.Sub("conv"), config),
	}
	if config.ConvOnly {
		return c
	}

	c.norm = NewNorm(p.Sub("norm"), config.Dimensions, config.OutChannels, config.InstanceNorm)
	c.dropout = config.Dropout
	c.act = NewPReLU(p.Sub("prelu"))

	return c
}

// ForwardT implements ts.ModuleT for Convolution struct.
func (c *Convolution) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	out := c.conv.Forward(x)
	if c.config.ConvOnly {
		return out
	}

	norm := c.norm.ForwardT(out, train)
	out.MustDrop()
	if c.dropout > 0 {
		dropped := ts.MustDropout(norm, c.dropout, train)
		norm.MustDrop()
		norm = dropped
	}
	res := c.act.ForwardT(norm, train)
	norm.MustDrop()

	return res
}

// Config returns the layer configuration.
func (c *Convolution) Config() ConvConfig { return c.config }
func (c *Convolution) InChannels() int64 { return c.config.InChannels }
func (c *Convolution) OutChannels() int64 { return c.config.OutChannels }
func (c *Convolution) ConvOnly() bool { return c.config.ConvOnly }
func (c *Convolution) Transposed() bool { return c.config.Transposed }
func (c *Convolution) Stride() int64 { return c.config.Stride }

func newConv(p *nn.Path, config ConvConfig) ts.Module {
	dims := config.Dimensions
	cIn, cOut := config.InChannels, config.OutChannels
	ksize, stride := config.KernelSize, config.Stride
	padding := repeat(SamePadding(ksize), dims)
	strides := repeat(stride, dims)
	dilation := repeat(1, dims)
	ksizes := repeat(ksize, dims)

	if config.Transposed {
		outPadding := repeat(stride-1, dims)
		switch dims {
		case 1:
			cfg := nn.DefaultConvTranspose1DConfig()
			cfg.Stride = strides
			cfg.Padding = padding
			cfg.OutputPadding = outPadding
			return nn.NewConvTranspose1D(p, cIn, cOut, ksizes, cfg)
		case 2:
			cfg := &nn.ConvTranspose2DConfig{
				Stride:        strides,
				Padding:       padding,
				OutputPadding: outPadding,
				Dilation:      dilation,
				Groups:        1,
				Bias:          true,
				WsInit:        nn.NewKaimingUniformInit(),
				BsInit:        nn.NewConstInit(0),
			}
			return nn.NewConvTranspose2D(p, cIn, cOut, ksizes, cfg)
		case 3:
			cfg := &nn.ConvTranspose3DConfig{
				Stride:        strides,
				Padding:       padding,
				OutputPadding: outPadding,
				Dilation:      dilation,
				Groups:        1,
				Bias:          true,
				WsInit:        nn.NewKaimingUniformInit(),
				BsInit:        nn.NewConstInit(0),
			}
			return nn.NewConvTranspose3D(p, cIn, cOut, ksizes, cfg)
		}
	} else {
		switch dims {
		case 1:
			cfg := nn.DefaultConv1DConfig()
			cfg.Stride = strides
			cfg.Padding = padding
			return nn.NewConv1D(p, cIn, cOut, ksize, cfg)
		case 2:
			cfg := nn.DefaultConv2DConfig()
			cfg.Stride = strides
			cfg.Padding = padding
			return nn.NewConv2D(p, cIn, cOut, ksize, cfg)
		case 3:
			// gotch has no default 3D config.
			cfg := &nn.Conv3DConfig{
				Stride:   strides,
				Padding:  padding,
				Dilation: dilation,
				Groups:   1,
				Bias:     true,
				WsInit:   nn.NewKaimingUniformInit(),
				BsInit:   nn.NewConstInit(0),
			}
			return nn.NewConv3D(p, cIn, cOut, ksize, cfg)
		}
	}

	log.Fatalf("Unsupported spatial dimensions. Expected 1, 2 or 3. Got %v\n", dims)
	return nil
}
