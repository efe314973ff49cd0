package unet

import (
	"github.com/pkg/errors"
)

var (
	// ErrConfig is returned when a Config cannot describe a valid network.
	ErrConfig = errors.New("invalid unet config")
	// ErrShapeMismatch is returned when an input tensor does not fit the network.
	ErrShapeMismatch = errors.New("shape mismatch")
)

// Config specifies a UNet.
//
// Channels lists the output channels of every encoder stage from outermost to
// innermost, the last entry being the bottom layer. Strides lists the
// downsampling factor of every stage but the bottom one, so
// len(Channels) == len(Strides)+1.
type Config struct {
	Dimensions    int     `yaml:"dimensions"`
	InChannels    int64   `yaml:"in_channels"`
	OutChannels   int64   `yaml:"out_channels"`
	Channels      []int64 `yaml:"channels"`
	Strides       []int64 `yaml:"strides"`
	KernelSize    int64   `yaml:"kernel_size"`
	UpKernelSize  int64   `yaml:"up_kernel_size"`
	ResidualUnits int     `yaml:"residual_units"` // 0 selects plain convolutions
	InstanceNorm  bool    `yaml:"instance_norm"`
	Dropout       float64 `yaml:"dropout"`
}

// DefaultConfig returns a 2D config with default kernel sizes, instance norm,
// no residual units and no dropout. Channels and strides are left empty.
func DefaultConfig(inChannels, outChannels int64) Config {
	return Config{
		Dimensions:   2,
		InChannels:   inChannels,
		OutChannels:  outChannels,
		KernelSize:   3,
		UpKernelSize: 3,
		InstanceNorm: true,
	}
}

// Validate checks config and returns an error wrapping ErrConfig if it is invalid.
func (c Config) Validate() error {
	if len(c.Channels) != len(c.Strides)+1 {
		return errors.Wrapf(ErrConfig, "expected len(channels) == len(strides)+1, got %d channels and %d strides", len(c.Channels), len(c.Strides))
	}
	if len(c.Channels) < 2 {
		return errors.Wrapf(ErrConfig, "expected at least 2 channels, got %d", len(c.Channels))
	}
	if c.Dimensions < 1 || c.Dimensions > 3 {
		return errors.Wrapf(ErrConfig, "unsupported spatial dimensions %d", c.Dimensions)
	}
	if c.InChannels <= 0 || c.OutChannels <= 0 {
		return errors.Wrapf(ErrConfig, "in/out channels must be positive, got %d/%d", c.InChannels, c.OutChannels)
	}
	for i, ch := range c.Channels {
		if ch <= 0 {
			return errors.Wrapf(ErrConfig, "channels[%d] must be positive, got %d", i, ch)
		}
	}
	for i, s := range c.Strides {
		if s <= 0 {
			return errors.Wrapf(ErrConfig, "strides[%d] must be positive, got %d", i, s)
		}
	}
	if c.KernelSize <= 0 || c.KernelSize%2 == 0 {
		return errors.Wrapf(ErrConfig, "kernel size must be positive and odd, got %d", c.KernelSize)
	}
	if c.UpKernelSize <= 0 || c.UpKernelSize%2 == 0 {
		return errors.Wrapf(ErrConfig, "up kernel size must be positive and odd, got %d", c.UpKernelSize)
	}
	if c.ResidualUnits < 0 {
		return errors.Wrapf(ErrConfig, "residual units must be non-negative, got %d", c.ResidualUnits)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return errors.Wrapf(ErrConfig, "dropout must be in [0, 1), got %v", c.Dropout)
	}

	return nil
}

// Downsampling returns the total downsampling factor: product of strides.
// Every spatial extent of an input must be divisible by it.
func (c Config) Downsampling() int64 {
	var f int64 = 1
	for _, s := range c.Strides {
		f *= s
	}
	return f
}

func (c Config) clone() Config {
	c.Channels = append([]int64(nil), c.Channels...)
	c.Strides = append([]int64(nil), c.Strides...)
	return c
}
