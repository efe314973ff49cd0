package base

import (
	ts "github.com/sugarme/gotch/tensor"
)

// SkipConnection concatenates its input with the output of the wrapped
// submodule along the channel axis: cat([x, m(x)], 1).
type SkipConnection struct {
	submodule ChannelModule
}

// NewSkipConnection wraps m in a skip connection.
func NewSkipConnection(m ChannelModule) *SkipConnection {
	return &SkipConnection{m}
}

// ForwardT implements ts.ModuleT for SkipConnection struct.
func (s *SkipConnection) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	y := s.submodule.ForwardT(x, train)
	cat := ts.MustCat([]ts.Tensor{*x, *y}, 1)
	y.MustDrop()

	return cat
}

// Submodule returns the wrapped module.
func (s *SkipConnection) Submodule() ChannelModule {
	return s.submodule
}

// InChannels is the channel count passed through unchanged.
func (s *SkipConnection) InChannels() int64 {
	return s.submodule.InChannels()
}

// OutChannels is passthrough channels plus submodule output channels.
func (s *SkipConnection) OutChannels() int64 {
	return s.submodule.InChannels() + s.submodule.OutChannels()
}
