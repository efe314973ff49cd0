package base

import (
	ts "github.com/sugarme/gotch/tensor"
)

// ChannelModule is a ts.ModuleT that knows its channel counts.
// All blocks built by this package implement it so that channel
// arithmetic can be checked without running a forward pass.
type ChannelModule interface {
	ts.ModuleT
	InChannels() int64
	OutChannels() int64
}

// Identity is a nn.Module placeholder.
// It forwards the input tensor as such.
type Identity struct {
	channels int64
}

// Forward implement nn.Module for Identity struct
func (i *Identity) Forward(x *ts.Tensor) *ts.Tensor {
	return x.MustShallowClone()
}

// Forward implement nn.ModuleT for Identity struct.
func (i *Identity) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	return x.MustShallowClone()
}

func (i *Identity) InChannels() int64  { return i.channels }
func (i *Identity) OutChannels() int64 { return i.channels }

// NewIdentity creates a new Identity struct.
func NewIdentity(channels int64) *Identity {
	return &Identity{channels}
}

// Sequential runs its layers in order, feeding each output to the next.
//
// Unlike nn.SequentialT it exposes its layers so that a built network
// can be walked and inspected.
type Sequential struct {
	layers []ts.ModuleT
}

// NewSequential creates a Sequential from the given layers.
func NewSequential(layers ...ts.ModuleT) *Sequential {
	seq := &Sequential{layers: make([]ts.ModuleT, 0, len(layers))}
	for _, l := range layers {
		seq.Add(l)
	}

	return seq
}

// Add appends a layer.
func (s *Sequential) Add(l ts.ModuleT) {
	s.layers = append(s.layers, l)
}

// Layers returns the layers in execution order.
func (s *Sequential) Layers() []ts.ModuleT {
	return s.layers
}

// Len returns number of layers.
func (s *Sequential) Len() int {
	return len(s.layers)
}

// ForwardT implements ts.ModuleT for Sequential struct.
func (s *Sequential) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	if len(s.layers) == 0 {
		return x.MustShallowClone()
	}

	out := s.layers[0].ForwardT(x, train)
	for _, l := range s.layers[1:] {
		next := l.ForwardT(out, train)
		out.MustDrop()
		out = next
	}

	return out
}

// InChannels returns input channels of the first layer or 0 if unknown.
func (s *Sequential) InChannels() int64 {
	if len(s.layers) == 0 {
		return 0
	}
	if m, ok := s.layers[0].(ChannelModule); ok {
		return m.InChannels()
	}
	return 0
}

// OutChannels returns output channels of the last layer or 0 if unknown.
func (s *Sequential) OutChannels() int64 {
	if len(s.layers) == 0 {
		return 0
	}
	if m, ok := s.layers[len(s.layers)-1].(ChannelModule); ok {
		return m.OutChannels()
	}
	return 0
}

// SamePadding returns padding that keeps spatial size for stride 1
// with an odd kernel size.
func SamePadding(ksize int64) int64 {
	return (ksize - 1) / 2
}

func repeat(v int64, n int) []int64 {
	vals := make([]int64, n)
	for i := range vals {
		vals[i] = v
	}
	return vals
}
