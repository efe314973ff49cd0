package base

import (
	"log"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// InstanceNorm normalizes every channel of every sample by its own
// spatial statistics. It has no learnable affine parameters and keeps no
// running statistics, so a forward pass never changes its state.
type InstanceNorm struct {
	ws       *ts.Tensor
	bs       *ts.Tensor
	channels int64
	Eps      float64
}

// NewInstanceNorm creates an InstanceNorm over c channels.
func NewInstanceNorm(p *nn.Path, c int64) *InstanceNorm {
	return &InstanceNorm{
		ws:       p.OnesNoTrain("weight", []int64{c}),
		bs:       p.ZerosNoTrain("bias", []int64{c}),
		channels: c,
		Eps:      1e-5,
	}
}

// ForwardT implements ts.ModuleT for InstanceNorm struct.
// Group norm with one group per channel, same in train and eval mode.
func (n *InstanceNorm) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	return ts.MustGroupNorm(x, n.channels, n.ws, n.bs, n.Eps, false)
}

// NewNorm creates the normalization layer used after a convolution:
// InstanceNorm when instance is true, else BatchNorm of matching dimensions.
func NewNorm(p *nn.Path, dims int, c int64, instance bool) ts.ModuleT {
	if instance {
		return NewInstanceNorm(p, c)
	}

	config := nn.DefaultBatchNormConfig()
	switch dims {
	case 1:
		return nn.BatchNorm1D(p, c, config)
	case 2:
		return nn.BatchNorm2D(p, c, config)
	case 3:
		return nn.BatchNorm3D(p, c, config)
	default:
		log.Fatalf("Unsupported spatial dimensions. Expected 1, 2 or 3. Got %v\n", dims)
	}

	return nil
}

// PReLU is a parametric ReLU with a single learnable slope.
type PReLU struct {
	weight *ts.Tensor
}

// NewPReLU creates PReLU with slope initialized to 0.25.
func NewPReLU(p *nn.Path) *PReLU {
	return &PReLU{weight: p.NewVar("weight", []int64{1}, nn.NewConstInit(0.25))}
}

// ForwardT implements ts.ModuleT for PReLU struct.
func (a *PReLU) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	return x.MustPrelu(a.weight, false)
}
