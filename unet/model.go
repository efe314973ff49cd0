package unet

import (
	"github.com/pkg/errors"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/segnet/base"
)

// UNet is a UNET model struct built recursively from a Config.
// Every encoder stage is mirrored by a decoder stage and the two are joined by
// a skip connection concatenating along the channel axis.
//
// Ref: https://arxiv.org/abs/1505.04597
type UNet struct {
	config Config
	model  *base.Sequential
}

// New validates config and creates a UNet with its variables under p.
func New(p *nn.Path, config Config) (*UNet, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	config = config.clone()
	b := &builder{config: config}
	model := b.createBlock(p.Sub("model"), config.InChannels, config.OutChannels, config.Channels, config.Strides, true)

	return &UNet{
		config: config,
		model:  model,
	}, nil
}

// ForwardT implements ts.ModuleT for UNet struct. It returns raw logits of
// shape [N OutChannels ...spatial].
func (n *UNet) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	return n.model.ForwardT(x, train)
}

// Predict runs the network in eval mode and returns raw logits together with
// the decided label map (see base.PredictSegmentation).
func (n *UNet) Predict(x *ts.Tensor) (raw, labels *ts.Tensor, err error) {
	if err := n.CheckInput(x); err != nil {
		return nil, nil, err
	}

	raw = n.ForwardT(x, false)
	labels = base.PredictSegmentation(raw)

	return raw, labels, nil
}

// CheckInput returns an error wrapping ErrShapeMismatch if x can not be fed to
// the network: wrong rank, wrong channel count or a spatial extent not
// divisible by the total downsampling factor.
func (n *UNet) CheckInput(x *ts.Tensor) error {
	size := x.MustSize()
	if len(size) != n.config.Dimensions+2 {
		return errors.Wrapf(ErrShapeMismatch, "expected input of rank %d ([N C ...spatial]), got shape %v", n.config.Dimensions+2, size)
	}
	if size[1] != n.config.InChannels {
		return errors.Wrapf(ErrShapeMismatch, "expected %d input channels, got shape %v", n.config.InChannels, size)
	}

	f := n.config.Downsampling()
	for i, d := range size[2:] {
		if d%f != 0 {
			return errors.Wrapf(ErrShapeMismatch, "spatial dim %d (%d) is not divisible by %d", i, d, f)
		}
	}

	return nil
}

// Config returns a copy of the config the model was built with.
func (n *UNet) Config() Config {
	return n.config.clone()
}

// Model returns the root block: down -> skip(...) -> up.
func (n *UNet) Model() *base.Sequential {
	return n.model
}
