package unet_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/segnet/base"
	"github.com/sugarme/segnet/unet"
)

func newConfig(channels, strides []int64, resUnits int) unet.Config {
	config := unet.DefaultConfig(1, 2)
	config.Channels = channels
	config.Strides = strides
	config.ResidualUnits = resUnits
	return config
}

// levels returns every down/skip/up block from outermost to innermost and the
// bottom layer.
func levels(t *testing.T, net *unet.UNet) ([]*base.Sequential, base.ChannelModule) {
	var blocks []*base.Sequential
	var bottom base.ChannelModule
	block := net.Model()
	for block != nil {
		require.Equal(t, 3, block.Len())
		blocks = append(blocks, block)
		skip, ok := block.Layers()[1].(*base.SkipConnection)
		require.True(t, ok, "middle layer must be a skip connection, got %T", block.Layers()[1])
		next, ok := skip.Submodule().(*base.Sequential)
		if !ok {
			bottom = skip.Submodule()
		}
		block = next
	}
	return blocks, bottom
}

func TestNew_ChannelStrideMismatch(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)

	for _, config := range []unet.Config{
		newConfig([]int64{16, 32, 64}, []int64{2}, 0),
		newConfig([]int64{16, 32}, []int64{2, 2}, 0),
		newConfig([]int64{16}, nil, 2),
	} {
		net, err := unet.New(vs.Root(), config)
		assert.Nil(t, net)
		assert.ErrorIs(t, err, unet.ErrConfig)
	}

	// Rejected before any layer was created.
	assert.Empty(t, vs.Variables())
}

func TestDepth_ForeignBlock(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	conv := base.NewConvolution(vs.Root(), base.DefaultConvConfig(1, 2))

	_, err := unet.Depth(base.NewSequential(conv, conv, conv))
	assert.ErrorIs(t, err, unet.ErrConfig)

	_, err = unet.Depth(base.NewSequential(conv))
	assert.ErrorIs(t, err, unet.ErrConfig)
}

func TestConfig_Validate(t *testing.T) {
	valid := newConfig([]int64{4, 8, 16}, []int64{2, 2}, 0)
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		modify func(c *unet.Config)
	}{
		{"dimensions", func(c *unet.Config) { c.Dimensions = 4 }},
		{"in channels", func(c *unet.Config) { c.InChannels = 0 }},
		{"out channels", func(c *unet.Config) { c.OutChannels = -1 }},
		{"channel", func(c *unet.Config) { c.Channels = []int64{4, 0, 16} }},
		{"stride", func(c *unet.Config) { c.Strides = []int64{2, 0} }},
		{"even kernel", func(c *unet.Config) { c.KernelSize = 4 }},
		{"even up kernel", func(c *unet.Config) { c.UpKernelSize = 2 }},
		{"residual units", func(c *unet.Config) { c.ResidualUnits = -1 }},
		{"dropout", func(c *unet.Config) { c.Dropout = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newConfig([]int64{4, 8, 16}, []int64{2, 2}, 0)
			tt.modify(&c)
			assert.ErrorIs(t, c.Validate(), unet.ErrConfig)
		})
	}
}

func TestNew_Depth(t *testing.T) {
	tests := []struct {
		channels []int64
		strides  []int64
	}{
		{[]int64{4, 8}, []int64{2}},
		{[]int64{4, 8, 16}, []int64{2, 2}},
		{[]int64{4, 8, 16, 32, 64}, []int64{2, 2, 2, 1}},
	}

	for _, tt := range tests {
		for _, resUnits := range []int{0, 2} {
			vs := nn.NewVarStore(gotch.CPU)
			net, err := unet.New(vs.Root(), newConfig(tt.channels, tt.strides, resUnits))
			require.NoError(t, err)

			blocks, bottom := levels(t, net)
			assert.Len(t, blocks, len(tt.channels)-1)
			depth, err := unet.Depth(net.Model())
			require.NoError(t, err)
			assert.Equal(t, len(tt.channels)-1, depth)
			require.NotNil(t, bottom)

			last := tt.channels[len(tt.channels)-1]
			assert.Equal(t, tt.channels[len(tt.channels)-2], bottom.InChannels())
			assert.Equal(t, last, bottom.OutChannels())
		}
	}
}

func TestNew_ChannelArithmetic(t *testing.T) {
	for _, resUnits := range []int{0, 1} {
		vs := nn.NewVarStore(gotch.CPU)
		net, err := unet.New(vs.Root(), newConfig([]int64{16, 32, 64}, []int64{2, 2}, resUnits))
		require.NoError(t, err)

		blocks, _ := levels(t, net)
		require.Len(t, blocks, 2)

		outer, inner := blocks[0], blocks[1]
		outerUp := outer.Layers()[2].(base.ChannelModule)
		innerUp := inner.Layers()[2].(base.ChannelModule)
		assert.EqualValues(t, 32, outerUp.InChannels())
		assert.EqualValues(t, 96, innerUp.InChannels())
		assert.EqualValues(t, 2, outerUp.OutChannels())
		assert.EqualValues(t, 16, innerUp.OutChannels())

		// Every up layer consumes exactly what its skip connection produces.
		for _, block := range blocks {
			down := block.Layers()[0].(base.ChannelModule)
			skip := block.Layers()[1].(*base.SkipConnection)
			up := block.Layers()[2].(base.ChannelModule)
			assert.Equal(t, down.OutChannels(), skip.InChannels())
			assert.Equal(t, skip.OutChannels(), up.InChannels())
		}
	}
}

func TestNew_ConvOnlyTopLayer(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	net, err := unet.New(vs.Root(), newConfig([]int64{4, 8, 16, 32}, []int64{2, 2, 2}, 0))
	require.NoError(t, err)

	blocks, bottom := levels(t, net)
	for i, block := range blocks {
		down, ok := block.Layers()[0].(*base.Convolution)
		require.True(t, ok)
		assert.False(t, down.ConvOnly())
		assert.False(t, down.Transposed())

		up, ok := block.Layers()[2].(*base.Convolution)
		require.True(t, ok)
		assert.True(t, up.Transposed())
		assert.Equal(t, i == 0, up.ConvOnly(), "level %d", i)
	}

	b, ok := bottom.(*base.Convolution)
	require.True(t, ok)
	assert.EqualValues(t, 1, b.Stride())
	assert.False(t, b.ConvOnly())
}

func TestNew_ResidualUpLayers(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	net, err := unet.New(vs.Root(), newConfig([]int64{4, 8, 16, 32}, []int64{2, 2, 2}, 3))
	require.NoError(t, err)

	blocks, bottom := levels(t, net)
	for i, block := range blocks {
		down, ok := block.Layers()[0].(*base.ResidualUnit)
		require.True(t, ok)
		assert.Len(t, down.Units(), 3)
		assert.False(t, down.LastConvOnly())

		up, ok := block.Layers()[2].(*base.Sequential)
		require.True(t, ok)
		require.Equal(t, 2, up.Len())

		conv := up.Layers()[0].(*base.Convolution)
		assert.True(t, conv.Transposed())
		assert.False(t, conv.ConvOnly())

		ru := up.Layers()[1].(*base.ResidualUnit)
		assert.Len(t, ru.Units(), 1)
		assert.EqualValues(t, 1, ru.Config().Stride)
		assert.Equal(t, i == 0, ru.LastConvOnly(), "level %d", i)
	}

	b, ok := bottom.(*base.ResidualUnit)
	require.True(t, ok)
	assert.Len(t, b.Units(), 3)
	assert.EqualValues(t, 1, b.Config().Stride)
}

func TestUNet_Predict(t *testing.T) {
	for _, resUnits := range []int{0, 2} {
		vs := nn.NewVarStore(gotch.CPU)
		config := newConfig([]int64{4, 8, 16}, []int64{2, 2}, resUnits)
		net, err := unet.New(vs.Root(), config)
		require.NoError(t, err)

		x := ts.MustRand([]int64{3, 1, 16, 16}, gotch.Float, gotch.CPU)
		raw, labels, err := net.Predict(x)
		require.NoError(t, err)

		assert.Equal(t, []int64{3, 2, 16, 16}, raw.MustSize())
		assert.Equal(t, []int64{3, 1, 16, 16}, labels.MustSize())
		for _, v := range labels.Int64Values() {
			assert.Contains(t, []int64{0, 1}, v)
		}

		raw.MustDrop()
		labels.MustDrop()
		x.MustDrop()
	}
}

func TestUNet_PredictIdempotent(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	net, err := unet.New(vs.Root(), newConfig([]int64{4, 8, 16}, []int64{2, 2}, 1))
	require.NoError(t, err)

	x := ts.MustRand([]int64{2, 1, 8, 8}, gotch.Float, gotch.CPU)
	raw1, labels1, err := net.Predict(x)
	require.NoError(t, err)
	raw2, labels2, err := net.Predict(x)
	require.NoError(t, err)

	assert.Equal(t, raw1.Float64Values(), raw2.Float64Values())
	assert.Equal(t, labels1.Int64Values(), labels2.Int64Values())
}

func TestUNet_PredictShapeMismatch(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	net, err := unet.New(vs.Root(), newConfig([]int64{4, 8, 16}, []int64{2, 2}, 0))
	require.NoError(t, err)

	for _, shape := range [][]int64{
		{1, 1, 16},      // rank
		{1, 3, 16, 16},  // channels
		{1, 1, 16, 10},  // not divisible by 4
		{1, 1, 8, 8, 8}, // rank
	} {
		x := ts.MustZeros(shape, gotch.Float, gotch.CPU)
		raw, labels, err := net.Predict(x)
		assert.ErrorIs(t, err, unet.ErrShapeMismatch, "shape %v", shape)
		assert.Nil(t, raw)
		assert.Nil(t, labels)
		x.MustDrop()
	}
}

func TestUNet_Dimensions(t *testing.T) {
	tests := []struct {
		dims  int
		shape []int64
	}{
		{1, []int64{2, 1, 32}},
		{3, []int64{1, 1, 8, 8, 8}},
	}

	for _, tt := range tests {
		for _, instanceNorm := range []bool{true, false} {
			vs := nn.NewVarStore(gotch.CPU)
			config := newConfig([]int64{4, 8, 16}, []int64{2, 2}, 1)
			config.Dimensions = tt.dims
			config.InstanceNorm = instanceNorm
			config.Dropout = 0.1
			net, err := unet.New(vs.Root(), config)
			require.NoError(t, err)

			x := ts.MustRand(tt.shape, gotch.Float, gotch.CPU)
			out := net.ForwardT(x, true)

			want := append([]int64{tt.shape[0], 2}, tt.shape[2:]...)
			assert.Equal(t, want, out.MustSize())

			out.MustDrop()
			x.MustDrop()
		}
	}
}

func TestUNet_ConfigIsCopied(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	config := newConfig([]int64{4, 8, 16}, []int64{2, 2}, 0)
	net, err := unet.New(vs.Root(), config)
	require.NoError(t, err)

	config.Channels[0] = 100
	got := net.Config()
	assert.EqualValues(t, 4, got.Channels[0])

	got.Strides[0] = 7
	assert.EqualValues(t, 2, net.Config().Strides[0])
}

func snapshot(vs *nn.VarStore) map[string][]float64 {
	vals := make(map[string][]float64)
	for name, v := range vs.Variables() {
		vals[name] = v.Float64Values()
	}
	return vals
}

func TestUNet_PredictKeepsVariables(t *testing.T) {
	for _, instanceNorm := range []bool{true, false} {
		vs := nn.NewVarStore(gotch.CPU)
		config := newConfig([]int64{4, 8, 16}, []int64{2, 2}, 1)
		config.InstanceNorm = instanceNorm
		net, err := unet.New(vs.Root(), config)
		require.NoError(t, err)

		before := snapshot(vs)
		x := ts.MustRand([]int64{2, 1, 8, 8}, gotch.Float, gotch.CPU)
		for i := 0; i < 2; i++ {
			raw, labels, err := net.Predict(x)
			require.NoError(t, err)
			raw.MustDrop()
			labels.MustDrop()
		}
		x.MustDrop()

		assert.Equal(t, before, snapshot(vs), "instance norm %v", instanceNorm)
	}
}
