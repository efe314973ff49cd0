package base

import (
	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"
)

// PredictSegmentation turns logits of shape [N C ...] into integer labels of
// shape [N 1 ...].
//
// Single channel logits are thresholded at 0 (labels 0/1). Otherwise the label
// is the index of the highest scoring channel.
func PredictSegmentation(logits *ts.Tensor) *ts.Tensor {
	size := logits.MustSize()
	if size[1] == 1 {
		return logits.MustGe(ts.FloatScalar(0), false).MustTotype(gotch.Int64, true)
	}

	return logits.MustArgmax([]int64{1}, true, false)
}
