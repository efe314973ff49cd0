// Package metric provides overlap metrics between decided label maps.
package metric

import (
	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"
)

func sum(x *ts.Tensor) float64 {
	s := x.MustSum(gotch.Double, false)
	v := s.Float64Values()[0]
	s.MustDrop()
	return v
}

// overlap returns |p&t|, |p| and |t| for boolean masks p and t.
func overlap(p, t *ts.Tensor) (inter, pSum, tSum float64) {
	pt := p.MustMul(t, false)
	inter = sum(pt)
	pt.MustDrop()

	return inter, sum(p), sum(t)
}

// DiceCoeff measures overlap of the foreground (nonzero labels) of pred and
// target: 2|P&T| / (|P|+|T|). Two empty maps score 1.
//
// Ref. http://campar.in.tum.de/pub/milletari2016Vnet/milletari2016Vnet.pdf
func DiceCoeff(pred, target *ts.Tensor) float64 {
	p := pred.MustGt(ts.FloatScalar(0), false)
	t := target.MustGt(ts.FloatScalar(0), false)
	inter, pSum, tSum := overlap(p, t)
	p.MustDrop()
	t.MustDrop()

	if pSum+tSum == 0 {
		return 1
	}
	return 2 * inter / (pSum + tSum)
}

// IoU is the intersection over union of the foreground (nonzero labels) of
// pred and target. Two empty maps score 1.
func IoU(pred, target *ts.Tensor) float64 {
	p := pred.MustGt(ts.FloatScalar(0), false)
	t := target.MustGt(ts.FloatScalar(0), false)
	inter, pSum, tSum := overlap(p, t)
	p.MustDrop()
	t.MustDrop()

	union := pSum + tSum - inter
	if union == 0 {
		return 1
	}
	return inter / union
}

// JaccardIndex is the mean intersection over union over classes
// 0..numClasses-1. Classes absent from both maps are skipped.
func JaccardIndex(pred, target *ts.Tensor, numClasses int64) float64 {
	var total float64
	var n int
	for c := int64(0); c < numClasses; c++ {
		p := pred.MustEq(ts.IntScalar(c), false)
		t := target.MustEq(ts.IntScalar(c), false)
		inter, pSum, tSum := overlap(p, t)
		p.MustDrop()
		t.MustDrop()

		union := pSum + tSum - inter
		if union == 0 {
			continue
		}
		total += inter / union
		n++
	}

	if n == 0 {
		return 1
	}
	return total / float64(n)
}

// PixelCounts returns the number of elements of labels equal to each class
// in 0..numClasses-1.
func PixelCounts(labels *ts.Tensor, numClasses int64) []int64 {
	counts := make([]int64, numClasses)
	for c := int64(0); c < numClasses; c++ {
		m := labels.MustEq(ts.IntScalar(c), false)
		counts[c] = int64(sum(m))
		m.MustDrop()
	}
	return counts
}
