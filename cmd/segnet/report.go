package main

import (
	"fmt"
	"image"
	"log"
	"os"

	"github.com/go-gota/gota/dataframe"
	"github.com/pkg/errors"
	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/sugarme/segnet/imgutil"
	"github.com/sugarme/segnet/metric"
)

// ClassSummary is one row of the per-class summary CSV.
type ClassSummary struct {
	Class    int
	Pixels   int
	Fraction float64
}

// writeOutputs writes the label map and every optional report requested by flags.
func writeOutputs(img image.Image, labels *ts.Tensor, numClasses int64) error {
	mask, err := imgutil.LabelsToImage(labels, numClasses)
	if err != nil {
		return err
	}
	if err := imgutil.SaveImage(mask, absPath(OutputPath)); err != nil {
		return err
	}
	log.Printf("Label map saved to %v\n", OutputPath)

	if OverlayPath != "" {
		if err := imgutil.SaveImage(imgutil.Overlay(img, mask), absPath(OverlayPath)); err != nil {
			return err
		}
	}

	counts := metric.PixelCounts(labels, numClasses)
	summary := summarize(counts)
	for _, s := range summary {
		log.Printf("class %d: %d pixels (%.2f%%)\n", s.Class, s.Pixels, 100*s.Fraction)
	}

	if SummaryPath != "" {
		if err := writeSummary(summary, absPath(SummaryPath)); err != nil {
			return err
		}
	}
	if PlotPath != "" {
		if err := plotSummary(summary, absPath(PlotPath)); err != nil {
			return err
		}
	}
	if MaskPath != "" {
		if _, err := score(labels, numClasses, mask.Bounds()); err != nil {
			return err
		}
	}

	return nil
}

func summarize(counts []int64) []ClassSummary {
	var total int64
	for _, c := range counts {
		total += c
	}

	summary := make([]ClassSummary, len(counts))
	for i, c := range counts {
		summary[i] = ClassSummary{Class: i, Pixels: int(c)}
		if total > 0 {
			summary[i].Fraction = float64(c) / float64(total)
		}
	}
	return summary
}

func writeSummary(summary []ClassSummary, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "create summary %q", filename)
	}
	defer f.Close()

	df := dataframe.LoadStructs(summary)
	if df.Err != nil {
		return df.Err
	}

	return errors.Wrap(df.WriteCSV(f), "write summary")
}

func plotSummary(summary []ClassSummary, filename string) error {
	p, err := plot.New()
	if err != nil {
		return err
	}
	p.Title.Text = "Pixels per class"
	p.Y.Label.Text = "pixels"

	v := make(plotter.Values, len(summary))
	names := make([]string, len(summary))
	for i, s := range summary {
		v[i] = float64(s.Pixels)
		names[i] = fmt.Sprint(s.Class)
	}

	bars, err := plotter.NewBarChart(v, vg.Points(20))
	if err != nil {
		return err
	}
	p.Add(bars)
	p.NominalX(names...)

	return errors.Wrapf(p.Save(4*vg.Inch, 4*vg.Inch, filename), "save plot %q", filename)
}

// score compares labels to the ground truth mask given by -mask and returns
// the mean IoU. For binary segmentation any nonzero mask pixel is foreground,
// otherwise gray levels map back to labels with the spread used by
// imgutil.LabelsToImage.
func score(labels *ts.Tensor, numClasses int64, bounds image.Rectangle) (float64, error) {
	if numClasses > imgutil.MaxClasses {
		return 0, errors.Errorf("cannot score %d classes from a gray mask, at most %d", numClasses, imgutil.MaxClasses)
	}

	gt, err := imgutil.ReadImage(absPath(MaskPath))
	if err != nil {
		return 0, err
	}
	if gt.Bounds().Size() != bounds.Size() {
		gt = imgutil.ResizeLabels(gt, bounds.Dx(), bounds.Dy())
	}

	x, err := imgutil.ToTensor(gt, 1, gotch.CPU)
	if err != nil {
		return 0, err
	}

	var target *ts.Tensor
	if numClasses == 2 {
		target = x.MustGt(ts.FloatScalar(0), true).MustTotype(gotch.Int64, true)
	} else {
		step := float64(255/(numClasses-1)) / 255
		target = x.MustDiv1(ts.FloatScalar(step), true).MustRound(true).MustTotype(gotch.Int64, true)
	}
	defer target.MustDrop()

	pred := labels.MustTo(gotch.CPU, false)
	defer pred.MustDrop()

	if numClasses == 2 {
		log.Printf("Dice: %.4f - IoU: %.4f\n", metric.DiceCoeff(pred, target), metric.IoU(pred, target))
	}
	meanIoU := metric.JaccardIndex(pred, target, numClasses)
	log.Printf("Mean IoU: %.4f\n", meanIoU)

	return meanIoU, nil
}
