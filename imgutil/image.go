// Package imgutil converts between image files and tensors fed to or
// produced by a segmentation network.
package imgutil

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/tiff"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"
	"golang.org/x/image/draw"
)

// ReadImage reads image from file. Supports png, jpeg and tiff.
func ReadImage(filename string) (image.Image, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "open image %q", filename)
	}
	defer f.Close()

	var img image.Image
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".png":
		img, err = png.Decode(f)
	case ".jpg", ".jpeg":
		img, err = jpeg.Decode(f)
	case ".tiff", ".tif":
		img, err = tiff.Decode(f)
	default:
		return nil, errors.Errorf("unsupported image format: %v", ext)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decode image %q", filename)
	}

	return img, nil
}

// SaveImage saves img, the format is chosen from the file extension.
func SaveImage(img image.Image, filename string) error {
	return errors.Wrapf(imaging.Save(img, filename), "save image %q", filename)
}

// FitToStride resizes img so that width and height are multiples of m,
// rounding down but never below m. It returns img as such if it already fits.
func FitToStride(img image.Image, m int) image.Image {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	fw, fh := fit(w, m), fit(h, m)
	if fw == w && fh == h {
		return img
	}

	return resize.Resize(uint(fw), uint(fh), img, resize.Lanczos3)
}

// ResizeLabels resizes a label or mask image to w x h without mixing label
// values.
func ResizeLabels(img image.Image, w, h int) image.Image {
	return resize.Resize(uint(w), uint(h), img, resize.NearestNeighbor)
}

func fit(v, m int) int {
	if m <= 1 {
		return v
	}
	if v < m {
		return m
	}
	return v - v%m
}

// ToTensor converts img to a float tensor of shape [1 C H W] with values in
// [0, 1]. channels must be 1 (grayscale) or 3 (RGB).
func ToTensor(img image.Image, channels int64, device gotch.Device) (*ts.Tensor, error) {
	var nrgba *image.NRGBA
	switch channels {
	case 1:
		nrgba = imaging.Grayscale(img)
	case 3:
		nrgba = imaging.Clone(img)
	default:
		return nil, errors.Errorf("expected 1 or 3 image channels, got %d", channels)
	}

	w, h := nrgba.Bounds().Dx(), nrgba.Bounds().Dy()
	plane := w * h
	vals := make([]float32, int(channels)*plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := y*nrgba.Stride + x*4
			for c := 0; c < int(channels); c++ {
				vals[c*plane+y*w+x] = float32(nrgba.Pix[off+c]) / 255
			}
		}
	}

	x := ts.MustOfSlice(vals).MustView([]int64{1, channels, int64(h), int64(w)}, true)
	return x.MustTo(device, true), nil
}

// MaxClasses is the largest number of classes a gray label map image can hold.
const MaxClasses = 256

// LabelsToImage converts a label map of shape [1 1 H W] (or [1 H W]) with
// values in 0..numClasses-1 to a gray image spreading labels over 0..255.
func LabelsToImage(labels *ts.Tensor, numClasses int64) (*image.Gray, error) {
	size := labels.MustSize()
	switch {
	case len(size) == 4 && size[0] == 1 && size[1] == 1:
	case len(size) == 3 && size[0] == 1:
	default:
		return nil, errors.Errorf("expected label map of shape [1 1 H W] or [1 H W], got %v", size)
	}

	if numClasses > MaxClasses {
		return nil, errors.Errorf("expected at most %d classes, got %d", MaxClasses, numClasses)
	}

	h, w := int(size[len(size)-2]), int(size[len(size)-1])
	scale := int64(255)
	if numClasses > 2 {
		scale = 255 / (numClasses - 1)
	}

	vals := labels.Int64Values()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(vals[y*w+x] * scale)})
		}
	}

	return img, nil
}

// Overlay draws mask over img at 25% opacity. mask is stretched to the size
// of img.
func Overlay(img, mask image.Image) *image.RGBA {
	rec := img.Bounds()
	dst := image.NewRGBA(rec)
	draw.Draw(dst, rec, img, rec.Min, draw.Src)

	scaled := image.NewRGBA(rec)
	draw.NearestNeighbor.Scale(scaled, rec, mask, mask.Bounds(), draw.Src, nil)

	opacity := image.NewUniform(color.Alpha{64})
	draw.DrawMask(dst, rec, scaled, rec.Min, opacity, image.Point{}, draw.Over)

	return dst
}
