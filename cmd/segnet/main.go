package main

import (
	"flag"
	"fmt"
	"log"
	"sort"

	"github.com/pkg/errors"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/segnet/imgutil"
	"github.com/sugarme/segnet/unet"
)

// flag variables
var (
	ConfigPath  string
	InputPath   string
	MaskPath    string
	OutputPath  string
	OverlayPath string
	SummaryPath string
	PlotPath    string
	WeightsPath string
	SavePath    string
	Cuda        bool
	PrintVars   bool
	Device      gotch.Device
)

// network flags, override values from ConfigPath when set
var (
	Dimensions    int
	InChannels    int64
	OutChannels   int64
	Channels      string
	Strides       string
	KernelSize    int64
	UpKernelSize  int64
	ResidualUnits int
	InstanceNorm  bool
	Dropout       float64
)

func init() {
	flag.StringVar(&ConfigPath, "config", "", "specify YAML network config file")
	flag.StringVar(&InputPath, "input", "", "specify input image (png, jpeg or tiff)")
	flag.StringVar(&MaskPath, "mask", "", "specify optional ground truth mask image to score prediction against")
	flag.StringVar(&OutputPath, "output", "mask.png", "specify output label map image")
	flag.StringVar(&OverlayPath, "overlay", "", "specify optional output image with label map drawn over input")
	flag.StringVar(&SummaryPath, "summary", "", "specify optional CSV file for per-class pixel counts")
	flag.StringVar(&PlotPath, "plot", "", "specify optional PNG file for per-class pixel count chart")
	flag.StringVar(&WeightsPath, "weights", "", "specify model weight '.ot' file to load")
	flag.StringVar(&SavePath, "save", "", "specify file to save model weights to")
	flag.BoolVar(&Cuda, "cuda", false, "specify whether using CUDA or not.")
	flag.BoolVar(&PrintVars, "vars", false, "print model variables")

	flag.IntVar(&Dimensions, "dims", 2, "specify number of spatial dimensions")
	flag.Int64Var(&InChannels, "in", 1, "specify number of input channels (1 or 3 for images)")
	flag.Int64Var(&OutChannels, "out", 2, "specify number of output classes")
	flag.StringVar(&Channels, "channels", "16,32,64,128", "specify comma separated encoder channels")
	flag.StringVar(&Strides, "strides", "2,2,2", "specify comma separated encoder strides")
	flag.Int64Var(&KernelSize, "kernel", 3, "specify convolution kernel size")
	flag.Int64Var(&UpKernelSize, "upkernel", 3, "specify transposed convolution kernel size")
	flag.IntVar(&ResidualUnits, "res", 0, "specify number of residual units, 0 for plain convolutions")
	flag.BoolVar(&InstanceNorm, "instancenorm", true, "specify instance norm (true) or batch norm (false)")
	flag.Float64Var(&Dropout, "dropout", 0, "specify dropout probability")
}

func main() {
	flag.Parse()

	Device = gotch.CPU
	if Cuda {
		Device = gotch.NewCuda().CudaIfAvailable()
	}

	config, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}

	vs := nn.NewVarStore(Device)
	net, err := unet.New(vs.Root(), config)
	if err != nil {
		log.Fatal(err)
	}
	depth, err := unet.Depth(net.Model())
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("UNet: %d levels, channels %v, strides %v, residual units %d\n",
		depth, config.Channels, config.Strides, config.ResidualUnits)

	if WeightsPath != "" {
		if err := vs.Load(absPath(WeightsPath)); err != nil {
			log.Fatal(err)
		}
		log.Printf("Weights loaded from %v\n", WeightsPath)
	}

	if PrintVars {
		printVars(vs)
	}

	if InputPath != "" {
		if err := segment(net, config); err != nil {
			log.Fatal(err)
		}
	}

	if SavePath != "" {
		if err := vs.Save(absPath(SavePath)); err != nil {
			log.Fatal(err)
		}
		log.Printf("Weights saved to %v\n", SavePath)
	}
}

func segment(net *unet.UNet, config unet.Config) error {
	if config.Dimensions != 2 {
		return errors.Errorf("image segmentation needs a 2D network, got %d dimensions", config.Dimensions)
	}
	if config.OutChannels > imgutil.MaxClasses {
		return errors.Errorf("label map image holds at most %d classes, got %d", imgutil.MaxClasses, config.OutChannels)
	}

	img, err := imgutil.ReadImage(absPath(InputPath))
	if err != nil {
		return err
	}
	img = imgutil.FitToStride(img, int(config.Downsampling()))

	x, err := imgutil.ToTensor(img, config.InChannels, Device)
	if err != nil {
		return err
	}
	defer x.MustDrop()

	numClasses := config.OutChannels
	if numClasses == 1 {
		numClasses = 2
	}

	var segErr error
	ts.NoGrad(func() {
		raw, labels, err := net.Predict(x)
		if err != nil {
			segErr = err
			return
		}
		defer raw.MustDrop()
		defer labels.MustDrop()

		segErr = writeOutputs(img, labels, numClasses)
	})

	return segErr
}

// printVars print variables sorted by name
func printVars(vs *nn.VarStore) {
	vars := vs.Variables()
	names := make([]string, 0, len(vars))
	for n := range vars {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		v := vars[n]
		fmt.Printf("%v \t\t %v\n", n, v.MustSize())
	}
}
