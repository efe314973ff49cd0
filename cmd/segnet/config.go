package main

import (
	"flag"
	"io/ioutil"
	"log"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/sugarme/segnet/unet"
)

// loadConfig builds the network config from flag defaults, then the YAML file
// given by -config, then flags set explicitly on the command line.
func loadConfig() (unet.Config, error) {
	config := unet.DefaultConfig(InChannels, OutChannels)
	if err := applyFlags(&config, func(string) bool { return true }); err != nil {
		return config, err
	}

	if ConfigPath == "" {
		return config, nil
	}

	data, err := ioutil.ReadFile(absPath(ConfigPath))
	if err != nil {
		return config, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, errors.Wrapf(err, "parse config %q", ConfigPath)
	}

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	err = applyFlags(&config, func(name string) bool { return set[name] })

	return config, err
}

// applyFlags copies network flag values into config for flags accepted by use.
func applyFlags(config *unet.Config, use func(name string) bool) error {
	if use("dims") {
		config.Dimensions = Dimensions
	}
	if use("in") {
		config.InChannels = InChannels
	}
	if use("out") {
		config.OutChannels = OutChannels
	}
	if use("channels") {
		vals, err := parseInts(Channels)
		if err != nil {
			return errors.Wrap(err, "parse -channels")
		}
		config.Channels = vals
	}
	if use("strides") {
		vals, err := parseInts(Strides)
		if err != nil {
			return errors.Wrap(err, "parse -strides")
		}
		config.Strides = vals
	}
	if use("kernel") {
		config.KernelSize = KernelSize
	}
	if use("upkernel") {
		config.UpKernelSize = UpKernelSize
	}
	if use("res") {
		config.ResidualUnits = ResidualUnits
	}
	if use("instancenorm") {
		config.InstanceNorm = InstanceNorm
	}
	if use("dropout") {
		config.Dropout = Dropout
	}

	return nil
}

// parseInts parses comma separated integers, e.g. "16,32,64".
func parseInts(s string) ([]int64, error) {
	var vals []int64
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return vals, nil
}

func absPath(p string) string {
	absPath, err := filepath.Abs(p)
	if err != nil {
		log.Fatal(err)
	}

	return absPath
}
