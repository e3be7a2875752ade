// Copyright 2026 The dt-sub004 Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// YAML session profiles.

package device

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Profile is the on-disk form of session options. Durations use Go
// duration syntax ("250ms", "2s").
type Profile struct {
	Path           string `yaml:"path"`
	Probe          string `yaml:"probe"` // none, device-id, serial, both
	BlockLength    uint32 `yaml:"block_length"`
	Capacity       int64  `yaml:"capacity"`
	Direct         bool   `yaml:"direct"`
	SecondaryIO    bool   `yaml:"secondary_io"`
	ReportErrors   bool   `yaml:"report_errors"`
	ReportWarnings bool   `yaml:"report_warnings"`
	Timeout        string `yaml:"timeout"`
	UnmapTool      string `yaml:"unmap_tool"`

	Recovery struct {
		Enabled bool   `yaml:"enabled"`
		Delay   string `yaml:"delay"`
		Limit   int    `yaml:"limit"`
	} `yaml:"recovery"`
}

var probeModes = map[string]ProbeMode{
	"":          ProbeNone,
	"none":      ProbeNone,
	"device-id": ProbeDeviceID,
	"serial":    ProbeSerial,
	"both":      ProbeBoth,
}

// LoadProfile reads a YAML profile and converts it to session options.
func LoadProfile(path string) (Options, error) {
	var opts Options

	f, err := os.Open(path)
	if err != nil {
		return opts, errors.Wrapf(err, "open profile %s", path)
	}
	defer f.Close()

	var p Profile
	if err := yaml.NewDecoder(f).Decode(&p); err != nil {
		return opts, errors.Wrapf(err, "decode profile %s", path)
	}
	return p.Options()
}

// Options converts a parsed profile into session options.
func (p *Profile) Options() (Options, error) {
	opts := Options{
		Path:           p.Path,
		BlockLength:    p.BlockLength,
		Capacity:       p.Capacity,
		Direct:         p.Direct,
		SecondaryIO:    p.SecondaryIO,
		ReportErrors:   p.ReportErrors,
		ReportWarnings: p.ReportWarnings,
		UnmapTool:      p.UnmapTool,
	}

	mode, ok := probeModes[p.Probe]
	if !ok {
		return opts, errors.Errorf("profile: unknown probe mode %q", p.Probe)
	}
	opts.Probe = mode

	var err error
	if p.Timeout != "" {
		if opts.Timeout, err = time.ParseDuration(p.Timeout); err != nil {
			return opts, errors.Wrap(err, "profile timeout")
		}
	}
	opts.Recovery.Enabled = p.Recovery.Enabled
	opts.Recovery.Limit = p.Recovery.Limit
	if p.Recovery.Delay != "" {
		if opts.Recovery.Delay, err = time.ParseDuration(p.Recovery.Delay); err != nil {
			return opts, errors.Wrap(err, "profile recovery delay")
		}
	}
	return opts, nil
}
