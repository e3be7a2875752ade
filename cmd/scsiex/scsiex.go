// Copyright 2026 The dt-sub004 Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// scsiex is the command line front-end of the SCSI exerciser core: identity
// probing, capacity queries, block range reads and writes, resets and
// unmapping over the pass-through transport of the running platform.
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/RobinTMiller/dt-sub004/device"
	"github.com/RobinTMiller/dt-sub004/mem"
	"github.com/RobinTMiller/dt-sub004/utils"
)

var (
	devicePath  string
	profilePath string
	probeStr    string
	blockLength uint32
	capacity    int64
	direct      bool
	timeoutStr  string
	retries     int
	retryDelay  string
	dpo, fua    bool
	quiet       bool
	verbose     bool
)

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	switch {
	case quiet:
		log.SetLevel(logrus.ErrorLevel)
	case verbose:
		log.SetLevel(logrus.DebugLevel)
	default:
		log.SetLevel(logrus.WarnLevel)
	}
	return log
}

func parseProbe(s string) (device.ProbeMode, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return device.ProbeNone, nil
	case "device-id":
		return device.ProbeDeviceID, nil
	case "serial":
		return device.ProbeSerial, nil
	case "both":
		return device.ProbeBoth, nil
	}
	return device.ProbeNone, errors.Errorf("unknown probe mode %q", s)
}

// sessionOptions merges the profile, if any, with the command line. The
// command line wins for anything explicitly set.
func sessionOptions(probe device.ProbeMode) (device.Options, error) {
	var opts device.Options
	var err error

	if profilePath != "" {
		if opts, err = device.LoadProfile(profilePath); err != nil {
			return opts, err
		}
	}
	if devicePath != "" {
		opts.Path = devicePath
	}
	if opts.Path == "" {
		return opts, errors.New("no device: use --device or a profile with a path")
	}
	if blockLength != 0 {
		opts.BlockLength = blockLength
	}
	if capacity != 0 {
		opts.Capacity = capacity
	}
	if direct {
		opts.Direct = true
	}
	if timeoutStr != "" {
		if opts.Timeout, err = time.ParseDuration(timeoutStr); err != nil {
			return opts, errors.Wrap(err, "timeout")
		}
	}
	if retries > 0 {
		opts.Recovery.Enabled = true
		opts.Recovery.Limit = retries
		if retryDelay != "" {
			if opts.Recovery.Delay, err = time.ParseDuration(retryDelay); err != nil {
				return opts, errors.Wrap(err, "retry delay")
			}
		}
	}
	opts.DPO = dpo
	opts.FUA = fua
	opts.Probe = probe
	opts.ReportErrors = true
	opts.ReportWarnings = !quiet
	opts.Logger = newLogger()
	opts.Registry = mem.Default()
	return opts, nil
}

func openSession(probe device.ProbeMode) (*device.Session, error) {
	opts, err := sessionOptions(probe)
	if err != nil {
		return nil, err
	}
	return device.Open(opts)
}

func inquiryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inquiry",
		Short: "Probe and print device identity",
		RunE: func(_ *cobra.Command, _ []string) error {
			s, err := openSession(device.ProbeBoth)
			if err != nil {
				return err
			}
			defer s.Close()

			fmt.Printf("Vendor:    %s\n", s.Vendor)
			fmt.Printf("Product:   %s\n", s.Product)
			fmt.Printf("Revision:  %s\n", s.Revision)
			if s.Serial != "" {
				fmt.Printf("Serial:    %s\n", s.Serial)
			}
			if s.DeviceID != "" {
				fmt.Printf("Device ID: %s\n", s.DeviceID)
			}
			return nil
		},
	}
}

func readcapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "readcap",
		Short: "Print device capacity and block length",
		RunE: func(_ *cobra.Command, _ []string) error {
			s, err := openSession(device.ProbeNone)
			if err != nil {
				return err
			}
			defer s.Close()

			blocks := s.CapacityBlocks()
			bl := s.BlockLength()
			fmt.Printf("Blocks:       %d\n", blocks)
			fmt.Printf("Block length: %d\n", bl)
			fmt.Printf("Capacity:     %s (%d bytes)\n",
				utils.FormatBytes(uint64(bl)*blocks), uint64(bl)*blocks)
			return nil
		},
	}
}

func readCmd() *cobra.Command {
	var (
		offset int64
		count  int
		out    string
	)
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read a block range and hex dump it or save it to a file",
		RunE: func(_ *cobra.Command, _ []string) error {
			probe, err := parseProbe(probeStr)
			if err != nil {
				return err
			}
			s, err := openSession(probe)
			if err != nil {
				return err
			}
			defer s.Close()

			reg := mem.Default()
			buf, err := reg.Alloc(count, 0)
			if err != nil {
				return err
			}
			defer reg.Free(buf)

			n, err := s.ReadAt(buf, offset)
			if err != nil && n == 0 {
				return err
			}
			if out != "" {
				if werr := os.WriteFile(out, buf[:n], 0644); werr != nil {
					return werr
				}
				fmt.Printf("%d bytes written to %s\n", n, out)
			} else {
				fmt.Print(hex.Dump(buf[:n]))
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "short read: %d of %d bytes (%v)\n", n, count, err)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&offset, "offset", 0, "byte offset, multiple of the block length")
	cmd.Flags().IntVar(&count, "count", 512, "byte count, multiple of the block length")
	cmd.Flags().StringVar(&out, "out", "", "write the data to this file instead of hex dumping")
	return cmd
}

func writeCmd() *cobra.Command {
	var (
		offset  int64
		count   int
		in      string
		pattern uint8
	)
	cmd := &cobra.Command{
		Use:   "write",
		Short: "Write a file or a byte pattern to a block range",
		RunE: func(_ *cobra.Command, _ []string) error {
			probe, err := parseProbe(probeStr)
			if err != nil {
				return err
			}
			s, err := openSession(probe)
			if err != nil {
				return err
			}
			defer s.Close()

			var data []byte
			if in != "" {
				if data, err = os.ReadFile(in); err != nil {
					return err
				}
			} else {
				reg := mem.Default()
				if data, err = reg.Alloc(count, 0); err != nil {
					return err
				}
				defer reg.Free(data)
				for i := range data {
					data[i] = pattern
				}
			}

			n, err := s.WriteAt(data, offset)
			fmt.Printf("%d of %d bytes written\n", n, len(data))
			return err
		},
	}
	cmd.Flags().Int64Var(&offset, "offset", 0, "byte offset, multiple of the block length")
	cmd.Flags().IntVar(&count, "count", 512, "byte count when writing a pattern")
	cmd.Flags().StringVar(&in, "in", "", "file supplying the data to write")
	cmd.Flags().Uint8Var(&pattern, "pattern", 0x5a, "fill byte when no input file is given")
	return cmd
}

func resetCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Issue a bus, device or lun reset, or abort/clear the task set",
		RunE: func(_ *cobra.Command, _ []string) error {
			s, err := openSession(device.ProbeNone)
			if err != nil {
				return err
			}
			defer s.Close()

			switch kind {
			case "bus":
				err = s.ResetBus()
			case "device":
				err = s.ResetDevice()
			case "lun":
				err = s.ResetLUN()
			case "abort":
				err = s.AbortTaskSet()
			case "clear":
				err = s.ClearTaskSet()
			default:
				return errors.Errorf("unknown reset type %q", kind)
			}
			if err == nil {
				fmt.Printf("%s reset done\n", kind)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&kind, "type", "device", "bus, device, lun, abort or clear")
	return cmd
}

func unmapCmd() *cobra.Command {
	var (
		lba    uint64
		blocks uint64
	)
	cmd := &cobra.Command{
		Use:   "unmap",
		Short: "Unmap a block range via the external pass-through utility",
		RunE: func(_ *cobra.Command, _ []string) error {
			s, err := openSession(device.ProbeNone)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Unmap(lba, blocks); err != nil {
				return err
			}
			fmt.Printf("unmapped %d blocks at lba %d\n", blocks, lba)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&lba, "lba", 0, "starting logical block")
	cmd.Flags().Uint64Var(&blocks, "blocks", 1, "number of blocks to unmap")
	return cmd
}

func main() {
	root := &cobra.Command{
		Use:           "scsiex",
		Short:         "SCSI pass-through exerciser",
		Long:          "Exercise SCSI devices through the native pass-through transport, or flat files through the portable file transport.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&devicePath, "device", "d", "", "device or file path, e.g. /dev/sdb or target.img")
	pf.StringVar(&profilePath, "profile", "", "YAML session profile")
	pf.StringVar(&probeStr, "probe", "none", "identity probing: none, device-id, serial, both")
	pf.Uint32Var(&blockLength, "block-length", 0, "block length override for flat files")
	pf.Int64Var(&capacity, "capacity", 0, "user-visible capacity override in bytes")
	pf.BoolVar(&direct, "direct", false, "open flat files with O_DIRECT")
	pf.StringVar(&timeoutStr, "timeout", "", "per-command timeout, e.g. 30s")
	pf.IntVar(&retries, "retries", 0, "retry transient transport failures this many times")
	pf.StringVar(&retryDelay, "retry-delay", "", "delay between retries, e.g. 250ms")
	pf.BoolVar(&dpo, "dpo", false, "set the disable page out bit on reads and writes")
	pf.BoolVar(&fua, "fua", false, "set the force unit access bit on reads and writes")
	pf.BoolVarP(&quiet, "quiet", "q", false, "errors only")
	pf.BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(inquiryCmd(), readcapCmd(), readCmd(), writeCmd(), resetCmd(), unmapCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "scsiex:", err)
		os.Exit(1)
	}
}
