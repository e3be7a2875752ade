// Copyright 2026 The dt-sub004 Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package device owns the session layer of the exerciser: one open device
// handle plus cached identity and geometry, byte-range I/O mapped onto
// SCSI READ/WRITE exchanges, and recovery policy around the transport.
package device

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/RobinTMiller/dt-sub004/mem"
	"github.com/RobinTMiller/dt-sub004/scsi"
)

// SenseLength is the fixed size of the page-aligned sense buffer every
// session allocates.
const SenseLength = 64

// ProbeMode selects which identity pages Probe fetches beyond the standard
// INQUIRY data.
type ProbeMode int

const (
	ProbeNone ProbeMode = iota
	ProbeDeviceID
	ProbeSerial
	ProbeBoth
)

// RecoveryPolicy bounds the session's retries of transport failures the
// backend classifies as transient.
type RecoveryPolicy struct {
	Enabled bool
	Delay   time.Duration
	Limit   int
}

// Options configures a session open.
type Options struct {
	Path     string
	Probe    ProbeMode
	Recovery RecoveryPolicy

	// Error reporting verbosity.
	ReportErrors   bool
	ReportWarnings bool

	// SecondaryIO opens a second lightweight session against the same
	// path for parallel I/O-only traffic, with its own handle, probing
	// disabled, errors always reported and warnings suppressed.
	SecondaryIO bool

	// Capacity is the externally supplied user-visible capacity in bytes.
	// Zero means derive it from the capacity query, disks only.
	Capacity int64

	// BlockLength overrides the block length until the capacity query
	// establishes it. Zero defaults to 512.
	BlockLength uint32

	// Direct requests O_DIRECT access for flat-file targets.
	Direct bool

	Timeout  time.Duration
	DPO, FUA bool

	// UnmapTool is the external pass-through utility used for block
	// unmapping. Empty defaults to "spt".
	UnmapTool string

	// Disk marks the target as a genuine disk device. Only consulted when
	// TransportFactory is set; otherwise it is derived from the path.
	Disk bool

	// TransportFactory overrides transport selection. Each call must
	// return a fresh transport; the secondary session gets its own.
	TransportFactory func(log logrus.FieldLogger) scsi.Transport

	Logger   logrus.FieldLogger
	Registry *mem.Registry
}

// Session is one open device. Sessions are not safe for concurrent use;
// open a secondary I/O session instead of sharing one handle across
// goroutines.
type Session struct {
	t      scsi.Transport
	path   string
	log    logrus.FieldLogger
	reg    *mem.Registry
	sense  []byte
	opened bool
	isDisk bool

	blockLen  uint32
	capBlocks uint64 // device capacity in blocks, from the capacity query
	capBytes  int64  // user-visible byte capacity

	Vendor      string
	Product     string
	Revision    string
	DeviceID    string
	Serial      string
	MgmtAddress string

	recovery       RecoveryPolicy
	reportErrors   bool
	reportWarnings bool
	timeout        time.Duration
	dpo, fua       bool
	unmapTool      string

	secondary *Session
}

// Open opens a device session: selects and opens the transport, allocates
// the aligned sense buffer, probes identity and geometry, and optionally
// opens the secondary I/O session. On any partial failure everything
// already acquired is released before returning.
func Open(opts Options) (*Session, error) {
	s, err := open(opts, false)
	if err != nil {
		return nil, err
	}

	if opts.Probe != ProbeNone || opts.TransportFactory == nil {
		if err := s.Probe(opts.Probe); err != nil {
			s.Close()
			return nil, err
		}
	}

	if opts.SecondaryIO {
		sub := opts
		sub.SecondaryIO = false
		sub.ReportErrors = true
		sub.ReportWarnings = false
		sub.Probe = ProbeNone
		sec, err := open(sub, true)
		if err != nil {
			s.Close()
			return nil, errors.Wrap(err, "secondary I/O session")
		}
		// The secondary only moves data; it inherits the geometry the
		// primary established rather than re-probing.
		sec.blockLen = s.blockLen
		sec.capBlocks = s.capBlocks
		sec.capBytes = s.capBytes
		s.secondary = sec
	}

	return s, nil
}

func open(opts Options, secondary bool) (*Session, error) {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	reg := opts.Registry
	if reg == nil {
		reg = mem.Default()
	}

	blockLen := opts.BlockLength
	if blockLen == 0 {
		blockLen = 512
	}

	s := &Session{
		path:           opts.Path,
		log:            log,
		reg:            reg,
		blockLen:       blockLen,
		capBytes:       opts.Capacity,
		recovery:       opts.Recovery,
		reportErrors:   opts.ReportErrors || secondary,
		reportWarnings: opts.ReportWarnings && !secondary,
		timeout:        opts.Timeout,
		dpo:            opts.DPO,
		fua:            opts.FUA,
		unmapTool:      opts.UnmapTool,
	}
	if s.unmapTool == "" {
		s.unmapTool = "spt"
	}

	if opts.TransportFactory != nil {
		s.t = opts.TransportFactory(log)
		s.isDisk = opts.Disk
	} else {
		fi, err := os.Stat(opts.Path)
		if err != nil {
			return nil, errors.Wrapf(err, "stat %s", opts.Path)
		}
		if fi.Mode()&os.ModeDevice != 0 {
			s.t = scsi.New(log)
			s.isDisk = true
		} else {
			s.t = scsi.NewFileTransport(log, blockLen, opts.Direct)
		}
	}

	if err := s.t.Open(opts.Path); err != nil {
		return nil, err
	}
	s.opened = true

	sense, err := reg.Alloc(SenseLength, 0)
	if err != nil {
		s.t.Close()
		s.opened = false
		return nil, errors.Wrap(err, "sense buffer")
	}
	s.sense = sense

	return s, nil
}

// BlockLength reports the session's block length. Once established by the
// capacity query it does not change for the session's life.
func (s *Session) BlockLength() uint32 { return s.blockLen }

// CapacityBlocks reports the device capacity in blocks.
func (s *Session) CapacityBlocks() uint64 { return s.capBlocks }

// Capacity reports the user-visible capacity in bytes.
func (s *Session) Capacity() int64 { return s.capBytes }

// Secondary returns the parallel I/O-only session, or nil.
func (s *Session) Secondary() *Session { return s.secondary }

// Close tears the session down: the secondary session first, then the
// device handle, then the sense buffer and cached identity. A second Close
// is a safe no-op.
func (s *Session) Close() {
	if s == nil {
		return
	}

	if s.secondary != nil {
		s.secondary.Close()
		s.secondary = nil
	}

	if s.opened {
		if err := s.t.Close(); err != nil {
			s.log.WithField("device", s.path).WithError(err).Warn("close failed")
		}
		s.opened = false
	}

	if s.sense != nil {
		if err := s.reg.Free(s.sense); err != nil {
			// A failed release here means the registry invariant was
			// violated somewhere; do not hide it.
			s.log.WithField("device", s.path).WithError(err).Error("sense buffer release failed")
		}
		s.sense = nil
	}

	s.Vendor, s.Product, s.Revision = "", "", ""
	s.DeviceID, s.Serial, s.MgmtAddress = "", "", ""
}

// warn routes a best-effort failure per the reporting flags.
func (s *Session) warn(op string, err error) error {
	if errors.Is(err, scsi.ErrUnsupported) {
		if s.reportWarnings {
			s.log.WithField("device", s.path).Warnf("%s not supported by this transport", op)
		}
	} else if err != nil && s.reportErrors {
		s.log.WithField("device", s.path).WithError(err).Errorf("%s failed", op)
	}
	return err
}

// Best-effort topology operations, forwarded to the transport. An
// unsupported operation surfaces as scsi.ErrUnsupported, which callers
// treat as a warning.
func (s *Session) ResetBus() error     { return s.warn("bus reset", s.t.ResetBus()) }
func (s *Session) ResetDevice() error  { return s.warn("device reset", s.t.ResetDevice()) }
func (s *Session) ResetLUN() error     { return s.warn("lun reset", s.t.ResetLUN()) }
func (s *Session) AbortTaskSet() error { return s.warn("abort task set", s.t.AbortTaskSet()) }
func (s *Session) ClearTaskSet() error { return s.warn("clear task set", s.t.ClearTaskSet()) }
