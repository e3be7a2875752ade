// Copyright 2026 The dt-sub004 Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Byte-range I/O mapped onto SCSI READ/WRITE exchanges.

package device

import (
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/RobinTMiller/dt-sub004/scsi"
)

// ErrCapacityExhausted reports a write whose whole range lies at or beyond
// the device capacity: a device-full condition, not a silent zero-byte
// success.
var ErrCapacityExhausted = errors.New("device: capacity exhausted")

// ErrMisaligned reports a byte count or offset that is not a multiple of
// the block length. It is fatal to the call and never retried.
var ErrMisaligned = errors.New("device: request not block aligned")

// buildRequest converts a byte count and offset into an LBA, a block
// count, and a transfer size, clipping the block count to the device
// capacity. A range starting at or past capacity clips to zero; a range
// extending past the end is shortened to fit.
func (s *Session) buildRequest(count int, offset int64) (lba uint64, blocks uint32, xfer int, err error) {
	if count < 0 || offset < 0 {
		return 0, 0, 0, errors.Wrapf(ErrMisaligned, "count %d, offset %d", count, offset)
	}
	bl := int64(s.blockLen)
	if bl == 0 || int64(count)%bl != 0 || offset%bl != 0 {
		return 0, 0, 0, errors.Wrapf(ErrMisaligned,
			"count %d, offset %d, block length %d", count, offset, s.blockLen)
	}

	lba = uint64(offset / bl)
	want := uint64(count) / uint64(bl)
	if s.capBlocks > 0 {
		if lba >= s.capBlocks {
			want = 0
		} else if lba+want > s.capBlocks {
			want = s.capBlocks - lba
		}
	}
	blocks = uint32(want)
	xfer = int(want) * int(bl)
	return lba, blocks, xfer, nil
}

// readCDB picks the narrowest CDB that can address the range.
func (s *Session) readCDB(lba uint64, blocks uint32) []byte {
	if lba <= 0xffffffff && blocks <= 0xffff {
		return scsi.Read10CDB(uint32(lba), uint16(blocks), s.dpo, s.fua)
	}
	return scsi.Read16CDB(lba, blocks, s.dpo, s.fua)
}

func (s *Session) writeCDB(lba uint64, blocks uint32) []byte {
	if lba <= 0xffffffff && blocks <= 0xffff {
		return scsi.Write10CDB(uint32(lba), uint16(blocks), s.dpo, s.fua)
	}
	return scsi.Write16CDB(lba, blocks, s.dpo, s.fua)
}

// ReadAt reads len(p) bytes from the device at byte offset off, with
// positional-read semantics: a range clipped short by the device capacity
// returns the bytes that fit plus io.EOF.
func (s *Session) ReadAt(p []byte, off int64) (int, error) {
	lba, blocks, xfer, err := s.buildRequest(len(p), off)
	if err != nil {
		return 0, err
	}
	if xfer == 0 {
		return 0, io.EOF
	}

	req := &scsi.Request{
		Dir:     scsi.DirFromDevice,
		CDB:     s.readCDB(lba, blocks),
		Data:    p[:xfer],
		Sense:   s.sense,
		Timeout: s.timeout,
		Tag:     scsi.TagSimple,
		DPO:     s.dpo,
		FUA:     s.fua,
	}
	res, err := s.execute(req)
	if err != nil {
		return 0, err
	}
	if res.Status != scsi.STATUS_GOOD {
		return 0, s.statusError(req, res)
	}

	n := res.Transferred(xfer)
	if xfer < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt writes len(p) bytes to the device at byte offset off. A range
// clipped short by the device capacity transfers what fits and reports
// ErrCapacityExhausted for the remainder; a range entirely past capacity
// transfers nothing and reports the same.
func (s *Session) WriteAt(p []byte, off int64) (int, error) {
	lba, blocks, xfer, err := s.buildRequest(len(p), off)
	if err != nil {
		return 0, err
	}
	if xfer == 0 {
		return 0, ErrCapacityExhausted
	}

	req := &scsi.Request{
		Dir:     scsi.DirToDevice,
		CDB:     s.writeCDB(lba, blocks),
		Data:    p[:xfer],
		Sense:   s.sense,
		Timeout: s.timeout,
		Tag:     scsi.TagSimple,
		DPO:     s.dpo,
		FUA:     s.fua,
	}
	res, err := s.execute(req)
	if err != nil {
		return 0, err
	}
	if res.Status != scsi.STATUS_GOOD {
		return 0, s.statusError(req, res)
	}

	n := res.Transferred(xfer)
	if xfer < len(p) {
		return n, ErrCapacityExhausted
	}
	return n, nil
}

// execute dispatches one exchange, resubmitting transport failures the
// backend classifies as transient, bounded by the recovery policy. Device
// level errors are never retried here; that call belongs to the caller
// with the sense data in hand.
func (s *Session) execute(req *scsi.Request) (*scsi.Result, error) {
	attempts := 1
	if s.recovery.Enabled && s.recovery.Limit > 0 {
		attempts += s.recovery.Limit
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && s.recovery.Delay > 0 {
			time.Sleep(s.recovery.Delay)
		}
		zero(s.sense)

		res, err := s.t.Execute(req)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if !s.recovery.Enabled || !s.t.Retriable(err) {
			break
		}
		s.log.WithField("device", s.path).WithError(err).
			Warnf("transient transport failure, retry %d of %d", attempt+1, s.recovery.Limit)
	}

	if s.reportErrors {
		s.log.WithField("device", s.path).WithError(lastErr).Error("SCSI transport failure")
	}
	return nil, lastErr
}

// statusError renders and wraps a device-level error report.
func (s *Session) statusError(req *scsi.Request, res *scsi.Result) error {
	serr := &scsi.StatusError{Status: res.Status}
	if res.SenseValid {
		if sense, ok := scsi.ParseSense(s.sense); ok {
			serr.Sense = sense
		}
	}
	if s.reportErrors {
		scsi.ReportError(s.log, s.t, s.path, req, res)
	}
	return serr
}
