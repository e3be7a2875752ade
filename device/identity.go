// Copyright 2026 The dt-sub004 Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Identity and geometry probing.

package device

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/RobinTMiller/dt-sub004/scsi"
)

// Probe issues INQUIRY and capacity queries and caches the results on the
// session. The user-visible byte capacity is derived from the query only
// for genuine disk devices and only when not externally supplied; a flat
// file tested as a device keeps whatever capacity the caller configured.
func (s *Session) Probe(mode ProbeMode) error {
	data, err := s.reg.Alloc(255, 0)
	if err != nil {
		return errors.Wrap(err, "identity buffer")
	}
	defer s.reg.Free(data)

	inq := data[:scsi.INQ_REPLY_LEN]
	if err := s.simpleIn(scsi.InquiryCDB(false, 0, len(inq)), inq); err != nil {
		return errors.Wrap(err, "inquiry")
	}
	s.Vendor = trimPad(inq[8:16])
	s.Product = trimPad(inq[16:32])
	s.Revision = trimPad(inq[32:36])

	if mode == ProbeDeviceID || mode == ProbeBoth {
		if err := s.probeDeviceID(data); err != nil && s.reportWarnings {
			s.log.WithField("device", s.path).WithError(err).Warn("device id page unavailable")
		}
	}
	if mode == ProbeSerial || mode == ProbeBoth {
		if err := s.probeSerial(data); err != nil && s.reportWarnings {
			s.log.WithField("device", s.path).WithError(err).Warn("serial number page unavailable")
		}
	}

	if err := s.probeCapacity(data); err != nil {
		return errors.Wrap(err, "read capacity")
	}

	if s.isDisk && s.capBytes == 0 {
		s.capBytes = int64(s.blockLen) * int64(s.capBlocks)
	}
	return nil
}

// simpleIn runs one data-in exchange and converts any non-GOOD status into
// a StatusError.
func (s *Session) simpleIn(cdb, data []byte) error {
	req := &scsi.Request{
		Dir:     scsi.DirFromDevice,
		CDB:     cdb,
		Data:    data,
		Sense:   s.sense,
		Timeout: s.timeout,
	}
	res, err := s.execute(req)
	if err != nil {
		return err
	}
	if res.Status != scsi.STATUS_GOOD {
		return s.statusError(req, res)
	}
	return nil
}

func (s *Session) probeSerial(data []byte) error {
	zero(data)
	if err := s.simpleIn(scsi.InquiryCDB(true, scsi.VPD_UNIT_SERIAL, len(data)), data); err != nil {
		return err
	}
	n := int(data[3])
	if 4+n > len(data) {
		n = len(data) - 4
	}
	s.Serial = trimPad(data[4 : 4+n])
	return nil
}

// probeDeviceID fetches the device identification VPD page and renders the
// first NAA designator, falling back to the first designator of any type.
func (s *Session) probeDeviceID(data []byte) error {
	zero(data)
	if err := s.simpleIn(scsi.InquiryCDB(true, scsi.VPD_DEVICE_ID, len(data)), data); err != nil {
		return err
	}

	pageLen := int(binary.BigEndian.Uint16(data[2:4]))
	if 4+pageLen > len(data) {
		pageLen = len(data) - 4
	}

	var fallback string
	for off := 4; off+4 <= 4+pageLen; {
		dtype := data[off+1] & 0x0f
		dlen := int(data[off+3])
		if dlen == 0 || off+4+dlen > len(data) {
			break
		}
		id := data[off+4 : off+4+dlen]
		switch dtype {
		case 0x03: // NAA
			s.DeviceID = "naa." + hexLower(id)
			return nil
		case 0x02: // EUI-64
			if fallback == "" {
				fallback = "eui." + hexLower(id)
			}
		default:
			if fallback == "" {
				fallback = hexLower(id)
			}
		}
		off += 4 + dlen
	}
	if fallback != "" {
		s.DeviceID = fallback
	}
	return nil
}

func (s *Session) probeCapacity(data []byte) error {
	zero(data)
	cap10 := data[:8]
	if err := s.simpleIn(scsi.ReadCapacity10CDB(), cap10); err != nil {
		return err
	}
	lastLBA := uint64(binary.BigEndian.Uint32(cap10[0:4]))
	blockLen := binary.BigEndian.Uint32(cap10[4:8])

	if lastLBA == 0xffffffff {
		// Capacity overflowed the 10-byte reply.
		zero(data)
		cap16 := data[:32]
		if err := s.simpleIn(scsi.ReadCapacity16CDB(len(cap16)), cap16); err != nil {
			return err
		}
		lastLBA = binary.BigEndian.Uint64(cap16[0:8])
		blockLen = binary.BigEndian.Uint32(cap16[8:12])
	}

	if blockLen != 0 {
		s.blockLen = blockLen
	}
	s.capBlocks = lastLBA + 1
	return nil
}

// trimPad strips the trailing space padding SCSI identity fields carry.
func trimPad(b []byte) string {
	return strings.TrimRight(string(b), " \x00")
}

func hexLower(b []byte) string {
	return fmt.Sprintf("%x", b)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
