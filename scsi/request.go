// Copyright 2026 The dt-sub004 Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Normalized SCSI request and result types shared by all transports.

package scsi

import "time"

// Transfer direction of a SCSI exchange, relative to the host.
type Direction int

const (
	DirNone       Direction = iota // no data phase
	DirFromDevice                  // device to host (read)
	DirToDevice                    // host to device (write)
)

// Queue tag message codes, passed to transports that honor tagged queueing.
const (
	TagSimple      = 0x20
	TagHeadOfQueue = 0x21
	TagOrdered     = 0x22
)

// Default timeout forwarded to the OS pass-through call.
const DefaultTimeout = 20 * time.Second

// Request describes one SCSI exchange. It is built per call, consumed by
// exactly one Transport.Execute invocation, and discarded afterwards.
type Request struct {
	Dir     Direction
	CDB     []byte
	Data    []byte
	Sense   []byte
	Timeout time.Duration
	Tag     byte
	DPO     bool
	FUA     bool
}

// Result carries the outcome of one exchange back from the transport.
// A non-GOOD Status is a device-level report, not a transport failure;
// transport failures are returned as errors from Execute instead.
type Result struct {
	Status       uint8
	SenseValid   bool
	SenseResid   int
	DataResid    int
	HostStatus   uint16
	DriverStatus uint16
	OSErr        error
}

// Transferred reports the number of data bytes actually moved. Some
// transports report a residual larger than the data length when the CDB
// transfer length exceeds the buffer; the count is clamped to the buffer
// length in that case.
func (r *Result) Transferred(dataLen int) int {
	if r.DataResid > dataLen {
		return dataLen
	}
	return dataLen - r.DataResid
}

// SCSI status codes (SAM-3).
const (
	STATUS_GOOD                 = 0x00
	STATUS_CHECK_CONDITION      = 0x02
	STATUS_CONDITION_MET        = 0x04
	STATUS_BUSY                 = 0x08
	STATUS_RESERVATION_CONFLICT = 0x18
	STATUS_TASK_SET_FULL        = 0x28
	STATUS_ACA_ACTIVE           = 0x30
	STATUS_TASK_ABORTED         = 0x40
)

var statusNames = map[uint8]string{
	STATUS_GOOD:                 "GOOD",
	STATUS_CHECK_CONDITION:      "CHECK CONDITION",
	STATUS_CONDITION_MET:        "CONDITION MET",
	STATUS_BUSY:                 "BUSY",
	STATUS_RESERVATION_CONFLICT: "RESERVATION CONFLICT",
	STATUS_TASK_SET_FULL:        "TASK SET FULL",
	STATUS_ACA_ACTIVE:           "ACA ACTIVE",
	STATUS_TASK_ABORTED:         "TASK ABORTED",
}

// StatusName returns the SAM name of a SCSI status code.
func StatusName(status uint8) string {
	if name, ok := statusNames[status]; ok {
		return name
	}
	return "UNKNOWN"
}
