// Copyright 2026 The dt-sub004 Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// The transport contract every OS pass-through backend implements.

package scsi

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrUnsupported marks a maintenance or reset operation the current
// transport has no primitive for. Callers treat it as a warning, never as a
// fatal failure.
var ErrUnsupported = errors.New("scsi: operation not supported by this transport")

// ErrNotOpen is returned when an exchange is attempted on a closed handle.
var ErrNotOpen = errors.New("scsi: device not open")

// Transport is the contract between the session layer and an OS-specific
// pass-through mechanism. Execute performs one exchange synchronously,
// blocking the calling thread for the duration of the device call.
//
// Execute distinguishes two failure classes: a transport failure (the OS
// control call itself was rejected) is returned as a *TransportError, while
// a device-level report (CHECK CONDITION or any other non-GOOD status)
// yields a nil error and a populated Result. Sense data in the Result is
// valid only when the device reported CHECK CONDITION and the sense fetch
// itself succeeded.
type Transport interface {
	Open(path string) error
	Close() error
	Execute(req *Request) (*Result, error)

	// Retriable reports whether the OS-level error from a failed Execute
	// is a known transient condition worth resubmitting.
	Retriable(err error) bool

	// HostStatusMessage and DriverStatusMessage render the OS transport
	// status classes for diagnostics, or "" when the OS has no such
	// concept.
	HostStatusMessage(hostStatus uint16) string
	DriverStatusMessage(driverStatus uint16) string

	// Best-effort topology operations. Unsupported ones return
	// ErrUnsupported.
	ResetBus() error
	ResetDevice() error
	ResetLUN() error
	AbortTaskSet() error
	ClearTaskSet() error
}

// TransportError reports that the OS pass-through call itself failed,
// before or regardless of any device response. Errno carries the native
// error for Retriable classification.
type TransportError struct {
	Op    string
	Path  string
	Errno error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("scsi: %s %s: transport failure: %v", e.Op, e.Path, e.Errno)
}

func (e *TransportError) Unwrap() error { return e.Errno }

// StatusError reports a device-level SCSI error: the exchange completed but
// the device answered with a non-GOOD status. Sense is nil unless valid
// sense data accompanied a check condition.
type StatusError struct {
	Status uint8
	Sense  *Sense
}

func (e *StatusError) Error() string {
	if e.Sense != nil {
		msg := fmt.Sprintf("scsi: %s, sense key %s, asc/ascq %#02x/%#02x",
			StatusName(e.Status), SenseKeyName(e.Sense.Key), e.Sense.ASC, e.Sense.ASCQ)
		if desc, ok := SenseCodeDescription(e.Sense.ASC, e.Sense.ASCQ); ok {
			msg += " (" + desc + ")"
		}
		return msg
	}
	return fmt.Sprintf("scsi: device status %s (%#02x)", StatusName(e.Status), e.Status)
}

// noReset provides the reset and task management defaults for transports
// whose OS exposes no such primitives.
type noReset struct{}

func (noReset) ResetBus() error     { return ErrUnsupported }
func (noReset) ResetDevice() error  { return ErrUnsupported }
func (noReset) ResetLUN() error     { return ErrUnsupported }
func (noReset) AbortTaskSet() error { return ErrUnsupported }
func (noReset) ClearTaskSet() error { return ErrUnsupported }

// noHostStatus provides empty diagnostics for transports whose OS has no
// host or driver status concept.
type noHostStatus struct{}

func (noHostStatus) HostStatusMessage(uint16) string   { return "" }
func (noHostStatus) DriverStatusMessage(uint16) string { return "" }

// New returns the pass-through transport for the build platform. The
// logger is the caller-supplied diagnostic sink; it must not be nil.
func New(log logrus.FieldLogger) Transport {
	return newTransport(log)
}
