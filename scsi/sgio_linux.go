// Copyright 2026 The dt-sub004 Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Linux SG_IO pass-through backend.

package scsi

import (
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const (
	SG_DXFER_NONE        = -1
	SG_DXFER_TO_DEV      = -2
	SG_DXFER_FROM_DEV    = -3
	SG_DXFER_TO_FROM_DEV = -4

	SG_IO         = 0x2285
	SG_SCSI_RESET = 0x2284

	SG_SCSI_RESET_DEVICE = 1
	SG_SCSI_RESET_BUS    = 2
	SG_SCSI_RESET_HOST   = 3

	SG_INFO_OK_MASK = 0x1
	SG_INFO_OK      = 0x0

	// Host (DID_*) status codes reported by the mid-layer.
	DID_OK          = 0x00
	DID_NO_CONNECT  = 0x01
	DID_BUS_BUSY    = 0x02
	DID_TIME_OUT    = 0x03
	DID_BAD_TARGET  = 0x04
	DID_ABORT       = 0x05
	DID_PARITY      = 0x06
	DID_ERROR       = 0x07
	DID_RESET       = 0x08
	DID_BAD_INTR    = 0x09
	DID_PASSTHROUGH = 0x0a
	DID_SOFT_ERROR  = 0x0b

	// Driver status codes, low nibble of driver_status.
	DRIVER_OK      = 0x00
	DRIVER_BUSY    = 0x01
	DRIVER_SOFT    = 0x02
	DRIVER_MEDIA   = 0x03
	DRIVER_ERROR   = 0x04
	DRIVER_INVALID = 0x05
	DRIVER_TIMEOUT = 0x06
	DRIVER_HARD    = 0x07
	DRIVER_SENSE   = 0x08

	DRIVER_STATUS_MASK = 0x0f
)

// sgIoHdr mirrors the kernel's sg_io_hdr_t.
type sgIoHdr struct {
	interface_id    int32
	dxfer_direction int32
	cmd_len         uint8
	mx_sb_len       uint8
	iovec_count     uint16
	dxfer_len       uint32
	dxferp          uintptr
	cmdp            uintptr
	sbp             uintptr
	timeout         uint32
	flags           uint32
	pack_id         int32
	usr_ptr         uintptr
	status          uint8
	masked_status   uint8
	msg_status      uint8
	sb_len_wr       uint8
	host_status     uint16
	driver_status   uint16
	resid           int32
	duration        uint32
	info            uint32
}

var hostStatusMessages = map[uint16]string{
	DID_OK:          "no error",
	DID_NO_CONNECT:  "could not connect before timeout",
	DID_BUS_BUSY:    "bus busy through timeout",
	DID_TIME_OUT:    "timed out for some other reason",
	DID_BAD_TARGET:  "bad target",
	DID_ABORT:       "command aborted",
	DID_PARITY:      "parity error",
	DID_ERROR:       "internal host adapter error",
	DID_RESET:       "reset by somebody",
	DID_BAD_INTR:    "received an unexpected interrupt",
	DID_PASSTHROUGH: "force command past mid-layer",
	DID_SOFT_ERROR:  "retry without decrementing the retry count",
}

var driverStatusMessages = map[uint16]string{
	DRIVER_OK:      "no error",
	DRIVER_BUSY:    "driver busy",
	DRIVER_SOFT:    "driver soft error",
	DRIVER_MEDIA:   "media error",
	DRIVER_ERROR:   "driver error",
	DRIVER_INVALID: "invalid request",
	DRIVER_TIMEOUT: "driver timed out",
	DRIVER_HARD:    "driver hard error",
	DRIVER_SENSE:   "sense data available",
}

// sgTransport issues CDBs through the Linux SCSI generic driver.
type sgTransport struct {
	fd   int
	path string
	log  logrus.FieldLogger
}

func newTransport(log logrus.FieldLogger) Transport {
	return &sgTransport{fd: -1, log: log}
}

// Open opens the device read-write, falling back to read-only when the
// media or device node is write protected.
func (t *sgTransport) Open(path string) error {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK, 0600)
	if err == unix.EROFS || err == unix.EACCES {
		t.log.WithField("device", path).WithError(err).
			Warn("read-write open failed, retrying read-only")
		fd, err = unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0600)
	}
	if err != nil {
		t.log.WithField("device", path).WithError(err).Debug("open failed")
		return errors.Wrapf(err, "open %s", path)
	}
	t.fd = fd
	t.path = path
	return nil
}

// Close releases the handle. The descriptor is invalidated whether or not
// the close itself succeeds.
func (t *sgTransport) Close() error {
	if t.fd < 0 {
		return nil
	}
	err := unix.Close(t.fd)
	t.fd = -1
	return err
}

func (t *sgTransport) Execute(req *Request) (*Result, error) {
	if t.fd < 0 {
		return nil, ErrNotOpen
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	hdr := sgIoHdr{
		interface_id: 'S',
		cmd_len:      uint8(len(req.CDB)),
		timeout:      uint32(timeout / time.Millisecond),
	}
	switch req.Dir {
	case DirFromDevice:
		hdr.dxfer_direction = SG_DXFER_FROM_DEV
	case DirToDevice:
		hdr.dxfer_direction = SG_DXFER_TO_DEV
	default:
		hdr.dxfer_direction = SG_DXFER_NONE
	}
	hdr.cmdp = uintptr(unsafe.Pointer(&req.CDB[0]))
	if len(req.Data) > 0 {
		hdr.dxfer_len = uint32(len(req.Data))
		hdr.dxferp = uintptr(unsafe.Pointer(&req.Data[0]))
	}
	if len(req.Sense) > 0 {
		hdr.mx_sb_len = uint8(len(req.Sense))
		hdr.sbp = uintptr(unsafe.Pointer(&req.Sense[0]))
	}

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(t.fd), SG_IO,
		uintptr(unsafe.Pointer(&hdr))); errno != 0 {
		return nil, &TransportError{Op: "SG_IO", Path: t.path, Errno: errno}
	}

	res := &Result{
		Status:       hdr.status,
		HostStatus:   hdr.host_status,
		DriverStatus: hdr.driver_status & DRIVER_STATUS_MASK,
		DataResid:    int(hdr.resid),
	}
	if len(req.Sense) > 0 {
		res.SenseResid = len(req.Sense) - int(hdr.sb_len_wr)
	}
	res.SenseValid = hdr.status == STATUS_CHECK_CONDITION && hdr.sb_len_wr > 0
	return res, nil
}

// Retriable reports true for the transient errno patterns seen when a
// device is momentarily busy or the host is short on resources.
func (t *sgTransport) Retriable(err error) bool {
	for _, transient := range []unix.Errno{unix.EAGAIN, unix.EBUSY, unix.ENOMEM, unix.EINTR} {
		if errors.Is(err, transient) {
			return true
		}
	}
	return false
}

func (t *sgTransport) HostStatusMessage(hostStatus uint16) string {
	if msg, ok := hostStatusMessages[hostStatus]; ok {
		return msg
	}
	return "unknown host status"
}

func (t *sgTransport) DriverStatusMessage(driverStatus uint16) string {
	if msg, ok := driverStatusMessages[driverStatus&DRIVER_STATUS_MASK]; ok {
		return msg
	}
	return "unknown driver status"
}

func (t *sgTransport) reset(kind int32, name string) error {
	if t.fd < 0 {
		return ErrNotOpen
	}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(t.fd), SG_SCSI_RESET,
		uintptr(unsafe.Pointer(&kind))); errno != 0 {
		return errors.Wrapf(errno, "%s %s", name, t.path)
	}
	return nil
}

func (t *sgTransport) ResetBus() error    { return t.reset(SG_SCSI_RESET_BUS, "bus reset") }
func (t *sgTransport) ResetDevice() error { return t.reset(SG_SCSI_RESET_DEVICE, "device reset") }

func (t *sgTransport) ResetLUN() error     { return ErrUnsupported }
func (t *sgTransport) AbortTaskSet() error { return ErrUnsupported }
func (t *sgTransport) ClearTaskSet() error { return ErrUnsupported }
