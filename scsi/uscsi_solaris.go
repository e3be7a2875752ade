// Copyright 2026 The dt-sub004 Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Solaris USCSI ioctl pass-through backend.

package scsi

import (
	"syscall"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	USCSI_WRITE     = 0x00000
	USCSI_SILENT    = 0x00001
	USCSI_DIAGNOSE  = 0x00002
	USCSI_ISOLATE   = 0x00004
	USCSI_READ      = 0x00008
	USCSI_RESET     = 0x04000
	USCSI_RESET_ALL = 0x08000
	USCSI_RQENABLE  = 0x10000
	USCSI_RESET_LUN = 0x40000

	// USCSICMD ioctl request code
	USCSICMD = (4 << 8) | 201

	// SYS_ioctl on Solaris
	sysIoctl = 54
)

// uscsiCmd mirrors struct uscsi_cmd from <sys/scsi/impl/uscsi.h>.
type uscsiCmd struct {
	flags              int32
	status             int16
	timeout            int16
	cdb                unsafe.Pointer
	buf                unsafe.Pointer
	bufLen             int64
	resid              int64
	cdbLen             int8
	senseRequestLen    int8
	senseRequestStatus int8
	senseRequestResid  int8
	senseBuf           unsafe.Pointer
	pathInstance       int64
}

// uscsiTransport issues CDBs through the Solaris USCSI ioctl.
type uscsiTransport struct {
	noHostStatus

	fd   int
	path string
	log  logrus.FieldLogger
}

func newTransport(log logrus.FieldLogger) Transport {
	return &uscsiTransport{fd: -1, log: log}
}

func (t *uscsiTransport) Open(path string) error {
	fd, err := syscall.Open(path, syscall.O_RDWR, 0600)
	if err == syscall.EROFS || err == syscall.EACCES {
		t.log.WithField("device", path).WithError(err).
			Warn("read-write open failed, retrying read-only")
		fd, err = syscall.Open(path, syscall.O_RDONLY, 0600)
	}
	if err != nil {
		t.log.WithField("device", path).WithError(err).Debug("open failed")
		return errors.Wrapf(err, "open %s", path)
	}
	t.fd = fd
	t.path = path
	return nil
}

func (t *uscsiTransport) Close() error {
	if t.fd < 0 {
		return nil
	}
	err := syscall.Close(t.fd)
	t.fd = -1
	return err
}

func (t *uscsiTransport) ioctl(cmd *uscsiCmd) syscall.Errno {
	_, _, errno := syscall.Syscall(sysIoctl, uintptr(t.fd), USCSICMD,
		uintptr(unsafe.Pointer(cmd)))
	return errno
}

func (t *uscsiTransport) Execute(req *Request) (*Result, error) {
	if t.fd < 0 {
		return nil, ErrNotOpen
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	cmd := uscsiCmd{
		flags:   USCSI_SILENT | USCSI_ISOLATE | USCSI_DIAGNOSE,
		timeout: int16(timeout / time.Second),
	}
	switch req.Dir {
	case DirFromDevice:
		cmd.flags |= USCSI_READ
	case DirToDevice:
		cmd.flags |= USCSI_WRITE
	}
	cmd.cdb = unsafe.Pointer(&req.CDB[0])
	cmd.cdbLen = int8(len(req.CDB))
	if len(req.Data) > 0 {
		cmd.buf = unsafe.Pointer(&req.Data[0])
		cmd.bufLen = int64(len(req.Data))
	}
	if len(req.Sense) > 0 {
		cmd.flags |= USCSI_RQENABLE
		cmd.senseBuf = unsafe.Pointer(&req.Sense[0])
		cmd.senseRequestLen = int8(len(req.Sense))
	}

	if errno := t.ioctl(&cmd); errno != 0 {
		// USCSI rejects the ioctl with EIO when the device answers with a
		// check condition; the SCSI status still tells the real story.
		if errno != syscall.EIO || cmd.status == STATUS_GOOD {
			return nil, &TransportError{Op: "USCSICMD", Path: t.path, Errno: errno}
		}
	}

	res := &Result{
		Status:     uint8(cmd.status),
		DataResid:  int(cmd.resid),
		SenseResid: int(cmd.senseRequestResid),
	}
	res.SenseValid = res.Status == STATUS_CHECK_CONDITION &&
		cmd.senseRequestStatus == STATUS_GOOD
	return res, nil
}

// Retriable reports true for the transient errno patterns a momentarily
// busy target or path produces on Solaris.
func (t *uscsiTransport) Retriable(err error) bool {
	for _, transient := range []syscall.Errno{syscall.EAGAIN, syscall.EBUSY, syscall.EINTR, syscall.ENOMEM} {
		if errors.Is(err, transient) {
			return true
		}
	}
	return false
}

func (t *uscsiTransport) reset(flag int32, name string) error {
	if t.fd < 0 {
		return ErrNotOpen
	}
	cmd := uscsiCmd{flags: flag | USCSI_SILENT, timeout: 30}
	if errno := t.ioctl(&cmd); errno != 0 {
		return errors.Wrapf(errno, "%s %s", name, t.path)
	}
	return nil
}

func (t *uscsiTransport) ResetBus() error    { return t.reset(USCSI_RESET_ALL, "bus reset") }
func (t *uscsiTransport) ResetDevice() error { return t.reset(USCSI_RESET, "device reset") }
func (t *uscsiTransport) ResetLUN() error    { return t.reset(USCSI_RESET_LUN, "lun reset") }

func (t *uscsiTransport) AbortTaskSet() error { return ErrUnsupported }
func (t *uscsiTransport) ClearTaskSet() error { return ErrUnsupported }
