// Copyright 2026 The dt-sub004 Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Windows SCSI_PASS_THROUGH_DIRECT backend.

package scsi

import (
	"syscall"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/windows"
)

const (
	IOCTL_SCSI_PASS_THROUGH_DIRECT = 0x4d014

	SCSI_IOCTL_DATA_OUT         = 0
	SCSI_IOCTL_DATA_IN          = 1
	SCSI_IOCTL_DATA_UNSPECIFIED = 2

	// Transient Win32 error codes worth a retry.
	ERROR_DEV_NOT_EXIST         syscall.Errno = 55
	ERROR_IO_DEVICE             syscall.Errno = 1117
	ERROR_DEVICE_NOT_CONNECTED  syscall.Errno = 1167
	ERROR_NO_SYSTEM_RESOURCES   syscall.Errno = 1450

	ERROR_WRITE_PROTECT syscall.Errno = 19
)

// scsiPassThroughDirect mirrors SCSI_PASS_THROUGH_DIRECT from <ntddscsi.h>.
type scsiPassThroughDirect struct {
	Length             uint16
	ScsiStatus         byte
	PathId             byte
	TargetId           byte
	Lun                byte
	CdbLength          byte
	SenseInfoLength    byte
	DataIn             byte
	_                  [3]byte
	DataTransferLength uint32
	TimeOutValue       uint32
	_                  [4]byte
	DataBuffer         uintptr
	SenseInfoOffset    uint32
	Cdb                [16]byte
	_                  [4]byte
}

// sptdBuffer carries the control block and the sense area the driver fills
// in one contiguous allocation, as the ioctl requires.
type sptdBuffer struct {
	sptd  scsiPassThroughDirect
	sense [64]byte
}

// sptTransport issues CDBs through DeviceIoControl pass-through-direct.
type sptTransport struct {
	noReset
	noHostStatus

	handle windows.Handle
	path   string
	log    logrus.FieldLogger
}

func newTransport(log logrus.FieldLogger) Transport {
	return &sptTransport{handle: windows.InvalidHandle, log: log}
}

func (t *sptTransport) Open(path string) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	access := uint32(windows.GENERIC_READ | windows.GENERIC_WRITE)
	share := uint32(windows.FILE_SHARE_READ | windows.FILE_SHARE_WRITE)
	h, err := windows.CreateFile(p, access, share, nil, windows.OPEN_EXISTING, 0, 0)
	if err == ERROR_WRITE_PROTECT {
		t.log.WithField("device", path).WithError(err).
			Warn("read-write open failed, retrying read-only")
		h, err = windows.CreateFile(p, windows.GENERIC_READ, share, nil, windows.OPEN_EXISTING, 0, 0)
	}
	if err != nil {
		t.log.WithField("device", path).WithError(err).Debug("open failed")
		return errors.Wrapf(err, "open %s", path)
	}
	t.handle = h
	t.path = path
	return nil
}

func (t *sptTransport) Close() error {
	if t.handle == windows.InvalidHandle {
		return nil
	}
	err := windows.CloseHandle(t.handle)
	t.handle = windows.InvalidHandle
	return err
}

func (t *sptTransport) Execute(req *Request) (*Result, error) {
	if t.handle == windows.InvalidHandle {
		return nil, ErrNotOpen
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	var buf sptdBuffer
	buf.sptd.Length = uint16(unsafe.Sizeof(buf.sptd))
	buf.sptd.CdbLength = byte(len(req.CDB))
	buf.sptd.SenseInfoLength = byte(len(buf.sense))
	buf.sptd.SenseInfoOffset = uint32(unsafe.Offsetof(buf.sense))
	buf.sptd.TimeOutValue = uint32(timeout / time.Second)
	switch req.Dir {
	case DirFromDevice:
		buf.sptd.DataIn = SCSI_IOCTL_DATA_IN
	case DirToDevice:
		buf.sptd.DataIn = SCSI_IOCTL_DATA_OUT
	default:
		buf.sptd.DataIn = SCSI_IOCTL_DATA_UNSPECIFIED
	}
	if len(req.Data) > 0 {
		buf.sptd.DataTransferLength = uint32(len(req.Data))
		buf.sptd.DataBuffer = uintptr(unsafe.Pointer(&req.Data[0]))
	}
	copy(buf.sptd.Cdb[:], req.CDB)

	var returned uint32
	err := windows.DeviceIoControl(t.handle, IOCTL_SCSI_PASS_THROUGH_DIRECT,
		(*byte)(unsafe.Pointer(&buf)), uint32(unsafe.Sizeof(buf)),
		(*byte)(unsafe.Pointer(&buf)), uint32(unsafe.Sizeof(buf)),
		&returned, nil)
	if err != nil {
		return nil, &TransportError{Op: "SCSI_PASS_THROUGH_DIRECT", Path: t.path, Errno: err}
	}

	res := &Result{
		Status:    buf.sptd.ScsiStatus,
		DataResid: len(req.Data) - int(buf.sptd.DataTransferLength),
	}
	if res.Status == STATUS_CHECK_CONDITION && buf.sense[0] != 0 {
		res.SenseValid = true
		n := copy(req.Sense, buf.sense[:])
		res.SenseResid = len(req.Sense) - n
	}
	return res, nil
}

// Retriable reports true for the Win32 codes a momentarily missing or
// resource-starved device produces.
func (t *sptTransport) Retriable(err error) bool {
	for _, transient := range []syscall.Errno{
		ERROR_DEV_NOT_EXIST,
		ERROR_IO_DEVICE,
		ERROR_DEVICE_NOT_CONNECTED,
		ERROR_NO_SYSTEM_RESOURCES,
	} {
		if errors.Is(err, transient) {
			return true
		}
	}
	return false
}
