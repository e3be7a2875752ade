// Copyright 2026 The dt-sub004 Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Flat-file transport: services the block command subset the exerciser
// issues against a regular file, so a file target can stand in for a disk.

package scsi

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/ncw/directio"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Synthetic identity reported by file targets.
const (
	fileVendor   = "FILEIO  "         // 8 bytes
	fileProduct  = "FLAT FILE TARGET" // 16 bytes
	fileRevision = "0100"             // 4 bytes
)

// FileTransport implements the transport contract against a regular file
// using positional reads and writes. READ/WRITE CDBs are interpreted
// directly; INQUIRY and READ CAPACITY are synthesized. Out-of-range access
// reports CHECK CONDITION with LBA OUT OF RANGE sense, like a real target.
type FileTransport struct {
	noReset
	noHostStatus

	f        *os.File
	path     string
	blockLen uint32
	direct   bool
	readonly bool
	log      logrus.FieldLogger
}

// NewFileTransport returns a file-backed transport with the given block
// length. With direct set, the file is opened for direct I/O and buffers
// must come from the aligned allocator.
func NewFileTransport(log logrus.FieldLogger, blockLen uint32, direct bool) *FileTransport {
	if blockLen == 0 {
		blockLen = 512
	}
	return &FileTransport{blockLen: blockLen, direct: direct, log: log}
}

func (t *FileTransport) open(path string, flag int) (*os.File, error) {
	if t.direct {
		return directio.OpenFile(path, flag, 0666)
	}
	return os.OpenFile(path, flag, 0666)
}

func (t *FileTransport) Open(path string) error {
	f, err := t.open(path, os.O_RDWR)
	if os.IsPermission(err) {
		t.log.WithField("device", path).WithError(err).
			Warn("read-write open failed, retrying read-only")
		f, err = t.open(path, os.O_RDONLY)
		t.readonly = err == nil
	}
	if err != nil {
		t.log.WithField("device", path).WithError(err).Debug("open failed")
		return errors.Wrapf(err, "open %s", path)
	}
	t.f = f
	t.path = path
	return nil
}

func (t *FileTransport) Close() error {
	if t.f == nil {
		return nil
	}
	err := t.f.Close()
	t.f = nil
	return err
}

// capacity reports the file size in whole blocks.
func (t *FileTransport) capacity() (uint64, error) {
	fi, err := t.f.Stat()
	if err != nil {
		return 0, err
	}
	return uint64(fi.Size()) / uint64(t.blockLen), nil
}

func (t *FileTransport) Execute(req *Request) (*Result, error) {
	if t.f == nil {
		return nil, ErrNotOpen
	}

	switch req.CDB[0] {
	case SCSI_TEST_UNIT_READY:
		return &Result{Status: STATUS_GOOD}, nil
	case SCSI_INQUIRY:
		return t.inquiry(req)
	case SCSI_READ_CAPACITY_10:
		return t.readCapacity10(req)
	case SCSI_SERVICE_ACTION_IN_16:
		if req.CDB[1]&0x1f == SAI_READ_CAPACITY_16 {
			return t.readCapacity16(req)
		}
		return t.checkCondition(req, SKEY_ILLEGAL_REQUEST, ASC_INVALID_FIELD_IN_CDB, 0)
	case SCSI_READ_10, SCSI_READ_16:
		return t.readWrite(req, false)
	case SCSI_WRITE_10, SCSI_WRITE_16:
		return t.readWrite(req, true)
	case SCSI_SYNC_CACHE_10:
		if err := t.f.Sync(); err != nil {
			return nil, &TransportError{Op: "fsync", Path: t.path, Errno: err}
		}
		return &Result{Status: STATUS_GOOD}, nil
	}
	return t.checkCondition(req, SKEY_ILLEGAL_REQUEST, 0x20, 0) // INVALID COMMAND OPERATION CODE
}

func (t *FileTransport) checkCondition(req *Request, key, asc, ascq uint8) (*Result, error) {
	res := &Result{Status: STATUS_CHECK_CONDITION, DataResid: len(req.Data)}
	if n := FixedSense(req.Sense, key, asc, ascq); n > 0 {
		res.SenseValid = true
		res.SenseResid = len(req.Sense) - n
	}
	return res, nil
}

func (t *FileTransport) dataIn(req *Request, payload []byte) (*Result, error) {
	n := copy(req.Data, payload)
	return &Result{Status: STATUS_GOOD, DataResid: len(req.Data) - n}, nil
}

func (t *FileTransport) inquiry(req *Request) (*Result, error) {
	if req.CDB[1]&0x01 != 0 {
		// VPD pages: unit serial derived from the path; device id empty.
		switch req.CDB[2] {
		case VPD_UNIT_SERIAL:
			serial := t.path
			page := make([]byte, 4+len(serial))
			page[1] = VPD_UNIT_SERIAL
			page[3] = byte(len(serial))
			copy(page[4:], serial)
			return t.dataIn(req, page)
		default:
			return t.checkCondition(req, SKEY_ILLEGAL_REQUEST, ASC_INVALID_FIELD_IN_CDB, 0)
		}
	}

	inq := make([]byte, INQ_REPLY_LEN)
	inq[0] = 0x00 // direct access block device
	inq[2] = 0x06 // SPC-4
	inq[4] = INQ_REPLY_LEN - 5
	copy(inq[8:16], fileVendor)
	copy(inq[16:32], fileProduct)
	copy(inq[32:36], fileRevision)
	return t.dataIn(req, inq)
}

func (t *FileTransport) readCapacity10(req *Request) (*Result, error) {
	blocks, err := t.capacity()
	if err != nil {
		return nil, &TransportError{Op: "stat", Path: t.path, Errno: err}
	}

	var data [8]byte
	lastLBA := uint64(0)
	if blocks > 0 {
		lastLBA = blocks - 1
	}
	if lastLBA > 0xffffffff {
		lastLBA = 0xffffffff // caller must escalate to READ CAPACITY(16)
	}
	binary.BigEndian.PutUint32(data[0:4], uint32(lastLBA))
	binary.BigEndian.PutUint32(data[4:8], t.blockLen)
	return t.dataIn(req, data[:])
}

func (t *FileTransport) readCapacity16(req *Request) (*Result, error) {
	blocks, err := t.capacity()
	if err != nil {
		return nil, &TransportError{Op: "stat", Path: t.path, Errno: err}
	}

	var data [32]byte
	if blocks > 0 {
		binary.BigEndian.PutUint64(data[0:8], blocks-1)
	}
	binary.BigEndian.PutUint32(data[8:12], t.blockLen)
	return t.dataIn(req, data[:])
}

// cdbRange extracts the LBA and block count from a READ/WRITE CDB.
func cdbRange(cdb []byte) (lba uint64, blocks uint32) {
	switch len(cdb) {
	case 10:
		return uint64(binary.BigEndian.Uint32(cdb[2:6])), uint32(binary.BigEndian.Uint16(cdb[7:9]))
	case 16:
		return binary.BigEndian.Uint64(cdb[2:10]), binary.BigEndian.Uint32(cdb[10:14])
	}
	return 0, 0
}

func (t *FileTransport) readWrite(req *Request, write bool) (*Result, error) {
	if write && t.readonly {
		return t.checkCondition(req, SKEY_DATA_PROTECT, ASC_WRITE_PROTECTED, 0)
	}

	lba, blocks := cdbRange(req.CDB)
	capBlocks, err := t.capacity()
	if err != nil {
		return nil, &TransportError{Op: "stat", Path: t.path, Errno: err}
	}
	if lba+uint64(blocks) > capBlocks {
		return t.checkCondition(req, SKEY_ILLEGAL_REQUEST, ASC_LBA_OUT_OF_RANGE, 0)
	}

	xfer := int(blocks) * int(t.blockLen)
	if xfer > len(req.Data) {
		xfer = len(req.Data)
	}
	off := int64(lba) * int64(t.blockLen)

	var n int
	if write {
		n, err = t.f.WriteAt(req.Data[:xfer], off)
	} else {
		n, err = t.f.ReadAt(req.Data[:xfer], off)
	}
	if err != nil && err != io.EOF {
		return nil, &TransportError{Op: "rw", Path: t.path, Errno: err}
	}
	return &Result{Status: STATUS_GOOD, DataResid: len(req.Data) - n}, nil
}

// Retriable always reports false; a regular file has no transient error
// patterns.
func (t *FileTransport) Retriable(err error) bool { return false }
