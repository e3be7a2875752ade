// Copyright 2026 The dt-sub004 Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package scsi

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileTransport(t *testing.T, blocks int, blockLen uint32) *FileTransport {
	t.Helper()

	path := filepath.Join(t.TempDir(), "target.img")
	require.NoError(t, os.WriteFile(path, make([]byte, blocks*int(blockLen)), 0644))

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.PanicLevel)

	ft := NewFileTransport(log, blockLen, false)
	require.NoError(t, ft.Open(path))
	t.Cleanup(func() { ft.Close() })
	return ft
}

func TestFileTransportReadWriteRoundTrip(t *testing.T) {
	ft := newTestFileTransport(t, 1000, 512)
	sense := make([]byte, 64)

	payload := bytes.Repeat([]byte{0xa5}, 1024)
	res, err := ft.Execute(&Request{
		Dir:   DirToDevice,
		CDB:   Write10CDB(10, 2, false, false),
		Data:  payload,
		Sense: sense,
	})
	require.NoError(t, err)
	require.Equal(t, uint8(STATUS_GOOD), res.Status)
	assert.Equal(t, 1024, res.Transferred(len(payload)))

	got := make([]byte, 1024)
	res, err = ft.Execute(&Request{
		Dir:   DirFromDevice,
		CDB:   Read10CDB(10, 2, false, false),
		Data:  got,
		Sense: sense,
	})
	require.NoError(t, err)
	require.Equal(t, uint8(STATUS_GOOD), res.Status)
	assert.Equal(t, payload, got)
}

func TestFileTransportOutOfRange(t *testing.T) {
	ft := newTestFileTransport(t, 100, 512)
	sense := make([]byte, 64)

	res, err := ft.Execute(&Request{
		Dir:   DirFromDevice,
		CDB:   Read10CDB(99, 2, false, false),
		Data:  make([]byte, 1024),
		Sense: sense,
	})
	require.NoError(t, err, "a device-level error is not a transport failure")
	require.Equal(t, uint8(STATUS_CHECK_CONDITION), res.Status)
	require.True(t, res.SenseValid)

	parsed, ok := ParseSense(sense)
	require.True(t, ok)
	assert.Equal(t, uint8(SKEY_ILLEGAL_REQUEST), parsed.Key)
	assert.Equal(t, uint8(ASC_LBA_OUT_OF_RANGE), parsed.ASC)
}

func TestFileTransportInquiry(t *testing.T) {
	ft := newTestFileTransport(t, 100, 512)

	data := make([]byte, INQ_REPLY_LEN)
	res, err := ft.Execute(&Request{
		Dir:  DirFromDevice,
		CDB:  InquiryCDB(false, 0, len(data)),
		Data: data,
	})
	require.NoError(t, err)
	require.Equal(t, uint8(STATUS_GOOD), res.Status)
	assert.Equal(t, fileVendor, string(data[8:16]))
	assert.Equal(t, fileProduct, string(data[16:32]))
	assert.Equal(t, fileRevision, string(data[32:36]))
}

func TestFileTransportReadCapacity(t *testing.T) {
	ft := newTestFileTransport(t, 1000, 512)

	data := make([]byte, 8)
	res, err := ft.Execute(&Request{
		Dir:  DirFromDevice,
		CDB:  ReadCapacity10CDB(),
		Data: data,
	})
	require.NoError(t, err)
	require.Equal(t, uint8(STATUS_GOOD), res.Status)
	assert.Equal(t, uint32(999), binary.BigEndian.Uint32(data[0:4]), "last LBA")
	assert.Equal(t, uint32(512), binary.BigEndian.Uint32(data[4:8]), "block length")

	data16 := make([]byte, 32)
	res, err = ft.Execute(&Request{
		Dir:  DirFromDevice,
		CDB:  ReadCapacity16CDB(len(data16)),
		Data: data16,
	})
	require.NoError(t, err)
	require.Equal(t, uint8(STATUS_GOOD), res.Status)
	assert.Equal(t, uint64(999), binary.BigEndian.Uint64(data16[0:8]))
	assert.Equal(t, uint32(512), binary.BigEndian.Uint32(data16[8:12]))
}

func TestFileTransportUnknownOpcode(t *testing.T) {
	ft := newTestFileTransport(t, 10, 512)
	sense := make([]byte, 64)

	res, err := ft.Execute(&Request{CDB: []byte{0xee, 0, 0, 0, 0, 0}, Sense: sense})
	require.NoError(t, err)
	require.Equal(t, uint8(STATUS_CHECK_CONDITION), res.Status)

	parsed, ok := ParseSense(sense)
	require.True(t, ok)
	assert.Equal(t, uint8(SKEY_ILLEGAL_REQUEST), parsed.Key)
	assert.Equal(t, uint8(0x20), parsed.ASC)
}

func TestFileTransportNotRetriable(t *testing.T) {
	ft := newTestFileTransport(t, 10, 512)
	assert.False(t, ft.Retriable(os.ErrClosed))
}

func TestFileTransportResetsUnsupported(t *testing.T) {
	ft := newTestFileTransport(t, 10, 512)
	assert.ErrorIs(t, ft.ResetBus(), ErrUnsupported)
	assert.ErrorIs(t, ft.ResetDevice(), ErrUnsupported)
	assert.ErrorIs(t, ft.ResetLUN(), ErrUnsupported)
	assert.ErrorIs(t, ft.AbortTaskSet(), ErrUnsupported)
	assert.ErrorIs(t, ft.ClearTaskSet(), ErrUnsupported)
}
