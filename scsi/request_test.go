// Copyright 2026 The dt-sub004 Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package scsi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransferredResidualClamp(t *testing.T) {
	tests := []struct {
		name    string
		dataLen int
		resid   int
		want    int
	}{
		{"full transfer", 4096, 0, 4096},
		{"partial transfer", 4096, 512, 3584},
		{"nothing moved", 4096, 4096, 0},
		{"residual overrun clamps", 512, 4096, 512},
		{"zero length", 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Result{DataResid: tt.resid}
			assert.Equal(t, tt.want, res.Transferred(tt.dataLen))
		})
	}
}

func TestStatusName(t *testing.T) {
	assert.Equal(t, "GOOD", StatusName(STATUS_GOOD))
	assert.Equal(t, "CHECK CONDITION", StatusName(STATUS_CHECK_CONDITION))
	assert.Equal(t, "BUSY", StatusName(STATUS_BUSY))
	assert.Equal(t, "UNKNOWN", StatusName(0x7f))
}

func TestOpcodeName(t *testing.T) {
	assert.Equal(t, "READ(10)", OpcodeName(SCSI_READ_10))
	assert.Equal(t, "WRITE(16)", OpcodeName(SCSI_WRITE_16))
	assert.Equal(t, "UNKNOWN", OpcodeName(0xee))
}

func TestReadWriteCDBs(t *testing.T) {
	cdb := Read10CDB(0x01020304, 0x0506, false, false)
	assert.Equal(t, []byte{SCSI_READ_10, 0, 0x01, 0x02, 0x03, 0x04, 0, 0x05, 0x06, 0}, cdb)

	cdb = Write10CDB(1, 2, true, true)
	assert.Equal(t, byte(SCSI_WRITE_10), cdb[0])
	assert.Equal(t, byte(0x18), cdb[1], "DPO and FUA bits")

	cdb = Read16CDB(0x0102030405060708, 0x090a0b0c, false, true)
	assert.Equal(t, byte(SCSI_READ_16), cdb[0])
	assert.Equal(t, byte(0x08), cdb[1], "FUA bit")
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}, cdb[2:10])
	assert.Equal(t, []byte{0x09, 0x0a, 0x0b, 0x0c}, cdb[10:14])

	cdb = InquiryCDB(true, VPD_UNIT_SERIAL, 255)
	assert.Equal(t, []byte{SCSI_INQUIRY, 0x01, VPD_UNIT_SERIAL, 0, 255, 0}, cdb)
}
