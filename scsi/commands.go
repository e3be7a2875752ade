// Copyright 2026 The dt-sub004 Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// SCSI command definitions and CDB construction.

package scsi

import "encoding/binary"

const (
	// SCSI commands used by this package
	SCSI_TEST_UNIT_READY      = 0x00
	SCSI_REQUEST_SENSE        = 0x03
	SCSI_INQUIRY              = 0x12
	SCSI_MODE_SENSE_6         = 0x1a
	SCSI_READ_CAPACITY_10     = 0x25
	SCSI_READ_10              = 0x28
	SCSI_WRITE_10             = 0x2a
	SCSI_SYNC_CACHE_10        = 0x35
	SCSI_UNMAP                = 0x42
	SCSI_READ_16              = 0x88
	SCSI_WRITE_16             = 0x8a
	SCSI_SERVICE_ACTION_IN_16 = 0x9e

	// READ CAPACITY(16) service action
	SAI_READ_CAPACITY_16 = 0x10

	// Minimum length of standard INQUIRY response
	INQ_REPLY_LEN = 36

	// Vital product data pages
	VPD_UNIT_SERIAL = 0x80
	VPD_DEVICE_ID   = 0x83
)

// SCSI CDB types
type CDB6 [6]byte
type CDB10 [10]byte
type CDB16 [16]byte

var opcodeNames = map[byte]string{
	SCSI_TEST_UNIT_READY:      "TEST UNIT READY",
	SCSI_REQUEST_SENSE:        "REQUEST SENSE",
	SCSI_INQUIRY:              "INQUIRY",
	SCSI_MODE_SENSE_6:         "MODE SENSE(6)",
	SCSI_READ_CAPACITY_10:     "READ CAPACITY(10)",
	SCSI_READ_10:              "READ(10)",
	SCSI_WRITE_10:             "WRITE(10)",
	SCSI_SYNC_CACHE_10:        "SYNCHRONIZE CACHE(10)",
	SCSI_UNMAP:                "UNMAP",
	SCSI_READ_16:              "READ(16)",
	SCSI_WRITE_16:             "WRITE(16)",
	SCSI_SERVICE_ACTION_IN_16: "SERVICE ACTION IN(16)",
}

// OpcodeName returns the name of a SCSI operation code, or "UNKNOWN" for
// opcodes this package does not issue.
func OpcodeName(op byte) string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "UNKNOWN"
}

// InquiryCDB builds an INQUIRY command. With evpd set, page selects the
// vital product data page to fetch.
func InquiryCDB(evpd bool, page byte, allocLen int) []byte {
	cdb := CDB6{SCSI_INQUIRY}
	if evpd {
		cdb[1] = 0x01
		cdb[2] = page
	}
	cdb[4] = byte(allocLen)
	return cdb[:]
}

// TestUnitReadyCDB builds a TEST UNIT READY command.
func TestUnitReadyCDB() []byte {
	cdb := CDB6{SCSI_TEST_UNIT_READY}
	return cdb[:]
}

// ReadCapacity10CDB builds a READ CAPACITY(10) command.
func ReadCapacity10CDB() []byte {
	cdb := CDB10{SCSI_READ_CAPACITY_10}
	return cdb[:]
}

// ReadCapacity16CDB builds a READ CAPACITY(16) command for devices whose
// capacity overflows the 10-byte variant.
func ReadCapacity16CDB(allocLen int) []byte {
	cdb := CDB16{SCSI_SERVICE_ACTION_IN_16, SAI_READ_CAPACITY_16}
	binary.BigEndian.PutUint32(cdb[10:14], uint32(allocLen))
	return cdb[:]
}

// Read10CDB builds a READ(10) command.
func Read10CDB(lba uint32, blocks uint16, dpo, fua bool) []byte {
	cdb := CDB10{SCSI_READ_10}
	cdb[1] = cacheBits(dpo, fua)
	binary.BigEndian.PutUint32(cdb[2:6], lba)
	binary.BigEndian.PutUint16(cdb[7:9], blocks)
	return cdb[:]
}

// Write10CDB builds a WRITE(10) command.
func Write10CDB(lba uint32, blocks uint16, dpo, fua bool) []byte {
	cdb := CDB10{SCSI_WRITE_10}
	cdb[1] = cacheBits(dpo, fua)
	binary.BigEndian.PutUint32(cdb[2:6], lba)
	binary.BigEndian.PutUint16(cdb[7:9], blocks)
	return cdb[:]
}

// Read16CDB builds a READ(16) command for LBAs or block counts beyond the
// 10-byte CDB fields.
func Read16CDB(lba uint64, blocks uint32, dpo, fua bool) []byte {
	cdb := CDB16{SCSI_READ_16}
	cdb[1] = cacheBits(dpo, fua)
	binary.BigEndian.PutUint64(cdb[2:10], lba)
	binary.BigEndian.PutUint32(cdb[10:14], blocks)
	return cdb[:]
}

// Write16CDB builds a WRITE(16) command.
func Write16CDB(lba uint64, blocks uint32, dpo, fua bool) []byte {
	cdb := CDB16{SCSI_WRITE_16}
	cdb[1] = cacheBits(dpo, fua)
	binary.BigEndian.PutUint64(cdb[2:10], lba)
	binary.BigEndian.PutUint32(cdb[10:14], blocks)
	return cdb[:]
}

// cacheBits packs the DPO/FUA flags into CDB byte 1.
func cacheBits(dpo, fua bool) byte {
	var b byte
	if dpo {
		b |= 0x10
	}
	if fua {
		b |= 0x08
	}
	return b
}
