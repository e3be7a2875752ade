// Copyright 2026 The dt-sub004 Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Sense data parsing and description lookup.

package scsi

// Sense data response codes.
const (
	SENSE_FIXED_CURRENT    = 0x70
	SENSE_FIXED_DEFERRED   = 0x71
	SENSE_DESC_CURRENT     = 0x72
	SENSE_DESC_DEFERRED    = 0x73
)

// Sense keys (SPC).
const (
	SKEY_NO_SENSE        = 0x00
	SKEY_RECOVERED_ERROR = 0x01
	SKEY_NOT_READY       = 0x02
	SKEY_MEDIUM_ERROR    = 0x03
	SKEY_HARDWARE_ERROR  = 0x04
	SKEY_ILLEGAL_REQUEST = 0x05
	SKEY_UNIT_ATTENTION  = 0x06
	SKEY_DATA_PROTECT    = 0x07
	SKEY_BLANK_CHECK     = 0x08
	SKEY_COPY_ABORTED    = 0x0a
	SKEY_ABORTED_COMMAND = 0x0b
	SKEY_VOLUME_OVERFLOW = 0x0d
	SKEY_MISCOMPARE      = 0x0e
)

// Additional sense codes used by this package.
const (
	ASC_LBA_OUT_OF_RANGE     = 0x21
	ASC_INVALID_FIELD_IN_CDB = 0x24
	ASC_WRITE_PROTECTED      = 0x27
	ASC_MEDIUM_NOT_PRESENT   = 0x3a
)

var senseKeyNames = map[uint8]string{
	SKEY_NO_SENSE:        "NO SENSE",
	SKEY_RECOVERED_ERROR: "RECOVERED ERROR",
	SKEY_NOT_READY:       "NOT READY",
	SKEY_MEDIUM_ERROR:    "MEDIUM ERROR",
	SKEY_HARDWARE_ERROR:  "HARDWARE ERROR",
	SKEY_ILLEGAL_REQUEST: "ILLEGAL REQUEST",
	SKEY_UNIT_ATTENTION:  "UNIT ATTENTION",
	SKEY_DATA_PROTECT:    "DATA PROTECT",
	SKEY_BLANK_CHECK:     "BLANK CHECK",
	SKEY_COPY_ABORTED:    "COPY ABORTED",
	SKEY_ABORTED_COMMAND: "ABORTED COMMAND",
	SKEY_VOLUME_OVERFLOW: "VOLUME OVERFLOW",
	SKEY_MISCOMPARE:      "MISCOMPARE",
}

// SenseKeyName returns the SPC name of a sense key.
func SenseKeyName(key uint8) string {
	if name, ok := senseKeyNames[key]; ok {
		return name
	}
	return "UNKNOWN"
}

// ASC/ASCQ descriptions for the codes a device exerciser commonly sees.
// The full list lives at www.t10.org/lists/asc-num.txt.
var senseCodeDescriptions = map[uint16]string{
	0x0000: "NO ADDITIONAL SENSE INFORMATION",
	0x0400: "LOGICAL UNIT NOT READY, CAUSE NOT REPORTABLE",
	0x0401: "LOGICAL UNIT IS IN PROCESS OF BECOMING READY",
	0x0402: "LOGICAL UNIT NOT READY, INITIALIZING COMMAND REQUIRED",
	0x0403: "LOGICAL UNIT NOT READY, MANUAL INTERVENTION REQUIRED",
	0x0404: "LOGICAL UNIT NOT READY, FORMAT IN PROGRESS",
	0x0800: "LOGICAL UNIT COMMUNICATION FAILURE",
	0x0801: "LOGICAL UNIT COMMUNICATION TIME-OUT",
	0x0c00: "WRITE ERROR",
	0x0c02: "WRITE ERROR - AUTO REALLOCATION FAILED",
	0x1100: "UNRECOVERED READ ERROR",
	0x1101: "READ RETRIES EXHAUSTED",
	0x1104: "UNRECOVERED READ ERROR - AUTO REALLOCATE FAILED",
	0x1a00: "PARAMETER LIST LENGTH ERROR",
	0x1d00: "MISCOMPARE DURING VERIFY OPERATION",
	0x2000: "INVALID COMMAND OPERATION CODE",
	0x2100: "LOGICAL BLOCK ADDRESS OUT OF RANGE",
	0x2400: "INVALID FIELD IN CDB",
	0x2500: "LOGICAL UNIT NOT SUPPORTED",
	0x2600: "INVALID FIELD IN PARAMETER LIST",
	0x2700: "WRITE PROTECTED",
	0x2800: "NOT READY TO READY TRANSITION (MEDIUM MAY HAVE CHANGED)",
	0x2900: "POWER ON, RESET, OR BUS DEVICE RESET OCCURRED",
	0x2a01: "MODE PARAMETERS CHANGED",
	0x2f00: "COMMANDS CLEARED BY ANOTHER INITIATOR",
	0x3a00: "MEDIUM NOT PRESENT",
	0x3f01: "MICROCODE HAS BEEN CHANGED",
	0x3f03: "INQUIRY DATA HAS CHANGED",
	0x4400: "INTERNAL TARGET FAILURE",
	0x4700: "SCSI PARITY ERROR",
	0x4b00: "DATA PHASE ERROR",
	0x5500: "SYSTEM RESOURCE FAILURE",
}

// SenseCodeDescription looks up the description of an ASC/ASCQ pair.
func SenseCodeDescription(asc, ascq uint8) (string, bool) {
	desc, ok := senseCodeDescriptions[uint16(asc)<<8|uint16(ascq)]
	return desc, ok
}

// Sense holds the fields extracted from a sense buffer.
type Sense struct {
	Key  uint8
	ASC  uint8
	ASCQ uint8
	Raw  []byte
}

// ParseSense extracts the sense key and additional sense code from fixed or
// descriptor format sense data. The second return is false when the buffer
// is too short or carries an unrecognized response code.
func ParseSense(b []byte) (*Sense, bool) {
	if len(b) < 4 {
		return nil, false
	}
	switch b[0] & 0x7f {
	case SENSE_FIXED_CURRENT, SENSE_FIXED_DEFERRED:
		if len(b) < 14 {
			return nil, false
		}
		return &Sense{Key: b[2] & 0x0f, ASC: b[12], ASCQ: b[13], Raw: b}, true
	case SENSE_DESC_CURRENT, SENSE_DESC_DEFERRED:
		return &Sense{Key: b[1] & 0x0f, ASC: b[2], ASCQ: b[3], Raw: b}, true
	}
	return nil, false
}

// FixedSense fills buf with fixed-format current sense data for the given
// key and additional sense code pair. Used by transports that synthesize
// their own check conditions.
func FixedSense(buf []byte, key, asc, ascq uint8) int {
	if len(buf) < 18 {
		return 0
	}
	for i := range buf[:18] {
		buf[i] = 0
	}
	buf[0] = SENSE_FIXED_CURRENT
	buf[2] = key & 0x0f
	buf[7] = 10 // additional sense length
	buf[12] = asc
	buf[13] = ascq
	return 18
}
