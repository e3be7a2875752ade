// Copyright 2026 The dt-sub004 Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package scsi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSenseFixed(t *testing.T) {
	buf := make([]byte, 18)
	n := FixedSense(buf, SKEY_ILLEGAL_REQUEST, ASC_LBA_OUT_OF_RANGE, 0x00)
	require.Equal(t, 18, n)

	sense, ok := ParseSense(buf)
	require.True(t, ok)
	assert.Equal(t, uint8(SKEY_ILLEGAL_REQUEST), sense.Key)
	assert.Equal(t, uint8(ASC_LBA_OUT_OF_RANGE), sense.ASC)
	assert.Equal(t, uint8(0x00), sense.ASCQ)
}

func TestParseSenseDescriptor(t *testing.T) {
	buf := []byte{SENSE_DESC_CURRENT, SKEY_MEDIUM_ERROR, 0x11, 0x01, 0, 0, 0, 0}
	sense, ok := ParseSense(buf)
	require.True(t, ok)
	assert.Equal(t, uint8(SKEY_MEDIUM_ERROR), sense.Key)
	assert.Equal(t, uint8(0x11), sense.ASC)
	assert.Equal(t, uint8(0x01), sense.ASCQ)
}

func TestParseSenseInvalid(t *testing.T) {
	_, ok := ParseSense(nil)
	assert.False(t, ok)

	_, ok = ParseSense([]byte{0x70, 0, 0})
	assert.False(t, ok, "fixed format shorter than 14 bytes")

	_, ok = ParseSense([]byte{0x42, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	assert.False(t, ok, "unrecognized response code")
}

func TestFixedSenseShortBuffer(t *testing.T) {
	assert.Zero(t, FixedSense(make([]byte, 8), SKEY_NOT_READY, 0x04, 0x01))
}

func TestSenseNames(t *testing.T) {
	assert.Equal(t, "ILLEGAL REQUEST", SenseKeyName(SKEY_ILLEGAL_REQUEST))
	assert.Equal(t, "UNKNOWN", SenseKeyName(0x0f))

	desc, ok := SenseCodeDescription(0x21, 0x00)
	require.True(t, ok)
	assert.Equal(t, "LOGICAL BLOCK ADDRESS OUT OF RANGE", desc)

	_, ok = SenseCodeDescription(0xee, 0xee)
	assert.False(t, ok)
}

func TestStatusError(t *testing.T) {
	err := &StatusError{Status: STATUS_BUSY}
	assert.Contains(t, err.Error(), "BUSY")

	err = &StatusError{
		Status: STATUS_CHECK_CONDITION,
		Sense:  &Sense{Key: SKEY_ILLEGAL_REQUEST, ASC: 0x21},
	}
	assert.Contains(t, err.Error(), "ILLEGAL REQUEST")
	assert.Contains(t, err.Error(), "LOGICAL BLOCK ADDRESS OUT OF RANGE")
}
