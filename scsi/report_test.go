// Copyright 2026 The dt-sub004 Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package scsi

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportErrorRendersSense(t *testing.T) {
	log, hook := test.NewNullLogger()

	sense := make([]byte, 64)
	FixedSense(sense, SKEY_MEDIUM_ERROR, 0x11, 0x00)
	req := &Request{CDB: Read10CDB(42, 1, false, false), Sense: sense}
	res := &Result{Status: STATUS_CHECK_CONDITION, SenseValid: true}

	ReportError(log, nil, "/dev/sdz", req, res)

	require.Len(t, hook.Entries, 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "/dev/sdz", entry.Data["device"])
	assert.Equal(t, "READ(10)", entry.Data["op"])
	assert.Contains(t, entry.Data["status"], "CHECK CONDITION")
	assert.Contains(t, entry.Data["sense_key"], "MEDIUM ERROR")
	assert.Contains(t, entry.Data["asc_ascq"], "UNRECOVERED READ ERROR")
}

func TestReportErrorToleratesAbsentFields(t *testing.T) {
	log, hook := test.NewNullLogger()

	// No CDB, no sense, no transport: nothing to render but it must not panic.
	ReportError(log, nil, "/dev/sdz", nil, &Result{Status: STATUS_BUSY})
	require.Len(t, hook.Entries, 1)
	entry := hook.LastEntry()
	assert.NotContains(t, entry.Data, "cdb")
	assert.NotContains(t, entry.Data, "sense_key")

	// Nil result and nil logger are both no-ops.
	ReportError(log, nil, "/dev/sdz", nil, nil)
	ReportError(nil, nil, "/dev/sdz", nil, &Result{})
	assert.Len(t, hook.Entries, 1)
}

func TestHexBytes(t *testing.T) {
	assert.Equal(t, "28 00 00 00 00 2a 00 01 00 00",
		hexBytes(Read10CDB(42, 256, false, false)))
	assert.Equal(t, "", hexBytes(nil))
}
