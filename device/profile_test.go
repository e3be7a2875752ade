// Copyright 2026 The dt-sub004 Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package device

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProfile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadProfile(t *testing.T) {
	path := writeProfile(t, `
path: /dev/sdb
probe: both
block_length: 4096
capacity: 1048576
direct: true
secondary_io: true
report_errors: true
report_warnings: true
timeout: 30s
unmap_tool: spt
recovery:
  enabled: true
  delay: 250ms
  limit: 5
`)
	opts, err := LoadProfile(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/sdb", opts.Path)
	assert.Equal(t, ProbeBoth, opts.Probe)
	assert.Equal(t, uint32(4096), opts.BlockLength)
	assert.Equal(t, int64(1048576), opts.Capacity)
	assert.True(t, opts.Direct)
	assert.True(t, opts.SecondaryIO)
	assert.True(t, opts.ReportErrors)
	assert.True(t, opts.ReportWarnings)
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, "spt", opts.UnmapTool)
	assert.True(t, opts.Recovery.Enabled)
	assert.Equal(t, 250*time.Millisecond, opts.Recovery.Delay)
	assert.Equal(t, 5, opts.Recovery.Limit)
}

func TestLoadProfileDefaults(t *testing.T) {
	path := writeProfile(t, "path: /tmp/target.img\n")
	opts, err := LoadProfile(path)
	require.NoError(t, err)

	assert.Equal(t, ProbeNone, opts.Probe)
	assert.Zero(t, opts.Timeout)
	assert.False(t, opts.Recovery.Enabled)
}

func TestLoadProfileBadProbeMode(t *testing.T) {
	path := writeProfile(t, "path: /dev/sdb\nprobe: everything\n")
	_, err := LoadProfile(path)
	assert.ErrorContains(t, err, "unknown probe mode")
}

func TestLoadProfileBadDuration(t *testing.T) {
	path := writeProfile(t, "path: /dev/sdb\ntimeout: soon\n")
	_, err := LoadProfile(path)
	assert.ErrorContains(t, err, "timeout")
}

func TestLoadProfileMissingFile(t *testing.T) {
	_, err := LoadProfile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
