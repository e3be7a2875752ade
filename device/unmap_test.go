// Copyright 2026 The dt-sub004 Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package device

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUnmapCommand re-runs the test binary as the unmap utility, exiting
// with the requested code and recording its argv via the environment.
func fakeUnmapCommand(t *testing.T, exit int, argv *[]string) func(string, ...string) *exec.Cmd {
	t.Helper()
	return func(command string, args ...string) *exec.Cmd {
		*argv = append([]string{command}, args...)
		cs := append([]string{"-test.run=TestUnmapHelperProcess", "--", command}, args...)
		cmd := exec.Command(os.Args[0], cs...)
		cmd.Env = append(os.Environ(),
			"GO_UNMAP_HELPER=1",
			fmt.Sprintf("GO_UNMAP_EXIT=%d", exit))
		return cmd
	}
}

// TestUnmapHelperProcess is not a real test; it is the subprocess the fake
// command launches.
func TestUnmapHelperProcess(t *testing.T) {
	if os.Getenv("GO_UNMAP_HELPER") != "1" {
		return
	}
	code, _ := strconv.Atoi(os.Getenv("GO_UNMAP_EXIT"))
	os.Exit(code)
}

func unmapSession() *Session {
	return &Session{
		path:           "/dev/sdz",
		log:            quietLogger(),
		unmapTool:      "spt",
		reportWarnings: true,
	}
}

func TestUnmapSuccess(t *testing.T) {
	defer func() { execCommand = exec.Command }()
	var argv []string
	execCommand = fakeUnmapCommand(t, 0, &argv)

	s := unmapSession()
	require.NoError(t, s.Unmap(100, 8))

	joined := strings.Join(argv, " ")
	assert.Equal(t, "spt", argv[0])
	assert.Contains(t, joined, "dsf=/dev/sdz")
	assert.Contains(t, joined, "cdb=42")
	assert.Contains(t, joined, "starting=100")
	assert.Contains(t, joined, "blocks=8")
	assert.Contains(t, joined, "enable=sense,recovery")
}

func TestUnmapFailure(t *testing.T) {
	defer func() { execCommand = exec.Command }()
	var argv []string
	execCommand = fakeUnmapCommand(t, 255, &argv)

	err := unmapSession().Unmap(0, 16)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmap")
}

func TestUnmapWarningExitIsSuccess(t *testing.T) {
	defer func() { execCommand = exec.Command }()
	var argv []string
	execCommand = fakeUnmapCommand(t, 2, &argv)

	assert.NoError(t, unmapSession().Unmap(0, 16))
}

func TestUnmapMissingUtility(t *testing.T) {
	s := unmapSession()
	s.unmapTool = "/nonexistent/definitely-not-a-tool"
	assert.Error(t, s.Unmap(0, 1))
}
