// Copyright 2026 The dt-sub004 Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Block unmapping via the external pass-through utility.

package device

import (
	"fmt"
	"os/exec"

	"github.com/pkg/errors"

	"github.com/RobinTMiller/dt-sub004/scsi"
)

// Overridable for tests.
var execCommand = exec.Command

// Unmap asks the external pass-through utility to unmap a block range.
// The utility's exit code decides the outcome: 0 is success, 255 is
// failure, anything else is a warning passed through as success.
func (s *Session) Unmap(lba, blocks uint64) error {
	cmd := execCommand(s.unmapTool,
		"dsf="+s.path,
		fmt.Sprintf("cdb=%x", scsi.SCSI_UNMAP),
		fmt.Sprintf("starting=%d", lba),
		fmt.Sprintf("blocks=%d", blocks),
		"enable=sense,recovery")

	err := cmd.Run()
	if err == nil {
		return nil
	}

	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return errors.Wrapf(err, "%s %s", s.unmapTool, s.path)
	}
	switch code := exitErr.ExitCode(); code {
	case 255:
		return errors.Errorf("device: unmap of %d blocks at lba %d failed (%s exit %d)",
			blocks, lba, s.unmapTool, code)
	default:
		if s.reportWarnings {
			s.log.WithField("device", s.path).
				Warnf("unmap utility exited %d, treating as warning", code)
		}
		return nil
	}
}
