// Copyright 2026 The dt-sub004 Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Failed-exchange rendering for the diagnostic sink.

package scsi

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// ReportError renders a failed exchange to the diagnostic sink: device
// path, CDB bytes and operation name, status, host/driver status where the
// OS has the concept, and decoded sense data when present. Absent fields
// are omitted; the reporter itself never fails.
func ReportError(log logrus.FieldLogger, t Transport, path string, req *Request, res *Result) {
	if log == nil || res == nil {
		return
	}

	fields := logrus.Fields{
		"device": path,
		"status": fmt.Sprintf("%#02x (%s)", res.Status, StatusName(res.Status)),
	}
	if req != nil && len(req.CDB) > 0 {
		fields["cdb"] = hexBytes(req.CDB)
		fields["op"] = OpcodeName(req.CDB[0])
	}
	if t != nil {
		if msg := t.HostStatusMessage(res.HostStatus); msg != "" {
			fields["host_status"] = fmt.Sprintf("%#02x (%s)", res.HostStatus, msg)
		}
		if msg := t.DriverStatusMessage(res.DriverStatus); msg != "" {
			fields["driver_status"] = fmt.Sprintf("%#02x (%s)", res.DriverStatus, msg)
		}
	}
	if res.SenseValid && req != nil {
		if sense, ok := ParseSense(req.Sense); ok {
			fields["sense_key"] = fmt.Sprintf("%#02x (%s)", sense.Key, SenseKeyName(sense.Key))
			ascq := fmt.Sprintf("%#02x/%#02x", sense.ASC, sense.ASCQ)
			if desc, ok := SenseCodeDescription(sense.ASC, sense.ASCQ); ok {
				ascq += " (" + desc + ")"
			}
			fields["asc_ascq"] = ascq
		}
	}

	log.WithFields(fields).Error("SCSI command failed")
}

// hexBytes renders a byte slice as space-separated hex pairs.
func hexBytes(b []byte) string {
	var sb strings.Builder
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02x", c)
	}
	return sb.String()
}
