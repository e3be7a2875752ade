// Copyright 2026 The dt-sub004 Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

//go:build !linux && !solaris && !windows

// Stub backend for platforms without a pass-through mechanism.

package scsi

import (
	"runtime"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type stubTransport struct {
	noReset
	noHostStatus

	log logrus.FieldLogger
}

func newTransport(log logrus.FieldLogger) Transport {
	return &stubTransport{log: log}
}

func (t *stubTransport) Open(path string) error {
	return errors.Errorf("scsi: pass-through not supported on %s", runtime.GOOS)
}

func (t *stubTransport) Close() error { return nil }

func (t *stubTransport) Execute(req *Request) (*Result, error) {
	return nil, ErrNotOpen
}

func (t *stubTransport) Retriable(err error) bool { return false }
