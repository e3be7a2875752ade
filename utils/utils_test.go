// Copyright 2026 The dt-sub004 Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "0 B", FormatBytes(0))
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1 KB", FormatBytes(1000))
	assert.Equal(t, "4.1 KB", FormatBytes(4096))
	assert.Equal(t, "1 GB", FormatBytes(1000000000))
}
