// Copyright 2026 The dt-sub004 Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package mem

import (
	"math/rand"
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocAlignment(t *testing.T) {
	r := New()
	page := uintptr(r.PageSize())

	for _, size := range []int{1, 64, 512, 4096, 65536} {
		for _, offset := range []int{0, 1, 8, 511, r.PageSize() - 1} {
			buf, err := r.Alloc(size, offset)
			require.NoError(t, err, "size=%d offset=%d", size, offset)
			require.Len(t, buf, size)

			addr := uintptr(unsafe.Pointer(&buf[0]))
			assert.Zero(t, (addr-uintptr(offset))%page,
				"size=%d offset=%d addr=%#x not page aligned", size, offset, addr)

			require.NoError(t, r.Free(buf))
		}
	}
	assert.Zero(t, r.Live())
}

func TestAllocZeroed(t *testing.T) {
	r := New()

	buf, err := r.Alloc(4096, 0)
	require.NoError(t, err)
	for i, b := range buf {
		require.Zero(t, b, "byte %d not zeroed", i)
	}
	require.NoError(t, r.Free(buf))
}

func TestAllocInvalidArgs(t *testing.T) {
	r := New()

	_, err := r.Alloc(0, 0)
	assert.Error(t, err)

	_, err = r.Alloc(-1, 0)
	assert.Error(t, err)

	_, err = r.Alloc(512, -1)
	assert.Error(t, err)

	_, err = r.Alloc(512, r.PageSize())
	assert.Error(t, err)

	assert.Zero(t, r.Live())
}

func TestDoubleFreeDetected(t *testing.T) {
	r := New()

	buf, err := r.Alloc(512, 0)
	require.NoError(t, err)

	require.NoError(t, r.Free(buf))
	assert.ErrorIs(t, r.Free(buf), ErrUnknownBuffer)
}

func TestFreeForeignBuffer(t *testing.T) {
	r := New()

	assert.ErrorIs(t, r.Free(nil), ErrUnknownBuffer)
	assert.ErrorIs(t, r.Free(make([]byte, 512)), ErrUnknownBuffer)
}

func TestFreeAnyOrder(t *testing.T) {
	r := New()

	bufs := make([][]byte, 16)
	for i := range bufs {
		buf, err := r.Alloc(256+i, i)
		require.NoError(t, err)
		bufs[i] = buf
	}
	assert.Equal(t, len(bufs), r.Live())

	rand.New(rand.NewSource(1)).Shuffle(len(bufs), func(i, j int) {
		bufs[i], bufs[j] = bufs[j], bufs[i]
	})
	for _, buf := range bufs {
		require.NoError(t, r.Free(buf))
	}
	assert.Zero(t, r.Live())
}

func TestConcurrentAllocFree(t *testing.T) {
	r := New()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				buf, err := r.Alloc(128, g%r.PageSize())
				if err != nil {
					t.Error(err)
					return
				}
				if err := r.Free(buf); err != nil {
					t.Error(err)
					return
				}
			}
		}(g)
	}
	wg.Wait()
	assert.Zero(t, r.Live())
}

func TestDefaultSingleton(t *testing.T) {
	assert.Same(t, Default(), Default())
}
