// Copyright 2026 The dt-sub004 Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package mem provides page-aligned buffer allocation for raw device I/O.
//
// Direct device I/O requires buffers aligned to the system page size, which
// the Go allocator does not guarantee. The registry over-allocates, hands out
// an aligned window, and remembers the raw block so the window can be
// released and scrubbed later. The aligned window is never itself a valid
// allocation unit; it must go back through the registry that produced it.
package mem

import (
	"os"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
)

// ErrUnknownBuffer is returned by Free when no live record matches the
// buffer. It indicates a double free or a foreign pointer, which is a
// programming error in the caller.
var ErrUnknownBuffer = errors.New("mem: unknown aligned buffer (double free or foreign pointer)")

// record maps an aligned window back to its raw allocation. Records form a
// head-inserted singly-linked list; the registry serves a handful of
// long-lived device buffers, so an O(n) scan on release is fine.
type record struct {
	aligned uintptr
	raw     []byte
	next    *record
}

// Registry tracks live aligned allocations. All methods are safe for
// concurrent use; one mutex guards the whole list.
type Registry struct {
	mu       sync.Mutex
	pageSize int
	live     *record
}

// New returns an empty registry using the system page size.
func New() *Registry {
	return &Registry{pageSize: os.Getpagesize()}
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the process-wide registry, initializing it on first use.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultReg = New()
	})
	return defaultReg
}

// PageSize reports the alignment unit used by this registry.
func (r *Registry) PageSize() int {
	return r.pageSize
}

// Alloc returns a zeroed buffer of length size whose address minus offset is
// page aligned. offset must lie in [0, pagesize). The buffer must be
// released through Free on the same registry.
func (r *Registry) Alloc(size, offset int) ([]byte, error) {
	if size <= 0 {
		return nil, errors.Errorf("mem: invalid aligned allocation size %d", size)
	}
	if offset < 0 || offset >= r.pageSize {
		return nil, errors.Errorf("mem: alignment offset %d outside [0, %d)", offset, r.pageSize)
	}

	// Over-allocate so a page boundary plus the requested offset always
	// fits, then carve the aligned window out of the raw block.
	raw := make([]byte, size+r.pageSize+offset)
	base := uintptr(unsafe.Pointer(&raw[0]))
	pad := 0
	if rem := int(base % uintptr(r.pageSize)); rem != 0 {
		pad = r.pageSize - rem
	}
	start := pad + offset
	buf := raw[start : start+size : start+size]

	r.mu.Lock()
	r.live = &record{
		aligned: uintptr(unsafe.Pointer(&buf[0])),
		raw:     raw,
		next:    r.live,
	}
	r.mu.Unlock()

	return buf, nil
}

// Free releases a buffer previously returned by Alloc, scrubbing the raw
// block it was carved from. Releasing a buffer twice, or one this registry
// never produced, returns ErrUnknownBuffer.
func (r *Registry) Free(buf []byte) error {
	if len(buf) == 0 {
		return errors.Wrap(ErrUnknownBuffer, "empty buffer")
	}
	addr := uintptr(unsafe.Pointer(&buf[0]))

	r.mu.Lock()
	defer r.mu.Unlock()

	for pp := &r.live; *pp != nil; pp = &(*pp).next {
		rec := *pp
		if rec.aligned != addr {
			continue
		}
		*pp = rec.next
		for i := range rec.raw {
			rec.raw[i] = 0
		}
		rec.raw = nil
		return nil
	}
	return ErrUnknownBuffer
}

// Live reports the number of outstanding aligned allocations. Useful for
// verifying teardown released everything.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for rec := r.live; rec != nil; rec = rec.next {
		n++
	}
	return n
}
