// Copyright 2024 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pid hands out and recycles small dense process identifiers.
//
// Grounded on original_source/task/pid.rs's PidAllocator/PidHandle: a
// stack-style recycling allocator (spec §4.1). Unlike the kernel's other
// global singletons it is guarded by a plain sync.Mutex rather than an
// exclusive-access cell; see the comment on global below.
package pid

import (
	"sync"

	"github.com/shiwenlong12/sentry-ch5b/internal/klog"
)

type allocator struct {
	mu       sync.Mutex // serializes Alloc/Release; see the comment on global for why this isn't uaccess.Cell
	current  int
	recycled []int
}

// The allocator is process-wide and outlives any single task, so it uses a
// plain mutex rather than uaccess.Cell: unlike a TCB or the ready queue, it
// is never held across a scheduling point (alloc/dealloc are single calls,
// never straddling arch.Switch).
var global = &allocator{}

// Handle owns a unique, non-negative process identifier. Its integer is
// strictly less than the allocator's high-water mark for as long as it is
// live. Releasing it returns the integer to the free list.
type Handle struct {
	n int
}

// Int returns the underlying identifier.
func (h Handle) Int() int { return h.n }

// Alloc returns a fresh Handle. The first allocation made (with no prior
// Release) yields 0.
func Alloc() Handle {
	global.mu.Lock()
	defer global.mu.Unlock()

	if n := len(global.recycled); n > 0 {
		v := global.recycled[n-1]
		global.recycled = global.recycled[:n-1]
		return Handle{n: v}
	}
	v := global.current
	global.current++
	return Handle{n: v}
}

// Release returns the pid to the free list. Releasing a pid that was never
// allocated at this point, or releasing it twice, is a double-free: a
// fatal programmer error per spec §7, not a recoverable condition.
func (h Handle) Release() {
	global.mu.Lock()
	defer global.mu.Unlock()

	if h.n >= global.current {
		klog.Fatalf("pid: release of pid %d which was never allocated (current=%d)", h.n, global.current)
	}
	for _, r := range global.recycled {
		if r == h.n {
			klog.Fatalf("pid: double free of pid %d", h.n)
		}
	}
	global.recycled = append(global.recycled, h.n)
}
