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

// Package uaccess provides the kernel's single-CPU exclusive-access cell:
// a lightweight substitute for a borrow checker, not a blocking mutex.
//
// Grounded on the UPSafeCell type used throughout the rCore original
// (original_source/task/pid.rs and friends): acquiring the cell asserts no
// other borrow is outstanding. Holding a guard across a scheduling point
// (arch.Switch) is a programmer error the same way it is in the source
// material; every operation that may reach proc.Schedule must drop its
// guard first.
package uaccess

import (
	"sync/atomic"

	"github.com/shiwenlong12/sentry-ch5b/internal/klog"
)

// Cell guards a single value of type T with single-threaded, reentrancy
// detecting access. It is not safe across real concurrency: this kernel
// assumes one processor and non-preemptible kernel code (spec §5).
type Cell[T any] struct {
	held atomic.Bool
	val  T
}

// New wraps an initial value.
func New[T any](val T) *Cell[T] {
	return &Cell[T]{val: val}
}

// Guard is the exclusive view returned by Access. Callers must call
// Release (or defer it) before the task that holds it reaches a scheduling
// point.
type Guard[T any] struct {
	cell *Cell[T]
}

// Access acquires exclusive access. A second Access call while a Guard
// from this cell is still outstanding is a fatal programmer error: it is
// the Go-idiomatic analogue of a RefCell double-borrow panic.
func (c *Cell[T]) Access() *Guard[T] {
	if !c.held.CompareAndSwap(false, true) {
		klog.Fatalf("uaccess: cell already held; re-entrant exclusive access")
	}
	return &Guard[T]{cell: c}
}

// Get returns a pointer to the guarded value for the lifetime of the
// guard.
func (g *Guard[T]) Get() *T {
	return &g.cell.val
}

// Release drops the guard, permitting a subsequent Access.
func (g *Guard[T]) Release() {
	if !g.cell.held.CompareAndSwap(true, false) {
		klog.Fatalf("uaccess: released a cell that was not held")
	}
}

// With runs fn with exclusive access and releases the guard before
// returning, for the common case where the critical section doesn't need
// to survive past a single call (avoids guard-held-across-switch bugs by
// construction).
func With[T any, R any](c *Cell[T], fn func(*T) R) R {
	g := c.Access()
	defer g.Release()
	return fn(g.Get())
}
