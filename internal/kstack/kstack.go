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

// Package kstack reserves per-process guarded kernel stack regions inside
// the kernel address space, keyed by pid (spec §4.2).
package kstack

import (
	"github.com/shiwenlong12/sentry-ch5b/internal/kconfig"
	"github.com/shiwenlong12/sentry-ch5b/internal/mm"
)

// Position returns the [bottom, top) virtual range of the kernel stack
// belonging to pid, laid out below TRAMPOLINE with a one-page guard gap
// between consecutive slots (spec §3 KernelStack invariant).
func Position(pid int) (bottom, top mm.VirtAddr) {
	top = mm.VirtAddr(kconfig.Trampoline) - mm.VirtAddr(pid)*(kconfig.KernelStackSize+kconfig.PageSize)
	bottom = top - kconfig.KernelStackSize
	return bottom, top
}

// KernelStack owns one mapped, guarded kernel-stack slot. Its lifetime is
// tied to the TaskControlBlock that owns it; Close unmaps the region.
type KernelStack struct {
	pid     int
	space   mm.AddressSpace
	top     mm.VirtAddr
	bottom  mm.VirtAddr
	started mm.VPN
	closed  bool
}

// New maps a fresh kernel stack for pid into space (the kernel's own
// address space).
func New(pid int, space mm.AddressSpace) (*KernelStack, error) {
	bottom, top := Position(pid)
	if err := space.InsertFramedArea(bottom, top, mm.PermR|mm.PermW); err != nil {
		return nil, err
	}
	return &KernelStack{
		pid:     pid,
		space:   space,
		top:     top,
		bottom:  bottom,
		started: mm.PageOf(bottom),
	}, nil
}

// Top returns the current stack-top address, carried as the kernel_sp of
// the task's trap frame.
func (k *KernelStack) Top() mm.VirtAddr { return k.top }

// Close unmaps the stack's region by its start VPN, matching the
// original's Drop impl. Safe to reuse the slot only after this returns
// (spec §4.2 precondition): the caller must have already dropped every
// other reference to the owning TCB.
func (k *KernelStack) Close() error {
	if k.closed {
		return nil
	}
	k.closed = true
	return k.space.RemoveAreaWithStartVPN(k.started)
}
