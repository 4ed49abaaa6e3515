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

// Package kconfig holds the kernel's named configuration constants
// (spec §6 "Config constants"). Kept in its own leaf package since
// internal/mm, internal/kstack, internal/kernel, and internal/syscalls all
// need a subset of them and none of those packages should import each
// other just to share integers.
package kconfig

const (
	// PageSize is the size in bytes of one virtual/physical page.
	PageSize = 4096

	// KernelStackSize is the fixed size of one process's kernel stack.
	KernelStackSize = 8 * PageSize

	// Trampoline is the fixed top-of-address-space virtual address the
	// trap entry/exit trampoline (out of scope, spec §1) is mapped at.
	// Kernel stacks are laid out below it, one guarded slot per pid.
	Trampoline = 0xffff_ffff_ffff_f000

	// TrapContext is the fixed virtual address, in both user and kernel
	// address spaces, at which a task's trap frame is mapped (spec §6).
	TrapContext = Trampoline - PageSize

	// MaxSyscallNum sizes the per-task syscall accounting array.
	MaxSyscallNum = 500

	// BigStride is the stride scheduler's default step budget; must fit
	// in a uint8 (spec §4.4).
	BigStride = 255
)
