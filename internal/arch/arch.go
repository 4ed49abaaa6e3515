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

// Package arch models the architecture-dependent surface this kernel
// leans on: the task context a context switch swaps, and the trap frame a
// trap into the kernel saves registers into.
//
// Grounded on pkg/sentry/arch/arch.go's contextInterface: that file
// documents the full architecture-dependent call surface even though
// gVisor only has one concrete implementation per build, "in order to see
// the entire... call surface it must support." We do the same here: the
// trap trampoline and the actual register-switch assembly are named out
// of scope by spec §1, so TaskContext/TrapContext below are the
// documented shape of what the core consumes from them, not a full
// implementation.
package arch

// TaskContext is the scheduler-visible continuation of a task's control
// flow: on real hardware a saved set of callee-saved registers and a
// stack pointer, swapped atomically by the switch primitive (spec §4.5,
// §9). The register-switch assembly itself is out of scope here (spec
// §1), so this is a documented stub carrying just enough state —
// dispatch count — for tests to observe scheduling order without a real
// register file.
type TaskContext struct {
	dispatches uint64
}

// NewTaskContext returns a zeroed context. Used both for the idle flow's
// own context and for priming a task's first dispatch (spec's "task_cx...
// primed for trap-return").
func NewTaskContext() *TaskContext {
	return &TaskContext{}
}

// Dispatches reports how many times this context has been switched into,
// for tests that want to observe scheduling order.
func (tc *TaskContext) Dispatches() uint64 { return tc.dispatches }

// Switch is the one opaque primitive spec §9 calls out: "a
// platform-specific routine that swaps callee-saved registers and the
// stack pointer between two TaskContext slots." Real register-switch
// assembly is out of scope (spec §1); since this kernel drives task
// execution synchronously rather than on a real per-task stack, the only
// observable effect a caller may depend on is that to becomes current —
// recorded here as a dispatch count bump.
func Switch(from, to *TaskContext) {
	_ = from
	to.dispatches++
}

// TrapContext is the register snapshot saved on entry from user to kernel
// mode, reachable via the fixed TRAP_CONTEXT virtual address in both
// address spaces (spec §6). The core only ever constructs and patches it;
// saving/restoring the rest of the general-purpose registers on every trap
// is the trampoline's job and is out of scope.
type TrapContext struct {
	// Entry is the user-mode instruction pointer to resume at.
	Entry uintptr
	// UserSP is the user stack pointer.
	UserSP uintptr
	// KernelToken is the kernel page table's opaque address-space token.
	KernelToken uintptr
	// KernelSP is the top of this task's kernel stack.
	KernelSP uintptr
	// TrapHandler is the address of the kernel's trap entry point.
	TrapHandler uintptr

	// Regs stands in for the general-purpose register file a real trap
	// frame would also carry; fork copies it verbatim so a child resumes
	// with the parent's register state (spec §4.3).
	Regs [32]uint64
}

// NewTrapContext builds the initial trap frame used to enter a task for
// the first time (TaskControlBlock.New/Exec/Spawn in spec §4.3).
func NewTrapContext(entry, userSP, kernelToken, kernelSP, trapHandler uintptr) *TrapContext {
	return &TrapContext{
		Entry:       entry,
		UserSP:      userSP,
		KernelToken: kernelToken,
		KernelSP:    kernelSP,
		TrapHandler: trapHandler,
	}
}

// Clone deep-copies the trap frame, used when fork duplicates the
// parent's address space (and with it, the parent's trap context page).
func (tc *TrapContext) Clone() *TrapContext {
	cp := *tc
	return &cp
}
