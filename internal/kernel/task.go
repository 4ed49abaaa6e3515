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

// Package kernel implements the task control block and its lifecycle
// operations (spec §3, §4.3), grounded on original_source/task/task.rs
// and task/mod.rs, with the Go-idiomatic TaskConfig/newTask shape of
// katexochen-gvisor's pkg/sentry/kernel/task_start.go informing the
// construction helpers below.
package kernel

import (
	"github.com/shiwenlong12/sentry-ch5b/internal/arch"
	"github.com/shiwenlong12/sentry-ch5b/internal/kconfig"
	"github.com/shiwenlong12/sentry-ch5b/internal/klog"
	"github.com/shiwenlong12/sentry-ch5b/internal/kstack"
	"github.com/shiwenlong12/sentry-ch5b/internal/mm"
	"github.com/shiwenlong12/sentry-ch5b/internal/pid"
	"github.com/shiwenlong12/sentry-ch5b/internal/uaccess"
)

// TaskStatus is a task's scheduling state (spec §3).
type TaskStatus int

const (
	UnInit TaskStatus = iota
	Ready
	Running
	Zombie
)

func (s TaskStatus) String() string {
	switch s {
	case UnInit:
		return "UnInit"
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Zombie:
		return "Zombie"
	default:
		return "Unknown"
	}
}

// taskInner holds every mutable field of a TaskControlBlock, guarded by
// the task's own exclusive-access cell.
//
// The parent back-reference is a plain *Task rather than a weak pointer:
// the rCore original uses Arc/Weak specifically to avoid an ownership
// cycle that would otherwise leak memory (Rust has no cycle-collecting
// GC). Go's garbage collector reclaims cycles on its own, so there is no
// analogous leak to guard against; a plain pointer held alongside the
// owning []*Task in children is the idiomatic Go translation (see
// DESIGN.md).
type taskInner struct {
	trapCxPPN mm.VPN
	trapCx    *arch.TrapContext
	baseSize  mm.VirtAddr
	taskCx    *arch.TaskContext
	status    TaskStatus
	memSet    *mm.MemorySet
	parent    *Task
	children  []*Task
	exitCode  int32

	startTime    int64 // microseconds
	syscallTimes [kconfig.MaxSyscallNum]uint32

	priority uint8
	pass     uint8
}

// Task is the Go name for the spec's TaskControlBlock: immutable identity
// plus a mutable inner guarded by an exclusive-access cell.
type Task struct {
	pid          pid.Handle
	kernelStack  *kstack.KernelStack
	inner        *uaccess.Cell[taskInner]
}

// trapHandlerAddr stands in for the address of the kernel's trap entry
// point; the trap trampoline itself is out of scope (spec §1), so this is
// never dereferenced, only carried in the trap frame the way the
// original's trap_handler as usize is.
const trapHandlerAddr = uintptr(0)

func newTrapContext(entry, userSP mm.VirtAddr, kernelSP mm.VirtAddr) *arch.TrapContext {
	return arch.NewTrapContext(uintptr(entry), uintptr(userSP), mm.KernelSpace().Token(), uintptr(kernelSP), trapHandlerAddr)
}

// NewInitTask builds the one task created directly from an ELF image
// rather than via fork/spawn: INITPROC (spec §4.3's TaskControlBlock::new).
func NewInitTask(image mm.ELFImage, elf []byte) (*Task, error) {
	memSet, userSP, entry, err := image.BuildAddressSpace(elf)
	if err != nil {
		return nil, err
	}

	pidH := pid.Alloc()
	ks, err := kstack.New(pidH.Int(), mm.KernelSpace())
	if err != nil {
		pidH.Release()
		return nil, err
	}

	t := &Task{
		pid:         pidH,
		kernelStack: ks,
		inner: uaccess.New(taskInner{
			trapCxPPN: mm.PageOf(mm.VirtAddr(kconfig.TrapContext)),
			trapCx:    newTrapContext(entry, userSP, ks.Top()),
			baseSize:  userSP,
			taskCx:    arch.NewTaskContext(),
			status:    Ready,
			memSet:    memSet,
			priority:  16,
		}),
	}
	return t, nil
}

// Exec replaces the task's address space with one built from elf,
// re-initializing the trap frame but leaving pid, kernel stack, priority,
// pass, syscall counters, parent, and children untouched (spec §4.3).
func (t *Task) Exec(image mm.ELFImage, elf []byte) error {
	memSet, userSP, entry, err := image.BuildAddressSpace(elf)
	if err != nil {
		return err
	}

	g := t.inner.Access()
	defer g.Release()
	in := g.Get()
	in.memSet = memSet
	in.trapCxPPN = mm.PageOf(mm.VirtAddr(kconfig.TrapContext))
	in.baseSize = userSP
	in.trapCx = newTrapContext(entry, userSP, t.kernelStack.Top())
	return nil
}

// Fork creates a child task whose address space is a deep copy of the
// parent's (spec §4.3; Non-goals exclude copy-on-write fork). The child
// inherits the parent's register state via its cloned trap frame, except
// kernel_sp, which is patched to the child's own kernel stack.
func (t *Task) Fork() (*Task, error) {
	g := t.inner.Access()
	childMemSet := mm.FromExistedUser(g.Get().memSet)
	baseSize := g.Get().baseSize
	childTrap := g.Get().trapCx.Clone()
	g.Release()

	pidH := pid.Alloc()
	ks, err := kstack.New(pidH.Int(), mm.KernelSpace())
	if err != nil {
		pidH.Release()
		return nil, err
	}
	childTrap.KernelSP = uintptr(ks.Top())

	child := &Task{
		pid:         pidH,
		kernelStack: ks,
		inner: uaccess.New(taskInner{
			trapCxPPN: mm.PageOf(mm.VirtAddr(kconfig.TrapContext)),
			trapCx:    childTrap,
			baseSize:  baseSize,
			taskCx:    arch.NewTaskContext(),
			status:    Ready,
			memSet:    childMemSet,
			parent:    t,
			priority:  16,
		}),
	}

	pg := t.inner.Access()
	pg.Get().children = append(pg.Get().children, child)
	pg.Release()

	return child, nil
}

// Spawn builds a child whose address space comes from elf (not copied
// from the parent) with a fresh trap frame, equivalent to fork+exec in
// one step (spec §4.3).
func (t *Task) Spawn(image mm.ELFImage, elf []byte) (*Task, error) {
	memSet, userSP, entry, err := image.BuildAddressSpace(elf)
	if err != nil {
		return nil, err
	}

	g := t.inner.Access()
	baseSize := g.Get().baseSize
	g.Release()

	pidH := pid.Alloc()
	ks, err := kstack.New(pidH.Int(), mm.KernelSpace())
	if err != nil {
		pidH.Release()
		return nil, err
	}

	child := &Task{
		pid:         pidH,
		kernelStack: ks,
		inner: uaccess.New(taskInner{
			trapCxPPN: mm.PageOf(mm.VirtAddr(kconfig.TrapContext)),
			trapCx:    newTrapContext(entry, userSP, ks.Top()),
			baseSize:  baseSize,
			taskCx:    arch.NewTaskContext(),
			status:    Ready,
			memSet:    memSet,
			parent:    t,
			priority:  16,
		}),
	}

	pg := t.inner.Access()
	pg.Get().children = append(pg.Get().children, child)
	pg.Release()

	return child, nil
}

// Exit marks the task Zombie, records its exit code, reparents every
// child to INITPROC, and releases its data-bearing frames (spec §4.3).
// Page tables (here: the token and the empty area set) remain for later
// reaping by Waitpid.
func (t *Task) Exit(code int32) {
	g := t.inner.Access()
	in := g.Get()
	in.status = Zombie
	in.exitCode = code
	children := in.children
	in.children = nil
	in.memSet.RecycleDataPages()
	g.Release()

	initProc := InitProc()
	ig := initProc.inner.Access()
	for _, c := range children {
		cg := c.inner.Access()
		cg.Get().parent = initProc
		cg.Release()
		ig.Get().children = append(ig.Get().children, c)
	}
	ig.Release()
}

// Waitpid implements the syscall's TCB-level semantics. target == -1
// matches any child, otherwise only a child with that pid.
//
// Returns resultPid == -1 if no matching child exists, -2 if matching
// children exist but none are Zombie yet, otherwise the reaped child's
// pid with exitCode valid (spec §4.3).
func (t *Task) Waitpid(target int) (resultPid int, exitCode int32) {
	g := t.inner.Access()
	in := g.Get()

	foundAny := false
	zombieIdx := -1
	for i, c := range in.children {
		if target != -1 && c.PID() != target {
			continue
		}
		foundAny = true
		if c.Status() == Zombie {
			zombieIdx = i
			break
		}
	}
	if zombieIdx == -1 {
		g.Release()
		if !foundAny {
			return -1, 0
		}
		return -2, 0
	}

	child := in.children[zombieIdx]
	in.children = append(in.children[:zombieIdx], in.children[zombieIdx+1:]...)
	g.Release()

	pidVal := child.PID()
	code := child.ExitCode()
	child.release()
	return pidVal, code
}

// release tears down a reaped zombie's remaining resources: the PidHandle
// and KernelStack, in that order, once Waitpid has removed the sole
// owning reference from its parent's children.
func (t *Task) release() {
	pidVal := t.PID()
	t.pid.Release()
	if err := t.kernelStack.Close(); err != nil {
		klog.Warnf("kernel: closing kernel stack for pid %d: %v", pidVal, err)
	}
}

// --- accessors ---

// PID returns the task's process identifier.
func (t *Task) PID() int { return t.pid.Int() }

// Status returns the current scheduling status.
func (t *Task) Status() TaskStatus {
	return uaccess.With(t.inner, func(in *taskInner) TaskStatus { return in.status })
}

// SetStatus sets the current scheduling status.
func (t *Task) SetStatus(s TaskStatus) {
	uaccess.With(t.inner, func(in *taskInner) struct{} { in.status = s; return struct{}{} })
}

// ExitCode returns the code passed to Exit.
func (t *Task) ExitCode() int32 {
	return uaccess.With(t.inner, func(in *taskInner) int32 { return in.exitCode })
}

// Parent returns the non-owning parent reference, or nil for INITPROC.
func (t *Task) Parent() *Task {
	return uaccess.With(t.inner, func(in *taskInner) *Task { return in.parent })
}

// Children returns a snapshot of the owned child slice.
func (t *Task) Children() []*Task {
	return uaccess.With(t.inner, func(in *taskInner) []*Task {
		out := make([]*Task, len(in.children))
		copy(out, in.children)
		return out
	})
}

// BaseSize returns the high watermark of user-data virtual address.
func (t *Task) BaseSize() mm.VirtAddr {
	return uaccess.With(t.inner, func(in *taskInner) mm.VirtAddr { return in.baseSize })
}

// MemorySet returns the task's address space.
func (t *Task) MemorySet() *mm.MemorySet {
	return uaccess.With(t.inner, func(in *taskInner) *mm.MemorySet { return in.memSet })
}

// UserToken returns the task's address-space token, used by the trap
// handler to translate user pointers (spec §4.5).
func (t *Task) UserToken() uintptr {
	return uaccess.With(t.inner, func(in *taskInner) uintptr { return in.memSet.Token() })
}

// TrapContext returns the mutable trap frame the trap handler reads
// syscall arguments from (spec §4.5).
func (t *Task) TrapContext() *arch.TrapContext {
	return uaccess.With(t.inner, func(in *taskInner) *arch.TrapContext { return in.trapCx })
}

// TrapContextPPN returns the physical page number the trap frame lives
// in. In this model the frame allocator is out of scope, so the "page
// number" is simply the VPN of the fixed TRAP_CONTEXT address: every task
// maps exactly one such page, and the real lookup is standing in for
// "translate TRAP_CONTEXT in this task's page table" (spec §4.3).
func (t *Task) TrapContextPPN() mm.VPN {
	return uaccess.With(t.inner, func(in *taskInner) mm.VPN { return in.trapCxPPN })
}

// TaskContext returns the scheduler-visible continuation used by
// arch.Switch.
func (t *Task) TaskContext() *arch.TaskContext {
	return uaccess.With(t.inner, func(in *taskInner) *arch.TaskContext { return in.taskCx })
}

// StartTime returns the microsecond timestamp of first dispatch, or 0 if
// the task has not yet been dispatched.
func (t *Task) StartTime() int64 {
	return uaccess.With(t.inner, func(in *taskInner) int64 { return in.startTime })
}

// SetStartTimeIfZero records the microsecond timestamp of first dispatch,
// the first time it is called.
func (t *Task) SetStartTimeIfZero(nowUS int64) {
	uaccess.With(t.inner, func(in *taskInner) struct{} {
		if in.startTime == 0 {
			in.startTime = nowUS
		}
		return struct{}{}
	})
}

// IncSyscall increments the per-task call count for syscall id (spec
// §4.6). An out-of-range id is a programmer error in the dispatcher, not
// here, so it is silently ignored defensively rather than doubly fataled.
func (t *Task) IncSyscall(id int) {
	uaccess.With(t.inner, func(in *taskInner) struct{} {
		if id >= 0 && id < len(in.syscallTimes) {
			in.syscallTimes[id]++
		}
		return struct{}{}
	})
}

// SyscallTimes returns a copy of the per-syscall-id call counts.
func (t *Task) SyscallTimes() [kconfig.MaxSyscallNum]uint32 {
	return uaccess.With(t.inner, func(in *taskInner) [kconfig.MaxSyscallNum]uint32 { return in.syscallTimes })
}

// Priority returns the stride scheduler priority, implementing
// sched.Task.
func (t *Task) Priority() uint8 {
	return uaccess.With(t.inner, func(in *taskInner) uint8 { return in.priority })
}

// SetPriority sets the stride scheduler priority. Callers (the
// set_priority syscall) are responsible for rejecting values below 2
// (spec §4.7); this setter trusts its input.
func (t *Task) SetPriority(p uint8) {
	uaccess.With(t.inner, func(in *taskInner) struct{} { in.priority = p; return struct{}{} })
}

// Pass returns the stride accumulator, implementing sched.Task.
func (t *Task) Pass() uint8 {
	return uaccess.With(t.inner, func(in *taskInner) uint8 { return in.pass })
}

// AddPass advances the stride accumulator by delta (modular 8-bit
// arithmetic; overflow wraps, which is exactly what the scheduler's
// wraparound comparison expects), implementing sched.Task.
func (t *Task) AddPass(delta uint8) {
	uaccess.With(t.inner, func(in *taskInner) struct{} { in.pass += delta; return struct{}{} })
}

// KernelStackTop returns the top of this task's kernel stack.
func (t *Task) KernelStackTop() mm.VirtAddr { return t.kernelStack.Top() }
