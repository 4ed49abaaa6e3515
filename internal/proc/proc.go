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

// Package proc implements the processor: the CPU-side state split out of
// the ready queue (spec §4.5), grounded on
// original_source/task/processor.rs and task/mod.rs's
// suspend_current_and_run_next/exit_current_and_run_next.
//
// Real hardware jumps directly into a task's saved register file and only
// returns to the idle flow when that task later traps back in. Since the
// trap trampoline and register-switch assembly are both out of scope
// (spec §1), this package drives dispatch synchronously instead: RunTasks
// calls a caller-supplied hook once per scheduling quantum, and the hook
// is expected to run the task's program (via internal/syscalls.Dispatch)
// until it suspends or exits, at which point arch.Switch's dispatch-count
// bump is the only observable trace of "control left this task" — see
// internal/arch and DESIGN.md.
package proc

import (
	"time"

	"github.com/shiwenlong12/sentry-ch5b/internal/arch"
	"github.com/shiwenlong12/sentry-ch5b/internal/kconfig"
	"github.com/shiwenlong12/sentry-ch5b/internal/kernel"
	"github.com/shiwenlong12/sentry-ch5b/internal/klog"
	"github.com/shiwenlong12/sentry-ch5b/internal/sched"
	"github.com/shiwenlong12/sentry-ch5b/internal/uaccess"
)

type processorState struct {
	current    *kernel.Task
	idleTaskCx *arch.TaskContext
}

var global = uaccess.New(processorState{idleTaskCx: arch.NewTaskContext()})

// readyQueue is the kernel's single ready queue (the Go analogue of
// TASK_MANAGER). ConfigureBigStride may replace it once, at boot, before
// any task is added.
var readyQueue = sched.NewQueue(0)

// bootTime anchors the monotonic microsecond clock original_source's
// timer::get_time_us() provides; StartTime/GetRunTimeUS are both relative
// to it, so only their difference is meaningful.
var bootTime = time.Now()

func nowUS() int64 { return time.Since(bootTime).Microseconds() }

// ConfigureBigStride replaces the ready queue's stride step budget.
// Boot-time only: calling it after tasks have been added discards them.
func ConfigureBigStride(bigStride uint8) {
	readyQueue = sched.NewQueue(bigStride)
}

// AddTask enqueues t as Ready, the only place an entry enters the ready
// queue (spec §4.4's Queue.Add, exposed here as the processor-facing
// add_task equivalent).
func AddTask(t *kernel.Task) {
	t.SetStatus(kernel.Ready)
	readyQueue.Add(t)
}

// ReadyLen reports how many tasks are currently Ready, for diagnostics
// and tests (not present in the original, which has no public queue
// introspection, but harmless to expose here).
func ReadyLen() int { return readyQueue.Len() }

// TakeCurrentTask removes and returns the task currently attributed to
// this processor, leaving it with none (spec §4.5's take_current_task).
func TakeCurrentTask() *kernel.Task {
	return uaccess.With(global, func(s *processorState) *kernel.Task {
		t := s.current
		s.current = nil
		return t
	})
}

// CurrentTask returns the task currently attributed to this processor, or
// nil if none (spec §4.5's current_task).
func CurrentTask() *kernel.Task {
	return uaccess.With(global, func(s *processorState) *kernel.Task { return s.current })
}

func mustCurrentTask(who string) *kernel.Task {
	t := CurrentTask()
	if t == nil {
		klog.Fatalf("proc: %s called with no current task", who)
	}
	return t
}

// CurrentUserToken returns the current task's address-space token (spec
// §4.5's current_user_token).
func CurrentUserToken() uintptr {
	return mustCurrentTask("current_user_token").UserToken()
}

// CurrentTrapContext returns the current task's trap frame (spec §4.5's
// current_trap_cx).
func CurrentTrapContext() *arch.TrapContext {
	return mustCurrentTask("current_trap_cx").TrapContext()
}

// RunTasks is the idle control flow (spec §4.5's run_tasks): it fetches a
// ready task and dispatches it, looping until the ready queue is empty.
// hook may drive the task through any number of syscalls — including one
// or more yields — before finally calling ExitCurrentAndRunNext; a yield
// in the middle leaves the task attributed as current throughout (see
// SuspendCurrentAndRunNext), since this model never actually hands the
// CPU to another goroutine mid-hook. hook must eventually either return
// with the task back on the ready queue (having called
// SuspendCurrentAndRunNext) or drive it to Zombie (ExitCurrentAndRunNext)
// before returning.
func RunTasks(hook func(t *kernel.Task)) {
	for {
		next, ok := readyQueue.Fetch()
		if !ok {
			return
		}
		task := next.(*kernel.Task)

		task.SetStatus(kernel.Running)
		task.SetStartTimeIfZero(nowUS())

		idleCx := uaccess.With(global, func(s *processorState) *arch.TaskContext { return s.idleTaskCx })
		arch.Switch(idleCx, task.TaskContext())

		uaccess.With(global, func(s *processorState) struct{} { s.current = task; return struct{}{} })
		hook(task)
	}
}

// Schedule returns control to the idle flow for a new round of scheduling
// (spec §4.5's schedule): every path that leaves Running calls it exactly
// once. switchedTaskCx is the context being switched away from; for an
// exiting task that context is thrown away immediately after (the
// original's "we do not have to save task context").
func Schedule(switchedTaskCx *arch.TaskContext) {
	idleCx := uaccess.With(global, func(s *processorState) *arch.TaskContext { return s.idleTaskCx })
	arch.Switch(switchedTaskCx, idleCx)
}

// SuspendCurrentAndRunNext moves the current task back to Ready and onto
// the tail of the ready queue, then returns to the idle flow (spec §4.5's
// suspend_current_and_run_next).
//
// arch.Switch never actually parks this goroutine and resumes another
// task's (it's a bookkeeping no-op, see internal/arch), so control
// returns here and keeps executing as the same task rather than as
// whatever RunTasks would otherwise dispatch next. The task's processor
// attribution is therefore re-established immediately after the
// Schedule bookkeeping: a hook that issues further syscalls on this task
// after a yield, without returning to RunTasks in between, must still
// find a non-nil current task (spec §8's "a task issues several yields
// before exiting" scenario depends on this).
func SuspendCurrentAndRunNext() {
	task := CurrentTask()
	if task == nil {
		klog.Fatalf("proc: suspend with no current task")
	}
	task.SetStatus(kernel.Ready)
	readyQueue.Add(task)
	Schedule(task.TaskContext())
	task.SetStatus(kernel.Running)
	uaccess.With(global, func(s *processorState) struct{} { s.current = task; return struct{}{} })
}

// ExitCurrentAndRunNext marks the current task Zombie with exitCode,
// reparents its children to INITPROC, recycles its data pages, and
// returns to the idle flow (spec §4.5's exit_current_and_run_next). The
// task is never dispatched again.
//
// readyQueue.Remove guards against the case where this same task was
// re-queued by an earlier SuspendCurrentAndRunNext call within the same
// hook invocation (yield followed by exit, with no return to RunTasks in
// between): without it, the stale entry would resurface on a later
// Fetch as a task that's already Zombie.
func ExitCurrentAndRunNext(exitCode int32) {
	task := TakeCurrentTask()
	if task == nil {
		klog.Fatalf("proc: exit with no current task")
	}
	readyQueue.Remove(task)
	task.Exit(exitCode)
	Schedule(arch.NewTaskContext())
}

// UpdateSyscallTimes increments the current task's call count for
// syscall id (spec §4.5's update_syscall_times).
func UpdateSyscallTimes(id int) {
	mustCurrentTask("update_syscall_times").IncSyscall(id)
}

// GetSyscallTimes returns the current task's per-syscall-id call counts
// (spec §4.5's get_syscall_times).
func GetSyscallTimes() [kconfig.MaxSyscallNum]uint32 {
	return mustCurrentTask("get_syscall_times").SyscallTimes()
}

// GetRunTimeUS returns microseconds elapsed since the current task's
// first dispatch (spec §4.5's get_run_time).
func GetRunTimeUS() int64 {
	t := mustCurrentTask("get_run_time")
	return nowUS() - t.StartTime()
}

// NowUS exposes the kernel's monotonic microsecond clock, used by the
// get_time syscall (spec §4.8).
func NowUS() int64 { return nowUS() }
