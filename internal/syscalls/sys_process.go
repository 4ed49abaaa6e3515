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

package syscalls

import (
	"time"
	"unsafe"

	"golang.org/x/time/rate"

	"github.com/shiwenlong12/sentry-ch5b/internal/kernel"
	"github.com/shiwenlong12/sentry-ch5b/internal/klog"
	"github.com/shiwenlong12/sentry-ch5b/internal/mm"
	"github.com/shiwenlong12/sentry-ch5b/internal/proc"
)

// waitpidPollLog throttles the "not a zombie yet" diagnostic below to at
// most once per second: a userspace retry loop around waitpid(-2) can
// call this syscall thousands of times a second, and logging every call
// would drown everything else.
var waitpidPollLog = rate.NewLimiter(rate.Every(time.Second), 1)

// forkReturnReg is the RISC-V calling-convention register (a0) the
// original's trap frame carries the syscall return value in; fork patches
// it to 0 on the child's copy so that "the child sees fork() return 0"
// holds even though this model never resumes the child's own execution
// from the same call site.
const forkReturnReg = 10

func sysExit(t *kernel.Task, code int32) int64 {
	proc.ExitCurrentAndRunNext(code)
	return 0
}

func sysYield(t *kernel.Task) int64 {
	proc.SuspendCurrentAndRunNext()
	return 0
}

func sysGetpid(t *kernel.Task) int64 {
	return int64(t.PID())
}

func sysFork(t *kernel.Task) int64 {
	child, err := t.Fork()
	if err != nil {
		klog.Fatalf("syscalls: fork: %v", err)
	}
	child.TrapContext().Regs[forkReturnReg] = 0
	proc.AddTask(child)
	return int64(child.PID())
}

// sysExec resolves the app name through the registry and replaces t's
// address space with it. namePtr stands in for a user pointer to a
// NUL-terminated path string; since copying bytes out of user memory is
// out of scope here, it is taken to already be a *string (see
// dispatch.go's doc comment).
func sysExec(t *kernel.Task, namePtr uintptr) int64 {
	if namePtr == 0 {
		return -1
	}
	name := *(*string)(unsafe.Pointer(namePtr))
	data, ok := appRegistry.Lookup(name)
	if !ok {
		return -1
	}
	if err := t.Exec(mm.SimpleELFImage{}, data); err != nil {
		return -1
	}
	return 0
}

// sysSpawn is fork+exec in one step: a new child running name's image
// (spec §4.3's spawn).
func sysSpawn(t *kernel.Task, namePtr uintptr) int64 {
	if namePtr == 0 {
		return -1
	}
	name := *(*string)(unsafe.Pointer(namePtr))
	data, ok := appRegistry.Lookup(name)
	if !ok {
		return -1
	}
	child, err := t.Spawn(mm.SimpleELFImage{}, data)
	if err != nil {
		return -1
	}
	proc.AddTask(child)
	return int64(child.PID())
}

// sysWaitpid reaps a Zombie child matching pid (-1 for any), writing its
// exit code through exitCodeOutPtr when a child was reaped (spec §4.3).
func sysWaitpid(t *kernel.Task, pid int, exitCodeOutPtr uintptr) int64 {
	resultPid, code := t.Waitpid(pid)
	if resultPid == -2 && waitpidPollLog.Allow() {
		klog.Debugf("syscalls: waitpid(pid=%d) polled: matching child not yet a zombie", pid)
	}
	if resultPid < 0 {
		return int64(resultPid)
	}
	if exitCodeOutPtr != 0 {
		*(*int32)(unsafe.Pointer(exitCodeOutPtr)) = code
	}
	return int64(resultPid)
}
