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
	"unsafe"

	"github.com/shiwenlong12/sentry-ch5b/internal/kconfig"
	"github.com/shiwenlong12/sentry-ch5b/internal/kernel"
	"github.com/shiwenlong12/sentry-ch5b/internal/proc"
)

// TimeVal is the {sec, usec} pair get_time writes to user memory (spec
// §4.8).
type TimeVal struct {
	Sec  int64
	USec int64
}

// TaskInfoSnapshot is the status snapshot task_info writes to user memory
// (spec §4.8). Status is always Running: the syscall only ever observes
// the task that just trapped into the kernel to ask about itself.
type TaskInfoSnapshot struct {
	Status       kernel.TaskStatus
	SyscallTimes [kconfig.MaxSyscallNum]uint32
	TimeMS       int64
}

func sysGetTime(t *kernel.Task, outPtr uintptr) int64 {
	if outPtr == 0 {
		return -1
	}
	out := (*TimeVal)(unsafe.Pointer(outPtr))
	us := proc.NowUS()
	out.Sec = us / 1_000_000
	out.USec = us % 1_000_000
	return 0
}

func sysTaskInfo(t *kernel.Task, outPtr uintptr) int64 {
	if outPtr == 0 {
		return -1
	}
	out := (*TaskInfoSnapshot)(unsafe.Pointer(outPtr))
	out.Status = kernel.Running
	out.SyscallTimes = proc.GetSyscallTimes()
	out.TimeMS = proc.GetRunTimeUS() / 1000
	return 0
}
