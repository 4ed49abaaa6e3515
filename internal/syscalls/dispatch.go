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

// Package syscalls implements the syscall dispatcher and the 14
// recognized syscall bodies (spec §4.6-§4.8), grounded on
// original_source/os5/src/syscall/mod.rs for the id table and dispatch
// shape.
//
// Syscall arguments are three machine words per spec §6's ABI, and the
// real kernel's job of translating a user virtual address through the
// caller's page table into a host-accessible pointer (copyin/copyout) is
// out of scope (spec §1, named alongside the trap trampoline). This
// package accepts that translation as already done — a uintptr argument
// that is, in fact, a valid Go pointer value cast through unsafe.Pointer
// — the same abstraction level pkg/sentry/usermem takes at the boundary
// between a traced syscall's raw register arguments and typed access to
// guest memory. See DESIGN.md's internal/syscalls entry.
package syscalls

import (
	"github.com/shiwenlong12/sentry-ch5b/internal/kernel"
	"github.com/shiwenlong12/sentry-ch5b/internal/klog"
	"github.com/shiwenlong12/sentry-ch5b/internal/loader"
)

// Syscall ids, decimal, POSIX-like (spec §4.6).
const (
	Read        = 63
	Write       = 64
	Exit        = 93
	Yield       = 124
	SetPriority = 140
	GetTime     = 169
	GetPID      = 172
	Munmap      = 215
	Fork        = 220
	Exec        = 221
	Mmap        = 222
	Waitpid     = 260
	Spawn       = 400
	TaskInfo    = 410
)

// appRegistry resolves names for exec/spawn. SetRegistry is called once
// at boot (cmd/kernctl), analogous to the original linking _num_app into
// the kernel image at build time.
var appRegistry *loader.Registry

// SetRegistry installs the app registry exec/spawn resolve names against.
func SetRegistry(r *loader.Registry) { appRegistry = r }

// Dispatch decodes (id, args) into one of the ~14 operations and runs it,
// accounting the call against t, the calling task, first (spec §4.6). An
// unrecognized id is a fatal programmer error, matching the original's
// panic!.
func Dispatch(t *kernel.Task, id uintptr, args [3]uintptr) int64 {
	t.IncSyscall(int(id))

	switch id {
	case Read, Write:
		// Console/file I/O is out of scope (spec §1); accepted as a
		// no-op that reports the requested length as transferred so a
		// caller using it only for simple diagnostic output doesn't
		// stall waiting for a real response.
		return int64(args[2])
	case Exit:
		return sysExit(t, int32(args[0]))
	case Yield:
		return sysYield(t)
	case GetPID:
		return sysGetpid(t)
	case Fork:
		return sysFork(t)
	case Exec:
		return sysExec(t, args[0])
	case Waitpid:
		return sysWaitpid(t, int(int64(args[0])), args[1])
	case GetTime:
		return sysGetTime(t, args[0])
	case Mmap:
		return sysMmap(t, args[0], args[1], args[2])
	case Munmap:
		return sysMunmap(t, args[0], args[1])
	case SetPriority:
		return sysSetPriority(t, args[0])
	case TaskInfo:
		return sysTaskInfo(t, args[0])
	case Spawn:
		return sysSpawn(t, args[0])
	default:
		klog.Fatalf("syscalls: unsupported syscall id %d", id)
		return 0
	}
}
