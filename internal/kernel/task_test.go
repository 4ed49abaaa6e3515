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

package kernel

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shiwenlong12/sentry-ch5b/internal/mm"
)

// SetInitProc may only run once per process (matching the original's
// lazy_static semantics), so every test in this package that needs
// INITPROC shares a single instance via this helper instead of each
// constructing and installing its own.
var (
	sharedInitOnce sync.Once
	sharedInitProc *Task
)

func testInitProc(t *testing.T) *Task {
	t.Helper()
	sharedInitOnce.Do(func() {
		task, err := NewInitTask(mm.SimpleELFImage{}, []byte("initproc"))
		require.NoError(t, err)
		SetInitProc(task)
		sharedInitProc = task
	})
	return sharedInitProc
}

func TestNewInitTaskDefaults(t *testing.T) {
	task, err := NewInitTask(mm.SimpleELFImage{}, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, Ready, task.Status())
	require.Equal(t, uint8(16), task.Priority())
	require.Equal(t, uint8(0), task.Pass())
	require.Nil(t, task.Parent())
	require.Empty(t, task.Children())
}

func TestForkInheritsBaseSizeNotCounters(t *testing.T) {
	parent, err := NewInitTask(mm.SimpleELFImage{}, []byte("hello"))
	require.NoError(t, err)
	parent.SetPriority(30)
	parent.IncSyscall(1)

	child, err := parent.Fork()
	require.NoError(t, err)

	require.Equal(t, parent.BaseSize(), child.BaseSize())
	require.Equal(t, uint8(16), child.Priority()) // default, not copied from parent
	require.Equal(t, uint8(0), child.Pass())
	require.Equal(t, uint32(0), child.SyscallTimes()[1])
	require.NotEqual(t, parent.PID(), child.PID())
	require.Same(t, parent, child.Parent())
	require.Contains(t, parent.Children(), child)

	// Forked address spaces are independent copies.
	require.NotEqual(t, parent.MemorySet().Token(), child.MemorySet().Token())
}

func TestForkChildKernelStackIsDistinct(t *testing.T) {
	parent, err := NewInitTask(mm.SimpleELFImage{}, []byte("hello"))
	require.NoError(t, err)
	child, err := parent.Fork()
	require.NoError(t, err)
	require.NotEqual(t, parent.KernelStackTop(), child.KernelStackTop())
	require.Equal(t, uintptr(child.KernelStackTop()), child.TrapContext().KernelSP)
}

func TestSpawnBuildsFreshAddressSpace(t *testing.T) {
	parent, err := NewInitTask(mm.SimpleELFImage{}, []byte("hello"))
	require.NoError(t, err)
	child, err := parent.Spawn(mm.SimpleELFImage{}, []byte("world"))
	require.NoError(t, err)

	require.Equal(t, Ready, child.Status())
	require.NotEqual(t, parent.MemorySet().Token(), child.MemorySet().Token())
	require.Contains(t, parent.Children(), child)
}

func TestExecReplacesAddressSpaceKeepsIdentity(t *testing.T) {
	task, err := NewInitTask(mm.SimpleELFImage{}, []byte("hello"))
	require.NoError(t, err)
	task.SetPriority(42)
	task.AddPass(5)
	task.IncSyscall(3)
	pid := task.PID()
	oldToken := task.MemorySet().Token()

	require.NoError(t, task.Exec(mm.SimpleELFImage{}, []byte("world")))

	require.Equal(t, pid, task.PID())
	require.Equal(t, uint8(42), task.Priority())
	require.Equal(t, uint8(5), task.Pass())
	require.Equal(t, uint32(1), task.SyscallTimes()[3])
	require.NotEqual(t, oldToken, task.MemorySet().Token())
}

func TestExitReparentsChildrenToInitProc(t *testing.T) {
	initProc := testInitProc(t)
	parent, err := initProc.Fork()
	require.NoError(t, err)
	child, err := parent.Fork()
	require.NoError(t, err)

	parent.Exit(7)

	require.Equal(t, Zombie, parent.Status())
	require.Equal(t, int32(7), parent.ExitCode())
	require.Empty(t, parent.Children())
	require.Same(t, initProc, child.Parent())
	require.Contains(t, initProc.Children(), child)
}

func TestWaitpidNoMatchingChild(t *testing.T) {
	parent, err := NewInitTask(mm.SimpleELFImage{}, []byte("hello"))
	require.NoError(t, err)
	pid, _ := parent.Waitpid(-1)
	require.Equal(t, -1, pid)
}

func TestWaitpidMatchButNotZombieYet(t *testing.T) {
	parent, err := NewInitTask(mm.SimpleELFImage{}, []byte("hello"))
	require.NoError(t, err)
	child, err := parent.Fork()
	require.NoError(t, err)

	pid, _ := parent.Waitpid(child.PID())
	require.Equal(t, -2, pid)
}

func TestWaitpidReapsZombie(t *testing.T) {
	initProc := testInitProc(t)
	parent, err := initProc.Fork()
	require.NoError(t, err)
	child, err := parent.Fork()
	require.NoError(t, err)
	childPID := child.PID()

	child.Exit(99)

	pid, code := parent.Waitpid(-1)
	require.Equal(t, childPID, pid)
	require.Equal(t, int32(99), code)
	require.Empty(t, parent.Children())
}
