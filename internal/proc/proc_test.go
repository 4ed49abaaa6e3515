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

package proc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shiwenlong12/sentry-ch5b/internal/kernel"
	"github.com/shiwenlong12/sentry-ch5b/internal/mm"
)

// This package's global Processor and ready queue are singletons (spec
// §4.5 models exactly one CPU), so every test shares them; testInitProc
// guarantees SetInitProc — itself a once-only operation — runs at most
// once for the whole package.
var (
	initOnce sync.Once
	initProc *kernel.Task
)

func testInitProc(t *testing.T) *kernel.Task {
	t.Helper()
	initOnce.Do(func() {
		task, err := kernel.NewInitTask(mm.SimpleELFImage{}, []byte("initproc"))
		require.NoError(t, err)
		kernel.SetInitProc(task)
		initProc = task
	})
	return initProc
}

func TestRunTasksDispatchesReadyTasksThenReturns(t *testing.T) {
	testInitProc(t)
	task, err := kernel.NewInitTask(mm.SimpleELFImage{}, []byte("child"))
	require.NoError(t, err)
	AddTask(task)

	var dispatched []int
	RunTasks(func(tt *kernel.Task) {
		dispatched = append(dispatched, tt.PID())
		ExitCurrentAndRunNext(0)
	})

	require.Equal(t, []int{task.PID()}, dispatched)
	require.Equal(t, kernel.Zombie, task.Status())
	require.Equal(t, 0, ReadyLen())
}

func TestSuspendReQueuesForAnotherRound(t *testing.T) {
	testInitProc(t)
	task, err := kernel.NewInitTask(mm.SimpleELFImage{}, []byte("child"))
	require.NoError(t, err)
	AddTask(task)

	quanta := 0
	RunTasks(func(tt *kernel.Task) {
		quanta++
		if quanta < 3 {
			SuspendCurrentAndRunNext()
			return
		}
		ExitCurrentAndRunNext(0)
	})

	require.Equal(t, 3, quanta)
	require.Equal(t, kernel.Zombie, task.Status())
}

func TestCurrentTaskAccessorsDuringDispatch(t *testing.T) {
	testInitProc(t)
	task, err := kernel.NewInitTask(mm.SimpleELFImage{}, []byte("child"))
	require.NoError(t, err)
	AddTask(task)

	var sawToken uintptr
	var sawTrap bool
	RunTasks(func(tt *kernel.Task) {
		require.Same(t, tt, CurrentTask())
		sawToken = CurrentUserToken()
		sawTrap = CurrentTrapContext() != nil
		ExitCurrentAndRunNext(0)
	})

	require.Equal(t, task.MemorySet().Token(), sawToken)
	require.True(t, sawTrap)
	require.Nil(t, CurrentTask())
}

func TestSyscallTimesAndRunTimeAccounting(t *testing.T) {
	testInitProc(t)
	task, err := kernel.NewInitTask(mm.SimpleELFImage{}, []byte("child"))
	require.NoError(t, err)
	AddTask(task)

	RunTasks(func(tt *kernel.Task) {
		UpdateSyscallTimes(124)
		UpdateSyscallTimes(124)
		require.Equal(t, uint32(2), GetSyscallTimes()[124])
		require.GreaterOrEqual(t, GetRunTimeUS(), int64(0))
		ExitCurrentAndRunNext(0)
	})
}
