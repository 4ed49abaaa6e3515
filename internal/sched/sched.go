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

// Package sched implements the ready queue and stride scheduler (spec
// §4.4), grounded verbatim on original_source/task/manager.rs's
// TaskManager::fetch.
package sched

import (
	"sync"

	"github.com/shiwenlong12/sentry-ch5b/internal/klog"
	"github.com/shiwenlong12/sentry-ch5b/internal/kconfig"
)

// Task is the subset of a task control block the scheduler needs. Each
// method is expected to take and release the task's own exclusive-access
// guard internally (as original_source/task/manager.rs's fetch does per
// loop iteration), not to hold one across the whole Fetch call.
type Task interface {
	Pass() uint8
	AddPass(delta uint8)
	Priority() uint8
}

// Queue is the ready queue: an ordered, duplicate-free sequence of
// runnable tasks, stride-scheduled on Fetch.
type Queue struct {
	mu        sync.Mutex
	items     []Task
	bigStride uint8
}

// NewQueue returns an empty ready queue. bigStride of 0 uses
// kconfig.BigStride.
func NewQueue(bigStride uint8) *Queue {
	if bigStride == 0 {
		bigStride = kconfig.BigStride
	}
	return &Queue{bigStride: bigStride}
}

// Add appends task to the queue tail — the only place an entry enters
// Ready (spec §4.4). Adding a task that is already queued is a no-op, so
// the queue stays duplicate-free.
func (q *Queue) Add(t Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range q.items {
		if item == t {
			return
		}
	}
	q.items = append(q.items, t)
}

// Len reports the number of ready tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Fetch picks the ready task with minimum pass under 8-bit signed
// wraparound comparison, advances its pass by BIG_STRIDE/priority, removes
// it from the queue, and returns it. Ties (equal pass) favor the
// earlier-inserted entry, a consequence of the strict less-than test
// below. Returns false if the queue is empty.
func (q *Queue) Fetch() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}

	idx := 0
	minPass := q.items[0].Pass()
	for i := 1; i < len(q.items); i++ {
		p := q.items[i].Pass()
		// 8-bit signed wraparound: p "beats" minPass only if the
		// difference, reinterpreted as a signed byte, is negative.
		if int8(p-minPass) < 0 {
			minPass = p
			idx = i
		}
	}

	t := q.items[idx]
	priority := t.Priority()
	if priority == 0 {
		klog.Fatalf("sched: task has priority 0, division by zero in stride computation")
	}
	stride := q.bigStride / priority
	t.AddPass(stride)

	q.items = append(q.items[:idx], q.items[idx+1:]...)
	return t, true
}

// Remove drops t from the queue by identity, if present. The processor
// needs this when a task exits without an intervening Fetch ever having
// run again after a prior Add — e.g. a task that yields and then exits
// within the same dispatch — so a Zombie task is never left sitting in
// the ready queue for a later Fetch to pick up.
func (q *Queue) Remove(t Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, item := range q.items {
		if item == t {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}
