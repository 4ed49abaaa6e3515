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

package sched

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeTask is a minimal sched.Task for exercising Queue in isolation from
// internal/kernel.
type fakeTask struct {
	name     string
	pass     uint8
	priority uint8
}

func (f *fakeTask) Pass() uint8        { return f.pass }
func (f *fakeTask) AddPass(delta uint8) { f.pass += delta }
func (f *fakeTask) Priority() uint8    { return f.priority }

func TestFetchEmptyQueue(t *testing.T) {
	q := NewQueue(0)
	_, ok := q.Fetch()
	require.False(t, ok)
}

func TestFetchOrdersByMinimumPass(t *testing.T) {
	q := NewQueue(100)
	low := &fakeTask{name: "low", pass: 5, priority: 10}
	high := &fakeTask{name: "high", pass: 10, priority: 10}
	q.Add(high)
	q.Add(low)

	got, ok := q.Fetch()
	require.True(t, ok)
	require.Same(t, low, got)
}

func TestRemoveDropsMatchingEntryByIdentity(t *testing.T) {
	q := NewQueue(100)
	a := &fakeTask{name: "a", priority: 10}
	b := &fakeTask{name: "b", priority: 10}
	q.Add(a)
	q.Add(b)

	require.True(t, q.Remove(a))
	require.Equal(t, 1, q.Len())

	require.False(t, q.Remove(a)) // already gone
	got, ok := q.Fetch()
	require.True(t, ok)
	require.Same(t, b, got)
}

func TestFetchTieBreaksByInsertionOrder(t *testing.T) {
	q := NewQueue(100)
	first := &fakeTask{name: "first", pass: 0, priority: 10}
	second := &fakeTask{name: "second", pass: 0, priority: 10}
	q.Add(first)
	q.Add(second)

	got, ok := q.Fetch()
	require.True(t, ok)
	require.Same(t, first, got)
}

func TestFetchAdvancesPassByBigStrideOverPriority(t *testing.T) {
	q := NewQueue(100)
	task := &fakeTask{pass: 0, priority: 20}
	q.Add(task)

	_, ok := q.Fetch()
	require.True(t, ok)
	require.Equal(t, uint8(5), task.pass) // 100/20
}

// TestStrideFairnessRatio reproduces spec §8's stride-fairness scenario:
// two tasks whose priorities are in a 2:1 ratio should, over many fetches,
// be scheduled in close to a 2:1 ratio themselves.
func TestStrideFairnessRatio(t *testing.T) {
	q := NewQueue(10)
	fast := &fakeTask{name: "fast", priority: 10} // gets stride 1 per fetch
	slow := &fakeTask{name: "slow", priority: 5}  // gets stride 2 per fetch
	q.Add(fast)
	q.Add(slow)

	const rounds = 600
	var fastCount, slowCount int
	for i := 0; i < rounds; i++ {
		got, ok := q.Fetch()
		require.True(t, ok)
		switch got.(*fakeTask).name {
		case "fast":
			fastCount++
		case "slow":
			slowCount++
		}
		q.Add(got)
	}

	require.Equal(t, rounds, fastCount+slowCount)
	ratio := float64(fastCount) / float64(slowCount)
	require.InDelta(t, 2.0, ratio, 0.1)
}

// TestWraparoundComparisonToleratesOverflow exercises the 8-bit signed
// comparison directly: a pass that has wrapped around past 255 to a
// numerically small value counts as ahead of a pass near the top of the
// byte, so the task with the numerically larger pass is fetched, as long
// as the two are no more than 127 steps apart.
func TestWraparoundComparisonToleratesOverflow(t *testing.T) {
	q := NewQueue(100)
	wrapped := &fakeTask{pass: 250, priority: 50} // near the top of uint8
	ahead := &fakeTask{pass: 10, priority: 50}    // numerically smaller, but 16 steps ahead of 250 under wraparound
	q.Add(wrapped)
	q.Add(ahead)

	got, ok := q.Fetch()
	require.True(t, ok)
	require.Same(t, wrapped, got)
}
