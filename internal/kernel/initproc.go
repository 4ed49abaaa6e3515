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

import "github.com/shiwenlong12/sentry-ch5b/internal/klog"

// initProc is the kernel's permanent root task: the reparenting target
// for every orphaned child (spec §4.3, §9's INITPROC invariant). Like
// mm.KernelSpace, it is a never-torn-down global; unlike it, it is
// installed explicitly by SetInitProc rather than on first use.
var initProc *Task

// SetInitProc records t as INITPROC. Called exactly once, at boot, after
// NewInitTask constructs the root task's TCB. A second call is a
// programmer error: the kernel never re-boots in place.
func SetInitProc(t *Task) {
	if initProc != nil {
		klog.Fatalf("kernel: INITPROC already initialized")
	}
	initProc = t
}

// InitProc returns the root task. Accessing it before SetInitProc is a
// programmer error: nothing in this kernel runs before boot constructs
// INITPROC (spec §4.3).
func InitProc() *Task {
	if initProc == nil {
		klog.Fatalf("kernel: INITPROC accessed before boot")
	}
	return initProc
}
