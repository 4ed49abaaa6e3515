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

package mm

import "sync"

// kernelSpace is the lazily-initialized singleton kernel address space
// every KernelStack is mapped into (the Go analogue of KERNEL_SPACE in
// original_source/task/pid.rs). Like INITPROC and the other globals spec
// §9 lists, it is init-on-first-use with no teardown.
var (
	kernelSpaceOnce sync.Once
	kernelSpace     *MemorySet
)

// KernelSpace returns the singleton kernel address space.
func KernelSpace() *MemorySet {
	kernelSpaceOnce.Do(func() {
		kernelSpace = NewMemorySet()
	})
	return kernelSpace
}
