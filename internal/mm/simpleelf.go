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

import "github.com/shiwenlong12/sentry-ch5b/internal/kconfig"

// SimpleELFImage is the deterministic address-space builder this module
// uses in place of a real ELF loader (spec §1 names ELF loading out of
// scope, sketched only via the operations the core consumes from it).
// It lays out a small fixed code region, a two-page user stack, and the
// trap-context page every task needs, at addresses chosen to stay clear
// of the 0x10000-sized window spec §8's mmap scenarios exercise.
type SimpleELFImage struct{}

const (
	codeBase     = VirtAddr(0x1000)
	maxCodePages = 4
	stackPages   = 2
	userStackTop = VirtAddr(0x4000_0000)
)

// BuildAddressSpace implements ELFImage.
func (SimpleELFImage) BuildAddressSpace(elf []byte) (*MemorySet, VirtAddr, VirtAddr, error) {
	ms := NewMemorySet()

	codeLen := VirtAddr(len(elf))
	if codeLen == 0 {
		codeLen = kconfig.PageSize
	}
	if max := VirtAddr(maxCodePages * kconfig.PageSize); codeLen > max {
		codeLen = max
	}
	codeEnd := codeBase + codeLen
	if err := ms.InsertFramedArea(codeBase, codeEnd, PermR|PermW|PermX|PermU); err != nil {
		return nil, 0, 0, err
	}

	stackBase := userStackTop - VirtAddr(stackPages*kconfig.PageSize)
	if err := ms.InsertFramedArea(stackBase, userStackTop, PermR|PermW|PermU); err != nil {
		return nil, 0, 0, err
	}

	trapBase := VirtAddr(kconfig.TrapContext)
	if err := ms.InsertFramedArea(trapBase, trapBase+kconfig.PageSize, PermR|PermW); err != nil {
		return nil, 0, 0, err
	}

	return ms, userStackTop, codeBase, nil
}
