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
	"golang.org/x/sys/unix"

	"github.com/shiwenlong12/sentry-ch5b/internal/kconfig"
	"github.com/shiwenlong12/sentry-ch5b/internal/kernel"
	"github.com/shiwenlong12/sentry-ch5b/internal/mm"
)

// validPortMask restricts mmap's port argument to the three bits a real
// mmap(2) accepts (spec §4.7). These happen to coincide exactly with
// golang.org/x/sys/unix's PROT_READ/PROT_WRITE/PROT_EXEC bit positions,
// which is why they're reused here instead of re-declaring the same
// three bits locally.
const validPortMask = uintptr(unix.PROT_READ | unix.PROT_WRITE | unix.PROT_EXEC)

// sysMmap inserts a new framed region in t's address space (spec §4.7).
func sysMmap(t *kernel.Task, start, length, port uintptr) int64 {
	if start%kconfig.PageSize != 0 {
		return -1
	}
	if port & ^validPortMask != 0 || port&validPortMask == 0 {
		return -1
	}

	startAddr := mm.VirtAddr(start)
	endAddr := mm.VirtAddr(start + length)
	ms := t.MemorySet()

	startVPN := mm.PageOf(startAddr)
	endVPN := mm.CeilPageOf(endAddr)
	for vpn := startVPN; vpn < endVPN; vpn++ {
		if _, ok := ms.Translate(vpn); ok {
			return -1
		}
	}

	perm := mm.MapPermission(port<<1) | mm.PermU
	if err := ms.InsertFramedArea(startAddr, endAddr, perm); err != nil {
		return -1
	}
	return 0
}

// sysMunmap removes every page's region in [start, start+length) from t's
// address space (spec §4.7). mmap always inserts one contiguous area, so
// in practice only the call whose vpn equals that area's own StartVPN
// actually removes anything; the rest are no-ops, matching the original's
// per-page removal loop (see internal/mm.VMASet.RemoveByStartVPN).
func sysMunmap(t *kernel.Task, start, length uintptr) int64 {
	if start%kconfig.PageSize != 0 {
		return -1
	}

	startAddr := mm.VirtAddr(start)
	endAddr := mm.VirtAddr(start + length)
	ms := t.MemorySet()

	startVPN := mm.PageOf(startAddr)
	endVPN := mm.CeilPageOf(endAddr)
	for vpn := startVPN; vpn < endVPN; vpn++ {
		pte, ok := ms.Translate(vpn)
		if !ok || !pte.Valid {
			return -1
		}
	}
	for vpn := startVPN; vpn < endVPN; vpn++ {
		_ = ms.RemoveAreaWithStartVPN(vpn)
	}
	return 0
}

// sysSetPriority assigns t's stride priority (spec §4.7). The raw machine
// word is reinterpreted as signed because the original treats the
// argument as isize.
func sysSetPriority(t *kernel.Task, raw uintptr) int64 {
	prio := int64(raw)
	if prio < 2 {
		return -1
	}
	t.SetPriority(uint8(prio))
	return prio
}
