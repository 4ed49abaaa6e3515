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

// Package mm models the address-space side of the kernel: virtual memory
// areas, a minimal page-table stand-in, and the MemorySet each task owns.
//
// The real frame allocator and page-table walker are named out of scope
// by spec §1 ("treated as external collaborators whose interfaces are
// only sketched"); this package supplies a deterministic, non-hardware
// implementation of those interfaces, just enough to make mmap/munmap,
// fork's address-space duplication, and the testable properties in
// spec §8 checkable from Go tests.
package mm

import (
	"fmt"

	"github.com/google/btree"
	"github.com/mohae/deepcopy"
	"github.com/shiwenlong12/sentry-ch5b/internal/kconfig"
)

// VirtAddr is a virtual address.
type VirtAddr uint64

// VPN is a virtual page number.
type VPN uint64

// PageOf floors a virtual address to its containing page number.
func PageOf(a VirtAddr) VPN { return VPN(a / kconfig.PageSize) }

// CeilPageOf rounds a virtual address up to a page number, the way
// VirtAddr::ceil does in the original (end addresses are exclusive).
func CeilPageOf(a VirtAddr) VPN {
	if a%kconfig.PageSize == 0 {
		return VPN(a / kconfig.PageSize)
	}
	return VPN(a/kconfig.PageSize + 1)
}

// Addr converts a page number back to its base address.
func (v VPN) Addr() VirtAddr { return VirtAddr(v) * kconfig.PageSize }

// MapPermission mirrors the rCore bitflags layout: bit 0 is reserved
// (valid), R/W/X occupy bits 1-3, and U (user-accessible) occupies bit 4.
// mmap's port argument (R=bit0,W=bit1,X=bit2) is shifted left by one to
// land in this same layout (spec §4.7), which is why the bit positions
// below are deliberately offset by one from golang.org/x/sys/unix's
// PROT_* constants rather than reusing them directly here (they're reused
// at the syscall boundary instead; see internal/syscalls/sys_mmap.go).
type MapPermission uint8

const (
	PermR MapPermission = 1 << 1
	PermW MapPermission = 1 << 2
	PermX MapPermission = 1 << 3
	PermU MapPermission = 1 << 4
)

// PTE is a minimal page-table-entry stand-in: enough to answer "is this
// page mapped, and with what permissions."
type PTE struct {
	Perm  MapPermission
	Valid bool
}

// VMArea is one contiguous owned virtual region, the Go analogue of the
// original's MapArea. It implements btree.Item ordered by StartVPN so a
// MemorySet's VMASet can answer overlap and removal queries without a
// linear scan of every area on every call (original_source/task/task.rs's
// MemorySet used a plain Vec<MapArea>; see DESIGN.md for why btree is the
// more faithful Go translation of "ordered set of owned virtual regions").
type VMArea struct {
	StartVPN VPN
	EndVPN   VPN
	Perm     MapPermission
}

// Less implements btree.Item.
func (a *VMArea) Less(than btree.Item) bool {
	return a.StartVPN < than.(*VMArea).StartVPN
}

func (a *VMArea) contains(vpn VPN) bool { return vpn >= a.StartVPN && vpn < a.EndVPN }

// frameBudget is a process-wide accounting of frames handed out to
// VMASets, standing in for the physical frame allocator spec §1 excludes.
// It never fails allocation (this kernel has no notion of physical memory
// exhaustion modeled in Go), but keeps a running total for diagnostics.
var frameBudget struct {
	allocated uint64
}

// VMASet is the ordered set of virtual memory areas backing one
// MemorySet. Backed by github.com/google/btree.
type VMASet struct {
	tree *btree.BTree
}

// NewVMASet returns an empty area set.
func NewVMASet() *VMASet {
	return &VMASet{tree: btree.New(32)}
}

// Overlaps reports whether any area in the set intersects [start, end).
func (s *VMASet) Overlaps(start, end VPN) bool {
	overlap := false
	s.tree.DescendLessOrEqual(&VMArea{StartVPN: start}, func(i btree.Item) bool {
		if i.(*VMArea).EndVPN > start {
			overlap = true
		}
		return false
	})
	if overlap {
		return true
	}
	s.tree.AscendGreaterOrEqual(&VMArea{StartVPN: start}, func(i btree.Item) bool {
		a := i.(*VMArea)
		if a.StartVPN >= end {
			return false
		}
		overlap = true
		return false
	})
	return overlap
}

// Insert adds a new framed area. Returns an error if it overlaps an
// existing one (mmap's "already mapped" rejection, spec §4.7).
func (s *VMASet) Insert(area *VMArea) error {
	if s.Overlaps(area.StartVPN, area.EndVPN) {
		return fmt.Errorf("mm: area [%d,%d) overlaps an existing mapping", area.StartVPN, area.EndVPN)
	}
	s.tree.ReplaceOrInsert(area)
	frameBudget.allocated += uint64(area.EndVPN - area.StartVPN)
	return nil
}

// RemoveByStartVPN removes the single area whose StartVPN exactly matches
// vpn, if any, and reports whether one was found.
//
// This mirrors the original's remove_area_with_start_vpn: munmap calls it
// once per page in the target range, but only the call whose vpn equals
// an area's own start actually removes anything (spec §4.7's note that
// coalesced single-area removal is an acceptable implementation as long
// as the observable frame-release behavior matches).
func (s *VMASet) RemoveByStartVPN(vpn VPN) (*VMArea, bool) {
	item := s.tree.Get(&VMArea{StartVPN: vpn})
	if item == nil {
		return nil, false
	}
	s.tree.Delete(item)
	a := item.(*VMArea)
	frameBudget.allocated -= uint64(a.EndVPN - a.StartVPN)
	return a, true
}

// Translate reports the PTE mapping vpn, if any area covers it.
func (s *VMASet) Translate(vpn VPN) (PTE, bool) {
	var found *VMArea
	s.tree.DescendLessOrEqual(&VMArea{StartVPN: vpn}, func(i btree.Item) bool {
		found = i.(*VMArea)
		return false
	})
	if found == nil || !found.contains(vpn) {
		return PTE{}, false
	}
	return PTE{Perm: found.Perm, Valid: true}, true
}

// Len reports the number of distinct areas (not pages) currently mapped.
func (s *VMASet) Len() int { return s.tree.Len() }

// clone deep-copies every area, used by MemorySet.Fork.
func (s *VMASet) clone() *VMASet {
	out := NewVMASet()
	s.tree.Ascend(func(i btree.Item) bool {
		a := deepcopy.Copy(i.(*VMArea)).(*VMArea)
		out.tree.ReplaceOrInsert(a)
		return true
	})
	return out
}

// AddressSpace is the subset of a page table this kernel's non-user
// concerns (kernel stacks) need: insert/remove a framed region, translate
// a page, and report an opaque token identifying the table. The kernel's
// own address space satisfies it the same way every task's MemorySet
// does.
type AddressSpace interface {
	InsertFramedArea(start, end VirtAddr, perm MapPermission) error
	RemoveAreaWithStartVPN(vpn VPN) error
	Translate(vpn VPN) (PTE, bool)
	Token() uintptr
}

// MemorySet is one task's page table plus its owned virtual regions
// (spec's "Memory set"). tokenID stands in for the hardware page-table
// base register value a real implementation would use; it only needs to
// be distinct per MemorySet here.
type MemorySet struct {
	areas   *VMASet
	tokenID uintptr
}

var nextToken uintptr = 1

// NewMemorySet returns an empty address space.
func NewMemorySet() *MemorySet {
	t := nextToken
	nextToken++
	return &MemorySet{areas: NewVMASet(), tokenID: t}
}

// Token implements AddressSpace.
func (ms *MemorySet) Token() uintptr { return ms.tokenID }

// InsertFramedArea implements AddressSpace; used both by kernel stacks
// (internal/kstack) and directly by mmap.
func (ms *MemorySet) InsertFramedArea(start, end VirtAddr, perm MapPermission) error {
	return ms.areas.Insert(&VMArea{StartVPN: PageOf(start), EndVPN: CeilPageOf(end), Perm: perm})
}

// RemoveAreaWithStartVPN implements AddressSpace.
func (ms *MemorySet) RemoveAreaWithStartVPN(vpn VPN) error {
	if _, ok := ms.areas.RemoveByStartVPN(vpn); !ok {
		return fmt.Errorf("mm: no area starting at vpn %d", vpn)
	}
	return nil
}

// Translate implements AddressSpace.
func (ms *MemorySet) Translate(vpn VPN) (PTE, bool) {
	return ms.areas.Translate(vpn)
}

// Areas exposes the area set for mmap/munmap's per-page validity scans.
func (ms *MemorySet) Areas() *VMASet { return ms.areas }

// RecycleDataPages releases the data-bearing areas a task owned (spec
// §4.3 exit semantics: "page tables remain for later reaping"). In this
// Go model there's no separate page-table allocation to retain, so this
// simply clears the area set; the MemorySet value itself, and with it the
// token, persists until the TCB is dropped.
func (ms *MemorySet) RecycleDataPages() {
	ms.areas = NewVMASet()
}

// FromExistedUser deep-copies an existing MemorySet's areas (and, via
// deepcopy, every byte of permission/range bookkeeping in them) for
// fork (spec §4.3). Non-goals exclude copy-on-write fork, so frames are
// genuinely duplicated, not shared.
func FromExistedUser(parent *MemorySet) *MemorySet {
	t := nextToken
	nextToken++
	return &MemorySet{areas: parent.areas.clone(), tokenID: t}
}

// ELFImage builds a fresh address space from an executable image. The ELF
// parser itself is out of scope (spec §1); this is the minimal
// deterministic stand-in the core needs to drive task creation and is
// injected so tests don't depend on a real loader.
type ELFImage interface {
	BuildAddressSpace(elf []byte) (ms *MemorySet, userSP VirtAddr, entry VirtAddr, err error)
}
