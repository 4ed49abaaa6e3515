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

import (
	"testing"

	"github.com/shiwenlong12/sentry-ch5b/internal/kconfig"
	"github.com/stretchr/testify/require"
)

func TestVMASetOverlapRejection(t *testing.T) {
	s := NewVMASet()
	require.NoError(t, s.Insert(&VMArea{StartVPN: 10, EndVPN: 20, Perm: PermR}))
	err := s.Insert(&VMArea{StartVPN: 15, EndVPN: 25, Perm: PermR})
	require.Error(t, err)
	require.Equal(t, 1, s.Len())
}

func TestVMASetAdjacentAreasDoNotOverlap(t *testing.T) {
	s := NewVMASet()
	require.NoError(t, s.Insert(&VMArea{StartVPN: 10, EndVPN: 20, Perm: PermR}))
	require.NoError(t, s.Insert(&VMArea{StartVPN: 20, EndVPN: 30, Perm: PermR}))
	require.Equal(t, 2, s.Len())
}

func TestVMASetTranslate(t *testing.T) {
	s := NewVMASet()
	require.NoError(t, s.Insert(&VMArea{StartVPN: 10, EndVPN: 20, Perm: PermR | PermW}))

	pte, ok := s.Translate(15)
	require.True(t, ok)
	require.True(t, pte.Valid)
	require.Equal(t, PermR|PermW, pte.Perm)

	_, ok = s.Translate(25)
	require.False(t, ok)
}

func TestVMASetRemoveByStartVPNOnlyMatchesExactStart(t *testing.T) {
	s := NewVMASet()
	require.NoError(t, s.Insert(&VMArea{StartVPN: 10, EndVPN: 20, Perm: PermR}))

	// A vpn strictly inside the area, but not its start, removes nothing
	// — this is the original's per-page munmap loop quirk (spec §4.7).
	_, ok := s.RemoveByStartVPN(15)
	require.False(t, ok)
	require.Equal(t, 1, s.Len())

	_, ok = s.RemoveByStartVPN(10)
	require.True(t, ok)
	require.Equal(t, 0, s.Len())
}

func TestMemorySetInsertAndRemoveArea(t *testing.T) {
	ms := NewMemorySet()
	start := VirtAddr(kconfig.PageSize)
	end := start + 2*kconfig.PageSize
	require.NoError(t, ms.InsertFramedArea(start, end, PermR|PermW))

	pte, ok := ms.Translate(PageOf(start))
	require.True(t, ok)
	require.True(t, pte.Valid)

	require.NoError(t, ms.RemoveAreaWithStartVPN(PageOf(start)))
	_, ok = ms.Translate(PageOf(start))
	require.False(t, ok)
}

func TestFromExistedUserDeepCopiesAreas(t *testing.T) {
	parent := NewMemorySet()
	start := VirtAddr(kconfig.PageSize)
	end := start + kconfig.PageSize
	require.NoError(t, parent.InsertFramedArea(start, end, PermR))

	child := FromExistedUser(parent)
	require.NotEqual(t, parent.Token(), child.Token())

	// Mutating the child's areas must not affect the parent's: fork
	// duplicates frames rather than sharing them (Non-goals exclude
	// copy-on-write).
	require.NoError(t, child.RemoveAreaWithStartVPN(PageOf(start)))
	_, ok := child.Translate(PageOf(start))
	require.False(t, ok)

	_, ok = parent.Translate(PageOf(start))
	require.True(t, ok)
}

func TestRecycleDataPagesClearsAreasButKeepsToken(t *testing.T) {
	ms := NewMemorySet()
	token := ms.Token()
	start := VirtAddr(kconfig.PageSize)
	require.NoError(t, ms.InsertFramedArea(start, start+kconfig.PageSize, PermR))

	ms.RecycleDataPages()

	require.Equal(t, token, ms.Token())
	require.Equal(t, 0, ms.Areas().Len())
}

func TestSimpleELFImageBuildsDisjointAreas(t *testing.T) {
	img := SimpleELFImage{}
	ms, userSP, entry, err := img.BuildAddressSpace([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, codeBase, entry)
	require.Equal(t, userStackTop, userSP)

	pte, ok := ms.Translate(PageOf(codeBase))
	require.True(t, ok)
	require.NotZero(t, pte.Perm&PermX)

	pte, ok = ms.Translate(PageOf(userStackTop - 1))
	require.True(t, ok)
	require.NotZero(t, pte.Perm&PermW)

	pte, ok = ms.Translate(PageOf(VirtAddr(kconfig.TrapContext)))
	require.True(t, ok)
	require.Zero(t, pte.Perm&PermU)
}
