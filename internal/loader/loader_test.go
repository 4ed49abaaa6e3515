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

package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeApp(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func TestLoadDirRegistersEveryRegularFileByName(t *testing.T) {
	dir := t.TempDir()
	writeApp(t, dir, "hello_world", []byte("hello"))
	writeApp(t, dir, "priority_app", []byte("priority"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755)) // not a regular file, must be skipped

	r := NewRegistry()
	require.NoError(t, r.LoadDir(dir))

	require.Equal(t, 2, r.Len())
	require.Equal(t, []string{"hello_world", "priority_app"}, r.Names())

	data, ok := r.Lookup("hello_world")
	require.True(t, ok)
	require.Equal(t, []byte("hello"), data)

	proc, ok := r.Process("priority_app")
	require.True(t, ok)
	require.Equal(t, []string{"priority_app"}, proc.Args)
	require.Equal(t, "/", proc.Cwd)
}

func TestLookupMissingAppReturnsFalse(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup("nonexistent")
	require.False(t, ok)

	_, ok = r.Process("nonexistent")
	require.False(t, ok)
}

func TestLoadDirIsIdempotentAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	writeApp(t, dir, "a", []byte("1"))

	r := NewRegistry()
	require.NoError(t, r.LoadDir(dir))
	require.NoError(t, r.LoadDir(dir))

	// Reloading the same directory replaces the entry rather than
	// duplicating it in the order slice.
	require.Equal(t, 1, r.Len())
	require.Equal(t, []string{"a"}, r.Names())
}

func TestLoadDirLeavesLockFileUnregistered(t *testing.T) {
	dir := t.TempDir()
	writeApp(t, dir, "a", []byte("1"))

	r := NewRegistry()
	require.NoError(t, r.LoadDir(dir))

	// LoadDir's own advisory lock file must not itself be registered as an app.
	require.Equal(t, []string{"a"}, r.Names())
	_, ok := r.Lookup(".kernctl.lock")
	require.False(t, ok)
}

func TestLoadDirMissingDirectoryErrors(t *testing.T) {
	r := NewRegistry()
	err := r.LoadDir(filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
}
