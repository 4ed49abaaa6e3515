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

// Package loader implements the app registry (spec §4's
// _num_app/_app_names contract), reimagined per SPEC_FULL.md C6 as an
// in-process registry loaded from a directory of app image files at
// boot, grounded on original_source/os5/src/loader.rs's
// get_app_data/get_app_data_by_name/list_apps.
package loader

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"golang.org/x/sync/errgroup"

	"github.com/shiwenlong12/sentry-ch5b/internal/klog"
)

// lockFileName is the advisory-lock sentinel LoadDir creates inside dir;
// it must never be registered as an app.
const lockFileName = ".kernctl.lock"

// entry is one loaded app image plus its invocation metadata as an
// OCI-shaped specs.Process (Args holding the app name, Cwd "/"), exposed
// through Registry.Process. The exec and spawn syscalls resolve only the
// image via Lookup; they do not read or attach this Process.
type entry struct {
	name  string
	image []byte
	proc  specs.Process
}

// Registry is the boot-time, read-only table of loadable app images: the
// Go analogue of APP_NAMES plus the _num_app/_app_start blob (spec's
// loader contract).
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// LoadDir populates the registry from every regular file directly inside
// dir, one app per file, named after the file's base name. Files are read
// concurrently (golang.org/x/sync/errgroup), and a boot-time advisory
// lock on dir/.kernctl.lock (github.com/gofrs/flock) guards against two
// kernel processes racing to boot from the same app directory.
func (r *Registry) LoadDir(dir string) error {
	lock := flock.New(filepath.Join(dir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return err
	}
	if !locked {
		klog.Fatalf("loader: app directory %s is locked by another kernel instance", dir)
	}
	defer lock.Unlock()

	files, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var (
		mu     sync.Mutex
		loaded []*entry
		g      errgroup.Group
	)
	for _, f := range files {
		if !f.Type().IsRegular() {
			continue
		}
		name := f.Name()
		if name == lockFileName {
			continue
		}
		path := filepath.Join(dir, name)
		g.Go(func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			e := &entry{
				name:  name,
				image: data,
				proc: specs.Process{
					Args: []string{name},
					Cwd:  "/",
				},
			}
			mu.Lock()
			loaded = append(loaded, e)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	sort.Slice(loaded, func(i, j int) bool { return loaded[i].name < loaded[j].name })

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range loaded {
		if _, exists := r.entries[e.name]; !exists {
			r.order = append(r.order, e.name)
		}
		r.entries[e.name] = e
	}
	return nil
}

// Lookup returns the ELF image data registered under name (spec's
// get_app_data_by_name).
func (r *Registry) Lookup(name string) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.image, true
}

// Process returns the OCI-shaped process metadata registered under name.
func (r *Registry) Process(name string) (specs.Process, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return specs.Process{}, false
	}
	return e.proc, true
}

// Names returns every registered app name in load order (spec's
// list_apps).
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len reports how many apps are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
