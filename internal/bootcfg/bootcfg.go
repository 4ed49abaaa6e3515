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

// Package bootcfg loads the kernel's boot-time configuration.
//
// Grounded on runsc/config/flags.go's Config struct, trimmed down to the
// handful of knobs that matter at the process-subsystem core: the stride
// scheduler's step budget, where to find application images, and the name
// of the initial process. The rest of runsc's Config (networking, gofer,
// platform selection, ...) belongs to the boot sequence this spec treats
// as an external collaborator.
package bootcfg

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Defaults mirror the constants the original kernel hard-codes.
const (
	DefaultBigStride     = 255
	DefaultInitProcName  = "ch5b_initproc"
	DefaultInitPriority  = 16
	DefaultMaxSyscallNum = 500
)

// BootConfig is the kernel's boot-time configuration.
type BootConfig struct {
	// BigStride is the stride scheduler's per-fetch step budget
	// (spec §4.4). Must fit in a uint8.
	BigStride uint8 `toml:"big_stride"`

	// AppDir is the directory the app registry loads ELF images from.
	AppDir string `toml:"app_dir"`

	// InitProcName is the application name resolved to build INITPROC.
	InitProcName string `toml:"init_proc_name"`
}

// Default returns the configuration the kernel boots with when no TOML
// file is supplied.
func Default() *BootConfig {
	return &BootConfig{
		BigStride:    DefaultBigStride,
		AppDir:       "apps",
		InitProcName: DefaultInitProcName,
	}
}

// Load parses a BootConfig from a TOML file at path, filling in defaults
// for any field the file omits.
func Load(path string) (*BootConfig, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("bootcfg: decoding %q: %w", path, err)
	}
	if cfg.BigStride == 0 {
		return nil, fmt.Errorf("bootcfg: big_stride must be nonzero")
	}
	if cfg.InitProcName == "" {
		cfg.InitProcName = DefaultInitProcName
	}
	return cfg, nil
}
