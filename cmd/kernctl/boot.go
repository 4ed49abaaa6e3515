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

package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/shiwenlong12/sentry-ch5b/internal/bootcfg"
	"github.com/shiwenlong12/sentry-ch5b/internal/kernel"
	"github.com/shiwenlong12/sentry-ch5b/internal/klog"
	"github.com/shiwenlong12/sentry-ch5b/internal/loader"
	"github.com/shiwenlong12/sentry-ch5b/internal/mm"
	"github.com/shiwenlong12/sentry-ch5b/internal/proc"
	"github.com/shiwenlong12/sentry-ch5b/internal/syscalls"
)

// bootCmd implements subcommands.Command for "boot".
type bootCmd struct {
	configPath string
	appDir     string
}

func (*bootCmd) Name() string { return "boot" }

func (*bootCmd) Synopsis() string {
	return "load an app directory, construct INITPROC, and run the dispatch loop"
}

func (*bootCmd) Usage() string {
	return "boot [-config path] [-apps dir]\n"
}

func (c *bootCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "path to a TOML boot config (see internal/bootcfg); defaults used if empty")
	f.StringVar(&c.appDir, "apps", "", "app directory to load; overrides the config's app_dir")
}

// Execute implements subcommands.Command. It mirrors
// original_source/os5/src/main.rs's init sequence: load apps, construct
// INITPROC, add it to the ready queue, enter run_tasks.
func (c *bootCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	cfg := bootcfg.Default()
	if c.configPath != "" {
		loaded, err := bootcfg.Load(c.configPath)
		if err != nil {
			klog.Warnf("kernctl: loading config %s: %v", c.configPath, err)
			return subcommands.ExitFailure
		}
		cfg = loaded
	}
	if c.appDir != "" {
		cfg.AppDir = c.appDir
	}

	reg := loader.NewRegistry()
	if err := reg.LoadDir(cfg.AppDir); err != nil {
		klog.Warnf("kernctl: loading app directory %s: %v", cfg.AppDir, err)
		return subcommands.ExitFailure
	}
	syscalls.SetRegistry(reg)
	proc.ConfigureBigStride(cfg.BigStride)

	data, ok := reg.Lookup(cfg.InitProcName)
	if !ok {
		klog.Warnf("kernctl: app %q not found in %s", cfg.InitProcName, cfg.AppDir)
		return subcommands.ExitFailure
	}

	initTask, err := kernel.NewInitTask(mm.SimpleELFImage{}, data)
	if err != nil {
		klog.Warnf("kernctl: building INITPROC: %v", err)
		return subcommands.ExitFailure
	}
	initTask.SetPriority(bootcfg.DefaultInitPriority)
	kernel.SetInitProc(initTask)
	proc.AddTask(initTask)

	fmt.Printf("kernctl: booted %q (pid %d), %d app(s) registered\n", cfg.InitProcName, initTask.PID(), reg.Len())
	proc.RunTasks(driveOneQuantum)
	return subcommands.ExitSuccess
}

// driveOneQuantum stands in for a task's actual program. Real user-mode
// instruction execution is out of scope (spec §1); this is the smallest
// program the model can run without an interpreter: yield once to
// exercise the ready queue, then exit(0).
func driveOneQuantum(t *kernel.Task) {
	if t.TaskContext().Dispatches() < 2 {
		syscalls.Dispatch(t, syscalls.Yield, [3]uintptr{})
		return
	}
	syscalls.Dispatch(t, syscalls.Exit, [3]uintptr{0})
}
