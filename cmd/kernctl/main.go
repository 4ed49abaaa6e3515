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

// Command kernctl is the CLI entrypoint for the kernel's process
// subsystem core: it boots the scheduler from an app directory and runs
// the dispatch loop, or lists the apps a directory would register. Spec
// §6 names "CLI / persisted state: none at the core level" — this is new
// surface layered on top of the core, grounded on runsc/cli's
// subcommand-registration shape (Talismancer-gvisor-ligolo's
// runsc/cli/main.go).
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"

	"github.com/shiwenlong12/sentry-ch5b/internal/klog"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(new(bootCmd), "")
	subcommands.Register(new(appsCmd), "")

	flag.Parse()
	klog.SetDebug(os.Getenv("KERNCTL_DEBUG") != "")
	os.Exit(int(subcommands.Execute(context.Background())))
}
