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
	"github.com/shiwenlong12/sentry-ch5b/internal/klog"
	"github.com/shiwenlong12/sentry-ch5b/internal/loader"
)

// appsCmd implements subcommands.Command for "apps", the Go analogue of
// original_source/os5/src/loader.rs's list_apps.
type appsCmd struct {
	appDir string
}

func (*appsCmd) Name() string     { return "apps" }
func (*appsCmd) Synopsis() string { return "list the apps available in an app directory" }
func (*appsCmd) Usage() string    { return "apps [-apps dir]\n" }

func (c *appsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.appDir, "apps", bootcfg.Default().AppDir, "app directory to list")
}

func (c *appsCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	reg := loader.NewRegistry()
	if err := reg.LoadDir(c.appDir); err != nil {
		klog.Warnf("kernctl: loading app directory %s: %v", c.appDir, err)
		return subcommands.ExitFailure
	}
	fmt.Println("/**** APPS ****")
	for _, name := range reg.Names() {
		fmt.Println(name)
	}
	fmt.Println("**************/")
	return subcommands.ExitSuccess
}
