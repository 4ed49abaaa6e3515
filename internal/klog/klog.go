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

// Package klog is the kernel's structured logger.
//
// It wraps a single package-level logrus.Logger the way runsc/cli wires up
// pkg/log: one configured instance reached from every subsystem, rather
// than passing a logger through every constructor.
package klog

import (
	"os"

	"github.com/sirupsen/logrus"
)

var log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetDebug raises the log level so boot and dispatch chatter is visible.
func SetDebug(debug bool) {
	if debug {
		log.SetLevel(logrus.DebugLevel)
		return
	}
	log.SetLevel(logrus.InfoLevel)
}

// Debugf logs at debug level.
func Debugf(format string, args ...any) { log.Debugf(format, args...) }

// Infof logs at info level.
func Infof(format string, args ...any) { log.Infof(format, args...) }

// Warnf logs at warn level.
func Warnf(format string, args ...any) { log.Warnf(format, args...) }

// Fatalf logs at fatal level and halts the process.
//
// Reserved for the "Programmer errors" and "Resource exhaustion" classes:
// double pid free, re-entrant exclusive-access cell, unknown syscall id.
// These never unwind gracefully, matching the kernel's own invariant that
// such violations abort rather than propagate.
func Fatalf(format string, args ...any) { log.Fatalf(format, args...) }
