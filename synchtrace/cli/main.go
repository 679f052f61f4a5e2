// Copyright 2026 The gVisor Authors.
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

// Package cli is the main entrypoint for synchtrace.
package cli

import (
	"context"
	"flag"
	"io"
	"os"
	"runtime"

	"github.com/google/subcommands"

	"github.com/kthreads/kthreads/pkg/log"
	"github.com/kthreads/kthreads/synchtrace/cmd"
	"github.com/kthreads/kthreads/synchtrace/config"
)

// Main is the main entrypoint.
func Main() {
	// Register all commands.
	forEachCmd(subcommands.Register)

	// Register with the main command line.
	config.RegisterFlags(flag.CommandLine)

	// All subcommands must be registered before flag parsing.
	flag.Parse()

	if err := config.ApplyFile(flag.CommandLine); err != nil {
		cmd.Fatalf("%v", err)
	}
	conf, err := config.NewFromFlags(flag.CommandLine)
	if err != nil {
		cmd.Fatalf("%v", err)
	}

	var logFile io.Writer = os.Stderr
	if conf.LogFilename != "" {
		f, err := log.OpenFile(conf.LogFilename)
		if err != nil {
			cmd.Fatalf("error opening log file %q: %v", conf.LogFilename, err)
		}
		logFile = f
	}
	log.SetTarget(newEmitter(conf.LogFormat, logFile))
	if conf.Debug {
		log.SetLevel(log.Debug)
	} else {
		log.SetLevel(log.Warning)
	}
	if err := log.CopyStandardLogTo(log.Info); err != nil {
		cmd.Fatalf("%v", err)
	}

	const delimString = `************** synchtrace **************`
	log.Infof(delimString)
	log.Infof("%s, %s, %s, PID %d", runtime.Version(), runtime.GOARCH, runtime.GOOS, os.Getpid())
	log.Infof("Args: %v", os.Args)
	conf.Log()
	log.Infof(delimString)

	os.Exit(int(subcommands.Execute(context.Background(), conf)))
}

// forEachCmd invokes the passed callback for each command supported by
// synchtrace.
func forEachCmd(cb func(cmd subcommands.Command, group string)) {
	// Help and flags commands are generated automatically.
	cb(subcommands.HelpCommand(), "")
	cb(subcommands.FlagsCommand(), "")
	cb(subcommands.CommandsCommand(), "")

	cb(new(cmd.Run), "")
	cb(new(cmd.Check), "")
}

func newEmitter(format string, logFile io.Writer) log.Emitter {
	switch format {
	case "text":
		return log.GoogleEmitter{Writer: &log.Writer{Next: logFile}}
	case "plain":
		return &log.Writer{Next: logFile}
	case "json":
		return log.JSONEmitter{Writer: &log.Writer{Next: logFile}}
	case "json-k8s":
		return log.K8sJSONEmitter{Writer: &log.Writer{Next: logFile}}
	}
	cmd.Fatalf("invalid log format %q, must be 'text', 'plain', 'json', or 'json-k8s'", format)
	panic("unreachable")
}
