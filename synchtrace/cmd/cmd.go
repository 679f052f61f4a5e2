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

// Package cmd holds implementations of the synchtrace commands.
package cmd

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/kthreads/kthreads/pkg/log"
	"github.com/kthreads/kthreads/pkg/scenario"
	"github.com/kthreads/kthreads/synchtrace/config"
)

// Fatalf logs the error and exits with a failure status code.
func Fatalf(format string, args ...any) {
	log.Warningf(format, args...)
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(128)
}

// runAll loads every scenario file and runs each on its own kernel, up to
// conf.Parallel at a time. Results are in the order of paths. Loading errors
// abort the whole batch; kernel errors are reported in the results.
func runAll(ctx context.Context, conf *config.Config, paths []string) ([]*scenario.Scenario, []*scenario.Result, error) {
	scenarios := make([]*scenario.Scenario, len(paths))
	results := make([]*scenario.Result, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(conf.Parallel)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := scenario.Load(path)
			if err != nil {
				return err
			}
			opts := conf.KernelOptions()
			opts.Logger = log.PrefixedLogger(log.Log(), s.Name+": ")
			log.Debugf("Running scenario %s: %s", s.Name, s.Description)
			scenarios[i] = s
			results[i] = s.Run(opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return scenarios, results, nil
}
