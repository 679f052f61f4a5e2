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

// Package config holds the synchtrace configuration and its flags.
package config

import (
	"flag"
	"fmt"
	"reflect"
	"sort"
	"strconv"

	"github.com/BurntSushi/toml"

	"github.com/kthreads/kthreads/pkg/kernel"
	"github.com/kthreads/kthreads/pkg/log"
)

// Config holds the configuration shared by all synchtrace commands. Fields
// tagged with "flag" are populated from the flag of that name.
type Config struct {
	// Debug enables debug logging, including kernel scheduling events.
	Debug bool `flag:"debug"`

	// LogFilename is the file logs are appended to. Empty means stderr.
	LogFilename string `flag:"log"`

	// LogFormat is the log format: text, plain, json, or json-k8s.
	LogFormat string `flag:"log-format"`

	// DonationDepth bounds priority donation chains for scenarios that do
	// not set their own bound.
	DonationDepth int `flag:"donation-depth"`

	// Parallel is the number of scenarios run at once.
	Parallel int `flag:"parallel"`

	// File is the TOML file flag defaults were read from, if any.
	File string `flag:"config"`
}

// RegisterFlags registers flags used to populate Config.
func RegisterFlags(flagSet *flag.FlagSet) {
	flagSet.Bool("debug", false, "enable debug logging.")
	flagSet.String("log", "", "file path where logs are appended, default is stderr.")
	flagSet.String("log-format", "text", "log format: text (default), plain, json, or json-k8s.")
	flagSet.Int("donation-depth", kernel.DefaultDonationDepth, "maximum number of lock holders a single priority donation walks through.")
	flagSet.Int("parallel", 4, "number of scenarios to run concurrently.")
	flagSet.String("config", "", "TOML file with flag defaults, keyed by flag name.")
}

// NewFromFlags creates a new Config with values coming from flagSet.
func NewFromFlags(flagSet *flag.FlagSet) (*Config, error) {
	conf := &Config{}

	obj := reflect.ValueOf(conf).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			continue
		}
		fl := flagSet.Lookup(name)
		if fl == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		x := reflect.ValueOf(fl.Value.(flag.Getter).Get())
		obj.Field(i).Set(x)
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// ApplyFile reads the TOML file named by the "config" flag, if set, and uses
// its values for every flag that was not given on the command line. Keys are
// flag names.
func ApplyFile(flagSet *flag.FlagSet) error {
	path := flagSet.Lookup("config").Value.String()
	if path == "" {
		return nil
	}
	var values map[string]any
	if _, err := toml.DecodeFile(path, &values); err != nil {
		return fmt.Errorf("error reading config file %q: %w", path, err)
	}

	explicit := make(map[string]bool)
	flagSet.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fl := flagSet.Lookup(name)
		if fl == nil || name == "config" {
			return fmt.Errorf("config file %q: unknown flag %q", path, name)
		}
		if explicit[name] {
			continue
		}
		if err := fl.Value.Set(fmt.Sprint(values[name])); err != nil {
			return fmt.Errorf("config file %q: flag %s=%v: %w", path, name, values[name], err)
		}
	}
	return nil
}

// ToFlags returns the flags that reproduce c, omitting defaults.
func (c *Config) ToFlags() []string {
	var rv []string

	flagSet := flag.NewFlagSet("tmp", flag.ContinueOnError)
	RegisterFlags(flagSet)

	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		name, ok := st.Field(i).Tag.Lookup("flag")
		if !ok {
			continue
		}
		val := getVal(obj.Field(i))
		fl := flagSet.Lookup(name)
		if fl == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		if val == fl.DefValue {
			continue
		}
		rv = append(rv, fmt.Sprintf("--%s=%s", fl.Name, val))
	}
	return rv
}

// KernelOptions returns the kernel options c selects.
func (c *Config) KernelOptions() kernel.Options {
	return kernel.Options{DonationDepth: c.DonationDepth}
}

// Log logs the configuration at info level.
func (c *Config) Log() {
	log.Infof("Config: %s", c.ToFlags())
}

func (c *Config) validate() error {
	switch c.LogFormat {
	case "text", "plain", "json", "json-k8s":
	default:
		return fmt.Errorf("invalid log format %q, must be 'text', 'plain', 'json', or 'json-k8s'", c.LogFormat)
	}
	if c.DonationDepth < 1 {
		return fmt.Errorf("donation-depth must be at least 1, got %d", c.DonationDepth)
	}
	if c.Parallel < 1 {
		return fmt.Errorf("parallel must be at least 1, got %d", c.Parallel)
	}
	return nil
}

func getVal(field reflect.Value) string {
	switch field.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(field.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(field.Int(), 10)
	case reflect.String:
		return field.String()
	default:
		panic("unknown type " + field.Kind().String())
	}
}
