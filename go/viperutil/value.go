// Copyright 2025 Supabase, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package viperutil

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Registerable is a configured value that can be bound to a command line flag.
type Registerable interface {
	// Key returns the viper key of the value.
	Key() string

	flagName() string
	bindFlag(f *pflag.Flag) error
}

// Value is a typed config value declared on a Registry.
type Value[T any] interface {
	Registerable

	// Default returns the default value.
	Default() T

	// Get returns the current value, taking flags, environment, config file
	// and default into account, in that order.
	Get() T

	// Set overrides the value in the registry.
	Set(v T)
}

// Options controls how a value is configured.
type Options[T any] struct {
	// Default is returned when no other source sets the value.
	Default T

	// FlagName is the name of the flag BindFlags binds the value to.
	FlagName string

	// EnvVars are the environment variables consulted, in order.
	EnvVars []string

	// Dynamic values are refreshed when the loaded config file changes.
	Dynamic bool

	// GetFunc overrides how the value is read from viper.
	GetFunc func(v *viper.Viper) func(key string) T
}

// Configure declares a value under key on the registry.
func Configure[T any](reg *Registry, key string, opts Options[T]) Value[T] {
	getFunc := opts.GetFunc
	if getFunc == nil {
		getFunc = getFuncForType[T]
	}

	if opts.Dynamic {
		d := reg.dynamic
		d.configure(key, opts.Default, opts.EnvVars)
		return &dynamicValue[T]{
			key:  key,
			opts: opts,
			d:    d,
			get:  getFunc(d.v),
		}
	}

	bindDefaultAndEnv(reg.static, key, opts.Default, opts.EnvVars)
	return &staticValue[T]{
		key:  key,
		opts: opts,
		v:    reg.static,
		get:  getFunc(reg.static),
	}
}

func bindDefaultAndEnv(v *viper.Viper, key string, def any, envVars []string) {
	v.SetDefault(key, def)
	if len(envVars) > 0 {
		// BindEnv only fails when called without a key.
		_ = v.BindEnv(append([]string{key}, envVars...)...)
	}
}

// BindFlags binds each value to the flag of the same FlagName in fs.
// Values without a FlagName, or whose flag is not registered, are skipped.
func BindFlags(fs *pflag.FlagSet, values ...Registerable) {
	for _, val := range values {
		name := val.flagName()
		if name == "" {
			continue
		}
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := val.bindFlag(f); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s to %s: %v", name, val.Key(), err))
		}
	}
}

type staticValue[T any] struct {
	key  string
	opts Options[T]
	v    *viper.Viper
	get  func(key string) T
}

func (val *staticValue[T]) Key() string      { return val.key }
func (val *staticValue[T]) Default() T       { return val.opts.Default }
func (val *staticValue[T]) Get() T           { return val.get(val.key) }
func (val *staticValue[T]) Set(v T)          { val.v.Set(val.key, v) }
func (val *staticValue[T]) flagName() string { return val.opts.FlagName }

func (val *staticValue[T]) bindFlag(f *pflag.Flag) error {
	return val.v.BindPFlag(val.key, f)
}

type dynamicValue[T any] struct {
	key  string
	opts Options[T]
	d    *dynamicViper
	get  func(key string) T
}

func (val *dynamicValue[T]) Key() string      { return val.key }
func (val *dynamicValue[T]) Default() T       { return val.opts.Default }
func (val *dynamicValue[T]) flagName() string { return val.opts.FlagName }

func (val *dynamicValue[T]) Get() T {
	val.d.mu.RLock()
	defer val.d.mu.RUnlock()
	return val.get(val.key)
}

func (val *dynamicValue[T]) Set(v T) {
	val.d.mu.Lock()
	defer val.d.mu.Unlock()
	val.d.v.Set(val.key, v)
}

func (val *dynamicValue[T]) bindFlag(f *pflag.Flag) error {
	val.d.mu.Lock()
	defer val.d.mu.Unlock()
	return val.d.v.BindPFlag(val.key, f)
}

// getFuncForType returns the viper getter matching T, falling back to
// UnmarshalKey for other types.
func getFuncForType[T any](v *viper.Viper) func(key string) T {
	var (
		zero T
		f    any
	)
	switch any(zero).(type) {
	case string:
		f = v.GetString
	case bool:
		f = v.GetBool
	case int:
		f = v.GetInt
	case int64:
		f = v.GetInt64
	case float64:
		f = v.GetFloat64
	case time.Duration:
		f = v.GetDuration
	case []string:
		f = v.GetStringSlice
	default:
		return func(key string) T {
			var out T
			_ = v.UnmarshalKey(key, &out)
			return out
		}
	}
	return f.(func(string) T)
}
