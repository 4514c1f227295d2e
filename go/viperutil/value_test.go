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
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureDefaults(t *testing.T) {
	reg := NewRegistry()

	str := Configure(reg, "a.string", Options[string]{Default: "x"})
	num := Configure(reg, "a.int", Options[int]{Default: 3})
	big := Configure(reg, "a.int64", Options[int64]{Default: 1 << 40})
	flag := Configure(reg, "a.bool", Options[bool]{Default: true})
	dur := Configure(reg, "a.duration", Options[time.Duration]{Default: time.Minute})
	list := Configure(reg, "a.list", Options[[]string]{Default: []string{"p", "q"}})
	dyn := Configure(reg, "a.dynamic", Options[int]{Default: 9, Dynamic: true})

	assert.Equal(t, "x", str.Get())
	assert.Equal(t, 3, num.Get())
	assert.Equal(t, int64(1<<40), big.Get())
	assert.True(t, flag.Get())
	assert.Equal(t, time.Minute, dur.Get())
	assert.Equal(t, []string{"p", "q"}, list.Get())
	assert.Equal(t, 9, dyn.Get())
	assert.Equal(t, 9, dyn.Default())
	assert.Equal(t, "a.dynamic", dyn.Key())
}

func TestConfigureIsolatedRegistries(t *testing.T) {
	reg1 := NewRegistry()
	reg2 := NewRegistry()

	v1 := Configure(reg1, "key", Options[string]{Default: "one"})
	v2 := Configure(reg2, "key", Options[string]{Default: "two"})
	v1.Set("changed")

	assert.Equal(t, "changed", v1.Get())
	assert.Equal(t, "two", v2.Get())
}

func TestConfigureEnvVars(t *testing.T) {
	t.Setenv("NAMEDPOOL_TEST_MAX", "12")

	reg := NewRegistry()
	static := Configure(reg, "test.max", Options[int]{Default: 1, EnvVars: []string{"NAMEDPOOL_TEST_MAX"}})
	dynamic := Configure(reg, "test.max-dyn", Options[int]{Default: 1, EnvVars: []string{"NAMEDPOOL_TEST_MAX"}, Dynamic: true})

	assert.Equal(t, 12, static.Get())
	assert.Equal(t, 12, dynamic.Get())
}

func TestBindFlags(t *testing.T) {
	reg := NewRegistry()
	static := Configure(reg, "pool.max", Options[int]{Default: 1, FlagName: "pool-max"})
	dynamic := Configure(reg, "pool.idle", Options[int]{Default: 1, FlagName: "pool-idle", Dynamic: true})
	unbound := Configure(reg, "pool.other", Options[int]{Default: 5, FlagName: "not-registered"})
	noFlag := Configure(reg, "pool.none", Options[int]{Default: 6})

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("pool-max", static.Default(), "")
	fs.Int("pool-idle", dynamic.Default(), "")
	BindFlags(fs, static, dynamic, unbound, noFlag)

	// Unparsed flags fall through to the default
	assert.Equal(t, 1, static.Get())

	require.NoError(t, fs.Parse([]string{"--pool-max", "10", "--pool-idle", "3"}))
	assert.Equal(t, 10, static.Get())
	assert.Equal(t, 3, dynamic.Get())
	assert.Equal(t, 5, unbound.Get())
	assert.Equal(t, 6, noFlag.Get())
}

func TestCustomGetFunc(t *testing.T) {
	type level int
	reg := NewRegistry()
	lvl := Configure(reg, "level", Options[level]{Default: 2})

	// Falls back to UnmarshalKey for types viper has no getter for.
	assert.Equal(t, level(2), lvl.Get())
	lvl.Set(level(4))
	assert.Equal(t, level(4), lvl.Get())
}
