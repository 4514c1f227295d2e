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

package connpoolmanager

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multigres/namedpool/go/pools/connpool"
	"github.com/multigres/namedpool/go/pools/fakedriver"
	"github.com/multigres/namedpool/go/viperutil"
)

const testConfig = `
pool:
  default-max-idle: 2
  default-max-total: 5
pools:
  - name: orders
    driver: fake
    dsn: postgres://localhost/orders
    max_total: 10
  - name: billing
    driver: fake
    max_idle: 0
  - driver: fake
`

func loadTestConfig(t *testing.T, content string) (*viperutil.Registry, *Config) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/namedpool.yaml", []byte(content), 0o644))

	reg := viperutil.NewRegistry()
	reg.SetFs(fs)
	cfg := NewConfig(reg)
	vc := viperutil.NewViperConfig(reg)
	vc.SetConfigFile("/etc/namedpool.yaml")

	cancel, err := vc.LoadConfig(reg, nil)
	require.NoError(t, err)
	t.Cleanup(cancel)
	return reg, cfg
}

func fakeBuilders(built map[string]*fakedriver.Factory) map[string]FactoryBuilder {
	return map[string]FactoryBuilder{
		"fake": func(spec PoolSpec) (connpool.Factory, error) {
			f := &fakedriver.Factory{}
			built[poolName(spec.Name)] = f
			return f, nil
		},
		"broken": func(spec PoolSpec) (connpool.Factory, error) {
			return nil, errors.New("bad dsn")
		},
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := NewConfig(viperutil.NewRegistry())

	assert.Equal(t, connpool.DefaultMaxIdle, cfg.DefaultMaxIdle())
	assert.Equal(t, connpool.DefaultMaxTotal, cfg.DefaultMaxTotal())

	specs, err := cfg.PoolSpecs()
	require.NoError(t, err)
	assert.Empty(t, specs)
}

func TestConfigFlags(t *testing.T) {
	cfg := NewConfig(viperutil.NewRegistry())
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.RegisterFlags(fs)

	flag := fs.Lookup("pool-default-max-idle")
	require.NotNil(t, flag)
	assert.Equal(t, "1", flag.DefValue)

	require.NoError(t, fs.Parse([]string{"--pool-default-max-idle", "4", "--pool-default-max-total", "8"}))
	assert.Equal(t, 4, cfg.DefaultMaxIdle())
	assert.Equal(t, 8, cfg.DefaultMaxTotal())
}

func TestConfigEnvVars(t *testing.T) {
	t.Setenv("NAMEDPOOL_DEFAULT_MAX_TOTAL", "16")
	cfg := NewConfig(viperutil.NewRegistry())
	assert.Equal(t, 16, cfg.DefaultMaxTotal())
}

func TestConfigPoolSpecs(t *testing.T) {
	_, cfg := loadTestConfig(t, testConfig)

	specs, err := cfg.PoolSpecs()
	require.NoError(t, err)
	require.Len(t, specs, 3)

	assert.Equal(t, "orders", specs[0].Name)
	assert.Equal(t, "fake", specs[0].Driver)
	assert.Equal(t, "postgres://localhost/orders", specs[0].DSN)
	assert.Nil(t, specs[0].MaxIdle)
	require.NotNil(t, specs[0].MaxTotal)
	assert.Equal(t, 10, *specs[0].MaxTotal)

	require.NotNil(t, specs[1].MaxIdle)
	assert.Equal(t, 0, *specs[1].MaxIdle)
	assert.Empty(t, specs[2].Name)
}

func TestConfigApply(t *testing.T) {
	_, cfg := loadTestConfig(t, testConfig)
	mgr, _ := newTestManager(t)
	built := map[string]*fakedriver.Factory{}

	require.NoError(t, cfg.Apply(mgr, fakeBuilders(built)))
	assert.Equal(t, []string{"billing", "namedpool_default", "orders"}, mgr.Names())

	stats := mgr.Stats().Pools
	assert.Equal(t, 2, stats["orders"].MaxIdle, "default applies when max_idle is unset")
	assert.Equal(t, 10, stats["orders"].MaxTotal)
	assert.Equal(t, 0, stats["billing"].MaxIdle)
	assert.Equal(t, 5, stats["billing"].MaxTotal)
	assert.Equal(t, 5, stats[DefaultPool].MaxTotal)

	// Re-applying keeps existing pools and their factories.
	first := built["orders"]
	require.NoError(t, cfg.Apply(mgr, fakeBuilders(built)))
	assert.Same(t, first, built["orders"])
	assert.Equal(t, 3, mgr.PoolCount())
}

func TestConfigApplyErrors(t *testing.T) {
	_, cfg := loadTestConfig(t, `
pools:
  - name: good
    driver: fake
  - name: unknown
    driver: oracle
  - name: broken
    driver: broken
`)
	mgr, _ := newTestManager(t)

	err := cfg.Apply(mgr, fakeBuilders(map[string]*fakedriver.Factory{}))
	require.Error(t, err)
	assert.ErrorContains(t, err, `unknown driver "oracle"`)
	assert.ErrorContains(t, err, "bad dsn")
	assert.Equal(t, []string{"good"}, mgr.Names(), "valid pools are applied regardless")
}

func TestConfigApplyOnReload(t *testing.T) {
	file := filepath.Join(t.TempDir(), "namedpool.yaml")
	require.NoError(t, os.WriteFile(file, []byte("pools:\n  - name: orders\n    driver: fake\n    max_total: 1\n"), 0o644))

	reg := viperutil.NewRegistry()
	cfg := NewConfig(reg)
	vc := viperutil.NewViperConfig(reg)
	vc.SetConfigFile(file)
	cancel, err := vc.LoadConfig(reg, nil)
	require.NoError(t, err)
	defer cancel()

	mgr, _ := newTestManager(t)
	builders := fakeBuilders(map[string]*fakedriver.Factory{})
	require.NoError(t, cfg.Apply(mgr, builders))
	require.Equal(t, 1, mgr.Stats().Pools["orders"].MaxTotal)

	stop := cfg.ApplyOnReload(mgr, builders, nil)
	defer stop()

	require.NoError(t, os.WriteFile(file, []byte(`
pools:
  - name: orders
    driver: fake
    max_total: 3
  - name: billing
    driver: fake
`), 0o644))

	require.Eventually(t, func() bool {
		return mgr.Has("billing") && mgr.Stats().Pools["orders"].MaxTotal == 3
	}, 5*time.Second, 10*time.Millisecond)
}
