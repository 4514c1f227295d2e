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

package servenv

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multigres/namedpool/go/viperutil"
)

func newTestLogger(t *testing.T, args ...string) (*Logger, string) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	reg := viperutil.NewRegistry()
	lg := NewLogger(reg)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	lg.RegisterFlags(fs)

	path := filepath.Join(t.TempDir(), "namedpool.log")
	require.NoError(t, fs.Parse(append([]string{"--log-output", path}, args...)))
	t.Cleanup(func() { _ = lg.Close() })
	return lg, path
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestLoggerDefaults(t *testing.T) {
	reg := viperutil.NewRegistry()
	lg := NewLogger(reg)

	assert.Equal(t, "info", lg.GetLogLevel())
	assert.Equal(t, "json", lg.GetLogFormat())
	assert.Equal(t, "stdout", lg.GetLogOutput())
	assert.Equal(t, slog.Default(), lg.GetLogger(), "falls back to the default logger before setup")
}

func TestSetupLoggingJSON(t *testing.T) {
	lg, path := newTestLogger(t, "--log-level", "warn")

	var setupCalls int
	lg.OnLoggingSetup(func(*slog.Logger) { setupCalls++ })

	logger := lg.SetupLogging()
	require.Same(t, logger, lg.SetupLogging(), "setup runs once")
	assert.Equal(t, 1, setupCalls)
	assert.Same(t, logger, slog.Default())

	logger.Info("hidden")
	logger.Warn("maximum number of connections reached", "pool", "orders")

	lines := readLines(t, path)
	require.Len(t, lines, 1, "info messages are below the configured level")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "orders", entry["pool"])
}

func TestSetupLoggingText(t *testing.T) {
	lg, path := newTestLogger(t, "--log-format", "text", "--log-level", "debug")

	lg.SetupLogging().Debug("creating a database connection", "pool", "orders")

	lines := readLines(t, path)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "logging initialized")
	assert.Contains(t, lines[1], "level=DEBUG")
	assert.Contains(t, lines[1], "pool=orders")
}

func TestReloadLevel(t *testing.T) {
	lg, path := newTestLogger(t, "--log-level", "error")
	logger := lg.SetupLogging()

	var changed []*slog.Logger
	lg.OnLoggingChange(func(l *slog.Logger) { changed = append(changed, l) })

	lg.ReloadLevel()
	assert.Empty(t, changed, "unchanged level fires no hook")

	lg.logLevel.Set("debug")
	lg.ReloadLevel()
	require.Len(t, changed, 1)
	assert.Same(t, logger, changed[0])

	logger.Debug("now visible")
	lines := readLines(t, path)
	assert.Contains(t, lines[len(lines)-1], "now visible")
}
