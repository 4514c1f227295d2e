// Copyright 2023 The Vitess Authors.
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
//
// Modifications Copyright 2025 Supabase, Inc.

package viperutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ConfigFileNotFoundHandling controls how LoadConfig treats a missing
// config file.
type ConfigFileNotFoundHandling string

const (
	// IgnoreConfigFileNotFound silently proceeds with defaults, environment
	// variables and flags.
	IgnoreConfigFileNotFound ConfigFileNotFoundHandling = "ignore"
	// WarnOnConfigFileNotFound logs a warning, then proceeds.
	WarnOnConfigFileNotFound ConfigFileNotFoundHandling = "warn"
	// ErrorOnConfigFileNotFound makes LoadConfig return the error.
	ErrorOnConfigFileNotFound ConfigFileNotFoundHandling = "error"
)

var handlingNames = []string{
	string(ErrorOnConfigFileNotFound),
	string(IgnoreConfigFileNotFound),
	string(WarnOnConfigFileNotFound),
}

// ViperConfig holds the values that control config file loading.
type ViperConfig struct {
	configPaths                Value[[]string]
	configType                 Value[string]
	configName                 Value[string]
	configFile                 Value[string]
	configFileNotFoundHandling Value[string]
}

// NewViperConfig declares the config loading values on reg.
func NewViperConfig(reg *Registry) *ViperConfig {
	return &ViperConfig{
		configPaths: Configure(reg, "config.paths", Options[[]string]{
			Default:  []string{"."},
			EnvVars:  []string{"NAMEDPOOL_CONFIG_PATH"},
			FlagName: "config-path",
		}),
		configType: Configure(reg, "config.type", Options[string]{
			EnvVars:  []string{"NAMEDPOOL_CONFIG_TYPE"},
			FlagName: "config-type",
		}),
		configName: Configure(reg, "config.name", Options[string]{
			Default:  "namedpool",
			EnvVars:  []string{"NAMEDPOOL_CONFIG_NAME"},
			FlagName: "config-name",
		}),
		configFile: Configure(reg, "config.file", Options[string]{
			EnvVars:  []string{"NAMEDPOOL_CONFIG_FILE"},
			FlagName: "config-file",
		}),
		configFileNotFoundHandling: Configure(reg, "config.notfound.handling", Options[string]{
			Default:  string(WarnOnConfigFileNotFound),
			FlagName: "config-file-not-found-handling",
		}),
	}
}

// RegisterFlags installs the flags that control config loading.
func (vc *ViperConfig) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringSlice("config-path", vc.configPaths.Default(), "Paths to search for config files in.")
	fs.String("config-type", vc.configType.Default(), "Config file type (omit to infer config type from file extension).")
	fs.String("config-name", vc.configName.Default(), "Name of the config file (without extension) to search for.")
	fs.String("config-file", vc.configFile.Default(), "Full path of the config file (with extension) to use. If set, --config-path, --config-type, and --config-name are ignored.")
	fs.String("config-file-not-found-handling", vc.configFileNotFoundHandling.Default(),
		fmt.Sprintf("Behavior when a config file is not found. (Options: %s)", strings.Join(handlingNames, ", ")))

	BindFlags(fs, vc.configPaths, vc.configType, vc.configName, vc.configFile, vc.configFileNotFoundHandling)
}

// SetConfigFile overrides the config file to load.
func (vc *ViperConfig) SetConfigFile(file string) {
	vc.configFile.Set(file)
}

// SetNotFoundHandling overrides how a missing config file is treated.
func (vc *ViperConfig) SetNotFoundHandling(h ConfigFileNotFoundHandling) {
	vc.configFileNotFoundHandling.Set(string(h))
}

// LoadConfig finds and loads a config file into both the static and the
// dynamic registry.
//
// --config-file (full path, including extension) if set is used to the
// exclusion of all other flags. Otherwise --config-name is searched for in
// each of --config-path.
//
// If a config file is loaded from the OS filesystem, the dynamic registry
// watches it for changes until the returned cancel function is called.
func (vc *ViperConfig) LoadConfig(reg *Registry, logger *slog.Logger) (context.CancelFunc, error) {
	if logger == nil {
		logger = slog.Default()
	}
	handling := ConfigFileNotFoundHandling(strings.ToLower(vc.configFileNotFoundHandling.Get()))
	if !slices.Contains(handlingNames, string(handling)) {
		return nil, fmt.Errorf("unknown config file not found handling %q", handling)
	}

	var err error
	switch file := vc.configFile.Get(); file {
	case "":
		reg.static.SetConfigName(vc.configName.Get())
		for _, path := range vc.configPaths.Get() {
			reg.static.AddConfigPath(path)
		}
		if cfgType := vc.configType.Get(); cfgType != "" {
			reg.static.SetConfigType(cfgType)
		}
		err = reg.static.ReadInConfig()
	default:
		reg.static.SetConfigFile(file)
		err = reg.static.ReadInConfig()
	}

	if err != nil && isConfigFileNotFoundError(err) {
		switch handling {
		case IgnoreConfigFileNotFound:
			return func() {}, nil
		case WarnOnConfigFileNotFound:
			logger.Warn("config file not found, using flags, environment and defaults", "error", err)
			return func() {}, nil
		case ErrorOnConfigFileNotFound:
			logger.Error("failed to read in config", "file", reg.static.ConfigFileUsed(), "error", err)
		}
	}
	if err != nil {
		return nil, err
	}

	used := reg.static.ConfigFileUsed()
	cfgType := vc.configType.Get()
	if err := reg.dynamic.load(used, cfgType); err != nil {
		return nil, err
	}
	logger.Info("loaded config file", "file", used)

	if _, ok := reg.fs.(*afero.OsFs); !ok {
		return func() {}, nil
	}
	return reg.dynamic.watch(context.Background(), used, cfgType, logger)
}

// isConfigFileNotFoundError checks if the error is caused because the file wasn't found.
func isConfigFileNotFoundError(err error) bool {
	if errors.As(err, &viper.ConfigFileNotFoundError{}) {
		return true
	}
	return errors.Is(err, os.ErrNotExist)
}

// NotifyConfigReload subscribes ch to config reloads. The notification fires
// after the updated config has been loaded into the dynamic registry.
//
// Analogous to signal.Notify, notifications are sent non-blocking, so users
// should account for this when writing code to consume from the channel.
func NotifyConfigReload(reg *Registry, ch chan<- struct{}) {
	reg.dynamic.notify(ch)
}
