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
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// dynamicViper guards a viper instance that is re-read from disk while
// values are being read from other goroutines. viper itself is not safe for
// concurrent use.
type dynamicViper struct {
	mu sync.RWMutex
	v  *viper.Viper

	subsMu sync.Mutex
	subs   []chan<- struct{}
}

func newDynamicViper() *dynamicViper {
	return &dynamicViper{v: viper.New()}
}

func (d *dynamicViper) setFs(fs afero.Fs) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.v.SetFs(fs)
}

func (d *dynamicViper) configure(key string, def any, envVars []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	bindDefaultAndEnv(d.v, key, def, envVars)
}

func (d *dynamicViper) get(key string) any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.v.Get(key)
}

func (d *dynamicViper) allSettings() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.v.AllSettings()
}

// load reads file into the dynamic registry, replacing its previous content.
func (d *dynamicViper) load(file, cfgType string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.v.SetConfigFile(file)
	if cfgType != "" {
		d.v.SetConfigType(cfgType)
	}
	return d.v.ReadInConfig()
}

// notify subscribes ch to reload notifications. Sends never block.
func (d *dynamicViper) notify(ch chan<- struct{}) {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	d.subs = append(d.subs, ch)
}

func (d *dynamicViper) broadcast() {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	for _, ch := range d.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// watch re-reads file whenever it is written or replaced, and notifies
// subscribers after every successful reload. The returned function stops
// watching and waits for the watcher goroutine to exit.
func (d *dynamicViper) watch(ctx context.Context, file, cfgType string, logger *slog.Logger) (context.CancelFunc, error) {
	file = filepath.Clean(file)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors and config management tools often replace
	// the file instead of writing to it.
	if err := w.Add(filepath.Dir(file)); err != nil {
		_ = w.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != file || !ev.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				if err := d.load(file, cfgType); err != nil {
					logger.Warn("failed to reload config file", "file", file, "error", err)
					continue
				}
				logger.Info("config file reloaded", "file", file)
				d.broadcast()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("config file watcher error", "file", file, "error", err)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}, nil
}
