// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"daogate/internal/gateway/registry"
)

// Manager owns the live Config, hot-reloads it from disk on change, and
// blends transitions in over a metamorphic window (spec.md §4.E). It
// satisfies liminal.MetamorphicTicker via Tick, so a Controller can
// progress it on the same cadence as consciousness/ritual updates without
// either package importing the other.
//
// The hot-reload watcher is grounded on 99souls-ariadne's HotReloadSystem:
// it watches the config file's containing directory rather than the file
// itself (directory watches survive editors that replace-on-save instead
// of writing in place), filters events down to the exact file name, and
// reacts only to Write.
type Manager struct {
	mu         sync.RWMutex
	path       string
	registry   *registry.Registry
	current    *Config
	checksum   string
	transition *MetamorphicTransition

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	now     func() time.Time
}

// NewManager constructs a Manager bound to reg, performing an initial
// synchronous Load of path. The caller is responsible for calling
// StartWatching if hot reload is desired.
func NewManager(reg *registry.Registry, path string) (*Manager, error) {
	m := &Manager{path: path, registry: reg, now: time.Now}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", m.path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return err
	}
	if err := m.registry.Reload(cfg.ToReloadSpec(), cfg.Presence.ToPresenceOptions()); err != nil {
		return fmt.Errorf("config: initial reload: %w", err)
	}
	m.mu.Lock()
	m.current = cfg
	m.checksum = cfg.Checksum()
	m.mu.Unlock()
	return nil
}

// Current returns the currently effective, possibly mid-transition, Config.
func (m *Manager) Current() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reload re-reads path (typically m.path) and, if it validates and differs
// from the current checksum, starts a metamorphic transition toward it. A
// parse or validation failure is logged and leaves the current config
// completely untouched — a bad config file must never take the gateway
// down.
func (m *Manager) Reload(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("config: reload: read %s: %v", path, err)
		return
	}
	next, err := Parse(data)
	if err != nil {
		log.Printf("config: reload: invalid config, keeping current: %v", err)
		return
	}
	sum := next.Checksum()

	m.mu.Lock()
	if sum == m.checksum {
		m.mu.Unlock()
		return
	}
	from := m.current
	m.transition = NewMetamorphicTransition(from, next, m.now(), next.Metamorphic.Duration())
	m.checksum = sum
	m.mu.Unlock()

	// New/removed upstreams take effect immediately: added ones are usable
	// from progress 0, removed ones are marked Draining until Tick prunes
	// them at progress 1.
	if err := m.registry.Reload(next.ToReloadSpec(), next.Presence.ToPresenceOptions()); err != nil {
		log.Printf("config: reload: registry rejected new topology, keeping scalars on old config: %v", err)
		m.mu.Lock()
		m.transition = nil
		m.mu.Unlock()
		return
	}
	log.Printf("config: reload: transition started, %s", next.Metamorphic.Duration())
}

// Tick advances any in-flight metamorphic transition (spec.md §4.B step 5).
// It satisfies liminal.MetamorphicTicker.
func (m *Manager) Tick(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transition == nil {
		return
	}
	m.current = m.transition.Blend(now)
	if m.transition.Done(now) {
		m.current = m.transition.to
		m.transition = nil
		go m.registry.Prune()
		log.Printf("config: transition complete")
	}
}

// StartWatching begins watching path's containing directory for changes,
// calling Reload whenever the file itself is written. It is safe to call at
// most once per Manager.
func (m *Manager) StartWatching() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: new watcher: %w", err)
	}
	dir := filepath.Dir(m.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("config: watch dir %s: %w", dir, err)
	}

	m.watcher = watcher
	m.stopCh = make(chan struct{})
	go m.watchLoop()
	return nil
}

func (m *Manager) watchLoop() {
	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(m.path) {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write {
				m.Reload(m.path)
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("config: watcher error: %v", err)
		case <-m.stopCh:
			return
		}
	}
}

// StopWatching tears down the hot-reload watcher. A no-op if StartWatching
// was never called.
func (m *Manager) StopWatching() error {
	if m.watcher == nil {
		return nil
	}
	close(m.stopCh)
	return m.watcher.Close()
}
