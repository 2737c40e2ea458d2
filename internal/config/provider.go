// Copyright 2026 The kernelBridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"strconv"
	"sync"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/kernelBridge/internal/backend"
	"github.com/traylinx/kernelBridge/internal/store"
)

// Provider implements backend.ConfigProvider over the loaded file
// configuration and the settings store. Every getter is evaluated when
// called: a change through the management API or a file reload is
// visible on the next operation without reconstructing anything. Only
// the operating mode is pinned at construction, per its contract.
type Provider struct {
	mode backend.Mode

	mu       sync.RWMutex
	cfg      *Config
	settings *store.SettingsStore

	handlers      map[int]func()
	nextHandlerID int

	watcher *fsnotify.Watcher
}

// NewProvider creates a provider over cfg. The settings store is
// optional; without it only file values are served.
func NewProvider(cfg *Config, settings *store.SettingsStore) *Provider {
	mode := backend.ModeRemote
	if cfg.Mode == string(backend.ModeHybrid) {
		mode = backend.ModeHybrid
	}
	return &Provider{
		mode:     mode,
		cfg:      cfg,
		settings: settings,
		handlers: make(map[int]func()),
	}
}

// Config returns the current file configuration.
func (p *Provider) Config() *Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// Mode returns the operating mode fixed at process start.
func (p *Provider) Mode() backend.Mode { return p.mode }

// RemoteBaseURL returns the effective remote base URL: the stored
// user-entered value when present, else the file default.
func (p *Provider) RemoteBaseURL() string {
	if v, ok := p.setting(store.KeyRemoteBaseURL); ok {
		return v
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg.Remote.BaseURL
}

// RemoteToken returns the effective remote token.
func (p *Provider) RemoteToken() string {
	if v, ok := p.setting(store.KeyRemoteToken); ok {
		return v
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg.Remote.Token
}

// RemoteConnected reports whether the user marked the remote server as
// connected. Defaults to true whenever a base URL is configured.
func (p *Provider) RemoteConnected() bool {
	if v, ok := p.setting(store.KeyRemoteConnected); ok {
		b, err := strconv.ParseBool(v)
		return err == nil && b
	}
	return p.RemoteBaseURL() != ""
}

// LocalServerURL returns the hybrid-mode local Jupyter server URL.
func (p *Provider) LocalServerURL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg.LocalServer
}

func (p *Provider) setting(key string) (string, bool) {
	if p.settings == nil {
		return "", false
	}
	v, ok, err := p.settings.Get(key)
	if err != nil {
		log.Warnf("Failed to read setting %s: %v", key, err)
		return "", false
	}
	return v, ok
}

// SetRemote stores the user-entered remote configuration and notifies
// change handlers.
func (p *Provider) SetRemote(baseURL, token string, connected bool) error {
	if p.settings == nil {
		p.mu.Lock()
		p.cfg.Remote.BaseURL = baseURL
		p.cfg.Remote.Token = token
		p.mu.Unlock()
		p.fire()
		return nil
	}
	if err := p.settings.Set(store.KeyRemoteBaseURL, baseURL); err != nil {
		return err
	}
	if err := p.settings.Set(store.KeyRemoteToken, token); err != nil {
		return err
	}
	if err := p.settings.Set(store.KeyRemoteConnected, strconv.FormatBool(connected)); err != nil {
		return err
	}
	p.fire()
	return nil
}

// OnChange registers fn to run after any configuration update.
func (p *Provider) OnChange(fn func()) (unsubscribe func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextHandlerID++
	id := p.nextHandlerID
	p.handlers[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.handlers, id)
	}
}

func (p *Provider) fire() {
	p.mu.RLock()
	fns := make([]func(), 0, len(p.handlers))
	for _, fn := range p.handlers {
		fns = append(fns, fn)
	}
	p.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

// Watch reloads the file configuration whenever it changes on disk.
// The operating mode is deliberately not reloaded.
func (p *Provider) Watch(path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return err
	}
	p.watcher = watcher

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					log.Warnf("Config reload failed, keeping previous configuration: %v", err)
					continue
				}
				p.mu.Lock()
				p.cfg = cfg
				p.mu.Unlock()
				log.Info("Configuration reloaded")
				p.fire()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("Config watcher error: %v", err)
			}
		}
	}()
	return nil
}

// Close stops the file watcher, if any.
func (p *Provider) Close() error {
	if p.watcher != nil {
		return p.watcher.Close()
	}
	return nil
}
