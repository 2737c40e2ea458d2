// Copyright 2026 The kernelBridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package kernelspec

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/traylinx/kernelBridge/internal/backend"
	"github.com/traylinx/kernelBridge/internal/events"
)

// SpecSource provides a spec registry directly. Implemented by the
// in-process engine; assumed reliable but its failure is tolerated.
type SpecSource interface {
	Specs(ctx context.Context) (*SpecRegistry, error)
}

// RawSpecFetcher fetches the raw kernelspec payload (server envelope
// form) from a Jupyter server. Implemented by the remote client.
type RawSpecFetcher interface {
	FetchRawSpecs(ctx context.Context, baseURL, token string) ([]byte, error)
}

// Merger reconciles the in-process engine's spec set with a local or
// remote Jupyter server's spec set into one registry. The merged value
// is single-writer: every refresh builds a fresh registry and replaces
// the current one atomically, so readers never observe a half-merged
// state.
type Merger struct {
	cfg     backend.ConfigProvider
	engine  SpecSource
	fetcher RawSpecFetcher
	bus     *events.Bus

	mu       sync.RWMutex
	current  *SpecRegistry
	handlers map[int]func(*SpecRegistry)
	nextID   int
	disposed bool
}

// NewMerger creates a merger. The bus is optional; when set, a
// SpecsChanged event is published after every committed rebuild and a
// ConnectionFailure event when the remote spec endpoint is unreachable.
func NewMerger(cfg backend.ConfigProvider, engine SpecSource, fetcher RawSpecFetcher, bus *events.Bus) *Merger {
	return &Merger{
		cfg:      cfg,
		engine:   engine,
		fetcher:  fetcher,
		bus:      bus,
		handlers: make(map[int]func(*SpecRegistry)),
	}
}

// Current returns the current merged registry. It is nil until the
// first successful refresh; callers treat nil as "no specs known yet".
func (m *Merger) Current() *SpecRegistry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Has reports whether the current merged registry contains name. Used
// by the routers as the creation-time classification predicate.
func (m *Merger) Has(name string) bool {
	return m.Current().Has(name)
}

// OnSpecsChanged registers fn to run with the new registry after every
// committed rebuild. The returned function unregisters it.
func (m *Merger) OnSpecsChanged(fn func(*SpecRegistry)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.handlers[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.handlers, id)
	}
}

// Refresh rebuilds the merged registry from both sides. It returns
// true when a new registry was committed and false for a no-op. When
// both the server side and the engine yield nothing the previous
// registry is preserved untouched and no notification fires.
//
// Failures on the server side (unreachable host, non-success status,
// malformed payload) degrade that side to absent; they never abort the
// merge and never surface as an error. The returned error is reserved
// for context cancellation.
func (m *Merger) Refresh(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	server := m.fetchServerSpecs(ctx)
	engine := m.fetchEngineSpecs(ctx)

	if server.IsEmpty() && engine.IsEmpty() {
		log.Debug("Spec refresh yielded nothing from either side, keeping previous registry")
		return false, nil
	}

	merged := &SpecRegistry{KernelSpecs: make(map[string]*KernelSpec)}
	if server != nil {
		merged.Default = server.Default
		for name, spec := range server.KernelSpecs {
			merged.KernelSpecs[name] = spec
		}
	}
	if engine != nil {
		if merged.Default == "" {
			merged.Default = engine.Default
		}
		// Engine entries overlay server entries on name collision.
		for name, spec := range engine.KernelSpecs {
			merged.KernelSpecs[name] = spec
		}
	}

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return false, nil
	}
	m.current = merged
	handlers := make([]func(*SpecRegistry), 0, len(m.handlers))
	for _, fn := range m.handlers {
		handlers = append(handlers, fn)
	}
	m.mu.Unlock()

	// Notify after every committed rebuild, even a structurally
	// identical one; observers decide whether to diff.
	for _, fn := range handlers {
		fn(merged)
	}
	if m.bus != nil {
		m.bus.PublishAsync(&events.Event{
			Type: events.SpecsChanged,
			Data: map[string]interface{}{"default": merged.Default, "count": len(merged.KernelSpecs)},
		})
	}
	return true, nil
}

// Dispose prevents any in-flight refresh from committing a registry
// after the owner is gone. Idempotent.
func (m *Merger) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disposed = true
}

// fetchServerSpecs refreshes the server-side spec set chosen by the
// operating mode. In hybrid mode that is a true local Jupyter server,
// whose URLs are already resolvable and pass through unrewritten. In
// remote mode it is the user-configured remote server, whose resource
// URLs are rewritten to absolute, token-carrying form.
func (m *Merger) fetchServerSpecs(ctx context.Context) *SpecRegistry {
	switch m.cfg.Mode() {
	case backend.ModeHybrid:
		base := m.cfg.LocalServerURL()
		if base == "" {
			return nil
		}
		return m.fetchAndParse(ctx, base, "", false)
	case backend.ModeRemote:
		base := m.cfg.RemoteBaseURL()
		if base == "" {
			return nil
		}
		return m.fetchAndParse(ctx, base, m.cfg.RemoteToken(), true)
	default:
		return nil
	}
}

func (m *Merger) fetchAndParse(ctx context.Context, baseURL, token string, rewrite bool) *SpecRegistry {
	if m.fetcher == nil {
		return nil
	}
	payload, err := m.fetcher.FetchRawSpecs(ctx, baseURL, token)
	if err != nil {
		log.Debugf("Spec fetch from %s failed: %v", baseURL, err)
		if m.bus != nil {
			m.bus.PublishAsync(&events.Event{
				Type: events.ConnectionFailure,
				Data: map[string]interface{}{"base_url": baseURL, "error": err.Error()},
			})
		}
		return nil
	}

	root := gjson.ParseBytes(payload)
	reg := &SpecRegistry{
		Default:     root.Get("default").String(),
		KernelSpecs: make(map[string]*KernelSpec),
	}
	root.Get("kernelspecs").ForEach(func(k, v gjson.Result) bool {
		key := k.String()
		if rewrite {
			reg.KernelSpecs[key] = RewriteSpec(key, v, baseURL, token)
		} else {
			reg.KernelSpecs[key] = ParseSpec(key, v)
		}
		return true
	})
	if len(reg.KernelSpecs) == 0 {
		return nil
	}
	return reg
}

func (m *Merger) fetchEngineSpecs(ctx context.Context) *SpecRegistry {
	if m.engine == nil {
		return nil
	}
	reg, err := m.engine.Specs(ctx)
	if err != nil {
		// The engine is in-process; a failure here is unexpected but
		// must not abort the merge.
		log.Warnf("Engine spec refresh failed: %v", err)
		return nil
	}
	return reg
}
