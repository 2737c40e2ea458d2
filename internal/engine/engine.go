// Copyright 2026 The kernelBridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package engine implements the in-process kernel-execution engine. It
// serves a fixed, configuration-supplied set of kernel specs and runs
// each kernel as a goroutine inside the bridge process. The engine is
// the authoritative "local" backend: an id belongs to it exactly when
// it appears in Running().
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/kernelBridge/internal/backend"
	"github.com/traylinx/kernelBridge/internal/kernelspec"
)

// Kernel execution states, matching the Jupyter protocol vocabulary.
const (
	StateStarting = "starting"
	StateIdle     = "idle"
	StateBusy     = "busy"
	StateDead     = "dead"
)

// SpecDef declares one kernel type the engine can serve.
type SpecDef struct {
	Name        string
	DisplayName string
	Language    string
}

// DefaultSpecs is the engine's built-in spec set, used when the
// configuration declares none.
func DefaultSpecs() []SpecDef {
	return []SpecDef{{Name: "echo", DisplayName: "Echo", Language: "text"}}
}

type execRequest struct {
	code  string
	reply chan string
}

// kernelInstance is one running in-process kernel.
type kernelInstance struct {
	model    backend.KernelModel
	requests chan execRequest
	cancel   context.CancelFunc
}

// Engine is the in-process backend. It implements
// backend.KernelProvider, backend.SessionProvider and
// kernelspec.SpecSource; the protocol-client shape is provided by
// Client().
type Engine struct {
	specs *kernelspec.SpecRegistry

	mu              sync.RWMutex
	kernels         map[string]*kernelInstance
	sessions        map[string]*backend.SessionModel
	kernelHandlers  map[int]func()
	sessionHandlers map[int]func()
	nextHandlerID   int

	ready chan struct{}
}

// New creates an engine serving the given spec definitions. An empty
// list falls back to DefaultSpecs. The engine is ready immediately: it
// has no external dependency to wait for.
func New(defs []SpecDef) *Engine {
	if len(defs) == 0 {
		defs = DefaultSpecs()
	}
	reg := &kernelspec.SpecRegistry{
		Default:     defs[0].Name,
		KernelSpecs: make(map[string]*kernelspec.KernelSpec, len(defs)),
	}
	for _, d := range defs {
		display := d.DisplayName
		if display == "" {
			display = d.Name
		}
		reg.KernelSpecs[d.Name] = &kernelspec.KernelSpec{
			Name:        d.Name,
			DisplayName: display,
			Language:    d.Language,
			Argv:        []string{},
			Metadata:    map[string]interface{}{"engine": "in-process"},
			Resources:   map[string]string{},
		}
	}

	e := &Engine{
		specs:           reg,
		kernels:         make(map[string]*kernelInstance),
		sessions:        make(map[string]*backend.SessionModel),
		kernelHandlers:  make(map[int]func()),
		sessionHandlers: make(map[int]func()),
		ready:           make(chan struct{}),
	}
	close(e.ready)
	return e
}

// Specs returns the engine's spec registry. Implements
// kernelspec.SpecSource; the call involves no network and cannot fail.
func (e *Engine) Specs(ctx context.Context) (*kernelspec.SpecRegistry, error) {
	return e.specs, nil
}

// Running returns the engine's current running-kernel enumeration,
// sorted by id for stable output.
func (e *Engine) Running(ctx context.Context) ([]backend.KernelModel, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]backend.KernelModel, 0, len(e.kernels))
	for _, inst := range e.kernels {
		out = append(out, inst.model)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// StartNew starts a kernel of the named spec and returns its model.
func (e *Engine) StartNew(ctx context.Context, opts backend.StartKernelOptions) (*backend.KernelModel, error) {
	if !e.specs.Has(opts.Name) {
		return nil, fmt.Errorf("unknown kernel spec %q", opts.Name)
	}

	id := uuid.NewString()
	kctx, cancel := context.WithCancel(context.Background())
	inst := &kernelInstance{
		model: backend.KernelModel{
			ID:             id,
			Name:           opts.Name,
			ExecutionState: StateStarting,
			LastActivity:   now(),
		},
		requests: make(chan execRequest, 16),
		cancel:   cancel,
	}
	go e.run(kctx, id, inst.requests)

	e.mu.Lock()
	e.kernels[id] = inst
	inst.model.ExecutionState = StateIdle
	model := inst.model
	e.mu.Unlock()

	log.Infof("Started in-process kernel %s (%s)", id, opts.Name)
	e.notifyKernels()
	return &model, nil
}

// run is the kernel goroutine. The built-in kernels echo submitted code
// back, flipping busy/idle around each request.
func (e *Engine) run(ctx context.Context, id string, requests chan execRequest) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-requests:
			e.setState(id, StateBusy)
			req.reply <- req.code
			e.setState(id, StateIdle)
		}
	}
}

func (e *Engine) setState(id, state string) {
	e.mu.Lock()
	inst, ok := e.kernels[id]
	if ok {
		inst.model.ExecutionState = state
		inst.model.LastActivity = now()
	}
	e.mu.Unlock()
}

// Execute submits code to a running kernel and waits for its result.
func (e *Engine) Execute(ctx context.Context, id, code string) (string, error) {
	e.mu.RLock()
	inst, ok := e.kernels[id]
	e.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("no running kernel with id %q", id)
	}

	req := execRequest{code: code, reply: make(chan string, 1)}
	select {
	case inst.requests <- req:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case out := <-req.reply:
		return out, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// FindByID returns the model for id, or nil when the engine does not
// own it.
func (e *Engine) FindByID(ctx context.Context, id string) (*backend.KernelModel, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if inst, ok := e.kernels[id]; ok {
		model := inst.model
		return &model, nil
	}
	return nil, nil
}

// Shutdown stops the kernel with the given id.
func (e *Engine) Shutdown(ctx context.Context, id string) error {
	e.mu.Lock()
	inst, ok := e.kernels[id]
	if ok {
		inst.cancel()
		delete(e.kernels, id)
	}
	// Sessions bound to the kernel die with it.
	for sid, sess := range e.sessions {
		if sess.Kernel.ID == id {
			delete(e.sessions, sid)
		}
	}
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("no running kernel with id %q", id)
	}
	log.Infof("Shut down in-process kernel %s", id)
	e.notifyKernels()
	return nil
}

// ShutdownAll stops every running kernel.
func (e *Engine) ShutdownAll(ctx context.Context) error {
	e.mu.Lock()
	for id, inst := range e.kernels {
		inst.cancel()
		delete(e.kernels, id)
	}
	for sid := range e.sessions {
		delete(e.sessions, sid)
	}
	e.mu.Unlock()
	e.notifyKernels()
	e.notifySessions()
	return nil
}

// Restart restarts the kernel in place. The id is preserved; only the
// goroutine and execution state are reset.
func (e *Engine) Restart(ctx context.Context, id string) error {
	e.mu.Lock()
	inst, ok := e.kernels[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("no running kernel with id %q", id)
	}
	inst.cancel()
	kctx, cancel := context.WithCancel(context.Background())
	inst.cancel = cancel
	inst.requests = make(chan execRequest, 16)
	inst.model.ExecutionState = StateIdle
	inst.model.LastActivity = now()
	requests := inst.requests
	e.mu.Unlock()

	go e.run(kctx, id, requests)
	e.notifyKernels()
	return nil
}

// Interrupt interrupts the kernel, returning it to the idle state.
func (e *Engine) Interrupt(ctx context.Context, id string) error {
	e.mu.RLock()
	_, ok := e.kernels[id]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no running kernel with id %q", id)
	}
	e.setState(id, StateIdle)
	e.notifyKernels()
	return nil
}

// Refresh is a no-op: the engine's maps are always current.
func (e *Engine) Refresh(ctx context.Context) error {
	return nil
}

// OnRunningChanged registers fn for running-kernel set changes.
func (e *Engine) OnRunningChanged(fn func()) (unsubscribe func()) {
	return e.register(e.kernelHandlers, fn)
}

// IsReady always reports true.
func (e *Engine) IsReady() bool { return true }

// Ready returns an already-closed channel.
func (e *Engine) Ready() <-chan struct{} { return e.ready }

func (e *Engine) register(handlers map[int]func(), fn func()) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextHandlerID++
	id := e.nextHandlerID
	handlers[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(handlers, id)
	}
}

func (e *Engine) notifyKernels()  { e.notify(e.kernelHandlers) }
func (e *Engine) notifySessions() { e.notify(e.sessionHandlers) }

func (e *Engine) notify(handlers map[int]func()) {
	e.mu.RLock()
	fns := make([]func(), 0, len(handlers))
	for _, fn := range handlers {
		fns = append(fns, fn)
	}
	e.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
