// Copyright 2026 The kernelBridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package kernelspec implements the merged kernel-spec registry: the
// spec and registry data model, the resource URL rewriter applied to
// server-supplied specs, and the merger that reconciles the in-process
// engine's spec set with a local or remote Jupyter server's spec set.
package kernelspec

import "sort"

// KernelSpec is the static metadata describing a launchable kernel type.
type KernelSpec struct {
	// Name is the spec identity key, unique within one backend's registry.
	Name string `json:"name"`
	// DisplayName is the human-readable kernel name.
	DisplayName string `json:"display_name"`
	// Language is the kernel's implementation language.
	Language string `json:"language"`
	// Argv is the kernel launch command line.
	Argv []string `json:"argv"`
	// Env holds additional environment variables for the kernel process.
	Env map[string]string `json:"env,omitempty"`
	// Metadata carries free-form spec metadata.
	Metadata map[string]interface{} `json:"metadata"`
	// Resources maps logical resource keys (logos, scripts) to URLs.
	Resources map[string]string `json:"resources"`
}

// SpecRegistry is one backend's (or the merged) set of kernel specs.
// Registries are rebuilt atomically on refresh and never mutated in
// place, so readers cannot observe a partially merged state.
type SpecRegistry struct {
	// Default is the spec name used when a caller does not pick one.
	Default string `json:"default"`
	// KernelSpecs maps spec name to spec.
	KernelSpecs map[string]*KernelSpec `json:"kernelspecs"`
}

// IsEmpty reports whether the registry carries no specs at all.
func (r *SpecRegistry) IsEmpty() bool {
	return r == nil || len(r.KernelSpecs) == 0
}

// Has reports whether the registry contains a spec with the given name.
func (r *SpecRegistry) Has(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.KernelSpecs[name]
	return ok
}

// Names returns the sorted spec names in the registry.
func (r *SpecRegistry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.KernelSpecs))
	for name := range r.KernelSpecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
