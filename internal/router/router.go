// Copyright 2026 The kernelBridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package router implements the routing-and-reconciliation core. Each
// router decides, per operation, which backend serves the request:
// creation routes by spec-name membership in the merged registry,
// everything else routes by live-id membership in the local engine's
// own enumeration. Enumerations from both backends are merged, and both
// backends' change notifications are folded into one outward stream of
// merged snapshots.
package router

import (
	"context"
)

// Location names the backend that owns an entity.
type Location string

const (
	// Local is the in-process engine.
	Local Location = "local"
	// Remote is the networked Jupyter server. Remote is the fallback
	// classification: the remote population is the larger and less
	// introspectable one, while local introspection is cheap and
	// authoritative.
	Remote Location = "remote"
)

// SpecLookup answers whether a kernel spec name is servable locally.
// Implemented by the spec merger over its current merged registry; the
// engine's entries are exactly the locally servable ones there.
type SpecLookup interface {
	Has(name string) bool
}

// classifyByName picks the backend for a creation call. A name the
// local lookup knows is served locally; everything else falls back to
// remote.
func classifyByName(specs SpecLookup, name string) Location {
	if specs != nil && specs.Has(name) {
		return Local
	}
	return Remote
}

// containsID reports whether the enumeration produced by list contains
// id. Membership in the local backend's own running list is the
// authoritative classification; it is re-derived on every call rather
// than kept in a flag that could drift.
func containsID(ctx context.Context, list func(context.Context) ([]string, error), id string) (bool, error) {
	ids, err := list(ctx)
	if err != nil {
		return false, err
	}
	for _, candidate := range ids {
		if candidate == id {
			return true, nil
		}
	}
	return false, nil
}
