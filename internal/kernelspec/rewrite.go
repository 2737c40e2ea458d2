// Copyright 2026 The kernelBridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package kernelspec

import (
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// ParseSpec normalizes one raw spec entry without touching its resource
// URLs. Used for spec sets whose URLs are already resolvable, such as
// the in-process engine's or a same-origin local server's.
func ParseSpec(key string, entry gjson.Result) *KernelSpec {
	return RewriteSpec(key, entry, "", "")
}

// RewriteSpec normalizes one raw spec entry and rewrites its resource
// map so every URL is absolute against baseURL and carries the token.
//
// Entries come in two shapes: flat (display_name at the top level) and
// the server-API envelope ({name, spec: {...}, resources}). When both
// shapes carry a field, the nested spec fields win, except resources
// where the envelope's map wins over spec.resources.
//
// The function is total: malformed or missing fields degrade to
// deterministic defaults and never produce an error.
func RewriteSpec(key string, entry gjson.Result, baseURL, token string) *KernelSpec {
	nested := entry.Get("spec")

	pick := func(field string) gjson.Result {
		if v := nested.Get(field); v.Exists() {
			return v
		}
		return entry.Get(field)
	}

	spec := &KernelSpec{
		Name:      key,
		Argv:      []string{},
		Metadata:  map[string]interface{}{},
		Resources: map[string]string{},
	}

	if v := entry.Get("name"); v.Exists() && v.String() != "" {
		spec.Name = v.String()
	}
	spec.DisplayName = pick("display_name").String()
	if spec.DisplayName == "" {
		spec.DisplayName = key
	}
	spec.Language = pick("language").String()

	for _, v := range pick("argv").Array() {
		spec.Argv = append(spec.Argv, v.String())
	}
	if env := pick("env"); env.IsObject() {
		spec.Env = map[string]string{}
		env.ForEach(func(k, v gjson.Result) bool {
			spec.Env[k.String()] = v.String()
			return true
		})
	}
	if meta := pick("metadata"); meta.IsObject() {
		if m, ok := meta.Value().(map[string]interface{}); ok {
			spec.Metadata = m
		}
	}

	resources := entry.Get("resources")
	if !resources.Exists() {
		resources = nested.Get("resources")
	}
	if resources.IsObject() {
		resources.ForEach(func(k, v gjson.Result) bool {
			spec.Resources[k.String()] = RewriteResourceURL(v.String(), baseURL, token)
			return true
		})
	}

	return spec
}

// RewriteResourceURL makes one resource URL absolute against baseURL and
// appends the token as a query parameter. Already-absolute URLs pass
// through unchanged. Root-relative paths are joined to the origin of
// baseURL only, discarding any path component: a server API hands out
// root-relative paths relative to its domain root, not to the API's
// mount path. Anything else is joined as a path segment under the full
// baseURL. With an empty baseURL the value passes through untouched.
func RewriteResourceURL(raw, baseURL, token string) string {
	if raw == "" || baseURL == "" {
		return raw
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}

	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		// Unusable base, leave the value as provided.
		return raw
	}

	// Split off any query string so JoinPath does not escape it.
	pathPart, query, _ := strings.Cut(raw, "?")

	var joined string
	if strings.HasPrefix(pathPart, "/") {
		origin := base.Scheme + "://" + base.Host
		joined, err = url.JoinPath(origin, pathPart)
	} else {
		joined, err = url.JoinPath(baseURL, pathPart)
	}
	if err != nil {
		return raw
	}
	if query != "" {
		joined += "?" + query
	}

	return appendToken(joined, token)
}

// appendToken attaches token as a query parameter, respecting an
// existing query string.
func appendToken(u, token string) string {
	if token == "" {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "token=" + url.QueryEscape(token)
}
