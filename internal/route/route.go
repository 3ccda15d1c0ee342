// Package route models the application paths that get snapshotted into static HTML.
package route

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrInvalid reports a route path that cannot be snapshotted.
var ErrInvalid = errors.New("invalid route")

// DefaultPaths is the route list used when configuration supplies none.
var DefaultPaths = []string{"/", "/about", "/products", "/contact"}

// Route is a logical application path such as "/" or "/about".
type Route struct {
	path     string
	segments []string
}

// Parse validates raw and returns the corresponding Route.
func Parse(raw string) (Route, error) {
	if !strings.HasPrefix(raw, "/") {
		return Route{}, fmt.Errorf("%w: %q must begin with /", ErrInvalid, raw)
	}
	if strings.ContainsAny(raw, "?#\\") {
		return Route{}, fmt.Errorf("%w: %q may not carry a query, fragment or backslash", ErrInvalid, raw)
	}
	var segments []string
	for _, seg := range strings.Split(raw, "/") {
		switch seg {
		case "":
			continue
		case ".", "..":
			return Route{}, fmt.Errorf("%w: %q contains a relative segment", ErrInvalid, raw)
		}
		segments = append(segments, seg)
	}
	return Route{path: raw, segments: segments}, nil
}

// MustParse is Parse for static route tables; it panics on invalid input.
func MustParse(raw string) Route {
	r, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return r
}

// Path returns the route exactly as configured.
func (r Route) Path() string { return r.path }

// String implements fmt.Stringer.
func (r Route) String() string { return r.path }

// Depth is the number of non-empty path segments. The root route has depth 0.
func (r Route) Depth() int { return len(r.segments) }

// IsRoot reports whether the route resolves to the site root document.
func (r Route) IsRoot() bool { return len(r.segments) == 0 }

// Canonical returns the path with empty segments and trailing slashes removed.
func (r Route) Canonical() string {
	return "/" + strings.Join(r.segments, "/")
}

// RelPath is the slash-separated output location relative to the output root.
func (r Route) RelPath() string {
	if r.IsRoot() {
		return "index.html"
	}
	return strings.Join(r.segments, "/") + "/index.html"
}

// OutputPath is the file the snapshot for r is written to under root.
func (r Route) OutputPath(root string) string {
	return filepath.Join(root, filepath.FromSlash(r.RelPath()))
}

// List is an ordered set of routes with distinct output paths.
type List []Route

// ParseList parses every entry of raw, preserving order. Two entries that would
// write the same output file are rejected.
func ParseList(raw []string) (List, error) {
	out := make(List, 0, len(raw))
	seen := make(map[string]string, len(raw))
	for _, entry := range raw {
		r, err := Parse(strings.TrimSpace(entry))
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[r.Canonical()]; ok {
			return nil, fmt.Errorf("%w: %q and %q resolve to the same output", ErrInvalid, prev, entry)
		}
		seen[r.Canonical()] = entry
		out = append(out, r)
	}
	return out, nil
}

// Paths returns the configured path of every route in order.
func (l List) Paths() []string {
	out := make([]string, len(l))
	for i, r := range l {
		out[i] = r.Path()
	}
	return out
}

// Task is one unit of queued work: a route and its position in the list.
type Task struct {
	Seq   int
	Route Route
}
