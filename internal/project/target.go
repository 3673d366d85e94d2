// Package project parses proj.kiln configuration files and expands them
// into the flat target graph the generator and builder operate on.
package project

import (
	"fmt"
	"path/filepath"
)

// Kind classifies what a target produces.
type Kind string

const (
	Exec  Kind = "EXEC"  // executable
	SLib  Kind = "SLIB"  // static library
	DLib  Kind = "DLIB"  // dynamic library
	Iface Kind = "IFACE" // no artifact, contributes flags and commands only
)

// ParseKind maps a directive token onto a Kind.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case Exec, SLib, DLib, Iface:
		return Kind(s), true
	}
	return "", false
}

// Target is one unit of build output declared by a TARGET directive.
// Later directives that name it mutate it in place; the whole set is
// rebuilt from scratch on every invocation.
type Target struct {
	Kind      Kind
	Name      string
	Dir       string // owning project directory
	Sources   []string
	Deps      []string // dependency target names, resolved at use time
	Prebuild  []string
	Postbuild []string
	Defines   []string
	Libs      []string
	Includes  []string
	Vendored  bool // artifact present on disk is never rebuilt implicitly
}

// Artifact returns the path of the target's final build output for the
// given platform, or "" for interface targets, which produce none.
func (t *Target) Artifact(p Platform) string {
	switch t.Kind {
	case Exec:
		name := t.Name
		if p == Windows {
			name += ".exe"
		}
		return filepath.Join(t.Dir, "build", "bin", name)
	case SLib:
		name := "lib" + t.Name + ".a"
		if p == Windows {
			name = t.Name + ".lib"
		}
		return filepath.Join(t.Dir, "build", "lib", name)
	case DLib:
		name := "lib" + t.Name + ".so"
		if p == Windows {
			name = t.Name + ".dll"
		}
		return filepath.Join(t.Dir, "build", "bin", name)
	}
	return ""
}

// Graph is the insertion-ordered target registry accumulated across the
// root configuration and everything it includes. Lookups resolve a name
// to the first target declared with it; later duplicates stay in the
// ordered list but never shadow the first.
type Graph struct {
	targets []*Target
	byName  map[string]int
}

func NewGraph() *Graph {
	return &Graph{byName: make(map[string]int)}
}

// Add appends a target, keeping the name index pointed at the first
// occurrence of each name.
func (g *Graph) Add(t *Target) {
	if _, ok := g.byName[t.Name]; !ok {
		g.byName[t.Name] = len(g.targets)
	}
	g.targets = append(g.targets, t)
}

// Lookup returns the first target declared with the given name.
func (g *Graph) Lookup(name string) (*Target, bool) {
	i, ok := g.byName[name]
	if !ok {
		return nil, false
	}
	return g.targets[i], true
}

// Targets returns the targets in declaration order. The slice is shared
// with the graph, not copied.
func (g *Graph) Targets() []*Target { return g.targets }

func (g *Graph) Len() int { return len(g.targets) }

// Diagnostic is a recoverable problem found while parsing. The line it
// points at was skipped; parsing continued.
type Diagnostic struct {
	File string
	Line int
	Msg  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d: %s", d.File, d.Line, d.Msg)
}
