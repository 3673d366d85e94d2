// Package builder replays the persisted command lists, building
// targets dependency-first with per-invocation memoization.
package builder

import (
	"fmt"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/kiln-build/kiln/internal/gen"
	"github.com/kiln-build/kiln/internal/msg"
	"github.com/kiln-build/kiln/internal/project"
)

// Builder executes persisted command lists over one target graph. The
// built and failed sets memoize outcomes for a single invocation, so
// shared dependencies build at most once; a fresh Builder is made for
// every build command.
type Builder struct {
	graph *project.Graph
	host  project.Platform

	// Echo prints each command before it runs.
	Echo bool
	// Force turns the fingerprint skip decision off for every target.
	Force bool

	built  map[string]bool
	failed map[string]bool
	active map[string]bool
}

func New(graph *project.Graph, host project.Platform) *Builder {
	return &Builder{
		graph:  graph,
		host:   host,
		built:  make(map[string]bool),
		failed: make(map[string]bool),
		active: make(map[string]bool),
	}
}

// BuildAll attempts every target in graph order and reports an error
// if any of them ended up failed.
func (b *Builder) BuildAll() error {
	for _, t := range b.graph.Targets() {
		b.build(t, false)
	}
	return b.result()
}

// BuildTarget builds one target by name. The named target itself
// bypasses the vendored short-circuit and its own cache skip; its
// dependencies keep both.
func (b *Builder) BuildTarget(name string) error {
	t, ok := b.graph.Lookup(name)
	if !ok {
		return fmt.Errorf("target %q not found", name)
	}
	b.build(t, true)
	return b.result()
}

func (b *Builder) result() error {
	if len(b.failed) == 0 {
		return nil
	}
	names := slices.Sorted(maps.Keys(b.failed))
	return fmt.Errorf("failed to build: %s", strings.Join(names, ", "))
}

func (b *Builder) build(t *project.Target, direct bool) bool {
	if t.Vendored && !direct && b.artifactPresent(t) {
		b.built[t.Name] = true
		return true
	}
	if b.built[t.Name] {
		return true
	}
	if b.failed[t.Name] {
		return false
	}
	if b.active[t.Name] {
		msg.Error("dependency cycle involving target %q", t.Name)
		b.failed[t.Name] = true
		return false
	}
	b.active[t.Name] = true
	defer delete(b.active, t.Name)

	for _, depName := range t.Deps {
		dep, ok := b.graph.Lookup(depName)
		if !ok {
			continue
		}
		if !b.build(dep, false) {
			b.failed[dep.Name] = true
			b.failed[t.Name] = true
			return false
		}
	}

	if !b.Force && !direct && gen.UpToDate(t) {
		fmt.Printf("# Skipping %s\n", t.Name)
		b.built[t.Name] = true
		return true
	}

	if err := b.run(t); err != nil {
		msg.Error("failed to build %s: %v", t.Name, err)
		b.failed[t.Name] = true
		return false
	}
	b.built[t.Name] = true
	return true
}

// artifactPresent reports whether the target's expected output already
// exists. Interface targets have no output and count as present.
func (b *Builder) artifactPresent(t *project.Target) bool {
	artifact := t.Artifact(b.host)
	if artifact == "" {
		return true
	}
	_, err := os.Stat(artifact)
	return err == nil
}

// run replays the target's persisted command list one command at a
// time. The first non-zero exit aborts the rest.
func (b *Builder) run(t *project.Target) error {
	fmt.Printf("# Building %s\n", t.Name)
	data, err := os.ReadFile(gen.CommandsPath(t))
	if err != nil {
		return fmt.Errorf("no command list, generate the build cache first: %w", err)
	}
	for _, command := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		if command == "" {
			continue
		}
		if b.Echo {
			fmt.Println(command)
		}
		if err := runCommand(command); err != nil {
			return fmt.Errorf("%s: %w", command, err)
		}
	}
	return nil
}

func runCommand(command string) error {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("cmd", "/C", command)
	} else {
		cmd = exec.Command("sh", "-c", command)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Clean removes each target's whole build tree.
func Clean(g *project.Graph) {
	for _, t := range g.Targets() {
		fmt.Printf("Cleaning %s\n", t.Name)
		if err := os.RemoveAll(filepath.Join(t.Dir, "build")); err != nil {
			msg.Warn("%v", err)
		}
	}
}

// SoftClean removes intermediate objects and cache files, keeping the
// final artifacts under bin and lib.
func SoftClean(g *project.Graph) {
	for _, t := range g.Targets() {
		fmt.Printf("Soft cleaning %s\n", t.Name)
		for _, sub := range []string{"obj", "cache"} {
			if err := os.RemoveAll(filepath.Join(t.Dir, "build", sub)); err != nil {
				msg.Warn("%v", err)
			}
		}
	}
}
