// Package gen turns the target graph into per-target command lists and
// fingerprint manifests under build/cache.
package gen

import (
	"fmt"

	"github.com/kiln-build/kiln/internal/project"
)

// ResolveIncludes returns the include directories visible to a target:
// first the transitive includes of its dependencies, depth-first with a
// dependency's own dependencies ahead of the dependency itself, then
// the target's own declared directories. Duplicates keep their first
// position. Dependency names with no declared target contribute
// nothing, like every other resolution of an unknown name.
func ResolveIncludes(t *project.Target, g *project.Graph) ([]string, error) {
	var includes []string
	seen := make(map[string]bool)
	active := make(map[string]bool)

	var walk func(t *project.Target) error
	walk = func(t *project.Target) error {
		if active[t.Name] {
			return fmt.Errorf("dependency cycle involving target %q", t.Name)
		}
		active[t.Name] = true
		defer delete(active, t.Name)

		for _, depName := range t.Deps {
			dep, ok := g.Lookup(depName)
			if !ok {
				continue
			}
			if err := walk(dep); err != nil {
				return err
			}
		}
		for _, inc := range t.Includes {
			if !seen[inc] {
				seen[inc] = true
				includes = append(includes, inc)
			}
		}
		return nil
	}

	if err := walk(t); err != nil {
		return nil, err
	}
	return includes, nil
}
