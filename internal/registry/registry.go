// Package registry resolves BUILTIN directives: packages kiln knows how
// to fetch and, where the upstream ships no configuration of its own,
// overlay with a kiln-db configuration.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/kiln-build/kiln/internal/fetch"
	"github.com/kiln-build/kiln/internal/project"
)

// Entry describes one vendored package: its upstream source repository
// and, optionally, a db repository carrying the proj.kiln (plus any
// patches) the upstream lacks.
type Entry struct {
	Repo string `toml:"repo"`
	DB   string `toml:"db,omitempty"`
}

// packages known to every kiln install; registry.toml can add to or
// override these
var builtins = map[string]Entry{
	"glfw":     {Repo: "https://github.com/glfw/glfw", DB: "https://github.com/kiln-db/glfw"},
	"whereami": {Repo: "https://github.com/gpakosz/whereami", DB: "https://github.com/kiln-db/whereami"},
}

// Registry implements project.PackageResolver.
type Registry struct {
	entries map[string]Entry
	git     gitFetcher
}

type gitFetcher interface {
	Fetch(url, dest, branch string) error
}

// Load returns the builtin registry merged with the user's entries from
// <UserConfigDir>/kiln/registry.toml, if present.
func Load(git *fetch.Git) (*Registry, error) {
	entries := make(map[string]Entry, len(builtins))
	for name, e := range builtins {
		entries[name] = e
	}

	if path, err := UserPath(); err == nil {
		if err := mergeFile(entries, path); err != nil {
			return nil, err
		}
	}
	return &Registry{entries: entries, git: git}, nil
}

// UserPath returns the location of the user's registry file.
func UserPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "kiln", "registry.toml"), nil
}

// LoadUser reads only the user's own entries. A missing file is an
// empty registry.
func LoadUser() (map[string]Entry, error) {
	path, err := UserPath()
	if err != nil {
		return nil, err
	}
	entries := make(map[string]Entry)
	if err := mergeFile(entries, path); err != nil {
		return nil, err
	}
	return entries, nil
}

// SaveUser rewrites the user's registry file.
func SaveUser(entries map[string]Entry) error {
	path, err := UserPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := toml.Marshal(entries)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// IsBuiltin reports whether name ships compiled in.
func IsBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

func mergeFile(entries map[string]Entry, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	var user map[string]Entry
	if err := toml.Unmarshal(data, &user); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	for name, e := range user {
		entries[name] = e
	}
	return nil
}

// Names lists the resolvable package names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Entry returns the entry registered under name.
func (r *Registry) Entry(name string) (Entry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

// Resolve materializes the named package at dest with a proj.kiln at
// its root. An existing checkout is only brought up to date; its
// already-overlaid configuration is left alone.
func (r *Registry) Resolve(name, dest string) error {
	entry, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("unknown builtin %q", name)
	}

	if _, err := os.Stat(dest); err == nil {
		return r.git.Fetch(entry.Repo, dest, "")
	}

	if err := r.git.Fetch(entry.Repo, dest, ""); err != nil {
		return err
	}
	if entry.DB == "" {
		return nil
	}
	return r.overlay(entry.DB, dest)
}

// overlay fetches a package's db repository and lays its proj.kiln and
// patches over the upstream checkout.
func (r *Registry) overlay(dbURL, dest string) error {
	scratch := filepath.Join(dest, ".kiln-db")
	if err := r.git.Fetch(dbURL, scratch, ""); err != nil {
		return err
	}
	defer os.RemoveAll(scratch) // best effort

	data, err := os.ReadFile(filepath.Join(scratch, project.ConfigName))
	if err != nil {
		return fmt.Errorf("db repository has no %s: %w", project.ConfigName, err)
	}
	if err := os.WriteFile(filepath.Join(dest, project.ConfigName), data, 0o644); err != nil {
		return err
	}
	return applyPatches(scratch, dest)
}

// applyPatches applies every patches/<file>.patch from the db checkout
// to the matching <file> of the upstream checkout.
func applyPatches(scratch, dest string) error {
	patchDir := filepath.Join(scratch, "patches")
	if _, err := os.Stat(patchDir); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	dmp := diffmatchpatch.New()
	return filepath.WalkDir(patchDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".patch") {
			return err
		}
		rel, err := filepath.Rel(patchDir, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, strings.TrimSuffix(rel, ".patch"))

		patchText, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		patches, err := dmp.PatchFromText(string(patchText))
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		original, err := os.ReadFile(target)
		if err != nil {
			return err
		}

		patched, results := dmp.PatchApply(patches, string(original))
		for i, ok := range results {
			if !ok {
				return fmt.Errorf("%s: hunk %d did not apply", path, i)
			}
		}
		return os.WriteFile(target, []byte(patched), 0o644)
	})
}
