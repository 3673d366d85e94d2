package gen

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/kiln-build/kiln/internal/project"
)

// fingerprintBlock is the unit a file is hashed in, so memory stays
// bounded for arbitrarily large inputs.
const fingerprintBlock = 64 * 1024

// absentFingerprint stands in for inputs that cannot be read. A file
// that later appears hashes differently, so the target rebuilds.
const absentFingerprint = "absent"

// ManifestPath returns where a target's current input manifest lives.
func ManifestPath(t *project.Target) string {
	return filepath.Join(t.Dir, "build", "cache", t.Name+".sources")
}

// PrevManifestPath returns where the previous generation's manifest is
// kept after rotation.
func PrevManifestPath(t *project.Target) string {
	return filepath.Join(t.Dir, "build", "cache", t.Name+".prev.sources")
}

// CommandsPath returns where a target's generated command list lives.
func CommandsPath(t *project.Target) string {
	return filepath.Join(t.Dir, "build", "cache", t.Name+".target")
}

// Fingerprint hashes path in fixed-size blocks and chains the block
// hashes with ':'. An empty file fingerprints to the hash of an empty
// block.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var sb strings.Builder
	buf := make([]byte, fingerprintBlock)
	for {
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			if sb.Len() > 0 {
				sb.WriteByte(':')
			}
			fmt.Fprintf(&sb, "%016x", xxhash.Sum64(buf[:n]))
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	if sb.Len() == 0 {
		fmt.Fprintf(&sb, "%016x", xxhash.Sum64(nil))
	}
	return sb.String(), nil
}

// WriteManifest rotates the target's current manifest to the previous
// slot and writes a fresh one covering every declared source plus the
// project's own configuration file, one line per input. Unreadable
// inputs are recorded with a sentinel and reported as warnings.
func WriteManifest(t *project.Target) ([]string, error) {
	cur := ManifestPath(t)
	prev := PrevManifestPath(t)
	if err := os.MkdirAll(filepath.Dir(cur), 0o755); err != nil {
		return nil, err
	}
	if _, err := os.Stat(cur); err == nil {
		os.Remove(prev)
		if err := os.Rename(cur, prev); err != nil {
			return nil, err
		}
	}

	inputs := slices.Clone(t.Sources)
	inputs = append(inputs, filepath.Join(t.Dir, project.ConfigName))

	var warnings []string
	var sb strings.Builder
	for _, input := range inputs {
		fp, err := Fingerprint(input)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: cannot fingerprint %s: %v", t.Name, input, err))
			fp = absentFingerprint
		}
		fmt.Fprintf(&sb, "%016x %s\n", xxhash.Sum64String(input), fp)
	}
	return warnings, os.WriteFile(cur, []byte(sb.String()), 0o644)
}

// UpToDate reports whether the target's inputs are unchanged since the
// previous generation pass: both manifests exist and match line for
// line. Artifact presence does not participate in the decision.
func UpToDate(t *project.Target) bool {
	cur, err := os.ReadFile(ManifestPath(t))
	if err != nil {
		return false
	}
	prev, err := os.ReadFile(PrevManifestPath(t))
	if err != nil {
		return false
	}
	return bytes.Equal(cur, prev)
}
