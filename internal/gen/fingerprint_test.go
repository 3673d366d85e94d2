package gen

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiln-build/kiln/internal/project"
)

func TestFingerprintSingleBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.c")
	content := []byte("int main(void) { return 0; }\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	fp, err := Fingerprint(path)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%016x", xxhash.Sum64(content)), fp)
}

func TestFingerprintChainsBlocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.bin")
	head := bytes.Repeat([]byte{'a'}, fingerprintBlock)
	tail := []byte("trailing partial block")
	require.NoError(t, os.WriteFile(path, append(append([]byte{}, head...), tail...), 0o644))

	fp, err := Fingerprint(path)
	require.NoError(t, err)
	want := fmt.Sprintf("%016x:%016x", xxhash.Sum64(head), xxhash.Sum64(tail))
	assert.Equal(t, want, fp)
}

func TestFingerprintEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	fp, err := Fingerprint(path)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%016x", xxhash.Sum64(nil)), fp)
}

func TestFingerprintMissingFile(t *testing.T) {
	_, err := Fingerprint(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func manifestTarget(t *testing.T) *project.Target {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "src", "main.c")
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0o755))
	require.NoError(t, os.WriteFile(src, []byte("int main(void) {}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, project.ConfigName), []byte("TARGET EXEC app src/main.c\n"), 0o644))
	return &project.Target{Kind: project.Exec, Name: "app", Dir: dir, Sources: []string{src}}
}

func TestWriteManifestLineFormat(t *testing.T) {
	target := manifestTarget(t)
	warns, err := WriteManifest(target)
	require.NoError(t, err)
	assert.Empty(t, warns)

	data, err := os.ReadFile(ManifestPath(target))
	require.NoError(t, err)

	src := target.Sources[0]
	srcContent, err := os.ReadFile(src)
	require.NoError(t, err)
	cfg := filepath.Join(target.Dir, project.ConfigName)
	cfgContent, err := os.ReadFile(cfg)
	require.NoError(t, err)

	want := fmt.Sprintf("%016x %016x\n%016x %016x\n",
		xxhash.Sum64String(src), xxhash.Sum64(srcContent),
		xxhash.Sum64String(cfg), xxhash.Sum64(cfgContent))
	assert.Equal(t, want, string(data))
}

func TestWriteManifestRotation(t *testing.T) {
	target := manifestTarget(t)

	_, err := WriteManifest(target)
	require.NoError(t, err)
	assert.False(t, UpToDate(target), "no previous manifest yet")

	_, err = WriteManifest(target)
	require.NoError(t, err)
	assert.True(t, UpToDate(target), "nothing changed between passes")

	require.NoError(t, os.WriteFile(target.Sources[0], []byte("int main(void) { return 1; }\n"), 0o644))
	_, err = WriteManifest(target)
	require.NoError(t, err)
	assert.False(t, UpToDate(target), "source content changed")

	_, err = WriteManifest(target)
	require.NoError(t, err)
	assert.True(t, UpToDate(target))
}

func TestWriteManifestReorderedSources(t *testing.T) {
	target := manifestTarget(t)
	other := filepath.Join(target.Dir, "src", "util.c")
	require.NoError(t, os.WriteFile(other, []byte("void util(void) {}\n"), 0o644))
	target.Sources = append(target.Sources, other)

	_, err := WriteManifest(target)
	require.NoError(t, err)

	target.Sources[0], target.Sources[1] = target.Sources[1], target.Sources[0]
	_, err = WriteManifest(target)
	require.NoError(t, err)
	assert.False(t, UpToDate(target), "line comparison is position-sensitive")
}

func TestWriteManifestAbsentInput(t *testing.T) {
	target := manifestTarget(t)
	target.Sources = append(target.Sources, filepath.Join(target.Dir, "src", "gone.c"))

	warns, err := WriteManifest(target)
	require.NoError(t, err)
	require.Len(t, warns, 1)
	assert.Contains(t, warns[0], "gone.c")

	data, err := os.ReadFile(ManifestPath(target))
	require.NoError(t, err)
	assert.Contains(t, string(data), " "+absentFingerprint+"\n")

	// the same absent input on the next pass is not treated as a change
	_, err = WriteManifest(target)
	require.NoError(t, err)
	assert.True(t, UpToDate(target))
}

func TestUpToDateMissingManifests(t *testing.T) {
	target := manifestTarget(t)
	assert.False(t, UpToDate(target))
}
