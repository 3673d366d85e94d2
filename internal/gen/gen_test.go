package gen

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiln-build/kiln/internal/project"
	"github.com/kiln-build/kiln/internal/toolchain"
)

func gnuGen(g *project.Graph) *Generator {
	tc, ok := toolchain.ByFamily(toolchain.GNU)
	if !ok {
		panic("gnu toolchain not registered")
	}
	return New(tc, project.Linux, g)
}

func TestCommandsExecutable(t *testing.T) {
	dir := t.TempDir()
	app := &project.Target{
		Kind: project.Exec, Name: "app", Dir: dir,
		Sources: []string{
			filepath.Join(dir, "src", "main.c"),
			filepath.Join(dir, "src", "app.h"),
			filepath.Join(dir, "src", "notes.txt"),
		},
		Defines:  []string{"DEBUG=1"},
		Libs:     []string{"m"},
		Includes: []string{filepath.Join(dir, "src")},
	}
	g := gnuGen(graphOf(app))

	cmds, warns, err := g.Commands(app)
	require.NoError(t, err)
	require.Len(t, warns, 1, "only the unrecognized extension warns, headers are silent")
	assert.Contains(t, warns[0], "notes.txt")

	obj := filepath.Join(dir, "build", "obj", "src_main.c.o")
	want := []string{
		"gcc -c " + filepath.Join(dir, "src", "main.c") + " -o " + obj + " -DDEBUG=1 -I" + filepath.Join(dir, "src"),
		"g++ " + obj + " -o " + filepath.Join(dir, "build", "bin", "app") + " -lm",
	}
	assert.Equal(t, want, cmds)

	for _, sub := range []string{"obj", "bin", "lib", "cache"} {
		assert.DirExists(t, filepath.Join(dir, "build", sub))
	}
}

func TestCommandsCompilerSelection(t *testing.T) {
	dir := t.TempDir()
	app := &project.Target{
		Kind: project.Exec, Name: "app", Dir: dir,
		Sources: []string{
			filepath.Join(dir, "src", "main.cpp"),
			filepath.Join(dir, "src", "legacy.cc"),
			filepath.Join(dir, "src", "new.cxx"),
			filepath.Join(dir, "src", "old.c"),
		},
	}
	cmds, _, err := gnuGen(graphOf(app)).Commands(app)
	require.NoError(t, err)
	require.Len(t, cmds, 5)
	assert.True(t, strings.HasPrefix(cmds[0], "g++ -c"))
	assert.True(t, strings.HasPrefix(cmds[1], "gcc -c"))
	assert.True(t, strings.HasPrefix(cmds[2], "g++ -c"))
	assert.True(t, strings.HasPrefix(cmds[3], "gcc -c"))
}

func TestCommandsStaticLibrary(t *testing.T) {
	dir := t.TempDir()
	lib := &project.Target{
		Kind: project.SLib, Name: "util", Dir: dir,
		Sources: []string{filepath.Join(dir, "src", "util.c")},
		Libs:    []string{"m"},
	}
	cmds, _, err := gnuGen(graphOf(lib)).Commands(lib)
	require.NoError(t, err)

	obj := filepath.Join(dir, "build", "obj", "src_util.c.o")
	want := []string{
		"gcc -c " + filepath.Join(dir, "src", "util.c") + " -o " + obj,
		"ar rcs " + filepath.Join(dir, "build", "lib", "libutil.a") + " " + obj,
	}
	assert.Equal(t, want, cmds, "archive step carries no link flags")
}

func TestCommandsDynamicLibrary(t *testing.T) {
	dir := t.TempDir()
	lib := &project.Target{
		Kind: project.DLib, Name: "dyn", Dir: dir,
		Sources: []string{filepath.Join(dir, "src", "dyn.c")},
	}
	cmds, _, err := gnuGen(graphOf(lib)).Commands(lib)
	require.NoError(t, err)

	obj := filepath.Join(dir, "build", "obj", "src_dyn.c.o")
	want := []string{
		"gcc -c " + filepath.Join(dir, "src", "dyn.c") + " -o " + obj + " -fPIC",
		"g++ -shared " + obj + " -o " + filepath.Join(dir, "build", "bin", "libdyn.so"),
	}
	assert.Equal(t, want, cmds)
}

func TestCommandsDependencyLinkage(t *testing.T) {
	base := t.TempDir()
	appDir := filepath.Join(base, "app")
	utilDir := filepath.Join(base, "util")
	dynDir := filepath.Join(base, "dyn")
	hdrsDir := filepath.Join(base, "hdrs")

	util := &project.Target{Kind: project.SLib, Name: "util", Dir: utilDir,
		Libs: []string{"z"}, Includes: []string{filepath.Join(utilDir, "include")}}
	dyn := &project.Target{Kind: project.DLib, Name: "dyn", Dir: dynDir, Libs: []string{"curl"}}
	hdrs := &project.Target{Kind: project.Iface, Name: "hdrs", Dir: hdrsDir,
		Libs: []string{"pthread"}, Includes: []string{filepath.Join(hdrsDir, "api")}}
	tool := &project.Target{Kind: project.Exec, Name: "tool", Dir: base}
	app := &project.Target{Kind: project.Exec, Name: "app", Dir: appDir,
		Sources: []string{filepath.Join(appDir, "src", "main.c")},
		Deps:    []string{"util", "dyn", "hdrs", "tool"}}

	g := gnuGen(graphOf(app, util, dyn, hdrs, tool))
	cmds, _, err := g.Commands(app)
	require.NoError(t, err)
	require.Len(t, cmds, 3)

	dynArtifact := filepath.Join(dynDir, "build", "bin", "libdyn.so")
	assert.Equal(t, "cp "+dynArtifact+" "+filepath.Join(appDir, "build", "bin", "libdyn.so"), cmds[0])

	obj := filepath.Join(appDir, "build", "obj", "src_main.c.o")
	wantCompile := "gcc -c " + filepath.Join(appDir, "src", "main.c") + " -o " + obj +
		" -I" + filepath.Join(utilDir, "include") + " -I" + filepath.Join(hdrsDir, "api")
	assert.Equal(t, wantCompile, cmds[1])

	wantLink := "g++ " + obj + " -o " + filepath.Join(appDir, "build", "bin", "app") +
		" -L" + filepath.Join(utilDir, "build", "lib") + " -lutil -lz" +
		" -L" + filepath.Join(dynDir, "build", "bin") + " -ldyn -lcurl" +
		" -lpthread"
	assert.Equal(t, wantLink, cmds[2], "executable dependencies contribute nothing")
}

func TestCommandsInterfaceTarget(t *testing.T) {
	dir := t.TempDir()
	iface := &project.Target{
		Kind: project.Iface, Name: "hdrs", Dir: dir,
		Sources:   []string{filepath.Join(dir, "src", "api.h"), filepath.Join(dir, "src", "impl.c")},
		Prebuild:  []string{"echo pre"},
		Postbuild: []string{"echo post"},
	}
	cmds, warns, err := gnuGen(graphOf(iface)).Commands(iface)
	require.NoError(t, err)
	assert.Empty(t, warns)
	assert.Equal(t, []string{"echo pre", "echo post"}, cmds)
}

func TestCommandsWindowsConventions(t *testing.T) {
	base := t.TempDir()
	appDir := filepath.Join(base, "app")
	dynDir := filepath.Join(base, "dyn")

	dyn := &project.Target{Kind: project.DLib, Name: "dyn", Dir: dynDir}
	app := &project.Target{Kind: project.Exec, Name: "app", Dir: appDir,
		Sources: []string{filepath.Join(appDir, "src", "main.c")},
		Deps:    []string{"dyn"}}

	tc, ok := toolchain.ByFamily(toolchain.MSVC)
	require.True(t, ok)
	g := New(tc, project.Windows, graphOf(app, dyn))

	cmds, _, err := g.Commands(app)
	require.NoError(t, err)
	require.Len(t, cmds, 3)

	dll := filepath.Join(dynDir, "build", "bin", "dyn.dll")
	assert.Equal(t, "copy "+dll+" "+filepath.Join(appDir, "build", "bin", "dyn.dll"), cmds[0])
	assert.True(t, strings.HasPrefix(cmds[1], "cl -c "))
	assert.Contains(t, cmds[2], filepath.Join(appDir, "build", "bin", "app.exe"))
	assert.True(t, strings.HasPrefix(cmds[2], "link "))
}

func TestCommandsStepOrder(t *testing.T) {
	base := t.TempDir()
	appDir := filepath.Join(base, "app")
	dynDir := filepath.Join(base, "dyn")

	dyn := &project.Target{Kind: project.DLib, Name: "dyn", Dir: dynDir}
	app := &project.Target{Kind: project.Exec, Name: "app", Dir: appDir,
		Sources:   []string{filepath.Join(appDir, "src", "main.c")},
		Deps:      []string{"dyn"},
		Prebuild:  []string{"echo before"},
		Postbuild: []string{"echo after"},
	}

	cmds, _, err := gnuGen(graphOf(app, dyn)).Commands(app)
	require.NoError(t, err)
	require.Len(t, cmds, 5)
	assert.Equal(t, "echo before", cmds[0])
	assert.True(t, strings.HasPrefix(cmds[1], "cp "))
	assert.True(t, strings.HasPrefix(cmds[2], "gcc -c "))
	assert.True(t, strings.HasPrefix(cmds[3], "g++ "))
	assert.Equal(t, "echo after", cmds[4])
}

func TestCommandsNestedObjectNames(t *testing.T) {
	dir := t.TempDir()
	app := &project.Target{
		Kind: project.Exec, Name: "app", Dir: dir,
		Sources: []string{filepath.Join(dir, "src", "net", "io.c")},
	}
	cmds, _, err := gnuGen(graphOf(app)).Commands(app)
	require.NoError(t, err)
	assert.Contains(t, cmds[0], filepath.Join(dir, "build", "obj", "src_net_io.c.o"))
}

func TestGenerateWritesCommandList(t *testing.T) {
	target := manifestTarget(t)
	graph := graphOf(target)
	g := gnuGen(graph)

	warns, err := g.Generate()
	require.NoError(t, err)
	assert.Empty(t, warns)

	wantCmds, _, err := g.Commands(target)
	require.NoError(t, err)
	data, err := os.ReadFile(CommandsPath(target))
	require.NoError(t, err)
	assert.Equal(t, strings.Join(wantCmds, "\n")+"\n", string(data))

	assert.FileExists(t, ManifestPath(target))
	assert.False(t, UpToDate(target))

	_, err = g.Generate()
	require.NoError(t, err)
	assert.FileExists(t, PrevManifestPath(target))
	assert.True(t, UpToDate(target))
}

func TestGenerateDependencyCycle(t *testing.T) {
	dir := t.TempDir()
	a := &project.Target{Kind: project.SLib, Name: "a", Dir: dir, Deps: []string{"b"}}
	b := &project.Target{Kind: project.SLib, Name: "b", Dir: dir, Deps: []string{"a"}}

	_, err := gnuGen(graphOf(a, b)).Generate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependency cycle")
}
