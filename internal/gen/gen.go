package gen

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kiln-build/kiln/internal/project"
	"github.com/kiln-build/kiln/internal/toolchain"
)

// Generator produces per-target command lists for one toolchain and
// host platform and persists them under each target's build tree.
type Generator struct {
	tc    toolchain.Descriptor
	host  project.Platform
	graph *project.Graph
}

func New(tc toolchain.Descriptor, host project.Platform, graph *project.Graph) *Generator {
	return &Generator{tc: tc, host: host, graph: graph}
}

// Generate writes the command list and rotates the fingerprint
// manifests for every target in the graph. Warnings report sources
// that were skipped and inputs that could not be fingerprinted.
func (g *Generator) Generate() ([]string, error) {
	var warnings []string
	for _, t := range g.graph.Targets() {
		cmds, warns, err := g.Commands(t)
		if err != nil {
			return warnings, err
		}
		warnings = append(warnings, warns...)
		if err := writeCommands(t, cmds); err != nil {
			return warnings, err
		}
		warns, err = WriteManifest(t)
		warnings = append(warnings, warns...)
		if err != nil {
			return warnings, err
		}
	}
	return warnings, nil
}

// Commands returns the ordered command list for one target: prebuild
// steps, dynamic-dependency artifact copies, one compile per source,
// the link or archive step, then postbuild steps. Interface targets
// get no compile and no link step. Sources with unrecognized
// extensions produce a warning instead of a command; header files are
// tracked inputs, not translation units.
func (g *Generator) Commands(t *project.Target) ([]string, []string, error) {
	if err := ensureLayout(t.Dir); err != nil {
		return nil, nil, err
	}

	var cmds []string
	cmds = append(cmds, t.Prebuild...)

	var compFlags, linkFlags string
	for _, lib := range t.Libs {
		linkFlags += " -l" + lib
	}
	for _, def := range t.Defines {
		compFlags += " -D" + def
	}

	for _, depName := range t.Deps {
		dep, ok := g.graph.Lookup(depName)
		if !ok {
			continue
		}
		switch dep.Kind {
		case project.SLib:
			linkFlags += " -L" + filepath.Join(dep.Dir, "build", "lib")
			linkFlags += " -l" + dep.Name
			for _, lib := range dep.Libs {
				linkFlags += " -l" + lib
			}
		case project.DLib:
			linkFlags += " -L" + filepath.Join(dep.Dir, "build", "bin")
			linkFlags += " -l" + dep.Name
			for _, lib := range dep.Libs {
				linkFlags += " -l" + lib
			}
			artifact := dep.Artifact(g.host)
			cmds = append(cmds, g.copyCmd(artifact, filepath.Join(t.Dir, "build", "bin", filepath.Base(artifact))))
		case project.Iface:
			for _, lib := range dep.Libs {
				linkFlags += " -l" + lib
			}
		case project.Exec:
			// executables cannot be linked against
		}
	}

	includes, err := ResolveIncludes(t, g.graph)
	if err != nil {
		return nil, nil, err
	}
	for _, inc := range includes {
		compFlags += " -I" + inc
	}
	if t.Kind == project.DLib {
		compFlags += " -fPIC"
	}

	var warnings []string
	if t.Kind != project.Iface {
		var objs []string
		for _, src := range t.Sources {
			switch {
			case project.IsSource(src):
				obj := filepath.Join(t.Dir, "build", "obj", objName(t, src))
				objs = append(objs, obj)
				cmds = append(cmds, g.compilerFor(src)+" -c "+src+" -o "+obj+compFlags)
			case project.IsHeader(src):
				// headers are tracked inputs, not translation units
			default:
				warnings = append(warnings, fmt.Sprintf("%s: skipping %s: unrecognized extension", t.Name, src))
			}
		}
		cmds = append(cmds, g.linkCmd(t, objs, linkFlags))
	}

	cmds = append(cmds, t.Postbuild...)
	return cmds, warnings, nil
}

// compilerFor picks the C or C++ compiler by source extension.
func (g *Generator) compilerFor(src string) string {
	switch filepath.Ext(src) {
	case ".c", ".cc":
		return g.tc.CC
	default:
		return g.tc.CXX
	}
}

func (g *Generator) linkCmd(t *project.Target, objs []string, linkFlags string) string {
	artifact := t.Artifact(g.host)
	switch t.Kind {
	case project.SLib:
		return g.tc.AR + " rcs " + artifact + " " + strings.Join(objs, " ")
	case project.DLib:
		return g.tc.LD + " -shared " + strings.Join(objs, " ") + " -o " + artifact + linkFlags
	default:
		return g.tc.LD + " " + strings.Join(objs, " ") + " -o " + artifact + linkFlags
	}
}

func (g *Generator) copyCmd(src, dst string) string {
	if g.host == project.Windows {
		return "copy " + src + " " + dst
	}
	return "cp " + src + " " + dst
}

var objSeparators = strings.NewReplacer("/", "_", "\\", "_")

// objName flattens a source path relative to the target's directory
// into one object file name, "src/net/io.c" becomes "src_net_io.c.o".
func objName(t *project.Target, src string) string {
	rel, err := filepath.Rel(t.Dir, src)
	if err != nil {
		rel = filepath.Base(src)
	}
	return objSeparators.Replace(rel) + ".o"
}

// ensureLayout creates the persisted build tree for one target
// directory, whether or not this pass populates every part of it.
func ensureLayout(dir string) error {
	for _, sub := range []string{"obj", "bin", "lib", "cache"} {
		if err := os.MkdirAll(filepath.Join(dir, "build", sub), 0o755); err != nil {
			return err
		}
	}
	return nil
}

func writeCommands(t *project.Target, cmds []string) error {
	path := CommandsPath(t)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var sb strings.Builder
	for _, cmd := range cmds {
		sb.WriteString(cmd)
		sb.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}
