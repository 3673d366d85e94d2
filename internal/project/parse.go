package project

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kiln-build/kiln/internal/toolchain"
)

// ConfigName is the configuration file kiln looks for in every project
// directory.
const ConfigName = "proj.kiln"

var (
	errNoFetcher  = errors.New("no source fetcher configured")
	errNoResolver = errors.New("no package resolver configured")
)

// SourceFetcher makes a git working copy at dest exist and be up to
// date. branch may be empty for the remote default branch.
type SourceFetcher interface {
	Fetch(url, dest, branch string) error
}

// PackageResolver materializes a named vendored package at dest and
// guarantees a configuration file is present at its root.
type PackageResolver interface {
	Resolve(name, dest string) error
}

// Expander turns a directory's configuration into a target graph,
// recursing across INCLUDE, GITINCLUDE and BUILTIN directives.
type Expander struct {
	Toolchain toolchain.Descriptor
	Platform  Platform // defaults to Host()
	Fetcher   SourceFetcher
	Packages  PackageResolver
}

// Expand parses the configuration under dir and every configuration it
// reaches, returning the accumulated graph together with diagnostics
// for the lines that were skipped as unparseable.
func (e *Expander) Expand(dir string) (*Graph, []Diagnostic, error) {
	if e.Platform == "" {
		e.Platform = Host()
	}
	st := &expansion{
		graph:  NewGraph(),
		active: make(map[string]bool),
	}
	if err := e.expandDir(dir, st); err != nil {
		return nil, st.diags, err
	}
	return st.graph, st.diags, nil
}

// expansion is the state threaded through recursive includes. Every
// included file appends to the same graph, so directives always see the
// targets declared before them, across file boundaries.
type expansion struct {
	graph  *Graph
	diags  []Diagnostic
	active map[string]bool // canonical dirs currently being expanded
}

func (st *expansion) diag(file string, line int, format string, a ...any) {
	st.diags = append(st.diags, Diagnostic{File: file, Line: line, Msg: fmt.Sprintf(format, a...)})
}

// mutate applies fn to the first target declared with the given name.
// Names not declared yet are skipped on purpose: a directive only sees
// the graph built so far.
func (st *expansion) mutate(name string, fn func(*Target)) {
	if t, ok := st.graph.Lookup(name); ok {
		fn(t)
	}
}

func (e *Expander) expandDir(dir string, st *expansion) error {
	canon, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if st.active[canon] {
		return fmt.Errorf("configuration include cycle through %s", dir)
	}
	st.active[canon] = true
	defer delete(st.active, canon)

	cfg := filepath.Join(dir, ConfigName)
	f, err := os.Open(cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s does not exist in %s", ConfigName, dir)
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := stripComment(sc.Text())
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "TARGET":
			e.parseTarget(dir, cfg, lineno, fields[1:], st)

		case "INCLUDE":
			if len(fields) < 2 {
				st.diag(cfg, lineno, "INCLUDE needs a directory name")
				continue
			}
			if err := e.expandDir(filepath.Join(dir, "lib", fields[1]), st); err != nil {
				return err
			}

		case "GITINCLUDE":
			if len(fields) < 3 {
				st.diag(cfg, lineno, "GITINCLUDE needs a url and a name")
				continue
			}
			branch := ""
			if len(fields) > 3 {
				branch = fields[3]
			}
			if e.Fetcher == nil {
				return errNoFetcher
			}
			dest := filepath.Join(dir, "lib", fields[2])
			if err := e.Fetcher.Fetch(fields[1], dest, branch); err != nil {
				return fmt.Errorf("fetching %s: %w", fields[2], err)
			}
			if err := e.expandVendored(dest, st); err != nil {
				return err
			}

		case "BUILTIN":
			if len(fields) < 2 {
				st.diag(cfg, lineno, "BUILTIN needs a package name")
				continue
			}
			if e.Packages == nil {
				return errNoResolver
			}
			dest := filepath.Join(dir, "lib", fields[1])
			if err := e.Packages.Resolve(fields[1], dest); err != nil {
				return fmt.Errorf("builtin %s: %w", fields[1], err)
			}
			if err := e.expandVendored(dest, st); err != nil {
				return err
			}

		case "DEPEND":
			if len(fields) < 3 {
				st.diag(cfg, lineno, "DEPEND needs a target name and a dependency")
				continue
			}
			st.mutate(fields[1], func(t *Target) { t.Deps = append(t.Deps, fields[2]) })

		case "LIB":
			if len(fields) < 3 {
				st.diag(cfg, lineno, "LIB needs a target name and a library")
				continue
			}
			st.mutate(fields[1], func(t *Target) { t.Libs = append(t.Libs, fields[2]) })

		case "INCDIR":
			if len(fields) < 3 {
				st.diag(cfg, lineno, "INCDIR needs a target name and a directory")
				continue
			}
			st.mutate(fields[1], func(t *Target) {
				t.Includes = append(t.Includes, filepath.Join(dir, fields[2]))
			})

		case "DEFINE":
			if len(fields) < 3 {
				st.diag(cfg, lineno, "DEFINE needs a target name and a macro")
				continue
			}
			macro := restAfter(line, 2)
			st.mutate(fields[1], func(t *Target) { t.Defines = append(t.Defines, macro) })

		case "PREBUILD", "POSTBUILD":
			if len(fields) < 3 {
				st.diag(cfg, lineno, "%s needs a target name and a command", fields[0])
				continue
			}
			cmd := restAfter(line, 2)
			post := fields[0] == "POSTBUILD"
			st.mutate(fields[1], func(t *Target) {
				if post {
					t.Postbuild = append(t.Postbuild, cmd)
				} else {
					t.Prebuild = append(t.Prebuild, cmd)
				}
			})

		case "VENDOR":
			if len(fields) < 2 {
				st.diag(cfg, lineno, "VENDOR needs a target name")
				continue
			}
			st.mutate(fields[1], func(t *Target) { t.Vendored = true })

		case "IF":
			if !e.evalCondition(cfg, lineno, fields[1:], st) {
				if err := skipBlock(sc, &lineno); err != nil {
					st.diag(cfg, lineno, "IF without matching ENDIF")
				}
			}

		case "ENDIF":
			// the matching IF was true, nothing to do

		default:
			st.diag(cfg, lineno, "unknown directive %q", fields[0])
		}
	}
	return sc.Err()
}

// expandVendored splices in another project's graph and marks every
// target it declared as vendored.
func (e *Expander) expandVendored(dir string, st *expansion) error {
	before := st.graph.Len()
	if err := e.expandDir(dir, st); err != nil {
		return err
	}
	for _, t := range st.graph.Targets()[before:] {
		t.Vendored = true
	}
	return nil
}

func (e *Expander) parseTarget(dir, cfg string, lineno int, args []string, st *expansion) {
	if len(args) < 2 {
		st.diag(cfg, lineno, "TARGET needs a kind and a name")
		return
	}
	kind, ok := ParseKind(args[0])
	if !ok {
		st.diag(cfg, lineno, "unknown target kind %q", args[0])
		return
	}
	t := &Target{Kind: kind, Name: args[1], Dir: dir}

	srcs := args[2:]
loop:
	for i := 0; i < len(srcs); i++ {
		switch srcs[i] {
		case "ALL":
			src := filepath.Join(dir, "src")
			t.Includes = append(t.Includes, src)
			files, err := collectSources(src, true, true)
			if err != nil {
				st.diag(cfg, lineno, "ALL: %v", err)
			}
			t.Sources = append(t.Sources, files...)
			break loop // ALL consumes the rest of the line

		case "GLOB", "RECURSE":
			if i+1 == len(srcs) {
				st.diag(cfg, lineno, "%s needs a directory", srcs[i])
				break loop
			}
			i++
			sub := filepath.Join(dir, srcs[i])
			t.Includes = append(t.Includes, sub)
			files, err := collectSources(sub, srcs[i-1] == "RECURSE", false)
			if err != nil {
				st.diag(cfg, lineno, "%s: %v", srcs[i-1], err)
				continue
			}
			t.Sources = append(t.Sources, files...)

		default:
			t.Sources = append(t.Sources, filepath.Join(dir, srcs[i]))
		}
	}

	st.graph.Add(t)
}

// evalCondition decides whether the block an IF opens is taken. Unknown
// predicates and values always skip the block, NOT does not invert that.
func (e *Expander) evalCondition(cfg string, lineno int, args []string, st *expansion) bool {
	neg := false
	if len(args) > 0 && args[0] == "NOT" {
		neg = true
		args = args[1:]
	}
	if len(args) < 2 {
		st.diag(cfg, lineno, "IF needs a predicate and a value")
		return false
	}

	var match bool
	switch args[0] {
	case "PLATFORM":
		m, ok := e.Platform.Matches(args[1])
		if !ok {
			st.diag(cfg, lineno, "unknown platform %q", args[1])
			return false
		}
		match = m
	case "COMPILER":
		if _, ok := toolchain.ByFamily(toolchain.Family(args[1])); !ok {
			st.diag(cfg, lineno, "unknown compiler %q", args[1])
			return false
		}
		match = e.Toolchain.Family == toolchain.Family(args[1])
	default:
		st.diag(cfg, lineno, "unknown IF predicate %q", args[0])
		return false
	}
	return match != neg
}

// skipBlock consumes lines up to the ENDIF matching an IF whose
// condition was false. Nothing inside is evaluated or reported; nested
// GITINCLUDE and BUILTIN directives fetch nothing.
func skipBlock(sc *bufio.Scanner, lineno *int) error {
	depth := 1
	for sc.Scan() {
		*lineno++
		fields := strings.Fields(stripComment(sc.Text()))
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "IF":
			depth++
		case "ENDIF":
			depth--
			if depth == 0 {
				return nil
			}
		}
	}
	return errors.New("unterminated IF")
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	return line
}

// restAfter returns what follows the first n whitespace-separated
// fields of line, with surrounding whitespace trimmed. PREBUILD,
// POSTBUILD and DEFINE take the rest of the line verbatim, spaces
// included.
func restAfter(line string, n int) string {
	rest := strings.TrimSpace(line)
	for i := 0; i < n; i++ {
		j := strings.IndexAny(rest, " \t")
		if j < 0 {
			return ""
		}
		rest = strings.TrimSpace(rest[j:])
	}
	return rest
}
