// kiln [dir] [command...]
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kiln-build/kiln/internal/builder"
	"github.com/kiln-build/kiln/internal/fetch"
	"github.com/kiln-build/kiln/internal/gen"
	"github.com/kiln-build/kiln/internal/msg"
	"github.com/kiln-build/kiln/internal/project"
	"github.com/kiln-build/kiln/internal/registry"
	"github.com/kiln-build/kiln/internal/selfupdate"
	"github.com/kiln-build/kiln/internal/toolchain"
)

var (
	flagStrict    bool
	flagToolchain EnumValue = NewEnumValue("auto", map[string]string{
		"auto":  "Probe for gcc, clang or cl",
		"gnu":   "GNU gcc/g++",
		"clang": "LLVM clang/clang++",
		"msvc":  "Microsoft Visual C++",
	})
)

var rootCmd = &cobra.Command{
	Use:   "kiln [dir] [command...]",
	Short: "A small C and C++ build tool",
	Long: `kiln expands proj.kiln configuration files into per-target command
lists and replays them dependency-first.

The first argument is the project directory, everything after it is a
command, applied left to right: clean/c, softclean/sc, build/b,
buildcache/bc, gnu/msvc/clang, echo/e, noecho/ne, force/f, noforce/nf,
or the name of a single target to build. With no commands, kiln builds
the whole graph:

  kiln . clean b          clean everything, then rebuild
  kiln . gnu app clang t  build app with gcc and t with clang`,
	Args: cobra.ArbitraryArgs,
	Run:  run,
}

func run(cmd *cobra.Command, args []string) {
	// re-invocation during a self-update: build the cwd and get out
	// without checking for updates again
	if len(args) > 0 && args[0] == "NOUPDATE" {
		tc := activeToolchain()
		graph := regenerate(".", tc)
		if err := builder.New(graph, project.Host()).BuildAll(); err != nil {
			msg.Fatal("%v", err)
		}
		return
	}

	dir := "."
	var commands []string
	if len(args) > 0 {
		dir = args[0]
		commands = args[1:]
	}
	if len(commands) == 0 {
		commands = []string{"build"}
	}

	if selfupdate.Check() {
		return
	}

	tc := activeToolchain()
	echo, force, failed := false, false, false

	newBuilder := func(graph *project.Graph) *builder.Builder {
		b := builder.New(graph, project.Host())
		b.Echo = echo
		b.Force = force
		return b
	}

	for _, command := range commands {
		switch command {
		case "clean", "c":
			builder.Clean(expand(dir, tc))
			fmt.Println("Done cleaning")
		case "softclean", "sc":
			builder.SoftClean(expand(dir, tc))
		case "gnu":
			tc = mustFamily(toolchain.GNU)
		case "clang":
			tc = mustFamily(toolchain.Clang)
		case "msvc":
			tc = mustFamily(toolchain.MSVC)
		case "echo", "e":
			echo = true
		case "noecho", "ne":
			echo = false
		case "force", "f":
			force = true
		case "noforce", "nf":
			force = false
		case "buildcache", "bc":
			regenerate(dir, tc)
		case "build", "b":
			if err := newBuilder(regenerate(dir, tc)).BuildAll(); err != nil {
				msg.Error("%v", err)
				failed = true
			}
		default:
			if err := newBuilder(regenerate(dir, tc)).BuildTarget(command); err != nil {
				msg.Error("%v", err)
				failed = true
			}
		}
	}
	if failed {
		os.Exit(1)
	}
}

// expand parses the project configuration under dir into a target
// graph with the active toolchain. Parse problems are fatal; skipped
// lines are warnings, or fatal under --strict.
func expand(dir string, tc toolchain.Descriptor) *project.Graph {
	git := &fetch.Git{Progress: &msg.IndentWriter{Indent: "    ", W: os.Stdout}}
	reg, err := registry.Load(git)
	if err != nil {
		msg.Fatal("%v", err)
	}
	e := &project.Expander{Toolchain: tc, Fetcher: git, Packages: reg}
	graph, diags, err := e.Expand(dir)
	warnings := make([]string, 0, len(diags))
	for _, d := range diags {
		warnings = append(warnings, d.String())
	}
	report(warnings)
	if err != nil {
		msg.Fatal("%v", err)
	}
	return graph
}

// regenerate expands dir and rewrites every target's command list and
// fingerprint manifest.
func regenerate(dir string, tc toolchain.Descriptor) *project.Graph {
	fmt.Print("Generating build files... ")
	graph := expand(dir, tc)
	warnings, err := gen.New(tc, project.Host(), graph).Generate()
	report(warnings)
	if err != nil {
		msg.Fatal("%v", err)
	}
	fmt.Println("Done")
	return graph
}

func report(warnings []string) {
	if len(warnings) == 0 {
		return
	}
	for _, w := range warnings {
		if flagStrict {
			msg.Error("%s", w)
		} else {
			msg.Warn("%s", w)
		}
	}
	if flagStrict {
		msg.Fatal("aborting after %d diagnostic(s)", len(warnings))
	}
}

// activeToolchain resolves the --toolchain flag, probing the host when
// it is left on auto.
func activeToolchain() toolchain.Descriptor {
	if family := flagToolchain.Value(); family != "auto" {
		return mustFamily(toolchain.Family(family))
	}
	tc, err := toolchain.Detect()
	if err != nil {
		msg.Fatal("%v", err)
	}
	return tc
}

func mustFamily(f toolchain.Family) toolchain.Descriptor {
	tc, ok := toolchain.ByFamily(f)
	if !ok {
		msg.Fatal("unknown toolchain %q", f)
	}
	return tc
}

func init() {
	rootCmd.Version = selfupdate.Version()
	rootCmd.PersistentFlags().BoolVar(&flagStrict, "strict", false, "Treat configuration warnings as errors")
	rootCmd.PersistentFlags().VarP(&flagToolchain, "toolchain", "t", "Toolchain to use, one of "+flagToolchain.HelpString())
	rootCmd.RegisterFlagCompletionFunc("toolchain", flagToolchain.CompletionFunc())
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
