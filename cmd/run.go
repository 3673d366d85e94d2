// kiln run [dir] [target] [args...]
package cmd

import (
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/kiln-build/kiln/internal/builder"
	"github.com/kiln-build/kiln/internal/msg"
	"github.com/kiln-build/kiln/internal/project"
)

func doRun(cmd *cobra.Command, args []string) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	tc := activeToolchain()
	graph := regenerate(dir, tc)
	b := builder.New(graph, project.Host())
	if err := b.BuildAll(); err != nil {
		msg.Fatal("%v", err)
	}

	var target *project.Target
	if len(args) > 1 {
		t, ok := graph.Lookup(args[1])
		if !ok {
			msg.Fatal("target %q not found", args[1])
		}
		target = t
	} else {
		for _, t := range graph.Targets() {
			if t.Kind == project.Exec {
				target = t
				break
			}
		}
		if target == nil {
			msg.Fatal("no executable target to run")
		}
	}
	if target.Kind != project.Exec {
		msg.Fatal("can't run %q, it is a %s target", target.Name, target.Kind)
	}

	var programArgs []string
	if len(args) > 2 {
		programArgs = args[2:]
	}
	run := exec.Command(target.Artifact(project.Host()), programArgs...)
	run.Stdout = os.Stdout
	run.Stderr = os.Stderr
	run.Stdin = os.Stdin
	if err := run.Run(); err != nil {
		msg.Fatal("%v", err)
	}
}

var runCmd = &cobra.Command{
	Use:   "run [dir] [target] [args...]",
	Short: "Build everything, then run one executable target",
	Long: `Build everything, then run one executable target. With no target
name, the first executable in the graph runs. Everything after the
target name is passed to the program.`,
	Args: cobra.ArbitraryArgs,
	Run:  doRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}
