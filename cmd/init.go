// kiln init [name], kiln new [path]
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kiln-build/kiln/internal/msg"
	"github.com/kiln-build/kiln/internal/project"
)

func writefile(content string, elem ...string) {
	path := filepath.Join(elem...)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err = os.WriteFile(path, []byte(content), 0o644); err != nil {
			msg.Fatal("create file %s: %v", path, err)
		}
		fmt.Printf("%s file: %s\n", color.HiGreenString("Created"), filepath.ToSlash(path))
	}
}

func mkdir(elem ...string) {
	path := filepath.Join(elem...)
	if err := os.MkdirAll(path, 0o755); err != nil {
		msg.Fatal("mkdir %s: %v", path, err)
	}
}

func getProgramName() string {
	if len(os.Args) == 0 {
		return "kiln"
	}
	basename := filepath.Base(os.Args[0])
	return strings.TrimSuffix(basename, filepath.Ext(basename))
}

// initIn scaffolds a buildable project in an existing directory.
func initIn(dir, name string, lib bool) {
	if lib {
		writefile(`# `+name+` build configuration
TARGET SLIB `+name+` ALL
`, dir, project.ConfigName)
	} else {
		writefile(`# `+name+` build configuration
TARGET EXEC `+name+` ALL
`, dir, project.ConfigName)
	}

	mkdir(dir, "src")

	if lib {
		writefile(`#include <stdio.h>
#include "`+name+`.h"

void `+name+`_hello(void) {
    puts("Hello, World!");
}
`, dir, "src", name+".c")

		writefile(`#ifndef `+strings.ToUpper(name)+`_H
#define `+strings.ToUpper(name)+`_H

#ifdef __cplusplus
extern "C" {
#endif

void `+name+`_hello(void);

#ifdef __cplusplus
} // extern "C"
#endif

#endif
`, dir, "src", name+".h")
	} else {
		writefile(`// You may change this to a .cpp (.cc) file if you'd like
#include <stdio.h>

int main(void) {
    puts("Hello, World!");
    return 0;
}
`, dir, "src", "main.c")
	}

	writefile(`build/
`, dir, ".gitignore")

	programName := getProgramName()
	fmt.Printf("You can now do %s to build, or %s to build and run.\n", color.HiCyanString(programName+" "+dir), color.HiCyanString(programName+" run "+dir+" "+name))
}

var library bool

var initCmd = &cobra.Command{
	Use:   "init [name]",
	Short: "Create a new project in the current directory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		initIn(".", args[0], library)
	},
}

var newCmd = &cobra.Command{
	Use:   "new [path]",
	Short: "Create a new project in a new directory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mkdir(args[0])
		initIn(args[0], filepath.Base(args[0]), library)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVarP(&library, "lib", "l", false, "Create a static library target")

	rootCmd.AddCommand(newCmd)
	newCmd.Flags().BoolVarP(&library, "lib", "l", false, "Create a static library target")
}
