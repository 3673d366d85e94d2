// kiln registry list|add|remove
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kiln-build/kiln/internal/fetch"
	"github.com/kiln-build/kiln/internal/msg"
	"github.com/kiln-build/kiln/internal/registry"
)

func doRegistryList() {
	reg, err := registry.Load(&fetch.Git{})
	if err != nil {
		msg.Fatal("failed to load registry: %v", err)
	}
	for _, name := range reg.Names() {
		entry, _ := reg.Entry(name)
		if entry.DB != "" {
			fmt.Printf("%s\t%s (db: %s)\n", name, entry.Repo, entry.DB)
		} else {
			fmt.Printf("%s\t%s\n", name, entry.Repo)
		}
	}
}

func doRegistryAdd(name, repo, db string) {
	entries, err := registry.LoadUser()
	if err != nil {
		msg.Fatal("failed to load registry: %v", err)
	}

	if _, exists := entries[name]; exists {
		msg.Warn("overwriting existing entry for %s", name)
	} else if registry.IsBuiltin(name) {
		msg.Warn("shadowing the builtin entry for %s", name)
	}
	entries[name] = registry.Entry{Repo: repo, DB: db}

	if err := registry.SaveUser(entries); err != nil {
		msg.Fatal("failed to save registry: %v", err)
	}
	msg.Info("added package %s -> %s", name, repo)
}

func doRegistryRemove(name string) {
	entries, err := registry.LoadUser()
	if err != nil {
		msg.Fatal("failed to load registry: %v", err)
	}

	if _, exists := entries[name]; !exists {
		if registry.IsBuiltin(name) {
			msg.Fatal("%s is a builtin package and cannot be removed", name)
		}
		msg.Warn("package %s not found", name)
		return
	}
	delete(entries, name)

	if err := registry.SaveUser(entries); err != nil {
		msg.Fatal("failed to save registry: %v", err)
	}
	msg.Info("removed package %s", name)
}

var registryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the packages BUILTIN can resolve",
	Run: func(cmd *cobra.Command, args []string) {
		doRegistryList()
	},
}

var registryAddCmd = &cobra.Command{
	Use:   "add <name> <repo> [db]",
	Short: "Add a package to the user registry",
	Args:  cobra.RangeArgs(2, 3),
	Run: func(cmd *cobra.Command, args []string) {
		db := ""
		if len(args) > 2 {
			db = args[2]
		}
		doRegistryAdd(args[0], args[1], db)
	},
}

var registryRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a package from the user registry",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		doRegistryRemove(args[0])
	},
}

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Manage the vendored-package registry",
	Long: `Manage the registry behind the BUILTIN directive. Builtin entries
ship with kiln; user entries live in registry.toml under the kiln
directory of your user configuration and can shadow them.`,
}

func init() {
	registryCmd.AddCommand(registryListCmd)
	registryCmd.AddCommand(registryAddCmd)
	registryCmd.AddCommand(registryRemoveCmd)
	rootCmd.AddCommand(registryCmd)
}
