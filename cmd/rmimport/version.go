package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Version is the current version of rmimport (overridden by ldflags at build time)
	Version = "0.3.0"
	// Build can be set via ldflags at compile time
	Build = "dev"
	// Commit is the git revision the binary was built from (optional ldflag)
	Commit = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if jsonOutput {
			result := map[string]string{
				"version": Version,
				"build":   Build,
			}
			if Commit != "" {
				result["commit"] = Commit
			}
			outputJSON(result)
			return
		}
		if Commit != "" {
			fmt.Printf("rmimport version %s (%s: %s)\n", Version, Build, shortCommit(Commit))
			return
		}
		fmt.Printf("rmimport version %s (%s)\n", Version, Build)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func shortCommit(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
