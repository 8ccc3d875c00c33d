package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyegge/rmimport/internal/config"
	"github.com/steveyegge/rmimport/internal/redmine"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List the projects of the Redmine server",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(config.Load())
		if err != nil {
			return err
		}
		defer client.Close()

		projects, err := redmine.Projects(rootCtx, client)
		if err != nil {
			return fmt.Errorf("listing projects: %w", err)
		}
		sortProjects(projects)

		if jsonOutput {
			outputJSON(projects)
			return nil
		}
		for _, p := range projects {
			fmt.Printf("%s:%d\n", p.Name, p.ID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(projectsCmd)
}

// sortProjects orders projects by name, ignoring case, then by id.
func sortProjects(projects []redmine.Project) {
	sort.SliceStable(projects, func(i, j int) bool {
		a, b := strings.ToLower(projects[i].Name), strings.ToLower(projects[j].Name)
		if a != b {
			return a < b
		}
		return projects[i].ID < projects[j].ID
	})
}
