package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/rmimport/internal/config"
	"github.com/steveyegge/rmimport/internal/importer"
	"github.com/steveyegge/rmimport/internal/mapping"
	"github.com/steveyegge/rmimport/internal/ui"
)

var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "Manage import options files",
}

var optionsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write default import options for the source project",
	Long: `Discover the statuses, trackers, priorities and issue custom fields of the
Redmine server and write an options file mapping each of them to the target
schema where a default exists. Values without a default are left unmapped.

The format follows the file extension: .yaml/.yml or .toml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		s := config.Load()
		path := s.OptionsFile
		if out, _ := cmd.Flags().GetString("out"); out != "" {
			path = out
		}
		if _, err := os.Stat(path); err == nil && !force {
			return withHint(fmt.Errorf("options file %s already exists", path), "Pass --force to overwrite it")
		}

		opts, err := defaultOptions(rootCtx, s)
		if err != nil {
			return err
		}
		if err := mapping.SaveOptions(path, opts); err != nil {
			return err
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{"path": path, "options": opts})
			return nil
		}
		unmapped := countUnmapped(opts)
		fmt.Printf("%s Wrote %s\n", ui.RenderPass(ui.IconPass), path)
		if unmapped > 0 {
			fmt.Printf("%s %d source values have no default target; edit the file to map them\n",
				ui.RenderWarn(ui.IconWarn), unmapped)
		}
		return nil
	},
}

var optionsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the import options against the target schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		s := config.Load()
		opts, err := loadOptions(s)
		if err != nil {
			return err
		}
		if err := checkOptions(rootCtx, s, opts); err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(map[string]interface{}{"path": s.OptionsFile, "valid": true})
			return nil
		}
		fmt.Printf("%s %s is valid\n", ui.RenderPass(ui.IconPass), s.OptionsFile)
		return nil
	},
}

func init() {
	optionsInitCmd.Flags().String("out", "", "Write to this file instead of the configured options file")
	optionsInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
	optionsCmd.AddCommand(optionsInitCmd, optionsCheckCmd)
	rootCmd.AddCommand(optionsCmd)
}

// defaultOptions proposes options for the source categories and the target
// schema.
func defaultOptions(ctx context.Context, s config.Settings) (*mapping.Options, error) {
	client, err := newClient(s)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	src, err := importer.DiscoverCategories(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("discovering source categories: %w", err)
	}

	store, err := openTarget(ctx, s)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	schema, err := store.IssueSchema(ctx)
	if err != nil {
		return nil, err
	}
	return mapping.Defaults(schema, src), nil
}

// checkOptions resolves opts against the target schema without importing.
func checkOptions(ctx context.Context, s config.Settings, opts *mapping.Options) error {
	store, err := openTarget(ctx, s)
	if err != nil {
		return err
	}
	defer store.Close()
	schema, err := store.IssueSchema(ctx)
	if err != nil {
		return err
	}
	if err := mapping.CheckFields(schema, opts); err != nil {
		return err
	}
	if _, err := mapping.Resolve(schema, opts); err != nil {
		return err
	}
	_, err = mapping.ParseIssueIDs(opts.ImportIssueIDs)
	return err
}

func countUnmapped(opts *mapping.Options) int {
	n := 0
	for _, entries := range [][]mapping.Entry{opts.StatusMappings, opts.TrackerMappings, opts.PriorityMappings, opts.FieldMappings} {
		for _, e := range entries {
			if e.Target == "" {
				n++
			}
		}
	}
	return n
}
