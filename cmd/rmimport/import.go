package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/steveyegge/rmimport/internal/config"
	"github.com/steveyegge/rmimport/internal/debug"
	"github.com/steveyegge/rmimport/internal/importer"
	"github.com/steveyegge/rmimport/internal/lockfile"
	"github.com/steveyegge/rmimport/internal/mapping"
	"github.com/steveyegge/rmimport/internal/target"
	"github.com/steveyegge/rmimport/internal/target/filestore"
	"github.com/steveyegge/rmimport/internal/telemetry"
	"github.com/steveyegge/rmimport/internal/ui"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a Redmine project into the target store",
	Long: `Import every issue of the configured Redmine project, together with its
versions, categories, journals, attachments and relations.

Nothing is written until all issues are transformed; an interrupted or failed
run leaves the target untouched. Use --dry-run to preview the diagnostics a real
run would produce.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		yes, _ := cmd.Flags().GetBool("yes")
		issues, _ := cmd.Flags().GetString("issues")
		reportPath, _ := cmd.Flags().GetString("report")

		s := config.Load()
		if err := s.RequireImport(); err != nil {
			return withHint(err, "See 'rmimport import --help' for the flags that set it")
		}
		opts, err := loadOptions(s)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("issues") {
			opts.ImportIssueIDs = issues
		}

		if !dryRun && !yes && !jsonOutput && ui.IsTerminal() {
			ok, err := confirmImport(s)
			if err != nil {
				return err
			}
			if !ok {
				debug.PrintlnNormal("Import cancelled")
				return nil
			}
		}

		res, err := runImport(rootCtx, s, opts, dryRun, os.Stderr)
		if err != nil {
			return explainImportError(err)
		}

		if reportPath != "" {
			if err := writeReport(reportPath, res); err != nil {
				return err
			}
		}
		if jsonOutput {
			outputJSON(newImportReport(res))
			return nil
		}
		return ui.ToPager(ui.RenderReport(summarize(res), res.Diagnostics, ui.Width(80)), ui.PagerOptions{NoPager: noPager})
	},
}

func init() {
	importCmd.Flags().Bool("dry-run", false, "Transform and report without writing to the target")
	importCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	importCmd.Flags().String("issues", "", "Only import these issue ids (comma separated, overrides import_issue_ids)")
	importCmd.Flags().String("report", "", "Also write the diagnostics as an HTML fragment to this file")
	rootCmd.AddCommand(importCmd)
}

// lockName is the lock file guarding the attachments directory and its target.
const lockName = ".rmimport.lock"

// runImport wires the engine to the configured source and target and runs
// it. Progress goes to progressOut when it is not nil.
func runImport(ctx context.Context, s config.Settings, opts *mapping.Options, dryRun bool, progressOut io.Writer) (*importer.Result, error) {
	client, err := newClient(s)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	store, err := openTarget(ctx, s)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	var attachments target.AttachmentStore
	if s.AttachmentsDir != "" {
		attachments = filestore.New(s.AttachmentsDir)
		if !dryRun {
			lock, err := lockfile.Acquire(filepath.Join(s.AttachmentsDir, lockName), lockfile.LockInfo{
				Target:  fmt.Sprintf("%s project %d", s.TargetDriver, s.TargetProject),
				Version: Version,
			})
			if err != nil {
				return nil, err
			}
			defer func() { _ = lock.Release() }()
		}
	}

	engine := &importer.Engine{
		API:         client,
		Target:      telemetry.WrapTarget(store),
		Attachments: attachments,
		Logger:      debug.Logger(),
		OnStage: func(stage importer.Stage) {
			debug.Logf("stage: %s\n", stage)
		},
	}

	showBar := progressOut != nil && !jsonOutput && !debug.IsQuiet()
	if showBar {
		bar := ui.NewProgress(progressOut, "Importing issues")
		engine.OnProgress = bar.Update
		defer func() { _ = bar.Finish() }()
	}
	engine.OnMessage = func(msg string) {
		if showBar || jsonOutput {
			debug.Logf("%s\n", msg)
			return
		}
		debug.PrintNormal("%s\n", msg)
	}

	return engine.Run(ctx, importer.Config{
		ProjectID:         s.TargetProject,
		SourceProject:     s.Project,
		Options:           opts,
		DryRun:            dryRun,
		MaxAttachmentSize: s.MaxAttachmentSize,
	})
}

func confirmImport(s config.Settings) (bool, error) {
	ok := false
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Import Redmine project %q into target project %d?", s.Project, s.TargetProject)).
				Description("Issues are written in one commit at the end of the run.").
				Affirmative("Import").
				Negative("Cancel").
				Value(&ok),
		),
	).WithTheme(huh.ThemeDracula())
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, fmt.Errorf("confirmation prompt: %w", err)
	}
	return ok, nil
}

func explainImportError(err error) error {
	var conflict *importer.ConflictError
	switch {
	case errors.As(err, &conflict):
		return withHint(err, "Set use_existing_issue_ids: false in the options file to renumber imported issues")
	case errors.Is(err, mapping.ErrConfiguration):
		return withHint(err, "Run 'rmimport options check' to validate the options file")
	case errors.Is(err, importer.ErrInterrupted):
		return withHint(err, "Nothing was written; run the import again")
	case errors.Is(err, lockfile.ErrLockBusy):
		return withHint(err, "Wait for the other import to finish")
	default:
		return err
	}
}

func summarize(res *importer.Result) ui.Summary {
	return ui.Summary{
		DryRun:      res.DryRun,
		Issues:      res.Stats.Issues,
		Links:       res.Stats.Links,
		Milestones:  res.Stats.Milestones,
		Users:       res.Stats.UsersCreated,
		Attachments: res.Stats.Attachments,
	}
}

// importReport is the --json form of a run.
type importReport struct {
	DryRun      bool                `json:"dry_run"`
	Stats       importer.Stats      `json:"stats"`
	Diagnostics map[string][]string `json:"diagnostics,omitempty"`
}

func newImportReport(res *importer.Result) importReport {
	return importReport{DryRun: res.DryRun, Stats: res.Stats, Diagnostics: res.Diagnostics.Summary()}
}

func writeReport(path string, res *importer.Result) error {
	leading := "Issues imported successfully"
	if res.DryRun {
		leading = "Dry run finished, nothing was written"
	}
	if err := os.WriteFile(path, []byte(res.Diagnostics.HTML(leading)), 0644); err != nil { // #nosec G306 - report holds no secrets
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
