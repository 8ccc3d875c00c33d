// Command rmimport imports the issues of a Redmine project into a OneDev
// style issue store.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/steveyegge/rmimport/internal/config"
	"github.com/steveyegge/rmimport/internal/debug"
	"github.com/steveyegge/rmimport/internal/telemetry"
)

var (
	jsonOutput  bool
	verboseFlag bool
	quietFlag   bool
	noPager     bool

	// Signal-aware context for graceful cancellation
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

// configFlags maps persistent flags to the config keys they override.
var configFlags = map[string]string{
	"redmine-url":     config.KeyRedmineURL,
	"project":         config.KeyRedmineProject,
	"page-size":       config.KeyPageSize,
	"target-driver":   config.KeyTargetDriver,
	"target-dsn":      config.KeyTargetDSN,
	"target-project":  config.KeyTargetProject,
	"attachments-dir": config.KeyAttachmentsDir,
	"options":         config.KeyOptionsFile,
}

func init() {
	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize config: %v\n", err)
	}

	flags := rootCmd.PersistentFlags()
	flags.String("redmine-url", "", "Redmine base URL (config: redmine.url)")
	flags.StringP("project", "p", "", "Source project identifier or id (config: redmine.project)")
	flags.Int("page-size", 0, "Items per page when listing (config: redmine.page-size)")
	flags.String("target-driver", "", "Target database driver: sqlite or mysql (config: target.driver)")
	flags.String("target-dsn", "", "Target database DSN or SQLite path (config: target.dsn)")
	flags.Int64("target-project", 0, "Target project id (config: target.project-id)")
	flags.String("attachments-dir", "", "Directory receiving attachments (config: attachments.dir)")
	flags.String("options", "", "Import options file, .yaml or .toml (config: options)")
	flags.BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	flags.BoolVar(&noPager, "no-pager", false, "Do not page long reports")
	flags.BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	flags.BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")

	rootCmd.Flags().BoolP("version", "V", false, "Print version information")
}

var rootCmd = &cobra.Command{
	Use:           "rmimport",
	Short:         "rmimport - Redmine issue importer",
	Long:          `Imports issues, versions, categories, relations and history of a Redmine project.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("rmimport version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupSignalContext()
		applyVerbosityFlags()
		applyConfigOverrides(cmd)

		if err := telemetry.Init(rootCtx, "rmimport", Version); err != nil {
			WarnError("telemetry disabled: %v", err)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if err := telemetry.Shutdown(context.Background()); err != nil {
			debug.Logf("telemetry shutdown: %v\n", err)
		}
		if rootCancel != nil {
			rootCancel()
		}
	},
}

func setupSignalContext() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func applyVerbosityFlags() {
	debug.SetVerbose(verboseFlag)
	debug.SetQuiet(quietFlag)
}

// applyConfigOverrides pushes explicitly set flags into the config so that
// they win over the environment and config files.
func applyConfigOverrides(cmd *cobra.Command) {
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if key, ok := configFlags[f.Name]; ok {
			config.Set(key, f.Value.String())
		}
	})
	if !cmd.Flags().Changed("json") {
		jsonOutput = config.GetBool(config.KeyJSON)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var hinted *hintError
		if errors.As(err, &hinted) {
			FatalErrorWithHint(hinted.Error(), hinted.hint)
		}
		if jsonOutput {
			outputJSONError(err, errorCode(err))
		}
		FatalError("%v", err)
	}
}
