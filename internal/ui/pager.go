package ui

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// PagerOptions controls how a report reaches the user.
type PagerOptions struct {
	NoPager bool      // --no-pager
	Out     io.Writer // defaults to os.Stdout; any other writer is never paged
}

// pagerVars name the pager command, most specific first.
var pagerVars = []string{"RMIMPORT_PAGER", "PAGER"}

// lessDefaults keeps colors, quits when the report fits and leaves it on
// screen after quitting.
const lessDefaults = "LESS=-RFX"

// pagerArgs returns the pager command line, "less" when none is configured.
func pagerArgs(getenv func(string) string) []string {
	for _, name := range pagerVars {
		if args := strings.Fields(getenv(name)); len(args) > 0 {
			return args
		}
	}
	return []string{"less"}
}

// reportLines counts the lines a report occupies on screen.
func reportLines(report string) int {
	if report == "" {
		return 0
	}
	return strings.Count(strings.TrimSuffix(report, "\n"), "\n") + 1
}

// needsPager reports whether lines overflow a terminal of height rows. The
// prompt keeps the last row. An unknown height always pages.
func needsPager(lines, height int) bool {
	return height <= 0 || lines > height-1
}

// ToPager shows an import report, paging it when it is longer than the
// terminal. Short reports, redirected output and --no-pager or
// RMIMPORT_NO_PAGER print directly. A pager that cannot be started falls
// back to printing.
func ToPager(report string, opts PagerOptions) error {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	direct := opts.NoPager || os.Getenv("RMIMPORT_NO_PAGER") != "" ||
		out != io.Writer(os.Stdout) || !IsTerminal() ||
		!needsPager(reportLines(report), Height())
	if direct {
		_, err := io.WriteString(out, report)
		return err
	}

	args := pagerArgs(os.Getenv)
	cmd := exec.Command(args[0], args[1:]...) // #nosec G204 - the pager is the user's own setting
	cmd.Stdin = strings.NewReader(report)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	if os.Getenv("LESS") == "" {
		cmd.Env = append(cmd.Env, lessDefaults)
	}

	if err := cmd.Run(); err != nil {
		var notFound *exec.Error
		if errors.As(err, &notFound) {
			_, werr := io.WriteString(out, report)
			return werr
		}
		return fmt.Errorf("running pager %s: %w", args[0], err)
	}
	return nil
}
