package ui

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/steveyegge/rmimport/internal/diagnostics"
)

var (
	anchorTag = regexp.MustCompile(`<a href="([^"]*)">([^<]*)</a>`)
	anyTag    = regexp.MustCompile(`<[^>]+>`)
)

// PlainText turns a diagnostics note into terminal text. Links keep their
// target after the anchor text.
func PlainText(fragment string) string {
	s := anchorTag.ReplaceAllString(fragment, "$2 <$1>")
	s = anyTag.ReplaceAllString(s, "")
	return html.UnescapeString(s)
}

// Summary is the headline of a report.
type Summary struct {
	DryRun      bool
	Issues      int
	Links       int
	Milestones  int
	Users       int
	Attachments int
}

// RenderReport renders the run summary and every diagnostics section,
// wrapped to width columns.
func RenderReport(sum Summary, d *diagnostics.Result, width int) string {
	var b strings.Builder

	verb := "Imported"
	if sum.DryRun {
		verb = "Dry run: would import"
	}
	headline := fmt.Sprintf("%s %d issues, %d links, %d milestones, %d users, %d attachments",
		verb, sum.Issues, sum.Links, sum.Milestones, sum.Users, sum.Attachments)
	if d.Empty() {
		b.WriteString(RenderPass(IconPass) + " " + headline + "\n")
		return b.String()
	}
	b.WriteString(RenderWarn(IconWarn) + " " + headline + "\n")
	b.WriteString(RenderSeparator() + "\n")

	item := lipgloss.NewStyle().PaddingLeft(2)
	if width > 4 {
		item = item.Width(width)
	}
	for _, s := range d.Sections() {
		count := RenderAccent(fmt.Sprintf("(%d)", len(s.Entries)+s.More))
		b.WriteString("\n" + RenderCategory(s.Title) + " " + count + "\n")
		for _, e := range s.Entries {
			if s.HTML {
				e = PlainText(e)
			}
			b.WriteString(item.Render("• "+e) + "\n")
		}
		if s.More > 0 {
			b.WriteString(item.Render(RenderMuted(diagnostics.MoreSuffix(s.More))) + "\n")
		}
	}
	return b.String()
}

// RenderFailure renders a failed command for stderr. The hint line is
// omitted when hint is empty.
func RenderFailure(msg, hint string) string {
	out := RenderFail(IconFail+" Error:") + " " + msg + "\n"
	if hint != "" {
		out += RenderMuted(IconInfo+" Hint: "+hint) + "\n"
	}
	return out
}
