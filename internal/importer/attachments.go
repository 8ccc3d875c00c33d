package importer

import (
	"fmt"
	"strings"

	"github.com/steveyegge/rmimport/internal/diagnostics"
	"github.com/steveyegge/rmimport/internal/redmine"
	"github.com/steveyegge/rmimport/internal/target"
	"github.com/steveyegge/rmimport/internal/types"
)

// stageAttachments records the accepted attachments of issue for download at
// persist time and returns the description with references rewritten to
// their predicted target URLs and an attachment list appended.
func (t *Transformer) stageAttachments(issue *types.Issue, attachments []redmine.Attachment) string {
	markdown := issue.Description
	var links strings.Builder
	taken := make(map[string]bool)

	for _, a := range attachments {
		if a.Filesize == 0 || a.Filename == "" || a.ContentURL == "" {
			continue
		}
		if a.Filesize > t.cfg.MaxAttachmentSize {
			t.diag.Add(diagnostics.OversizedAttachments, fmt.Sprintf("#%d:%s", issue.OldNumber, a.Filename))
			continue
		}

		stored := target.UniqueName(a.Filename, func(name string) bool { return taken[name] })
		taken[stored] = true
		url := t.cfg.URLFor(t.cfg.ProjectID, issue.UUID, stored)
		t.attachments = append(t.attachments, &target.PendingAttachment{
			Issue:        issue,
			Filename:     a.Filename,
			SourceURL:    a.ContentURL,
			Size:         a.Filesize,
			PredictedURL: url,
		})

		markdown = strings.ReplaceAll(markdown, "("+a.Filename+")", "("+url+")")

		links.WriteString("[" + a.Filename + "](" + url + ")")
		if a.Description != "" {
			links.WriteString(" - " + a.Description)
		}
		author := ""
		if a.Author != nil {
			author = a.Author.Name
		}
		links.WriteString(" (" + author + ", " + a.CreatedOn + ")\n")
	}

	if links.Len() > 0 {
		markdown += "\n\n**Attachments:**\n" + links.String()
	}
	return markdown
}

// relocate rewrites an attachment URL inside the owning issue's description
// after the store picked a different name than predicted.
func relocate(p *target.PendingAttachment, actual string) {
	if actual == p.PredictedURL {
		return
	}
	p.Issue.Description = strings.ReplaceAll(p.Issue.Description, "("+p.PredictedURL+")", "("+actual+")")
	p.PredictedURL = actual
}
