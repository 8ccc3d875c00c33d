// Package target defines the target tracker collaborators an import run
// reads from and commits to.
package target

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/steveyegge/rmimport/internal/types"
)

// SchemaProvider exposes the target's current issue settings.
type SchemaProvider interface {
	IssueSchema(ctx context.Context) (*types.Schema, error)
}

// MilestoneSource lists the milestones of a target project.
type MilestoneSource interface {
	Milestones(ctx context.Context, projectID int64) ([]*types.Milestone, error)
}

// UserDirectory looks up target accounts and groups.
type UserDirectory interface {
	// FindByVerifiedEmail returns nil, nil when no account owns email.
	FindByVerifiedEmail(ctx context.Context, email string) (*types.User, error)
	GroupExists(ctx context.Context, name string) (bool, error)
}

// IssueNumbers answers numbering questions for a project.
type IssueNumbers interface {
	IssueExists(ctx context.Context, projectID, number int64) (bool, error)
	MaxIssueNumber(ctx context.Context, projectID int64) (int64, error)
}

// LinkSpecRegistry looks up instance-wide link types by name.
type LinkSpecRegistry interface {
	// FindLinkSpec returns nil, nil when no link spec has the name.
	FindLinkSpec(ctx context.Context, name string) (*types.LinkSpec, error)
}

// Persister writes a fully built batch. Implementations must apply the
// batch atomically: either everything is stored or nothing is.
type Persister interface {
	Commit(ctx context.Context, b *Batch) error
}

// Target is everything an import run needs from the target tracker.
type Target interface {
	SchemaProvider
	MilestoneSource
	UserDirectory
	IssueNumbers
	LinkSpecRegistry
	Persister
}

// AttachmentStore stores attachment bytes for an issue.
type AttachmentStore interface {
	// Save stores r under filename and returns the stored name, which may
	// differ from filename when the name is already taken.
	Save(ctx context.Context, projectID int64, ownerID, filename string, r io.Reader) (string, error)
	URLFor(projectID int64, ownerID, stored string) string
	// Remove deletes a stored attachment. Removing a missing one is not an
	// error.
	Remove(ctx context.Context, projectID int64, ownerID, stored string) error
}

// PendingAttachment is an accepted source attachment that is downloaded and
// saved only when the batch is persisted.
type PendingAttachment struct {
	Issue        *types.Issue
	Filename     string
	SourceURL    string
	Size         int64
	PredictedURL string // URL already written into the issue description
}

// Batch is everything a run writes to the target.
type Batch struct {
	ProjectID   int64
	FieldSpecs  []*types.FieldSpec // field specs added to the schema
	Milestones  []*types.Milestone // created or updated
	Users       []*types.User      // created
	Memberships []*types.Membership
	LinkSpecs   []*types.LinkSpec // created
	Issues      []*types.Issue
	Links       []*types.IssueLink
	Attachments []*PendingAttachment
}

// Empty reports whether the batch writes nothing.
func (b *Batch) Empty() bool {
	return len(b.FieldSpecs) == 0 && len(b.Milestones) == 0 && len(b.Users) == 0 &&
		len(b.Memberships) == 0 && len(b.LinkSpecs) == 0 && len(b.Issues) == 0 &&
		len(b.Links) == 0 && len(b.Attachments) == 0
}

// DownloadPath is the URL path under which a stored attachment is served.
func DownloadPath(projectID int64, ownerID, stored string) string {
	return fmt.Sprintf("/~downloads/projects/%d/attachments/%s/%s", projectID, ownerID, url.PathEscape(stored))
}

// UniqueName returns name, or the first "base-N.ext" variant for which taken
// reports false.
func UniqueName(name string, taken func(string) bool) string {
	if !taken(name) {
		return name
	}
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s-%d%s", base, n, ext)
		if !taken(candidate) {
			return candidate
		}
	}
}
