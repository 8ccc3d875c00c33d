package importer

import (
	"context"
	"fmt"

	"github.com/steveyegge/rmimport/internal/diagnostics"
	"github.com/steveyegge/rmimport/internal/redmine"
	"github.com/steveyegge/rmimport/internal/target"
	"github.com/steveyegge/rmimport/internal/types"
)

type linkSpecDef struct {
	name             string
	oppositeName     string // "" for symmetric specs
	oppositeMultiple bool
	order            int
}

// relationSpecs gives the link spec created for each relation kind. The
// relation's issue_to_id side is the link source.
var relationSpecs = map[string]linkSpecDef{
	"relates":    {name: "Related To", order: 10},
	"duplicates": {name: "Duplicated By", oppositeName: "Duplicating", oppositeMultiple: true, order: 11},
	"blocks":     {name: "Blocked By", oppositeName: "Blocking", oppositeMultiple: true, order: 12},
	"precedes":   {name: "Follows", oppositeName: "Precedes", oppositeMultiple: true, order: 13},
	"copied_to":  {name: "Copied From", oppositeName: "Copied To", oppositeMultiple: true, order: 14},
}

var parentSpec = linkSpecDef{name: "Child Issue", oppositeName: "Parent Issue", order: 15}

// LinkBuilder turns the relations and parent references collected during
// transformation into typed links once every issue of the run is known.
type LinkBuilder struct {
	api      redmine.API
	registry target.LinkSpecRegistry
	index    *ReferenceIndex
	diag     *diagnostics.Result

	specs   map[string]*types.LinkSpec // by name, found or created this run
	created []*types.LinkSpec
}

// NewLinkBuilder returns a builder over the issues recorded in index.
func NewLinkBuilder(api redmine.API, registry target.LinkSpecRegistry, index *ReferenceIndex,
	diag *diagnostics.Result) *LinkBuilder {
	return &LinkBuilder{
		api:      api,
		registry: registry,
		index:    index,
		diag:     diag,
		specs:    make(map[string]*types.LinkSpec),
	}
}

// ResolvePending rewrites every PendingLinkChange of the indexed issues into
// a TitleChange naming both sides as "#<number> - <title>".
func (b *LinkBuilder) ResolvePending() int {
	n := 0
	for _, issue := range b.index.Issues() {
		for _, c := range issue.Changes {
			pending, ok := c.Data.(types.PendingLinkChange)
			if !ok {
				continue
			}
			c.Data = types.TitleChange{Old: b.summary(pending.OldNumber), New: b.summary(pending.NewNumber)}
			last := &issue.LastActivity
			if last.Date.Equal(c.Date) && last.Description == pending.Activity() {
				last.Description = c.Data.Activity()
			}
			n++
		}
	}
	return n
}

func (b *LinkBuilder) summary(old *int64) string {
	if old == nil {
		return ""
	}
	number := *old
	if n, ok := b.index.NewNumber(*old); ok {
		number = n
	}
	s := fmt.Sprintf("#%d", number)
	if issue, ok := b.index.Issue(*old); ok {
		s += " - " + issue.Title
	}
	return s
}

// Build resolves relations and parent references into links. References to
// issues outside the run are reported as notes and produce no link.
func (b *LinkBuilder) Build(ctx context.Context, relations []redmine.Relation, parents []ParentLink) ([]*types.IssueLink, error) {
	var links []*types.IssueLink

	for _, r := range relations {
		source, ok := b.index.Issue(r.IssueToID)
		if !ok {
			b.diag.Notef(`Relation to unknown issue #%d in Redmine issue <a href="%s">#%d</a>`,
				r.IssueToID, redmine.IssueURL(b.api, r.IssueID), r.IssueID)
			continue
		}
		dest, ok := b.index.Issue(r.IssueID)
		if !ok {
			b.diag.Notef(`Relation to unknown issue #%d in Redmine issue <a href="%s">#%d</a>`,
				r.IssueID, redmine.IssueURL(b.api, r.IssueToID), r.IssueToID)
			continue
		}
		def, ok := relationSpecs[r.RelationType]
		if !ok {
			def = relationSpecs["relates"]
		}
		spec, err := b.spec(ctx, def)
		if err != nil {
			return nil, err
		}
		links = append(links, &types.IssueLink{Source: source, Target: dest, Spec: spec})
	}

	for _, p := range parents {
		source, ok := b.index.Issue(p.Parent)
		if !ok {
			b.diag.Notef(`Unknown parent issue #%d in Redmine issue <a href="%s">#%d</a>`,
				p.Parent, redmine.IssueURL(b.api, p.Child), p.Child)
			continue
		}
		dest, ok := b.index.Issue(p.Child)
		if !ok {
			b.diag.Notef(`Unknown child issue #%d in Redmine issue <a href="%s">#%d</a>`,
				p.Child, redmine.IssueURL(b.api, p.Parent), p.Parent)
			continue
		}
		spec, err := b.spec(ctx, parentSpec)
		if err != nil {
			return nil, err
		}
		links = append(links, &types.IssueLink{Source: source, Target: dest, Spec: spec})
	}
	return links, nil
}

// spec returns the link spec named by def, reusing a target spec of the same
// name and creating it at most once per run otherwise.
func (b *LinkBuilder) spec(ctx context.Context, def linkSpecDef) (*types.LinkSpec, error) {
	if s, ok := b.specs[def.name]; ok {
		return s, nil
	}
	s, err := b.registry.FindLinkSpec(ctx, def.name)
	if err != nil {
		return nil, fmt.Errorf("looking up link spec %q: %w", def.name, err)
	}
	if s == nil {
		s = &types.LinkSpec{Name: def.name, Multiple: true, Order: def.order}
		if def.oppositeName != "" {
			s.Opposite = &types.LinkOpposite{Name: def.oppositeName, Multiple: def.oppositeMultiple}
		}
		b.created = append(b.created, s)
	}
	b.specs[def.name] = s
	return s, nil
}

// Created returns the link specs that do not exist in the target yet.
func (b *LinkBuilder) Created() []*types.LinkSpec {
	return append([]*types.LinkSpec(nil), b.created...)
}
