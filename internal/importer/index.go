package importer

import (
	"context"
	"fmt"
	"strconv"

	"github.com/steveyegge/rmimport/internal/redmine"
	"github.com/steveyegge/rmimport/internal/types"
)

// Names maps source ids to display names.
type Names map[int64]string

// Lookup resolves an id as it appears in journal details ("12").
func (n Names) Lookup(id string) (string, bool) {
	v, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return "", false
	}
	name, ok := n[v]
	return name, ok
}

// ReferenceIndex holds the lookup tables of one run: source id to name for
// each enumeration, and old issue number to new number and issue. The name
// maps are filled before transformation starts; issues are added as they
// are transformed.
type ReferenceIndex struct {
	Users        Names
	Versions     Names
	Statuses     Names
	Trackers     Names
	Priorities   Names
	Categories   Names
	CustomFields Names

	numbers map[int64]int64
	issues  map[int64]*types.Issue
	order   []int64
}

// NewReferenceIndex returns an empty index.
func NewReferenceIndex() *ReferenceIndex {
	return &ReferenceIndex{
		Users:        Names{},
		Versions:     Names{},
		Statuses:     Names{},
		Trackers:     Names{},
		Priorities:   Names{},
		Categories:   Names{},
		CustomFields: Names{},
		numbers:      make(map[int64]int64),
		issues:       make(map[int64]*types.Issue),
	}
}

// Load fills the name maps from the source. Versions and categories are
// read from project.
func (x *ReferenceIndex) Load(ctx context.Context, api redmine.Lister, project string) error {
	users, err := redmine.Users(ctx, api)
	if err != nil {
		return fmt.Errorf("listing users: %w", err)
	}
	for _, u := range users {
		x.Users[u.ID] = u.FullName()
	}

	versions, err := redmine.Versions(ctx, api, project)
	if err != nil {
		return fmt.Errorf("listing versions: %w", err)
	}
	for _, v := range versions {
		x.Versions[v.ID] = v.Name
	}

	named := []struct {
		what  string
		names Names
		list  func(context.Context, redmine.Lister) ([]redmine.Named, error)
	}{
		{"statuses", x.Statuses, redmine.Statuses},
		{"trackers", x.Trackers, redmine.Trackers},
		{"priorities", x.Priorities, redmine.Priorities},
	}
	for _, n := range named {
		items, err := n.list(ctx, api)
		if err != nil {
			return fmt.Errorf("listing %s: %w", n.what, err)
		}
		for _, item := range items {
			n.names[item.ID] = item.Name
		}
	}

	fields, err := redmine.CustomFields(ctx, api)
	if err != nil {
		return fmt.Errorf("listing custom fields: %w", err)
	}
	for _, f := range fields {
		x.CustomFields[f.ID] = f.Name
	}
	return nil
}

// AddCategories records project issue categories.
func (x *ReferenceIndex) AddCategories(categories []redmine.Named) {
	for _, c := range categories {
		x.Categories[c.ID] = c.Name
	}
}

// AddIssue records a transformed issue under its source number.
func (x *ReferenceIndex) AddIssue(oldNumber int64, issue *types.Issue) {
	if _, ok := x.issues[oldNumber]; !ok {
		x.order = append(x.order, oldNumber)
	}
	x.numbers[oldNumber] = issue.Number
	x.issues[oldNumber] = issue
}

// Issue returns the issue transformed from a source number.
func (x *ReferenceIndex) Issue(oldNumber int64) (*types.Issue, bool) {
	issue, ok := x.issues[oldNumber]
	return issue, ok
}

// NewNumber returns the target number assigned to a source number.
func (x *ReferenceIndex) NewNumber(oldNumber int64) (int64, bool) {
	n, ok := x.numbers[oldNumber]
	return n, ok
}

// Numbers returns a copy of the old to new number map.
func (x *ReferenceIndex) Numbers() map[int64]int64 {
	out := make(map[int64]int64, len(x.numbers))
	for k, v := range x.numbers {
		out[k] = v
	}
	return out
}

// Issues returns the transformed issues in transformation order.
func (x *ReferenceIndex) Issues() []*types.Issue {
	out := make([]*types.Issue, 0, len(x.order))
	for _, n := range x.order {
		out = append(out, x.issues[n])
	}
	return out
}

// Len returns the number of transformed issues.
func (x *ReferenceIndex) Len() int { return len(x.order) }
