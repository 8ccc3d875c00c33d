package importer

import (
	"context"
	"fmt"
	"html"
	"strconv"

	"github.com/steveyegge/rmimport/internal/redmine"
	"github.com/steveyegge/rmimport/internal/types"
)

// relationLinkNames maps journal relation names to the link name shown in
// the issue history.
var relationLinkNames = map[string]string{
	"relates":     "Related To",
	"duplicates":  "Duplicating",
	"duplicated":  "Duplicated By",
	"blocks":      "Blocking",
	"blocked":     "Blocked By",
	"precedes":    "Precedes",
	"follows":     "Follows",
	"copied_to":   "Copied To",
	"copied_from": "Copied From",
}

// journal converts one history entry into a comment and change records.
// Field edits of the journal are gathered into a single FieldChange.
func (t *Transformer) journal(ctx context.Context, issue *types.Issue, j redmine.Journal) error {
	user, err := t.users.ResolveRef(ctx, j.User)
	if err != nil {
		return err
	}
	date, err := redmine.ParseTime(j.CreatedOn)
	if err != nil {
		t.logger.Warn("skipping journal with bad timestamp", "issue", issue.OldNumber, "journal", j.ID, "err", err)
		t.diag.Notef("Journal %d of Redmine issue %s has an invalid date %q and was skipped",
			j.ID, t.issueLink(issue.OldNumber), html.EscapeString(j.CreatedOn))
		return nil
	}

	if j.Notes != nil {
		if notes := t.text(*j.Notes); notes != "" {
			issue.AddComment(&types.Comment{User: user, Date: date, Content: notes})
		}
	}

	fields := &types.FieldChange{}
	add := func(data types.ChangeData) {
		issue.AddChange(&types.Change{Date: date, User: user, Data: data})
	}

	for _, d := range j.Details {
		switch d.Property {
		case "attr":
			if data, err := t.attrDetail(ctx, issue, d, fields); err != nil {
				return err
			} else if data != nil {
				add(data)
			}
		case "relation":
			name, ok := relationLinkNames[d.Name]
			if !ok {
				name = "Unknown"
			}
			add(types.PendingLinkChange{LinkName: name, OldNumber: parseNumber(d.OldValue), NewNumber: parseNumber(d.NewValue)})
		case "cf":
			name, ok := t.index.CustomFields.Lookup(d.Name)
			if !ok {
				t.diag.Notef("Unknown history custom field '%s' in Redmine issue %s",
					html.EscapeString(d.Name), t.issueLink(issue.OldNumber))
				continue
			}
			if spec, ok := t.cfg.Tables.Field.Lookup(name); ok {
				name = spec.Name
			}
			fields.Set(name, d.Old(), d.New())
		case "attachment", "attachment_version":
			// attachment history is not carried over
		default:
			t.diag.Notef("Unknown history property '%s' in Redmine issue %s",
				html.EscapeString(d.Property), t.issueLink(issue.OldNumber))
		}
	}

	if !fields.Empty() {
		add(*fields)
	}
	return nil
}

// attrDetail handles a change of a built-in issue attribute. It returns the
// change to record, or nil when the detail went into fields or was dropped.
func (t *Transformer) attrDetail(ctx context.Context, issue *types.Issue, d redmine.Detail,
	fields *types.FieldChange) (types.ChangeData, error) {
	opts := t.cfg.Options
	named := func(field string, names Names) {
		if field == "" {
			return
		}
		oldName, _ := names.Lookup(d.Old())
		newName, _ := names.Lookup(d.New())
		fields.Set(field, oldName, newName)
	}
	configured := func(field, fallback string) {
		if field == "" {
			field = fallback
		}
		fields.Set(field, d.Old(), d.New())
	}

	switch d.Name {
	case "subject":
		return types.TitleChange{Old: d.Old(), New: d.New()}, nil
	case "description":
		// description history is not carried over
	case "status_id":
		oldName, _ := t.index.Statuses.Lookup(d.Old())
		newName, _ := t.index.Statuses.Lookup(d.New())
		return types.StateChange{Old: oldName, New: newName}, nil
	case "author_id":
		fields.Set("Author ID", d.Old(), d.New())
	case "parent_id":
		fields.Set("Parent ID", d.Old(), d.New())
	case "tracker_id":
		named("Type", t.index.Trackers)
	case "priority_id":
		named("Priority", t.index.Priorities)
	case "assigned_to_id":
		// assignees are not imported without a target field
		if opts.AssigneesField == "" {
			break
		}
		oldName, err := t.assigneeName(ctx, d.OldValue)
		if err != nil {
			return nil, err
		}
		newName, err := t.assigneeName(ctx, d.NewValue)
		if err != nil {
			return nil, err
		}
		fields.Set(opts.AssigneesField, oldName, newName)
	case "category_id":
		named(opts.CategoryField, t.index.Categories)
	case "fixed_version_id":
		oldName, hasOld := t.index.Versions.Lookup(d.Old())
		newName, hasNew := t.index.Versions.Lookup(d.New())
		switch {
		case hasOld && hasNew:
			return types.MilestoneChange{Old: []string{oldName}, New: []string{newName}}, nil
		case hasNew:
			return types.MilestoneAdd{Milestone: newName}, nil
		case hasOld:
			return types.MilestoneRemove{Milestone: oldName}, nil
		}
	case "start_date":
		configured(opts.StartDateField, "Start date")
	case "due_date":
		configured(opts.DueDateField, "Due date")
	case "done_ratio":
		configured(opts.DoneRatioField, "Done Ratio")
	case "estimated_hours":
		configured(opts.EstimatedHoursField, "Estimated Hours")
	default:
		t.diag.Notef("Unknown history property name '%s' in Redmine issue %s",
			html.EscapeString(d.Name), t.issueLink(issue.OldNumber))
	}
	return nil, nil
}

// assigneeName resolves a user id from a journal detail to a target login.
// Unresolvable ids yield "" and a diagnostic.
func (t *Transformer) assigneeName(ctx context.Context, value *string) (string, error) {
	if value == nil || *value == "" {
		return "", nil
	}
	id, err := strconv.ParseInt(*value, 10, 64)
	if err != nil {
		return "", nil
	}
	u, err := t.users.Resolve(ctx, id)
	if err != nil {
		return "", err
	}
	if u == nil {
		name, _ := t.index.Users.Lookup(*value)
		t.users.Unresolved(name, id)
		return "", nil
	}
	return u.Name, nil
}

// issueLink renders the source issue and its JSON form as HTML anchors.
func (t *Transformer) issueLink(old int64) string {
	return fmt.Sprintf(`<a href="%s">#%d</a> (<a href="%s">JSON</a>)`,
		redmine.IssueURL(t.api, old), old, redmine.IssueJSONURL(t.api, old))
}

func parseNumber(s *string) *int64 {
	if s == nil {
		return nil
	}
	n, err := strconv.ParseInt(*s, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
