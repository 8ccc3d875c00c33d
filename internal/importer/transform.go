package importer

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/steveyegge/rmimport/internal/diagnostics"
	"github.com/steveyegge/rmimport/internal/mapping"
	"github.com/steveyegge/rmimport/internal/markup"
	"github.com/steveyegge/rmimport/internal/redmine"
	"github.com/steveyegge/rmimport/internal/target"
	"github.com/steveyegge/rmimport/internal/types"
)

// DefaultMaxAttachmentSize is the attachment size limit used when none is
// configured.
const DefaultMaxAttachmentSize = 20 << 20

// TransformConfig carries the per-run inputs of a Transformer.
type TransformConfig struct {
	ProjectID         int64 // target project
	Options           *mapping.Options
	Tables            *mapping.Tables
	Schema            *types.Schema
	Milestones        map[string]*types.Milestone // by name: target project plus imported versions
	PreserveNumbers   bool                        // reuse source numbers instead of allocating
	MaxAttachmentSize int64
	URLFor            func(projectID int64, ownerID, stored string) string
	NewUUID           func() string
}

// Transformer turns source issues into target issues. It records relation
// and parent references for the link builder and stages accepted
// attachments; it never writes to the target.
type Transformer struct {
	cfg     TransformConfig
	api     redmine.API
	numbers target.IssueNumbers
	index   *ReferenceIndex
	users   *UserResolver
	diag    *diagnostics.Result
	logger  *slog.Logger

	nextNumber  int64 // 0 until seeded from the target
	relations   map[int64]redmine.Relation
	parents     []ParentLink
	attachments []*target.PendingAttachment
}

// ParentLink is a child issue's reference to its parent, by source number.
type ParentLink struct {
	Child  int64
	Parent int64
}

// NewTransformer returns a transformer for one run.
func NewTransformer(cfg TransformConfig, api redmine.API, numbers target.IssueNumbers, index *ReferenceIndex,
	users *UserResolver, diag *diagnostics.Result, logger *slog.Logger) *Transformer {
	if cfg.MaxAttachmentSize <= 0 {
		cfg.MaxAttachmentSize = DefaultMaxAttachmentSize
	}
	if cfg.URLFor == nil {
		cfg.URLFor = target.DownloadPath
	}
	if cfg.NewUUID == nil {
		cfg.NewUUID = func() string { return uuid.New().String() }
	}
	if cfg.Milestones == nil {
		cfg.Milestones = make(map[string]*types.Milestone)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Transformer{
		cfg:       cfg,
		api:       api,
		numbers:   numbers,
		index:     index,
		users:     users,
		diag:      diag,
		logger:    logger,
		relations: make(map[int64]redmine.Relation),
	}
}

// Transform builds the target issue for src. detail is the same issue
// fetched with relations, watchers, attachments and journals. The result is
// recorded in the reference index.
func (t *Transformer) Transform(ctx context.Context, src, detail *redmine.Issue) (*types.Issue, error) {
	opts := t.cfg.Options
	old := src.ID

	for _, field := range src.Validate() {
		t.diag.Add(diagnostics.MissingFields, fmt.Sprintf("#%d:%s", old, field))
	}

	number, err := t.number(ctx, old)
	if err != nil {
		return nil, err
	}

	submitter, err := t.users.ResolveRef(ctx, src.Author)
	if err != nil {
		return nil, err
	}
	submitted, err := redmine.ParseTime(src.CreatedOn)
	if err != nil {
		submitted, _ = redmine.ParseTime(src.UpdatedOn)
	}

	issue := types.NewIssue(t.cfg.NewUUID(), t.cfg.ProjectID, submitter, submitted)
	issue.Number = number
	issue.OldNumber = old
	for _, f := range t.cfg.Schema.Fields {
		issue.SetField(f.Name)
	}

	issue.Title = src.Subject
	if strings.TrimSpace(issue.Title) == "" {
		issue.Title = fmt.Sprintf("Redmine issue #%d", old)
	}
	if src.Description != nil {
		issue.Description = t.text(*src.Description)
	}

	var extra fallbackTable

	issue.State = t.cfg.Schema.InitialState
	if src.Status != nil {
		if state, ok := t.cfg.Tables.Status.Lookup(src.Status.Name); ok {
			issue.State = state
		} else {
			t.diag.Add(diagnostics.UnmappedStatuses, src.Status.Name)
		}
	}

	if src.FixedVersion != nil {
		name := src.FixedVersion.Name
		if _, ok := t.cfg.Milestones[name]; ok {
			issue.Schedule(name)
		} else {
			extra.add("Milestone", html.EscapeString(name))
			t.diag.Add(diagnostics.MissingMilestones, name)
		}
	}

	if src.Tracker != nil {
		t.choice(issue, &extra, t.cfg.Tables.Tracker, "Type", src.Tracker.Name, diagnostics.UnmappedTypes)
	}
	if src.Priority != nil {
		t.choice(issue, &extra, t.cfg.Tables.Priority, "Priority", src.Priority.Name, diagnostics.UnmappedPriorities)
	}

	if src.AssignedTo != nil {
		assignee, err := t.users.Resolve(ctx, src.AssignedTo.ID)
		if err != nil {
			return nil, err
		}
		switch {
		case assignee == nil:
			t.users.Unresolved(src.AssignedTo.Name, src.AssignedTo.ID)
		case opts.AssigneesField != "":
			issue.SetField(opts.AssigneesField, assignee.Name)
		default:
			extra.add("Assignee", html.EscapeString(assignee.Name))
		}
	}

	if opts.CategoryField != "" {
		if src.Category != nil {
			issue.SetField(opts.CategoryField, src.Category.Name)
		} else {
			issue.SetField(opts.CategoryField)
		}
	} else if src.Category != nil {
		extra.add("Category", html.EscapeString(src.Category.Name))
	}

	t.optional(issue, &extra, opts.StartDateField, "Start date", src.StartDate, nil)
	t.optional(issue, &extra, opts.DueDateField, "Due date", src.DueDate, nil)
	if src.DoneRatio != nil {
		v := strconv.Itoa(*src.DoneRatio)
		t.optional(issue, &extra, opts.DoneRatioField, "% Done", &v, func(s string) string { return s + "%" })
	}
	if src.EstimatedHours != nil {
		v := strconv.FormatFloat(*src.EstimatedHours, 'f', -1, 64)
		t.optional(issue, &extra, opts.EstimatedHoursField, "Estimated time", &v, nil)
	}

	t.customFields(issue, &extra, src.CustomFields)

	for _, rel := range detail.Relations {
		t.relations[rel.ID] = rel
	}
	if src.Parent != nil {
		t.parents = append(t.parents, ParentLink{Child: old, Parent: src.Parent.ID})
	}

	if err := t.watchers(ctx, issue, detail.Watchers); err != nil {
		return nil, err
	}

	issue.Description = t.stageAttachments(issue, detail.Attachments)

	for _, j := range detail.Journals {
		if err := t.journal(ctx, issue, j); err != nil {
			return nil, err
		}
	}
	issue.SortHistory()

	if !extra.empty() {
		table := extra.render()
		if issue.Description != "" {
			issue.Description = table + "\n\n" + issue.Description
		} else {
			issue.Description = table
		}
	}

	t.index.AddIssue(old, issue)
	return issue, nil
}

// number assigns the target number of a source issue.
func (t *Transformer) number(ctx context.Context, old int64) (int64, error) {
	if t.cfg.Options.UseExistingIssueNumbers {
		exists, err := t.numbers.IssueExists(ctx, t.cfg.ProjectID, old)
		if err != nil {
			return 0, fmt.Errorf("checking issue #%d: %w", old, err)
		}
		if exists {
			return 0, &ConflictError{Number: old}
		}
	}
	if t.cfg.PreserveNumbers {
		return old, nil
	}
	if t.nextNumber == 0 {
		highest, err := t.numbers.MaxIssueNumber(ctx, t.cfg.ProjectID)
		if err != nil {
			return 0, fmt.Errorf("reading next issue number: %w", err)
		}
		t.nextNumber = highest + 1
	}
	n := t.nextNumber
	t.nextNumber++
	return n, nil
}

// text normalizes line endings and, when enabled, converts Textile.
func (t *Transformer) text(s string) string {
	if t.cfg.Options.ConvertTextile {
		return markup.Convert(s)
	}
	return markup.NormalizeNewlines(s)
}

func (t *Transformer) choice(issue *types.Issue, extra *fallbackTable, table *mapping.Table[mapping.FieldTarget],
	label, name string, category diagnostics.Category) {
	if mapped, ok := table.Lookup(name); ok {
		issue.SetField(mapped.Spec.Name, mapped.Value)
		return
	}
	extra.add(label, html.EscapeString(name))
	t.diag.Add(category, name)
}

// optional routes a value to its configured field, or to a fallback row
// when no field is configured.
func (t *Transformer) optional(issue *types.Issue, extra *fallbackTable, field, label string, value *string,
	display func(string) string) {
	if value == nil {
		return
	}
	if field != "" {
		if *value == "" {
			issue.SetField(field)
		} else {
			issue.SetField(field, *value)
		}
		return
	}
	shown := *value
	if display != nil {
		shown = display(shown)
	}
	extra.add(label, html.EscapeString(shown))
}

func (t *Transformer) customFields(issue *types.Issue, extra *fallbackTable, fields []redmine.CustomFieldValue) {
	for _, cf := range fields {
		values, multi := cf.Values()
		if len(values) == 0 {
			continue
		}
		spec, ok := t.cfg.Tables.Field.Lookup(cf.Name)
		if !ok {
			escaped := make([]string, len(values))
			for i, v := range values {
				escaped[i] = html.EscapeString(v)
			}
			extra.add(cf.Name, strings.Join(escaped, "<br>"))
			t.diag.Add(diagnostics.UnmappedFields, cf.Name)
			continue
		}
		if spec.Type == types.FieldMilestone && !multi {
			values = []string{MatchMilestone(values[0], t.cfg.Milestones)}
		}
		issue.SetField(spec.Name, values...)
	}
}

func (t *Transformer) watchers(ctx context.Context, issue *types.Issue, watchers []redmine.Ref) error {
	seen := make(map[*types.User]bool)
	for _, w := range watchers {
		u, err := t.users.Resolve(ctx, w.ID)
		if err != nil {
			return err
		}
		if u == nil {
			t.users.Unresolved(w.Name, w.ID)
			continue
		}
		if seen[u] {
			continue
		}
		seen[u] = true
		issue.Watches = append(issue.Watches, &types.Watch{User: u, Watching: true})
	}
	return nil
}

// MatchMilestone reconciles a version name with the known milestones: an
// exact match, then the name with trailing ".0" segments removed one at a
// time, then the name with up to three ".0" segments appended. A name
// matching nothing is returned unchanged.
func MatchMilestone(name string, milestones map[string]*types.Milestone) string {
	if _, ok := milestones[name]; ok {
		return name
	}
	for m := name; strings.HasSuffix(m, ".0"); {
		m = strings.TrimSuffix(m, ".0")
		if _, ok := milestones[m]; ok {
			return m
		}
	}
	m := name
	for i := 0; i < 3; i++ {
		m += ".0"
		if _, ok := milestones[m]; ok {
			return m
		}
	}
	return name
}

// Relations returns the relations seen so far, ordered by relation id.
func (t *Transformer) Relations() []redmine.Relation {
	out := make([]redmine.Relation, 0, len(t.relations))
	for _, r := range t.relations {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Parents returns the parent references in transformation order.
func (t *Transformer) Parents() []ParentLink {
	return append([]ParentLink(nil), t.parents...)
}

// Attachments returns the staged attachments.
func (t *Transformer) Attachments() []*target.PendingAttachment {
	return append([]*target.PendingAttachment(nil), t.attachments...)
}

// fallbackTable collects attributes that have no target field. Adding an
// existing key replaces its value in place.
type fallbackTable struct {
	keys   []string
	values map[string]string
}

func (f *fallbackTable) add(key, value string) {
	if f.values == nil {
		f.values = make(map[string]string)
	}
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
}

func (f *fallbackTable) empty() bool { return len(f.keys) == 0 }

// render writes a one-row markdown table with the keys as header.
func (f *fallbackTable) render() string {
	var b strings.Builder
	b.WriteString("|")
	for _, k := range f.keys {
		b.WriteString(k + "|")
	}
	b.WriteString("\n|")
	for range f.keys {
		b.WriteString("---|")
	}
	b.WriteString("\n|")
	for _, k := range f.keys {
		b.WriteString(f.values[k] + "|")
	}
	return b.String()
}
