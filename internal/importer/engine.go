// Package importer turns the issues of a Redmine project into target issues.
//
// A run is driven by Engine.Run and moves through fixed stages: it reads the
// target schema and the source enumerations, imports categories and
// versions, transforms every issue with its journals, resolves relations
// into links and finally writes everything in one commit. Nothing is written
// before the last stage, so a failed or cancelled run leaves the target
// untouched.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/steveyegge/rmimport/internal/diagnostics"
	"github.com/steveyegge/rmimport/internal/mapping"
	"github.com/steveyegge/rmimport/internal/redmine"
	"github.com/steveyegge/rmimport/internal/target"
	"github.com/steveyegge/rmimport/internal/telemetry"
	"github.com/steveyegge/rmimport/internal/types"
)

const scopeName = "github.com/steveyegge/rmimport/importer"

// Stage is a step of an import run.
type Stage int

const (
	StageIdle Stage = iota
	StageFetchingSchemaContext
	StageImportingCategories
	StageImportingVersions
	StageImportingIssues
	StageBuildingLinks
	StagePersisting
	StageDone
)

var stageNames = [...]string{
	"idle",
	"fetching schema context",
	"importing categories",
	"importing versions",
	"importing issues",
	"building links",
	"persisting",
	"done",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Config selects what a run imports and where.
type Config struct {
	ProjectID         int64  // target project
	SourceProject     string // source project identifier or numeric id
	Options           *mapping.Options
	DryRun            bool
	MaxAttachmentSize int64 // 0 means DefaultMaxAttachmentSize
}

// Engine runs imports. The zero value is not usable; API and Target are
// required, Attachments is required when issues carry attachments and the
// run is not a dry run.
type Engine struct {
	API         redmine.API
	Target      target.Target
	Attachments target.AttachmentStore
	Logger      *slog.Logger

	OnMessage  func(string)          // user-facing progress lines
	OnStage    func(Stage)           // stage transitions
	OnProgress func(done, total int) // issues transformed so far
	NewUUID    func() string         // issue UUIDs, random when nil
}

// Stats counts what a run produced.
type Stats struct {
	Issues       int `json:"issues"`
	Comments     int `json:"comments"`
	Changes      int `json:"changes"`
	Links        int `json:"links"`
	Milestones   int `json:"milestones"`
	UsersCreated int `json:"users_created"`
	Attachments  int `json:"attachments"`
	Pages        int `json:"pages"`
}

// Result is the outcome of a completed run.
type Result struct {
	Diagnostics *diagnostics.Result
	Issues      []*types.Issue
	Links       []*types.IssueLink
	Batch       *target.Batch
	Stats       Stats
	DryRun      bool
}

// run holds the state of one import run.
type run struct {
	*Engine
	cfg    Config
	opts   *mapping.Options
	logger *slog.Logger
	tracer trace.Tracer

	schema     *types.Schema
	tables     *mapping.Tables
	issueIDs   string
	group      string
	milestones map[string]*types.Milestone
	index      *ReferenceIndex
	diag       *diagnostics.Result
	batch      *target.Batch
	stats      Stats
	relations  []redmine.Relation
	parents    []ParentLink

	issuesImported metric.Int64Counter
	pagesFetched   metric.Int64Counter
}

// Run performs one import. Cancelling ctx while issues are being imported
// stops the run with ErrInterrupted; nothing is persisted in that case.
func (e *Engine) Run(ctx context.Context, cfg Config) (*Result, error) {
	if e.API == nil || e.Target == nil {
		return nil, errors.New("importer: engine needs a source API and a target")
	}
	opts := cfg.Options
	if opts == nil {
		opts = mapping.DefaultOptions()
	}
	logger := e.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := &run{
		Engine:     e,
		cfg:        cfg,
		opts:       opts,
		logger:     logger.With("project", cfg.SourceProject),
		tracer:     telemetry.Tracer(scopeName),
		milestones: make(map[string]*types.Milestone),
		index:      NewReferenceIndex(),
		diag:       diagnostics.New(),
		batch:      &target.Batch{ProjectID: cfg.ProjectID},
	}
	m := telemetry.Meter(scopeName)
	r.issuesImported, _ = m.Int64Counter("rmimport.import.issues",
		metric.WithDescription("Issues transformed by import runs"),
	)
	r.pagesFetched, _ = m.Int64Counter("rmimport.import.pages",
		metric.WithDescription("Source issue pages consumed by import runs"),
	)

	ctx, span := r.tracer.Start(ctx, "import.run", trace.WithAttributes(
		attribute.String("import.source_project", cfg.SourceProject),
		attribute.Int64("import.target_project", cfg.ProjectID),
		attribute.Bool("import.dry_run", cfg.DryRun),
	))
	defer span.End()

	res, err := r.execute(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("import.issues", res.Stats.Issues),
		attribute.Int("import.diagnostics", res.Diagnostics.Total()),
	)
	return res, nil
}

func (r *run) execute(ctx context.Context) (*Result, error) {
	stages := []struct {
		stage Stage
		fn    func(context.Context) error
	}{
		{StageFetchingSchemaContext, r.fetchSchemaContext},
		{StageImportingCategories, r.importCategories},
		{StageImportingVersions, r.importVersions},
		{StageImportingIssues, r.importIssues},
		{StageBuildingLinks, r.buildLinks},
		{StagePersisting, r.persist},
	}
	for _, s := range stages {
		if s.stage == StagePersisting && r.cfg.DryRun {
			continue
		}
		if err := r.stage(ctx, s.stage, s.fn); err != nil {
			return nil, err
		}
	}
	r.enter(StageDone)

	r.stats.UsersCreated = len(r.batch.Users)
	r.stats.Attachments = len(r.batch.Attachments)
	r.stats.Milestones = len(r.batch.Milestones)
	return &Result{
		Diagnostics: r.diag,
		Issues:      r.batch.Issues,
		Links:       r.batch.Links,
		Batch:       r.batch,
		Stats:       r.stats,
		DryRun:      r.cfg.DryRun,
	}, nil
}

func (r *run) stage(ctx context.Context, s Stage, fn func(context.Context) error) error {
	r.enter(s)
	ctx, span := r.tracer.Start(ctx, "import."+s.String())
	defer span.End()
	start := time.Now()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Debug("stage failed", "stage", s.String(), "err", err)
		return err
	}
	r.logger.Debug("stage finished", "stage", s.String(), "elapsed", time.Since(start))
	return nil
}

func (r *run) enter(s Stage) {
	r.logger.Debug("entering stage", "stage", s.String())
	if r.OnStage != nil {
		r.OnStage(s)
	}
}

func (r *run) message(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.logger.Info(msg)
	if r.OnMessage != nil {
		r.OnMessage(msg)
	}
}

// fetchSchemaContext snapshots the target schema, resolves the mapping
// tables against it and loads the source enumerations.
func (r *run) fetchSchemaContext(ctx context.Context) error {
	schema, err := r.Target.IssueSchema(ctx)
	if err != nil {
		return fmt.Errorf("reading issue settings: %w", err)
	}
	r.schema = schema.Clone()

	if r.tables, err = mapping.Resolve(r.schema, r.opts); err != nil {
		return err
	}
	if err := mapping.CheckFields(r.schema, r.opts); err != nil {
		return err
	}
	if r.issueIDs, err = mapping.ParseIssueIDs(r.opts.ImportIssueIDs); err != nil {
		return err
	}

	existing, err := r.Target.Milestones(ctx, r.cfg.ProjectID)
	if err != nil {
		return fmt.Errorf("listing milestones: %w", err)
	}
	for _, m := range existing {
		r.milestones[m.Name] = m
	}

	if g := r.opts.AssignUsersToGroup; g != "" {
		ok, err := r.Target.GroupExists(ctx, g)
		if err != nil {
			return fmt.Errorf("looking up group %q: %w", g, err)
		}
		if ok {
			r.group = g
		} else {
			r.logger.Warn("group does not exist, users will not be added", "group", g)
			r.diag.Notef("Group '%s' does not exist, imported users were not added to it", g)
		}
	}

	return r.index.Load(ctx, r.API, r.cfg.SourceProject)
}

// importCategories records the project's categories and, when the
// configured category field is missing from the schema, defines it as a
// choice field listing them.
func (r *run) importCategories(ctx context.Context) error {
	categories, err := redmine.Categories(ctx, r.API, r.cfg.SourceProject)
	if err != nil {
		return fmt.Errorf("listing issue categories: %w", err)
	}
	r.index.AddCategories(categories)

	name := r.opts.CategoryField
	if name == "" {
		return nil
	}
	if r.schema.Field(name) != nil {
		r.message("Issue Category '%s' already exists", name)
		return nil
	}
	r.message("Importing issue categories from project ID:%s...", r.cfg.SourceProject)
	field := &types.FieldSpec{
		Name:             name,
		Type:             types.FieldChoice,
		AllowEmpty:       true,
		NameOfEmptyValue: "Undefined",
	}
	for _, c := range categories {
		field.Choices = append(field.Choices, c.Name)
	}
	r.schema.Fields = append(r.schema.Fields, field)
	r.batch.FieldSpecs = append(r.batch.FieldSpecs, field)
	return nil
}

// importVersions turns source versions into milestones. A version whose
// name matches an existing milestone updates it.
func (r *run) importVersions(ctx context.Context) error {
	if !r.opts.ImportVersions {
		return nil
	}
	r.message("Importing versions from project ID:%s...", r.cfg.SourceProject)
	versions, err := redmine.Versions(ctx, r.API, r.cfg.SourceProject)
	if err != nil {
		return fmt.Errorf("listing versions: %w", err)
	}
	for _, v := range versions {
		m := &types.Milestone{
			ProjectID:   r.cfg.ProjectID,
			Name:        v.Name,
			Description: v.Description,
			Closed:      v.Status == "closed",
		}
		if v.DueDate != nil && *v.DueDate != "" {
			due, err := redmine.ParseDate(*v.DueDate)
			if err != nil {
				r.logger.Warn("ignoring bad version due date", "version", v.Name, "due_date", *v.DueDate)
			} else {
				m.DueDate = &due
			}
		}
		if r.opts.AddWikiToMilestones {
			page, err := redmine.GetWikiPage(ctx, r.API, r.cfg.SourceProject, redmine.WikiPageName(v.Name))
			switch {
			case redmine.IsStatus(err):
				r.logger.Debug("no wiki page for version", "version", v.Name)
			case err != nil:
				return fmt.Errorf("reading wiki page of version %q: %w", v.Name, err)
			case page.Text != "":
				if m.Description != "" {
					m.Description += "\n\n" + page.Text
				} else {
					m.Description = page.Text
				}
			}
		}
		if old, ok := r.milestones[m.Name]; ok {
			m.ID = old.ID
		}
		r.milestones[m.Name] = m
		r.batch.Milestones = append(r.batch.Milestones, m)
	}
	return nil
}

// importIssues pages through the project's issues and transforms each one.
func (r *run) importIssues(ctx context.Context) error {
	if !r.opts.ImportIssues {
		return nil
	}
	r.message("Importing issues from project ID:%s...", r.cfg.SourceProject)

	users := NewUserResolver(r.API, r.Target, r.opts, r.group, r.diag, r.logger)
	tr := NewTransformer(TransformConfig{
		ProjectID:         r.cfg.ProjectID,
		Options:           r.opts,
		Tables:            r.tables,
		Schema:            r.schema,
		Milestones:        r.milestones,
		PreserveNumbers:   r.opts.UseExistingIssueNumbers || r.cfg.DryRun,
		MaxAttachmentSize: r.cfg.MaxAttachmentSize,
		URLFor:            r.urlFor(),
		NewUUID:           r.NewUUID,
	}, r.API, r.Target, r.index, users, r.diag, r.logger)

	done := 0
	err := r.API.List(ctx, "/issues.json", "issues", redmine.IssueQuery(r.cfg.SourceProject, r.issueIDs), func(p redmine.Page) error {
		r.stats.Pages++
		r.pagesFetched.Add(ctx, 1)
		total := p.Total
		if !p.HasTotal {
			total = p.Offset + len(p.Items)
		}
		for _, raw := range p.Items {
			if ctx.Err() != nil {
				return ErrInterrupted
			}
			var src redmine.Issue
			if err := decodeIssue(raw, &src); err != nil {
				return err
			}
			detail, err := redmine.IssueDetail(ctx, r.API, src.ID)
			if err != nil {
				return err
			}
			issue, err := tr.Transform(ctx, &src, detail)
			if err != nil {
				return fmt.Errorf("importing issue #%d: %w", src.ID, err)
			}
			r.batch.Issues = append(r.batch.Issues, issue)
			r.stats.Issues++
			r.stats.Comments += len(issue.Comments)
			r.stats.Changes += len(issue.Changes)
			r.issuesImported.Add(ctx, 1)
			done++
			if r.OnProgress != nil {
				r.OnProgress(done, total)
			}
		}
		r.message("Imported %d/%d issues", done, total)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, ErrInterrupted) {
			return fmt.Errorf("%w: %v", ErrInterrupted, err)
		}
		return err
	}

	r.relations = tr.Relations()
	r.parents = tr.Parents()
	r.batch.Attachments = tr.Attachments()
	r.batch.Users = users.Created()
	r.batch.Memberships = users.Memberships()
	return nil
}

func decodeIssue(raw json.RawMessage, into *redmine.Issue) error {
	if err := json.Unmarshal(raw, into); err != nil {
		return &redmine.RemoteFetchError{Endpoint: "/issues.json", Reason: "malformed issue record", Err: err}
	}
	return nil
}

func (r *run) urlFor() func(int64, string, string) string {
	if r.Attachments != nil {
		return r.Attachments.URLFor
	}
	return target.DownloadPath
}

// buildLinks resolves history placeholders, relations and parents, then
// rewrites issue references to the new numbers.
func (r *run) buildLinks(ctx context.Context) error {
	b := NewLinkBuilder(r.API, r.Target, r.index, r.diag)
	b.ResolvePending()
	links, err := b.Build(ctx, r.relations, r.parents)
	if err != nil {
		return err
	}
	r.batch.Links = links
	r.batch.LinkSpecs = b.Created()
	r.stats.Links = len(links)

	n := NewReferenceMigrator(r.index.Numbers()).MigrateIssues(r.index.Issues())
	r.logger.Debug("migrated issue references", "texts", n)
	return nil
}

// persist downloads and stores staged attachments, then commits the batch.
// Attachments saved by a persist that fails are removed again.
func (r *run) persist(ctx context.Context) (err error) {
	if len(r.batch.Attachments) > 0 && r.Attachments == nil {
		return errors.New("importer: issues have attachments but no attachment store is configured")
	}
	var saved []*target.PendingAttachment
	var names []string
	defer func() {
		if err != nil {
			r.discardAttachments(saved, names)
		}
	}()

	for _, a := range r.batch.Attachments {
		stored, err := r.saveAttachment(ctx, a)
		if err != nil {
			return err
		}
		saved = append(saved, a)
		names = append(names, stored)
	}
	if err := r.Target.Commit(ctx, r.batch); err != nil {
		return fmt.Errorf("committing import: %w", err)
	}
	r.message("Committed %d issues, %d links, %d milestones", len(r.batch.Issues), len(r.batch.Links), len(r.batch.Milestones))
	return nil
}

func (r *run) saveAttachment(ctx context.Context, a *target.PendingAttachment) (string, error) {
	body, err := r.API.Open(ctx, a.SourceURL)
	if err != nil {
		return "", fmt.Errorf("downloading attachment %s of issue #%d: %w", a.Filename, a.Issue.OldNumber, err)
	}
	defer body.Close()
	stored, err := r.Attachments.Save(ctx, r.cfg.ProjectID, a.Issue.UUID, a.Filename, body)
	if err != nil {
		return "", fmt.Errorf("saving attachment %s of issue #%d: %w", a.Filename, a.Issue.OldNumber, err)
	}
	relocate(a, r.Attachments.URLFor(r.cfg.ProjectID, a.Issue.UUID, stored))
	return stored, nil
}

// discardAttachments removes attachments of a failed persist. Owner ids are
// fresh per run, so nothing saved by an earlier run is touched.
func (r *run) discardAttachments(saved []*target.PendingAttachment, names []string) {
	// the run context may be the reason persist failed
	ctx := context.Background()
	for i, a := range saved {
		if err := r.Attachments.Remove(ctx, r.cfg.ProjectID, a.Issue.UUID, names[i]); err != nil {
			r.logger.Warn("leaving attachment of failed import", "issue", a.Issue.OldNumber, "file", names[i], "err", err)
		}
	}
}

// DiscoverCategories lists the source enumerations that mapping options
// refer to. Only issue custom fields are returned.
func DiscoverCategories(ctx context.Context, api redmine.Lister) (mapping.SourceCategories, error) {
	var src mapping.SourceCategories
	lists := []struct {
		what string
		list func(context.Context, redmine.Lister) ([]redmine.Named, error)
		into *[]string
	}{
		{"statuses", redmine.Statuses, &src.Statuses},
		{"trackers", redmine.Trackers, &src.Trackers},
		{"priorities", redmine.Priorities, &src.Priorities},
	}
	for _, l := range lists {
		items, err := l.list(ctx, api)
		if err != nil {
			return src, fmt.Errorf("listing %s: %w", l.what, err)
		}
		for _, item := range items {
			*l.into = append(*l.into, item.Name)
		}
	}
	fields, err := redmine.CustomFields(ctx, api)
	if err != nil {
		return src, fmt.Errorf("listing custom fields: %w", err)
	}
	for _, f := range fields {
		if f.CustomizedType == "issue" {
			src.CustomFields = append(src.CustomFields, f.Name)
		}
	}
	return src, nil
}
