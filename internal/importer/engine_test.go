package importer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/rmimport/internal/mapping"
	"github.com/steveyegge/rmimport/internal/redmine"
	"github.com/steveyegge/rmimport/internal/target"
	"github.com/steveyegge/rmimport/internal/target/memory"
	"github.com/steveyegge/rmimport/internal/types"
)

const sourceProject = "proj"

// seedProject fills the fake server with a two issue project: #2 is a child
// of #1, blocks it, carries an attachment and has one journal.
func seedProject(h *harness) {
	srv := h.srv
	srv.Statuses = []redmine.Named{{ID: 1, Name: "New"}, {ID: 5, Name: "Closed"}}
	srv.Trackers = []redmine.Named{{ID: 1, Name: "Bug"}}
	srv.Priorities = []redmine.Named{{ID: 2, Name: "Normal"}}
	srv.Versions = []redmine.Version{{ID: 1, Name: "1.0", Status: "open", DueDate: strPtr("2024-06-30")}}
	srv.Categories = []redmine.Named{{ID: 1, Name: "UI"}}
	srv.WikiPages["10"] = redmine.WikiPage{Title: "10", Text: "Release notes"}
	h.addUser(5, "ann")
	h.addUser(6, "bob")

	srv.Issues = []redmine.Issue{
		{
			ID:           1,
			Subject:      "First",
			Description:  strPtr("Broken since #2"),
			Status:       &redmine.Ref{ID: 1, Name: "New"},
			Tracker:      &redmine.Ref{ID: 1, Name: "Bug"},
			Priority:     &redmine.Ref{ID: 2, Name: "Normal"},
			Author:       &redmine.Ref{ID: 5, Name: "ann Tester"},
			Category:     &redmine.Ref{ID: 1, Name: "UI"},
			FixedVersion: &redmine.Ref{ID: 1, Name: "1.0"},
			CreatedOn:    "2024-01-01T00:00:00Z",
		},
		{
			ID:          2,
			Subject:     "Second",
			Description: strPtr("Screenshot: !shot.png!"),
			Status:      &redmine.Ref{ID: 5, Name: "Closed"},
			Author:      &redmine.Ref{ID: 6, Name: "bob Tester"},
			Parent:      &redmine.IssueRef{ID: 1},
			CreatedOn:   "2024-01-02T00:00:00Z",
			Relations:   []redmine.Relation{{ID: 1, IssueID: 2, IssueToID: 1, RelationType: "blocks"}},
			Attachments: []redmine.Attachment{{
				ID:         1,
				Filename:   "shot.png",
				Filesize:   3,
				ContentURL: srv.AttachmentURL(1, "shot.png", []byte("png")),
				Author:     &redmine.Ref{ID: 6, Name: "bob Tester"},
				CreatedOn:  "2024-01-02T00:00:00Z",
			}},
			Journals: []redmine.Journal{{
				ID:        1,
				User:      &redmine.Ref{ID: 5, Name: "ann Tester"},
				Notes:     strPtr("Same as #1"),
				CreatedOn: "2024-01-03T00:00:00Z",
				Details:   []redmine.Detail{detail("attr", "status_id", strPtr("1"), strPtr("5"))},
			}},
		},
	}
}

func engineOptions() *mapping.Options {
	opts := testOptions()
	opts.ImportVersions = true
	opts.AddWikiToMilestones = true
	return opts
}

func (h *harness) engine(attachments target.AttachmentStore) *Engine {
	return &Engine{API: h.client, Target: h.store, Attachments: attachments, NewUUID: counterUUID()}
}

func byOldNumber(issues []*types.Issue) map[int64]*types.Issue {
	out := make(map[int64]*types.Issue, len(issues))
	for _, issue := range issues {
		out[issue.OldNumber] = issue
	}
	return out
}

func TestRunImportsProject(t *testing.T) {
	h := newHarness(t)
	seedProject(h)
	atts := memory.NewAttachments()
	e := h.engine(atts)

	var stages []Stage
	var messages []string
	var progress [][2]int
	e.OnStage = func(s Stage) { stages = append(stages, s) }
	e.OnMessage = func(m string) { messages = append(messages, m) }
	e.OnProgress = func(done, total int) { progress = append(progress, [2]int{done, total}) }

	res, err := e.Run(context.Background(), Config{ProjectID: testProject, SourceProject: sourceProject, Options: engineOptions()})
	require.NoError(t, err)

	assert.Equal(t, []Stage{
		StageFetchingSchemaContext, StageImportingCategories, StageImportingVersions,
		StageImportingIssues, StageBuildingLinks, StagePersisting, StageDone,
	}, stages)
	assert.Equal(t, [][2]int{{1, 2}, {2, 2}}, progress)
	assert.Contains(t, messages, "Issue Category 'Category' already exists")
	assert.Contains(t, messages, "Imported 2/2 issues")
	assert.Contains(t, messages, "Committed 2 issues, 2 links, 1 milestones")

	assert.Equal(t, 1, h.store.Commits())
	issues := byOldNumber(h.store.Issues(testProject))
	require.Len(t, issues, 2)

	first := issues[1]
	assert.Equal(t, int64(1), first.Number)
	assert.Equal(t, "Open", first.State)
	assert.Equal(t, []string{"1.0"}, first.Schedules)
	assert.Equal(t, []string{"UI"}, first.Fields["Category"])
	assert.Equal(t, []string{"Bug"}, first.Fields["Type"])
	assert.Equal(t, "Broken since #2", first.Description)

	second := issues[2]
	assert.Equal(t, "Closed", second.State)
	wantURL := "/~downloads/projects/3/attachments/" + second.UUID + "/shot.png"
	assert.Contains(t, second.Description, "![shot.png]("+wantURL+")")
	assert.Contains(t, second.Description, "**Attachments:**\n[shot.png]("+wantURL+")")
	content, ok := atts.Get(testProject, second.UUID, "shot.png")
	require.True(t, ok)
	assert.Equal(t, "png", string(content))
	require.Len(t, second.Comments, 1)
	assert.Equal(t, "Same as #1", second.Comments[0].Content)

	links := h.store.Links()
	require.Len(t, links, 2)
	assert.Equal(t, "Blocked By", links[0].Spec.Name)
	assert.Same(t, first, links[0].Source)
	assert.Equal(t, "Child Issue", links[1].Spec.Name)
	assert.Same(t, first, links[1].Source)
	assert.Same(t, second, links[1].Target)

	schema, err := h.store.IssueSchema(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, schema.Field("Category"))
	milestones, err := h.store.Milestones(context.Background(), testProject)
	require.NoError(t, err)
	require.Len(t, milestones, 1)
	assert.Equal(t, "Release notes", milestones[0].Description)
	require.NotNil(t, milestones[0].DueDate)
	assert.Equal(t, "2024-06-30", milestones[0].DueDate.Format("2006-01-02"))

	assert.Equal(t, Stats{Issues: 2, Comments: 1, Changes: 1, Links: 2, Milestones: 1, Attachments: 1, Pages: 1}, res.Stats)
	assert.True(t, res.Diagnostics.Empty(), res.Diagnostics.Summary())
}

func TestRunDryRunMatchesRealRun(t *testing.T) {
	ctx := context.Background()
	cfg := Config{ProjectID: testProject, SourceProject: sourceProject, Options: engineOptions()}

	live := newHarness(t)
	seedProject(live)
	live.srv.Issues[0].FixedVersion = &redmine.Ref{ID: 9, Name: "9.9"}
	liveRes, err := live.engine(memory.NewAttachments()).Run(ctx, cfg)
	require.NoError(t, err)

	dry := newHarness(t)
	seedProject(dry)
	dry.srv.Issues[0].FixedVersion = &redmine.Ref{ID: 9, Name: "9.9"}
	cfg.DryRun = true
	dryRes, err := dry.engine(nil).Run(ctx, cfg)
	require.NoError(t, err)

	assert.True(t, dryRes.DryRun)
	assert.Zero(t, dry.store.Commits())
	assert.Empty(t, dry.srv.RequestsTo("/attachments/download/1/shot.png"))
	assert.Equal(t, liveRes.Diagnostics.HTML(""), dryRes.Diagnostics.HTML(""))
	assert.False(t, dryRes.Diagnostics.Empty())

	require.Len(t, dryRes.Issues, len(liveRes.Issues))
	for i := range liveRes.Issues {
		assert.Equal(t, liveRes.Issues[i].Number, dryRes.Issues[i].Number)
		assert.Equal(t, liveRes.Issues[i].Description, dryRes.Issues[i].Description)
	}
	assert.Equal(t, liveRes.Stats, dryRes.Stats)
}

func TestRunAllocatesNumbersAndMigratesReferences(t *testing.T) {
	h := newHarness(t)
	seedProject(h)
	h.store.AddIssue(testProject, 7, "already there")
	opts := engineOptions()
	opts.UseExistingIssueNumbers = false

	_, err := h.engine(memory.NewAttachments()).Run(context.Background(),
		Config{ProjectID: testProject, SourceProject: sourceProject, Options: opts})
	require.NoError(t, err)

	issues := byOldNumber(h.store.Issues(testProject))
	assert.Equal(t, int64(8), issues[1].Number)
	assert.Equal(t, int64(9), issues[2].Number)
	assert.Equal(t, "Broken since #9", issues[1].Description)
	assert.Equal(t, "Same as #8", issues[2].Comments[0].Content)

	var titles []string
	for _, c := range issues[2].Changes {
		titles = append(titles, string(c.Data.Kind()))
	}
	assert.Equal(t, []string{"state"}, titles)
}

func TestRunNumberConflict(t *testing.T) {
	h := newHarness(t)
	seedProject(h)
	h.store.AddIssue(testProject, 2, "taken")

	_, err := h.engine(memory.NewAttachments()).Run(context.Background(),
		Config{ProjectID: testProject, SourceProject: sourceProject, Options: engineOptions()})
	require.Error(t, err)
	assert.ErrorIs(t, err, mapping.ErrConfiguration)
	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, int64(2), conflict.Number)
	assert.Zero(t, h.store.Commits())
}

func TestRunInterrupted(t *testing.T) {
	h := newHarness(t)
	seedProject(h)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e := h.engine(memory.NewAttachments())
	e.OnProgress = func(done, total int) { cancel() }

	_, err := e.Run(ctx, Config{ProjectID: testProject, SourceProject: sourceProject, Options: engineOptions()})
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.Zero(t, h.store.Commits())
	assert.Empty(t, h.store.Issues(testProject))
}

func TestRunFailedCommitRemovesAttachments(t *testing.T) {
	h := newHarness(t)
	seedProject(h)
	h.store.CommitErr = errors.New("disk full")
	atts := memory.NewAttachments()

	_, err := h.engine(atts).Run(context.Background(),
		Config{ProjectID: testProject, SourceProject: sourceProject, Options: engineOptions()})
	require.ErrorIs(t, err, h.store.CommitErr)
	assert.Len(t, h.srv.RequestsTo("/attachments/download/1/shot.png"), 1, "the attachment was saved first")
	assert.Zero(t, atts.Len())
}

func TestRunRequiresAttachmentStore(t *testing.T) {
	h := newHarness(t)
	seedProject(h)

	_, err := h.engine(nil).Run(context.Background(),
		Config{ProjectID: testProject, SourceProject: sourceProject, Options: engineOptions()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no attachment store")
	assert.Zero(t, h.store.Commits())
}

func TestRunConfigurationError(t *testing.T) {
	h := newHarness(t)
	seedProject(h)
	opts := engineOptions()
	opts.StatusMappings = []mapping.Entry{{Source: "New", Target: "Triaged"}}

	_, err := h.engine(nil).Run(context.Background(),
		Config{ProjectID: testProject, SourceProject: sourceProject, Options: opts})
	assert.ErrorIs(t, err, mapping.ErrConfiguration)
	assert.Empty(t, h.srv.RequestsTo("/issues.json"), "no issue is fetched after a configuration error")
}

func TestRunCreatesCategoryField(t *testing.T) {
	h := newHarness(t)
	h.store = memory.New(types.DefaultSchema())
	seedProject(h)
	h.srv.Categories = append(h.srv.Categories, redmine.Named{ID: 2, Name: "Backend"})
	opts := engineOptions()
	opts.AssignUsersToGroup = "imported"

	var messages []string
	e := h.engine(memory.NewAttachments())
	e.OnMessage = func(m string) { messages = append(messages, m) }
	res, err := e.Run(context.Background(), Config{ProjectID: testProject, SourceProject: sourceProject, Options: opts})
	require.NoError(t, err)

	assert.Contains(t, messages, "Importing issue categories from project ID:proj...")
	require.Len(t, res.Batch.FieldSpecs, 1)
	field := res.Batch.FieldSpecs[0]
	assert.Equal(t, "Category", field.Name)
	assert.Equal(t, types.FieldChoice, field.Type)
	assert.Equal(t, []string{"UI", "Backend"}, field.Choices)
	assert.Equal(t, "Undefined", field.NameOfEmptyValue)

	schema, err := h.store.IssueSchema(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, schema.Field("Category"))

	notes := res.Diagnostics.Notes()
	require.Len(t, notes, 1)
	assert.Equal(t, "Group 'imported' does not exist, imported users were not added to it", notes[0])
	assert.Empty(t, res.Batch.Memberships)
}

func TestRunIssueSelection(t *testing.T) {
	h := newHarness(t)
	seedProject(h)
	opts := engineOptions()
	opts.ImportIssueIDs = "2"

	res, err := h.engine(memory.NewAttachments()).Run(context.Background(),
		Config{ProjectID: testProject, SourceProject: sourceProject, Options: opts, DryRun: true})
	require.NoError(t, err)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, int64(2), res.Issues[0].OldNumber)
	assert.Empty(t, res.Links)

	notes := res.Diagnostics.Notes()
	require.Len(t, notes, 2)
	assert.True(t, strings.HasPrefix(notes[0], "Relation to unknown issue #1"), notes[0])
	assert.True(t, strings.HasPrefix(notes[1], "Unknown parent issue #1"), notes[1])
}

func TestDiscoverCategories(t *testing.T) {
	h := newHarness(t)
	seedProject(h)
	h.srv.CustomFields = []redmine.CustomField{
		{ID: 1, Name: "Severity", CustomizedType: "issue"},
		{ID: 2, Name: "Phone", CustomizedType: "user"},
	}

	src, err := DiscoverCategories(context.Background(), h.client)
	require.NoError(t, err)
	assert.Equal(t, mapping.SourceCategories{
		Statuses:     []string{"New", "Closed"},
		Trackers:     []string{"Bug"},
		Priorities:   []string{"Normal"},
		CustomFields: []string{"Severity"},
	}, src)
}
