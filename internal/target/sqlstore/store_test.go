package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/rmimport/internal/target"
	"github.com/steveyegge/rmimport/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "target.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "target.db")

	s, err := Open(ctx, DriverSQLite, path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, DriverSQLite, path)
	require.NoError(t, err)
	defer s.Close()

	var versions int
	require.NoError(t, s.db.Get(&versions, "SELECT COUNT(*) FROM schema_version"))
	assert.Equal(t, len(migrations), versions)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "postgres", "")
	assert.Error(t, err)
}

func TestIssueSchemaRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	schema, err := s.IssueSchema(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.DefaultSchema(), schema)

	schema.States = append(schema.States, "Triaged")
	schema.Fields = append(schema.Fields, &types.FieldSpec{
		Name: "Category", Type: types.FieldChoice, AllowEmpty: true,
		NameOfEmptyValue: "Undefined", Choices: []string{"UI", "Core"},
	})
	require.NoError(t, s.SetIssueSchema(ctx, schema))

	got, err := s.IssueSchema(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema, got)
}

func TestCommitRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.AddGroup(ctx, "Imported"))

	when := time.Date(2023, 4, 1, 10, 0, 0, 0, time.UTC)
	alice := &types.User{Name: "alice", FullName: "Alice A", Email: "alice@example.com", Guest: true}
	first := types.NewIssue("uuid-1", 7, alice, when)
	first.Number, first.OldNumber, first.Title, first.State = 1, 10, "First", "Open"
	first.SetField("Type", "Bug")
	first.Schedule("1.0")
	first.AddComment(&types.Comment{User: alice, Date: when.Add(time.Hour), Content: "hello"})
	first.AddChange(&types.Change{User: types.UnknownUser, Date: when.Add(2 * time.Hour),
		Data: types.StateChange{Old: "New", New: "Closed"}})
	first.Watches = []*types.Watch{{User: alice, Watching: true}}

	second := types.NewIssue("uuid-2", 7, alice, when)
	second.Number, second.Title, second.State = 2, "Second", "Closed"

	related := &types.LinkSpec{Name: "Related To", Multiple: true, Order: 10}
	batch := &target.Batch{
		ProjectID:   7,
		FieldSpecs:  []*types.FieldSpec{{Name: "Category", Type: types.FieldChoice, Choices: []string{"UI"}}},
		Milestones:  []*types.Milestone{{ProjectID: 7, Name: "1.0", Closed: true, DueDate: &when}},
		Users:       []*types.User{alice},
		Memberships: []*types.Membership{{User: alice, Group: "Imported"}},
		LinkSpecs:   []*types.LinkSpec{related},
		Issues:      []*types.Issue{first, second},
		Links:       []*types.IssueLink{{Source: first, Target: second, Spec: related}},
	}
	require.NoError(t, s.Commit(ctx, batch))
	assert.NotZero(t, alice.ID)
	assert.NotZero(t, related.ID)

	u, err := s.FindByVerifiedEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, []string{"Imported"}, u.Groups)
	assert.True(t, u.Guest)

	spec, err := s.FindLinkSpec(ctx, "Related To")
	require.NoError(t, err)
	require.NotNil(t, spec)
	assert.Nil(t, spec.Opposite)

	n, err := s.LinkCount(ctx, "Related To")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	max, err := s.MaxIssueNumber(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(2), max)

	exists, err := s.IssueExists(ctx, 7, 1)
	require.NoError(t, err)
	assert.True(t, exists)

	milestones, err := s.Milestones(ctx, 7)
	require.NoError(t, err)
	require.Len(t, milestones, 1)
	assert.True(t, milestones[0].Closed)
	assert.True(t, milestones[0].DueDate.Equal(when))

	issues, err := s.Issues(ctx, 7)
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, "First", issues[0].Title)
	assert.Equal(t, int64(10), issues[0].OldNumber)
	assert.Equal(t, []string{"Bug"}, issues[0].Fields["Type"])
	assert.Equal(t, []string{"1.0"}, issues[0].Schedules)
	require.Len(t, issues[0].Comments, 1)
	assert.Equal(t, "hello", issues[0].Comments[0].Content)
	require.Len(t, issues[0].Changes, 1)
	assert.Equal(t, types.StateChange{Old: "New", New: "Closed"}, issues[0].Changes[0].Data)
}

func TestCommitIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	when := time.Now().UTC()

	existing := types.NewIssue("uuid-1", 1, types.UnknownUser, when)
	existing.Number = 1
	require.NoError(t, s.Commit(ctx, &target.Batch{ProjectID: 1, Issues: []*types.Issue{existing}}))

	dup := types.NewIssue("uuid-2", 1, types.UnknownUser, when)
	dup.Number = 1
	err := s.Commit(ctx, &target.Batch{
		ProjectID:  1,
		Milestones: []*types.Milestone{{ProjectID: 1, Name: "2.0"}},
		Issues:     []*types.Issue{dup},
	})
	require.Error(t, err)

	milestones, err := s.Milestones(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, milestones)
}
