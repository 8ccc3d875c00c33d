package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/steveyegge/rmimport/internal/types"
)

type issueRow struct {
	ID           int64  `db:"id"`
	UUID         string `db:"uuid"`
	ProjectID    int64  `db:"project_id"`
	Number       int64  `db:"number"`
	OldNumber    int64  `db:"old_number"`
	Title        string `db:"title"`
	Description  string `db:"description"`
	State        string `db:"state"`
	SubmitDate   string `db:"submit_date"`
	Fields       string `db:"fields"`
	Schedules    string `db:"schedules"`
	CommentCount int    `db:"comment_count"`
}

type historyRow struct {
	IssueID int64  `db:"issue_id"`
	Date    string `db:"date"`
	Kind    string `db:"kind"`
	Data    string `db:"data"`
}

// Issues loads the issues of a project ordered by number, with their
// comments and changes. Users are not resolved.
func (s *Store) Issues(ctx context.Context, projectID int64) ([]*types.Issue, error) {
	var rows []issueRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, uuid, project_id, number, old_number, title, description, state,
		       submit_date, fields, schedules, comment_count
		FROM issues WHERE project_id = ? ORDER BY number`, projectID); err != nil {
		return nil, fmt.Errorf("querying issues: %w", err)
	}

	byID := make(map[int64]*types.Issue, len(rows))
	out := make([]*types.Issue, 0, len(rows))
	for _, r := range rows {
		submitted, err := time.Parse(timeLayout, r.SubmitDate)
		if err != nil {
			return nil, fmt.Errorf("parsing submit date of #%d: %w", r.Number, err)
		}
		issue := &types.Issue{
			UUID: r.UUID, ProjectID: r.ProjectID, Number: r.Number, OldNumber: r.OldNumber,
			Title: r.Title, Description: r.Description, State: r.State,
			SubmitDate: submitted, CommentCount: r.CommentCount,
		}
		if err := json.Unmarshal([]byte(r.Fields), &issue.Fields); err != nil {
			return nil, fmt.Errorf("decoding fields of #%d: %w", r.Number, err)
		}
		if err := json.Unmarshal([]byte(r.Schedules), &issue.Schedules); err != nil {
			return nil, fmt.Errorf("decoding schedules of #%d: %w", r.Number, err)
		}
		byID[r.ID] = issue
		out = append(out, issue)
	}

	var comments []historyRow
	if err := s.db.SelectContext(ctx, &comments, `
		SELECT c.issue_id, c.date, '' AS kind, c.content AS data
		FROM issue_comments c JOIN issues i ON i.id = c.issue_id
		WHERE i.project_id = ? ORDER BY c.id`, projectID); err != nil {
		return nil, fmt.Errorf("querying comments: %w", err)
	}
	for _, c := range comments {
		date, err := time.Parse(timeLayout, c.Date)
		if err != nil {
			return nil, fmt.Errorf("parsing comment date: %w", err)
		}
		issue := byID[c.IssueID]
		issue.Comments = append(issue.Comments, &types.Comment{Date: date, Content: c.Data})
	}

	var changes []historyRow
	if err := s.db.SelectContext(ctx, &changes, `
		SELECT c.issue_id, c.date, c.kind, c.data
		FROM issue_changes c JOIN issues i ON i.id = c.issue_id
		WHERE i.project_id = ? ORDER BY c.id`, projectID); err != nil {
		return nil, fmt.Errorf("querying changes: %w", err)
	}
	for _, c := range changes {
		date, err := time.Parse(timeLayout, c.Date)
		if err != nil {
			return nil, fmt.Errorf("parsing change date: %w", err)
		}
		data, err := types.DecodeChangeData(types.ChangeKind(c.Kind), json.RawMessage(c.Data))
		if err != nil {
			return nil, fmt.Errorf("decoding change: %w", err)
		}
		issue := byID[c.IssueID]
		issue.Changes = append(issue.Changes, &types.Change{Date: date, Data: data})
	}
	return out, nil
}

// LinkCount returns the number of stored links of the named spec.
func (s *Store) LinkCount(ctx context.Context, specName string) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM issue_links l JOIN link_specs s ON s.id = l.spec_id
		WHERE s.name = ?`, specName); err != nil {
		return 0, fmt.Errorf("counting %s links: %w", specName, err)
	}
	return n, nil
}
