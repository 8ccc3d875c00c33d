package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/steveyegge/rmimport/internal/target"
	"github.com/steveyegge/rmimport/internal/types"
)

// Commit writes b in a single transaction.
func (s *Store) Commit(ctx context.Context, b *target.Batch) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, f := range b.FieldSpecs {
		if err := putFieldSpec(ctx, tx, f); err != nil {
			return err
		}
	}
	for _, m := range b.Milestones {
		if err := putMilestone(ctx, tx, b.ProjectID, m); err != nil {
			return err
		}
	}
	for _, u := range b.Users {
		if err := insertUser(ctx, tx, u); err != nil {
			return err
		}
	}
	for _, m := range b.Memberships {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO memberships (user_id, group_name) VALUES (?, ?)", m.User.ID, m.Group); err != nil {
			return fmt.Errorf("adding %s to group %s: %w", m.User.Name, m.Group, err)
		}
	}
	for _, spec := range b.LinkSpecs {
		if err := insertLinkSpec(ctx, tx, spec); err != nil {
			return err
		}
	}

	ids := make(map[*types.Issue]int64, len(b.Issues))
	for _, issue := range b.Issues {
		id, err := insertIssue(ctx, tx, b.ProjectID, issue)
		if err != nil {
			return err
		}
		ids[issue] = id
	}

	for _, link := range b.Links {
		sourceID, ok1 := ids[link.Source]
		targetID, ok2 := ids[link.Target]
		if !ok1 || !ok2 {
			return fmt.Errorf("link %q references an issue outside the batch", link.Spec.Name)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO issue_links (source_id, target_id, spec_id) VALUES (?, ?, ?)",
			sourceID, targetID, link.Spec.ID); err != nil {
			return fmt.Errorf("inserting %s link: %w", link.Spec.Name, err)
		}
	}

	return tx.Commit()
}

func putMilestone(ctx context.Context, tx *sqlx.Tx, projectID int64, m *types.Milestone) error {
	due := ""
	if m.DueDate != nil {
		due = m.DueDate.UTC().Format(timeLayout)
	}

	var id int64
	err := tx.GetContext(ctx, &id, "SELECT id FROM milestones WHERE project_id = ? AND name = ?", projectID, m.Name)
	switch {
	case err == nil:
		m.ID = id
		_, err = tx.ExecContext(ctx,
			"UPDATE milestones SET description = ?, due_date = ?, closed = ? WHERE id = ?",
			m.Description, due, m.Closed, id)
	case errors.Is(err, sql.ErrNoRows):
		var res sql.Result
		res, err = tx.ExecContext(ctx,
			"INSERT INTO milestones (project_id, name, description, due_date, closed) VALUES (?, ?, ?, ?, ?)",
			projectID, m.Name, m.Description, due, m.Closed)
		if err == nil {
			m.ID, err = res.LastInsertId()
		}
	}
	if err != nil {
		return fmt.Errorf("saving milestone %s: %w", m.Name, err)
	}
	return nil
}

func insertUser(ctx context.Context, tx *sqlx.Tx, u *types.User) error {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO users (name, full_name, email, guest, external) VALUES (?, ?, ?, ?, ?)",
		u.Name, u.FullName, u.Email, u.Guest, u.External)
	if err != nil {
		return fmt.Errorf("creating user %s: %w", u.Name, err)
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("reading id of user %s: %w", u.Name, err)
	}
	return nil
}

func insertLinkSpec(ctx context.Context, tx *sqlx.Tx, spec *types.LinkSpec) error {
	oppositeName, oppositeMultiple := "", false
	if spec.Opposite != nil {
		oppositeName, oppositeMultiple = spec.Opposite.Name, spec.Opposite.Multiple
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO link_specs (name, multiple, opposite_name, opposite_multiple, ord) VALUES (?, ?, ?, ?, ?)",
		spec.Name, spec.Multiple, oppositeName, oppositeMultiple, spec.Order)
	if err != nil {
		return fmt.Errorf("creating link spec %s: %w", spec.Name, err)
	}
	if spec.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("reading id of link spec %s: %w", spec.Name, err)
	}
	return nil
}

func insertIssue(ctx context.Context, tx *sqlx.Tx, projectID int64, issue *types.Issue) (int64, error) {
	fields, err := json.Marshal(issue.Fields)
	if err != nil {
		return 0, fmt.Errorf("encoding fields of #%d: %w", issue.Number, err)
	}
	schedules, err := json.Marshal(issue.Schedules)
	if err != nil {
		return 0, fmt.Errorf("encoding schedules of #%d: %w", issue.Number, err)
	}
	activity, err := json.Marshal(issue.LastActivity)
	if err != nil {
		return 0, fmt.Errorf("encoding last activity of #%d: %w", issue.Number, err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO issues (
			uuid, project_id, number, old_number,
			title, description, state, submitter_id, submit_date,
			fields, schedules, comment_count, last_activity
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		issue.UUID, projectID, issue.Number, issue.OldNumber,
		issue.Title, issue.Description, issue.State, userID(issue.Submitter), issue.SubmitDate.UTC().Format(timeLayout),
		string(fields), string(schedules), issue.CommentCount, string(activity),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting issue #%d: %w", issue.Number, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading id of issue #%d: %w", issue.Number, err)
	}

	for _, c := range issue.Comments {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO issue_comments (issue_id, user_id, date, content) VALUES (?, ?, ?, ?)",
			id, userID(c.User), c.Date.UTC().Format(timeLayout), c.Content); err != nil {
			return 0, fmt.Errorf("inserting comment of #%d: %w", issue.Number, err)
		}
	}
	for _, c := range issue.Changes {
		data, err := json.Marshal(c.Data)
		if err != nil {
			return 0, fmt.Errorf("encoding change of #%d: %w", issue.Number, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO issue_changes (issue_id, user_id, date, kind, data) VALUES (?, ?, ?, ?, ?)",
			id, userID(c.User), c.Date.UTC().Format(timeLayout), string(c.Data.Kind()), string(data)); err != nil {
			return 0, fmt.Errorf("inserting change of #%d: %w", issue.Number, err)
		}
	}
	for _, w := range issue.Watches {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO issue_watches (issue_id, user_id, watching) VALUES (?, ?, ?)",
			id, userID(w.User), w.Watching); err != nil {
			return 0, fmt.Errorf("inserting watch of #%d: %w", issue.Number, err)
		}
	}
	return id, nil
}

func userID(u *types.User) int64 {
	if u.IsUnknown() {
		return types.UnknownUser.ID
	}
	return u.ID
}
