// Package sqlstore implements target.Target on a SQL database. SQLite
// (modernc.org/sqlite) and MySQL (go-sql-driver/mysql) are supported.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/steveyegge/rmimport/internal/target"
	"github.com/steveyegge/rmimport/internal/types"
)

// Supported driver names.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// timeLayout is used for every stored timestamp.
const timeLayout = time.RFC3339Nano

// Store is a SQL backed target.
type Store struct {
	db     *sqlx.DB
	driver string
}

var _ target.Target = (*Store)(nil)

// Open connects to dsn with the named driver and applies pending
// migrations. For SQLite, dsn is a file path.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if driver != DriverSQLite && driver != DriverMySQL {
		return nil, fmt.Errorf("unsupported target driver %q", driver)
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s db: %w", driver, err)
	}

	if driver == DriverSQLite {
		// Single writer; WAL lets readers proceed during a commit.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}

	s := &Store{db: db, driver: driver}
	if err := s.runMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) autoID() string {
	if s.driver == DriverMySQL {
		return "BIGINT PRIMARY KEY AUTO_INCREMENT"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// runMigrations applies outstanding migrations in order, recording each
// applied version in schema_version.
func (s *Store) runMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}
	var current int
	if err := s.db.GetContext(ctx, &current, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		script := strings.ReplaceAll(m.sql, "$ID", s.autoID())
		for _, stmt := range strings.Split(script, ";\n") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("applying migration v%d: %w", m.version, err)
			}
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("recording migration v%d: %w", m.version, err)
		}
	}
	return nil
}

type fieldRow struct {
	types.FieldSpec
	ChoicesJSON string `db:"choices"`
}

// IssueSchema returns the stored issue settings, or the default settings
// when none were saved yet.
func (s *Store) IssueSchema(ctx context.Context) (*types.Schema, error) {
	var row struct {
		States       string `db:"states"`
		InitialState string `db:"initial_state"`
	}
	err := s.db.GetContext(ctx, &row, "SELECT states, initial_state FROM issue_settings WHERE id = 1")
	if errors.Is(err, sql.ErrNoRows) {
		return types.DefaultSchema(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading issue settings: %w", err)
	}

	schema := &types.Schema{InitialState: row.InitialState}
	if err := json.Unmarshal([]byte(row.States), &schema.States); err != nil {
		return nil, fmt.Errorf("decoding states: %w", err)
	}

	var fields []fieldRow
	err = s.db.SelectContext(ctx, &fields, `
		SELECT name, type, allow_multiple, allow_empty, name_of_empty_value, choices
		FROM field_specs ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("reading field specs: %w", err)
	}
	for _, f := range fields {
		spec := f.FieldSpec
		if err := json.Unmarshal([]byte(f.ChoicesJSON), &spec.Choices); err != nil {
			return nil, fmt.Errorf("decoding choices of %s: %w", spec.Name, err)
		}
		schema.Fields = append(schema.Fields, &spec)
	}
	return schema, nil
}

// SetIssueSchema replaces the stored issue settings.
func (s *Store) SetIssueSchema(ctx context.Context, schema *types.Schema) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	states, err := json.Marshal(schema.States)
	if err != nil {
		return fmt.Errorf("encoding states: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM issue_settings"); err != nil {
		return fmt.Errorf("clearing issue settings: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO issue_settings (id, states, initial_state) VALUES (1, ?, ?)",
		string(states), schema.InitialState); err != nil {
		return fmt.Errorf("saving issue settings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM field_specs"); err != nil {
		return fmt.Errorf("clearing field specs: %w", err)
	}
	for _, f := range schema.Fields {
		if err := putFieldSpec(ctx, tx, f); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func putFieldSpec(ctx context.Context, tx *sqlx.Tx, f *types.FieldSpec) error {
	choices, err := json.Marshal(f.Choices)
	if err != nil {
		return fmt.Errorf("encoding choices of %s: %w", f.Name, err)
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE field_specs SET type = ?, allow_multiple = ?, allow_empty = ?, name_of_empty_value = ?, choices = ?
		WHERE name = ?`,
		f.Type, f.AllowMultiple, f.AllowEmpty, f.NameOfEmptyValue, string(choices), f.Name)
	if err != nil {
		return fmt.Errorf("updating field spec %s: %w", f.Name, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var position int
	if err := tx.GetContext(ctx, &position, "SELECT COUNT(*) FROM field_specs"); err != nil {
		return fmt.Errorf("counting field specs: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO field_specs (name, type, allow_multiple, allow_empty, name_of_empty_value, choices, position)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.Name, f.Type, f.AllowMultiple, f.AllowEmpty, f.NameOfEmptyValue, string(choices), position)
	if err != nil {
		return fmt.Errorf("inserting field spec %s: %w", f.Name, err)
	}
	return nil
}

type milestoneRow struct {
	ID          int64  `db:"id"`
	ProjectID   int64  `db:"project_id"`
	Name        string `db:"name"`
	Description string `db:"description"`
	DueDate     string `db:"due_date"`
	Closed      bool   `db:"closed"`
}

// Milestones returns the milestones of a project ordered by id.
func (s *Store) Milestones(ctx context.Context, projectID int64) ([]*types.Milestone, error) {
	var rows []milestoneRow
	if err := s.db.SelectContext(ctx, &rows,
		"SELECT id, project_id, name, description, due_date, closed FROM milestones WHERE project_id = ? ORDER BY id",
		projectID); err != nil {
		return nil, fmt.Errorf("querying milestones: %w", err)
	}
	out := make([]*types.Milestone, 0, len(rows))
	for _, r := range rows {
		m := &types.Milestone{ID: r.ID, ProjectID: r.ProjectID, Name: r.Name, Description: r.Description, Closed: r.Closed}
		if r.DueDate != "" {
			due, err := time.Parse(timeLayout, r.DueDate)
			if err != nil {
				return nil, fmt.Errorf("parsing due date of milestone %s: %w", r.Name, err)
			}
			m.DueDate = &due
		}
		out = append(out, m)
	}
	return out, nil
}

type userRow struct {
	ID       int64  `db:"id"`
	Name     string `db:"name"`
	FullName string `db:"full_name"`
	Email    string `db:"email"`
	Guest    bool   `db:"guest"`
	External bool   `db:"external"`
}

func (s *Store) FindByVerifiedEmail(ctx context.Context, email string) (*types.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row,
		"SELECT id, name, full_name, email, guest, external FROM users WHERE email = ? ORDER BY id LIMIT 1", email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding user by email: %w", err)
	}

	u := &types.User{ID: row.ID, Name: row.Name, FullName: row.FullName, Email: row.Email, Guest: row.Guest, External: row.External}
	if err := s.db.SelectContext(ctx, &u.Groups,
		"SELECT group_name FROM memberships WHERE user_id = ? ORDER BY group_name", u.ID); err != nil {
		return nil, fmt.Errorf("reading memberships of %s: %w", u.Name, err)
	}
	return u, nil
}

func (s *Store) GroupExists(ctx context.Context, name string) (bool, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM user_groups WHERE name = ?", name); err != nil {
		return false, fmt.Errorf("looking up group %s: %w", name, err)
	}
	return n > 0, nil
}

// AddGroup creates a group if it does not exist.
func (s *Store) AddGroup(ctx context.Context, name string) error {
	exists, err := s.GroupExists(ctx, name)
	if err != nil || exists {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "INSERT INTO user_groups (name) VALUES (?)", name); err != nil {
		return fmt.Errorf("creating group %s: %w", name, err)
	}
	return nil
}

func (s *Store) IssueExists(ctx context.Context, projectID, number int64) (bool, error) {
	var n int
	if err := s.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM issues WHERE project_id = ? AND number = ?", projectID, number); err != nil {
		return false, fmt.Errorf("looking up issue #%d: %w", number, err)
	}
	return n > 0, nil
}

func (s *Store) MaxIssueNumber(ctx context.Context, projectID int64) (int64, error) {
	var max int64
	if err := s.db.GetContext(ctx, &max,
		"SELECT COALESCE(MAX(number), 0) FROM issues WHERE project_id = ?", projectID); err != nil {
		return 0, fmt.Errorf("reading max issue number: %w", err)
	}
	return max, nil
}

func (s *Store) FindLinkSpec(ctx context.Context, name string) (*types.LinkSpec, error) {
	var row struct {
		ID               int64  `db:"id"`
		Name             string `db:"name"`
		Multiple         bool   `db:"multiple"`
		OppositeName     string `db:"opposite_name"`
		OppositeMultiple bool   `db:"opposite_multiple"`
		Order            int    `db:"ord"`
	}
	err := s.db.GetContext(ctx, &row,
		"SELECT id, name, multiple, opposite_name, opposite_multiple, ord FROM link_specs WHERE name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding link spec %s: %w", name, err)
	}
	spec := &types.LinkSpec{ID: row.ID, Name: row.Name, Multiple: row.Multiple, Order: row.Order}
	if row.OppositeName != "" {
		spec.Opposite = &types.LinkOpposite{Name: row.OppositeName, Multiple: row.OppositeMultiple}
	}
	return spec, nil
}
