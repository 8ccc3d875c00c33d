package sqlstore

// migration holds a single schema migration with its target version and SQL.
// Statements are separated by ";\n" and executed one by one, and the
// $ID placeholder expands to the dialect's auto-increment key column.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS issue_settings (
	id            INTEGER PRIMARY KEY,
	states        TEXT NOT NULL,
	initial_state VARCHAR(255) NOT NULL
);

CREATE TABLE IF NOT EXISTS field_specs (
	name                VARCHAR(255) PRIMARY KEY,
	type                VARCHAR(32) NOT NULL,
	allow_multiple      INTEGER NOT NULL DEFAULT 0,
	allow_empty         INTEGER NOT NULL DEFAULT 0,
	name_of_empty_value VARCHAR(255) NOT NULL DEFAULT '',
	choices             TEXT NOT NULL,
	position            INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS milestones (
	id          $ID,
	project_id  BIGINT NOT NULL,
	name        VARCHAR(255) NOT NULL,
	description TEXT NOT NULL,
	due_date    VARCHAR(40) NOT NULL DEFAULT '',
	closed      INTEGER NOT NULL DEFAULT 0,
	UNIQUE (project_id, name)
);

CREATE TABLE IF NOT EXISTS users (
	id        $ID,
	name      VARCHAR(255) NOT NULL UNIQUE,
	full_name VARCHAR(255) NOT NULL DEFAULT '',
	email     VARCHAR(255) NOT NULL DEFAULT '',
	guest     INTEGER NOT NULL DEFAULT 0,
	external  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS user_groups (
	name VARCHAR(255) PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS memberships (
	user_id    BIGINT NOT NULL,
	group_name VARCHAR(255) NOT NULL,
	PRIMARY KEY (user_id, group_name)
);

CREATE TABLE IF NOT EXISTS link_specs (
	id                $ID,
	name              VARCHAR(255) NOT NULL UNIQUE,
	multiple          INTEGER NOT NULL DEFAULT 0,
	opposite_name     VARCHAR(255) NOT NULL DEFAULT '',
	opposite_multiple INTEGER NOT NULL DEFAULT 0,
	ord               INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS issues (
	id            $ID,
	uuid          VARCHAR(64) NOT NULL UNIQUE,
	project_id    BIGINT NOT NULL,
	number        BIGINT NOT NULL,
	old_number    BIGINT NOT NULL DEFAULT 0,
	title         TEXT NOT NULL,
	description   TEXT NOT NULL,
	state         VARCHAR(255) NOT NULL,
	submitter_id  BIGINT NOT NULL,
	submit_date   VARCHAR(40) NOT NULL,
	fields        TEXT NOT NULL,
	schedules     TEXT NOT NULL,
	comment_count INTEGER NOT NULL DEFAULT 0,
	last_activity TEXT NOT NULL,
	UNIQUE (project_id, number)
);

CREATE TABLE IF NOT EXISTS issue_comments (
	id       $ID,
	issue_id BIGINT NOT NULL,
	user_id  BIGINT NOT NULL,
	date     VARCHAR(40) NOT NULL,
	content  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS issue_changes (
	id       $ID,
	issue_id BIGINT NOT NULL,
	user_id  BIGINT NOT NULL,
	date     VARCHAR(40) NOT NULL,
	kind     VARCHAR(32) NOT NULL,
	data     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS issue_watches (
	issue_id BIGINT NOT NULL,
	user_id  BIGINT NOT NULL,
	watching INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (issue_id, user_id)
);

CREATE TABLE IF NOT EXISTS issue_links (
	id        $ID,
	source_id BIGINT NOT NULL,
	target_id BIGINT NOT NULL,
	spec_id   BIGINT NOT NULL
);

CREATE INDEX idx_issue_comments_issue ON issue_comments(issue_id);
CREATE INDEX idx_issue_changes_issue ON issue_changes(issue_id);
CREATE INDEX idx_users_email ON users(email)`,
	},
}
