package mapping

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOptionsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "options.yaml")
	content := `
create_users: true
assign_users_to_group: Imported
import_versions: true
import_issue_ids: "1-3"
status_mappings:
  - redmine: New
    onedev: Open
tracker_mappings:
  - redmine: Bug
    onedev: "Type::Bug"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	opts, err := LoadOptions(path)
	require.NoError(t, err)

	assert.True(t, opts.CreateUsers)
	assert.Equal(t, "Imported", opts.AssignUsersToGroup)
	assert.True(t, opts.ImportVersions)
	assert.Equal(t, "1-3", opts.ImportIssueIDs)
	assert.Equal(t, []Entry{{Source: "New", Target: "Open"}}, opts.StatusMappings)
	assert.Equal(t, []Entry{{Source: "Bug", Target: "Type::Bug"}}, opts.TrackerMappings)

	// Keys absent from the file keep their defaults.
	assert.True(t, opts.ImportIssues)
	assert.True(t, opts.UseExistingIssueNumbers)
	assert.Equal(t, "Assignees", opts.AssigneesField)
}

func TestSaveLoadOptionsTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "options.toml")
	opts := DefaultOptions()
	opts.CategoryField = "Component"
	opts.StatusMappings = []Entry{{Source: "New", Target: "Open"}}
	opts.TrackerMappings = []Entry{{Source: "Bug", Target: "Type::Bug"}}
	opts.PriorityMappings = []Entry{{Source: "High", Target: "Priority::Major"}, {Source: "Low"}}
	opts.FieldMappings = []Entry{{Source: "Browser"}}

	require.NoError(t, SaveOptions(path, opts))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[[priority_mappings]]")

	loaded, err := LoadOptions(path)
	require.NoError(t, err)
	assert.Equal(t, opts, loaded)
}

func TestLoadOptionsErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadOptions(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "options.json")
	require.NoError(t, os.WriteFile(bad, []byte("{}"), 0644))
	_, err = LoadOptions(bad)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unsupported options format"))
}

func TestParseIssueIDs(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"5", "5", false},
		{"1-3, 7", "1,2,3,7", false},
		{" 10 - 12 ,", "10,11,12", false},
		{"3-1", "", true},
		{"a-b", "", true},
		{"x", "", true},
		{"1-300", "", false},
		{"1-301", "", true},
		{"1-200,300-400", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseIssueIDs(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrConfiguration) {
					t.Errorf("ParseIssueIDs(%q) error = %v, want ConfigurationError", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseIssueIDs(%q) error = %v", tt.in, err)
			}
			if tt.in == "1-300" {
				if n := len(strings.Split(got, ",")); n != 300 {
					t.Errorf("ParseIssueIDs(%q) gave %d ids, want 300", tt.in, n)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ParseIssueIDs(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
