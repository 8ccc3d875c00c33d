package mapping

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Options holds everything a user can configure about an import run.
type Options struct {
	CreateUsers        bool   `yaml:"create_users" toml:"create_users"`
	CreateAsGuest      bool   `yaml:"create_as_guest" toml:"create_as_guest"`
	CreateAsExternal   bool   `yaml:"create_as_external" toml:"create_as_external"`
	AssignUsersToGroup string `yaml:"assign_users_to_group,omitempty" toml:"assign_users_to_group,omitempty"`

	ImportIssues            bool   `yaml:"import_issues" toml:"import_issues"`
	ImportVersions          bool   `yaml:"import_versions" toml:"import_versions"`
	AddWikiToMilestones     bool   `yaml:"add_wiki_to_milestone_description" toml:"add_wiki_to_milestone_description"`
	ConvertTextile          bool   `yaml:"convert_textile_to_markdown" toml:"convert_textile_to_markdown"`
	UseExistingIssueNumbers bool   `yaml:"use_existing_issue_ids" toml:"use_existing_issue_ids"`
	ImportIssueIDs          string `yaml:"import_issue_ids,omitempty" toml:"import_issue_ids,omitempty"`

	AssigneesField      string `yaml:"assignees_field" toml:"assignees_field"`
	CategoryField       string `yaml:"category_field" toml:"category_field"`
	StartDateField      string `yaml:"start_date_field,omitempty" toml:"start_date_field,omitempty"`
	DueDateField        string `yaml:"due_date_field,omitempty" toml:"due_date_field,omitempty"`
	DoneRatioField      string `yaml:"done_ratio_field,omitempty" toml:"done_ratio_field,omitempty"`
	EstimatedHoursField string `yaml:"estimated_hours_field,omitempty" toml:"estimated_hours_field,omitempty"`

	StatusMappings   []Entry `yaml:"status_mappings" toml:"status_mappings"`
	TrackerMappings  []Entry `yaml:"tracker_mappings" toml:"tracker_mappings"`
	PriorityMappings []Entry `yaml:"priority_mappings" toml:"priority_mappings"`
	FieldMappings    []Entry `yaml:"field_mappings" toml:"field_mappings"`
}

// Entry maps one source category value to a target. An empty target leaves
// the source value unmapped.
type Entry struct {
	Source string `yaml:"redmine" toml:"redmine"`
	Target string `yaml:"onedev,omitempty" toml:"onedev,omitempty"`
}

// DefaultOptions returns options with the defaults of a fresh run and no
// mapping entries.
func DefaultOptions() *Options {
	return &Options{
		ImportIssues:            true,
		ConvertTextile:          true,
		UseExistingIssueNumbers: true,
		AssigneesField:          "Assignees",
		CategoryField:           "Category",
	}
}

// LoadOptions reads options from a YAML or TOML file, chosen by extension.
// Missing keys keep their DefaultOptions values.
func LoadOptions(path string) (*Options, error) {
	data, err := os.ReadFile(path) // #nosec G304 - user-supplied options path
	if err != nil {
		return nil, fmt.Errorf("read options: %w", err)
	}

	opts := DefaultOptions()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), opts); err != nil {
			return nil, fmt.Errorf("parse options %s: %w", path, err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, opts); err != nil {
			return nil, fmt.Errorf("parse options %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported options format %q (use .yaml or .toml)", filepath.Ext(path))
	}
	return opts, nil
}

// SaveOptions writes options as YAML or TOML, chosen by extension.
func SaveOptions(path string, opts *Options) error {
	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(opts); err != nil {
			return fmt.Errorf("encode options: %w", err)
		}
		data = buf.Bytes()
	default:
		var err error
		data, err = yaml.Marshal(opts)
		if err != nil {
			return fmt.Errorf("encode options: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil { // #nosec G306 - options hold no secrets
		return fmt.Errorf("write options: %w", err)
	}
	return nil
}
