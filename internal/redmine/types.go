package redmine

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Ref is the {id, name} pair Redmine uses for every association.
type Ref struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// IssueRef points at another issue.
type IssueRef struct {
	ID int64 `json:"id"`
}

// Named is a top-level enumeration record (status, tracker, priority, category).
type Named struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Project represents a Redmine project.
type Project struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Identifier  string `json:"identifier"`
	Description string `json:"description"`
}

// Issue represents a Redmine issue, optionally with its includes.
type Issue struct {
	ID             int64              `json:"id"`
	Project        *Ref               `json:"project"`
	Tracker        *Ref               `json:"tracker"`
	Status         *Ref               `json:"status"`
	Priority       *Ref               `json:"priority"`
	Author         *Ref               `json:"author"`
	AssignedTo     *Ref               `json:"assigned_to"`
	Category       *Ref               `json:"category"`
	FixedVersion   *Ref               `json:"fixed_version"`
	Parent         *IssueRef          `json:"parent"`
	Subject        string             `json:"subject"`
	Description    *string            `json:"description"`
	StartDate      *string            `json:"start_date"`
	DueDate        *string            `json:"due_date"`
	DoneRatio      *int               `json:"done_ratio"`
	EstimatedHours *float64           `json:"estimated_hours"`
	CustomFields   []CustomFieldValue `json:"custom_fields"`
	CreatedOn      string             `json:"created_on"`
	UpdatedOn      string             `json:"updated_on"`

	// Populated by the include=relations,watchers,attachments,journals query.
	Relations   []Relation   `json:"relations"`
	Watchers    []Ref        `json:"watchers"`
	Attachments []Attachment `json:"attachments"`
	Journals    []Journal    `json:"journals"`
}

// Validate lists the required fields missing from the record. Callers fall
// back to defaults for each of them and report the findings.
func (i *Issue) Validate() []string {
	var missing []string
	if strings.TrimSpace(i.Subject) == "" {
		missing = append(missing, "subject")
	}
	if i.Status == nil || i.Status.Name == "" {
		missing = append(missing, "status")
	}
	if i.Author == nil {
		missing = append(missing, "author")
	}
	if _, err := ParseTime(i.CreatedOn); err != nil {
		missing = append(missing, "created_on")
	}
	return missing
}

// CustomFieldValue is a custom field value attached to an issue. Value is a
// string, a list of strings, or null.
type CustomFieldValue struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Multiple bool            `json:"multiple"`
	Value    json.RawMessage `json:"value"`
}

// Values returns the non-empty values of the field. multi reports whether the
// field holds a list.
func (v CustomFieldValue) Values() (values []string, multi bool) {
	raw := strings.TrimSpace(string(v.Value))
	if raw == "" || raw == "null" {
		return nil, v.Multiple
	}
	if strings.HasPrefix(raw, "[") {
		var list []string
		if err := json.Unmarshal(v.Value, &list); err != nil {
			return nil, true
		}
		for _, s := range list {
			if s != "" {
				values = append(values, s)
			}
		}
		return values, true
	}
	var s string
	if err := json.Unmarshal(v.Value, &s); err != nil {
		// Numbers and booleans come through unquoted on some versions.
		s = raw
	}
	if s == "" {
		return nil, false
	}
	return []string{s}, false
}

// Relation is an issue relation as returned with include=relations.
type Relation struct {
	ID           int64  `json:"id"`
	IssueID      int64  `json:"issue_id"`
	IssueToID    int64  `json:"issue_to_id"`
	RelationType string `json:"relation_type"`
	Delay        *int   `json:"delay"`
}

// Attachment is a file attached to an issue.
type Attachment struct {
	ID          int64  `json:"id"`
	Filename    string `json:"filename"`
	Filesize    int64  `json:"filesize"`
	ContentType string `json:"content_type"`
	Description string `json:"description"`
	ContentURL  string `json:"content_url"`
	Author      *Ref   `json:"author"`
	CreatedOn   string `json:"created_on"`
}

// Journal is one entry of an issue's history.
type Journal struct {
	ID        int64    `json:"id"`
	User      *Ref     `json:"user"`
	Notes     *string  `json:"notes"`
	CreatedOn string   `json:"created_on"`
	Details   []Detail `json:"details"`
}

// Detail is a single property change inside a journal.
type Detail struct {
	Property string  `json:"property"` // attr, cf, relation, attachment
	Name     string  `json:"name"`
	OldValue *string `json:"old_value"`
	NewValue *string `json:"new_value"`
}

// Old returns the old value or "".
func (d Detail) Old() string {
	if d.OldValue == nil {
		return ""
	}
	return *d.OldValue
}

// New returns the new value or "".
func (d Detail) New() string {
	if d.NewValue == nil {
		return ""
	}
	return *d.NewValue
}

// Version is a project version, imported as a milestone.
type Version struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	DueDate     *string `json:"due_date"`
}

// User is a Redmine account.
type User struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Mail      string `json:"mail"`
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.Firstname + " " + u.Lastname)
}

// DisplayName is the name Redmine shows in references to the user.
func (u *User) DisplayName() string {
	if name := u.FullName(); name != "" {
		return name
	}
	return u.Login
}

// CustomField is a custom field definition.
type CustomField struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	CustomizedType string `json:"customized_type"`
	FieldFormat    string `json:"field_format"`
	Multiple       bool   `json:"multiple"`
}

// WikiPage is a project wiki page.
type WikiPage struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// ParseTime parses a Redmine timestamp.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	return time.Parse(time.RFC3339, s)
}

// ParseDate parses a Redmine calendar date (YYYY-MM-DD).
func ParseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}
