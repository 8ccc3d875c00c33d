// Package types defines the target-side data structures produced by an import run.
package types

import (
	"sort"
	"time"
)

// Issue is an issue in the target tracker's model, fully built in memory
// before anything is persisted.
type Issue struct {
	UUID         string              `json:"uuid"`
	ProjectID    int64               `json:"project_id"`
	Number       int64               `json:"number"`
	OldNumber    int64               `json:"old_number"` // Number in the source tracker
	Title        string              `json:"title"`
	Description  string              `json:"description,omitempty"`
	State        string              `json:"state"`
	Submitter    *User               `json:"submitter"`
	SubmitDate   time.Time           `json:"submit_date"`
	Fields       map[string][]string `json:"fields,omitempty"` // Target field name -> values (nil = empty)
	Schedules    []string            `json:"schedules,omitempty"`
	Comments     []*Comment          `json:"comments,omitempty"`
	Changes      []*Change           `json:"changes,omitempty"`
	Watches      []*Watch            `json:"watches,omitempty"`
	CommentCount int                 `json:"comment_count"`
	LastActivity LastActivity        `json:"last_activity"`
}

// NewIssue returns an issue whose last activity is its creation.
func NewIssue(uuid string, projectID int64, submitter *User, submitDate time.Time) *Issue {
	return &Issue{
		UUID:       uuid,
		ProjectID:  projectID,
		Submitter:  submitter,
		SubmitDate: submitDate,
		Fields:     make(map[string][]string),
		LastActivity: LastActivity{
			Description: "opened",
			Date:        submitDate,
			User:        submitter,
		},
	}
}

// SetField records values for a target field. Calling it with no values
// records an explicitly empty field.
func (i *Issue) SetField(name string, values ...string) {
	if i.Fields == nil {
		i.Fields = make(map[string][]string)
	}
	if len(values) == 0 {
		i.Fields[name] = nil
		return
	}
	i.Fields[name] = append([]string(nil), values...)
}

// Schedule adds the issue to a milestone, ignoring duplicates.
func (i *Issue) Schedule(milestone string) {
	for _, m := range i.Schedules {
		if m == milestone {
			return
		}
	}
	i.Schedules = append(i.Schedules, milestone)
}

// AddComment appends a comment and advances last activity.
func (i *Issue) AddComment(c *Comment) {
	i.Comments = append(i.Comments, c)
	i.CommentCount = len(i.Comments)
	i.Touch("commented", c.Date, c.User)
}

// AddChange appends a change entry and advances last activity.
func (i *Issue) AddChange(c *Change) {
	i.Changes = append(i.Changes, c)
	i.Touch(c.Data.Activity(), c.Date, c.User)
}

// Touch moves last activity forward. Older events never replace newer ones.
func (i *Issue) Touch(description string, date time.Time, user *User) {
	if date.Before(i.LastActivity.Date) {
		return
	}
	i.LastActivity = LastActivity{Description: description, Date: date, User: user}
}

// SortHistory orders comments and changes by timestamp, keeping arrival
// order for equal timestamps.
func (i *Issue) SortHistory() {
	sort.SliceStable(i.Comments, func(a, b int) bool {
		return i.Comments[a].Date.Before(i.Comments[b].Date)
	})
	sort.SliceStable(i.Changes, func(a, b int) bool {
		return i.Changes[a].Date.Before(i.Changes[b].Date)
	})
}

// Comment is a journal note carried over as an issue comment.
type Comment struct {
	User    *User     `json:"user"`
	Date    time.Time `json:"date"`
	Content string    `json:"content"`
}

// Watch records a user watching an issue.
type Watch struct {
	User     *User `json:"user"`
	Watching bool  `json:"watching"`
}

// LastActivity describes the most recent event on an issue.
type LastActivity struct {
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	User        *User     `json:"user,omitempty"`
}

// Milestone is a target-side milestone, imported from a source version or
// already present in the target project.
type Milestone struct {
	ID          int64      `json:"id,omitempty"`
	ProjectID   int64      `json:"project_id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Closed      bool       `json:"closed"`
}

// User is a target user account.
type User struct {
	ID       int64    `json:"id,omitempty"`
	Name     string   `json:"name"`
	FullName string   `json:"full_name,omitempty"`
	Email    string   `json:"email,omitempty"`
	Guest    bool     `json:"guest,omitempty"`
	External bool     `json:"external,omitempty"`
	Groups   []string `json:"groups,omitempty"`
}

// UnknownUser stands in for source users that could not be resolved.
var UnknownUser = &User{ID: -2, Name: "unknown", FullName: "Unknown"}

// IsUnknown reports whether u is the unknown placeholder.
func (u *User) IsUnknown() bool {
	return u == nil || u.ID == UnknownUser.ID
}

// InGroup reports whether the user belongs to the named group.
func (u *User) InGroup(group string) bool {
	for _, g := range u.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// Membership adds a user to a group.
type Membership struct {
	User  *User  `json:"user"`
	Group string `json:"group"`
}

// LinkSpec is a named link type, optionally with an opposite side.
type LinkSpec struct {
	ID       int64         `json:"id,omitempty"`
	Name     string        `json:"name"`
	Multiple bool          `json:"multiple"`
	Opposite *LinkOpposite `json:"opposite,omitempty"`
	Order    int           `json:"order"`
}

// LinkOpposite is the reverse side of an asymmetric link type.
type LinkOpposite struct {
	Name     string `json:"name"`
	Multiple bool   `json:"multiple"`
}

// IssueLink connects two issues through a link spec.
type IssueLink struct {
	Source *Issue    `json:"-"`
	Target *Issue    `json:"-"`
	Spec   *LinkSpec `json:"-"`
}
