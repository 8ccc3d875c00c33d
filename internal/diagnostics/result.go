// Package diagnostics collects the non-fatal findings of an import run and
// renders them as a capped report.
package diagnostics

import (
	"fmt"
	"html"
	"sort"
	"strings"
)

// Category identifies one kind of finding.
type Category int

const (
	MissingMilestones Category = iota
	UnmappedStatuses
	UnmappedTypes
	UnmappedPriorities
	UnmappedFields
	UnresolvedUsers
	OversizedAttachments
	MissingFields
)

// Categories lists every category in report order.
var Categories = []Category{
	MissingMilestones,
	UnmappedStatuses,
	UnmappedTypes,
	UnmappedPriorities,
	UnmappedFields,
	UnresolvedUsers,
	OversizedAttachments,
	MissingFields,
}

var descriptions = map[Category]string{
	MissingMilestones:    "Non existent milestones",
	UnmappedStatuses:     "Redmine issue status not mapped to OneDev issue state",
	UnmappedTypes:        "Redmine issue tracker not mapped to OneDev issue type",
	UnmappedPriorities:   "Redmine issue priority not mapped to OneDev issue priority",
	UnmappedFields:       "Redmine custom issue field not mapped to OneDev field",
	UnresolvedUsers:      "Redmine logins without public email or public email can not be mapped to OneDev account",
	OversizedAttachments: "Too large attachments",
	MissingFields:        "Redmine records with missing fields",
}

var keys = map[Category]string{
	MissingMilestones:    "missing_milestones",
	UnmappedStatuses:     "unmapped_statuses",
	UnmappedTypes:        "unmapped_types",
	UnmappedPriorities:   "unmapped_priorities",
	UnmappedFields:       "unmapped_fields",
	UnresolvedUsers:      "unresolved_users",
	OversizedAttachments: "oversized_attachments",
	MissingFields:        "missing_fields",
}

// String returns the report heading of the category.
func (c Category) String() string {
	return descriptions[c]
}

// Key returns a stable identifier suitable for JSON output.
func (c Category) Key() string {
	return keys[c]
}

// DisplayLimit caps the entries shown per category.
const DisplayLimit = 100

// Result is the run-scoped diagnostics collector. It is not safe for
// concurrent use; an import run owns exactly one.
type Result struct {
	sets         map[Category]*set
	notes        *set
	createdUsers *set
}

// set is an insertion ordered, deduplicated string collection.
type set struct {
	order []string
	seen  map[string]struct{}
}

func newSet() *set {
	return &set{seen: make(map[string]struct{})}
}

func (s *set) add(v string) bool {
	if _, ok := s.seen[v]; ok {
		return false
	}
	s.seen[v] = struct{}{}
	s.order = append(s.order, v)
	return true
}

// New returns an empty Result.
func New() *Result {
	r := &Result{
		sets:         make(map[Category]*set, len(Categories)),
		notes:        newSet(),
		createdUsers: newSet(),
	}
	for _, c := range Categories {
		r.sets[c] = newSet()
	}
	return r
}

// Add records entry under category. Duplicates are ignored.
func (r *Result) Add(c Category, entry string) {
	r.sets[c].add(entry)
}

// Note records a free-form note. Notes may contain HTML and are rendered
// verbatim, in arrival order.
func (r *Result) Note(msg string) {
	r.notes.add(msg)
}

// Notef records a formatted note.
func (r *Result) Notef(format string, args ...any) {
	r.Note(fmt.Sprintf(format, args...))
}

// UserCreated records the login of a user created by the run.
func (r *Result) UserCreated(login string) {
	r.createdUsers.add(login)
}

// Entries returns the findings of a category. Oversized attachments keep
// arrival order, every other category is sorted.
func (r *Result) Entries(c Category) []string {
	out := append([]string(nil), r.sets[c].order...)
	if c != OversizedAttachments {
		sort.Strings(out)
	}
	return out
}

// Notes returns the notes in arrival order.
func (r *Result) Notes() []string {
	return append([]string(nil), r.notes.order...)
}

// CreatedUsers returns created user logins in creation order.
func (r *Result) CreatedUsers() []string {
	return append([]string(nil), r.createdUsers.order...)
}

// Count returns the number of distinct findings in a category.
func (r *Result) Count(c Category) int {
	return len(r.sets[c].order)
}

// Total returns the number of findings across all categories and notes.
func (r *Result) Total() int {
	n := len(r.notes.order)
	for _, c := range Categories {
		n += r.Count(c)
	}
	return n
}

// Empty reports whether the run produced no findings and created no users.
func (r *Result) Empty() bool {
	return r.Total() == 0 && len(r.createdUsers.order) == 0
}

// Section is one rendered block of the report.
type Section struct {
	Title   string
	Entries []string // capped at DisplayLimit
	More    int      // entries beyond the cap
	HTML    bool     // entries are HTML fragments
}

// Sections returns the non-empty report sections in display order.
func (r *Result) Sections() []Section {
	var out []Section
	for _, c := range Categories {
		if entries := r.Entries(c); len(entries) > 0 {
			out = append(out, capped(c.String(), entries, false))
		}
	}
	if len(r.notes.order) > 0 {
		out = append(out, capped("Notes", r.Notes(), true))
	}
	if len(r.createdUsers.order) > 0 {
		out = append(out, capped("Created users", r.CreatedUsers(), false))
	}
	return out
}

func capped(title string, entries []string, isHTML bool) Section {
	s := Section{Title: title, Entries: entries, HTML: isHTML}
	if len(entries) > DisplayLimit {
		s.Entries = entries[:DisplayLimit]
		s.More = len(entries) - DisplayLimit
	}
	return s
}

// MoreSuffix returns the "and N more" text for a truncated section.
func MoreSuffix(n int) string {
	return fmt.Sprintf("and %d more", n)
}

// HTML renders the report as an HTML fragment appended to leading. Plain
// entries are escaped; notes are emitted as is. An empty result renders
// leading unchanged.
func (r *Result) HTML(leading string) string {
	sections := r.Sections()
	if len(sections) == 0 {
		return leading
	}

	var b strings.Builder
	b.WriteString(leading)
	b.WriteString("<br><br><b>NOTE:</b><ul>")
	for _, s := range sections {
		if s.HTML {
			for _, e := range s.Entries {
				b.WriteString("<li>" + e + "</li>")
			}
			if s.More > 0 {
				b.WriteString("<li>" + MoreSuffix(s.More) + "</li>")
			}
			continue
		}
		escaped := make([]string, len(s.Entries))
		for i, e := range s.Entries {
			escaped[i] = html.EscapeString(e)
		}
		list := strings.Join(escaped, ", ")
		if s.More > 0 {
			list += " " + MoreSuffix(s.More)
		}
		b.WriteString("<li> " + html.EscapeString(s.Title) + ": " + list + " </li>")
	}
	b.WriteString("</ul>")
	return b.String()
}

// Summary maps category keys to their full sorted entry lists. Notes and
// created users are included under "notes" and "created_users".
func (r *Result) Summary() map[string][]string {
	out := make(map[string][]string)
	for _, c := range Categories {
		if entries := r.Entries(c); len(entries) > 0 {
			out[c.Key()] = entries
		}
	}
	if notes := r.Notes(); len(notes) > 0 {
		out["notes"] = notes
	}
	if users := r.CreatedUsers(); len(users) > 0 {
		out["created_users"] = users
	}
	return out
}
