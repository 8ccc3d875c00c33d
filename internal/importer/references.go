package importer

import (
	"strconv"

	"github.com/dlclark/regexp2"

	"github.com/steveyegge/rmimport/internal/types"
)

// issueReference matches code (group 1), which is kept as is, or a "#123"
// issue reference (group 2) not preceded by a word character, "&", "#" or
// "/" so that HTML entities, anchors and URL fragments are left alone.
var issueReference = regexp2.MustCompile(
	"(?s)(```.*?```|~~~.*?~~~|`[^`\\n]*`)|(?<![\\w&#/])#(\\d+)\\b", regexp2.None)

// ReferenceMigrator rewrites "#<old>" issue references to the numbers the
// issues received in the target.
type ReferenceMigrator struct {
	numbers map[int64]int64
}

// NewReferenceMigrator returns a migrator for an old to new number map.
func NewReferenceMigrator(numbers map[int64]int64) *ReferenceMigrator {
	return &ReferenceMigrator{numbers: numbers}
}

// identity reports whether every issue kept its number.
func (m *ReferenceMigrator) identity() bool {
	for old, n := range m.numbers {
		if old != n {
			return false
		}
	}
	return true
}

// Migrate rewrites references in text. Fenced blocks and inline code spans
// are not touched, nor are numbers outside the map.
func (m *ReferenceMigrator) Migrate(text string) string {
	if text == "" {
		return text
	}
	out, err := issueReference.ReplaceFunc(text, func(match regexp2.Match) string {
		whole := match.String()
		if match.GroupByNumber(1).Length > 0 {
			return whole
		}
		old, err := strconv.ParseInt(match.GroupByNumber(2).String(), 10, 64)
		if err != nil {
			return whole
		}
		if n, ok := m.numbers[old]; ok {
			return "#" + strconv.FormatInt(n, 10)
		}
		return whole
	}, -1, -1)
	if err != nil {
		return text
	}
	return out
}

// MigrateIssues rewrites references in the description and comments of
// every issue and returns how many texts changed.
func (m *ReferenceMigrator) MigrateIssues(issues []*types.Issue) int {
	if m.identity() {
		return 0
	}
	changed := 0
	for _, issue := range issues {
		if s := m.Migrate(issue.Description); s != issue.Description {
			issue.Description = s
			changed++
		}
		for _, c := range issue.Comments {
			if s := m.Migrate(c.Content); s != c.Content {
				c.Content = s
				changed++
			}
		}
	}
	return changed
}
