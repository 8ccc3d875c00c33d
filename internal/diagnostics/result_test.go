package diagnostics

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func TestAddDeduplicates(t *testing.T) {
	r := New()
	r.Add(UnmappedTypes, "Support")
	r.Add(UnmappedTypes, "Bug")
	r.Add(UnmappedTypes, "Support")

	if got := r.Count(UnmappedTypes); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}
	if got := r.Entries(UnmappedTypes); !reflect.DeepEqual(got, []string{"Bug", "Support"}) {
		t.Errorf("Entries() = %v, want sorted", got)
	}
}

func TestOversizedAttachmentsKeepArrivalOrder(t *testing.T) {
	r := New()
	r.Add(OversizedAttachments, "#9:z.bin")
	r.Add(OversizedAttachments, "#2:a.bin")

	want := []string{"#9:z.bin", "#2:a.bin"}
	if got := r.Entries(OversizedAttachments); !reflect.DeepEqual(got, want) {
		t.Errorf("Entries() = %v, want %v", got, want)
	}
}

func TestNotesAndCreatedUsersOrdered(t *testing.T) {
	r := New()
	r.Note("second")
	r.Note("first")
	r.Note("second")
	r.UserCreated("bob")
	r.UserCreated("alice")

	if got := r.Notes(); !reflect.DeepEqual(got, []string{"second", "first"}) {
		t.Errorf("Notes() = %v", got)
	}
	if got := r.CreatedUsers(); !reflect.DeepEqual(got, []string{"bob", "alice"}) {
		t.Errorf("CreatedUsers() = %v", got)
	}
}

func TestHTMLCapsEntries(t *testing.T) {
	r := New()
	for i := 0; i < 150; i++ {
		r.Add(UnmappedStatuses, fmt.Sprintf("status-%03d", i))
	}

	out := r.HTML("")
	if !strings.Contains(out, "status-099") {
		t.Error("HTML() is missing the 100th entry")
	}
	if strings.Contains(out, "status-100") {
		t.Error("HTML() shows more than 100 entries")
	}
	if n := strings.Count(out, "status-"); n != 100 {
		t.Errorf("HTML() shows %d entries, want 100", n)
	}
	if !strings.Contains(out, "and 50 more") {
		t.Errorf("HTML() = %q, want \"and 50 more\" suffix", out)
	}
}

func TestHTMLCapsNotes(t *testing.T) {
	r := New()
	for i := 0; i < 101; i++ {
		r.Notef("note %d", i)
	}

	out := r.HTML("")
	if n := strings.Count(out, "<li>note "); n != 100 {
		t.Errorf("HTML() shows %d notes, want 100", n)
	}
	if !strings.Contains(out, "<li>and 1 more</li>") {
		t.Errorf("HTML() missing note suffix")
	}
}

func TestHTMLEscapesEntriesButNotNotes(t *testing.T) {
	r := New()
	r.Add(UnresolvedUsers, "<jo>:7")
	r.Note(`Relation to unknown issue #3 in Redmine issue <a href="x">#1</a>`)

	out := r.HTML("Issues imported")
	if !strings.HasPrefix(out, "Issues imported<br><br><b>NOTE:</b><ul>") {
		t.Errorf("HTML() = %q, want leading text and heading", out)
	}
	if !strings.Contains(out, "&lt;jo&gt;:7") {
		t.Errorf("HTML() did not escape entry: %q", out)
	}
	if !strings.Contains(out, `<a href="x">#1</a>`) {
		t.Errorf("HTML() escaped a note: %q", out)
	}
	if !strings.HasSuffix(out, "</ul>") {
		t.Errorf("HTML() = %q, want closing </ul>", out)
	}
}

func TestEmpty(t *testing.T) {
	r := New()
	if !r.Empty() {
		t.Error("new Result is not empty")
	}
	if got := r.HTML("done"); got != "done" {
		t.Errorf("HTML() = %q, want leading only", got)
	}

	r.UserCreated("alice")
	if r.Empty() {
		t.Error("Result with created users reports empty")
	}
	if r.Total() != 0 {
		t.Errorf("Total() = %d, want 0", r.Total())
	}
}

func TestSummary(t *testing.T) {
	r := New()
	r.Add(MissingMilestones, "2.0")
	r.Note("n")

	got := r.Summary()
	want := map[string][]string{
		"missing_milestones": {"2.0"},
		"notes":              {"n"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Summary() = %v, want %v", got, want)
	}
}
