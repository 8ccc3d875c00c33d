package mapping

import (
	"errors"
	"reflect"
	"testing"

	"github.com/steveyegge/rmimport/internal/types"
)

func testSchema() *types.Schema {
	return &types.Schema{
		States:       []string{"Open", "Closed"},
		InitialState: "Open",
		Fields: []*types.FieldSpec{
			{Name: "Type", Type: types.FieldChoice, Choices: []string{"Bug", "New Feature", "Task"}},
			{Name: "Priority", Type: types.FieldChoice, Choices: []string{"Minor", "Normal", "Major", "Critical"}},
			{Name: "Assignees", Type: types.FieldUser, AllowMultiple: true},
			{Name: "Found In", Type: types.FieldMilestone},
		},
	}
}

func TestResolve(t *testing.T) {
	opts := &Options{
		StatusMappings:   []Entry{{"New", "Open"}, {"Closed", "Closed"}, {"Odd", ""}},
		TrackerMappings:  []Entry{{"Bug", "Type::Bug"}},
		PriorityMappings: []Entry{{"High", "Priority::Major"}},
		FieldMappings:    []Entry{{"Affected version", "Found In"}, {"Ignored", ""}},
	}

	tables, err := Resolve(testSchema(), opts)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if got, ok := tables.Status.Lookup("New"); !ok || got != "Open" {
		t.Errorf("Status[New] = %q, %v, want Open", got, ok)
	}
	if _, ok := tables.Status.Lookup("Odd"); ok {
		t.Error("Status[Odd] is mapped, want unmapped")
	}
	if got, _ := tables.Tracker.Lookup("Bug"); got.Spec.Name != "Type" || got.Value != "Bug" {
		t.Errorf("Tracker[Bug] = %s::%s, want Type::Bug", got.Spec.Name, got.Value)
	}
	if got, _ := tables.Priority.Lookup("High"); got.Value != "Major" {
		t.Errorf("Priority[High] = %q, want Major", got.Value)
	}
	if got, _ := tables.Field.Lookup("Affected version"); got.Type != types.FieldMilestone {
		t.Errorf("Field[Affected version].Type = %s, want milestone", got.Type)
	}
	if tables.Field.Len() != 1 {
		t.Errorf("Field.Len() = %d, want 1", tables.Field.Len())
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	opts := &Options{
		StatusMappings:  []Entry{{"B", "Closed"}, {"A", "Open"}},
		TrackerMappings: []Entry{{"Task", "Type::Task"}, {"Bug", "Type::Bug"}},
	}
	schema := testSchema()

	first, err := Resolve(schema, opts)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Resolve(schema, opts)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("Resolve() is not deterministic")
	}
	if got := first.Status.Keys(); !reflect.DeepEqual(got, []string{"B", "A"}) {
		t.Errorf("Status.Keys() = %v, want insertion order", got)
	}
}

func TestResolveConfigurationErrors(t *testing.T) {
	tests := []struct {
		name    string
		opts    *Options
		wantMsg string
	}{
		{
			name:    "unknown field in tracker mapping",
			opts:    &Options{TrackerMappings: []Entry{{"Bug", "Kind::Bug"}}},
			wantMsg: "No field spec found: Kind",
		},
		{
			name:    "unknown custom field",
			opts:    &Options{FieldMappings: []Entry{{"Severity", "Severity"}}},
			wantMsg: "No field spec found: Severity",
		},
		{
			name:    "unknown state",
			opts:    &Options{StatusMappings: []Entry{{"New", "Triaged"}}},
			wantMsg: "No state spec found: Triaged",
		},
		{
			name:    "duplicate source",
			opts:    &Options{PriorityMappings: []Entry{{"Low", "Priority::Minor"}, {"Low", "Priority::Normal"}}},
			wantMsg: `Duplicate priority mapping for "Low"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(testSchema(), tt.opts)
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("Resolve() error = %v, want ConfigurationError", err)
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("Resolve() error = %q, want %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestSplitFieldValue(t *testing.T) {
	tests := []struct {
		in, field, value string
	}{
		{"Type::Bug", "Type", "Bug"},
		{"Type::A::B", "Type", "A::B"},
		{"Type", "Type", ""},
	}
	for _, tt := range tests {
		field, value := SplitFieldValue(tt.in)
		if field != tt.field || value != tt.value {
			t.Errorf("SplitFieldValue(%q) = %q, %q, want %q, %q", tt.in, field, value, tt.field, tt.value)
		}
	}
}

func TestDefaults(t *testing.T) {
	schema := testSchema()
	src := SourceCategories{
		Statuses:     []string{"New", "Closed", "Weird"},
		Trackers:     []string{"Bug", "Feature", "Support"},
		Priorities:   []string{"Normal", "Immediate"},
		CustomFields: []string{"Found In", "Browser"},
	}

	opts := Defaults(schema, src)

	wantStatus := []Entry{{"New", "Open"}, {"Closed", "Closed"}, {"Weird", ""}}
	if !reflect.DeepEqual(opts.StatusMappings, wantStatus) {
		t.Errorf("StatusMappings = %v, want %v", opts.StatusMappings, wantStatus)
	}
	wantTracker := []Entry{{"Bug", "Type::Bug"}, {"Feature", "Type::New Feature"}, {"Support", ""}}
	if !reflect.DeepEqual(opts.TrackerMappings, wantTracker) {
		t.Errorf("TrackerMappings = %v, want %v", opts.TrackerMappings, wantTracker)
	}
	wantPriority := []Entry{{"Normal", "Priority::Normal"}, {"Immediate", "Priority::Critical"}}
	if !reflect.DeepEqual(opts.PriorityMappings, wantPriority) {
		t.Errorf("PriorityMappings = %v, want %v", opts.PriorityMappings, wantPriority)
	}
	wantFields := []Entry{{"Found In", "Found In"}, {"Browser", ""}}
	if !reflect.DeepEqual(opts.FieldMappings, wantFields) {
		t.Errorf("FieldMappings = %v, want %v", opts.FieldMappings, wantFields)
	}

	if _, err := Resolve(schema, opts); err != nil {
		t.Errorf("Resolve(Defaults()) error = %v", err)
	}
}

func TestCheckFields(t *testing.T) {
	schema := testSchema()
	if err := CheckFields(schema, &Options{AssigneesField: "Assignees", CategoryField: "Category"}); err != nil {
		t.Errorf("CheckFields() error = %v", err)
	}
	err := CheckFields(schema, &Options{DueDateField: "Due"})
	if !errors.Is(err, ErrConfiguration) || err.Error() != "No field spec found: Due" {
		t.Errorf("CheckFields() error = %v, want missing Due", err)
	}
}
