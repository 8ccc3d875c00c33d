package types

// FieldType is the value type of a target custom field.
type FieldType string

const (
	FieldText      FieldType = "text"
	FieldChoice    FieldType = "choice"
	FieldUser      FieldType = "user"
	FieldMilestone FieldType = "milestone"
	FieldDate      FieldType = "date"
	FieldInteger   FieldType = "integer"
	FieldFloat     FieldType = "float"
	FieldBoolean   FieldType = "boolean"
)

// FieldSpec describes one custom field of the target issue schema.
type FieldSpec struct {
	Name             string    `json:"name" db:"name"`
	Type             FieldType `json:"type" db:"type"`
	AllowMultiple    bool      `json:"allow_multiple" db:"allow_multiple"`
	AllowEmpty       bool      `json:"allow_empty" db:"allow_empty"`
	NameOfEmptyValue string    `json:"name_of_empty_value,omitempty" db:"name_of_empty_value"`
	Choices          []string  `json:"choices,omitempty" db:"-"`
}

// Schema is a snapshot of the target issue settings taken at the start of a run.
type Schema struct {
	States       []string     `json:"states"`
	InitialState string       `json:"initial_state"`
	Fields       []*FieldSpec `json:"fields"`
}

// Field returns the field spec with the given name, or nil.
func (s *Schema) Field(name string) *FieldSpec {
	for _, f := range s.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// HasState reports whether name is a configured state.
func (s *Schema) HasState(name string) bool {
	for _, st := range s.States {
		if st == name {
			return true
		}
	}
	return false
}

// Clone returns a copy that can be extended during a run without touching
// the original snapshot.
func (s *Schema) Clone() *Schema {
	c := &Schema{
		States:       append([]string(nil), s.States...),
		InitialState: s.InitialState,
		Fields:       make([]*FieldSpec, 0, len(s.Fields)),
	}
	for _, f := range s.Fields {
		cp := *f
		cp.Choices = append([]string(nil), f.Choices...)
		c.Fields = append(c.Fields, &cp)
	}
	return c
}

// DefaultSchema returns the issue settings of a freshly installed target.
func DefaultSchema() *Schema {
	return &Schema{
		States:       []string{"Open", "Closed"},
		InitialState: "Open",
		Fields: []*FieldSpec{
			{Name: "Type", Type: FieldChoice, Choices: []string{"New Feature", "Improvement", "Bug", "Task", "Build Failure"}},
			{Name: "Priority", Type: FieldChoice, Choices: []string{"Minor", "Normal", "Major", "Critical"}},
			{Name: "Assignees", Type: FieldUser, AllowMultiple: true, AllowEmpty: true, NameOfEmptyValue: "Not assigned"},
		},
	}
}
