package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// ChangeKind tags the variant held by a Change.
type ChangeKind string

const (
	ChangeTitle           ChangeKind = "title"
	ChangeState           ChangeKind = "state"
	ChangeFields          ChangeKind = "fields"
	ChangeMilestone       ChangeKind = "milestone"
	ChangeMilestoneAdd    ChangeKind = "milestone_add"
	ChangeMilestoneRemove ChangeKind = "milestone_remove"
	ChangePendingLink     ChangeKind = "pending_link"
)

// ChangeData is implemented by every change variant.
type ChangeData interface {
	Kind() ChangeKind
	Activity() string
}

// Change is one entry of an issue's history.
type Change struct {
	Date time.Time  `json:"date"`
	User *User      `json:"user"`
	Data ChangeData `json:"-"`
}

type TitleChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

func (TitleChange) Kind() ChangeKind { return ChangeTitle }
func (TitleChange) Activity() string { return "changed title" }

type StateChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

func (StateChange) Kind() ChangeKind   { return ChangeState }
func (c StateChange) Activity() string { return fmt.Sprintf("changed state to %q", c.New) }

// FieldValue is one named value inside a FieldChange bag.
type FieldValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// FieldChange aggregates all field edits of a single journal.
type FieldChange struct {
	Old []FieldValue `json:"old"`
	New []FieldValue `json:"new"`
}

func (FieldChange) Kind() ChangeKind { return ChangeFields }
func (FieldChange) Activity() string { return "changed fields" }

// Set records old and new values for a field, replacing a previous entry of
// the same name. Empty values are skipped.
func (c *FieldChange) Set(name, oldValue, newValue string) {
	c.Old = setFieldValue(c.Old, name, oldValue)
	c.New = setFieldValue(c.New, name, newValue)
}

// Empty reports whether the change carries no values at all.
func (c *FieldChange) Empty() bool {
	return len(c.Old) == 0 && len(c.New) == 0
}

func setFieldValue(values []FieldValue, name, value string) []FieldValue {
	if value == "" {
		return values
	}
	for i := range values {
		if values[i].Name == name {
			values[i].Value = value
			return values
		}
	}
	return append(values, FieldValue{Name: name, Value: value})
}

type MilestoneChange struct {
	Old []string `json:"old"`
	New []string `json:"new"`
}

func (MilestoneChange) Kind() ChangeKind { return ChangeMilestone }
func (MilestoneChange) Activity() string { return "changed milestone" }

type MilestoneAdd struct {
	Milestone string `json:"milestone"`
}

func (MilestoneAdd) Kind() ChangeKind { return ChangeMilestoneAdd }
func (c MilestoneAdd) Activity() string {
	return fmt.Sprintf("added to milestone %q", c.Milestone)
}

type MilestoneRemove struct {
	Milestone string `json:"milestone"`
}

func (MilestoneRemove) Kind() ChangeKind { return ChangeMilestoneRemove }
func (c MilestoneRemove) Activity() string {
	return fmt.Sprintf("removed from milestone %q", c.Milestone)
}

// PendingLinkChange is a relation edit seen in a journal whose counterpart
// issue number is not known until every issue has been transformed. The link
// builder replaces it with a TitleChange before anything is persisted.
type PendingLinkChange struct {
	LinkName  string `json:"link_name"`
	OldNumber *int64 `json:"old_number,omitempty"`
	NewNumber *int64 `json:"new_number,omitempty"`
}

func (PendingLinkChange) Kind() ChangeKind { return ChangePendingLink }
func (PendingLinkChange) Activity() string { return "changed links" }

type changeJSON struct {
	Date time.Time       `json:"date"`
	User *User           `json:"user"`
	Kind ChangeKind      `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalJSON writes the change with its variant tag.
func (c *Change) MarshalJSON() ([]byte, error) {
	if c.Data == nil {
		return nil, fmt.Errorf("change at %s has no data", c.Date)
	}
	data, err := json.Marshal(c.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(changeJSON{Date: c.Date, User: c.User, Kind: c.Data.Kind(), Data: data})
}

// UnmarshalJSON reads a change written by MarshalJSON.
func (c *Change) UnmarshalJSON(b []byte) error {
	var raw changeJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	data, err := DecodeChangeData(raw.Kind, raw.Data)
	if err != nil {
		return err
	}
	c.Date, c.User, c.Data = raw.Date, raw.User, data
	return nil
}

// DecodeChangeData decodes the JSON form of the variant tagged kind.
func DecodeChangeData(kind ChangeKind, b json.RawMessage) (ChangeData, error) {
	switch kind {
	case ChangeTitle:
		return decodeAs[TitleChange](b)
	case ChangeState:
		return decodeAs[StateChange](b)
	case ChangeFields:
		return decodeAs[FieldChange](b)
	case ChangeMilestone:
		return decodeAs[MilestoneChange](b)
	case ChangeMilestoneAdd:
		return decodeAs[MilestoneAdd](b)
	case ChangeMilestoneRemove:
		return decodeAs[MilestoneRemove](b)
	case ChangePendingLink:
		return decodeAs[PendingLinkChange](b)
	default:
		return nil, fmt.Errorf("unknown change kind %q", kind)
	}
}

func decodeAs[T ChangeData](b json.RawMessage) (ChangeData, error) {
	var d T
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, err
	}
	return d, nil
}
