// Package mapping resolves user-supplied import options against the target
// issue schema.
package mapping

import (
	"strings"

	"github.com/steveyegge/rmimport/internal/types"
)

// Table is an ordered mapping from source value to target. A source key
// appears at most once; absent keys are unmapped.
type Table[V any] struct {
	keys   []string
	values map[string]V
}

// NewTable returns an empty table.
func NewTable[V any]() *Table[V] {
	return &Table[V]{values: make(map[string]V)}
}

// Put adds a mapping. It reports false when the key is already present.
func (t *Table[V]) Put(key string, v V) bool {
	if _, ok := t.values[key]; ok {
		return false
	}
	t.keys = append(t.keys, key)
	t.values[key] = v
	return true
}

// Lookup returns the target for key.
func (t *Table[V]) Lookup(key string) (V, bool) {
	v, ok := t.values[key]
	return v, ok
}

// Keys returns the mapped source keys in insertion order.
func (t *Table[V]) Keys() []string {
	return append([]string(nil), t.keys...)
}

// Len returns the number of mapped keys.
func (t *Table[V]) Len() int { return len(t.keys) }

// FieldTarget is a target custom field and, for choice mappings, the value
// assigned to it.
type FieldTarget struct {
	Spec  *types.FieldSpec
	Value string
}

// Tables holds one resolved table per category.
type Tables struct {
	Status   *Table[string]
	Tracker  *Table[FieldTarget]
	Priority *Table[FieldTarget]
	Field    *Table[*types.FieldSpec]
}

// FieldSeparator splits "FieldName::Value" mapping targets.
const FieldSeparator = "::"

// Resolve builds the mapping tables for opts against schema. Entries with an
// empty target are skipped. A target naming a field or state the schema does
// not define, or a source value listed twice, is a ConfigurationError.
func Resolve(schema *types.Schema, opts *Options) (*Tables, error) {
	t := &Tables{
		Status:   NewTable[string](),
		Tracker:  NewTable[FieldTarget](),
		Priority: NewTable[FieldTarget](),
		Field:    NewTable[*types.FieldSpec](),
	}

	for _, e := range opts.StatusMappings {
		if e.Target == "" {
			continue
		}
		if !schema.HasState(e.Target) {
			return nil, configErrorf("No state spec found: %s", e.Target)
		}
		if !t.Status.Put(e.Source, e.Target) {
			return nil, configErrorf("Duplicate status mapping for %q", e.Source)
		}
	}

	if err := resolveChoices(schema, "tracker", opts.TrackerMappings, t.Tracker); err != nil {
		return nil, err
	}
	if err := resolveChoices(schema, "priority", opts.PriorityMappings, t.Priority); err != nil {
		return nil, err
	}

	for _, e := range opts.FieldMappings {
		if e.Target == "" {
			continue
		}
		spec := schema.Field(e.Target)
		if spec == nil {
			return nil, configErrorf("No field spec found: %s", e.Target)
		}
		if !t.Field.Put(e.Source, spec) {
			return nil, configErrorf("Duplicate field mapping for %q", e.Source)
		}
	}
	return t, nil
}

func resolveChoices(schema *types.Schema, category string, entries []Entry, table *Table[FieldTarget]) error {
	for _, e := range entries {
		if e.Target == "" {
			continue
		}
		name, value := SplitFieldValue(e.Target)
		spec := schema.Field(name)
		if spec == nil {
			return configErrorf("No field spec found: %s", name)
		}
		if !table.Put(e.Source, FieldTarget{Spec: spec, Value: value}) {
			return configErrorf("Duplicate %s mapping for %q", category, e.Source)
		}
	}
	return nil
}

// SplitFieldValue splits "FieldName::Value". A target without separator
// names only the field.
func SplitFieldValue(target string) (field, value string) {
	field, value, _ = strings.Cut(target, FieldSeparator)
	return field, value
}

// CheckFields verifies that the fields opts names for assignees, dates and
// progress exist in schema. The category field is exempt because a run
// creates it when missing.
func CheckFields(schema *types.Schema, opts *Options) error {
	for _, name := range []string{
		opts.AssigneesField,
		opts.StartDateField,
		opts.DueDateField,
		opts.DoneRatioField,
		opts.EstimatedHoursField,
	} {
		if name != "" && schema.Field(name) == nil {
			return configErrorf("No field spec found: %s", name)
		}
	}
	return nil
}
