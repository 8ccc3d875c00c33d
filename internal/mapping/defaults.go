package mapping

import (
	"github.com/steveyegge/rmimport/internal/types"
)

// Default targets for the stock Redmine enumerations.
var (
	DefaultStatusTargets = map[string]string{
		"New":         "Open",
		"In Progress": "Open",
		"Resolved":    "Open",
		"Feedback":    "Open",
		"Closed":      "Closed",
		"Rejected":    "Closed",
	}

	DefaultTrackerTargets = map[string]string{
		"Bug":     "Type::Bug",
		"Feature": "Type::New Feature",
		"Task":    "Type::Task",
	}

	DefaultPriorityTargets = map[string]string{
		"Low":       "Priority::Minor",
		"Normal":    "Priority::Normal",
		"High":      "Priority::Major",
		"Urgent":    "Priority::Critical",
		"Immediate": "Priority::Critical",
	}
)

// SourceCategories are the enumeration values discovered on the source.
type SourceCategories struct {
	Statuses     []string
	Trackers     []string
	Priorities   []string
	CustomFields []string // issue custom fields only
}

// Defaults proposes options for the discovered source categories. A source
// value whose name is also a valid target wins over the stock table, and
// only targets the schema can satisfy are proposed, so the result always
// resolves.
func Defaults(schema *types.Schema, src SourceCategories) *Options {
	opts := DefaultOptions()
	if schema.Field(opts.AssigneesField) == nil {
		opts.AssigneesField = ""
	}

	for _, status := range src.Statuses {
		target := ""
		if schema.HasState(status) {
			target = status
		} else if def, ok := DefaultStatusTargets[status]; ok && schema.HasState(def) {
			target = def
		}
		opts.StatusMappings = append(opts.StatusMappings, Entry{Source: status, Target: target})
	}

	for _, tracker := range src.Trackers {
		opts.TrackerMappings = append(opts.TrackerMappings,
			Entry{Source: tracker, Target: defaultChoice(schema, "Type", tracker, DefaultTrackerTargets)})
	}
	for _, priority := range src.Priorities {
		opts.PriorityMappings = append(opts.PriorityMappings,
			Entry{Source: priority, Target: defaultChoice(schema, "Priority", priority, DefaultPriorityTargets)})
	}

	for _, field := range src.CustomFields {
		target := ""
		if schema.Field(field) != nil {
			target = field
		}
		opts.FieldMappings = append(opts.FieldMappings, Entry{Source: field, Target: target})
	}
	return opts
}

func defaultChoice(schema *types.Schema, field, source string, stock map[string]string) string {
	candidates := []string{field + FieldSeparator + source}
	if def, ok := stock[source]; ok {
		candidates = append(candidates, def)
	}
	for _, c := range candidates {
		name, value := SplitFieldValue(c)
		if spec := schema.Field(name); spec != nil && hasChoice(spec, value) {
			return c
		}
	}
	return ""
}

func hasChoice(spec *types.FieldSpec, value string) bool {
	for _, c := range spec.Choices {
		if c == value {
			return true
		}
	}
	return false
}
