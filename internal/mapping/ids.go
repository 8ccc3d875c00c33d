package mapping

import (
	"strconv"
	"strings"
)

// MaxImportIssueIDs bounds an explicit issue id selection.
const MaxImportIssueIDs = 300

// ParseIssueIDs expands a selection such as "1-5, 9" into the comma
// separated list Redmine's issue_id filter accepts. An empty selection
// returns "".
func ParseIssueIDs(selection string) (string, error) {
	selection = strings.TrimSpace(selection)
	if selection == "" {
		return "", nil
	}

	var ids []string
	for _, part := range strings.Split(selection, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		if !isRange {
			if _, err := strconv.ParseInt(part, 10, 64); err != nil {
				return "", configErrorf("Invalid issue ID %q", part)
			}
			ids = append(ids, part)
			continue
		}

		from, err1 := strconv.ParseInt(strings.TrimSpace(lo), 10, 64)
		to, err2 := strconv.ParseInt(strings.TrimSpace(hi), 10, 64)
		if err1 != nil || err2 != nil || from > to {
			return "", configErrorf("Invalid issue ID range %q", part)
		}
		if to-from >= MaxImportIssueIDs {
			return "", configErrorf("Too many issue IDs in range %q (maximum %d)", part, MaxImportIssueIDs)
		}
		for id := from; id <= to; id++ {
			ids = append(ids, strconv.FormatInt(id, 10))
		}
		if len(ids) > MaxImportIssueIDs {
			break
		}
	}

	if len(ids) > MaxImportIssueIDs {
		return "", configErrorf("Too many issue IDs (maximum %d)", MaxImportIssueIDs)
	}
	return strings.Join(ids, ","), nil
}
