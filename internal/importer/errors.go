package importer

import (
	"fmt"

	"github.com/steveyegge/rmimport/internal/mapping"
	"github.com/steveyegge/rmimport/internal/redmine"
)

// ErrInterrupted is returned when a run is cancelled. Nothing has been
// persisted when it is returned.
var ErrInterrupted = redmine.ErrInterrupted

// ConflictError reports that a preserved source number is already taken in
// the target project. It is a configuration error: the run stops before
// anything is persisted.
type ConflictError struct {
	Number int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("An issue with ID %d already exists", e.Number)
}

// Is makes ConflictError match mapping.ErrConfiguration.
func (e *ConflictError) Is(target error) bool {
	return target == mapping.ErrConfiguration
}
