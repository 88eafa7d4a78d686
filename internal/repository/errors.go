package repository

import (
	"errors"
	"fmt"
)

// Domain error taxonomy. Stores translate storage-layer constraint violations
// into these sentinels so handlers can map them to status codes without
// knowing anything about Postgres.
var (
	// ErrNotFound is returned when an entity or path segment does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNameCollision is returned when a sibling with the same name already
	// exists under the same parent within the same project.
	ErrNameCollision = errors.New("name already used by a sibling")

	// ErrMainFileConflict is returned when a second file in the same project
	// is flagged as the main compilation entry point.
	ErrMainFileConflict = errors.New("project already has a main file")

	// ErrSlugTaken is returned when a note or tag slug is already in use.
	ErrSlugTaken = errors.New("slug already in use")

	// ErrCycle is returned when a folder move would parent a folder to itself
	// or to one of its own descendants.
	ErrCycle = errors.New("cannot move a folder into its own subtree")

	// ErrGithubUnlink is returned on an attempt to unlink a github-linked
	// project. The transition is one-way.
	ErrGithubUnlink = errors.New("github-linked project cannot be unlinked")
)

// ValidationError reports a malformed entity, e.g. a note that references
// zero or more than one parent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}
