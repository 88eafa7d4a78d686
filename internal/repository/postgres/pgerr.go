package postgres

import (
	"errors"

	"github.com/cotex-app/cotex/internal/repository"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// mapUnique translates a unique-constraint violation into the domain error
// for the violated constraint. The constraint is the enforcement point —
// there is no check-then-insert anywhere, so concurrent sibling creations
// race at the index and exactly one wins.
func mapUnique(err error) (error, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err, false
	}
	switch pgErr.ConstraintName {
	case "files_one_main_per_project":
		return repository.ErrMainFileConflict, true
	case "folders_project_parent_name_key", "files_project_folder_name_key":
		return repository.ErrNameCollision, true
	case "notes_slug_key", "note_tags_name_key", "note_tags_slug_key":
		return repository.ErrSlugTaken, true
	}
	return err, false
}
