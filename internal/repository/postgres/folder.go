package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/cotex-app/cotex/internal/models"
	"github.com/cotex-app/cotex/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type FolderStore struct {
	pool *pgxpool.Pool
}

func NewFolderStore(pool *pgxpool.Pool) *FolderStore {
	return &FolderStore{pool: pool}
}

const folderColumns = `id, project_id, parent_id, name, created_at, updated_at`

func scanFolder(row pgx.Row) (*models.Folder, error) {
	var f models.Folder
	err := row.Scan(
		&f.ID,
		&f.ProjectID,
		&f.ParentID,
		&f.Name,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *FolderStore) Create(ctx context.Context, projectID uuid.UUID, parentID *uuid.UUID, name string) (*models.Folder, error) {
	query := `
		INSERT INTO folders (id, project_id, parent_id, name, created_at, updated_at)
		VALUES (uuid_generate_v4(), $1, $2, $3, now(), now())
		RETURNING ` + folderColumns

	f, err := scanFolder(s.pool.QueryRow(ctx, query, projectID, parentID, name))
	if err != nil {
		if mapped, ok := mapUnique(err); ok {
			return nil, mapped
		}
		return nil, fmt.Errorf("insert folder: %w", err)
	}
	return f, nil
}

func (s *FolderStore) GetByID(ctx context.Context, folderID uuid.UUID) (*models.Folder, error) {
	query := `
		SELECT ` + folderColumns + `
		FROM folders
		WHERE id = $1`

	f, err := scanFolder(s.pool.QueryRow(ctx, query, folderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get folder: %w", err)
	}
	return f, nil
}

// GetChild resolves one path segment. IS NOT DISTINCT FROM makes the nil
// parent (project root) comparable in the same query.
func (s *FolderStore) GetChild(ctx context.Context, projectID uuid.UUID, parentID *uuid.UUID, name string) (*models.Folder, error) {
	query := `
		SELECT ` + folderColumns + `
		FROM folders
		WHERE project_id = $1 AND parent_id IS NOT DISTINCT FROM $2 AND name = $3`

	f, err := scanFolder(s.pool.QueryRow(ctx, query, projectID, parentID, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get child folder: %w", err)
	}
	return f, nil
}

// GetOrCreateRoot upserts a root-level folder by name. The conflict target is
// the sibling-uniqueness constraint, so replaying the same event twice lands
// on the same row.
func (s *FolderStore) GetOrCreateRoot(ctx context.Context, projectID uuid.UUID, name string) (*models.Folder, error) {
	query := `
		INSERT INTO folders (id, project_id, parent_id, name, created_at, updated_at)
		VALUES (uuid_generate_v4(), $1, NULL, $2, now(), now())
		ON CONFLICT ON CONSTRAINT folders_project_parent_name_key
		DO UPDATE SET updated_at = now()
		RETURNING ` + folderColumns

	f, err := scanFolder(s.pool.QueryRow(ctx, query, projectID, name))
	if err != nil {
		return nil, fmt.Errorf("upsert root folder: %w", err)
	}
	return f, nil
}

func (s *FolderStore) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Folder, error) {
	query := `
		SELECT ` + folderColumns + `
		FROM folders
		WHERE project_id = $1
		ORDER BY name`

	rows, err := s.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	folders := make([]models.Folder, 0)
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		folders = append(folders, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate folders: %w", err)
	}

	return folders, nil
}

func (s *FolderStore) SetParent(ctx context.Context, folderID uuid.UUID, parentID *uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE folders SET parent_id = $2, updated_at = now() WHERE id = $1`,
		folderID, parentID)
	if err != nil {
		if mapped, ok := mapUnique(err); ok {
			return mapped
		}
		return fmt.Errorf("move folder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes the folder row; ON DELETE CASCADE on parent_id and on
// files.folder_id takes the whole subtree with it, depth-first.
func (s *FolderStore) Delete(ctx context.Context, folderID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM folders WHERE id = $1`, folderID)
	if err != nil {
		return fmt.Errorf("delete folder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
