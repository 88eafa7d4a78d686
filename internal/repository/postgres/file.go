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

type FileStore struct {
	pool *pgxpool.Pool
}

func NewFileStore(pool *pgxpool.Pool) *FileStore {
	return &FileStore{pool: pool}
}

const fileColumns = `id, project_id, folder_id, name, content, is_main, created_at, updated_at`

func scanFile(row pgx.Row) (*models.File, error) {
	var f models.File
	err := row.Scan(
		&f.ID,
		&f.ProjectID,
		&f.FolderID,
		&f.Name,
		&f.Content,
		&f.IsMain,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *FileStore) Create(ctx context.Context, projectID uuid.UUID, folderID *uuid.UUID, name, content string, isMain bool) (*models.File, error) {
	query := `
		INSERT INTO files (id, project_id, folder_id, name, content, is_main, created_at, updated_at)
		VALUES (uuid_generate_v4(), $1, $2, $3, $4, $5, now(), now())
		RETURNING ` + fileColumns

	f, err := scanFile(s.pool.QueryRow(ctx, query, projectID, folderID, name, content, isMain))
	if err != nil {
		if mapped, ok := mapUnique(err); ok {
			return nil, mapped
		}
		return nil, fmt.Errorf("insert file: %w", err)
	}
	return f, nil
}

func (s *FileStore) GetByID(ctx context.Context, fileID uuid.UUID) (*models.File, error) {
	query := `
		SELECT ` + fileColumns + `
		FROM files
		WHERE id = $1`

	f, err := scanFile(s.pool.QueryRow(ctx, query, fileID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get file: %w", err)
	}
	return f, nil
}

func (s *FileStore) GetByName(ctx context.Context, projectID uuid.UUID, folderID *uuid.UUID, name string) (*models.File, error) {
	query := `
		SELECT ` + fileColumns + `
		FROM files
		WHERE project_id = $1 AND folder_id IS NOT DISTINCT FROM $2 AND name = $3`

	f, err := scanFile(s.pool.QueryRow(ctx, query, projectID, folderID, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get file by name: %w", err)
	}
	return f, nil
}

// GetOrCreate upserts by the sibling natural key. Never flips is_main and
// never clobbers content — an existing row comes back as-is apart from
// updated_at, which is what makes event replay idempotent.
func (s *FileStore) GetOrCreate(ctx context.Context, projectID uuid.UUID, folderID *uuid.UUID, name string) (*models.File, error) {
	query := `
		INSERT INTO files (id, project_id, folder_id, name, content, is_main, created_at, updated_at)
		VALUES (uuid_generate_v4(), $1, $2, $3, '', false, now(), now())
		ON CONFLICT ON CONSTRAINT files_project_folder_name_key
		DO UPDATE SET updated_at = now()
		RETURNING ` + fileColumns

	f, err := scanFile(s.pool.QueryRow(ctx, query, projectID, folderID, name))
	if err != nil {
		return nil, fmt.Errorf("upsert file: %w", err)
	}
	return f, nil
}

// GetMain returns the single is_main file, or nil, nil. The partial unique
// index guarantees at most one row matches.
func (s *FileStore) GetMain(ctx context.Context, projectID uuid.UUID) (*models.File, error) {
	query := `
		SELECT ` + fileColumns + `
		FROM files
		WHERE project_id = $1 AND is_main = true`

	f, err := scanFile(s.pool.QueryRow(ctx, query, projectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get main file: %w", err)
	}
	return f, nil
}

func (s *FileStore) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.File, error) {
	query := `
		SELECT ` + fileColumns + `
		FROM files
		WHERE project_id = $1
		ORDER BY name`

	rows, err := s.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	files := make([]models.File, 0)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}

	return files, nil
}

func (s *FileStore) UpdateContent(ctx context.Context, fileID uuid.UUID, content string) (*models.File, error) {
	query := `
		UPDATE files
		SET content = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + fileColumns

	f, err := scanFile(s.pool.QueryRow(ctx, query, fileID, content))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("update file content: %w", err)
	}
	return f, nil
}

func (s *FileStore) Delete(ctx context.Context, fileID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM files WHERE id = $1`, fileID)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
