package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/cotex-app/cotex/internal/models"
	"github.com/cotex-app/cotex/internal/repository"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type NoteStore struct {
	pool *pgxpool.Pool
}

func NewNoteStore(pool *pgxpool.Pool) *NoteStore {
	return &NoteStore{pool: pool}
}

// noteColumns aggregates tag names into a text[] so a note round-trips with
// its tags in one query.
const noteColumns = `
		n.id, n.title, n.slug, n.content, n.rendered_html,
		n.file_id, n.folder_id, n.project_id, n.created_at, n.updated_at,
		COALESCE(array_agg(t.name ORDER BY t.name) FILTER (WHERE t.name IS NOT NULL), '{}')`

const noteJoins = `
		FROM notes n
		LEFT JOIN note_taggings nt ON nt.note_id = n.id
		LEFT JOIN note_tags t ON t.id = nt.tag_id`

func scanNote(row pgx.Row) (*models.Note, error) {
	var n models.Note
	err := row.Scan(
		&n.ID,
		&n.Title,
		&n.Slug,
		&n.Content,
		&n.RenderedHTML,
		&n.FileID,
		&n.FolderID,
		&n.ProjectID,
		&n.CreatedAt,
		&n.UpdatedAt,
		&n.Tags,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *NoteStore) Create(ctx context.Context, note *models.Note) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO notes (id, title, slug, content, rendered_html, file_id, folder_id, project_id, created_at, updated_at)
		VALUES (uuid_generate_v4(), $1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING id, created_at, updated_at`

	err = tx.QueryRow(ctx, query,
		note.Title, note.Slug, note.Content, note.RenderedHTML,
		note.FileID, note.FolderID, note.ProjectID,
	).Scan(&note.ID, &note.CreatedAt, &note.UpdatedAt)
	if err != nil {
		if mapped, ok := mapUnique(err); ok {
			return mapped
		}
		return fmt.Errorf("insert note: %w", err)
	}

	if err := replaceTags(ctx, tx, note.ID, note.Tags); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *NoteStore) GetByID(ctx context.Context, noteID uuid.UUID) (*models.Note, error) {
	query := `SELECT ` + noteColumns + noteJoins + `
		WHERE n.id = $1
		GROUP BY n.id`

	n, err := scanNote(s.pool.QueryRow(ctx, query, noteID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get note: %w", err)
	}
	return n, nil
}

func (s *NoteStore) GetBySlug(ctx context.Context, noteSlug string) (*models.Note, error) {
	query := `SELECT ` + noteColumns + noteJoins + `
		WHERE n.slug = $1
		GROUP BY n.id`

	n, err := scanNote(s.pool.QueryRow(ctx, query, noteSlug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get note by slug: %w", err)
	}
	return n, nil
}

func (s *NoteStore) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Note, error) {
	// Covers notes attached to the project itself and to any of its files
	// or folders.
	query := `SELECT ` + noteColumns + noteJoins + `
		WHERE n.project_id = $1
		   OR n.file_id IN (SELECT id FROM files WHERE project_id = $1)
		   OR n.folder_id IN (SELECT id FROM folders WHERE project_id = $1)
		GROUP BY n.id
		ORDER BY n.updated_at DESC`

	rows, err := s.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	notes := make([]models.Note, 0)
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}

	return notes, nil
}

func (s *NoteStore) Update(ctx context.Context, note *models.Note) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE notes
		SET title = $2, content = $3, rendered_html = $4, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err = tx.QueryRow(ctx, query, note.ID, note.Title, note.Content, note.RenderedHTML).
		Scan(&note.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("update note: %w", err)
	}

	if err := replaceTags(ctx, tx, note.ID, note.Tags); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *NoteStore) Delete(ctx context.Context, noteID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM notes WHERE id = $1`, noteID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *NoteStore) ListTags(ctx context.Context) ([]models.NoteTag, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, slug FROM note_tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	tags := make([]models.NoteTag, 0)
	for rows.Next() {
		var t models.NoteTag
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}

	return tags, nil
}

// ListByTag is owner-scoped the hard way: a note hangs off a file, a folder,
// or a project, so ownership resolves through whichever parent it has.
func (s *NoteStore) ListByTag(ctx context.Context, ownerID uuid.UUID, tagSlug string) ([]models.Note, error) {
	query := `SELECT ` + noteColumns + noteJoins + `
		WHERE n.id IN (
			SELECT nt2.note_id
			FROM note_taggings nt2
			JOIN note_tags t2 ON t2.id = nt2.tag_id
			WHERE t2.slug = $2
		)
		AND (
			n.project_id IN (SELECT id FROM projects WHERE owner_id = $1)
			OR n.file_id IN (
				SELECT f.id FROM files f
				JOIN projects p ON p.id = f.project_id
				WHERE p.owner_id = $1)
			OR n.folder_id IN (
				SELECT f.id FROM folders f
				JOIN projects p ON p.id = f.project_id
				WHERE p.owner_id = $1)
		)
		GROUP BY n.id
		ORDER BY n.updated_at DESC`

	rows, err := s.pool.Query(ctx, query, ownerID, tagSlug)
	if err != nil {
		return nil, fmt.Errorf("list notes by tag: %w", err)
	}
	defer rows.Close()

	notes := make([]models.Note, 0)
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}

	return notes, nil
}

// replaceTags rewrites a note's tag set: taggings are dropped and rebuilt,
// tag rows themselves are shared and upserted by slug, so name variants that
// slugify the same ("My Tag", "my tag") land on one tag row. The slug is the
// arbiter because two equal names always produce the same slug, never the
// other way around.
func replaceTags(ctx context.Context, tx pgx.Tx, noteID uuid.UUID, tags []string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM note_taggings WHERE note_id = $1`, noteID); err != nil {
		return fmt.Errorf("clear taggings: %w", err)
	}

	for _, name := range tags {
		var tagID uuid.UUID
		err := tx.QueryRow(ctx, `
			INSERT INTO note_tags (id, name, slug)
			VALUES (uuid_generate_v4(), $1, $2)
			ON CONFLICT (slug) DO UPDATE SET slug = EXCLUDED.slug
			RETURNING id`,
			name, slug.Make(name),
		).Scan(&tagID)
		if err != nil {
			return fmt.Errorf("upsert tag %q: %w", name, err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO note_taggings (note_id, tag_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING`,
			noteID, tagID,
		); err != nil {
			return fmt.Errorf("insert tagging: %w", err)
		}
	}
	return nil
}
