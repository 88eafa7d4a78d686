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

type ProjectStore struct {
	pool *pgxpool.Pool
}

func NewProjectStore(pool *pgxpool.Pool) *ProjectStore {
	return &ProjectStore{pool: pool}
}

const projectColumns = `id, name, description, owner_id, is_github_repo,
		COALESCE(github_repo, ''), github_branch, created_at, updated_at`

func scanProject(row pgx.Row) (*models.Project, error) {
	var p models.Project
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.OwnerID,
		&p.IsGithubRepo,
		&p.GithubRepo,
		&p.GithubBranch,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *ProjectStore) Create(ctx context.Context, ownerID uuid.UUID, name, description string) (*models.Project, error) {
	query := `
		INSERT INTO projects (id, name, description, owner_id, is_github_repo, github_branch, created_at, updated_at)
		VALUES (uuid_generate_v4(), $1, $2, $3, false, 'main', now(), now())
		RETURNING ` + projectColumns

	p, err := scanProject(s.pool.QueryRow(ctx, query, name, description, ownerID))
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	return p, nil
}

func (s *ProjectStore) GetByID(ctx context.Context, ownerID, projectID uuid.UUID) (*models.Project, error) {
	query := `
		SELECT ` + projectColumns + `
		FROM projects
		WHERE id = $1 AND owner_id = $2`

	p, err := scanProject(s.pool.QueryRow(ctx, query, projectID, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// GetByRepo is the webhook lookup: which project mirrors this repo+branch.
// Unscoped by owner — deliveries carry no user identity.
func (s *ProjectStore) GetByRepo(ctx context.Context, repo, branch string) (*models.Project, error) {
	query := `
		SELECT ` + projectColumns + `
		FROM projects
		WHERE is_github_repo = true AND github_repo = $1 AND github_branch = $2`

	p, err := scanProject(s.pool.QueryRow(ctx, query, repo, branch))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get project by repo: %w", err)
	}
	return p, nil
}

func (s *ProjectStore) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Project, error) {
	query := `
		SELECT ` + projectColumns + `
		FROM projects
		WHERE owner_id = $1
		ORDER BY updated_at DESC`

	rows, err := s.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := make([]models.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}

	return projects, nil
}

// LinkGithub flips the project to github-linked. There is no UnlinkGithub:
// the transition is one-way, enforced here in the UPDATE itself so two
// concurrent link requests cannot both win — the loser matches zero rows and
// gets ErrGithubUnlink.
func (s *ProjectStore) LinkGithub(ctx context.Context, ownerID, projectID uuid.UUID, repo, branch string) (*models.Project, error) {
	query := `
		UPDATE projects
		SET is_github_repo = true, github_repo = $3, github_branch = $4, updated_at = now()
		WHERE id = $1 AND owner_id = $2 AND is_github_repo = false
		RETURNING ` + projectColumns

	p, err := scanProject(s.pool.QueryRow(ctx, query, projectID, ownerID, repo, branch))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrGithubUnlink
		}
		return nil, fmt.Errorf("link project: %w", err)
	}
	return p, nil
}

func (s *ProjectStore) Delete(ctx context.Context, ownerID, projectID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM projects WHERE id = $1 AND owner_id = $2`, projectID, ownerID)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
