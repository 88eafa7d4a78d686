package repositorytest

import (
	"context"
	"sync"
	"time"

	"github.com/cotex-app/cotex/internal/models"
	"github.com/cotex-app/cotex/internal/repository"
	"github.com/google/uuid"
)

// ProjectStore is an in-memory ProjectRepository. Lookups are owner-scoped
// the same way the SQL queries are: a foreign project reads as absent.
type ProjectStore struct {
	mu       sync.Mutex
	projects map[uuid.UUID]*models.Project
}

func NewProjectStore() *ProjectStore {
	return &ProjectStore{projects: make(map[uuid.UUID]*models.Project)}
}

func (s *ProjectStore) Create(ctx context.Context, ownerID uuid.UUID, name, description string) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	p := &models.Project{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		OwnerID:     ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.projects[p.ID] = p
	return cloneProject(p), nil
}

func (s *ProjectStore) GetByID(ctx context.Context, ownerID, projectID uuid.UUID) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok || p.OwnerID != ownerID {
		return nil, nil
	}
	return cloneProject(p), nil
}

func (s *ProjectStore) GetByRepo(ctx context.Context, repo, branch string) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.projects {
		if p.IsGithubRepo && p.GithubRepo == repo && p.GithubBranch == branch {
			return cloneProject(p), nil
		}
	}
	return nil, nil
}

func (s *ProjectStore) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Project, 0)
	for _, p := range s.projects {
		if p.OwnerID == ownerID {
			out = append(out, *cloneProject(p))
		}
	}
	return out, nil
}

func (s *ProjectStore) LinkGithub(ctx context.Context, ownerID, projectID uuid.UUID, repo, branch string) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok || p.OwnerID != ownerID {
		return nil, nil
	}
	// One-way transition, enforced at the store like the SQL guard.
	if p.IsGithubRepo {
		return nil, repository.ErrGithubUnlink
	}
	p.IsGithubRepo = true
	p.GithubRepo = repo
	p.GithubBranch = branch
	p.UpdatedAt = time.Now()
	return cloneProject(p), nil
}

func (s *ProjectStore) Delete(ctx context.Context, ownerID, projectID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok || p.OwnerID != ownerID {
		return repository.ErrNotFound
	}
	delete(s.projects, projectID)
	return nil
}

func cloneProject(p *models.Project) *models.Project {
	c := *p
	return &c
}
