package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/cotex-app/cotex/internal/middleware"
	"github.com/cotex-app/cotex/internal/models"
	"github.com/cotex-app/cotex/internal/render"
	"github.com/cotex-app/cotex/internal/repository"
	"github.com/cotex-app/cotex/internal/repository/repositorytest"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// noteStore is an in-memory NoteRepository with global slug uniqueness.
type noteStore struct {
	mu    sync.Mutex
	notes map[uuid.UUID]*models.Note
	// owners maps project IDs to their owner, for tag lookups.
	owners map[uuid.UUID]uuid.UUID
}

func newNoteStore() *noteStore {
	return &noteStore{
		notes:  make(map[uuid.UUID]*models.Note),
		owners: make(map[uuid.UUID]uuid.UUID),
	}
}

func (s *noteStore) Create(ctx context.Context, note *models.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notes {
		if n.Slug == note.Slug {
			return repository.ErrSlugTaken
		}
	}
	note.ID = uuid.New()
	stored := *note
	s.notes[note.ID] = &stored
	return nil
}

func (s *noteStore) GetByID(ctx context.Context, noteID uuid.UUID) (*models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[noteID]
	if !ok {
		return nil, nil
	}
	c := *n
	return &c, nil
}

func (s *noteStore) GetBySlug(ctx context.Context, slug string) (*models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notes {
		if n.Slug == slug {
			c := *n
			return &c, nil
		}
	}
	return nil, nil
}

func (s *noteStore) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Note, 0)
	for _, n := range s.notes {
		if n.ProjectID != nil && *n.ProjectID == projectID {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (s *noteStore) Update(ctx context.Context, note *models.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notes[note.ID]; !ok {
		return repository.ErrNotFound
	}
	stored := *note
	s.notes[note.ID] = &stored
	return nil
}

func (s *noteStore) Delete(ctx context.Context, noteID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notes[noteID]; !ok {
		return repository.ErrNotFound
	}
	delete(s.notes, noteID)
	return nil
}

func (s *noteStore) ListTags(ctx context.Context) ([]models.NoteTag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	tags := make([]models.NoteTag, 0)
	for _, n := range s.notes {
		for _, name := range n.Tags {
			// One tag row per slug; name variants share it.
			tagSlug := slug.Make(name)
			if seen[tagSlug] {
				continue
			}
			seen[tagSlug] = true
			tags = append(tags, models.NoteTag{ID: uuid.New(), Name: name, Slug: tagSlug})
		}
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags, nil
}

func (s *noteStore) ListByTag(ctx context.Context, ownerID uuid.UUID, tagSlug string) ([]models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Note, 0)
	for _, n := range s.notes {
		if n.ProjectID == nil || s.owners[*n.ProjectID] != ownerID {
			continue
		}
		for _, name := range n.Tags {
			if slug.Make(name) == tagSlug {
				out = append(out, *n)
				break
			}
		}
	}
	return out, nil
}

// ownedProjects is a ProjectRepository fake keyed by (owner, project).
type ownedProjects struct {
	projects map[uuid.UUID]*models.Project
}

func (p *ownedProjects) Create(ctx context.Context, ownerID uuid.UUID, name, description string) (*models.Project, error) {
	return nil, nil
}

func (p *ownedProjects) GetByID(ctx context.Context, ownerID, projectID uuid.UUID) (*models.Project, error) {
	proj, ok := p.projects[projectID]
	if !ok || proj.OwnerID != ownerID {
		return nil, nil
	}
	return proj, nil
}

func (p *ownedProjects) GetByRepo(ctx context.Context, repo, branch string) (*models.Project, error) {
	return nil, nil
}

func (p *ownedProjects) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Project, error) {
	return nil, nil
}

func (p *ownedProjects) LinkGithub(ctx context.Context, ownerID, projectID uuid.UUID, repo, branch string) (*models.Project, error) {
	return nil, nil
}

func (p *ownedProjects) Delete(ctx context.Context, ownerID, projectID uuid.UUID) error {
	return nil
}

type noteFixture struct {
	router  *gin.Engine
	store   *repositorytest.Store
	notes   *noteStore
	ownerID uuid.UUID
	project *models.Project
}

func newNoteFixture(t *testing.T) *noteFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ownerID := uuid.New()
	project := &models.Project{ID: uuid.New(), Name: "Quantum Thesis", OwnerID: ownerID}

	store := repositorytest.NewStore()
	notes := newNoteStore()
	notes.owners[project.ID] = ownerID
	handler := NewNoteHandler(
		notes, store.Files(), store.Folders(),
		&ownedProjects{projects: map[uuid.UUID]*models.Project{project.ID: project}},
		render.New(), zap.NewNop(),
	)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.ContextKeyUserID, ownerID)
		c.Set(middleware.ContextKeyVerified, true)
	})
	router.POST("/v1/notes", handler.Create)
	router.GET("/v1/notes/:noteID", handler.GetByID)
	router.GET("/v1/notes/slug/:slug", handler.GetBySlug)
	router.PUT("/v1/notes/:noteID", handler.Update)
	router.DELETE("/v1/notes/:noteID", handler.Delete)
	router.GET("/v1/tags", handler.ListTags)
	router.GET("/v1/tags/:slug/notes", handler.ListByTag)

	return &noteFixture{router: router, store: store, notes: notes, ownerID: ownerID, project: project}
}

func (f *noteFixture) do(t *testing.T, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestCreateNoteRequiresExactlyOneParent(t *testing.T) {
	f := newNoteFixture(t)
	fileID := uuid.New()

	for name, payload := range map[string]gin.H{
		"no parent":   {"content": "x"},
		"two parents": {"content": "x", "project_id": f.project.ID, "file_id": fileID},
		"all three":   {"content": "x", "project_id": f.project.ID, "file_id": fileID, "folder_id": uuid.New()},
	} {
		rec := f.do(t, http.MethodPost, "/v1/notes", payload)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, name)
	}
}

func TestCreateNoteDerivesTitleAndSlug(t *testing.T) {
	f := newNoteFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/notes", gin.H{
		"content":    "# Heading\n\n$$e=mc^2$$",
		"project_id": f.project.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var note models.Note
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &note))
	assert.Equal(t, "Notes on Quantum Thesis", note.Title)
	assert.Equal(t, "notes-on-quantum-thesis", note.Slug)
	assert.Contains(t, note.RenderedHTML, "<h1")
	assert.Contains(t, note.RenderedHTML, `<span class="latex-math">`)
	assert.Equal(t, []string{}, note.Tags)
}

func TestCreateNoteSlugCollisionRetries(t *testing.T) {
	f := newNoteFixture(t)
	payload := gin.H{"title": "Reading List", "content": "x", "project_id": f.project.ID}

	slugs := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		rec := f.do(t, http.MethodPost, "/v1/notes", payload)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var note models.Note
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &note))
		slugs = append(slugs, note.Slug)
	}

	assert.Equal(t, []string{"reading-list", "reading-list-2", "reading-list-3"}, slugs)
}

func TestCreateNoteOnFileUsesFileName(t *testing.T) {
	f := newNoteFixture(t)
	file, err := f.store.Files().Create(context.Background(), f.project.ID, nil, "main.tex", "", true)
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/v1/notes", gin.H{"content": "x", "file_id": file.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var note models.Note
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &note))
	assert.Equal(t, "Notes on main.tex", note.Title)
}

func TestCreateNoteRejectsForeignParent(t *testing.T) {
	f := newNoteFixture(t)
	// A file in a project this caller does not own.
	foreign, err := f.store.Files().Create(context.Background(), uuid.New(), nil, "secret.tex", "", false)
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/v1/notes", gin.H{"content": "x", "file_id": foreign.ID})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/notes", gin.H{"content": "x", "project_id": uuid.New()})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateNoteReRendersContent(t *testing.T) {
	f := newNoteFixture(t)
	rec := f.do(t, http.MethodPost, "/v1/notes", gin.H{
		"title": "Draft", "content": "plain", "project_id": f.project.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Note
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = f.do(t, http.MethodPut, "/v1/notes/"+created.ID.String(), gin.H{
		"content": "# Rewritten",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated models.Note
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Contains(t, updated.RenderedHTML, "<h1")
	// Title and slug are stable across content edits.
	assert.Equal(t, "Draft", updated.Title)
	assert.Equal(t, created.Slug, updated.Slug)
}

func TestDeleteNote(t *testing.T) {
	f := newNoteFixture(t)
	rec := f.do(t, http.MethodPost, "/v1/notes", gin.H{
		"title": "Gone", "content": "x", "project_id": f.project.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var note models.Note
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &note))

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/v1/notes/"+note.ID.String(), nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/v1/notes/"+note.ID.String(), nil).Code)
}

func TestTagEndpoints(t *testing.T) {
	f := newNoteFixture(t)

	for title, tags := range map[string][]string{
		"First":  {"physics", "draft"},
		"Second": {"physics"},
	} {
		rec := f.do(t, http.MethodPost, "/v1/notes", gin.H{
			"title": title, "content": "x", "project_id": f.project.ID, "tags": tags,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := f.do(t, http.MethodGet, "/v1/tags", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tags []models.NoteTag
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tags))
	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.Name)
	}
	assert.Equal(t, []string{"draft", "physics"}, names)

	rec = f.do(t, http.MethodGet, "/v1/tags/physics/notes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var notes []models.Note
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &notes))
	assert.Len(t, notes, 2)

	rec = f.do(t, http.MethodGet, "/v1/tags/draft/notes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	notes = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &notes))
	require.Len(t, notes, 1)
	assert.Equal(t, "First", notes[0].Title)

	// Unknown tag is an empty list, not an error.
	rec = f.do(t, http.MethodGet, "/v1/tags/nosuch/notes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", rec.Body.String())
}

func TestTagNameVariantsShareOneTag(t *testing.T) {
	f := newNoteFixture(t)

	// "Deep Learning" and "deep learning" slugify identically, so they must
	// land on one tag rather than erroring on the second note.
	for title, tag := range map[string]string{
		"Survey": "Deep Learning",
		"Ideas":  "deep learning",
	} {
		rec := f.do(t, http.MethodPost, "/v1/notes", gin.H{
			"title": title, "content": "x", "project_id": f.project.ID, "tags": []string{tag},
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := f.do(t, http.MethodGet, "/v1/tags", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tags []models.NoteTag
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tags))
	require.Len(t, tags, 1)
	assert.Equal(t, "deep-learning", tags[0].Slug)

	rec = f.do(t, http.MethodGet, "/v1/tags/deep-learning/notes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var notes []models.Note
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &notes))
	assert.Len(t, notes, 2)
}

func TestGetNoteBySlug(t *testing.T) {
	f := newNoteFixture(t)
	rec := f.do(t, http.MethodPost, "/v1/notes", gin.H{
		"title": "Lit Review", "content": "x", "project_id": f.project.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/notes/slug/lit-review", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var note models.Note
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &note))
	assert.Equal(t, "Lit Review", note.Title)

	rec = f.do(t, http.MethodGet, "/v1/notes/slug/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
