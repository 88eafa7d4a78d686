// Package repositorytest provides in-memory fakes of the repository
// interfaces for tests that exercise services and handlers without a
// database. The fakes enforce the same uniqueness rules the Postgres
// constraints do, so collision paths are testable.
package repositorytest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cotex-app/cotex/internal/models"
	"github.com/cotex-app/cotex/internal/repository"
	"github.com/google/uuid"
)

// Store holds the shared in-memory state. The per-interface views returned
// by Folders, Files and Events all operate on the same maps, so cross-store
// behavior (sibling collisions between files and folders, cascades) works
// the way it does against the real schema. All methods are safe for
// concurrent use.
type Store struct {
	mu      sync.Mutex
	folders map[uuid.UUID]*models.Folder
	files   map[uuid.UUID]*models.File
	events  []*models.FileEvent
	clock   int64

	// FailFiles makes file upserts for the named files fail — used to test
	// per-event failure isolation in reconciliation.
	FailFiles map[string]bool
}

func NewStore() *Store {
	return &Store{
		folders: make(map[uuid.UUID]*models.Folder),
		files:   make(map[uuid.UUID]*models.File),
	}
}

func (s *Store) Folders() repository.FolderRepository { return &folderStore{s} }
func (s *Store) Files() repository.FileRepository     { return &fileStore{s} }
func (s *Store) Events() repository.EventRepository   { return &eventStore{s} }

// Recorded returns a snapshot of every event ever recorded, in insertion
// order, including processed ones.
func (s *Store) Recorded() []models.FileEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.FileEvent, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, *cloneEvent(e))
	}
	return out
}

// tick produces strictly increasing timestamps so event ordering is stable
// even when the wall clock does not advance between calls.
func (s *Store) tick() time.Time {
	s.clock++
	return time.Unix(0, s.clock)
}

func sameParent(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (s *Store) findFolder(projectID uuid.UUID, parentID *uuid.UUID, name string) *models.Folder {
	for _, f := range s.folders {
		if f.ProjectID == projectID && sameParent(f.ParentID, parentID) && f.Name == name {
			return f
		}
	}
	return nil
}

func (s *Store) findFile(projectID uuid.UUID, folderID *uuid.UUID, name string) *models.File {
	for _, f := range s.files {
		if f.ProjectID == projectID && sameParent(f.FolderID, folderID) && f.Name == name {
			return f
		}
	}
	return nil
}

func (s *Store) findMain(projectID uuid.UUID) *models.File {
	for _, f := range s.files {
		if f.ProjectID == projectID && f.IsMain {
			return f
		}
	}
	return nil
}

// deleteSubtree mirrors the cascading foreign keys: depth-first removal of
// child folders and contained files.
func (s *Store) deleteSubtree(folderID uuid.UUID) {
	for id, f := range s.folders {
		if f.ParentID != nil && *f.ParentID == folderID {
			s.deleteSubtree(id)
		}
	}
	for id, f := range s.files {
		if f.FolderID != nil && *f.FolderID == folderID {
			delete(s.files, id)
		}
	}
	delete(s.folders, folderID)
}

type folderStore struct{ s *Store }

func (fs *folderStore) Create(ctx context.Context, projectID uuid.UUID, parentID *uuid.UUID, name string) (*models.Folder, error) {
	s := fs.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findFolder(projectID, parentID, name) != nil || s.findFile(projectID, parentID, name) != nil {
		return nil, repository.ErrNameCollision
	}
	f := &models.Folder{
		ID:        uuid.New(),
		ProjectID: projectID,
		ParentID:  cloneID(parentID),
		Name:      name,
		CreatedAt: s.tick(),
		UpdatedAt: s.tick(),
	}
	s.folders[f.ID] = f
	return cloneFolder(f), nil
}

func (fs *folderStore) GetByID(ctx context.Context, folderID uuid.UUID) (*models.Folder, error) {
	s := fs.s
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.folders[folderID]
	if !ok {
		return nil, nil
	}
	return cloneFolder(f), nil
}

func (fs *folderStore) GetChild(ctx context.Context, projectID uuid.UUID, parentID *uuid.UUID, name string) (*models.Folder, error) {
	s := fs.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if f := s.findFolder(projectID, parentID, name); f != nil {
		return cloneFolder(f), nil
	}
	return nil, nil
}

func (fs *folderStore) GetOrCreateRoot(ctx context.Context, projectID uuid.UUID, name string) (*models.Folder, error) {
	s := fs.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if f := s.findFolder(projectID, nil, name); f != nil {
		f.UpdatedAt = s.tick()
		return cloneFolder(f), nil
	}
	f := &models.Folder{
		ID:        uuid.New(),
		ProjectID: projectID,
		Name:      name,
		CreatedAt: s.tick(),
		UpdatedAt: s.tick(),
	}
	s.folders[f.ID] = f
	return cloneFolder(f), nil
}

func (fs *folderStore) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Folder, error) {
	s := fs.s
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Folder, 0)
	for _, f := range s.folders {
		if f.ProjectID == projectID {
			out = append(out, *cloneFolder(f))
		}
	}
	return out, nil
}

func (fs *folderStore) SetParent(ctx context.Context, folderID uuid.UUID, parentID *uuid.UUID) error {
	s := fs.s
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.folders[folderID]
	if !ok {
		return repository.ErrNotFound
	}
	if sib := s.findFolder(f.ProjectID, parentID, f.Name); sib != nil && sib.ID != folderID {
		return repository.ErrNameCollision
	}
	f.ParentID = cloneID(parentID)
	f.UpdatedAt = s.tick()
	return nil
}

func (fs *folderStore) Delete(ctx context.Context, folderID uuid.UUID) error {
	s := fs.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.folders[folderID]; !ok {
		return repository.ErrNotFound
	}
	s.deleteSubtree(folderID)
	return nil
}

type fileStore struct{ s *Store }

func (fs *fileStore) Create(ctx context.Context, projectID uuid.UUID, folderID *uuid.UUID, name, content string, isMain bool) (*models.File, error) {
	s := fs.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findFile(projectID, folderID, name) != nil || s.findFolder(projectID, folderID, name) != nil {
		return nil, repository.ErrNameCollision
	}
	if isMain && s.findMain(projectID) != nil {
		return nil, repository.ErrMainFileConflict
	}
	f := &models.File{
		ID:        uuid.New(),
		ProjectID: projectID,
		FolderID:  cloneID(folderID),
		Name:      name,
		Content:   content,
		IsMain:    isMain,
		CreatedAt: s.tick(),
		UpdatedAt: s.tick(),
	}
	s.files[f.ID] = f
	return cloneFile(f), nil
}

func (fs *fileStore) GetByID(ctx context.Context, fileID uuid.UUID) (*models.File, error) {
	s := fs.s
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[fileID]
	if !ok {
		return nil, nil
	}
	return cloneFile(f), nil
}

func (fs *fileStore) GetByName(ctx context.Context, projectID uuid.UUID, folderID *uuid.UUID, name string) (*models.File, error) {
	s := fs.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if f := s.findFile(projectID, folderID, name); f != nil {
		return cloneFile(f), nil
	}
	return nil, nil
}

func (fs *fileStore) GetOrCreate(ctx context.Context, projectID uuid.UUID, folderID *uuid.UUID, name string) (*models.File, error) {
	s := fs.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailFiles[name] {
		return nil, errors.New("injected failure")
	}
	if f := s.findFile(projectID, folderID, name); f != nil {
		f.UpdatedAt = s.tick()
		return cloneFile(f), nil
	}
	f := &models.File{
		ID:        uuid.New(),
		ProjectID: projectID,
		FolderID:  cloneID(folderID),
		Name:      name,
		CreatedAt: s.tick(),
		UpdatedAt: s.tick(),
	}
	s.files[f.ID] = f
	return cloneFile(f), nil
}

func (fs *fileStore) GetMain(ctx context.Context, projectID uuid.UUID) (*models.File, error) {
	s := fs.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if f := s.findMain(projectID); f != nil {
		return cloneFile(f), nil
	}
	return nil, nil
}

func (fs *fileStore) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.File, error) {
	s := fs.s
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.File, 0)
	for _, f := range s.files {
		if f.ProjectID == projectID {
			out = append(out, *cloneFile(f))
		}
	}
	return out, nil
}

func (fs *fileStore) UpdateContent(ctx context.Context, fileID uuid.UUID, content string) (*models.File, error) {
	s := fs.s
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[fileID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	f.Content = content
	f.UpdatedAt = s.tick()
	return cloneFile(f), nil
}

func (fs *fileStore) Delete(ctx context.Context, fileID uuid.UUID) error {
	s := fs.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[fileID]; !ok {
		return repository.ErrNotFound
	}
	delete(s.files, fileID)
	return nil
}

type eventStore struct{ s *Store }

func (es *eventStore) Record(ctx context.Context, projectID uuid.UUID, filePath, fileName, eventType string) (*models.FileEvent, error) {
	s := es.s
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &models.FileEvent{
		ID:        uuid.New(),
		ProjectID: projectID,
		FilePath:  filePath,
		FileName:  fileName,
		EventType: eventType,
		Timestamp: s.tick(),
	}
	s.events = append(s.events, e)
	return cloneEvent(e), nil
}

func (es *eventStore) ListUnprocessed(ctx context.Context, projectID uuid.UUID) ([]models.FileEvent, error) {
	s := es.s
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.FileEvent, 0)
	for _, e := range s.events {
		if e.ProjectID == projectID && !e.Processed {
			out = append(out, *cloneEvent(e))
		}
	}
	return out, nil
}

func (es *eventStore) MarkProcessed(ctx context.Context, eventID uuid.UUID) error {
	s := es.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.ID == eventID {
			e.Processed = true
			return nil
		}
	}
	return repository.ErrNotFound
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneFolder(f *models.Folder) *models.Folder {
	c := *f
	c.ParentID = cloneID(f.ParentID)
	return &c
}

func cloneFile(f *models.File) *models.File {
	c := *f
	c.FolderID = cloneID(f.FolderID)
	return &c
}

func cloneEvent(e *models.FileEvent) *models.FileEvent {
	c := *e
	return &c
}
