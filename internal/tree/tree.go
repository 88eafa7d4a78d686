// Package tree maintains the folder/file hierarchy of a project: sibling
// uniqueness, path resolution, full-path derivation, and cycle-guarded moves.
// Uniqueness itself lives in the storage constraints; this service adds the
// walking logic and the structural guarantees the store cannot express.
package tree

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cotex-app/cotex/internal/models"
	"github.com/cotex-app/cotex/internal/repository"
	"github.com/google/uuid"
)

// Node is the terminal of a path resolution: exactly one of File or Folder
// is non-nil.
type Node struct {
	File   *models.File
	Folder *models.Folder
}

type Service struct {
	folders repository.FolderRepository
	files   repository.FileRepository
}

func NewService(folders repository.FolderRepository, files repository.FileRepository) *Service {
	return &Service{folders: folders, files: files}
}

// CreateFolder creates a folder under parentID (nil = project root).
// A sibling name clash surfaces as repository.ErrNameCollision from the
// store's unique constraint — never from a lookup race.
func (s *Service) CreateFolder(ctx context.Context, projectID uuid.UUID, parentID *uuid.UUID, name string) (*models.Folder, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if parentID != nil {
		parent, err := s.folders.GetByID(ctx, *parentID)
		if err != nil {
			return nil, err
		}
		if parent == nil || parent.ProjectID != projectID {
			return nil, fmt.Errorf("parent folder: %w", repository.ErrNotFound)
		}
	}
	return s.folders.Create(ctx, projectID, parentID, name)
}

// CreateFile creates a file in folderID (nil = project root). Requesting
// isMain when the project already has a main file surfaces as
// repository.ErrMainFileConflict from the partial unique index.
func (s *Service) CreateFile(ctx context.Context, projectID uuid.UUID, folderID *uuid.UUID, name, content string, isMain bool) (*models.File, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if folderID != nil {
		folder, err := s.folders.GetByID(ctx, *folderID)
		if err != nil {
			return nil, err
		}
		if folder == nil || folder.ProjectID != projectID {
			return nil, fmt.Errorf("folder: %w", repository.ErrNotFound)
		}
	}
	return s.files.Create(ctx, projectID, folderID, name, content, isMain)
}

// MoveFolder re-parents a folder. Cycles are prevented here, structurally:
// a folder may not become its own parent, nor move under any of its own
// descendants. Because every mutation passes this check, FullPath never has
// to detect loops at read time.
func (s *Service) MoveFolder(ctx context.Context, projectID, folderID uuid.UUID, newParentID *uuid.UUID) error {
	folder, err := s.folders.GetByID(ctx, folderID)
	if err != nil {
		return err
	}
	if folder == nil || folder.ProjectID != projectID {
		return repository.ErrNotFound
	}

	if newParentID != nil {
		if *newParentID == folderID {
			return repository.ErrCycle
		}
		parent, err := s.folders.GetByID(ctx, *newParentID)
		if err != nil {
			return err
		}
		if parent == nil || parent.ProjectID != projectID {
			return fmt.Errorf("target folder: %w", repository.ErrNotFound)
		}
		// Walk the target's ancestor chain; hitting the moved folder means
		// the target sits inside its subtree.
		for cur := parent; cur.ParentID != nil; {
			if *cur.ParentID == folderID {
				return repository.ErrCycle
			}
			cur, err = s.folders.GetByID(ctx, *cur.ParentID)
			if err != nil {
				return err
			}
			if cur == nil {
				break
			}
		}
	}

	return s.folders.SetParent(ctx, folderID, newParentID)
}

// ResolvePath walks a /-delimited path from the project root and returns the
// terminal file or folder. Any missing segment is repository.ErrNotFound.
func (s *Service) ResolvePath(ctx context.Context, projectID uuid.UUID, path string) (*Node, error) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return nil, fmt.Errorf("empty path: %w", repository.ErrNotFound)
	}

	var parentID *uuid.UUID
	for _, segment := range segments[:len(segments)-1] {
		folder, err := s.folders.GetChild(ctx, projectID, parentID, segment)
		if err != nil {
			return nil, err
		}
		if folder == nil {
			return nil, fmt.Errorf("segment %q: %w", segment, repository.ErrNotFound)
		}
		parentID = &folder.ID
	}

	// The terminal segment may be a file or a folder; files win the tie the
	// way a path ending in a name usually means the file.
	last := segments[len(segments)-1]
	file, err := s.files.GetByName(ctx, projectID, parentID, last)
	if err != nil {
		return nil, err
	}
	if file != nil {
		return &Node{File: file}, nil
	}

	folder, err := s.folders.GetChild(ctx, projectID, parentID, last)
	if err != nil {
		return nil, err
	}
	if folder != nil {
		return &Node{Folder: folder}, nil
	}

	return nil, fmt.Errorf("segment %q: %w", last, repository.ErrNotFound)
}

// FullPath derives the /-joined path of a node by walking parent links to the
// root. O(depth); the chain is acyclic by construction (see MoveFolder).
func (s *Service) FullPath(ctx context.Context, node *Node) (string, error) {
	switch {
	case node == nil:
		return "", errors.New("nil node")
	case node.File != nil:
		prefix, err := s.folderPath(ctx, node.File.FolderID)
		if err != nil {
			return "", err
		}
		return prefix + node.File.Name, nil
	case node.Folder != nil:
		prefix, err := s.folderPath(ctx, node.Folder.ParentID)
		if err != nil {
			return "", err
		}
		return prefix + node.Folder.Name, nil
	}
	return "", errors.New("node references neither file nor folder")
}

func (s *Service) folderPath(ctx context.Context, folderID *uuid.UUID) (string, error) {
	names := make([]string, 0, 4)
	for id := folderID; id != nil; {
		folder, err := s.folders.GetByID(ctx, *id)
		if err != nil {
			return "", err
		}
		if folder == nil {
			return "", fmt.Errorf("ancestor folder: %w", repository.ErrNotFound)
		}
		names = append(names, folder.Name)
		id = folder.ParentID
	}
	if len(names) == 0 {
		return "", nil
	}
	// names are leaf-first; reverse into root-first order.
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, "/") + "/", nil
}

// DeleteFolder removes a folder and, through the store's cascading keys,
// every descendant folder and file.
func (s *Service) DeleteFolder(ctx context.Context, projectID, folderID uuid.UUID) error {
	folder, err := s.folders.GetByID(ctx, folderID)
	if err != nil {
		return err
	}
	if folder == nil || folder.ProjectID != projectID {
		return repository.ErrNotFound
	}
	return s.folders.Delete(ctx, folderID)
}

// DeleteFile removes a single file leaf.
func (s *Service) DeleteFile(ctx context.Context, projectID, fileID uuid.UUID) error {
	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		return err
	}
	if file == nil || file.ProjectID != projectID {
		return repository.ErrNotFound
	}
	return s.files.Delete(ctx, fileID)
}

// FileEntry is a content-free file listing for structure responses.
type FileEntry struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	IsMain bool      `json:"is_main"`
}

// FolderNode is one folder in a nested structure listing.
type FolderNode struct {
	ID      uuid.UUID     `json:"id"`
	Name    string        `json:"name"`
	Folders []*FolderNode `json:"folders"`
	Files   []FileEntry   `json:"files"`
}

// Structure is a project's whole tree without file contents.
type Structure struct {
	Folders []*FolderNode `json:"folders"`
	Files   []FileEntry   `json:"files"`
}

// Structure assembles the nested folder/file layout of a project in two
// queries plus an in-memory stitch.
func (s *Service) Structure(ctx context.Context, projectID uuid.UUID) (*Structure, error) {
	folders, err := s.folders.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	files, err := s.files.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	nodes := make(map[uuid.UUID]*FolderNode, len(folders))
	for _, f := range folders {
		nodes[f.ID] = &FolderNode{
			ID:      f.ID,
			Name:    f.Name,
			Folders: make([]*FolderNode, 0),
			Files:   make([]FileEntry, 0),
		}
	}

	out := &Structure{
		Folders: make([]*FolderNode, 0),
		Files:   make([]FileEntry, 0),
	}
	for _, f := range folders {
		node := nodes[f.ID]
		if f.ParentID != nil {
			if parent, ok := nodes[*f.ParentID]; ok {
				parent.Folders = append(parent.Folders, node)
				continue
			}
		}
		out.Folders = append(out.Folders, node)
	}
	for _, f := range files {
		entry := FileEntry{ID: f.ID, Name: f.Name, IsMain: f.IsMain}
		if f.FolderID != nil {
			if parent, ok := nodes[*f.FolderID]; ok {
				parent.Files = append(parent.Files, entry)
				continue
			}
		}
		out.Files = append(out.Files, entry)
	}

	return out, nil
}

func validateName(name string) error {
	if name == "" || strings.Contains(name, "/") {
		return &repository.ValidationError{Field: "name", Message: "must be non-empty and contain no '/'"}
	}
	return nil
}

func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	segments := parts[:0]
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}
