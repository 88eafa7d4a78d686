package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cotex-app/cotex/internal/middleware"
	"github.com/cotex-app/cotex/internal/models"
	"github.com/cotex-app/cotex/internal/render"
	"github.com/cotex-app/cotex/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

// slugAttempts bounds the collision-retry loop when deriving a unique slug.
const slugAttempts = 20

type NoteHandler struct {
	notes    repository.NoteRepository
	files    repository.FileRepository
	folders  repository.FolderRepository
	projects repository.ProjectRepository
	renderer *render.Renderer
	logger   *zap.Logger
}

func NewNoteHandler(
	notes repository.NoteRepository,
	files repository.FileRepository,
	folders repository.FolderRepository,
	projects repository.ProjectRepository,
	renderer *render.Renderer,
	logger *zap.Logger,
) *NoteHandler {
	return &NoteHandler{
		notes:    notes,
		files:    files,
		folders:  folders,
		projects: projects,
		renderer: renderer,
		logger:   logger,
	}
}

type noteRequest struct {
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	FileID    *uuid.UUID `json:"file_id"`
	FolderID  *uuid.UUID `json:"folder_id"`
	ProjectID *uuid.UUID `json:"project_id"`
	Tags      []string   `json:"tags"`
}

// Create handles POST /v1/notes. The note must reference exactly one parent
// among file/folder/project; content is rendered before persistence so the
// cached HTML is never stale relative to the raw text.
func (h *NoteHandler) Create(c *gin.Context) {
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	parentName, err := h.resolveParent(c, req.FileID, req.FolderID, req.ProjectID)
	if err != nil {
		writeDomainError(c, h.logger, err, "failed to create note")
		return
	}

	title := req.Title
	if title == "" {
		title = fmt.Sprintf("Notes on %s", parentName)
	}
	tags := req.Tags
	if tags == nil {
		tags = []string{}
	}

	note := &models.Note{
		Title:        title,
		Content:      req.Content,
		RenderedHTML: h.renderer.Render(req.Content),
		FileID:       req.FileID,
		FolderID:     req.FolderID,
		ProjectID:    req.ProjectID,
		Tags:         tags,
	}

	// Slug uniqueness is global; on collision, retry with a counter suffix
	// until the insert lands.
	base := slug.Make(title)
	var createErr error
	for attempt := 1; attempt <= slugAttempts; attempt++ {
		note.Slug = base
		if attempt > 1 {
			note.Slug = fmt.Sprintf("%s-%d", base, attempt)
		}
		createErr = h.notes.Create(c.Request.Context(), note)
		if !errors.Is(createErr, repository.ErrSlugTaken) {
			break
		}
	}
	if createErr != nil {
		writeDomainError(c, h.logger, createErr, "failed to create note")
		return
	}

	c.JSON(http.StatusCreated, note)
}

// GetByID handles GET /v1/notes/:noteID
func (h *NoteHandler) GetByID(c *gin.Context) {
	note, ok := h.ownedNote(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, note)
}

// GetBySlug handles GET /v1/notes/slug/:slug — slugs are globally unique,
// so this is a direct lookup plus the same ownership check as by-id reads.
func (h *NoteHandler) GetBySlug(c *gin.Context) {
	note, err := h.notes.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.logger.Error("failed to get note by slug", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get note"})
		return
	}
	if note == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "note not found"})
		return
	}
	if _, err := h.resolveParent(c, note.FileID, note.FolderID, note.ProjectID); err != nil {
		writeDomainError(c, h.logger, err, "failed to get note")
		return
	}
	c.JSON(http.StatusOK, note)
}

// ListByProject handles GET /v1/projects/:id/notes — notes attached to the
// project itself or to any of its files and folders.
func (h *NoteHandler) ListByProject(c *gin.Context) {
	ownerID := middleware.GetUserID(c)
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}
	project, err := h.projects.GetByID(c.Request.Context(), ownerID, projectID)
	if err != nil {
		h.logger.Error("failed to get project", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list notes"})
		return
	}
	if project == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}

	notes, err := h.notes.ListByProject(c.Request.Context(), project.ID)
	if err != nil {
		h.logger.Error("failed to list notes", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list notes"})
		return
	}
	c.JSON(http.StatusOK, notes)
}

type updateNoteRequest struct {
	Title   *string  `json:"title"`
	Content *string  `json:"content"`
	Tags    []string `json:"tags"`
}

// Update handles PUT /v1/notes/:noteID. A content change recomputes the
// rendered HTML wholesale; the slug stays stable.
func (h *NoteHandler) Update(c *gin.Context) {
	note, ok := h.ownedNote(c)
	if !ok {
		return
	}

	var req updateNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Title != nil && *req.Title != "" {
		note.Title = *req.Title
	}
	if req.Content != nil {
		note.Content = *req.Content
		note.RenderedHTML = h.renderer.Render(*req.Content)
	}
	if req.Tags != nil {
		note.Tags = req.Tags
	}

	if err := h.notes.Update(c.Request.Context(), note); err != nil {
		writeDomainError(c, h.logger, err, "failed to update note")
		return
	}
	c.JSON(http.StatusOK, note)
}

// Delete handles DELETE /v1/notes/:noteID
func (h *NoteHandler) Delete(c *gin.Context) {
	note, ok := h.ownedNote(c)
	if !ok {
		return
	}
	if err := h.notes.Delete(c.Request.Context(), note.ID); err != nil {
		writeDomainError(c, h.logger, err, "failed to delete note")
		return
	}
	c.Status(http.StatusNoContent)
}

// ListTags handles GET /v1/tags — the shared tag vocabulary.
func (h *NoteHandler) ListTags(c *gin.Context) {
	tags, err := h.notes.ListTags(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list tags", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tags"})
		return
	}
	c.JSON(http.StatusOK, tags)
}

// ListByTag handles GET /v1/tags/:slug/notes — the caller's notes carrying
// the tag. Other owners' notes never show, whatever they are tagged with.
func (h *NoteHandler) ListByTag(c *gin.Context) {
	ownerID := middleware.GetUserID(c)
	notes, err := h.notes.ListByTag(c.Request.Context(), ownerID, c.Param("slug"))
	if err != nil {
		h.logger.Error("failed to list notes by tag", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list notes"})
		return
	}
	c.JSON(http.StatusOK, notes)
}

// resolveParent enforces the exactly-one-parent invariant and returns the
// parent entity's name for title derivation. Ownership is checked along the
// way: the parent must live in a project of the caller.
func (h *NoteHandler) resolveParent(c *gin.Context, fileID, folderID, projectID *uuid.UUID) (string, error) {
	count := 0
	for _, set := range []bool{fileID != nil, folderID != nil, projectID != nil} {
		if set {
			count++
		}
	}
	if count != 1 {
		return "", &repository.ValidationError{
			Field:   "parent",
			Message: "exactly one of file_id, folder_id, project_id must be set",
		}
	}

	ctx := c.Request.Context()
	ownerID := middleware.GetUserID(c)

	switch {
	case fileID != nil:
		file, err := h.files.GetByID(ctx, *fileID)
		if err != nil {
			return "", err
		}
		if file == nil {
			return "", fmt.Errorf("file: %w", repository.ErrNotFound)
		}
		if err := h.checkProject(ctx, ownerID, file.ProjectID); err != nil {
			return "", err
		}
		return file.Name, nil
	case folderID != nil:
		folder, err := h.folders.GetByID(ctx, *folderID)
		if err != nil {
			return "", err
		}
		if folder == nil {
			return "", fmt.Errorf("folder: %w", repository.ErrNotFound)
		}
		if err := h.checkProject(ctx, ownerID, folder.ProjectID); err != nil {
			return "", err
		}
		return folder.Name, nil
	default:
		project, err := h.projects.GetByID(ctx, ownerID, *projectID)
		if err != nil {
			return "", err
		}
		if project == nil {
			return "", fmt.Errorf("project: %w", repository.ErrNotFound)
		}
		return project.Name, nil
	}
}

func (h *NoteHandler) checkProject(ctx context.Context, ownerID, projectID uuid.UUID) error {
	project, err := h.projects.GetByID(ctx, ownerID, projectID)
	if err != nil {
		return err
	}
	if project == nil {
		return fmt.Errorf("project: %w", repository.ErrNotFound)
	}
	return nil
}

// ownedNote loads :noteID and verifies the caller owns the project the note
// hangs off.
func (h *NoteHandler) ownedNote(c *gin.Context) (*models.Note, bool) {
	noteID, err := uuid.Parse(c.Param("noteID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid note id"})
		return nil, false
	}

	note, err := h.notes.GetByID(c.Request.Context(), noteID)
	if err != nil {
		h.logger.Error("failed to get note", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get note"})
		return nil, false
	}
	if note == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "note not found"})
		return nil, false
	}

	if _, err := h.resolveParent(c, note.FileID, note.FolderID, note.ProjectID); err != nil {
		writeDomainError(c, h.logger, err, "failed to get note")
		return nil, false
	}
	return note, true
}
