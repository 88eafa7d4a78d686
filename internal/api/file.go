package api

import (
	"net/http"

	"github.com/cotex-app/cotex/internal/middleware"
	"github.com/cotex-app/cotex/internal/models"
	"github.com/cotex-app/cotex/internal/repository"
	"github.com/cotex-app/cotex/internal/tree"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type FileHandler struct {
	projects repository.ProjectRepository
	files    repository.FileRepository
	tree     *tree.Service
	logger   *zap.Logger
}

func NewFileHandler(
	projects repository.ProjectRepository,
	files repository.FileRepository,
	treeSvc *tree.Service,
	logger *zap.Logger,
) *FileHandler {
	return &FileHandler{projects: projects, files: files, tree: treeSvc, logger: logger}
}

type createFileRequest struct {
	Name     string     `json:"name" binding:"required"`
	FolderID *uuid.UUID `json:"folder_id"`
	Content  string     `json:"content"`
	IsMain   bool       `json:"is_main"`
}

// Create handles POST /v1/projects/:id/files. A second main file in the
// project is a conflict, not a silent demotion of the first.
func (h *FileHandler) Create(c *gin.Context) {
	project, ok := h.ownedProject(c)
	if !ok {
		return
	}

	var req createFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	file, err := h.tree.CreateFile(c.Request.Context(), project.ID, req.FolderID, req.Name, req.Content, req.IsMain)
	if err != nil {
		writeDomainError(c, h.logger, err, "failed to create file")
		return
	}

	c.JSON(http.StatusCreated, file)
}

// GetByID handles GET /v1/projects/:id/files/:fileID
func (h *FileHandler) GetByID(c *gin.Context) {
	_, file, ok := h.ownedFile(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, file)
}

type updateFileRequest struct {
	Content string `json:"content"`
}

// UpdateContent handles PUT /v1/projects/:id/files/:fileID — last write
// wins at the field level; concurrent editors are not merged.
func (h *FileHandler) UpdateContent(c *gin.Context) {
	_, file, ok := h.ownedFile(c)
	if !ok {
		return
	}

	var req updateFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.files.UpdateContent(c.Request.Context(), file.ID, req.Content)
	if err != nil {
		writeDomainError(c, h.logger, err, "failed to update file")
		return
	}
	c.JSON(http.StatusOK, updated)
}

// Delete handles DELETE /v1/projects/:id/files/:fileID
func (h *FileHandler) Delete(c *gin.Context) {
	project, file, ok := h.ownedFile(c)
	if !ok {
		return
	}

	if err := h.tree.DeleteFile(c.Request.Context(), project.ID, file.ID); err != nil {
		writeDomainError(c, h.logger, err, "failed to delete file")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *FileHandler) ownedProject(c *gin.Context) (*models.Project, bool) {
	ownerID := middleware.GetUserID(c)
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return nil, false
	}

	project, err := h.projects.GetByID(c.Request.Context(), ownerID, projectID)
	if err != nil {
		h.logger.Error("failed to get project", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get project"})
		return nil, false
	}
	if project == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return nil, false
	}
	return project, true
}

func (h *FileHandler) ownedFile(c *gin.Context) (*models.Project, *models.File, bool) {
	project, ok := h.ownedProject(c)
	if !ok {
		return nil, nil, false
	}
	fileID, err := uuid.Parse(c.Param("fileID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file id"})
		return nil, nil, false
	}

	file, err := h.files.GetByID(c.Request.Context(), fileID)
	if err != nil {
		h.logger.Error("failed to get file", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get file"})
		return nil, nil, false
	}
	if file == nil || file.ProjectID != project.ID {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return nil, nil, false
	}
	return project, file, true
}
