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

type FolderHandler struct {
	projects repository.ProjectRepository
	tree     *tree.Service
	logger   *zap.Logger
}

func NewFolderHandler(projects repository.ProjectRepository, treeSvc *tree.Service, logger *zap.Logger) *FolderHandler {
	return &FolderHandler{projects: projects, tree: treeSvc, logger: logger}
}

type createFolderRequest struct {
	Name     string     `json:"name" binding:"required"`
	ParentID *uuid.UUID `json:"parent_id"`
}

// Create handles POST /v1/projects/:id/folders
func (h *FolderHandler) Create(c *gin.Context) {
	project, ok := h.ownedProject(c)
	if !ok {
		return
	}

	var req createFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	folder, err := h.tree.CreateFolder(c.Request.Context(), project.ID, req.ParentID, req.Name)
	if err != nil {
		writeDomainError(c, h.logger, err, "failed to create folder")
		return
	}

	c.JSON(http.StatusCreated, folder)
}

type moveFolderRequest struct {
	ParentID *uuid.UUID `json:"parent_id"`
}

// Move handles PUT /v1/projects/:id/folders/:folderID/parent. Moving a
// folder into its own subtree is refused (422).
func (h *FolderHandler) Move(c *gin.Context) {
	project, ok := h.ownedProject(c)
	if !ok {
		return
	}
	folderID, err := uuid.Parse(c.Param("folderID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid folder id"})
		return
	}

	var req moveFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.tree.MoveFolder(c.Request.Context(), project.ID, folderID, req.ParentID); err != nil {
		writeDomainError(c, h.logger, err, "failed to move folder")
		return
	}
	c.Status(http.StatusNoContent)
}

// Delete handles DELETE /v1/projects/:id/folders/:folderID — removes the
// folder and its whole subtree.
func (h *FolderHandler) Delete(c *gin.Context) {
	project, ok := h.ownedProject(c)
	if !ok {
		return
	}
	folderID, err := uuid.Parse(c.Param("folderID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid folder id"})
		return
	}

	if err := h.tree.DeleteFolder(c.Request.Context(), project.ID, folderID); err != nil {
		writeDomainError(c, h.logger, err, "failed to delete folder")
		return
	}
	c.Status(http.StatusNoContent)
}

// Resolve handles GET /v1/projects/:id/path?p=a/b/c.tex — walks the path
// from the project root and returns the terminal file or folder together
// with its re-derived full path.
func (h *FolderHandler) Resolve(c *gin.Context) {
	project, ok := h.ownedProject(c)
	if !ok {
		return
	}
	p := c.Query("p")
	if p == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter p"})
		return
	}

	node, err := h.tree.ResolvePath(c.Request.Context(), project.ID, p)
	if err != nil {
		writeDomainError(c, h.logger, err, "failed to resolve path")
		return
	}
	fullPath, err := h.tree.FullPath(c.Request.Context(), node)
	if err != nil {
		writeDomainError(c, h.logger, err, "failed to resolve path")
		return
	}

	resp := gin.H{"full_path": fullPath}
	if node.File != nil {
		resp["file"] = node.File
	} else {
		resp["folder"] = node.Folder
	}
	c.JSON(http.StatusOK, resp)
}

func (h *FolderHandler) ownedProject(c *gin.Context) (*models.Project, bool) {
	ownerID := middleware.GetUserID(c)
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return nil, false
	}

	p, err := h.projects.GetByID(c.Request.Context(), ownerID, projectID)
	if err != nil {
		h.logger.Error("failed to get project", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get project"})
		return nil, false
	}
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return nil, false
	}
	return p, true
}
