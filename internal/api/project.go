package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/cotex-app/cotex/internal/latex"
	"github.com/cotex-app/cotex/internal/middleware"
	"github.com/cotex-app/cotex/internal/models"
	"github.com/cotex-app/cotex/internal/repository"
	"github.com/cotex-app/cotex/internal/tree"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ProjectHandler struct {
	projects repository.ProjectRepository
	files    repository.FileRepository
	tree     *tree.Service
	compiler *latex.Compiler
	logger   *zap.Logger
}

func NewProjectHandler(
	projects repository.ProjectRepository,
	files repository.FileRepository,
	treeSvc *tree.Service,
	compiler *latex.Compiler,
	logger *zap.Logger,
) *ProjectHandler {
	return &ProjectHandler{
		projects: projects,
		files:    files,
		tree:     treeSvc,
		compiler: compiler,
		logger:   logger,
	}
}

type createProjectRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// Create handles POST /v1/projects
func (h *ProjectHandler) Create(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ownerID := middleware.GetUserID(c)
	project, err := h.projects.Create(c.Request.Context(), ownerID, req.Name, req.Description)
	if err != nil {
		h.logger.Error("failed to create project", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create project"})
		return
	}

	c.JSON(http.StatusCreated, project)
}

// List handles GET /v1/projects
func (h *ProjectHandler) List(c *gin.Context) {
	ownerID := middleware.GetUserID(c)

	projects, err := h.projects.ListByOwner(c.Request.Context(), ownerID)
	if err != nil {
		h.logger.Error("failed to list projects", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list projects"})
		return
	}

	c.JSON(http.StatusOK, projects)
}

// GetByID handles GET /v1/projects/:id
func (h *ProjectHandler) GetByID(c *gin.Context) {
	project, ok := h.ownedProject(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, project)
}

// Delete handles DELETE /v1/projects/:id
func (h *ProjectHandler) Delete(c *gin.Context) {
	ownerID := middleware.GetUserID(c)
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	if err := h.projects.Delete(c.Request.Context(), ownerID, projectID); err != nil {
		writeDomainError(c, h.logger, err, "failed to delete project")
		return
	}
	c.Status(http.StatusNoContent)
}

// Compile handles POST /v1/projects/:id/compile — resolves the project's
// main file plus every other file at its tree path, feeds them to the
// compiler, and streams back the PDF. Toolchain failures return the raw
// diagnostic log: authors need it to debug their LaTeX.
func (h *ProjectHandler) Compile(c *gin.Context) {
	project, ok := h.ownedProject(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	mainFile, err := h.files.GetMain(ctx, project.ID)
	if err != nil {
		h.logger.Error("failed to look up main file", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compile project"})
		return
	}
	if mainFile == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no main file marked for this project"})
		return
	}

	all, err := h.files.ListByProject(ctx, project.ID)
	if err != nil {
		h.logger.Error("failed to list project files", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compile project"})
		return
	}

	// Aux files materialize at their project-relative path so \input and
	// \include see the same layout the tree shows.
	auxFiles := make(map[string]string, len(all))
	for i := range all {
		f := &all[i]
		if f.IsMain {
			continue
		}
		fullPath, err := h.tree.FullPath(ctx, &tree.Node{File: f})
		if err != nil {
			h.logger.Error("failed to derive file path", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compile project"})
			return
		}
		auxFiles[fullPath] = f.Content
	}

	pdf, err := h.compiler.Compile(ctx, mainFile.Content, auxFiles)
	if err != nil {
		var compileErr *latex.Error
		switch {
		case errors.As(err, &compileErr):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": compileErr.Log})
		case errors.Is(err, latex.ErrTimeout):
			c.JSON(http.StatusRequestTimeout, gin.H{"error": "compilation timed out"})
		default:
			h.logger.Error("compilation failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compile project"})
		}
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", project.Name+".pdf"))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

type linkGithubRequest struct {
	GithubRepo   string `json:"github_repo" binding:"required"`
	GithubBranch string `json:"github_branch"`
}

// LinkGithub handles POST /v1/projects/:id/github. The transition is
// one-way: a linked project stays linked, and a second link attempt is a
// conflict rather than a silent repo swap.
func (h *ProjectHandler) LinkGithub(c *gin.Context) {
	project, ok := h.ownedProject(c)
	if !ok {
		return
	}
	if project.IsGithubRepo {
		writeDomainError(c, h.logger, repository.ErrGithubUnlink, "failed to link project")
		return
	}

	var req linkGithubRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	branch := req.GithubBranch
	if branch == "" {
		branch = "main"
	}

	linked, err := h.projects.LinkGithub(c.Request.Context(), project.OwnerID, project.ID, req.GithubRepo, branch)
	if err != nil {
		// A lost race against a concurrent link surfaces as ErrGithubUnlink,
		// the same conflict as the pre-check above.
		writeDomainError(c, h.logger, err, "failed to link project")
		return
	}
	if linked == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}

	c.JSON(http.StatusOK, linked)
}

// Structure handles GET /v1/projects/:id/structure — the nested folder/file
// layout without file contents.
func (h *ProjectHandler) Structure(c *gin.Context) {
	project, ok := h.ownedProject(c)
	if !ok {
		return
	}

	structure, err := h.tree.Structure(c.Request.Context(), project.ID)
	if err != nil {
		h.logger.Error("failed to build project structure", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build project structure"})
		return
	}

	c.JSON(http.StatusOK, structure)
}

// ownedProject parses :id, loads the project scoped to the caller, and
// answers 400/404/500 itself when anything is off.
func (h *ProjectHandler) ownedProject(c *gin.Context) (*models.Project, bool) {
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
