package api

import (
	"errors"
	"net/http"

	"github.com/cotex-app/cotex/internal/repository"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// writeDomainError maps the domain error taxonomy onto status codes in one
// place. Anything unrecognized is a server fault: logged with the real error,
// answered with the generic message.
func writeDomainError(c *gin.Context, logger *zap.Logger, err error, fallback string) {
	var validationErr *repository.ValidationError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrNameCollision),
		errors.Is(err, repository.ErrMainFileConflict),
		errors.Is(err, repository.ErrSlugTaken),
		errors.Is(err, repository.ErrGithubUnlink):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrCycle):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": validationErr.Error()})
	default:
		logger.Error(fallback, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
