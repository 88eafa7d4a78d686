package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/cotex-app/cotex/internal/models"
	"github.com/cotex-app/cotex/internal/reconcile"
	"github.com/cotex-app/cotex/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// deliveryTTL is how long a webhook delivery ID is remembered for dedupe.
// GitHub redelivers on timeouts; replaying a whole delivery would be
// harmless (event application is idempotent) but wasteful.
const deliveryTTL = 24 * time.Hour

type WebhookHandler struct {
	projects   repository.ProjectRepository
	events     repository.EventRepository
	reconciler *reconcile.Reconciler
	rdb        *redis.Client // nil disables delivery dedupe
	secret     string
	logger     *zap.Logger
}

func NewWebhookHandler(
	projects repository.ProjectRepository,
	events repository.EventRepository,
	reconciler *reconcile.Reconciler,
	rdb *redis.Client,
	secret string,
	logger *zap.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		projects:   projects,
		events:     events,
		reconciler: reconciler,
		rdb:        rdb,
		secret:     secret,
		logger:     logger,
	}
}

type pushPayload struct {
	Ref        string `json:"ref"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	Commits []struct {
		Added    []string `json:"added"`
		Modified []string `json:"modified"`
		Removed  []string `json:"removed"`
	} `json:"commits"`
}

// Github handles POST /v1/webhooks/github. The signature is verified over
// the raw body before anything is parsed or written; events are recorded
// durably first and only then reconciled, so a failure partway leaves
// unprocessed rows for replay instead of losing changes.
func (h *WebhookHandler) Github(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if !VerifySignature(body, c.GetHeader("X-Hub-Signature-256"), h.secret) {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
		return
	}

	if event := c.GetHeader("X-GitHub-Event"); event != "push" {
		// Accepted, ignored.
		c.JSON(http.StatusAccepted, gin.H{"status": fmt.Sprintf("event %q ignored", event)})
		return
	}

	var payload pushPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	ctx := c.Request.Context()
	branch := strings.TrimPrefix(payload.Ref, "refs/heads/")
	repo := payload.Repository.FullName

	project, err := h.projects.GetByRepo(ctx, repo, branch)
	if err != nil {
		h.logger.Error("failed to look up project by repo", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook processing failed"})
		return
	}
	if project == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": fmt.Sprintf("no project found for repository %s and branch %s", repo, branch),
		})
		return
	}

	// Dedupe is best-effort: a redis hiccup lets the delivery through,
	// and idempotent reconciliation absorbs the replay.
	if delivery := c.GetHeader("X-GitHub-Delivery"); h.rdb != nil && delivery != "" {
		fresh, err := h.rdb.SetNX(ctx, "webhook:delivery:"+delivery, 1, deliveryTTL).Result()
		if err != nil {
			h.logger.Warn("delivery dedupe unavailable", zap.Error(err))
		} else if !fresh {
			c.JSON(http.StatusOK, gin.H{"status": "duplicate delivery ignored"})
			return
		}
	}

	recorded := 0
	for _, commit := range payload.Commits {
		for _, p := range commit.Added {
			if err := h.record(c, project.ID, p, models.EventCreated); err != nil {
				return
			}
			recorded++
		}
		for _, p := range commit.Modified {
			if err := h.record(c, project.ID, p, models.EventModified); err != nil {
				return
			}
			recorded++
		}
		for _, p := range commit.Removed {
			if err := h.record(c, project.ID, p, models.EventDeleted); err != nil {
				return
			}
			recorded++
		}
	}

	processed, failed, err := h.reconciler.Reconcile(ctx, project.ID)
	if err != nil {
		h.logger.Error("reconciliation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"recorded":  recorded,
		"processed": processed,
		"failed":    failed,
	})
}

// record writes one durable FileEvent row; on failure it answers the request
// itself and returns the error so the caller stops the batch.
func (h *WebhookHandler) record(c *gin.Context, projectID uuid.UUID, filePath, eventType string) error {
	_, err := h.events.Record(c.Request.Context(), projectID, filePath, path.Base(filePath), eventType)
	if err != nil {
		h.logger.Error("failed to record file event",
			zap.String("path", filePath), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook processing failed"})
	}
	return err
}

// VerifySignature checks the GitHub HMAC-SHA256 signature header
// ("sha256=<hex>") over the raw request body, in constant time.
func VerifySignature(body []byte, signatureHeader, secret string) bool {
	if signatureHeader == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}
