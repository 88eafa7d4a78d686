package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cotex-app/cotex/internal/models"
	"github.com/cotex-app/cotex/internal/reconcile"
	"github.com/cotex-app/cotex/internal/repository/repositorytest"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "webhook-test-secret"

// projectsByRepo is a minimal ProjectRepository fake: only the lookups the
// webhook path needs do anything.
type projectsByRepo struct {
	project *models.Project
}

func (p *projectsByRepo) Create(ctx context.Context, ownerID uuid.UUID, name, description string) (*models.Project, error) {
	return nil, nil
}

func (p *projectsByRepo) GetByID(ctx context.Context, ownerID, projectID uuid.UUID) (*models.Project, error) {
	return nil, nil
}

func (p *projectsByRepo) GetByRepo(ctx context.Context, repo, branch string) (*models.Project, error) {
	if p.project != nil && p.project.GithubRepo == repo && p.project.GithubBranch == branch {
		return p.project, nil
	}
	return nil, nil
}

func (p *projectsByRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Project, error) {
	return nil, nil
}

func (p *projectsByRepo) LinkGithub(ctx context.Context, ownerID, projectID uuid.UUID, repo, branch string) (*models.Project, error) {
	return nil, nil
}

func (p *projectsByRepo) Delete(ctx context.Context, ownerID, projectID uuid.UUID) error {
	return nil
}

func webhookRouter(t *testing.T, project *models.Project) (*gin.Engine, *repositorytest.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repositorytest.NewStore()
	reconciler := reconcile.New(store.Folders(), store.Files(), store.Events(), zap.NewNop())
	handler := NewWebhookHandler(&projectsByRepo{project: project}, store.Events(), reconciler, nil, testSecret, zap.NewNop())

	router := gin.New()
	router.POST("/v1/webhooks/github", handler.Github)
	return router, store
}

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func pushBody(t *testing.T, repo, branch string, added, modified, removed []string) []byte {
	t.Helper()
	body, err := json.Marshal(gin.H{
		"ref":        "refs/heads/" + branch,
		"repository": gin.H{"full_name": repo},
		"commits": []gin.H{{
			"added":    added,
			"modified": modified,
			"removed":  removed,
		}},
	})
	require.NoError(t, err)
	return body
}

func deliver(router *gin.Engine, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/github", bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func linkedProject() *models.Project {
	return &models.Project{
		ID:           uuid.New(),
		Name:         "thesis",
		OwnerID:      uuid.New(),
		IsGithubRepo: true,
		GithubRepo:   "alice/thesis",
		GithubBranch: "main",
	}
}

func TestWebhookRejectsBadSignatureBeforeAnyWrite(t *testing.T) {
	project := linkedProject()
	router, store := webhookRouter(t, project)
	body := pushBody(t, "alice/thesis", "main", []string{"main.tex"}, nil, nil)

	for _, sig := range []string{
		"",
		"sha256=deadbeef",
		sign(body, "wrong-secret"),
		sign(append(body, ' '), testSecret),
	} {
		rec := deliver(router, body, map[string]string{
			"X-GitHub-Event":      "push",
			"X-Hub-Signature-256": sig,
		})
		assert.Equal(t, http.StatusForbidden, rec.Code, sig)
	}

	assert.Empty(t, store.Recorded())
}

func TestWebhookIgnoresNonPushEvents(t *testing.T) {
	project := linkedProject()
	router, store := webhookRouter(t, project)
	body := []byte(`{"zen":"Keep it logically awesome."}`)

	rec := deliver(router, body, map[string]string{
		"X-GitHub-Event":      "ping",
		"X-Hub-Signature-256": sign(body, testSecret),
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, store.Recorded())
}

func TestWebhookMalformedPayload(t *testing.T) {
	router, _ := webhookRouter(t, linkedProject())
	body := []byte(`{not json`)

	rec := deliver(router, body, map[string]string{
		"X-GitHub-Event":      "push",
		"X-Hub-Signature-256": sign(body, testSecret),
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookUnknownRepository(t *testing.T) {
	router, store := webhookRouter(t, linkedProject())
	body := pushBody(t, "mallory/other", "main", []string{"x.tex"}, nil, nil)

	rec := deliver(router, body, map[string]string{
		"X-GitHub-Event":      "push",
		"X-Hub-Signature-256": sign(body, testSecret),
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, store.Recorded())
}

func TestWebhookBranchMismatch(t *testing.T) {
	router, store := webhookRouter(t, linkedProject())
	body := pushBody(t, "alice/thesis", "feature-x", []string{"x.tex"}, nil, nil)

	rec := deliver(router, body, map[string]string{
		"X-GitHub-Event":      "push",
		"X-Hub-Signature-256": sign(body, testSecret),
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, store.Recorded())
}

func TestWebhookRecordsAndReconciles(t *testing.T) {
	ctx := context.Background()
	project := linkedProject()
	router, store := webhookRouter(t, project)
	body := pushBody(t, "alice/thesis", "main",
		[]string{"main.tex", "chapters/ch1.tex"},
		[]string{"refs.bib"},
		[]string{"old.tex"},
	)

	rec := deliver(router, body, map[string]string{
		"X-GitHub-Event":      "push",
		"X-Hub-Signature-256": sign(body, testSecret),
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Recorded  int `json:"recorded"`
		Processed int `json:"processed"`
		Failed    int `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Recorded)
	assert.Equal(t, 4, resp.Processed)
	assert.Equal(t, 0, resp.Failed)

	// Events are durable and marked processed.
	events := store.Recorded()
	require.Len(t, events, 4)
	for _, e := range events {
		assert.Equal(t, project.ID, e.ProjectID)
		assert.True(t, e.Processed, e.FilePath)
	}

	// The tree mirrors the push: two created files, one folder, the modified
	// file upserted, the removed path a no-op (never created).
	file, err := store.Files().GetByName(ctx, project.ID, nil, "main.tex")
	require.NoError(t, err)
	assert.NotNil(t, file)
	folder, err := store.Folders().GetChild(ctx, project.ID, nil, "chapters")
	require.NoError(t, err)
	require.NotNil(t, folder)
	file, err = store.Files().GetByName(ctx, project.ID, &folder.ID, "ch1.tex")
	require.NoError(t, err)
	assert.NotNil(t, file)
	file, err = store.Files().GetByName(ctx, project.ID, nil, "refs.bib")
	require.NoError(t, err)
	assert.NotNil(t, file)
	file, err = store.Files().GetByName(ctx, project.ID, nil, "old.tex")
	require.NoError(t, err)
	assert.Nil(t, file)
}

func TestWebhookRedeliveryIsIdempotentWithoutDedupe(t *testing.T) {
	// With no redis client the dedupe layer is off; replaying the identical
	// delivery must still converge on the same tree.
	ctx := context.Background()
	project := linkedProject()
	router, store := webhookRouter(t, project)
	body := pushBody(t, "alice/thesis", "main", []string{"chapters/ch1.tex"}, nil, nil)
	headers := map[string]string{
		"X-GitHub-Event":      "push",
		"X-Hub-Signature-256": sign(body, testSecret),
		"X-GitHub-Delivery":   "d-123",
	}

	require.Equal(t, http.StatusOK, deliver(router, body, headers).Code)
	require.Equal(t, http.StatusOK, deliver(router, body, headers).Code)

	files, err := store.Files().ListByProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Len(t, files, 1)
	folders, err := store.Folders().ListByProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Len(t, folders, 1)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"ref":"refs/heads/main"}`)

	assert.True(t, VerifySignature(body, sign(body, testSecret), testSecret))
	assert.False(t, VerifySignature(body, sign(body, testSecret), ""))
	assert.False(t, VerifySignature(body, "", testSecret))
	assert.False(t, VerifySignature(body, sign(body, "other"), testSecret))
	assert.False(t, VerifySignature([]byte("tampered"), sign(body, testSecret), testSecret))
}
