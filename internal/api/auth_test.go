package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/cotex-app/cotex/internal/auth"
	"github.com/cotex-app/cotex/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// userStore is an in-memory UserRepository that also records profile
// creations so the signup flow's ordering is observable.
type userStore struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*models.User
	profiles map[uuid.UUID]*models.Profile
}

func newUserStore() *userStore {
	return &userStore{
		users:    make(map[uuid.UUID]*models.User),
		profiles: make(map[uuid.UUID]*models.Profile),
	}
}

func (s *userStore) Create(ctx context.Context, email, displayName, passwordHash string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &models.User{
		ID:           uuid.New(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
	}
	s.users[u.ID] = u
	c := *u
	return &c, nil
}

func (s *userStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (s *userStore) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (s *userStore) CreateProfile(ctx context.Context, userID uuid.UUID, bio string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[userID] = &models.Profile{UserID: userID, Bio: bio}
	return nil
}

func authRouter(t *testing.T) (*gin.Engine, *userStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := newUserStore()
	handler := NewAuthHandler(users, testSecret, zap.NewNop())

	router := gin.New()
	router.POST("/v1/auth/signup", handler.Signup)
	router.POST("/v1/auth/login", handler.Login)
	return router, users
}

func postJSON(t *testing.T, router *gin.Engine, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSignupCreatesUserAndProfile(t *testing.T) {
	router, users := authRouter(t)

	rec := postJSON(t, router, "/v1/auth/signup", gin.H{
		"email":        "alice@example.com",
		"password":     "s3cret-enough",
		"display_name": "Alice",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp authResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	claims, err := auth.ParseToken(resp.Token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", claims.Email)
	// Fresh accounts start unverified; mutations stay gated until a re-login
	// after verification.
	assert.False(t, claims.Verified)

	user, err := users.GetByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	// Password is stored hashed, never verbatim.
	assert.NotEqual(t, "s3cret-enough", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("s3cret-enough")))
	// The profile sidecar exists immediately after signup.
	assert.Contains(t, users.profiles, user.ID)
}

func TestSignupDuplicateEmail(t *testing.T) {
	router, _ := authRouter(t)
	payload := gin.H{"email": "bob@example.com", "password": "longenough", "display_name": "Bob"}

	require.Equal(t, http.StatusCreated, postJSON(t, router, "/v1/auth/signup", payload).Code)
	assert.Equal(t, http.StatusConflict, postJSON(t, router, "/v1/auth/signup", payload).Code)
}

func TestSignupValidation(t *testing.T) {
	router, _ := authRouter(t)

	for name, payload := range map[string]gin.H{
		"bad email":      {"email": "not-an-email", "password": "longenough", "display_name": "X"},
		"short password": {"email": "a@b.co", "password": "short", "display_name": "X"},
		"no name":        {"email": "a@b.co", "password": "longenough"},
	} {
		rec := postJSON(t, router, "/v1/auth/signup", payload)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestLoginRoundTrip(t *testing.T) {
	router, _ := authRouter(t)
	require.Equal(t, http.StatusCreated, postJSON(t, router, "/v1/auth/signup", gin.H{
		"email": "carol@example.com", "password": "correct-horse", "display_name": "Carol",
	}).Code)

	rec := postJSON(t, router, "/v1/auth/login", gin.H{
		"email": "carol@example.com", "password": "correct-horse",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp authResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	claims, err := auth.ParseToken(resp.Token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", claims.Email)
}

func TestLoginRejectionsAreIndistinguishable(t *testing.T) {
	router, _ := authRouter(t)
	require.Equal(t, http.StatusCreated, postJSON(t, router, "/v1/auth/signup", gin.H{
		"email": "dave@example.com", "password": "correct-horse", "display_name": "Dave",
	}).Code)

	wrongPassword := postJSON(t, router, "/v1/auth/login", gin.H{
		"email": "dave@example.com", "password": "wrong-horse",
	})
	unknownEmail := postJSON(t, router, "/v1/auth/login", gin.H{
		"email": "nobody@example.com", "password": "correct-horse",
	})

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownEmail.Code)
	// Same error body for both, so the endpoint does not leak which emails exist.
	assert.Equal(t, wrongPassword.Body.String(), unknownEmail.Body.String())
}
