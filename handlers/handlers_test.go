package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"legalmatch-backend/ai"
	"legalmatch-backend/cache"
	"legalmatch-backend/models"
	"legalmatch-backend/repository"
	"legalmatch-backend/retry"
	"legalmatch-backend/service"
	"legalmatch-backend/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubArticles struct {
	matches    []models.LegalArticle
	findErr    error
	appendErrs []error
	calls      int
}

func (s *stubArticles) FindMatching(context.Context, repository.ArticleQuery) ([]models.LegalArticle, error) {
	return s.matches, s.findErr
}

func (s *stubArticles) Categories(context.Context) ([]models.Category, error) {
	return []models.Category{{Type: models.LegalTypeCivil, Subclass: "Tenancy", ArticleCount: 2}}, nil
}

func (s *stubArticles) ListArticles(context.Context, models.LegalType, string, int, int) ([]models.Article, int, error) {
	return nil, 0, repository.ErrNotFound
}

func (s *stubArticles) AppendArticles(context.Context, models.LegalType, string, []models.Article) error {
	n := s.calls
	s.calls++
	if n < len(s.appendErrs) {
		return s.appendErrs[n]
	}
	return nil
}

type stubModel struct {
	text string
	err  error
}

func (m stubModel) Name() string { return "stub" }

func (m stubModel) Generate(context.Context, string) (string, error) {
	return m.text, m.err
}

var instant = retry.WithSleeper(func(ctx context.Context, _ time.Duration) error { return nil })

func newRouter(production bool, h *LegalHandler) *gin.Engine {
	r := gin.New()
	r.Use(DeploymentMode(production))
	r.POST("/api/legal/analyze", h.Analyze)
	r.POST("/api/legal/articles", h.InsertArticles)
	r.GET("/api/legal/categories", h.Categories)
	r.GET("/api/legal/articles/:type/:subclass", h.ListArticles)
	return r
}

func newLegalHandler(store *stubArticles, model ai.Model) *LegalHandler {
	analysis := service.NewAnalysisService(
		service.AnalysisWithArticleStore(store),
		service.AnalysisWithModel(model),
		service.AnalysisWithCache(cache.New()),
		service.AnalysisWithRetryOptions(instant),
	)
	articles := service.NewArticleService(service.ArticlesWithStore(store), service.ArticlesWithBatchSize(1))
	lawyers := service.NewLawyerService()
	return NewLegalHandler(analysis, articles, lawyers)
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestAnalyze_ResponseShape(t *testing.T) {
	h := newLegalHandler(&stubArticles{}, stubModel{text: "Article 42 and Article 7 apply."})
	r := newRouter(false, h)

	w, body := doJSON(t, r, http.MethodPost, "/api/legal/analyze", gin.H{
		"query": "deposit not returned", "type": "Civil cases", "subclass": "Tenancy", "language": "English",
	})
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Article 42 and Article 7 apply.", body["analysis"])
	assert.Equal(t, []any{"Article 42", "Article 7"}, body["applicableArticles"])
	assert.Equal(t, false, body["isFallback"])
	assert.Equal(t, false, body["isDatabaseFallback"])
	assert.Equal(t, false, body["isCached"])

	_, body = doJSON(t, r, http.MethodPost, "/api/legal/analyze", gin.H{
		"query": "deposit not returned", "type": "Civil cases", "subclass": "Tenancy", "language": "English",
	})
	assert.Equal(t, true, body["isCached"])
}

func TestAnalyze_DegradedIsStillSuccess(t *testing.T) {
	model := stubModel{err: &ai.RateLimitError{Provider: "stub", Err: errors.New("429")}}
	r := newRouter(true, newLegalHandler(&stubArticles{}, model))

	w, body := doJSON(t, r, http.MethodPost, "/api/legal/analyze", gin.H{
		"query": "q", "type": "Criminal", "subclass": "Theft",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["isFallback"])
	assert.Equal(t, []any{}, body["applicableArticles"])
	assert.Contains(t, body["analysis"], "Criminal")
	assert.Contains(t, body["analysis"], "Theft")
}

func TestAnalyze_MissingField(t *testing.T) {
	r := newRouter(false, newLegalHandler(&stubArticles{}, stubModel{}))

	w, body := doJSON(t, r, http.MethodPost, "/api/legal/analyze", gin.H{"type": "Civil", "subclass": "Tenancy"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, body["success"])

	errBody := body["error"].(map[string]any)
	assert.Equal(t, "INVALID_REQUEST", errBody["code"])
	assert.Equal(t, "query", errBody["field"])
}

func TestAnalyze_StorageFailureDetailsByMode(t *testing.T) {
	store := &stubArticles{findErr: errors.New("connection refused")}
	req := gin.H{"query": "q", "type": "Civil", "subclass": "Tenancy"}

	w, body := doJSON(t, newRouter(false, newLegalHandler(store, stubModel{})), http.MethodPost, "/api/legal/analyze", req)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", body["error"].(map[string]any)["message"])
	assert.Contains(t, body["details"], "connection refused")

	w, body = doJSON(t, newRouter(true, newLegalHandler(store, stubModel{})), http.MethodPost, "/api/legal/analyze", req)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, body, "details")
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestInsertArticles_StatusByOutcome(t *testing.T) {
	articles := []gin.H{
		{"article_number": "1", "description": "a"},
		{"article_number": "2", "description": "b"},
	}
	tests := []struct {
		name       string
		appendErrs []error
		status     int
		success    bool
	}{
		{"complete", nil, http.StatusCreated, true},
		{"partial", []error{nil, repository.ErrDuplicateArticle}, http.StatusMultiStatus, true},
		{"failed", []error{errors.New("down"), errors.New("down")}, http.StatusUnprocessableEntity, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(false, newLegalHandler(&stubArticles{appendErrs: tt.appendErrs}, stubModel{}))
			w, body := doJSON(t, r, http.MethodPost, "/api/legal/articles", gin.H{
				"type": "Civil", "subclass": "Tenancy", "articles": articles,
			})
			require.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.success, body["success"])

			data := body["data"].(map[string]any)
			assert.EqualValues(t, 2, data["total_batches"])
		})
	}
}

func TestInsertArticles_PartialSuggestion(t *testing.T) {
	r := newRouter(false, newLegalHandler(&stubArticles{appendErrs: []error{nil, errors.New("down")}}, stubModel{}))
	_, body := doJSON(t, r, http.MethodPost, "/api/legal/articles", gin.H{
		"type": "Civil", "subclass": "Tenancy", "articles": []gin.H{
			{"article_number": "1", "description": "a"},
			{"article_number": "2", "description": "b"},
		},
	})
	data := body["data"].(map[string]any)
	assert.Equal(t, "Retry batch 2", data["suggestion"])
	assert.Equal(t, []any{float64(1)}, data["successful_batches"])
}

func TestCategoriesAndListing(t *testing.T) {
	r := newRouter(false, newLegalHandler(&stubArticles{}, stubModel{}))

	w, body := doJSON(t, r, http.MethodGet, "/api/legal/categories", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["data"], 1)

	w, body = doJSON(t, r, http.MethodGet, "/api/legal/articles/Civil/Nothing?page=2", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", body["error"].(map[string]any)["code"])
}

func TestRespondError_Mapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: lawyer", service.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{service.ErrSlotUnavailable, http.StatusConflict, "SLOT_UNAVAILABLE"},
		{service.ErrNotParticipant, http.StatusForbidden, "FORBIDDEN"},
		{fmt.Errorf("%w: a user", service.ErrConflict), http.StatusConflict, "CONFLICT"},
		{service.ErrUnsupportedMedia, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE"},
		{&retry.ExhaustedError{Attempts: 3, Last: errors.New("429")}, http.StatusServiceUnavailable, "AI_UNAVAILABLE"},
		{fmt.Errorf("extraction: %w", ai.ErrMalformedResponse), http.StatusBadGateway, "BAD_AI_RESPONSE"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			respondError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body["error"].(map[string]any)["code"])
		})
	}
}

func TestRespondError_ProviderTextHiddenInProduction(t *testing.T) {
	const providerText = "googleapi: Error 429: quota for project secret-proj-123 exceeded"
	tests := []struct {
		err     error
		status  int
		message string
	}{
		{&retry.ExhaustedError{Attempts: 3, Last: errors.New(providerText)}, http.StatusServiceUnavailable, "AI service unavailable, try again later"},
		{fmt.Errorf("%w: %s", ai.ErrMalformedResponse, providerText), http.StatusBadGateway, "AI returned an unreadable response"},
	}
	for _, tt := range tests {
		for _, production := range []bool{true, false} {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			DeploymentMode(production)(c)
			respondError(c, tt.err)

			require.Equal(t, tt.status, w.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.message, body["error"].(map[string]any)["message"])
			if production {
				assert.NotContains(t, w.Body.String(), "secret-proj-123")
				assert.NotContains(t, body, "details")
			} else {
				assert.Contains(t, body["details"], "secret-proj-123")
			}
		}
	}
}

type stubFiles struct {
	file *models.File
}

func (s stubFiles) GetByID(_ context.Context, id uuid.UUID) (*models.File, error) {
	if s.file == nil || s.file.ID != id {
		return nil, repository.ErrNotFound
	}
	return s.file, nil
}

func (s stubFiles) List(context.Context, int) ([]*models.File, error) {
	if s.file == nil {
		return nil, nil
	}
	return []*models.File{s.file}, nil
}

func (s stubFiles) Delete(_ context.Context, id uuid.UUID) error {
	if s.file == nil || s.file.ID != id {
		return repository.ErrNotFound
	}
	return nil
}

type stubDownloader map[string]string

func (s stubDownloader) Download(_ context.Context, path string) (io.ReadCloser, error) {
	content, ok := s[path]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

func (s stubDownloader) Delete(_ context.Context, path string) error {
	delete(s, path)
	return nil
}

func TestGetFile(t *testing.T) {
	file := &models.File{
		ID:          uuid.New(),
		Filename:    "tenancy.txt",
		MimeType:    "text/plain",
		Size:        11,
		StoragePath: "sources/2026-03/x_tenancy.txt",
	}
	h := NewFileHandler(nil, stubFiles{file: file}, stubDownloader{file.StoragePath: "Article 1."})
	r := gin.New()
	r.GET("/api/files/:id", h.GetFile)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/files/"+file.ID.String(), nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Article 1.", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "tenancy.txt")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/files/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/files/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAndDeleteFile(t *testing.T) {
	file := &models.File{ID: uuid.New(), Filename: "a.txt", StoragePath: "sources/a.txt"}
	blobs := stubDownloader{file.StoragePath: "text"}
	h := NewFileHandler(nil, stubFiles{file: file}, blobs)
	r := gin.New()
	r.GET("/api/files", h.ListFiles)
	r.DELETE("/api/files/:id", h.DeleteFile)

	w, body := doJSON(t, r, http.MethodGet, "/api/files", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["data"], 1)

	w, _ = doJSON(t, r, http.MethodDelete, "/api/files/"+file.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, blobs)

	w, _ = doJSON(t, r, http.MethodDelete, "/api/files/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type memStorage struct {
	objects map[string][]byte
}

func (m *memStorage) Upload(_ context.Context, fileID uuid.UUID, filename string, data io.Reader) (string, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	path := fileID.String() + "_" + filename
	m.objects[path] = b
	return path, nil
}

func (m *memStorage) Delete(_ context.Context, path string) error {
	delete(m.objects, path)
	return nil
}

type memFiles struct{}

func (memFiles) Create(context.Context, *models.File) error { return nil }

func multipartUpload(t *testing.T, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/legal/articles/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadArticles(t *testing.T) {
	store := &stubArticles{}
	articles := service.NewArticleService(
		service.ArticlesWithStore(store),
		service.ArticlesWithFileRepository(memFiles{}),
		service.ArticlesWithStorage(&memStorage{objects: map[string][]byte{}}),
		service.ArticlesWithModel(stubModel{text: `[{"article_number": "1", "description": "Leases are written."}]`}),
	)
	h := NewFileHandler(articles, stubFiles{}, stubDownloader{})
	r := gin.New()
	r.POST("/api/legal/articles/upload", h.UploadArticles)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartUpload(t, "tenancy.txt", "Article 1. Leases are written.", map[string]string{
		"type": "Civil", "subclass": "Tenancy",
	}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	assert.EqualValues(t, 1, data["extracted"])
	assert.Equal(t, 1, store.calls)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, multipartUpload(t, "scan.pdf", "%PDF", map[string]string{"type": "Civil", "subclass": "Tenancy"}))
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, multipartUpload(t, "a.txt", "x", map[string]string{"type": "Civil", "subclass": "Tenancy", "user_id": "nope"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatHandler_RequiresUserID(t *testing.T) {
	h := NewChatHandler(service.NewChatService(), nil, nil)
	r := gin.New()
	r.GET("/api/chat/unseen", h.UnseenCounts)

	w, body := doJSON(t, r, http.MethodGet, "/api/chat/unseen", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "MISSING_USER_ID", body["error"].(map[string]any)["code"])
}

func TestAppointmentList_RequiresOneOwner(t *testing.T) {
	h := NewAppointmentHandler(service.NewAppointmentService())
	r := gin.New()
	r.GET("/api/appointments", h.List)

	w, _ := doJSON(t, r, http.MethodGet, "/api/appointments", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, r, http.MethodGet, "/api/appointments?userId=bad", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type stubUsers struct {
	byEmail map[string]*models.User
}

func (s *stubUsers) Create(_ context.Context, u *models.User) error {
	s.byEmail[u.Email] = u
	return nil
}

func (s *stubUsers) GetByID(context.Context, uuid.UUID) (*models.User, error) {
	return nil, repository.ErrNotFound
}

func (s *stubUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	if u, ok := s.byEmail[email]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubUsers) List(context.Context, int, int) ([]*models.User, error) { return nil, nil }

func (s *stubUsers) Update(context.Context, *models.User) error { return nil }

func TestUserLogin(t *testing.T) {
	users := service.NewUserService(
		service.UsersWithStore(&stubUsers{byEmail: map[string]*models.User{}}),
		service.UsersWithBcryptCost(bcrypt.MinCost),
	)
	_, err := users.CreateUser(context.Background(), service.CreateUserRequest{
		Email: "ana@example.com", Password: "longenough", Name: "Ana",
	})
	require.NoError(t, err)

	h := NewUserHandler(users)
	r := gin.New()
	r.POST("/api/users/login", h.Login)

	w, body := doJSON(t, r, http.MethodPost, "/api/users/login", LoginRequest{Email: "ana@example.com", Password: "longenough"})
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "ana@example.com", data["email"])
	assert.NotContains(t, data, "password_hash")

	w, _ = doJSON(t, r, http.MethodPost, "/api/users/login", LoginRequest{Email: "ana@example.com", Password: "wrong password"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, r, http.MethodPost, "/api/users/login", map[string]string{"email": "ana@example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
