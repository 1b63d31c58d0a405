package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"notebase.evalgo.org/config"
	"notebase.evalgo.org/models"
	"notebase.evalgo.org/service"
)

const testSecret = "test-secret"

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) UploadFiles(ctx context.Context, ownerID uuid.UUID, files []service.UploadFile) (*service.UploadOutcome, error) {
	args := m.Called(ctx, ownerID, files)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.UploadOutcome), args.Error(1)
}

func (m *mockBackend) ListDocuments(ctx context.Context, ownerID uuid.UUID, skip, limit int) (*service.DocumentList, error) {
	args := m.Called(ctx, ownerID, skip, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DocumentList), args.Error(1)
}

func (m *mockBackend) GetDocument(ctx context.Context, ownerID, documentID uuid.UUID) (*models.Document, error) {
	args := m.Called(ctx, ownerID, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Document), args.Error(1)
}

func (m *mockBackend) DeleteDocument(ctx context.Context, ownerID, documentID uuid.UUID) error {
	return m.Called(ctx, ownerID, documentID).Error(0)
}

func (m *mockBackend) DeleteDocuments(ctx context.Context, ownerID uuid.UUID, documentIDs []uuid.UUID) *service.BatchDeleteOutcome {
	return m.Called(ctx, ownerID, documentIDs).Get(0).(*service.BatchDeleteOutcome)
}

func (m *mockBackend) PresignDownload(ctx context.Context, ownerID uuid.UUID, key string, expires time.Duration) (string, error) {
	args := m.Called(ctx, ownerID, key, expires)
	return args.String(0), args.Error(1)
}

func (m *mockBackend) BucketName() string {
	return m.Called().String(0)
}

func (m *mockBackend) CreateSource(ctx context.Context, ownerID uuid.UUID, in service.SourceInput) (*models.Source, error) {
	args := m.Called(ctx, ownerID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Source), args.Error(1)
}

func (m *mockBackend) GetSource(ctx context.Context, ownerID, sourceID uuid.UUID) (*models.Source, error) {
	args := m.Called(ctx, ownerID, sourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Source), args.Error(1)
}

func (m *mockBackend) ListSources(ctx context.Context, ownerID uuid.UUID, skip, limit int) ([]models.Source, error) {
	args := m.Called(ctx, ownerID, skip, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Source), args.Error(1)
}

func (m *mockBackend) UpdateSource(ctx context.Context, ownerID, sourceID uuid.UUID, title, description string) (*models.Source, error) {
	args := m.Called(ctx, ownerID, sourceID, title, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Source), args.Error(1)
}

func (m *mockBackend) DeleteSource(ctx context.Context, ownerID, sourceID uuid.UUID) error {
	return m.Called(ctx, ownerID, sourceID).Error(0)
}

func (m *mockBackend) CreateNotebook(ctx context.Context, ownerID uuid.UUID, in service.NotebookInput) (*models.Notebook, error) {
	args := m.Called(ctx, ownerID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Notebook), args.Error(1)
}

func (m *mockBackend) GetNotebook(ctx context.Context, ownerID, notebookID uuid.UUID) (*models.Notebook, error) {
	args := m.Called(ctx, ownerID, notebookID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Notebook), args.Error(1)
}

func (m *mockBackend) ListNotebooks(ctx context.Context, ownerID uuid.UUID) ([]models.Notebook, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Notebook), args.Error(1)
}

func (m *mockBackend) UpdateNotebook(ctx context.Context, ownerID, notebookID uuid.UUID, in service.NotebookInput) (*models.Notebook, error) {
	args := m.Called(ctx, ownerID, notebookID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Notebook), args.Error(1)
}

func (m *mockBackend) DeleteNotebook(ctx context.Context, ownerID, notebookID uuid.UUID) (*service.CleanupSummary, error) {
	args := m.Called(ctx, ownerID, notebookID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.CleanupSummary), args.Error(1)
}

func (m *mockBackend) AddSourceToNotebook(ctx context.Context, ownerID, notebookID, sourceID uuid.UUID, position *int) (*models.NotebookSource, error) {
	args := m.Called(ctx, ownerID, notebookID, sourceID, position)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.NotebookSource), args.Error(1)
}

func (m *mockBackend) ListNotebookSources(ctx context.Context, ownerID, notebookID uuid.UUID) ([]models.NotebookSource, error) {
	args := m.Called(ctx, ownerID, notebookID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.NotebookSource), args.Error(1)
}

func (m *mockBackend) UpdateSourcePosition(ctx context.Context, ownerID, notebookID, sourceID uuid.UUID, position int) (*models.NotebookSource, error) {
	args := m.Called(ctx, ownerID, notebookID, sourceID, position)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.NotebookSource), args.Error(1)
}

func (m *mockBackend) RemoveSourceFromNotebook(ctx context.Context, ownerID, notebookID, sourceID uuid.UUID) error {
	return m.Called(ctx, ownerID, notebookID, sourceID).Error(0)
}

func (m *mockBackend) CreateMessage(ctx context.Context, ownerID, notebookID uuid.UUID, in service.MessageInput) (*models.NotebookMessage, error) {
	args := m.Called(ctx, ownerID, notebookID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.NotebookMessage), args.Error(1)
}

func (m *mockBackend) ListMessages(ctx context.Context, ownerID, notebookID uuid.UUID, limit int) ([]models.NotebookMessage, error) {
	args := m.Called(ctx, ownerID, notebookID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.NotebookMessage), args.Error(1)
}

func (m *mockBackend) CheckConsistency(ctx context.Context) (*service.ConsistencyReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ConsistencyReport), args.Error(1)
}

func (m *mockBackend) RunCleanup(ctx context.Context, mode string, dryRun bool) (*service.CleanupReport, error) {
	args := m.Called(ctx, mode, dryRun)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.CleanupReport), args.Error(1)
}

type mockSearch struct {
	mock.Mock
}

func (m *mockSearch) Documents(ctx context.Context, ownerID uuid.UUID, query string, limit int, scoreThreshold float32) (*service.SearchResponse, error) {
	args := m.Called(ctx, ownerID, query, limit, scoreThreshold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SearchResponse), args.Error(1)
}

func (m *mockSearch) LookUpSources(ctx context.Context, ownerID uuid.UUID, query string, topK int, selectedIDs []string, contextBlock string) (string, error) {
	args := m.Called(ctx, ownerID, query, topK, selectedIDs, contextBlock)
	return args.String(0), args.Error(1)
}

func (m *mockSearch) Health(ctx context.Context) service.SearchHealth {
	return m.Called(ctx).Get(0).(service.SearchHealth)
}

func newTestServer(store Backend, search SearchBackend) *echo.Echo {
	e := NewEchoServer(config.ServerConfig{Debug: true}, config.SecurityConfig{})
	NewAPI(store, search).RegisterRoutes(e, "/api/v1", testSecret, "notebase", "test")
	return e
}

func signToken(t *testing.T, owner uuid.UUID, superuser bool) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":          owner.String(),
		"is_superuser": superuser,
		"exp":          time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func doJSON(e *echo.Echo, method, target, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRoutesRequireToken(t *testing.T) {
	e := newTestServer(new(mockBackend), new(mockSearch))

	rec := doJSON(e, http.MethodGet, "/api/v1/uploads/documents", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthEndpointIsPublic(t *testing.T) {
	e := newTestServer(new(mockBackend), new(mockSearch))

	rec := doJSON(e, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
}

func TestUploadFilesMultipart(t *testing.T) {
	owner := uuid.New()
	store := new(mockBackend)
	store.On("UploadFiles", mock.Anything, owner, mock.MatchedBy(func(files []service.UploadFile) bool {
		return len(files) == 1 && files[0].Filename == "notes.txt" && string(files[0].Data) == "hello world\n"
	})).Return(&service.UploadOutcome{
		Documents: []models.Document{{Filename: "notes.txt"}},
	}, nil)

	e := newTestServer(store, new(mockSearch))

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("files", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("hello world\n"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads/files", &buf)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+signToken(t, owner, false))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	store.AssertExpectations(t)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "1 of 1 files accepted", body["message"])
}

func TestErrorKindsMapToStatusCodes(t *testing.T) {
	owner := uuid.New()
	docID := uuid.New()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", service.Wrap(service.ErrNotFound, "document not found"), http.StatusNotFound},
		{"validation", service.Wrap(service.ErrValidation, "bad input"), http.StatusBadRequest},
		{"conflict", service.Wrap(service.ErrConflict, "duplicate"), http.StatusConflict},
		{"rate limited", service.Wrap(service.ErrRateLimited, "slow down"), http.StatusTooManyRequests},
		{"unavailable", service.Wrap(service.ErrExternalUnavailable, "blob store down"), http.StatusServiceUnavailable},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := new(mockBackend)
			store.On("GetDocument", mock.Anything, owner, docID).Return(nil, tc.err)
			e := newTestServer(store, new(mockSearch))

			rec := doJSON(e, http.MethodGet, "/api/v1/uploads/documents/"+docID.String(), signToken(t, owner, false), nil)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestDeleteDocumentResponse(t *testing.T) {
	owner := uuid.New()
	docID := uuid.New()
	store := new(mockBackend)
	store.On("DeleteDocument", mock.Anything, owner, docID).Return(nil)

	e := newTestServer(store, new(mockSearch))
	rec := doJSON(e, http.MethodDelete, "/api/v1/uploads/documents/"+docID.String(), signToken(t, owner, false), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, docID.String(), body["document_id"])
}

func TestPresignClampsExpiry(t *testing.T) {
	owner := uuid.New()
	store := new(mockBackend)
	store.On("PresignDownload", mock.Anything, owner, "k/v.txt", 1440*time.Minute).Return("https://signed", nil)
	store.On("BucketName").Return("app-docs")

	e := newTestServer(store, new(mockSearch))
	rec := doJSON(e, http.MethodGet, "/api/v1/uploads/presign?key=k/v.txt&expires_minutes=99999", signToken(t, owner, false), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "https://signed", body["url"])
	assert.Equal(t, "app-docs", body["bucket"])
	store.AssertExpectations(t)
}

func TestCleanupRequiresSuperuser(t *testing.T) {
	owner := uuid.New()
	store := new(mockBackend)
	e := newTestServer(store, new(mockSearch))

	rec := doJSON(e, http.MethodPost, "/api/v1/uploads/cleanup/full", signToken(t, owner, false), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	store.On("RunCleanup", mock.Anything, "full", true).Return(&service.CleanupReport{Mode: "full", DryRun: true}, nil)
	rec = doJSON(e, http.MethodPost, "/api/v1/uploads/cleanup/full?dry_run=true", signToken(t, owner, true), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	store.AssertExpectations(t)
}

func TestAddNotebookSourcePassesPosition(t *testing.T) {
	owner := uuid.New()
	nbID := uuid.New()
	srcID := uuid.New()
	pos := 3

	store := new(mockBackend)
	store.On("AddSourceToNotebook", mock.Anything, owner, nbID, srcID, &pos).
		Return(&models.NotebookSource{NotebookID: nbID, SourceID: srcID, Position: pos}, nil)

	e := newTestServer(store, new(mockSearch))
	rec := doJSON(e, http.MethodPost, "/api/v1/notebooks/"+nbID.String()+"/sources", signToken(t, owner, false),
		map[string]interface{}{"source_id": srcID.String(), "position": pos})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	store.AssertExpectations(t)
}

func TestSearchDocumentsValidation(t *testing.T) {
	owner := uuid.New()
	e := newTestServer(new(mockBackend), new(mockSearch))

	rec := doJSON(e, http.MethodGet, "/api/v1/search/documents", signToken(t, owner, false), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/v1/search/documents?query=x&score_threshold=1.5", signToken(t, owner, false), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchDocuments(t *testing.T) {
	owner := uuid.New()
	search := new(mockSearch)
	search.On("Documents", mock.Anything, owner, "greet", 10, float32(0)).
		Return(&service.SearchResponse{Query: "greet", Total: 1}, nil)

	e := newTestServer(new(mockBackend), search)
	rec := doJSON(e, http.MethodGet, "/api/v1/search/documents?query=greet", signToken(t, owner, false), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	search.AssertExpectations(t)
}

func TestRetrieveSources(t *testing.T) {
	owner := uuid.New()
	search := new(mockSearch)
	// The authenticated owner from the token must reach the lookup, along
	// with the requested top_k.
	search.On("LookUpSources", mock.Anything, owner, "pricing details", 3, []string{"src-1", "src-2"}, "").
		Return("1. score=0.9100 ref=<src-1>\nrelevant text", nil)

	e := newTestServer(new(mockBackend), search)
	rec := doJSON(e, http.MethodPost, "/api/v1/search/retrieve", signToken(t, owner, false),
		map[string]interface{}{"query": "pricing details", "top_k": 3, "selected_source_ids": []string{"src-1", "src-2"}})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["result"], "ref=<src-1>")
	search.AssertExpectations(t)
}

func TestDeleteNotebookReturnsCleanupSummary(t *testing.T) {
	owner := uuid.New()
	nbID := uuid.New()
	store := new(mockBackend)
	store.On("DeleteNotebook", mock.Anything, owner, nbID).
		Return(&service.CleanupSummary{TotalOrphaned: 2, SuccessfullyDeleted: 2}, nil)

	e := newTestServer(store, new(mockSearch))
	rec := doJSON(e, http.MethodDelete, "/api/v1/notebooks/"+nbID.String(), signToken(t, owner, false), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		CleanupSummary service.CleanupSummary `json:"cleanup_summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.CleanupSummary.TotalOrphaned)
}
