package http

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"notebase.evalgo.org/models"
	"notebase.evalgo.org/service"
)

// Backend is the resource surface the handlers depend on, satisfied by
// service.Resources.
type Backend interface {
	UploadFiles(ctx context.Context, ownerID uuid.UUID, files []service.UploadFile) (*service.UploadOutcome, error)
	ListDocuments(ctx context.Context, ownerID uuid.UUID, skip, limit int) (*service.DocumentList, error)
	GetDocument(ctx context.Context, ownerID, documentID uuid.UUID) (*models.Document, error)
	DeleteDocument(ctx context.Context, ownerID, documentID uuid.UUID) error
	DeleteDocuments(ctx context.Context, ownerID uuid.UUID, documentIDs []uuid.UUID) *service.BatchDeleteOutcome
	PresignDownload(ctx context.Context, ownerID uuid.UUID, key string, expires time.Duration) (string, error)
	BucketName() string

	CreateSource(ctx context.Context, ownerID uuid.UUID, in service.SourceInput) (*models.Source, error)
	GetSource(ctx context.Context, ownerID, sourceID uuid.UUID) (*models.Source, error)
	ListSources(ctx context.Context, ownerID uuid.UUID, skip, limit int) ([]models.Source, error)
	UpdateSource(ctx context.Context, ownerID, sourceID uuid.UUID, title, description string) (*models.Source, error)
	DeleteSource(ctx context.Context, ownerID, sourceID uuid.UUID) error

	CreateNotebook(ctx context.Context, ownerID uuid.UUID, in service.NotebookInput) (*models.Notebook, error)
	GetNotebook(ctx context.Context, ownerID, notebookID uuid.UUID) (*models.Notebook, error)
	ListNotebooks(ctx context.Context, ownerID uuid.UUID) ([]models.Notebook, error)
	UpdateNotebook(ctx context.Context, ownerID, notebookID uuid.UUID, in service.NotebookInput) (*models.Notebook, error)
	DeleteNotebook(ctx context.Context, ownerID, notebookID uuid.UUID) (*service.CleanupSummary, error)

	AddSourceToNotebook(ctx context.Context, ownerID, notebookID, sourceID uuid.UUID, position *int) (*models.NotebookSource, error)
	ListNotebookSources(ctx context.Context, ownerID, notebookID uuid.UUID) ([]models.NotebookSource, error)
	UpdateSourcePosition(ctx context.Context, ownerID, notebookID, sourceID uuid.UUID, position int) (*models.NotebookSource, error)
	RemoveSourceFromNotebook(ctx context.Context, ownerID, notebookID, sourceID uuid.UUID) error

	CreateMessage(ctx context.Context, ownerID, notebookID uuid.UUID, in service.MessageInput) (*models.NotebookMessage, error)
	ListMessages(ctx context.Context, ownerID, notebookID uuid.UUID, limit int) ([]models.NotebookMessage, error)

	CheckConsistency(ctx context.Context) (*service.ConsistencyReport, error)
	RunCleanup(ctx context.Context, mode string, dryRun bool) (*service.CleanupReport, error)
}

// SearchBackend is the semantic search surface, satisfied by service.Search.
type SearchBackend interface {
	Documents(ctx context.Context, ownerID uuid.UUID, query string, limit int, scoreThreshold float32) (*service.SearchResponse, error)
	LookUpSources(ctx context.Context, ownerID uuid.UUID, query string, topK int, selectedIDs []string, contextBlock string) (string, error)
	Health(ctx context.Context) service.SearchHealth
}

// API wires the REST handlers.
type API struct {
	store  Backend
	search SearchBackend
}

// NewAPI creates the handler set.
func NewAPI(store Backend, search SearchBackend) *API {
	return &API{store: store, search: search}
}

// RegisterRoutes mounts the API under prefix. Everything except the health
// endpoint requires a verified bearer token.
func (a *API) RegisterRoutes(e *echo.Echo, prefix, jwtSecret, serviceName, version string) {
	e.GET("/healthz", HealthCheckHandler(serviceName, version))

	g := e.Group(prefix)
	g.Use(JWTMiddleware(jwtSecret))

	g.POST("/uploads/files", a.uploadFiles)
	g.GET("/uploads/documents", a.listDocuments)
	g.GET("/uploads/documents/:id", a.getDocument)
	g.DELETE("/uploads/documents/:id", a.deleteDocument)
	g.DELETE("/uploads/documents", a.deleteDocuments)
	g.GET("/uploads/presign", a.presignDownload)
	g.GET("/uploads/consistency-check", a.consistencyCheck, RequireSuperuser)
	g.POST("/uploads/cleanup/:mode", a.runCleanup, RequireSuperuser)

	g.POST("/sources", a.createSource)
	g.GET("/sources", a.listSources)
	g.GET("/sources/:id", a.getSource)
	g.PUT("/sources/:id", a.updateSource)
	g.DELETE("/sources/:id", a.deleteSource)

	g.POST("/notebooks", a.createNotebook)
	g.GET("/notebooks", a.listNotebooks)
	g.GET("/notebooks/:id", a.getNotebook)
	g.PUT("/notebooks/:id", a.updateNotebook)
	g.DELETE("/notebooks/:id", a.deleteNotebook)

	g.POST("/notebooks/:nb/sources", a.addNotebookSource)
	g.GET("/notebooks/:nb/sources", a.listNotebookSources)
	g.PUT("/notebooks/:nb/sources/:id", a.updateNotebookSourcePosition)
	g.DELETE("/notebooks/:nb/sources/:id", a.removeNotebookSource)

	g.GET("/notebooks/:nb/messages", a.listMessages)
	g.POST("/notebooks/:nb/messages", a.createMessage)

	g.GET("/search/documents", a.searchDocuments)
	g.POST("/search/retrieve", a.retrieveSources)
	g.GET("/search/health", a.searchHealth)
}

// pathID parses a uuid path parameter.
func pathID(c echo.Context, name string) (uuid.UUID, error) {
	return parseID(c.Param(name), name)
}

func parseID(raw, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, service.Wrap(service.ErrValidation, "%s is not a valid id", name)
	}
	return id, nil
}
