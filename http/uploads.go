package http

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"notebase.evalgo.org/service"
)

// uploadFiles accepts a multipart batch under the "files" field. Per-file
// failures come back in failed_uploads alongside the accepted documents.
func (a *API) uploadFiles(c echo.Context) error {
	owner, err := OwnerID(c)
	if err != nil {
		return err
	}

	form, err := c.MultipartForm()
	if err != nil {
		return service.Wrap(service.ErrValidation, "expected multipart form data")
	}
	parts := form.File["files"]
	if len(parts) == 0 {
		return service.Wrap(service.ErrValidation, "no files provided")
	}

	files := make([]service.UploadFile, 0, len(parts))
	for _, part := range parts {
		src, err := part.Open()
		if err != nil {
			return service.Wrap(service.ErrValidation, "unreadable part %q", part.Filename)
		}
		data, err := io.ReadAll(src)
		_ = src.Close()
		if err != nil {
			return service.Wrap(service.ErrValidation, "unreadable part %q", part.Filename)
		}
		files = append(files, service.UploadFile{
			Filename: part.Filename,
			MimeType: part.Header.Get(echo.HeaderContentType),
			Data:     data,
		})
	}

	outcome, err := a.store.UploadFiles(c.Request().Context(), owner, files)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"documents":      outcome.Documents,
		"failed_uploads": outcome.Failed,
		"message":        fmt.Sprintf("%d of %d files accepted", len(outcome.Documents), len(parts)),
	})
}

func (a *API) listDocuments(c echo.Context) error {
	owner, err := OwnerID(c)
	if err != nil {
		return err
	}

	skip := queryInt(c, "skip", 0)
	limit := queryInt(c, "limit", 100)

	list, err := a.store.ListDocuments(c.Request().Context(), owner, skip, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

func (a *API) getDocument(c echo.Context) error {
	owner, err := OwnerID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	doc, err := a.store.GetDocument(c.Request().Context(), owner, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, doc)
}

func (a *API) deleteDocument(c echo.Context) error {
	owner, err := OwnerID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	if err := a.store.DeleteDocument(c.Request().Context(), owner, id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message":     "document deleted",
		"document_id": id.String(),
	})
}

// deleteDocuments removes a batch; individual failures are reported, not
// fatal.
func (a *API) deleteDocuments(c echo.Context) error {
	owner, err := OwnerID(c)
	if err != nil {
		return err
	}

	var raw []string
	if err := c.Bind(&raw); err != nil {
		return service.Wrap(service.ErrValidation, "expected a JSON array of document ids")
	}
	if len(raw) == 0 {
		return service.Wrap(service.ErrValidation, "no document ids provided")
	}

	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return service.Wrap(service.ErrValidation, "%q is not a valid id", s)
		}
		ids = append(ids, id)
	}

	outcome := a.store.DeleteDocuments(c.Request().Context(), owner, ids)
	return c.JSON(http.StatusOK, outcome)
}

// presignDownload issues a time-limited download URL for an owned object.
func (a *API) presignDownload(c echo.Context) error {
	owner, err := OwnerID(c)
	if err != nil {
		return err
	}

	key := c.QueryParam("key")
	if key == "" {
		return service.Wrap(service.ErrValidation, "key is required")
	}

	minutes := queryInt(c, "expires_minutes", 60)
	if minutes < 1 {
		minutes = 1
	}
	if minutes > 1440 {
		minutes = 1440
	}

	url, err := a.store.PresignDownload(c.Request().Context(), owner, key, time.Duration(minutes)*time.Minute)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{
		"url":    url,
		"bucket": a.store.BucketName(),
		"key":    key,
	})
}

func (a *API) consistencyCheck(c echo.Context) error {
	report, err := a.store.CheckConsistency(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

func (a *API) runCleanup(c echo.Context) error {
	mode := c.Param("mode")
	dryRun, _ := strconv.ParseBool(c.QueryParam("dry_run"))

	report, err := a.store.RunCleanup(c.Request().Context(), mode, dryRun)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

// queryInt parses an integer query parameter with a fallback.
func queryInt(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
