package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"notebase.evalgo.org/service"
)

// searchDocuments runs an owner-wide semantic search over everything the
// user has indexed.
func (a *API) searchDocuments(c echo.Context) error {
	owner, err := OwnerID(c)
	if err != nil {
		return err
	}

	query := c.QueryParam("query")
	if query == "" {
		return service.Wrap(service.ErrValidation, "query is required")
	}

	limit := queryInt(c, "limit", 10)

	var threshold float32
	if raw := c.QueryParam("score_threshold"); raw != "" {
		f, err := strconv.ParseFloat(raw, 32)
		if err != nil || f < 0 || f > 1 {
			return service.Wrap(service.ErrValidation, "score_threshold must be in [0,1]")
		}
		threshold = float32(f)
	}

	resp, err := a.search.Documents(c.Request().Context(), owner, query, limit, threshold)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// retrieveSources answers the assistant's retrieval tool call against an
// explicit source selection, or one parsed from the conversation context.
// Lookups run under the authenticated owner's filter.
func (a *API) retrieveSources(c echo.Context) error {
	owner, err := OwnerID(c)
	if err != nil {
		return err
	}

	var req struct {
		Query             string   `json:"query"`
		TopK              int      `json:"top_k"`
		SelectedSourceIDs []string `json:"selected_source_ids"`
		Context           string   `json:"context"`
	}
	if err := c.Bind(&req); err != nil {
		return service.Wrap(service.ErrValidation, "invalid request body")
	}

	result, err := a.search.LookUpSources(c.Request().Context(), owner, req.Query, req.TopK, req.SelectedSourceIDs, req.Context)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"result": result})
}

func (a *API) searchHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, a.search.Health(c.Request().Context()))
}
