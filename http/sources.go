package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"notebase.evalgo.org/service"
)

func (a *API) createSource(c echo.Context) error {
	owner, err := OwnerID(c)
	if err != nil {
		return err
	}

	var in service.SourceInput
	if err := c.Bind(&in); err != nil {
		return service.Wrap(service.ErrValidation, "malformed source payload")
	}

	src, err := a.store.CreateSource(c.Request().Context(), owner, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, src)
}

func (a *API) listSources(c echo.Context) error {
	owner, err := OwnerID(c)
	if err != nil {
		return err
	}

	sources, err := a.store.ListSources(c.Request().Context(), owner, queryInt(c, "skip", 0), queryInt(c, "limit", 100))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sources": sources,
		"count":   len(sources),
	})
}

func (a *API) getSource(c echo.Context) error {
	owner, err := OwnerID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	src, err := a.store.GetSource(c.Request().Context(), owner, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, src)
}

// updateSource changes title and description only; type and metadata are
// fixed at creation.
func (a *API) updateSource(c echo.Context) error {
	owner, err := OwnerID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	var in struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := c.Bind(&in); err != nil {
		return service.Wrap(service.ErrValidation, "malformed source payload")
	}

	src, err := a.store.UpdateSource(c.Request().Context(), owner, id, in.Title, in.Description)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, src)
}

func (a *API) deleteSource(c echo.Context) error {
	owner, err := OwnerID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	if err := a.store.DeleteSource(c.Request().Context(), owner, id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message":   "source deleted",
		"source_id": id.String(),
	})
}
