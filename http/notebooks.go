package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"notebase.evalgo.org/service"
)

func (a *API) createNotebook(c echo.Context) error {
	owner, err := OwnerID(c)
	if err != nil {
		return err
	}

	var in service.NotebookInput
	if err := c.Bind(&in); err != nil {
		return service.Wrap(service.ErrValidation, "malformed notebook payload")
	}

	nb, err := a.store.CreateNotebook(c.Request().Context(), owner, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, nb)
}

func (a *API) listNotebooks(c echo.Context) error {
	owner, err := OwnerID(c)
	if err != nil {
		return err
	}

	notebooks, err := a.store.ListNotebooks(c.Request().Context(), owner)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"notebooks": notebooks,
		"count":     len(notebooks),
	})
}

func (a *API) getNotebook(c echo.Context) error {
	owner, err := OwnerID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	nb, err := a.store.GetNotebook(c.Request().Context(), owner, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nb)
}

func (a *API) updateNotebook(c echo.Context) error {
	owner, err := OwnerID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	var in service.NotebookInput
	if err := c.Bind(&in); err != nil {
		return service.Wrap(service.ErrValidation, "malformed notebook payload")
	}

	nb, err := a.store.UpdateNotebook(c.Request().Context(), owner, id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nb)
}

// deleteNotebook cascades to sources used by no other notebook and reports
// what the cascade removed.
func (a *API) deleteNotebook(c echo.Context) error {
	owner, err := OwnerID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	summary, err := a.store.DeleteNotebook(c.Request().Context(), owner, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":         "notebook deleted",
		"cleanup_summary": summary,
	})
}

// addNotebookSource attaches a source; repeating the call returns the
// existing membership row unchanged.
func (a *API) addNotebookSource(c echo.Context) error {
	owner, err := OwnerID(c)
	if err != nil {
		return err
	}
	nb, err := pathID(c, "nb")
	if err != nil {
		return err
	}

	var in struct {
		SourceID string `json:"source_id"`
		Position *int   `json:"position"`
	}
	if err := c.Bind(&in); err != nil {
		return service.Wrap(service.ErrValidation, "malformed membership payload")
	}
	sourceID, err := parseID(in.SourceID, "source_id")
	if err != nil {
		return err
	}

	row, err := a.store.AddSourceToNotebook(c.Request().Context(), owner, nb, sourceID, in.Position)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, row)
}

func (a *API) listNotebookSources(c echo.Context) error {
	owner, err := OwnerID(c)
	if err != nil {
		return err
	}
	nb, err := pathID(c, "nb")
	if err != nil {
		return err
	}

	rows, err := a.store.ListNotebookSources(c.Request().Context(), owner, nb)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sources": rows,
		"count":   len(rows),
	})
}

func (a *API) updateNotebookSourcePosition(c echo.Context) error {
	owner, err := OwnerID(c)
	if err != nil {
		return err
	}
	nb, err := pathID(c, "nb")
	if err != nil {
		return err
	}
	sourceID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	var in struct {
		Position *int `json:"position"`
	}
	if err := c.Bind(&in); err != nil || in.Position == nil {
		return service.Wrap(service.ErrValidation, "position is required")
	}

	row, err := a.store.UpdateSourcePosition(c.Request().Context(), owner, nb, sourceID, *in.Position)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, row)
}

func (a *API) removeNotebookSource(c echo.Context) error {
	owner, err := OwnerID(c)
	if err != nil {
		return err
	}
	nb, err := pathID(c, "nb")
	if err != nil {
		return err
	}
	sourceID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	if err := a.store.RemoveSourceFromNotebook(c.Request().Context(), owner, nb, sourceID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "source removed from notebook"})
}

func (a *API) listMessages(c echo.Context) error {
	owner, err := OwnerID(c)
	if err != nil {
		return err
	}
	nb, err := pathID(c, "nb")
	if err != nil {
		return err
	}

	msgs, err := a.store.ListMessages(c.Request().Context(), owner, nb, queryInt(c, "limit", 0))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"messages": msgs,
		"count":    len(msgs),
	})
}

func (a *API) createMessage(c echo.Context) error {
	owner, err := OwnerID(c)
	if err != nil {
		return err
	}
	nb, err := pathID(c, "nb")
	if err != nil {
		return err
	}

	var in service.MessageInput
	if err := c.Bind(&in); err != nil {
		return service.Wrap(service.ErrValidation, "malformed message payload")
	}

	msg, err := a.store.CreateMessage(c.Request().Context(), owner, nb, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, msg)
}
