package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/akave-ai/browserlog/internal/export"
	"github.com/akave-ai/browserlog/internal/model"
	"github.com/akave-ai/browserlog/internal/query"
	"github.com/akave-ai/browserlog/internal/response"
	"github.com/akave-ai/browserlog/internal/storage"
)

// LogReader is the read side of the log entry store.
type LogReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.LogEntry, error)
	Page(ctx context.Context, c query.Criteria, requested string) ([]model.LogEntry, query.Page, error)
	Each(ctx context.Context, c query.Criteria, fn func(*model.LogEntry) error) error
	Employees(ctx context.Context) ([]string, error)
}

// FailedReader is the read side of the failed entry store.
type FailedReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.FailedLogEntry, error)
	Page(ctx context.Context, requested string) ([]model.FailedLogEntry, query.Page, error)
}

// ArtifactReader loads the diagnostic file of a failed entry.
type ArtifactReader interface {
	Read(ctx context.Context, failed *model.FailedLogEntry) ([]byte, error)
}

// LogHandler serves the operator-facing browse, detail and export routes.
type LogHandler struct {
	Logs      LogReader
	Failed    FailedReader
	Artifacts ArtifactReader
	Logger    zerolog.Logger
}

type logPage struct {
	Entries     []model.LogEntry `json:"entries"`
	Page        int              `json:"page"`
	NumPages    int              `json:"num_pages"`
	Total       int              `json:"total"`
	HasNext     bool             `json:"has_next"`
	HasPrevious bool             `json:"has_previous"`
	Sort        string           `json:"sort"`
	Order       string           `json:"order"`
}

type failedPage struct {
	Entries     []model.FailedLogEntry `json:"entries"`
	Page        int                    `json:"page"`
	NumPages    int                    `json:"num_pages"`
	Total       int                    `json:"total"`
	HasNext     bool                   `json:"has_next"`
	HasPrevious bool                   `json:"has_previous"`
}

// criteria binds the filter form. Anything that does not bind or validate
// falls back to the unfiltered default ordering.
func criteria(c echo.Context) (query.Criteria, string) {
	var p query.Params
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &p); err != nil {
		return query.Default(), c.QueryParam("page")
	}
	return query.Resolve(p), p.Page
}

func parseID(c echo.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	return id, err == nil
}

// List returns one page of filtered entries (GET /logs).
func (h *LogHandler) List(c echo.Context) error {
	crit, requested := criteria(c)
	entries, page, err := h.Logs.Page(c.Request().Context(), crit, requested)
	if err != nil {
		h.Logger.Error().Err(err).Msg("list log entries")
		return response.InternalError(c, "could not list log entries", err.Error())
	}
	if entries == nil {
		entries = []model.LogEntry{}
	}
	order := "desc"
	if !crit.Descending {
		order = "asc"
	}
	return response.OK(c, logPage{
		Entries:     entries,
		Page:        page.Number,
		NumPages:    page.NumPages,
		Total:       page.Total,
		HasNext:     page.HasNext(),
		HasPrevious: page.HasPrevious(),
		Sort:        crit.SortField,
		Order:       order,
	}, "")
}

// Employees returns the distinct submitters for the employee filter (GET /logs/employees).
func (h *LogHandler) Employees(c echo.Context) error {
	names, err := h.Logs.Employees(c.Request().Context())
	if err != nil {
		h.Logger.Error().Err(err).Msg("list employees")
		return response.InternalError(c, "could not list employees", err.Error())
	}
	if names == nil {
		names = []string{}
	}
	return response.OK(c, map[string]any{"employees": names}, "")
}

func (h *LogHandler) Get(c echo.Context) error {
	entry, err := h.entry(c)
	if err != nil || entry == nil {
		return err
	}
	return response.OK(c, entry, "")
}

// HTML renders the stored page snapshot of an entry (GET /logs/:id/html). An
// entry without a snapshot renders as an empty page.
func (h *LogHandler) HTML(c echo.Context) error {
	entry, err := h.entry(c)
	if err != nil || entry == nil {
		return err
	}
	return c.HTML(http.StatusOK, strings.ToValidUTF8(string(entry.HTML), "\uFFFD"))
}

// entry loads the :id entry. It writes the error response itself and returns
// a nil entry when the caller should stop.
func (h *LogHandler) entry(c echo.Context) (*model.LogEntry, error) {
	id, ok := parseID(c)
	if !ok {
		return nil, response.NotFound(c, "log entry not found", "invalid id")
	}
	entry, err := h.Logs.GetByID(c.Request().Context(), id)
	if err != nil {
		h.Logger.Error().Err(err).Str("id", id.String()).Msg("get log entry")
		return nil, response.InternalError(c, "could not load log entry", err.Error())
	}
	if entry == nil {
		return nil, response.NotFound(c, "log entry not found", id.String())
	}
	return entry, nil
}

// Export streams the filtered, sorted entries as CSV (GET /logs/export). The
// status line is held back until the first row arrives, so a query that fails
// up front still gets a 500.
func (h *LogHandler) Export(c echo.Context) error {
	crit, _ := criteria(c)
	res := c.Response()

	var w *export.Writer
	err := h.Logs.Each(c.Request().Context(), crit, func(e *model.LogEntry) error {
		if w == nil {
			var err error
			if w, err = startCSV(res); err != nil {
				return err
			}
		}
		return w.Write(e)
	})
	if err != nil && w == nil {
		h.Logger.Error().Err(err).Msg("export log entries")
		return response.InternalError(c, "could not export log entries", err.Error())
	}
	if w == nil {
		if w, err = startCSV(res); err != nil {
			return err
		}
	}
	if flushErr := w.Flush(); err == nil {
		err = flushErr
	}
	if err != nil {
		// Rows were already sent; the client sees a truncated file.
		h.Logger.Error().Err(err).Msg("export interrupted")
	}
	return nil
}

func startCSV(res *echo.Response) (*export.Writer, error) {
	res.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	res.Header().Set(echo.HeaderContentDisposition, `attachment; filename="logs.csv"`)
	res.WriteHeader(http.StatusOK)
	return export.NewWriter(res)
}

// ListFailed returns failed ingestion attempts, newest first (GET /failed).
func (h *LogHandler) ListFailed(c echo.Context) error {
	entries, page, err := h.Failed.Page(c.Request().Context(), c.QueryParam("page"))
	if err != nil {
		h.Logger.Error().Err(err).Msg("list failed entries")
		return response.InternalError(c, "could not list failed entries", err.Error())
	}
	if entries == nil {
		entries = []model.FailedLogEntry{}
	}
	return response.OK(c, failedPage{
		Entries:     entries,
		Page:        page.Number,
		NumPages:    page.NumPages,
		Total:       page.Total,
		HasNext:     page.HasNext(),
		HasPrevious: page.HasPrevious(),
	}, "")
}

// Artifact returns the diagnostic file of a failed entry (GET /failed/:id/artifact).
func (h *LogHandler) Artifact(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return response.NotFound(c, "failed entry not found", "invalid id")
	}
	ctx := c.Request().Context()
	failed, err := h.Failed.GetByID(ctx, id)
	if err != nil {
		h.Logger.Error().Err(err).Str("id", id.String()).Msg("get failed entry")
		return response.InternalError(c, "could not load failed entry", err.Error())
	}
	if failed == nil {
		return response.NotFound(c, "failed entry not found", id.String())
	}
	data, err := h.Artifacts.Read(ctx, failed)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return response.NotFound(c, "artifact not found", id.String())
	}
	if err != nil {
		h.Logger.Error().Err(err).Str("id", id.String()).Msg("read artifact")
		return response.InternalError(c, "could not read artifact", err.Error())
	}
	return c.Blob(http.StatusOK, "text/plain; charset=utf-8", data)
}
