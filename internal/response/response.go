package response

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Envelope wraps read-side payloads.
type Envelope struct {
	Data    any    `json:"data"`
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
	Path    string `json:"path"`
}

// ErrorEnvelope is returned for read-side failures.
type ErrorEnvelope struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Path    string `json:"path"`
	Status  int    `json:"status"`
}

// Receipt is the body the receiver answers browser plugins with.
type Receipt struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func requestPath(c echo.Context) string {
	if c == nil || c.Request() == nil {
		return ""
	}
	return c.Request().URL.Path
}

// OK sends a 200 envelope with data.
func OK(c echo.Context, data any, message string) error {
	return c.JSON(http.StatusOK, Envelope{
		Data:    data,
		Status:  http.StatusOK,
		Message: message,
		Path:    requestPath(c),
	})
}

// Error sends an error envelope with the given status.
func Error(c echo.Context, status int, message, detail string) error {
	return c.JSON(status, ErrorEnvelope{
		Message: message,
		Error:   detail,
		Path:    requestPath(c),
		Status:  status,
	})
}

func NotFound(c echo.Context, message, detail string) error {
	return Error(c, http.StatusNotFound, message, detail)
}

func InternalError(c echo.Context, message, detail string) error {
	return Error(c, http.StatusInternalServerError, message, detail)
}

// Accepted answers a stored ingestion with {"status":"ok"}.
func Accepted(c echo.Context) error {
	return c.JSON(http.StatusOK, Receipt{Status: "ok"})
}

// Refused answers a rejected or failed ingestion with
// {"status":"error","message":...}.
func Refused(c echo.Context, status int, message string) error {
	return c.JSON(status, Receipt{Status: "error", Message: message})
}
