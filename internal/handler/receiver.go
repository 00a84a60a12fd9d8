package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/akave-ai/browserlog/internal/ingest"
	"github.com/akave-ai/browserlog/internal/response"
)

const maxLoggedBody = 2048

// Ingester runs one ingestion request to completion.
type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) ingest.Result
}

// ReceiverHandler serves the plugin-facing receiver endpoint. It only moves
// bytes between HTTP and the ingest service.
type ReceiverHandler struct {
	Service      Ingester
	MaxBodyBytes int64
	Logger       zerolog.Logger
}

// Receive handles every method on the receiver path; the service decides
// which ones are served.
func (h *ReceiverHandler) Receive(c echo.Context) error {
	r := c.Request()

	var body io.Reader = r.Body
	if h.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(c.Response(), r.Body, h.MaxBodyBytes)
	}
	data, readErr := io.ReadAll(body)

	if e := h.Logger.Debug(); e.Enabled() {
		preview := data
		if len(preview) > maxLoggedBody {
			preview = preview[:maxLoggedBody]
		}
		e.Int("bytes", len(data)).Bytes("preview", preview).Msg("receiver body")
	}

	res := h.Service.Ingest(r.Context(), ingest.Request{
		Method:  r.Method,
		Header:  r.Header,
		Body:    data,
		ReadErr: readErr,
		IP:      c.RealIP(),
	})
	switch {
	case res.OK():
		return response.Accepted(c)
	case res.HTTPStatus == http.StatusNotFound:
		return echo.ErrNotFound
	default:
		return response.Refused(c, res.HTTPStatus, res.Message)
	}
}
