package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/akave-ai/browserlog/internal/ingest"
	"github.com/akave-ai/browserlog/internal/model"
	"github.com/akave-ai/browserlog/internal/query"
	"github.com/akave-ai/browserlog/internal/storage"
)

type stubIngester struct {
	got    ingest.Request
	result ingest.Result
}

func (s *stubIngester) Ingest(_ context.Context, req ingest.Request) ingest.Result {
	s.got = req
	return s.result
}

type memLogs struct {
	entries   map[uuid.UUID]*model.LogEntry
	crit      query.Criteria
	requested string
	err       error
}

func (m *memLogs) GetByID(_ context.Context, id uuid.UUID) (*model.LogEntry, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.entries[id], nil
}

func (m *memLogs) Page(_ context.Context, c query.Criteria, requested string) ([]model.LogEntry, query.Page, error) {
	m.crit, m.requested = c, requested
	if m.err != nil {
		return nil, query.Page{}, m.err
	}
	var list []model.LogEntry
	for _, e := range m.entries {
		list = append(list, *e)
	}
	return list, query.Paginate(len(list), requested), nil
}

func (m *memLogs) Each(_ context.Context, c query.Criteria, fn func(*model.LogEntry) error) error {
	m.crit = c
	if m.err != nil {
		return m.err
	}
	for _, e := range m.entries {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (m *memLogs) Employees(context.Context) ([]string, error) {
	return []string{"alice", "bob"}, nil
}

type memFailed struct {
	entries map[uuid.UUID]*model.FailedLogEntry
}

func (m *memFailed) GetByID(_ context.Context, id uuid.UUID) (*model.FailedLogEntry, error) {
	return m.entries[id], nil
}

func (m *memFailed) Page(_ context.Context, requested string) ([]model.FailedLogEntry, query.Page, error) {
	var list []model.FailedLogEntry
	for _, f := range m.entries {
		list = append(list, *f)
	}
	return list, query.Paginate(len(list), requested), nil
}

type memArtifacts map[uuid.UUID][]byte

func (m memArtifacts) Read(_ context.Context, f *model.FailedLogEntry) ([]byte, error) {
	data, ok := m[f.ID]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return data, nil
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.IPExtractor = echo.ExtractIPDirect()
	return e
}

func TestReceive_OK(t *testing.T) {
	e := newEcho()
	svc := &stubIngester{result: ingest.Result{HTTPStatus: http.StatusOK}}
	h := &ReceiverHandler{Service: svc, MaxBodyBytes: 1024, Logger: zerolog.Nop()}

	req := httptest.NewRequest(http.MethodPost, "/receiver", strings.NewReader(`{"pluginKey":"X"}`))
	req.RemoteAddr = "10.0.0.7:5555"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	rec := httptest.NewRecorder()

	if err := h.Receive(e.NewContext(req, rec)); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"status":"ok"}` {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
	if svc.got.IP != "10.0.0.7" {
		t.Fatalf("ip = %q, forwarded header must be ignored", svc.got.IP)
	}
	if string(svc.got.Body) != `{"pluginKey":"X"}` || svc.got.Method != http.MethodPost || svc.got.ReadErr != nil {
		t.Fatalf("unexpected request %+v", svc.got)
	}
}

func TestReceive_NotFound(t *testing.T) {
	e := newEcho()
	h := &ReceiverHandler{Service: &stubIngester{result: ingest.Result{HTTPStatus: http.StatusNotFound, Message: "Not Found"}}}

	req := httptest.NewRequest(http.MethodGet, "/receiver", nil)
	err := h.Receive(e.NewContext(req, httptest.NewRecorder()))

	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusNotFound {
		t.Fatalf("expected echo 404, got %v", err)
	}
}

func TestReceive_Refused(t *testing.T) {
	e := newEcho()
	h := &ReceiverHandler{Service: &stubIngester{result: ingest.Result{HTTPStatus: http.StatusForbidden, Message: "Invalid key"}}}

	req := httptest.NewRequest(http.MethodPost, "/receiver", strings.NewReader(`{"pluginKey":"Y"}`))
	rec := httptest.NewRecorder()
	if err := h.Receive(e.NewContext(req, rec)); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if rec.Code != http.StatusForbidden {
		t.Fatalf("code = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"status":"error","message":"Invalid key"}` {
		t.Fatalf("body = %s", got)
	}
}

func TestReceive_OversizedBodyIsReadError(t *testing.T) {
	e := newEcho()
	svc := &stubIngester{result: ingest.Result{HTTPStatus: http.StatusBadRequest, Message: "read body: too large"}}
	h := &ReceiverHandler{Service: svc, MaxBodyBytes: 8}

	req := httptest.NewRequest(http.MethodPost, "/receiver", strings.NewReader(strings.Repeat("a", 64)))
	if err := h.Receive(e.NewContext(req, httptest.NewRecorder())); err != nil {
		t.Fatalf("receive: %v", err)
	}
	var maxErr *http.MaxBytesError
	if !errors.As(svc.got.ReadErr, &maxErr) {
		t.Fatalf("expected MaxBytesError, got %v", svc.got.ReadErr)
	}
}

func TestList_BindsFilters(t *testing.T) {
	e := newEcho()
	logs := &memLogs{entries: map[uuid.UUID]*model.LogEntry{}}
	h := &LogHandler{Logs: logs}

	req := httptest.NewRequest(http.MethodGet, "/logs?sort=initiator&order=asc&employee=alice&employee=bob&url=example&page=3", nil)
	rec := httptest.NewRecorder()
	if err := h.List(e.NewContext(req, rec)); err != nil {
		t.Fatalf("list: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if logs.crit.SortField != query.SortInitiator || logs.crit.Descending {
		t.Fatalf("unexpected ordering %+v", logs.crit)
	}
	if len(logs.crit.Employees) != 2 || logs.crit.URL != "example" || logs.requested != "3" {
		t.Fatalf("unexpected criteria %+v (page %q)", logs.crit, logs.requested)
	}

	var body struct {
		Data logPage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Page != 1 || body.Data.NumPages != 1 || body.Data.Entries == nil || body.Data.Order != "asc" {
		t.Fatalf("unexpected page %+v", body.Data)
	}
}

func TestList_InvalidSortFallsBackToDefault(t *testing.T) {
	e := newEcho()
	logs := &memLogs{}
	h := &LogHandler{Logs: logs}

	req := httptest.NewRequest(http.MethodGet, "/logs?sort=password&url=example", nil)
	if err := h.List(e.NewContext(req, httptest.NewRecorder())); err != nil {
		t.Fatalf("list: %v", err)
	}
	if logs.crit.SortField != query.SortReceivedAt || !logs.crit.Descending || logs.crit.URL != "" {
		t.Fatalf("expected default criteria, got %+v", logs.crit)
	}
}

func TestList_StoreError(t *testing.T) {
	e := newEcho()
	h := &LogHandler{Logs: &memLogs{err: errors.New("db down")}}

	rec := httptest.NewRecorder()
	if err := h.List(e.NewContext(httptest.NewRequest(http.MethodGet, "/logs", nil), rec)); err != nil {
		t.Fatalf("list: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d", rec.Code)
	}
}

func getWithID(e *echo.Echo, target, id string) (echo.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(id)
	return c, rec
}

func TestGet_FoundAndMissing(t *testing.T) {
	e := newEcho()
	id := uuid.New()
	h := &LogHandler{Logs: &memLogs{entries: map[uuid.UUID]*model.LogEntry{
		id: {ID: id, URL: "http://a", Employee: "bob"},
	}}}

	c, rec := getWithID(e, "/logs/"+id.String(), id.String())
	if err := h.Get(c); err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"url":"http://a"`) {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}

	for _, missing := range []string{uuid.NewString(), "not-a-uuid"} {
		c, rec := getWithID(e, "/logs/"+missing, missing)
		if err := h.Get(c); err != nil {
			t.Fatalf("get: %v", err)
		}
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: code = %d", missing, rec.Code)
		}
	}
}

func TestHTML_RendersSnapshot(t *testing.T) {
	e := newEcho()
	id, bare := uuid.New(), uuid.New()
	h := &LogHandler{Logs: &memLogs{entries: map[uuid.UUID]*model.LogEntry{
		id:   {ID: id, HTML: []byte("<h1>hi</h1>\xff")},
		bare: {ID: bare},
	}}}

	c, rec := getWithID(e, "/logs/"+id.String()+"/html", id.String())
	if err := h.HTML(c); err != nil {
		t.Fatalf("html: %v", err)
	}
	if !strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), "text/html") {
		t.Fatalf("content type = %q", rec.Header().Get(echo.HeaderContentType))
	}
	if rec.Body.String() != "<h1>hi</h1>\uFFFD" {
		t.Fatalf("body = %q", rec.Body.String())
	}

	c, rec = getWithID(e, "/logs/"+bare.String()+"/html", bare.String())
	if err := h.HTML(c); err != nil {
		t.Fatalf("html: %v", err)
	}
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Fatalf("entry without snapshot: got %d %q", rec.Code, rec.Body.String())
	}
}

func TestExport_WritesCSVAttachment(t *testing.T) {
	e := newEcho()
	id := uuid.New()
	logs := &memLogs{entries: map[uuid.UUID]*model.LogEntry{
		id: {ID: id, Employee: "bob", URL: "http://a"},
	}}
	h := &LogHandler{Logs: logs}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/logs/export?employee=bob", nil)
	if err := h.Export(e.NewContext(req, rec)); err != nil {
		t.Fatalf("export: %v", err)
	}
	if rec.Header().Get(echo.HeaderContentDisposition) != `attachment; filename="logs.csv"` {
		t.Fatalf("disposition = %q", rec.Header().Get(echo.HeaderContentDisposition))
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "employee,received_at,") || !strings.HasPrefix(lines[1], "bob,") {
		t.Fatalf("unexpected csv %q", rec.Body.String())
	}
	if len(logs.crit.Employees) != 1 {
		t.Fatalf("filters not applied: %+v", logs.crit)
	}
}

func TestExport_QueryErrorIs500(t *testing.T) {
	e := newEcho()
	h := &LogHandler{Logs: &memLogs{err: errors.New("db down")}, Logger: zerolog.Nop()}

	rec := httptest.NewRecorder()
	if err := h.Export(e.NewContext(httptest.NewRequest(http.MethodGet, "/logs/export", nil), rec)); err != nil {
		t.Fatalf("export: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d", rec.Code)
	}
	if rec.Header().Get(echo.HeaderContentDisposition) != "" {
		t.Fatal("failed export must not be sent as an attachment")
	}
}

func TestExport_EmptyResultHasHeaderRow(t *testing.T) {
	e := newEcho()
	h := &LogHandler{Logs: &memLogs{}}

	rec := httptest.NewRecorder()
	if err := h.Export(e.NewContext(httptest.NewRequest(http.MethodGet, "/logs/export", nil), rec)); err != nil {
		t.Fatalf("export: %v", err)
	}
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), "employee,received_at,") {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
	if strings.Count(strings.TrimSpace(rec.Body.String()), "\n") != 0 {
		t.Fatalf("expected only the header row, got %q", rec.Body.String())
	}
}

func TestArtifact(t *testing.T) {
	e := newEcho()
	withFile, withoutFile := uuid.New(), uuid.New()
	h := &LogHandler{
		Failed: &memFailed{entries: map[uuid.UUID]*model.FailedLogEntry{
			withFile:    {ID: withFile},
			withoutFile: {ID: withoutFile},
		}},
		Artifacts: memArtifacts{withFile: []byte("ID: x\nRaw data:\n{")},
	}

	c, rec := getWithID(e, "/failed/"+withFile.String()+"/artifact", withFile.String())
	if err := h.Artifact(c); err != nil {
		t.Fatalf("artifact: %v", err)
	}
	if rec.Code != http.StatusOK || rec.Body.String() != "ID: x\nRaw data:\n{" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}

	for _, id := range []string{withoutFile.String(), uuid.NewString()} {
		c, rec := getWithID(e, "/failed/"+id+"/artifact", id)
		if err := h.Artifact(c); err != nil {
			t.Fatalf("artifact: %v", err)
		}
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: code = %d", id, rec.Code)
		}
	}
}

func TestListFailed(t *testing.T) {
	e := newEcho()
	h := &LogHandler{Failed: &memFailed{entries: map[uuid.UUID]*model.FailedLogEntry{}}}

	rec := httptest.NewRecorder()
	if err := h.ListFailed(e.NewContext(httptest.NewRequest(http.MethodGet, "/failed?page=9", nil), rec)); err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"entries":[]`) {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
}
