package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/akave-ai/browserlog/internal/metrics"
	"github.com/akave-ai/browserlog/internal/model"
)

// EntryStore persists normalized entries.
type EntryStore interface {
	Create(ctx context.Context, entry *model.LogEntry) error
}

// FailureStore persists failed ingestion attempts.
type FailureStore interface {
	Create(ctx context.Context, failed *model.FailedLogEntry) error
}

// ArtifactWriter mirrors a failed attempt outside the database.
type ArtifactWriter interface {
	WriteFailure(ctx context.Context, failed *model.FailedLogEntry, raw []byte) error
}

// Publisher announces accepted entries to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, entry *model.LogEntry) error
}

// Request is one inbound ingestion call as seen by the service.
type Request struct {
	Method string
	Header http.Header
	Body   []byte
	// ReadErr is set when the transport could not read the whole body.
	ReadErr error
	IP      string
}

// Result is the outcome to send back to the caller.
type Result struct {
	HTTPStatus int
	Message    string
}

// OK reports whether the entry was stored.
func (r Result) OK() bool { return r.HTTPStatus == http.StatusOK }

// Options carries the optional collaborators of a Service.
type Options struct {
	Artifacts ArtifactWriter
	Publisher Publisher
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Service runs the ingestion pipeline: access checks, parsing, building and
// storing an entry, or capturing the failure when any step after the access
// checks goes wrong.
type Service struct {
	validator *Validator
	entries   EntryStore
	failures  FailureStore
	artifacts ArtifactWriter
	publisher Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(v *Validator, entries EntryStore, failures FailureStore, opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		validator: v,
		entries:   entries,
		failures:  failures,
		artifacts: opts.Artifacts,
		publisher: opts.Publisher,
		logger:    opts.Logger,
		now:       now,
	}
}

// Ingest handles one request. It never returns an error: every failure after
// the access checks is stored and reported as a 400 result.
func (s *Service) Ingest(ctx context.Context, req Request) Result {
	start := time.Now()
	res, outcome := s.ingest(ctx, req)
	metrics.IngestRequests.WithLabelValues(outcome).Inc()
	metrics.IngestLatency.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return res
}

func (s *Service) ingest(ctx context.Context, req Request) (Result, string) {
	if err := s.validator.CheckAccess(req.Method, req.Header); err != nil {
		return s.reject(req, err)
	}

	entry, err := s.accept(ctx, req)
	var rej *Rejection
	if errors.As(err, &rej) {
		return s.reject(req, rej)
	}
	if err != nil {
		return s.capture(ctx, req, err), metrics.OutcomeFailed
	}

	s.logger.Debug().
		Str("entry_id", entry.ID.String()).
		Str("ip", req.IP).
		Str("employee", entry.Employee).
		Msg("log entry stored")
	s.publish(ctx, entry)
	return Result{HTTPStatus: http.StatusOK}, metrics.OutcomeOK
}

func (s *Service) accept(ctx context.Context, req Request) (*model.LogEntry, error) {
	if req.ReadErr != nil {
		return nil, fmt.Errorf("read body: %w", req.ReadErr)
	}
	payload, err := s.validator.Authorize(req.Body)
	if err != nil {
		return nil, err
	}
	entry, err := Build(payload, req.IP)
	if err != nil {
		return nil, err
	}
	entry.ID = uuid.New()
	entry.ReceivedAt = s.now().UTC()
	if err := s.entries.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("save log entry: %w", err)
	}
	return entry, nil
}

func (s *Service) reject(req Request, err error) (Result, string) {
	var rej *Rejection
	if !errors.As(err, &rej) {
		rej = ErrInvalidRequest
	}
	outcome := metrics.OutcomeRejected
	switch rej.Status {
	case http.StatusNotFound:
		outcome = metrics.OutcomeNotFound
	case http.StatusForbidden:
		outcome = metrics.OutcomeDenied
	}
	s.logger.Info().
		Str("ip", req.IP).
		Str("method", req.Method).
		Int("status", rej.Status).
		Msg("ingest request rejected")
	return Result{HTTPStatus: rej.Status, Message: rej.Message}, outcome
}

// capture stores the raw body and the cause. Its own write errors are logged
// and never change the result.
func (s *Service) capture(ctx context.Context, req Request, cause error) Result {
	ctx = context.WithoutCancel(ctx)
	failed := &model.FailedLogEntry{
		ID:           uuid.New(),
		RawData:      RawText(req.Body),
		ErrorMessage: cause.Error(),
		ReceivedAt:   s.now().UTC(),
		IPAddress:    req.IP,
	}
	log := s.logger.With().
		Str("failure_id", failed.ID.String()).
		Str("ip", req.IP).
		Logger()
	log.Warn().Err(cause).Int("body_bytes", len(req.Body)).Msg("ingestion failed, capturing payload")

	if err := s.failures.Create(ctx, failed); err != nil {
		metrics.SideEffectErrors.WithLabelValues("failure_store").Inc()
		log.Error().Err(err).Msg("could not save failed log entry")
	}
	if s.artifacts != nil {
		if err := s.artifacts.WriteFailure(ctx, failed, req.Body); err != nil {
			metrics.SideEffectErrors.WithLabelValues("artifact").Inc()
			log.Warn().Err(err).Msg("could not write failure artifact")
		}
	}
	return Result{HTTPStatus: http.StatusBadRequest, Message: cause.Error()}
}

func (s *Service) publish(ctx context.Context, entry *model.LogEntry) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), entry); err != nil {
		metrics.SideEffectErrors.WithLabelValues("publish").Inc()
		s.logger.Warn().Err(err).Str("entry_id", entry.ID.String()).Msg("could not publish log entry")
	}
}

// RawText converts a request body for a PostgreSQL text column: invalid
// UTF-8 sequences and NUL bytes are dropped.
func RawText(body []byte) string {
	return strings.ReplaceAll(strings.ToValidUTF8(string(body), ""), "\x00", "")
}
