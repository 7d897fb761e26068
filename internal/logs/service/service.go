package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"corridor/internal/logs/models"
	dErrors "corridor/pkg/domain-errors"
	audit "corridor/pkg/platform/audit"
	"corridor/pkg/platform/sentinel"
)

// Store persists audit records. Append must ignore a record whose ID is
// already stored and report false.
type Store interface {
	Append(ctx context.Context, record audit.Record) (bool, error)
	Find(ctx context.Context, q models.Query) ([]audit.Record, error)
	Ping(ctx context.Context) error
}

// Service is the log collaborator: it ingests audit records and serves the
// query views used for audit reconstruction.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest validates and stores record. A record without an ID gets a fresh
// one; a record whose ID is already stored is accepted without change.
func (s *Service) Ingest(ctx context.Context, record audit.Record) (audit.Record, error) {
	record.Normalize()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Time.IsZero() {
		record.Time = s.now()
	}
	record.Time = record.Time.UTC()
	if err := record.Validate(); err != nil {
		return audit.Record{}, err
	}

	created, err := s.store.Append(ctx, record)
	if err != nil {
		return audit.Record{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store audit record")
	}
	if !created {
		s.logger.DebugContext(ctx, "duplicate audit record ignored",
			"record_id", record.ID,
			"request_id", record.RequestID,
		)
	}
	return record, nil
}

// Search lists records matching q, newest first, at most models.MaxLimit.
func (s *Service) Search(ctx context.Context, q models.Query) ([]audit.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	q.Ascending = false
	q.Limit = q.EffectiveLimit(models.MaxLimit)
	return s.find(ctx, q)
}

// ByUser lists the most recent records for one subject.
func (s *Service) ByUser(ctx context.Context, userID string) ([]audit.Record, error) {
	if !models.ValidUserID(userID) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "id must be numeric or a UUID")
	}
	return s.find(ctx, models.Query{UserID: userID, Limit: models.DefaultUserLimit})
}

// ByRequest lists every record of one trace, oldest first, so the causal
// order of a request can be read top to bottom.
func (s *Service) ByRequest(ctx context.Context, requestID string) ([]audit.Record, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "requestId is required")
	}
	return s.find(ctx, models.Query{RequestID: requestID, Ascending: true, Limit: models.MaxLimit})
}

// Errors lists recent error and critical records, optionally since a time.
func (s *Service) Errors(ctx context.Context, limit int, since time.Time) ([]audit.Record, error) {
	q := models.Query{Severities: models.ErrorSeverities, From: since, Limit: limit}
	q.Limit = q.EffectiveLimit(models.DefaultErrorsLimit)
	return s.find(ctx, q)
}

// Health reports whether the store is reachable.
func (s *Service) Health(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return dErrors.Wrap(sentinel.ErrUnavailable, dErrors.CodeInternal, err.Error())
	}
	return nil
}

func (s *Service) find(ctx context.Context, q models.Query) ([]audit.Record, error) {
	records, err := s.store.Find(ctx, q)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to query audit records")
	}
	return records, nil
}
