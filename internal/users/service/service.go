// Package service implements the user lifecycle. Every committed change is
// announced on the event bus; a bus outage never fails the operation.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"corridor/internal/eventbus"
	"corridor/internal/users/models"
	dErrors "corridor/pkg/domain-errors"
	"corridor/pkg/platform/privacy"
	"corridor/pkg/platform/sentinel"
	"corridor/pkg/requestcontext"
	"corridor/pkg/tracecontext"
)

// Store is the user repository port.
type Store interface {
	Save(ctx context.Context, u models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	Delete(ctx context.Context, id string) error
}

// Publisher announces user events. It reports false instead of failing.
type Publisher interface {
	Publish(ctx context.Context, trace tracecontext.TraceContext, event eventbus.Event) bool
}

type Service struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
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

func New(store Store, publisher Publisher, opts ...Option) *Service {
	s := &Service{store: store, publisher: publisher, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Create(ctx context.Context, req models.CreateUserRequest) (models.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return models.User{}, err
	}
	now := s.now().UTC()
	u := models.User{
		ID:        uuid.NewString(),
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Save(ctx, u); err != nil {
		return models.User{}, translate(err, "failed to create user")
	}
	s.logger.InfoContext(ctx, "user created",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", u.ID,
		"email", privacy.MaskEmail(u.Email),
	)
	s.publish(ctx, eventbus.UserCreatedEvent{ID: u.ID, Email: u.Email, FirstName: u.FirstName})
	return u, nil
}

func (s *Service) Get(ctx context.Context, id string) (models.User, error) {
	u, err := s.store.FindByID(ctx, id)
	if err != nil {
		return models.User{}, translate(err, "failed to load user")
	}
	return u, nil
}

// Update applies a partial update and returns the user with the names of the
// fields that changed.
func (s *Service) Update(ctx context.Context, id string, req models.UpdateUserRequest) (models.User, []string, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return models.User{}, nil, err
	}
	u, err := s.store.FindByID(ctx, id)
	if err != nil {
		return models.User{}, nil, translate(err, "failed to load user")
	}
	req.Apply(&u)
	u.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, u); err != nil {
		return models.User{}, nil, translate(err, "failed to update user")
	}
	fields := req.Fields()
	s.publish(ctx, eventbus.UserUpdatedEvent{ID: u.ID, Updates: fields})
	return u, fields, nil
}

// Delete removes the user on behalf of the current principal.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return translate(err, "failed to delete user")
	}
	s.publish(ctx, eventbus.UserDeletedEvent{ID: id, DeletedBy: requestcontext.SubjectID(ctx)})
	return nil
}

func (s *Service) publish(ctx context.Context, event eventbus.Event) {
	if s.publisher.Publish(ctx, requestcontext.Trace(ctx), event) {
		return
	}
	s.logger.WarnContext(ctx, "user event not published",
		"event_type", string(event.Type()),
		"subject_id", event.SubjectID(),
		"request_id", requestcontext.RequestID(ctx),
	)
}

func translate(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeBadRequest, "email already registered")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
