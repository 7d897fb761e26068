package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"corridor/internal/eventbus"
	"corridor/internal/users/models"
	"corridor/internal/users/service/mocks"
	"corridor/internal/users/store"
	"corridor/pkg/domain"
	dErrors "corridor/pkg/domain-errors"
	"corridor/pkg/platform/sentinel"
	"corridor/pkg/requestcontext"
	"corridor/pkg/tracecontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,Publisher

type ServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	publisher *mocks.MockPublisher
	store     *store.InMemoryStore
	svc       *Service
	ctx       context.Context
	now       time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.publisher = mocks.NewMockPublisher(s.ctrl)
	s.store = store.NewInMemoryStore()
	s.now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.svc = New(s.store, s.publisher,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return s.now }),
	)
	trace := tracecontext.TraceContext{TraceID: "trace-1", OriginService: "users"}
	s.ctx = requestcontext.WithTrace(context.Background(), trace)
	s.ctx = requestcontext.WithPrincipal(s.ctx, &domain.Principal{SubjectID: "admin-oid", Roles: []string{"admin"}})
}

func (s *ServiceSuite) create() models.User {
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.AssignableToTypeOf(eventbus.UserCreatedEvent{})).Return(true)
	u, err := s.svc.Create(s.ctx, models.CreateUserRequest{Email: "Ana@Example.com", FirstName: "Ana"})
	s.Require().NoError(err)
	return u
}

func (s *ServiceSuite) TestCreatePublishesWithRequestTrace() {
	var published eventbus.Event
	var trace tracecontext.TraceContext
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, tc tracecontext.TraceContext, e eventbus.Event) bool {
			trace, published = tc, e
			return true
		})

	u, err := s.svc.Create(s.ctx, models.CreateUserRequest{Email: " Ana@Example.com", FirstName: "Ana"})
	s.Require().NoError(err)

	s.NotEmpty(u.ID)
	s.Equal("ana@example.com", u.Email)
	s.Equal(s.now, u.CreatedAt)
	s.Equal("trace-1", trace.TraceID)
	s.Equal(eventbus.UserCreatedEvent{ID: u.ID, Email: "ana@example.com", FirstName: "Ana"}, published)
}

func (s *ServiceSuite) TestCreateInvalidDoesNotPublish() {
	_, err := s.svc.Create(s.ctx, models.CreateUserRequest{FirstName: "Ana"})
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *ServiceSuite) TestCreateSucceedsWhenBusIsDown() {
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(false)

	u, err := s.svc.Create(s.ctx, models.CreateUserRequest{Email: "ana@example.com", FirstName: "Ana"})
	s.Require().NoError(err)

	stored, err := s.store.FindByID(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Equal(u, stored)
}

func (s *ServiceSuite) TestCreateDuplicateEmail() {
	s.create()
	_, err := s.svc.Create(s.ctx, models.CreateUserRequest{Email: "ana@example.com", FirstName: "Other"})
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *ServiceSuite) TestUpdatePublishesFieldNames() {
	u := s.create()
	name := "Ana Maria"
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), eventbus.UserUpdatedEvent{ID: u.ID, Updates: []string{"firstName"}}).Return(true)

	updated, fields, err := s.svc.Update(s.ctx, u.ID, models.UpdateUserRequest{FirstName: &name})
	s.Require().NoError(err)
	s.Equal([]string{"firstName"}, fields)
	s.Equal("Ana Maria", updated.FirstName)
}

func (s *ServiceSuite) TestUpdateMissingUser() {
	name := "x"
	_, _, err := s.svc.Update(s.ctx, "missing", models.UpdateUserRequest{FirstName: &name})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestDeleteRecordsActor() {
	u := s.create()
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), eventbus.UserDeletedEvent{ID: u.ID, DeletedBy: "admin-oid"}).Return(true)

	s.Require().NoError(s.svc.Delete(s.ctx, u.ID))

	_, err := s.store.FindByID(s.ctx, u.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ServiceSuite) TestDeleteMissingUser() {
	err := s.svc.Delete(s.ctx, "missing")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestStoreFailureIsInternal() {
	st := mocks.NewMockStore(s.ctrl)
	svc := New(st, s.publisher)
	st.EXPECT().Save(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

	_, err := svc.Create(s.ctx, models.CreateUserRequest{Email: "ana@example.com", FirstName: "Ana"})
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}
