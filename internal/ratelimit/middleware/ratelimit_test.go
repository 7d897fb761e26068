package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"

	"corridor/internal/ratelimit/config"
	"corridor/internal/ratelimit/models"
	"corridor/internal/ratelimit/service"
	"corridor/internal/ratelimit/store/bucket"
	dErrors "corridor/pkg/domain-errors"
	"corridor/pkg/requestcontext"
	"corridor/pkg/testutil"
)

type brokenStore struct{}

func (brokenStore) Increment(context.Context, string, time.Duration) (models.CounterEntry, error) {
	return models.CounterEntry{}, errors.New("dial tcp: connection refused")
}

func (brokenStore) Decrement(context.Context, string) error {
	return errors.New("dial tcp: connection refused")
}

type MiddlewareSuite struct {
	suite.Suite
	cfg    *config.Config
	store  *bucket.InMemoryBucketStore
	mw     *Middleware
	logger *slog.Logger
}

func TestMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(MiddlewareSuite))
}

func (s *MiddlewareSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.cfg = config.DefaultConfig()
	s.store = bucket.NewInMemoryBucketStore()
	svc, err := service.New(s.store, service.WithLogger(s.logger))
	s.Require().NoError(err)
	s.mw = New(svc, s.logger)
}

func statusHandler(status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
}

func fromIP(req *http.Request, ip string) *http.Request {
	return testutil.WithClient(req, ip, "test-agent")
}

func (s *MiddlewareSuite) TestHeadersAndRejection() {
	policy := s.cfg.Cost
	h := s.mw.Gate(policy)(statusHandler(http.StatusOK))

	for i := range policy.MaxRequests {
		rr := testutil.DoRequest(h, fromIP(testutil.NewRequest(s.T(), http.MethodPost, "/query"), "10.0.0.1"))
		testutil.AssertStatusOK(s.T(), rr)
		s.Equal("10", rr.Header().Get(HeaderLimit))
		s.Equal(strconv.Itoa(policy.MaxRequests-i-1), rr.Header().Get(HeaderRemaining))
		s.NotEmpty(rr.Header().Get(HeaderReset))
	}

	rr := testutil.DoRequest(h, fromIP(testutil.NewRequest(s.T(), http.MethodPost, "/query"), "10.0.0.1"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusTooManyRequests, string(dErrors.CodeQuotaExceeded))
	s.NotEmpty(rr.Header().Get(HeaderRetryAfter))
	s.Equal("0", rr.Header().Get(HeaderRemaining))
}

func (s *MiddlewareSuite) TestRejectionBodyCarriesRetryAfter() {
	policy := s.cfg.Auth
	h := s.mw.Gate(policy)(statusHandler(http.StatusUnauthorized))
	for range policy.MaxRequests {
		testutil.DoRequest(h, fromIP(testutil.NewRequest(s.T(), http.MethodGet, "/auth/verify"), "10.0.0.2"))
	}
	rr := testutil.DoRequest(h, fromIP(testutil.NewRequest(s.T(), http.MethodGet, "/auth/verify"), "10.0.0.2"))
	s.Equal(http.StatusTooManyRequests, rr.Code)

	body := testutil.UnmarshalResponse[models.RateLimitExceededResponse](s.T(), rr)
	s.Positive(body.RetryAfter)
	s.Equal(policy.Message, body.Message)
}

func (s *MiddlewareSuite) TestSkipSuccessfulOnlyCountsFailures() {
	policy := s.cfg.Auth
	ok := s.mw.Gate(policy)(statusHandler(http.StatusOK))
	fail := s.mw.Gate(policy)(statusHandler(http.StatusUnauthorized))

	for range 20 {
		rr := testutil.DoRequest(ok, fromIP(testutil.NewRequest(s.T(), http.MethodGet, "/auth/verify"), "10.0.0.3"))
		testutil.AssertStatusOK(s.T(), rr)
	}
	for range policy.MaxRequests {
		rr := testutil.DoRequest(fail, fromIP(testutil.NewRequest(s.T(), http.MethodGet, "/auth/verify"), "10.0.0.3"))
		s.Equal(http.StatusUnauthorized, rr.Code)
	}
	rr := testutil.DoRequest(ok, fromIP(testutil.NewRequest(s.T(), http.MethodGet, "/auth/verify"), "10.0.0.3"))
	s.Equal(http.StatusTooManyRequests, rr.Code)
}

func (s *MiddlewareSuite) TestAuthPolicyKeysOnLoginSubject() {
	policy := s.cfg.Auth
	h := s.mw.Gate(policy)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.Contains(string(body), "alice@example.com", "body must be restored for the handler")
		w.WriteHeader(http.StatusUnauthorized)
	}))

	for range policy.MaxRequests + 1 {
		testutil.DoRequest(h, fromIP(testutil.NewJSONRequest(s.T(), http.MethodPost, "/login", map[string]string{"email": "alice@example.com"}), "10.0.0.4"))
	}
	rr := testutil.DoRequest(h, fromIP(testutil.NewJSONRequest(s.T(), http.MethodPost, "/login", map[string]string{"email": "bob@example.com"}), "10.0.0.4"))
	s.Equal(http.StatusUnauthorized, rr.Code, "another subject from the same address has its own counter")
}

func unsignedBearer(claims jwt.MapClaims) string {
	signed, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("irrelevant"))
	return "Bearer " + signed
}

func (s *MiddlewareSuite) TestAuthPolicyKeysOnBearerSubject() {
	policy := s.cfg.Auth
	h := s.mw.Gate(policy)(statusHandler(http.StatusUnauthorized))
	attempt := func(authorization string) int {
		req := fromIP(testutil.NewRequest(s.T(), http.MethodGet, "/auth/verify"), "10.0.0.6")
		req.Header.Set("Authorization", authorization)
		return testutil.DoRequest(h, req).Code
	}

	for range policy.MaxRequests {
		s.Equal(http.StatusUnauthorized, attempt(unsignedBearer(jwt.MapClaims{"oid": "oid-a"})))
	}
	s.Equal(http.StatusTooManyRequests, attempt(unsignedBearer(jwt.MapClaims{"oid": "oid-a"})))
	s.Equal(http.StatusUnauthorized, attempt(unsignedBearer(jwt.MapClaims{"sub": "sub-b"})), "sub is used when oid is absent")
	s.Equal(http.StatusUnauthorized, attempt("Bearer garbage"), "opaque tokens share the address-only counter")
}

func (s *MiddlewareSuite) TestCostPolicyKeysOnPrincipal() {
	policy := s.cfg.Cost
	h := s.mw.Gate(policy)(statusHandler(http.StatusOK))

	for range policy.MaxRequests {
		req := testutil.WithPrincipal(fromIP(testutil.NewRequest(s.T(), http.MethodPost, "/query"), "10.0.0.5"), "oid-1")
		testutil.DoRequest(h, req)
	}
	exhausted := testutil.WithPrincipal(fromIP(testutil.NewRequest(s.T(), http.MethodPost, "/query"), "10.0.0.99"), "oid-1")
	s.Equal(http.StatusTooManyRequests, testutil.DoRequest(h, exhausted).Code, "quota follows the principal across addresses")

	other := testutil.WithPrincipal(fromIP(testutil.NewRequest(s.T(), http.MethodPost, "/query"), "10.0.0.5"), "oid-2")
	testutil.AssertStatusOK(s.T(), testutil.DoRequest(h, other))
}

func (s *MiddlewareSuite) TestFailOpenSetsDegradedHeader() {
	svc, err := service.New(brokenStore{}, service.WithLogger(s.logger))
	s.Require().NoError(err)
	h := New(svc, s.logger).Gate(s.cfg.General)(statusHandler(http.StatusOK))

	rr := testutil.DoRequest(h, fromIP(testutil.NewRequest(s.T(), http.MethodGet, "/"), "10.0.0.6"))
	testutil.AssertStatusOK(s.T(), rr)
	s.Equal("degraded", rr.Header().Get(HeaderStatus))
}

func (s *MiddlewareSuite) TestDisabled() {
	svc, err := service.New(brokenStore{}, service.WithLogger(s.logger))
	s.Require().NoError(err)
	h := New(svc, s.logger, WithDisabled(true)).Gate(s.cfg.General)(statusHandler(http.StatusOK))

	rr := testutil.DoRequest(h, testutil.NewRequest(s.T(), http.MethodGet, "/"))
	testutil.AssertStatusOK(s.T(), rr)
	s.Empty(rr.Header().Get(HeaderLimit))
}

func (s *MiddlewareSuite) TestResetHeaderIsSecondsUntilWindowEnd() {
	h := s.mw.Gate(s.cfg.General)(statusHandler(http.StatusOK))
	req := fromIP(testutil.NewRequest(s.T(), http.MethodGet, "/"), "10.0.0.7")
	req = req.WithContext(requestcontext.WithTime(req.Context(), time.Now()))
	rr := testutil.DoRequest(h, req)

	s.Equal("900", rr.Header().Get(HeaderReset))
}
