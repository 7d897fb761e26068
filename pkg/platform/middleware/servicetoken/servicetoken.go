// Package servicetoken guards service-to-service endpoints with a shared token.
package servicetoken

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	dErrors "corridor/pkg/domain-errors"
	"corridor/pkg/platform/httputil"
	request "corridor/pkg/platform/middleware/request"
)

// Header carries the shared token.
const Header = "X-Service-Token"

// Require rejects requests whose Header does not match expected. An empty
// expected token leaves the route open.
func Require(expected string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if expected == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(Header)
			if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
				ctx := r.Context()
				requestID := request.GetRequestID(ctx)
				logger.WarnContext(ctx, "service token mismatch",
					"request_id", requestID,
					"path", r.URL.Path,
				)
				httputil.WriteErrorWithRequestID(w,
					dErrors.New(dErrors.CodeUnauthenticated, "service token required"), requestID)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
