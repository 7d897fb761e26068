// Package device classifies the calling client from its User-Agent header.
package device

import (
	"context"
	"net/http"

	"github.com/mssola/useragent"
)

// Info is what the User-Agent header says about the client.
type Info struct {
	Browser        string `json:"browser,omitempty"`
	BrowserVersion string `json:"browserVersion,omitempty"`
	OS             string `json:"os,omitempty"`
	Platform       string `json:"platform,omitempty"`
	Mobile         bool   `json:"mobile"`
	Bot            bool   `json:"bot"`
}

// IsZero reports whether nothing could be parsed.
func (i Info) IsZero() bool { return i == Info{} }

type contextKeyDevice struct{}

// Parse classifies a raw User-Agent string. Empty input yields a zero Info.
func Parse(raw string) Info {
	if raw == "" {
		return Info{}
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	return Info{
		Browser:        name,
		BrowserVersion: version,
		OS:             ua.OS(),
		Platform:       ua.Platform(),
		Mobile:         ua.Mobile(),
		Bot:            ua.Bot(),
	}
}

// Middleware parses the User-Agent once per request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := Parse(r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(WithInfo(r.Context(), info)))
	})
}

// FromContext returns the parsed client info, parsing fallback when the
// middleware did not run.
func FromContext(ctx context.Context, fallback string) Info {
	if info, ok := ctx.Value(contextKeyDevice{}).(Info); ok {
		return info
	}
	return Parse(fallback)
}

// WithInfo injects client info into a context.
// Useful for service unit tests that don't run the full HTTP middleware chain.
func WithInfo(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, contextKeyDevice{}, info)
}
