package models

// RateLimitExceededResponse is the API response when a quota is exhausted.
type RateLimitExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"` // seconds
}
