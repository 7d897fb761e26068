// Package config holds the statically configured rate limit policies.
package config

import (
	"time"

	"corridor/internal/ratelimit/models"
)

// Policy names double as the counter key namespace.
const (
	PolicyGeneral = "general"
	PolicyAuth    = "auth"
	PolicyCost    = "cost"
)

// Config groups the policies applied to route groups.
type Config struct {
	General models.Policy
	Auth    models.Policy
	Cost    models.Policy
}

// DefaultConfig returns the production policies.
func DefaultConfig() *Config {
	return &Config{
		// Broad protection for every route.
		General: models.Policy{
			Name:           PolicyGeneral,
			WindowDuration: 15 * time.Minute,
			MaxRequests:    100,
			KeyStrategy:    models.ByClientAddress,
			Message:        "Too many requests from this IP address. Please try again later.",
		},
		// Login attempts. Successful attempts are refunded.
		Auth: models.Policy{
			Name:           PolicyAuth,
			WindowDuration: 15 * time.Minute,
			MaxRequests:    5,
			KeyStrategy:    models.ByClientAddressAndSubject,
			SkipSuccessful: true,
			Message:        "Too many authentication attempts. Please try again later.",
		},
		// Routes that call the language model.
		Cost: models.Policy{
			Name:           PolicyCost,
			WindowDuration: time.Minute,
			MaxRequests:    10,
			KeyStrategy:    models.ByPrincipal,
			Message:        "Query limit reached. Please wait before sending more questions.",
		},
	}
}

// Policies lists every configured policy.
func (c *Config) Policies() []models.Policy {
	return []models.Policy{c.General, c.Auth, c.Cost}
}

// Validate checks every policy.
func (c *Config) Validate() error {
	for _, p := range c.Policies() {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}
