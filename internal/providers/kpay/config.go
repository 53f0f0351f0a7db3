package kpay

import (
	"fmt"
	"strings"
	"time"

	domainErrors "github.com/ikazeshop/payments/internal/domain/errors"
)

// Config holds everything the client needs to talk to KPay.
type Config struct {
	BaseURL string
	// AlternateBaseURL is tried once when BaseURL cannot be resolved or dialed.
	AlternateBaseURL string
	Username         string
	Password         string
	RetailerID       string
	// WebhookURL is sent as returl; KPay posts final statuses there.
	WebhookURL string
	LogoURL    string

	// Timeout bounds a single HTTP attempt.
	Timeout     time.Duration
	MaxAttempts int
	// Attempt n waits n × a random step in [BackoffMin, BackoffMax].
	BackoffMin time.Duration
	BackoffMax time.Duration
}

// Validate reports missing required settings as ErrGatewayMisconfigured.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.BaseURL) == "" {
		missing = append(missing, "base url")
	}
	if c.Username == "" {
		missing = append(missing, "username")
	}
	if c.Password == "" {
		missing = append(missing, "password")
	}
	if c.RetailerID == "" {
		missing = append(missing, "retailer id")
	}
	if len(missing) > 0 {
		return domainErrors.NewDomainError(
			"gateway_misconfigured",
			fmt.Sprintf("kpay: missing %s", strings.Join(missing, ", ")),
			domainErrors.ErrGatewayMisconfigured,
		)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffMin <= 0 {
		c.BackoffMin = 150 * time.Millisecond
	}
	if c.BackoffMax < c.BackoffMin {
		c.BackoffMax = c.BackoffMin + 100*time.Millisecond
	}
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	c.AlternateBaseURL = strings.TrimSpace(c.AlternateBaseURL)
	if c.AlternateBaseURL == c.BaseURL {
		c.AlternateBaseURL = ""
	}
	return c
}
