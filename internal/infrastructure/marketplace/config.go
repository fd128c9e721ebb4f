package marketplace

import (
	"errors"
	"time"
)

// Config holds configuration for the vendor marketplace API
type Config struct {
	// BaseURL is the REST API root, e.g. https://api.marketplace.example/v2
	BaseURL string
	// TokenURL is the OAuth2 token endpoint
	TokenURL string
	// ClientID and ClientSecret are sent as HTTP Basic auth to the token endpoint
	ClientID     string
	ClientSecret string
	// Username and Password are the resource-owner credentials of the shop account
	Username string
	Password string
	// Scope is optional
	Scope string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
	// MaxUnauthorizedRetries caps how many times a call is retried after a 401
	MaxUnauthorizedRetries int
	// CallDelay is the minimum spacing between consignment/status calls
	CallDelay time.Duration
}

const (
	// DefaultTimeoutSeconds is the default HTTP timeout
	DefaultTimeoutSeconds = 30
	// DefaultMaxUnauthorizedRetries retries a call once with a fresh token
	DefaultMaxUnauthorizedRetries = 1
	// DefaultCallDelay is the vendor's requested spacing between write calls
	DefaultCallDelay = 3 * time.Second
)

// Errors for marketplace configuration
var (
	ErrConfigMissingBaseURL      = errors.New("marketplace: base URL is required")
	ErrConfigMissingTokenURL     = errors.New("marketplace: token URL is required")
	ErrConfigMissingClientID     = errors.New("marketplace: client ID is required")
	ErrConfigMissingClientSecret = errors.New("marketplace: client secret is required")
	ErrConfigMissingUsername     = errors.New("marketplace: username is required")
)

// NewConfig creates a new marketplace configuration with defaults
func NewConfig(baseURL, tokenURL, clientID, clientSecret, username, password string) *Config {
	return &Config{
		BaseURL:                baseURL,
		TokenURL:               tokenURL,
		ClientID:               clientID,
		ClientSecret:           clientSecret,
		Username:               username,
		Password:               password,
		TimeoutSeconds:         DefaultTimeoutSeconds,
		MaxUnauthorizedRetries: DefaultMaxUnauthorizedRetries,
		CallDelay:              DefaultCallDelay,
	}
}

// Validate validates the configuration and fills in defaults
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrConfigMissingBaseURL
	}
	if c.TokenURL == "" {
		return ErrConfigMissingTokenURL
	}
	if c.ClientID == "" {
		return ErrConfigMissingClientID
	}
	if c.ClientSecret == "" {
		return ErrConfigMissingClientSecret
	}
	if c.Username == "" {
		return ErrConfigMissingUsername
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if c.MaxUnauthorizedRetries < 0 {
		c.MaxUnauthorizedRetries = 0
	}
	if c.CallDelay < 0 {
		c.CallDelay = 0
	}
	return nil
}

// Timeout returns the HTTP timeout as a duration
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
