package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// TokenClient requests bearer tokens from the vendor's OAuth2 token endpoint
// using the resource-owner password grant
type TokenClient struct {
	config     *Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewTokenClient creates a new TokenClient
func NewTokenClient(config *Config, logger *zap.Logger) (*TokenClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout()},
		logger:     logger,
	}, nil
}

// Ensure TokenClient implements TokenIssuer
var _ integration.TokenIssuer = (*TokenClient)(nil)

// IssueToken performs the password grant and returns the issued token
func (c *TokenClient) IssueToken(ctx context.Context) (*integration.IssuedToken, error) {
	ctx, span := telemetry.StartSpan(ctx, "marketplace.issue_token")
	defer span.End()

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", c.config.Username)
	form.Set("password", c.config.Password)
	if c.config.Scope != "" {
		form.Set("scope", c.config.Scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("marketplace: failed to create token request: %w", err)
	}
	req.SetBasicAuth(c.config.ClientID, c.config.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("%w: %v", integration.ErrVendorUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("marketplace: failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var er errorResponse
		_ = json.Unmarshal(body, &er)
		c.logger.Error("Vendor token endpoint rejected request",
			zap.Int("status", resp.StatusCode),
			zap.String("error", er.Error),
			zap.String("description", er.ErrorDescription),
		)
		err := &integration.CredentialFetchError{
			Reason: fmt.Sprintf("token endpoint returned HTTP %d", resp.StatusCode),
			Err:    integration.ErrVendorRequestFailed,
		}
		telemetry.RecordError(span, err)
		return nil, err
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, &integration.CredentialFetchError{Reason: "unparseable token response", Err: err}
	}
	if tr.AccessToken == "" {
		return nil, &integration.CredentialFetchError{Reason: "token response without access_token"}
	}

	return &integration.IssuedToken{
		AccessToken: tr.AccessToken,
		TokenType:   tr.TokenType,
		ExpiresIn:   tr.ExpiresIn,
	}, nil
}
