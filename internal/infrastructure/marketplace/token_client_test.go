package marketplace

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Config Tests
// ---------------------------------------------------------------------------

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr error
	}{
		{
			name:   "valid config",
			config: &Config{BaseURL: "https://api", TokenURL: "https://auth", ClientID: "id", ClientSecret: "s", Username: "u"},
		},
		{
			name:    "missing base URL",
			config:  &Config{TokenURL: "https://auth", ClientID: "id", ClientSecret: "s", Username: "u"},
			wantErr: ErrConfigMissingBaseURL,
		},
		{
			name:    "missing token URL",
			config:  &Config{BaseURL: "https://api", ClientID: "id", ClientSecret: "s", Username: "u"},
			wantErr: ErrConfigMissingTokenURL,
		},
		{
			name:    "missing client ID",
			config:  &Config{BaseURL: "https://api", TokenURL: "https://auth", ClientSecret: "s", Username: "u"},
			wantErr: ErrConfigMissingClientID,
		},
		{
			name:    "missing client secret",
			config:  &Config{BaseURL: "https://api", TokenURL: "https://auth", ClientID: "id", Username: "u"},
			wantErr: ErrConfigMissingClientSecret,
		},
		{
			name:    "missing username",
			config:  &Config{BaseURL: "https://api", TokenURL: "https://auth", ClientID: "id", ClientSecret: "s"},
			wantErr: ErrConfigMissingUsername,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
				// Check defaults are set
				assert.Equal(t, DefaultTimeoutSeconds, tt.config.TimeoutSeconds)
			}
		})
	}
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig("https://api", "https://auth", "id", "secret", "user", "pw")

	assert.Equal(t, DefaultMaxUnauthorizedRetries, cfg.MaxUnauthorizedRetries)
	assert.Equal(t, DefaultCallDelay, cfg.CallDelay)
	assert.Equal(t, 30, cfg.TimeoutSeconds)
}

// ---------------------------------------------------------------------------
// TokenClient Tests
// ---------------------------------------------------------------------------

func TestTokenClient_IssueToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "client", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.PostForm.Get("grant_type"))
		assert.Equal(t, "shop", r.PostForm.Get("username"))
		assert.Equal(t, "pw", r.PostForm.Get("password"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"abc","token_type":"bearer","expires_in":43199}`))
	}))
	defer server.Close()

	tc, err := NewTokenClient(NewConfig(server.URL, server.URL, "client", "secret", "shop", "pw"), zap.NewNop())
	require.NoError(t, err)

	token, err := tc.IssueToken(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "abc", token.AccessToken)
	assert.Equal(t, "bearer", token.TokenType)
	assert.Equal(t, 43199, token.ExpiresIn)
}

func TestTokenClient_IssueToken_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"rejected grant", http.StatusBadRequest, `{"error":"invalid_grant","error_description":"Bad credentials"}`},
		{"no access token", http.StatusOK, `{"token_type":"bearer"}`},
		{"garbage", http.StatusOK, `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			tc, err := NewTokenClient(NewConfig(server.URL, server.URL, "c", "s", "u", "p"), zap.NewNop())
			require.NoError(t, err)

			token, err := tc.IssueToken(context.Background())

			assert.Nil(t, token)
			assert.True(t, errors.Is(err, integration.ErrCredentialFetch))
		})
	}
}
