package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// TokenManagerError wraps unexpected persistence failures during token handling
type TokenManagerError struct {
	Op  string
	Err error
}

// Error implements the error interface
func (e *TokenManagerError) Error() string {
	return fmt.Sprintf("token manager: %s: %v", e.Op, e.Err)
}

// Unwrap returns the cause
func (e *TokenManagerError) Unwrap() error {
	return e.Err
}

const flightRefresh = "refresh"

// forceRefreshGrace is how long a freshly issued token satisfies ForceRefresh.
// Requests rejected with the previous token retry with the new one instead
// of asking the vendor again.
const forceRefreshGrace = 5 * time.Second

// TokenManager owns the validity of the shared vendor credential.
// Refreshes are single-flighted: concurrent callers, whether refreshing an
// expired token or forcing one, share one remote token request and one write.
type TokenManager struct {
	repo   integration.CredentialRepository
	issuer integration.TokenIssuer
	lease  time.Duration
	now    func() time.Time
	group  singleflight.Group
	logger *zap.Logger
}

// NewTokenManager creates a new TokenManager.
// A zero lease falls back to integration.DefaultTokenLease.
func NewTokenManager(
	repo integration.CredentialRepository,
	issuer integration.TokenIssuer,
	lease time.Duration,
	logger *zap.Logger,
) *TokenManager {
	if lease <= 0 {
		lease = integration.DefaultTokenLease
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenManager{
		repo:   repo,
		issuer: issuer,
		lease:  lease,
		now:    time.Now,
		logger: logger,
	}
}

// WithClock replaces the time source
func (m *TokenManager) WithClock(now func() time.Time) *TokenManager {
	m.now = now
	return m
}

// Ensure TokenManager implements TokenProvider
var _ integration.TokenProvider = (*TokenManager)(nil)

// GetValidToken returns the stored token, refreshing it if it is missing or expired
func (m *TokenManager) GetValidToken(ctx context.Context) (string, error) {
	cred, err := m.load(ctx)
	if err != nil {
		return "", err
	}
	if cred != nil && !cred.IsExpired(m.now()) {
		return cred.Value, nil
	}

	v, err, _ := m.group.Do(flightRefresh, func() (any, error) {
		fctx := context.WithoutCancel(ctx)
		// another flight may have refreshed while we were waiting
		cred, err := m.load(fctx)
		if err != nil {
			return "", err
		}
		if cred != nil && !cred.IsExpired(m.now()) {
			return cred.Value, nil
		}
		return m.refresh(fctx, cred)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// ForceRefresh requests a new token from the vendor and stores it. A token
// issued within the last few seconds is returned as is.
func (m *TokenManager) ForceRefresh(ctx context.Context) (string, error) {
	v, err, _ := m.group.Do(flightRefresh, func() (any, error) {
		fctx := context.WithoutCancel(ctx)
		cred, err := m.load(fctx)
		if err != nil {
			return "", err
		}
		if m.refreshedRecently(cred) {
			return cred.Value, nil
		}
		return m.refresh(fctx, cred)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *TokenManager) refreshedRecently(cred *integration.Credential) bool {
	if cred == nil || cred.Value == "" || cred.UpdatedAt.IsZero() {
		return false
	}
	now := m.now()
	return !cred.IsExpired(now) && now.Sub(cred.UpdatedAt) < forceRefreshGrace
}

// load returns the stored credential or nil if none exists yet
func (m *TokenManager) load(ctx context.Context) (*integration.Credential, error) {
	cred, err := m.repo.Find(ctx)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, m.storageError("load credential", err)
	}
	return cred, nil
}

func (m *TokenManager) refresh(ctx context.Context, existing *integration.Credential) (string, error) {
	issued, err := m.issuer.IssueToken(ctx)
	if err != nil {
		m.logger.Error("Vendor token request failed", zap.Error(err))
		if errors.Is(err, integration.ErrCredentialFetch) {
			return "", err
		}
		return "", &integration.CredentialFetchError{Reason: "token request failed", Err: err}
	}
	if issued == nil || strings.TrimSpace(issued.AccessToken) == "" {
		m.logger.Error("Vendor token response carried no access token")
		return "", &integration.CredentialFetchError{Reason: "empty access token"}
	}

	now := m.now()
	cred := existing
	if cred == nil {
		cred = &integration.Credential{
			ID:        uuid.New(),
			CreatedAt: now,
		}
	}
	cred.Value = issued.AccessToken
	cred.ExpiresAt = now.Add(m.lease)
	cred.UpdatedAt = now

	if err := m.repo.Save(ctx, cred); err != nil {
		return "", m.storageError("save credential", err)
	}

	m.logger.Info("Vendor credential refreshed",
		zap.Bool("created", existing == nil),
		zap.Time("expires_at", cred.ExpiresAt),
		zap.Int("vendor_expires_in", issued.ExpiresIn),
	)
	return cred.Value, nil
}

// storageError passes repository errors through untouched and wraps anything else
func (m *TokenManager) storageError(op string, err error) error {
	if shared.IsRepositoryError(err) {
		return err
	}
	return &TokenManagerError{Op: op, Err: err}
}
