package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Credential Errors
// ---------------------------------------------------------------------------

// ErrCredentialFetch is returned when the token endpoint yields no usable credential
var ErrCredentialFetch = errors.New("integration: vendor returned no usable credential")

// CredentialFetchError carries the cause of a failed credential fetch.
// errors.Is(err, ErrCredentialFetch) holds for every instance.
type CredentialFetchError struct {
	Reason string
	Err    error
}

// Error implements the error interface
func (e *CredentialFetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrCredentialFetch, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrCredentialFetch, e.Reason)
}

// Unwrap returns the cause
func (e *CredentialFetchError) Unwrap() error {
	return e.Err
}

// Is matches ErrCredentialFetch
func (e *CredentialFetchError) Is(target error) bool {
	return target == ErrCredentialFetch
}

// ---------------------------------------------------------------------------
// Credential
// ---------------------------------------------------------------------------

// DefaultTokenLease is how long an issued token is trusted locally,
// independent of the vendor's own expires_in claim
const DefaultTokenLease = 3000 * time.Second

// Credential is the shared bearer credential for the vendor API.
// At most one row is meaningfully used; it is created on first need and
// updated in place on every refresh.
type Credential struct {
	ID        uuid.UUID
	Value     string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsExpired returns true once now has reached ExpiresAt
func (c *Credential) IsExpired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// CredentialRepository stores the singleton credential
type CredentialRepository interface {
	// Find returns shared.ErrNotFound when no credential was stored yet
	Find(ctx context.Context) (*Credential, error)
	// Save updates the existing credential row or inserts one
	Save(ctx context.Context, credential *Credential) error
}

// ---------------------------------------------------------------------------
// Token ports
// ---------------------------------------------------------------------------

// IssuedToken is the vendor token endpoint response
type IssuedToken struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int
}

// TokenIssuer requests a brand-new token from the vendor
type TokenIssuer interface {
	IssueToken(ctx context.Context) (*IssuedToken, error)
}

// TokenProvider hands out a valid bearer token
type TokenProvider interface {
	// GetValidToken returns the stored token, refreshing it first if expired or missing
	GetValidToken(ctx context.Context) (string, error)
	// ForceRefresh fetches and stores a new token unconditionally
	ForceRefresh(ctx context.Context) (string, error)
}
