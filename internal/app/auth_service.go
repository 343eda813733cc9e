// Package app holds the application services and business logic.
package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"vmfleet/internal/domain"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned for both unknown vm ids and wrong
	// passwords. One message for both keeps id enumeration impossible.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotAuthenticated indicates a privileged request on a connection
	// with no bound token (never authenticated, or logged out).
	ErrNotAuthenticated = errors.New("authentication required")
	// ErrInvalidToken indicates a presented token that is malformed or does
	// not match the one bound to the connection.
	ErrInvalidToken = errors.New("invalid token")
)

// AuthService handles authentication and the per-request authorization gate.
type AuthService struct {
	vms      domain.VMRepository
	tokens   *TokenService
	registry *Registry
}

// NewAuthService creates a new authentication service.
func NewAuthService(vms domain.VMRepository, tokens *TokenService, registry *Registry) *AuthService {
	return &AuthService{vms: vms, tokens: tokens, registry: registry}
}

// Authenticate verifies the password for a VM profile and, on success, issues
// a token and binds it to the calling connection.
func (s *AuthService) Authenticate(ctx context.Context, connID ConnID, vmID, password string) (string, error) {
	vm, err := s.vms.Get(ctx, vmID)
	if err != nil {
		return "", fmt.Errorf("lookup vm: %w", err)
	}
	if vm == nil {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(vm.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(vm.ID)
	if err != nil {
		return "", err
	}
	if err := s.registry.SetToken(connID, token); err != nil {
		// The connection dropped between read and dispatch. Fail the
		// request; the lifecycle driver is already cleaning up.
		return "", err
	}
	return token, nil
}

// Authorize is the gate for every privileged command. It succeeds iff the
// registry holds a token for this connection, the presented token equals it,
// and the token itself verifies. The registry binding is the source of
// truth: a still-valid token lifted from another session fails here.
func (s *AuthService) Authorize(connID ConnID, presented string) (string, error) {
	st, ok := s.registry.Get(connID)
	if !ok || !st.Authenticated() {
		return "", ErrNotAuthenticated
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(st.Token)) != 1 {
		return "", ErrInvalidToken
	}
	vmID, err := s.tokens.Verify(st.Token)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return "", err
		}
		return "", ErrInvalidToken
	}
	return vmID, nil
}

// Logout runs the authorization gate and, on success, returns the connection
// to the anonymous state. The token string itself is not revoked: the
// per-connection binding is the entire revocation mechanism.
func (s *AuthService) Logout(connID ConnID, presented string) error {
	if _, err := s.Authorize(connID, presented); err != nil {
		return err
	}
	return s.registry.ClearToken(connID)
}
