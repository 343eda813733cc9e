package app

import (
	"context"
	"testing"
	"time"

	"vmfleet/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type mockVMRepo struct {
	createFn    func(ctx context.Context, vm *domain.VM) error
	getFn       func(ctx context.Context, id string) (*domain.VM, error)
	listFn      func(ctx context.Context) ([]domain.VM, error)
	listDisksFn func(ctx context.Context) ([]domain.Disk, error)
	updateFn    func(ctx context.Context, id string, upd domain.VMUpdate) error
}

func (m *mockVMRepo) Create(ctx context.Context, vm *domain.VM) error {
	if m.createFn != nil {
		return m.createFn(ctx, vm)
	}
	return nil
}

func (m *mockVMRepo) Get(ctx context.Context, id string) (*domain.VM, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, nil
}

func (m *mockVMRepo) List(ctx context.Context) ([]domain.VM, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockVMRepo) ListDisks(ctx context.Context) ([]domain.Disk, error) {
	if m.listDisksFn != nil {
		return m.listDisksFn(ctx)
	}
	return nil, nil
}

func (m *mockVMRepo) Update(ctx context.Context, id string, upd domain.VMUpdate) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, upd)
	}
	return nil
}

func repoWithVM(t *testing.T, vmID, password string) *mockVMRepo {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &mockVMRepo{
		getFn: func(ctx context.Context, id string) (*domain.VM, error) {
			if id == vmID {
				return &domain.VM{ID: vmID, RAM: 512, CPU: 2, PasswordHash: string(hash)}, nil
			}
			return nil, nil
		},
	}
}

func newAuthFixture(t *testing.T) (*AuthService, *Registry) {
	t.Helper()
	registry := NewRegistry()
	tokens := NewTokenService([]byte("test-secret"), time.Hour)
	svc := NewAuthService(repoWithVM(t, "vm1", "pw123456"), tokens, registry)
	return svc, registry
}

func TestAuthService_Authenticate_Success(t *testing.T) {
	svc, registry := newAuthFixture(t)
	require.NoError(t, registry.Register("conn1"))

	token, err := svc.Authenticate(context.Background(), "conn1", "vm1", "pw123456")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	st, ok := registry.Get("conn1")
	require.True(t, ok)
	assert.Equal(t, token, st.Token)

	vmID, err := svc.tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "vm1", vmID)
}

func TestAuthService_Authenticate_NoEnumeration(t *testing.T) {
	svc, registry := newAuthFixture(t)
	require.NoError(t, registry.Register("conn1"))

	_, errUnknownID := svc.Authenticate(context.Background(), "conn1", "nope", "pw123456")
	_, errWrongPassword := svc.Authenticate(context.Background(), "conn1", "vm1", "wrong-password")

	// Same error, same message: the caller cannot tell which part failed.
	assert.ErrorIs(t, errUnknownID, ErrInvalidCredentials)
	assert.ErrorIs(t, errWrongPassword, ErrInvalidCredentials)
	assert.Equal(t, errUnknownID.Error(), errWrongPassword.Error())
}

func TestAuthService_Authenticate_ConnGone(t *testing.T) {
	svc, _ := newAuthFixture(t)

	// Connection disappeared between read and dispatch.
	_, err := svc.Authenticate(context.Background(), "ghost", "vm1", "pw123456")
	assert.ErrorIs(t, err, ErrConnNotFound)
}

func TestAuthService_Authorize_Gate(t *testing.T) {
	svc, registry := newAuthFixture(t)
	require.NoError(t, registry.Register("conn1"))

	// (a) no token bound yet.
	_, err := svc.Authorize("conn1", "anything")
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	token, err := svc.Authenticate(context.Background(), "conn1", "vm1", "pw123456")
	require.NoError(t, err)

	// (b) presented token must equal the bound one.
	_, err = svc.Authorize("conn1", "not-the-bound-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// All three conditions hold.
	vmID, err := svc.Authorize("conn1", token)
	require.NoError(t, err)
	assert.Equal(t, "vm1", vmID)

	// Unknown connection fails closed.
	_, err = svc.Authorize("ghost", token)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestAuthService_Authorize_CrossConnectionReplay(t *testing.T) {
	svc, registry := newAuthFixture(t)
	require.NoError(t, registry.Register("connA"))
	require.NoError(t, registry.Register("connB"))

	token, err := svc.Authenticate(context.Background(), "connA", "vm1", "pw123456")
	require.NoError(t, err)

	// The token verifies on its own, but connB's registry entry does not
	// hold it, so the gate rejects the replay.
	_, err = svc.tokens.Verify(token)
	require.NoError(t, err)
	_, err = svc.Authorize("connB", token)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestAuthService_Authorize_ExpiredToken(t *testing.T) {
	registry := NewRegistry()
	tokens := NewTokenService([]byte("test-secret"), -time.Minute)
	svc := NewAuthService(repoWithVM(t, "vm1", "pw123456"), tokens, registry)
	require.NoError(t, registry.Register("conn1"))

	token, err := svc.Authenticate(context.Background(), "conn1", "vm1", "pw123456")
	require.NoError(t, err)

	_, err = svc.Authorize("conn1", token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestAuthService_Logout(t *testing.T) {
	svc, registry := newAuthFixture(t)
	require.NoError(t, registry.Register("conn1"))

	token, err := svc.Authenticate(context.Background(), "conn1", "vm1", "pw123456")
	require.NoError(t, err)

	require.NoError(t, svc.Logout("conn1", token))

	// Post-logout the connection is anonymous again: the gate reports
	// missing authentication, not a stale-token failure.
	_, err = svc.Authorize("conn1", token)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	// Logout without a session fails the same way.
	assert.ErrorIs(t, svc.Logout("conn1", token), ErrNotAuthenticated)
}
