package app

import (
	"context"
	"strings"
	"testing"

	"vmfleet/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func validRegisterParams() RegisterParams {
	return RegisterParams{
		ID:        "vm1",
		RAM:       512,
		CPU:       2,
		Password:  "pw123456",
		DiskSizes: []int{10},
	}
}

func TestVMService_Register_Validation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*RegisterParams)
	}{
		{"id too short", func(p *RegisterParams) { p.ID = "ab" }},
		{"id too long", func(p *RegisterParams) { p.ID = strings.Repeat("x", 51) }},
		{"id with space", func(p *RegisterParams) { p.ID = "vm 1" }},
		{"ram zero", func(p *RegisterParams) { p.RAM = 0 }},
		{"ram too large", func(p *RegisterParams) { p.RAM = 1024 }},
		{"cpu zero", func(p *RegisterParams) { p.CPU = 0 }},
		{"cpu too large", func(p *RegisterParams) { p.CPU = 32 }},
		{"password too short", func(p *RegisterParams) { p.Password = "short" }},
		{"password too long", func(p *RegisterParams) { p.Password = strings.Repeat("x", 101) }},
		{"disk size zero", func(p *RegisterParams) { p.DiskSizes = []int{0} }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			created := false
			svc := NewVMService(&mockVMRepo{
				createFn: func(ctx context.Context, vm *domain.VM) error {
					created = true
					return nil
				},
			})

			p := validRegisterParams()
			tc.mutate(&p)

			err := svc.Register(context.Background(), p)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.False(t, created, "store must not be reached on invalid input")
		})
	}
}

func TestVMService_Register_HashesPassword(t *testing.T) {
	var stored *domain.VM
	svc := NewVMService(&mockVMRepo{
		createFn: func(ctx context.Context, vm *domain.VM) error {
			stored = vm
			return nil
		},
	})

	require.NoError(t, svc.Register(context.Background(), validRegisterParams()))
	require.NotNil(t, stored)

	assert.NotEqual(t, "pw123456", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("pw123456")))

	require.Len(t, stored.Disks, 1)
	assert.Equal(t, 10, stored.Disks[0].SizeGB)
	assert.Equal(t, "vm1", stored.Disks[0].VMID)
	assert.NotEmpty(t, stored.Disks[0].ID)
}

func TestVMService_Register_ConflictPropagates(t *testing.T) {
	svc := NewVMService(&mockVMRepo{
		createFn: func(ctx context.Context, vm *domain.VM) error {
			return domain.ErrDuplicateVM
		},
	})

	err := svc.Register(context.Background(), validRegisterParams())
	assert.ErrorIs(t, err, domain.ErrDuplicateVM)
}

func TestVMService_Update_Partial(t *testing.T) {
	var got domain.VMUpdate
	svc := NewVMService(&mockVMRepo{
		updateFn: func(ctx context.Context, id string, upd domain.VMUpdate) error {
			assert.Equal(t, "vm1", id)
			got = upd
			return nil
		},
	})

	ram := 256
	require.NoError(t, svc.Update(context.Background(), "vm1", UpdateParams{RAM: &ram}))

	require.NotNil(t, got.RAM)
	assert.Equal(t, 256, *got.RAM)
	assert.Nil(t, got.CPU, "unsupplied fields stay nil")
	assert.Nil(t, got.Disks, "unsupplied disks mean no replacement")
}

func TestVMService_Update_ReplacesDisks(t *testing.T) {
	var got domain.VMUpdate
	svc := NewVMService(&mockVMRepo{
		updateFn: func(ctx context.Context, id string, upd domain.VMUpdate) error {
			got = upd
			return nil
		},
	})

	require.NoError(t, svc.Update(context.Background(), "vm1", UpdateParams{DiskSizes: []int{20, 30}}))

	require.Len(t, got.Disks, 2)
	assert.Equal(t, 20, got.Disks[0].SizeGB)
	assert.Equal(t, 30, got.Disks[1].SizeGB)
	assert.Equal(t, "vm1", got.Disks[0].VMID)
}

func TestVMService_Update_EmptyDiskSetIsReplacement(t *testing.T) {
	var got domain.VMUpdate
	svc := NewVMService(&mockVMRepo{
		updateFn: func(ctx context.Context, id string, upd domain.VMUpdate) error {
			got = upd
			return nil
		},
	})

	require.NoError(t, svc.Update(context.Background(), "vm1", UpdateParams{DiskSizes: []int{}}))
	require.NotNil(t, got.Disks, "empty set still replaces")
	assert.Empty(t, got.Disks)
}

func TestVMService_Update_Validation(t *testing.T) {
	reached := false
	svc := NewVMService(&mockVMRepo{
		updateFn: func(ctx context.Context, id string, upd domain.VMUpdate) error {
			reached = true
			return nil
		},
	})

	badRAM := 0
	err := svc.Update(context.Background(), "vm1", UpdateParams{RAM: &badRAM})
	assert.ErrorIs(t, err, domain.ErrValidation)

	err = svc.Update(context.Background(), "vm1", UpdateParams{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.False(t, reached)
}
