package app

import (
	"context"
	"fmt"

	"vmfleet/internal/domain"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// RegisterParams carries the fields of a registration request. DiskSizes are
// in gigabytes, one entry per disk to create.
type RegisterParams struct {
	ID        string
	RAM       int
	CPU       int
	Password  string
	DiskSizes []int
}

// UpdateParams carries a partial profile update. Nil RAM/CPU leave the field
// unchanged; a nil DiskSizes keeps the current disk set, a non-nil one fully
// replaces it.
type UpdateParams struct {
	RAM       *int
	CPU       *int
	DiskSizes []int
}

// VMService handles VM profile registration, listing and updates.
type VMService struct {
	vms domain.VMRepository
}

// NewVMService creates a new VM profile service.
func NewVMService(vms domain.VMRepository) *VMService {
	return &VMService{vms: vms}
}

// Register validates the profile shape, hashes the password and creates the
// profile. Duplicate ids surface as domain.ErrDuplicateVM from the store's
// uniqueness constraint; there is deliberately no local existence check, so
// two racing registrations cannot both succeed.
func (s *VMService) Register(ctx context.Context, p RegisterParams) error {
	if err := domain.ValidateID(p.ID); err != nil {
		return err
	}
	if err := domain.ValidateRAM(p.RAM); err != nil {
		return err
	}
	if err := domain.ValidateCPU(p.CPU); err != nil {
		return err
	}
	if err := domain.ValidatePassword(p.Password); err != nil {
		return err
	}
	for _, size := range p.DiskSizes {
		if err := domain.ValidateDiskSize(size); err != nil {
			return err
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	vm := &domain.VM{
		ID:           p.ID,
		RAM:          p.RAM,
		CPU:          p.CPU,
		PasswordHash: string(hash),
		Disks:        newDisks(p.ID, p.DiskSizes),
	}
	return s.vms.Create(ctx, vm)
}

// Update applies a partial update to the VM identified by vmID. The caller
// resolves vmID from a verified token, never from client-supplied data.
func (s *VMService) Update(ctx context.Context, vmID string, p UpdateParams) error {
	if p.RAM == nil && p.CPU == nil && p.DiskSizes == nil {
		return fmt.Errorf("%w: nothing to update", domain.ErrValidation)
	}
	if p.RAM != nil {
		if err := domain.ValidateRAM(*p.RAM); err != nil {
			return err
		}
	}
	if p.CPU != nil {
		if err := domain.ValidateCPU(*p.CPU); err != nil {
			return err
		}
	}
	for _, size := range p.DiskSizes {
		if err := domain.ValidateDiskSize(size); err != nil {
			return err
		}
	}

	upd := domain.VMUpdate{RAM: p.RAM, CPU: p.CPU}
	if p.DiskSizes != nil {
		upd.Disks = newDisks(vmID, p.DiskSizes)
	}
	return s.vms.Update(ctx, vmID, upd)
}

// Get returns the profile for the given id, nil if absent.
func (s *VMService) Get(ctx context.Context, id string) (*domain.VM, error) {
	return s.vms.Get(ctx, id)
}

// List returns all registered profiles.
func (s *VMService) List(ctx context.Context) ([]domain.VM, error) {
	return s.vms.List(ctx)
}

// ListDisks returns all disks across all profiles.
func (s *VMService) ListDisks(ctx context.Context) ([]domain.Disk, error) {
	return s.vms.ListDisks(ctx)
}

func newDisks(vmID string, sizes []int) []domain.Disk {
	disks := make([]domain.Disk, 0, len(sizes))
	for _, size := range sizes {
		disks = append(disks, domain.Disk{
			ID:     uuid.NewString(),
			VMID:   vmID,
			SizeGB: size,
		})
	}
	return disks
}
