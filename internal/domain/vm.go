// Package domain contains the core business entities and interfaces.
package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDuplicateVM indicates that a VM with the same id is already registered.
	ErrDuplicateVM = errors.New("vm id already registered")
	// ErrVMNotFound indicates that no VM exists for the given id.
	ErrVMNotFound = errors.New("vm not found")
)

// VM is a registered virtual machine profile. The password is stored only as
// a bcrypt hash and must never leave the store boundary in responses.
type VM struct {
	ID           string
	RAM          int
	CPU          int
	PasswordHash string
	CreatedAt    time.Time
	Disks        []Disk
}

// Disk is a block device owned by one VM.
type Disk struct {
	ID     string
	VMID   string
	SizeGB int
}

// VMUpdate describes a partial update to a VM profile. Nil fields are left
// unchanged; a non-nil Disks slice fully replaces the VM's disk set.
type VMUpdate struct {
	RAM   *int
	CPU   *int
	Disks []Disk
}

// VMRepository defines the port for VM persistence operations. Get returns
// (nil, nil) when the VM does not exist. Update must apply the whole change,
// including the disk replacement, atomically: a failure partway must leave
// the stored profile untouched.
type VMRepository interface {
	Create(ctx context.Context, vm *VM) error
	Get(ctx context.Context, id string) (*VM, error)
	List(ctx context.Context) ([]VM, error)
	ListDisks(ctx context.Context) ([]Disk, error)
	Update(ctx context.Context, id string, upd VMUpdate) error
}
