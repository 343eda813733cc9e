// Package memory implements an in-memory VM store for development and testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"vmfleet/internal/domain"
)

// Store implements domain.VMRepository in memory.
type Store struct {
	mu  sync.Mutex
	vms map[string]*domain.VM

	// failNextUpdate, when set, makes the next Update return the error
	// without touching state. Used to exercise the atomicity contract.
	failNextUpdate error
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{vms: make(map[string]*domain.VM)}
}

// Ensure the interface is met.
var _ domain.VMRepository = (*Store)(nil)

// FailNextUpdate arms a one-shot fault for the next Update call.
func (s *Store) FailNextUpdate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNextUpdate = err
}

// Create stores a new VM profile.
func (s *Store) Create(ctx context.Context, vm *domain.VM) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vms[vm.ID]; ok {
		return domain.ErrDuplicateVM
	}
	stored := cloneVM(vm)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.vms[vm.ID] = stored
	return nil
}

// Get retrieves a VM by id, nil if absent.
func (s *Store) Get(ctx context.Context, id string) (*domain.VM, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vm, ok := s.vms[id]
	if !ok {
		return nil, nil
	}
	return cloneVM(vm), nil
}

// List returns all VMs sorted by id.
func (s *Store) List(ctx context.Context) ([]domain.VM, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.VM, 0, len(s.vms))
	for _, vm := range s.vms {
		out = append(out, *cloneVM(vm))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListDisks returns all disks across all VMs.
func (s *Store) ListDisks(ctx context.Context) ([]domain.Disk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Disk
	ids := make([]string, 0, len(s.vms))
	for id := range s.vms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		out = append(out, s.vms[id].Disks...)
	}
	return out, nil
}

// Update applies a partial update atomically: the stored profile is replaced
// only after the whole new value is built, so a failure leaves it untouched.
func (s *Store) Update(ctx context.Context, id string, upd domain.VMUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failNextUpdate; err != nil {
		s.failNextUpdate = nil
		return err
	}

	vm, ok := s.vms[id]
	if !ok {
		return domain.ErrVMNotFound
	}

	next := cloneVM(vm)
	if upd.RAM != nil {
		next.RAM = *upd.RAM
	}
	if upd.CPU != nil {
		next.CPU = *upd.CPU
	}
	if upd.Disks != nil {
		next.Disks = append([]domain.Disk(nil), upd.Disks...)
	}
	s.vms[id] = next
	return nil
}

func cloneVM(vm *domain.VM) *domain.VM {
	c := *vm
	c.Disks = append([]domain.Disk(nil), vm.Disks...)
	return &c
}
