package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vmfleet/internal/domain"

	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint hit.
const uniqueViolation = "23505"

// Ensure the interface is met.
var _ domain.VMRepository = (*Store)(nil)

// Create inserts a VM and its disks in one transaction. A duplicate vm_id
// surfaces as domain.ErrDuplicateVM; the unique constraint is authoritative.
func (d *Store) Create(ctx context.Context, vm *domain.VM) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	createdAt := vm.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO virtual_machines (vm_id, ram, cpu, password_hash, created_at) VALUES ($1, $2, $3, $4, $5)",
		vm.ID, vm.RAM, vm.CPU, vm.PasswordHash, createdAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateVM
		}
		return fmt.Errorf("insert vm: %w", err)
	}

	if err := insertDisks(ctx, tx, vm.Disks); err != nil {
		return err
	}
	return tx.Commit()
}

// Get retrieves a VM and its disks, nil if absent.
func (d *Store) Get(ctx context.Context, id string) (*domain.VM, error) {
	var vm domain.VM
	err := d.sql.QueryRowContext(ctx,
		"SELECT vm_id, ram, cpu, password_hash, created_at FROM virtual_machines WHERE vm_id = $1",
		id,
	).Scan(&vm.ID, &vm.RAM, &vm.CPU, &vm.PasswordHash, &vm.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := d.sql.QueryContext(ctx,
		"SELECT disk_id, vm_id, size_gb FROM disks WHERE vm_id = $1 ORDER BY disk_id",
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var disk domain.Disk
		if err := rows.Scan(&disk.ID, &disk.VMID, &disk.SizeGB); err != nil {
			return nil, err
		}
		vm.Disks = append(vm.Disks, disk)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &vm, nil
}

// List returns all VMs without their disk sets.
func (d *Store) List(ctx context.Context) ([]domain.VM, error) {
	rows, err := d.sql.QueryContext(ctx,
		"SELECT vm_id, ram, cpu, password_hash, created_at FROM virtual_machines ORDER BY vm_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.VM
	for rows.Next() {
		var vm domain.VM
		if err := rows.Scan(&vm.ID, &vm.RAM, &vm.CPU, &vm.PasswordHash, &vm.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, vm)
	}
	return out, rows.Err()
}

// ListDisks returns all disks across all VMs.
func (d *Store) ListDisks(ctx context.Context) ([]domain.Disk, error) {
	rows, err := d.sql.QueryContext(ctx,
		"SELECT disk_id, vm_id, size_gb FROM disks ORDER BY vm_id, disk_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Disk
	for rows.Next() {
		var disk domain.Disk
		if err := rows.Scan(&disk.ID, &disk.VMID, &disk.SizeGB); err != nil {
			return nil, err
		}
		out = append(out, disk)
	}
	return out, rows.Err()
}

// Update applies a partial update in one transaction. A non-nil Disks set
// replaces the VM's disks via delete-then-insert; any failure rolls the
// whole change back so the prior disk set stays intact.
func (d *Store) Update(ctx context.Context, id string, upd domain.VMUpdate) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"UPDATE virtual_machines SET ram = COALESCE($2, ram), cpu = COALESCE($3, cpu) WHERE vm_id = $1",
		id, upd.RAM, upd.CPU,
	)
	if err != nil {
		return fmt.Errorf("update vm: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrVMNotFound
	}

	if upd.Disks != nil {
		if _, err := tx.ExecContext(ctx, "DELETE FROM disks WHERE vm_id = $1", id); err != nil {
			return fmt.Errorf("replace disks: %w", err)
		}
		if err := insertDisks(ctx, tx, upd.Disks); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func insertDisks(ctx context.Context, tx *sql.Tx, disks []domain.Disk) error {
	for _, disk := range disks {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO disks (disk_id, vm_id, size_gb) VALUES ($1, $2, $3)",
			disk.ID, disk.VMID, disk.SizeGB,
		)
		if err != nil {
			return fmt.Errorf("insert disk: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
