package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Bounds for VM profile fields. RAM is in megabytes, disk sizes in gigabytes.
const (
	MinIDLength       = 3
	MaxIDLength       = 50
	MaxRAM            = 1023
	MaxCPU            = 31
	MinPasswordLength = 8
	MaxPasswordLength = 100
)

// ErrValidation is the base error for all field validation failures.
var ErrValidation = errors.New("validation failed")

// ValidateID checks the VM id charset and length constraints.
func ValidateID(id string) error {
	if len(id) < MinIDLength || len(id) > MaxIDLength {
		return fmt.Errorf("%w: vm_id must be between %d and %d characters", ErrValidation, MinIDLength, MaxIDLength)
	}
	if strings.ContainsAny(id, " \t\n\r") {
		return fmt.Errorf("%w: vm_id must not contain whitespace", ErrValidation)
	}
	return nil
}

// ValidateRAM checks the RAM bound (1..MaxRAM megabytes).
func ValidateRAM(ram int) error {
	if ram < 1 || ram > MaxRAM {
		return fmt.Errorf("%w: ram must be between 1 and %d", ErrValidation, MaxRAM)
	}
	return nil
}

// ValidateCPU checks the CPU core bound (1..MaxCPU).
func ValidateCPU(cpu int) error {
	if cpu < 1 || cpu > MaxCPU {
		return fmt.Errorf("%w: cpu must be between 1 and %d", ErrValidation, MaxCPU)
	}
	return nil
}

// ValidatePassword checks the plaintext password length constraints.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength || len(password) > MaxPasswordLength {
		return fmt.Errorf("%w: password must be between %d and %d characters", ErrValidation, MinPasswordLength, MaxPasswordLength)
	}
	return nil
}

// ValidateDiskSize checks that a disk size is a positive number of gigabytes.
func ValidateDiskSize(size int) error {
	if size < 1 {
		return fmt.Errorf("%w: disk_size must be positive", ErrValidation)
	}
	return nil
}
