// Package apperr defines the error taxonomy shared by the trading core.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrInputValidation         = errors.New("invalid input")
	ErrAuthorizationDenied     = errors.New("product not authorized")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrInsufficientInventory   = errors.New("insufficient inventory")
	ErrRecipeNotFound          = errors.New("recipe not found")
	ErrIngredientsInsufficient = errors.New("insufficient ingredients")
	ErrRoleUnavailable         = errors.New("role not available yet, wait for login confirmation")
	ErrConfigurationInvalid    = errors.New("invalid configuration")
	ErrSnapshotCorrupt         = errors.New("corrupt snapshot")
	ErrConnectionFailed        = errors.New("connection failed")
)

// Validation wraps ErrInputValidation with a formatted reason.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInputValidation, fmt.Sprintf(format, args...))
}

// Configuration wraps ErrConfigurationInvalid with a formatted reason.
func Configuration(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfigurationInvalid, fmt.Sprintf(format, args...))
}

// UnauthorizedError reports a product outside the authorized set.
type UnauthorizedError struct {
	Product string
	Allowed []string
}

func (e *UnauthorizedError) Error() string {
	name := e.Product
	if name == "" {
		name = "(empty)"
	}
	return fmt.Sprintf("product not authorized: %s (allowed: %s)", name, strings.Join(e.Allowed, ", "))
}

func (e *UnauthorizedError) Is(target error) bool { return target == ErrAuthorizationDenied }

// InsufficientFundsError carries the balance and the estimated cost that exceeded it.
type InsufficientFundsError struct {
	Balance  float64
	Required float64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: balance=%.2f, required=%.2f", e.Balance, e.Required)
}

func (e *InsufficientFundsError) Is(target error) bool { return target == ErrInsufficientFunds }

// InsufficientInventoryError carries available vs requested units of a product.
type InsufficientInventoryError struct {
	Product   string
	Available int
	Requested int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory for %s: available=%d, requested=%d", e.Product, e.Available, e.Requested)
}

func (e *InsufficientInventoryError) Is(target error) bool { return target == ErrInsufficientInventory }

// IngredientsError maps each short ingredient to the missing amount.
type IngredientsError struct {
	Product   string
	Shortfall map[string]int
}

func (e *IngredientsError) Error() string {
	keys := make([]string, 0, len(e.Shortfall))
	for k := range e.Shortfall {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, e.Shortfall[k]))
	}
	return fmt.Sprintf("insufficient ingredients to produce %s: missing %s", e.Product, strings.Join(parts, ", "))
}

func (e *IngredientsError) Is(target error) bool { return target == ErrIngredientsInsufficient }

// SnapshotCorruptError names the snapshot file that could not be decoded.
type SnapshotCorruptError struct {
	Path   string
	Reason string
	Err    error
}

func (e *SnapshotCorruptError) Error() string {
	return fmt.Sprintf("corrupt snapshot at %q: %s", e.Path, e.Reason)
}

func (e *SnapshotCorruptError) Is(target error) bool { return target == ErrSnapshotCorrupt }

func (e *SnapshotCorruptError) Unwrap() error { return e.Err }
