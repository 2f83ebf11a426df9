// Package service provides business logic implementations.
package service

import "errors"

// Drive errors.
var (
	ErrAlreadyActive     = errors.New("user already has an active drive session")
	ErrNoConfiguration   = errors.New("no drive configuration for tier")
	ErrNoActiveSession   = errors.New("no active drive session")
	ErrNoEligibleProduct = errors.New("no eligible product left for this session")
	ErrInvalidSlot       = errors.New("invalid slot")
	ErrOutOfPolicy       = errors.New("order out of policy")
)

// Account and wallet errors.
var (
	ErrAccountFrozen        = errors.New("account is frozen")
	ErrUserNotFound         = errors.New("user not found")
	ErrProductNotFound      = errors.New("product not found")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrInvalidAmount        = errors.New("invalid amount: must be positive")
	ErrInvalidPassword      = errors.New("invalid withdraw password")
	ErrPasswordNotSet       = errors.New("withdraw password not set")
	ErrWeakPassword         = errors.New("withdraw password must be at least 6 characters")
	ErrInvalidReferral      = errors.New("unknown referral code")
	ErrUsernameTaken        = errors.New("username already taken")
	ErrNotFound             = errors.New("not found")
	ErrDepositNotPending    = errors.New("deposit is not pending")
	ErrWithdrawalNotPending = errors.New("withdrawal is not pending")
)

// Infrastructure errors.
var (
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrPersistenceFailure  = errors.New("persistence failure")
)

// domainErrors pass through transactions unwrapped.
var domainErrors = []error{
	ErrAlreadyActive,
	ErrNoConfiguration,
	ErrNoActiveSession,
	ErrNoEligibleProduct,
	ErrInvalidSlot,
	ErrOutOfPolicy,
	ErrAccountFrozen,
	ErrUserNotFound,
	ErrProductNotFound,
	ErrInsufficientBalance,
	ErrInvalidAmount,
	ErrInvalidPassword,
	ErrPasswordNotSet,
	ErrWeakPassword,
	ErrInvalidReferral,
	ErrUsernameTaken,
	ErrNotFound,
	ErrDepositNotPending,
	ErrWithdrawalNotPending,
	ErrConcurrencyConflict,
	ErrPersistenceFailure,
}

func isDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
