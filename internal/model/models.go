// Package model defines the data models for the drive ledger.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tier is a user classification governing commission rate, minimum balance
// and drive configuration.
type Tier string

// Supported tiers.
const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// Tiers returns all tiers in ascending order.
func Tiers() []Tier {
	return []Tier{TierBronze, TierSilver, TierGold, TierPlatinum}
}

// ParseTier normalizes and validates a tier name.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Tiers() {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown tier %q", s)
}

// User is a platform account with cached wallet balances.
// Each balance equals the sum of ledger entries for that account.
type User struct {
	ID                   int64           `db:"id" json:"id"`
	Username             string          `db:"username" json:"username"`
	Tier                 Tier            `db:"tier" json:"tier"`
	UplinerID            *int64          `db:"upliner_id" json:"upliner_id"`
	ReferralCode         string          `db:"referral_code" json:"referral_code"`
	MainBalance          decimal.Decimal `db:"main_balance" json:"main_balance"`
	TrainingBalance      decimal.Decimal `db:"training_balance" json:"training_balance"`
	FrozenBalance        decimal.Decimal `db:"frozen_balance" json:"frozen_balance"`
	IsFrozen             bool            `db:"is_frozen" json:"is_frozen"`
	WithdrawPasswordHash *string         `db:"withdraw_password_hash" json:"-"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at" json:"updated_at"`
}

// Balance returns the cached balance of the given account.
func (u *User) Balance(account Account) decimal.Decimal {
	switch account {
	case AccountTraining:
		return u.TrainingBalance
	case AccountFrozen:
		return u.FrozenBalance
	default:
		return u.MainBalance
	}
}

// Product is an item a drive order can simulate purchasing.
type Product struct {
	ID        int64           `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
	IsActive  bool            `db:"is_active" json:"is_active"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// DriveConfiguration is the admin-managed drive shape for one tier.
type DriveConfiguration struct {
	ID            int64           `db:"id" json:"id"`
	Tier          Tier            `db:"tier" json:"tier"`
	TasksRequired int             `db:"tasks_required" json:"tasks_required"`
	MinPrice      decimal.Decimal `db:"min_price" json:"min_price"`
	MaxPrice      decimal.Decimal `db:"max_price" json:"max_price"`
	MinQuantity   int             `db:"min_quantity" json:"min_quantity"`
	MaxQuantity   int             `db:"max_quantity" json:"max_quantity"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// SessionStatus is the lifecycle state of a drive session.
type SessionStatus string

// Session states. Only active is non-terminal.
const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionAbandoned SessionStatus = "abandoned"
)

// DriveSession tracks one user's progress through a drive.
type DriveSession struct {
	ID              int64           `db:"id" json:"id"`
	UUID            uuid.UUID       `db:"uuid" json:"uuid"`
	UserID          int64           `db:"user_id" json:"user_id"`
	ConfigurationID int64           `db:"configuration_id" json:"configuration_id"`
	Status          SessionStatus   `db:"status" json:"status"`
	TasksCompleted  int             `db:"tasks_completed" json:"tasks_completed"`
	TasksRequired   int             `db:"tasks_required" json:"tasks_required"`
	CommissionTotal decimal.Decimal `db:"commission_total" json:"commission_total"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
	CompletedAt     *time.Time      `db:"completed_at" json:"completed_at"`
}

// AcceptsOrders reports whether another slot can still be recorded.
func (s *DriveSession) AcceptsOrders() bool {
	return s.Status == SessionActive && s.TasksCompleted < s.TasksRequired
}

// OrderStatusCompleted is the only status a persisted drive order has.
const OrderStatusCompleted = "completed"

// DriveOrder is an immutable simulated purchase recorded against a slot.
type DriveOrder struct {
	ID               int64           `db:"id" json:"id"`
	SessionID        int64           `db:"session_id" json:"session_id"`
	SlotIndex        int             `db:"slot_index" json:"slot_index"`
	ProductID        int64           `db:"product_id" json:"product_id"`
	Quantity         int             `db:"quantity" json:"quantity"`
	PurchasePrice    decimal.Decimal `db:"purchase_price" json:"purchase_price"`
	CommissionAmount decimal.Decimal `db:"commission_amount" json:"commission_amount"`
	Status           string          `db:"status" json:"status"`
	Reference        uuid.UUID       `db:"reference" json:"reference"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

// Account identifies one of a user's balances.
type Account string

// Wallet accounts.
const (
	AccountMain     Account = "main"
	AccountTraining Account = "training"
	AccountFrozen   Account = "frozen"
)

// ParseAccount validates an account name.
func ParseAccount(s string) (Account, error) {
	switch a := Account(strings.ToLower(strings.TrimSpace(s))); a {
	case AccountMain, AccountTraining, AccountFrozen:
		return a, nil
	case "":
		return AccountMain, nil
	default:
		return "", fmt.Errorf("unknown account %q", s)
	}
}

// Ledger entry sources for categorizing balance changes.
const (
	SourceDrive      = "drive"      // Drive order commission
	SourceReferral   = "referral"   // Upline bonus from a downline's commission
	SourceAdmin      = "admin"      // Admin credit or debit
	SourceDeposit    = "deposit"    // Approved deposit
	SourceWithdrawal = "withdrawal" // Withdrawal hold, release or payout
	SourceInitial    = "initial"    // Opening balance at registration
)

// LedgerEntry is an append-only balance-affecting event.
type LedgerEntry struct {
	ID           int64           `db:"id" json:"id"`
	UserID       int64           `db:"user_id" json:"user_id"`
	Account      Account         `db:"account" json:"account"`
	Source       string          `db:"source" json:"source"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	SessionID    *int64          `db:"session_id" json:"session_id"`
	SlotIndex    *int            `db:"slot_index" json:"slot_index"`
	SourceUserID *int64          `db:"source_user_id" json:"source_user_id"`
	Description  *string         `db:"description" json:"description"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// RequestStatus is the decision state of a deposit or withdrawal.
type RequestStatus string

// Request states.
const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// Deposit is a user's request to add funds, decided by an admin.
type Deposit struct {
	ID        int64           `db:"id" json:"id"`
	UserID    int64           `db:"user_id" json:"user_id"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	Status    RequestStatus   `db:"status" json:"status"`
	DecidedBy *string         `db:"decided_by" json:"decided_by"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	DecidedAt *time.Time      `db:"decided_at" json:"decided_at"`
}

// Withdrawal is a user's payout request. Its amount is held in the frozen
// balance until an admin decides it.
type Withdrawal struct {
	ID        int64           `db:"id" json:"id"`
	UserID    int64           `db:"user_id" json:"user_id"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	Address   string          `db:"address" json:"address"`
	Status    RequestStatus   `db:"status" json:"status"`
	DecidedBy *string         `db:"decided_by" json:"decided_by"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	DecidedAt *time.Time      `db:"decided_at" json:"decided_at"`
}

// Audit outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// AuditEntry records an admin override, whatever its outcome.
type AuditEntry struct {
	ID           int64     `db:"id" json:"id"`
	Actor        string    `db:"actor" json:"actor"`
	Action       string    `db:"action" json:"action"`
	TargetUserID *int64    `db:"target_user_id" json:"target_user_id"`
	Outcome      string    `db:"outcome" json:"outcome"`
	Detail       string    `db:"detail" json:"detail"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Audit actions.
const (
	AuditForceUnfreeze       = "force_unfreeze"
	AuditResetDrive          = "reset_drive"
	AuditApproveDeposit      = "approve_deposit"
	AuditRejectDeposit       = "reject_deposit"
	AuditApproveWithdrawal   = "approve_withdrawal"
	AuditRejectWithdrawal    = "reject_withdrawal"
	AuditAdjustBalance       = "adjust_balance"
	AuditCreateUser          = "create_user"
	AuditCreateProduct       = "create_product"
	AuditUpdateProduct       = "update_product"
	AuditUpdateConfiguration = "update_configuration"
	AuditChangeTier          = "change_tier"
)

// DailyEarner is a user's drive and referral income for one day.
type DailyEarner struct {
	UserID   int64           `db:"user_id" json:"user_id"`
	Username string          `db:"username" json:"username"`
	Earned   decimal.Decimal `db:"earned" json:"earned"`
}

// EarningSources returns the ledger sources counted in daily earnings.
func EarningSources() []string {
	return []string{SourceDrive, SourceReferral}
}
