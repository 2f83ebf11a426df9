package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"drive-ledger/internal/model"
)

const maxBodyBytes = 1 << 20

// validator is implemented by request bodies that check themselves after
// decoding.
type validator interface {
	Validate() error
}

// decodeJSON strictly decodes the request body into out and validates it.
// An empty body decodes to the zero value when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, out validator, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			return fmt.Errorf("malformed request body: %w", err)
		}
	}
	return out.Validate()
}

type saveOrderRequest struct {
	SessionID     int64           `json:"session_id"`
	SlotIndex     *int            `json:"slot_index"`
	ProductID     int64           `json:"product_id"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
}

func (r *saveOrderRequest) Validate() error {
	switch {
	case r.SessionID <= 0:
		return errors.New("session_id is required")
	case r.SlotIndex == nil || *r.SlotIndex < 0:
		return errors.New("slot_index must be a non-negative integer")
	case r.ProductID <= 0:
		return errors.New("product_id is required")
	case !r.PurchasePrice.IsPositive():
		return errors.New("purchase_price must be positive")
	case r.PurchasePrice.Exponent() < -2 && !r.PurchasePrice.Equal(r.PurchasePrice.Round(2)):
		return errors.New("purchase_price has more than two decimals")
	}
	return nil
}

type depositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (r *depositRequest) Validate() error {
	if !r.Amount.IsPositive() {
		return errors.New("amount must be positive")
	}
	return nil
}

type withdrawRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Address  string          `json:"address"`
	Password string          `json:"password"`
}

func (r *withdrawRequest) Validate() error {
	switch {
	case !r.Amount.IsPositive():
		return errors.New("amount must be positive")
	case strings.TrimSpace(r.Address) == "":
		return errors.New("address is required")
	case r.Password == "":
		return errors.New("password is required")
	}
	return nil
}

type passwordRequest struct {
	Password string `json:"password"`
}

func (r *passwordRequest) Validate() error {
	if r.Password == "" {
		return errors.New("password is required")
	}
	return nil
}

type registerRequest struct {
	Username       string          `json:"username"`
	Tier           string          `json:"tier"`
	ReferralCode   string          `json:"referral_code"`
	InitialBalance decimal.Decimal `json:"initial_balance"`

	tier model.Tier
}

func (r *registerRequest) Validate() error {
	if strings.TrimSpace(r.Username) == "" {
		return errors.New("username is required")
	}
	if len(r.Username) > 64 {
		return errors.New("username is too long")
	}
	if r.InitialBalance.IsNegative() {
		return errors.New("initial_balance must not be negative")
	}
	r.tier = model.TierBronze
	if r.Tier != "" {
		tier, err := model.ParseTier(r.Tier)
		if err != nil {
			return err
		}
		r.tier = tier
	}
	return nil
}

type adjustRequest struct {
	Account string          `json:"account"`
	Amount  decimal.Decimal `json:"amount"`
	Note    string          `json:"note"`

	account model.Account
}

func (r *adjustRequest) Validate() error {
	if r.Amount.IsZero() {
		return errors.New("amount must not be zero")
	}
	account, err := model.ParseAccount(r.Account)
	if err != nil {
		return err
	}
	r.account = account
	return nil
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (r *reasonRequest) Validate() error {
	if len(r.Reason) > 500 {
		return errors.New("reason is too long")
	}
	return nil
}

type productRequest struct {
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (r *productRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name is required")
	}
	if !r.UnitPrice.IsPositive() {
		return errors.New("unit_price must be positive")
	}
	return nil
}

type productUpdateRequest struct {
	IsActive *bool `json:"is_active"`
}

func (r *productUpdateRequest) Validate() error {
	if r.IsActive == nil {
		return errors.New("is_active is required")
	}
	return nil
}

type tierRequest struct {
	Tier string `json:"tier"`

	tier model.Tier
}

func (r *tierRequest) Validate() error {
	tier, err := model.ParseTier(r.Tier)
	if err != nil {
		return err
	}
	r.tier = tier
	return nil
}

type configurationRequest struct {
	TasksRequired int             `json:"tasks_required"`
	MinPrice      decimal.Decimal `json:"min_price"`
	MaxPrice      decimal.Decimal `json:"max_price"`
	MinQuantity   int             `json:"min_quantity"`
	MaxQuantity   int             `json:"max_quantity"`
}

func (r *configurationRequest) Validate() error {
	switch {
	case r.TasksRequired <= 0:
		return errors.New("tasks_required must be positive")
	case !r.MinPrice.IsPositive() || r.MaxPrice.LessThan(r.MinPrice):
		return errors.New("price bounds are invalid")
	case r.MinQuantity <= 0 || r.MaxQuantity < r.MinQuantity:
		return errors.New("quantity bounds are invalid")
	}
	return nil
}

// emptyRequest accepts an absent or empty JSON object.
type emptyRequest struct{}

func (emptyRequest) Validate() error { return nil }
