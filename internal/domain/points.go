package domain

import (
	"regexp"
	"time"
)

// Currency is a named point type tracked independently per user
type Currency string

const (
	CurrencyLaxCredit     Currency = "lax_credit"
	CurrencyAttackToken   Currency = "attack_token"
	CurrencyDefenseDollar Currency = "defense_dollar"
	CurrencyMidfieldMedal Currency = "midfield_medal"
	CurrencyReboundReward Currency = "rebound_reward"
	CurrencyLaxIQPoint    Currency = "lax_iq_point"
	CurrencyFlexPoint     Currency = "flex_point"
)

// KnownCurrencies lists the currencies the default scoring policy awards
var KnownCurrencies = []Currency{
	CurrencyLaxCredit,
	CurrencyAttackToken,
	CurrencyDefenseDollar,
	CurrencyMidfieldMedal,
	CurrencyReboundReward,
	CurrencyLaxIQPoint,
	CurrencyFlexPoint,
}

var currencyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,47}$`)

// Validate checks that the currency name is a lower snake_case identifier
func (c Currency) Validate() error {
	if !currencyPattern.MatchString(string(c)) {
		return ErrInvalidCurrency
	}
	return nil
}

// TransactionType classifies a ledger entry
type TransactionType string

const (
	TransactionEarned   TransactionType = "earned"
	TransactionSpent    TransactionType = "spent"
	TransactionAdjusted TransactionType = "adjusted"
)

// Source types recorded on ledger entries
const (
	SourceWorkoutCompletion = "workout_completion"
	SourceBadgeAward        = "badge_award"
	SourceStreakMilestone   = "streak_milestone"
)

// PointTransaction is an immutable ledger entry
type PointTransaction struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Currency        Currency        `json:"currency"`
	Amount          int64           `json:"amount"`
	TransactionType TransactionType `json:"transaction_type"`
	SourceType      string          `json:"source_type"`
	SourceID        string          `json:"source_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Validate enforces the per-type sign rules of a ledger entry
func (t PointTransaction) Validate() error {
	if t.UserID == "" {
		return ErrMissingUser
	}
	if err := t.Currency.Validate(); err != nil {
		return err
	}
	switch t.TransactionType {
	case TransactionEarned:
		if t.Amount <= 0 {
			return ErrInvalidAmount
		}
	case TransactionSpent:
		if t.Amount >= 0 {
			return ErrInvalidAmount
		}
	case TransactionAdjusted:
		if t.Amount == 0 {
			return ErrInvalidAmount
		}
	default:
		return ErrInvalidAmount
	}
	return nil
}

// PointBalance is the cached sum of a user's ledger for one currency
type PointBalance struct {
	UserID    string    `json:"user_id"`
	Currency  Currency  `json:"currency"`
	Balance   int64     `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}
