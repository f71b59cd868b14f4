package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType distinguishes ledger entries.
type TransactionType string

const (
	TransactionInvestment TransactionType = "INVESTMENT"
	TransactionRedemption TransactionType = "REDEMPTION"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == TransactionInvestment || t == TransactionRedemption
}

// ParseTransactionType converts a stored type string.
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown transaction type %q", s)
	}
	return t, nil
}

// Transaction is an immutable ledger record of a confirmed fund operation.
type Transaction struct {
	ID              string          `json:"id"`
	InvestorAddress string          `json:"investorAddress"`
	USDAmount       decimal.Decimal `json:"usdAmount"`
	Shares          decimal.Decimal `json:"shares"`
	SharePrice      decimal.Decimal `json:"sharePrice"`
	Type            TransactionType `json:"type"`
	TransactionHash string          `json:"transactionHash"`
	CreatedAt       time.Time       `json:"createdAt"`
}
