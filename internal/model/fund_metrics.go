package model

import "github.com/shopspring/decimal"

// FundMetrics is the fund state reported by the FundToken contract.
type FundMetrics struct {
	TotalAssetValue decimal.Decimal `json:"totalAssetValue"`
	SharesSupply    decimal.Decimal `json:"sharesSupply"`
	LastUpdateTime  int64           `json:"lastUpdateTime"`
	SharePrice      decimal.Decimal `json:"sharePrice"`
}
