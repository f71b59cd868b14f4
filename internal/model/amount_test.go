package model

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestToUnits(t *testing.T) {
	units, err := ToUnits(decimal.RequireFromString("1234.567891"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if units.String() != "1234567891" {
		t.Fatalf("units mismatch: %s", units)
	}

	units, err = ToUnits(decimal.NewFromInt(500))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if units.String() != "500000000" {
		t.Fatalf("units mismatch: %s", units)
	}
}

func TestToUnitsRejectsPrecisionLoss(t *testing.T) {
	if _, err := ToUnits(decimal.RequireFromString("0.0000001")); err == nil {
		t.Fatalf("expected error for 7 decimal places")
	}
	if _, err := ToUnits(decimal.NewFromInt(-1)); err == nil {
		t.Fatalf("expected error for negative amount")
	}
}

func TestFromUnits(t *testing.T) {
	got := FromUnits(big.NewInt(1500000))
	if !got.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("value mismatch: %s", got)
	}
	if !FromUnits(nil).IsZero() {
		t.Fatalf("nil units should be zero")
	}
}

func TestParseTransactionType(t *testing.T) {
	if _, err := ParseTransactionType("INVESTMENT"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseTransactionType("TRANSFER"); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}
