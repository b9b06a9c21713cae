package idhash

import (
	"testing"

	"reflection-token-lab/internal/domain"
)

func TestDerivePairAddress(t *testing.T) {
	token := domain.AddressFromSeed("qrb-token")
	quote := domain.AddressFromSeed("wbnb")
	program := domain.AddressFromSeed("router")

	pair, bump, err := DerivePairAddress(token, quote, program)
	if err != nil {
		t.Fatalf("DerivePairAddress failed: %v", err)
	}
	if pair.IsZero() {
		t.Fatal("pair address should not be zero")
	}
	if bump == 0 {
		t.Error("bump should be in 1..255")
	}
	if isOnCurve(pair[:]) {
		t.Error("pair address must be off-curve")
	}

	// Order independent.
	swapped, swappedBump, err := DerivePairAddress(quote, token, program)
	if err != nil {
		t.Fatalf("DerivePairAddress(swapped) failed: %v", err)
	}
	if swapped != pair || swappedBump != bump {
		t.Errorf("swapped inputs derived %s/%d, want %s/%d", swapped, swappedBump, pair, bump)
	}

	// Program dependent.
	other, _, err := DerivePairAddress(token, quote, domain.AddressFromSeed("other-router"))
	if err != nil {
		t.Fatalf("DerivePairAddress(other) failed: %v", err)
	}
	if other == pair {
		t.Error("different program should derive a different pair")
	}
}
