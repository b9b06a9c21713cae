package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseAddress_RoundTrip(t *testing.T) {
	a := AddressFromSeed("owner")

	got, err := ParseAddress(a.String())
	if err != nil {
		t.Fatalf("ParseAddress failed: %v", err)
	}
	if got != a {
		t.Errorf("round trip mismatch: got %s, want %s", got, a)
	}
}

func TestParseAddress_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not base58", "0OIl"},
		{"too short", "3mJr7AoUXx2Wqd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAddress(tt.input)
			if !errors.Is(err, ErrInvalidAddress) {
				t.Errorf("expected ErrInvalidAddress, got %v", err)
			}
		})
	}
}

func TestAddress_JSON(t *testing.T) {
	type wrapper struct {
		Addr Address `json:"addr"`
	}
	in := wrapper{Addr: AddressFromSeed("pair")}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var out wrapper
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if out.Addr != in.Addr {
		t.Errorf("JSON mismatch: got %s, want %s", out.Addr, in.Addr)
	}
}

func TestAddress_ZeroAndLess(t *testing.T) {
	if !ZeroAddress.IsZero() {
		t.Error("ZeroAddress should be zero")
	}
	a := AddressFromSeed("a")
	if a.IsZero() {
		t.Error("seeded address should not be zero")
	}
	if !ZeroAddress.Less(a) {
		t.Error("zero address should sort first")
	}
	if a.Less(a) {
		t.Error("address should not be less than itself")
	}
}
