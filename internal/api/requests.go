package api

import "reflection-token-lab/internal/domain"

// TransferRequest is the body of POST /transfer. Amount is in smallest
// units unless Units is set, in which case it is whole tokens.
type TransferRequest struct {
	From   domain.Address `json:"from"`
	To     domain.Address `json:"to"`
	Amount string         `json:"amount"`
	Units  bool           `json:"units,omitempty"`
}

// LaunchRequest is the body of POST /launch.
type LaunchRequest struct {
	Caller domain.Address `json:"caller"`
}

// FlagRequest is the body of POST /pair and POST /exempt.
type FlagRequest struct {
	Caller  domain.Address `json:"caller"`
	Address domain.Address `json:"address"`
	Flag    bool           `json:"flag"`
}

// SupplyResponse is returned by GET /supply.
type SupplyResponse struct {
	TotalSupply  string `json:"total_supply"`
	Decimals     uint8  `json:"decimals"`
	TaxCollected string `json:"tax_collected"`
	Dust         string `json:"dust"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Name         string           `json:"name"`
	Symbol       string           `json:"symbol"`
	Decimals     uint8            `json:"decimals"`
	TotalSupply  string           `json:"total_supply"`
	Holders      int              `json:"holders"`
	Launched     bool             `json:"launched"`
	LaunchedAtMs int64            `json:"launched_at_ms,omitempty"`
	TaxCollected string           `json:"tax_collected"`
	Distributed  string           `json:"distributed"`
	Dust         string           `json:"dust"`
	Pairs        []domain.Address `json:"pairs"`
	LastSeq      int64            `json:"last_seq"`
	Uptime       string           `json:"uptime"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
