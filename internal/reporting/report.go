package reporting

import "time"

// Report represents the token state report.
type Report struct {
	// Metadata
	GeneratedAt time.Time

	Token    TokenSummary
	Launch   LaunchSummary
	Activity ActivitySummary

	// Holders sorted by real balance descending, then address
	Holders []HolderRow

	// Balance spread over wallets, pairs and the collector excluded
	Distribution DistributionSection

	// Tax events sorted by seq
	TaxEvents []TaxEventRow

	// Tax totals per seller, largest first
	TaxPayers []TaxPayerRow

	// Verification is nil unless the journal was replayed
	Verification *VerificationSection
}

// TokenSummary contains token metadata. Amounts are formatted in whole
// tokens.
type TokenSummary struct {
	Name        string
	Symbol      string
	Decimals    uint8
	TotalSupply string
	Owner       string
	Address     string
	SellTax     uint64 // percent
	BuyTax      uint64 // percent
}

// LaunchSummary describes the trading switch.
type LaunchSummary struct {
	Launched        bool
	LaunchedAtMs    int64
	AntiSnipeWindow time.Duration
	Pairs           []string
}

// ActivitySummary contains journal statistics.
type ActivitySummary struct {
	Operations     int
	Transfers      int
	TaxedTransfers int
	FirstMs        int64 // Unix ms, zero for an empty journal
	LastMs         int64
	TaxCollected   string
	Distributed    string
	Dust           string
}

// HolderRow represents one row in the holders table.
type HolderRow struct {
	Address    string
	Balance    string
	Reflection string
	Reward     string // reflection above balance, zero if none
	Pair       bool
}

// DistributionSection mirrors metrics.Distribution. Amounts are whole
// tokens.
type DistributionSection struct {
	Wallets  int
	Mean     float64
	Median   float64
	P10      float64
	P90      float64
	Min      float64
	Max      float64
	Stddev   float64
	TopShare float64
	Gini     float64
}

// TaxPayerRow is one seller's tax total.
type TaxPayerRow struct {
	Seller string
	Events int
	Gross  string
	Tax    string
}

// TaxEventRow represents one taxed transfer.
type TaxEventRow struct {
	Seq         int64
	Seller      string
	Pair        string
	Gross       string
	Tax         string
	TimestampMs int64
}

// VerificationSection summarises a journal replay.
type VerificationSection struct {
	Match       bool
	Applied     int
	LastSeq     int64
	Divergences []DivergenceRow
}

// DivergenceRow is one field where live and replayed state differ.
type DivergenceRow struct {
	Field    string
	Expected string
	Actual   string
}
