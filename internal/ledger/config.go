package ledger

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"reflection-token-lab/internal/domain"
)

// Config configures a Ledger.
type Config struct {
	Name     string
	Symbol   string
	Decimals uint8

	// TotalSupply is minted to Owner at construction.
	TotalSupply *uint256.Int

	// Owner controls launch, pair and exemption settings.
	Owner domain.Address
	// Self is the ledger's own address. Collected tax is credited here.
	Self domain.Address

	// SellTaxPercent applies to transfers into a pair.
	SellTaxPercent uint64
	// BuyTaxPercent applies to transfers out of a pair.
	BuyTaxPercent uint64

	// AntiSnipeWindow is how long after launch pair trades stay closed
	// to non-exempt accounts.
	AntiSnipeWindow time.Duration
}

// DefaultConfig returns the launch parameters of the QRB token for the given
// owner and ledger address: 1,000,000 tokens with 18 decimals, 5% tax on both
// sides of a pair and a 10 minute anti-snipe window.
func DefaultConfig(owner, self domain.Address) Config {
	return Config{
		Name:            "QRB Token",
		Symbol:          "QRB",
		Decimals:        domain.DefaultDecimals,
		TotalSupply:     domain.MustParseUnits("1000000", domain.DefaultDecimals),
		Owner:           owner,
		Self:            self,
		SellTaxPercent:  5,
		BuyTaxPercent:   5,
		AntiSnipeWindow: 10 * time.Minute,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Owner.IsZero() {
		return fmt.Errorf("%w: owner is zero", ErrInvalidConfig)
	}
	if c.Self.IsZero() {
		return fmt.Errorf("%w: self is zero", ErrInvalidConfig)
	}
	if c.Owner == c.Self {
		return fmt.Errorf("%w: owner and self must differ", ErrInvalidConfig)
	}
	if c.TotalSupply == nil {
		return fmt.Errorf("%w: total supply is nil", ErrInvalidConfig)
	}
	if c.SellTaxPercent > 100 || c.BuyTaxPercent > 100 {
		return fmt.Errorf("%w: tax percent above 100", ErrInvalidConfig)
	}
	if c.AntiSnipeWindow < 0 {
		return fmt.Errorf("%w: negative anti-snipe window", ErrInvalidConfig)
	}
	return nil
}
