package simulation

import (
	"time"

	"github.com/holiman/uint256"

	"reflection-token-lab/internal/domain"
	"reflection-token-lab/internal/ledger"
)

// Accounts names the participants of the launch scenario.
type Accounts struct {
	Owner   domain.Address
	Holders []domain.Address // at least three
	Pair    domain.Address
}

// LaunchScenario is the token's launch day with the default configuration:
//   - the owner seeds three holders (1000, 1000 and 100 tokens);
//   - a holder trade before launch is rejected;
//   - the owner launches and flags the pair;
//   - a sale inside the anti-snipe window is rejected;
//   - after the window a wallet transfer moves untaxed and a sale pays 5%.
func LaunchScenario(a Accounts, decimals uint8) []Step {
	units := func(s string) *uint256.Int { return domain.MustParseUnits(s, decimals) }
	h1, h2, h3 := a.Holders[0], a.Holders[1], a.Holders[2]

	return []Step{
		{Kind: StepTransfer, From: a.Owner, To: h1, Amount: units("1000")},
		{Kind: StepTransfer, From: a.Owner, To: h2, Amount: units("1000")},
		{Kind: StepTransfer, From: a.Owner, To: h3, Amount: units("100")},
		{Kind: StepTransfer, From: h1, To: h2, Amount: units("1"), ExpectErr: ledger.ErrNotLaunched},
		{Kind: StepLaunch, Caller: h1, ExpectErr: ledger.ErrUnauthorized},
		{Kind: StepLaunch, Caller: a.Owner},
		{Kind: StepSetPair, Caller: a.Owner, To: a.Pair, Flag: true},
		{Kind: StepTransfer, From: h1, To: a.Pair, Amount: units("100"), ExpectErr: ledger.ErrAntiSnipe},
		{Kind: StepAdvance, Advance: 10 * time.Minute},
		{Kind: StepTransfer, From: h1, To: h2, Amount: units("10")},
		{Kind: StepTransfer, From: h1, To: a.Pair, Amount: units("100")},
		{Kind: StepTransfer, From: a.Pair, To: h3, Amount: units("50")},
		{Kind: StepLaunch, Caller: a.Owner, ExpectErr: ledger.ErrAlreadyLaunched},
	}
}
