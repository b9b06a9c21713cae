package reporting

import (
	"fmt"
	"strings"
	"time"

	"reflection-token-lab/internal/metrics"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# %s (%s) Report\n\n", r.Token.Name, r.Token.Symbol))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Token
	sb.WriteString("## Token\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|-------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Supply | %s |\n", r.Token.TotalSupply))
	sb.WriteString(fmt.Sprintf("| Decimals | %d |\n", r.Token.Decimals))
	sb.WriteString(fmt.Sprintf("| Owner | %s |\n", r.Token.Owner))
	sb.WriteString(fmt.Sprintf("| Token Address | %s |\n", r.Token.Address))
	sb.WriteString(fmt.Sprintf("| Sell Tax | %d%% |\n", r.Token.SellTax))
	sb.WriteString(fmt.Sprintf("| Buy Tax | %d%% |\n", r.Token.BuyTax))
	sb.WriteString("\n")

	// Launch
	sb.WriteString("## Launch\n\n")
	if r.Launch.Launched {
		sb.WriteString(fmt.Sprintf("Launched at %s (anti-snipe window %s).\n\n",
			formatMs(r.Launch.LaunchedAtMs), r.Launch.AntiSnipeWindow))
	} else {
		sb.WriteString("Not launched.\n\n")
	}
	if len(r.Launch.Pairs) > 0 {
		sb.WriteString("Pairs:\n\n")
		for _, p := range r.Launch.Pairs {
			sb.WriteString(fmt.Sprintf("- %s\n", p))
		}
		sb.WriteString("\n")
	}

	// Activity
	sb.WriteString("## Activity\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Operations | %d |\n", r.Activity.Operations))
	sb.WriteString(fmt.Sprintf("| Transfers | %d |\n", r.Activity.Transfers))
	sb.WriteString(fmt.Sprintf("| Taxed Transfers | %d |\n", r.Activity.TaxedTransfers))
	sb.WriteString(fmt.Sprintf("| Tax Collected | %s |\n", r.Activity.TaxCollected))
	sb.WriteString(fmt.Sprintf("| Distributed | %s |\n", r.Activity.Distributed))
	sb.WriteString(fmt.Sprintf("| Dust | %s |\n", r.Activity.Dust))
	sb.WriteString(fmt.Sprintf("| First Operation (ms) | %d |\n", r.Activity.FirstMs))
	sb.WriteString(fmt.Sprintf("| Last Operation (ms) | %d |\n", r.Activity.LastMs))
	sb.WriteString("\n")

	// Holders
	sb.WriteString("## Holders\n\n")
	if len(r.Holders) > 0 {
		sb.WriteString("| Address | Balance | Reflection | Reward | Pair |\n")
		sb.WriteString("|---------|---------|------------|--------|------|\n")
		for _, h := range r.Holders {
			pair := ""
			if h.Pair {
				pair = "yes"
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
				h.Address, h.Balance, h.Reflection, h.Reward, pair))
		}
	} else {
		sb.WriteString("No holders.\n")
	}
	sb.WriteString("\n")

	// Distribution
	sb.WriteString("## Distribution\n\n")
	if d := r.Distribution; d.Wallets > 0 {
		sb.WriteString("| Metric | Value |\n")
		sb.WriteString("|--------|-------|\n")
		sb.WriteString(fmt.Sprintf("| Wallets | %d |\n", d.Wallets))
		sb.WriteString(fmt.Sprintf("| Mean | %.4f |\n", d.Mean))
		sb.WriteString(fmt.Sprintf("| Median | %.4f |\n", d.Median))
		sb.WriteString(fmt.Sprintf("| P10 / P90 | %.4f / %.4f |\n", d.P10, d.P90))
		sb.WriteString(fmt.Sprintf("| Min / Max | %.4f / %.4f |\n", d.Min, d.Max))
		sb.WriteString(fmt.Sprintf("| Stddev | %.4f |\n", d.Stddev))
		sb.WriteString(fmt.Sprintf("| Top %d Share | %.2f%% |\n", metrics.TopN, d.TopShare*100))
		sb.WriteString(fmt.Sprintf("| Gini | %.4f |\n", d.Gini))
	} else {
		sb.WriteString("No wallets.\n")
	}
	sb.WriteString("\n")

	// Tax Events
	sb.WriteString("## Tax Events\n\n")
	if len(r.TaxEvents) > 0 {
		sb.WriteString("| Seq | Seller | Pair | Gross | Tax | Timestamp (ms) |\n")
		sb.WriteString("|-----|--------|------|-------|-----|----------------|\n")
		for _, e := range r.TaxEvents {
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s | %d |\n",
				e.Seq, e.Seller, e.Pair, e.Gross, e.Tax, e.TimestampMs))
		}
	} else {
		sb.WriteString("No taxed transfers.\n")
	}
	sb.WriteString("\n")

	if len(r.TaxPayers) > 0 {
		sb.WriteString("### Tax Paid by Seller\n\n")
		sb.WriteString("| Seller | Events | Gross | Tax |\n")
		sb.WriteString("|--------|--------|-------|-----|\n")
		for _, t := range r.TaxPayers {
			sb.WriteString(fmt.Sprintf("| %s | %d | %s | %s |\n", t.Seller, t.Events, t.Gross, t.Tax))
		}
		sb.WriteString("\n")
	}

	// Verification
	if v := r.Verification; v != nil {
		sb.WriteString("## Replay Verification\n\n")
		status := "MISMATCH"
		if v.Match {
			status = "MATCH"
		}
		sb.WriteString(fmt.Sprintf("**%s** after %d operations (last seq %d).\n\n", status, v.Applied, v.LastSeq))
		if len(v.Divergences) > 0 {
			sb.WriteString("| Field | Live | Replayed |\n")
			sb.WriteString("|-------|------|----------|\n")
			for _, d := range v.Divergences {
				sb.WriteString(fmt.Sprintf("| %s | %s | %s |\n", d.Field, d.Expected, d.Actual))
			}
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func formatMs(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
