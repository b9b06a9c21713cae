// Package metrics computes holder distribution and tax payer statistics
// for reports.
package metrics

import (
	"math"
	"sort"
	"strconv"

	"github.com/holiman/uint256"

	"reflection-token-lab/internal/domain"
)

// TopN is how many of the largest wallets TopShare covers.
const TopN = 10

// Distribution describes how real balances are spread over wallets.
// Amounts are in whole tokens.
type Distribution struct {
	Wallets  int
	Mean     float64
	Median   float64
	P10      float64
	P90      float64
	Min      float64
	Max      float64
	Stddev   float64
	TopShare float64 // share of supply held by the TopN largest wallets
	Gini     float64
}

// ComputeDistribution summarises non-zero balances of holders not in
// exclude. Pairs and the tax collector are usually excluded.
func ComputeDistribution(holders []domain.Holder, exclude map[domain.Address]bool, supply *uint256.Int, decimals uint8) Distribution {
	var balances []float64
	for _, h := range holders {
		if exclude[h.Address] || domain.ZeroIfNil(h.Balance).IsZero() {
			continue
		}
		balances = append(balances, toTokens(h.Balance, decimals))
	}

	n := len(balances)
	if n == 0 {
		return Distribution{}
	}
	sort.Float64s(balances)

	mean := computeMean(balances)
	return Distribution{
		Wallets:  n,
		Mean:     mean,
		Median:   computePercentile(balances, 0.50),
		P10:      computePercentile(balances, 0.10),
		P90:      computePercentile(balances, 0.90),
		Min:      balances[0],
		Max:      balances[n-1],
		Stddev:   computeStddev(balances, mean),
		TopShare: computeTopShare(balances, TopN, toTokens(supply, decimals)),
		Gini:     computeGini(balances),
	}
}

func toTokens(v *uint256.Int, decimals uint8) float64 {
	f, err := strconv.ParseFloat(domain.FormatUnits(domain.ZeroIfNil(v), decimals), 64)
	if err != nil {
		return 0
	}
	return f
}

// computeMean calculates the arithmetic mean.
func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computePercentile uses linear interpolation.
// sorted must be pre-sorted ASC.
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// computeTopShare returns the fraction of supply held by the k largest
// values. sorted must be pre-sorted ASC.
func computeTopShare(sorted []float64, k int, supply float64) float64 {
	if supply <= 0 {
		return 0
	}
	top := 0.0
	for i := len(sorted) - 1; i >= 0 && i >= len(sorted)-k; i-- {
		top += sorted[i]
	}
	return top / supply
}

// computeGini returns the Gini coefficient: 0 for perfect equality,
// (n-1)/n when one wallet holds everything. sorted must be pre-sorted ASC.
func computeGini(sorted []float64) float64 {
	n := len(sorted)
	if n < 2 {
		return 0
	}
	var sum, weighted float64
	for i, v := range sorted {
		sum += v
		weighted += float64(i+1) * v
	}
	if sum == 0 {
		return 0
	}
	return 2*weighted/(float64(n)*sum) - float64(n+1)/float64(n)
}
