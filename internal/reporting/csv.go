package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders holder rows as CSV string.
func RenderCSV(holders []HolderRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("address,balance,reflection,reward,pair\n")

	// Rows
	for _, h := range holders {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%t\n",
			h.Address,
			h.Balance,
			h.Reflection,
			h.Reward,
			h.Pair,
		))
	}

	return sb.String()
}
