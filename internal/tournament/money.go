package tournament

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseMoney parses a listing amount such as "$1,700", "1700 USD", "$1.5K" or
// "$250+$50" (entry plus fee, summed) into a decimal amount.
func ParseMoney(text string) (decimal.Decimal, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	if strings.Contains(s, "+") {
		total := decimal.Zero
		for _, part := range strings.Split(s, "+") {
			amount, err := ParseMoney(part)
			if err != nil {
				return decimal.Zero, err
			}
			total = total.Add(amount)
		}
		return total, nil
	}

	lower := strings.ToLower(s)
	if lower == "free" || lower == "freeroll" {
		return decimal.Zero, nil
	}

	replacer := strings.NewReplacer("$", "", ",", "", "usd", "", " ", "")
	lower = replacer.Replace(lower)

	multiplier := decimal.NewFromInt(1)
	switch {
	case strings.HasSuffix(lower, "k"):
		multiplier = decimal.NewFromInt(1_000)
		lower = strings.TrimSuffix(lower, "k")
	case strings.HasSuffix(lower, "m"):
		multiplier = decimal.NewFromInt(1_000_000)
		lower = strings.TrimSuffix(lower, "m")
	}

	amount, err := decimal.NewFromString(lower)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing amount %q: %w", text, err)
	}
	return amount.Mul(multiplier), nil
}
