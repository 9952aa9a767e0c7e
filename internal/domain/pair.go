package domain

import (
	"fmt"
	"strings"
)

// Pair identifies the instrument underlying an epoch market, e.g. BTC_USDT.
type Pair struct {
	From string
	To   string
}

// ParsePair parses the FROM_TO form used in configs.
func ParsePair(s string) (Pair, error) {
	parts := strings.Split(s, "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, fmt.Errorf("invalid pair %q, expected format BTC_USDT", s)
	}
	return Pair{From: strings.ToUpper(parts[0]), To: strings.ToUpper(parts[1])}, nil
}

// String returns the underscore form used in configs and logs.
func (p Pair) String() string {
	return p.From + "_" + p.To
}

// Symbol returns the concatenated exchange symbol, e.g. BTCUSDT.
func (p Pair) Symbol() string {
	return p.From + p.To
}
