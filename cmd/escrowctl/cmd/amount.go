package cmd

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// usdcDecimals is the token precision amounts are entered in.
const usdcDecimals = 6

var maxMicroUnits = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)

// toMicroUnits converts a display amount such as "1.50" into token
// micro-units (1500000). More precision than the token has is rejected
// rather than rounded.
func toMicroUnits(display string) (uint64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(display))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", display)
	}
	if !d.IsPositive() {
		return 0, errors.New("amount must be greater than zero")
	}
	scaled := d.Shift(usdcDecimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has more than %d decimal places", display, usdcDecimals)
	}
	if scaled.GreaterThan(maxMicroUnits) {
		return 0, fmt.Errorf("amount %q is too large", display)
	}
	return scaled.BigInt().Uint64(), nil
}

// fromMicroUnits renders micro-units back as a display amount with at
// least two decimal places.
func fromMicroUnits(units uint64) string {
	d := decimal.NewFromBigInt(new(big.Int).SetUint64(units), -usdcDecimals)
	if d.Equal(d.Truncate(2)) {
		return d.StringFixed(2)
	}
	return d.String()
}

// parseExpiry accepts an RFC 3339 time, a unix timestamp, or a duration
// from now such as "720h".
func parseExpiry(raw string, now time.Time) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("expiry is required")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.Unix(), nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		if d <= 0 {
			return 0, errors.New("expiry must be in the future")
		}
		return now.Add(d).Unix(), nil
	}
	if ts, err := decimal.NewFromString(raw); err == nil && ts.IsInteger() && ts.IsPositive() {
		return ts.IntPart(), nil
	}
	return 0, fmt.Errorf("invalid expiry %q", raw)
}
