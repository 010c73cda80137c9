package network

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// OneBTC is one bitcoin in satoshis.
const OneBTC = int64(100_000_000)

var oneBTCDec = decimal.NewFromInt(OneBTC)

// SatoshiToBTC converts satoshis to a BTC decimal as used on the RPC wire.
func SatoshiToBTC(sat int64) decimal.Decimal {
	return decimal.NewFromInt(sat).Div(oneBTCDec)
}

// BTCToSatoshi converts a BTC decimal to satoshis. Fractions of a satoshi
// and negative amounts are rejected.
func BTCToSatoshi(btc decimal.Decimal) (int64, error) {
	if btc.IsNegative() {
		return 0, fmt.Errorf("%w: %s is negative", ErrInvalidAmount, btc)
	}
	sat := btc.Mul(oneBTCDec)
	if !sat.Equal(sat.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s BTC is not a whole number of satoshis", ErrInvalidAmount, btc)
	}
	return sat.IntPart(), nil
}
