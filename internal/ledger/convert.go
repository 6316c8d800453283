// convert.go - Wei to confidential-unit conversion for the wrapped payment asset.
//
// The confidential ledger works in 64-bit units; one unit is one gwei. Wrap
// and unwrap requests arrive denominated in wei, so the boundary does exact
// decimal arithmetic rather than float math.

package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// WeiPerUnit is the conversion rate between wei and confidential units.
const WeiPerUnit = 1_000_000_000

var weiPerUnit = decimal.NewFromInt(WeiPerUnit)

// UnitsFromWei converts a wei-denominated decimal string into confidential
// units, flooring sub-unit dust.
func UnitsFromWei(wei string) (uint64, error) {
	d, err := decimal.NewFromString(wei)
	if err != nil {
		return 0, fmt.Errorf("ledger: parse wei amount %q: %w", wei, err)
	}
	if d.IsNegative() {
		return 0, errors.New("ledger: negative wei amount")
	}
	units := d.Div(weiPerUnit).Floor()
	bi := units.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("ledger: wei amount %s exceeds the 64-bit unit range", wei)
	}
	return bi.Uint64(), nil
}

// WeiFromUnits converts confidential units back into a wei string.
func WeiFromUnits(units uint64) string {
	return decimal.NewFromUint64(units).Mul(weiPerUnit).String()
}
