package purchase

// Pricing computes token prices from a fixed unit price. Prices are
// deliberately independent of the live exchange rate: the rate module only
// affects display conversions, never what a package costs.
type Pricing struct {
	UnitPrice int64
}

// DefaultPackages are the fixed token bundles offered in the buy menu.
var DefaultPackages = []int64{5, 10, 25, 50}

// Price returns the target-currency price for the given token amount.
func (p Pricing) Price(tokens int64) int64 {
	return tokens * p.UnitPrice
}
