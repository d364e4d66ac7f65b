package rewards

import "strings"

// Tiers group catalog entries into cost brackets.
const (
	TierBronze = "bronze"
	TierSilver = "silver"
	TierGold   = "gold"
)

// Entry is a static redemption option. CashValue is informational, in
// target-currency units; TokenPayout is credited when non-zero.
type Entry struct {
	Label       string
	PointCost   int64
	Tier        string
	CashValue   int64
	TokenPayout int64
}

// Catalog is the static reward table, immutable at runtime.
type Catalog struct {
	entries []Entry
}

// DefaultCatalog returns the built-in reward table.
func DefaultCatalog() *Catalog {
	return NewCatalog([]Entry{
		{Label: "Airtime 500", PointCost: 140, Tier: TierBronze, CashValue: 500},
		{Label: "Airtime 1000", PointCost: 260, Tier: TierSilver, CashValue: 1000},
		{Label: "Airtime 2500", PointCost: 600, Tier: TierGold, CashValue: 2500},
		{Label: "5 Tokens", PointCost: 100, Tier: TierBronze, TokenPayout: 5},
		{Label: "12 Tokens", PointCost: 220, Tier: TierSilver, TokenPayout: 12},
		{Label: "30 Tokens", PointCost: 500, Tier: TierGold, TokenPayout: 30},
	})
}

// NewCatalog builds a catalog from the given entries.
func NewCatalog(entries []Entry) *Catalog {
	res := make([]Entry, len(entries))
	copy(res, entries)
	return &Catalog{entries: res}
}

// Entries returns all catalog entries in listing order.
func (c *Catalog) Entries() []Entry {
	res := make([]Entry, len(c.entries))
	copy(res, c.entries)
	return res
}

// Find looks up an entry by label, case-insensitively.
func (c *Catalog) Find(label string) (Entry, bool) {
	for _, e := range c.entries {
		if strings.EqualFold(e.Label, label) {
			return e, true
		}
	}
	return Entry{}, false
}
