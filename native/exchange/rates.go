package exchange

// Tier is one row of the conversion table. Amounts are base units.
type Tier struct {
	StandardCost uint64
	HolderCost   uint64
	Granted      uint64
}

// Tiers lists the conversion options in order. Any option past the end
// resolves to the last tier.
var Tiers = [...]Tier{
	{StandardCost: 500_000_000, HolderCost: 400_000_000, Granted: 70_000_000_000},
	{StandardCost: 700_000_000, HolderCost: 600_000_000, Granted: 140_000_000_000},
	{StandardCost: 1_200_000_000, HolderCost: 1_000_000_000, Granted: 320_000_000_000},
	{StandardCost: 1_800_000_000, HolderCost: 1_600_000_000, Granted: 500_000_000_000},
}

// Quote returns the native cost and token grant for (option, isHolder).
func Quote(option uint8, isHolder bool) (cost uint64, granted uint64) {
	idx := int(option)
	if idx >= len(Tiers) {
		idx = len(Tiers) - 1
	}
	tier := Tiers[idx]
	if isHolder {
		return tier.HolderCost, tier.Granted
	}
	return tier.StandardCost, tier.Granted
}
