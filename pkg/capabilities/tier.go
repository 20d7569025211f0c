package capabilities

// Tier is the risk tier of a verb. Tiers are ordered: green < yellow < red.
type Tier string

const (
	// TierGreen executes without human review.
	TierGreen Tier = "green"
	// TierYellow requires the user to confirm after reviewing the lens.
	TierYellow Tier = "yellow"
	// TierRed requires explicit authorization after reviewing the lens.
	TierRed Tier = "red"
)

var tierRanks = map[Tier]int{
	TierGreen:  1,
	TierYellow: 2,
	TierRed:    3,
}

// ParseTier returns the tier for s. Only the exact lowercase tier names are
// accepted; anything else reports false.
func ParseTier(s string) (Tier, bool) {
	t := Tier(s)
	if _, ok := tierRanks[t]; !ok {
		return "", false
	}
	return t, true
}

// Valid reports whether t is one of the three known tiers.
func (t Tier) Valid() bool {
	_, ok := tierRanks[t]
	return ok
}

// Rank returns the ordinal of t (1 for green), or 0 for an unknown tier.
func (t Tier) Rank() int {
	return tierRanks[t]
}

// RequiresConfirmation reports whether a human must review the action before it runs.
func (t Tier) RequiresConfirmation() bool {
	return t == TierYellow || t == TierRed
}

// RequiresAuthority reports whether explicit authorization is required.
func (t Tier) RequiresAuthority() bool {
	return t == TierRed
}

func (t Tier) String() string { return string(t) }
