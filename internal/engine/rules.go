package engine

// DefaultTiers are the IPL-style bid increment steps used when an
// auction defines none of its own.
var DefaultTiers = []IncrementTier{
	{Min: 0, Max: 1, Increment: 0.05},
	{Min: 1, Max: 2, Increment: 0.10},
	{Min: 2, Max: 5, Increment: 0.20},
	{Min: 5, Max: maxBid, Increment: 0.25},
}

// maxBid caps the last tier; no cricket auction gets anywhere near it.
const maxBid = 1 << 40
