package store

import "time"

// User is an account known to the auth collaborator. TokenHash is the
// bcrypt hash of the user's bearer credential.
type User struct {
	ID        int64  `gorm:"primaryKey"`
	Username  string `gorm:"uniqueIndex"`
	Role      string // "admin" or "user"
	TokenHash string
	IsActive  bool
	CreatedAt time.Time
}

// AuctionEvent is one auction. The core holds only a live-state
// projection of it while the auction is live or paused.
type AuctionEvent struct {
	ID      int64 `gorm:"primaryKey"`
	Name    string
	Status  string // draft, live, paused, completed
	OwnerID int64

	InitialPurse    float64
	MinBidIncrement float64
	MaxTeamSize     int

	// Optional per-auction increment tiers as JSON:
	// [{"min":0,"max":1,"increment":0.05}, ...]
	BidIncrementTiers string

	StartedAt *time.Time
	EndedAt   *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Team belongs to one auction.
type Team struct {
	ID             int64 `gorm:"primaryKey"`
	AuctionID      int64 `gorm:"index"`
	OwnerID        int64
	TeamName       string
	TeamCode       string
	PurseRemaining float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AuctionPlayer is one lot in an auction's player pool.
type AuctionPlayer struct {
	ID           int64 `gorm:"primaryKey"`
	AuctionID    int64 `gorm:"index"`
	Name         string
	BasePrice    float64
	Status       string // available, presented, sold, unsold
	SoldFor      *float64
	SoldToTeamID *int64
	PoolOrder    int
	CreatedAt    time.Time
}

// AuctionBid is one accepted bid, written as part of the sale it
// belongs to. Seq is the room's authoritative ordering.
type AuctionBid struct {
	ID              int64 `gorm:"primaryKey"`
	AuctionID       int64 `gorm:"index"`
	AuctionPlayerID int64 `gorm:"index"`
	TeamID          int64
	BidAmount       float64
	Seq             int64
	IsWinningBid    bool
	PlacedAt        time.Time
}

// TeamPlayer is a roster entry created by a completed sale.
type TeamPlayer struct {
	ID              int64 `gorm:"primaryKey"`
	TeamID          int64 `gorm:"index"`
	AuctionPlayerID int64
	BoughtFor       float64
	CreatedAt       time.Time
}

// AuctionTeamAuth authorizes a user to participate in an auction.
// TeamID is set once the user owns a team there.
type AuctionTeamAuth struct {
	ID        int64 `gorm:"primaryKey"`
	AuctionID int64 `gorm:"index"`
	UserID    int64 `gorm:"index"`
	TeamID    *int64
	CreatedAt time.Time
}
