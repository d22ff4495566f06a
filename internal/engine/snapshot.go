package engine

import (
	"slices"
)

// TeamView is one team's slice of a snapshot.
type TeamView struct {
	ID     int64
	Name   string
	Code   string
	Purse  float64
	Roster int
}

// LotView describes the lot currently under bidding.
type LotView struct {
	ID            int64
	Name          string
	BasePrice     float64
	CurrentBid    float64
	CurrentBidder int64
	BidderName    string
	NextMinimum   float64
}

// Snapshot is a complete, self-consistent description of room state,
// enough to bootstrap a late joiner with no event history.
type Snapshot struct {
	AuctionID  int64
	Status     Status
	CurrentLot *LotView
	Teams      []TeamView
	Available  int
	Sold       int
	Unsold     int
}

// Snap derives a snapshot from s. Teams are ordered by ID so repeated
// snapshots of the same state are identical.
func Snap(s State) Snapshot {
	snap := Snapshot{
		AuctionID: s.AuctionID,
		Status:    s.Status,
		Available: s.CountLots(LotAvailable),
		Sold:      s.CountLots(LotSold),
		Unsold:    s.CountLots(LotUnsold),
	}

	for _, t := range s.Teams {
		snap.Teams = append(snap.Teams, TeamView{
			ID:     t.ID,
			Name:   t.Name,
			Code:   t.Code,
			Purse:  t.Purse,
			Roster: t.Roster,
		})
	}
	slices.SortFunc(snap.Teams, func(a, b TeamView) int {
		return int(a.ID - b.ID)
	})

	if s.CurrentLotID != 0 {
		lot := s.Lots[s.CurrentLotID]
		lv := &LotView{
			ID:          lot.ID,
			Name:        lot.Name,
			BasePrice:   lot.BasePrice,
			CurrentBid:  s.CurrentBid,
			NextMinimum: s.NextMinimumBid(),
		}
		if s.CurrentBidder != 0 {
			lv.CurrentBidder = s.CurrentBidder
			lv.BidderName = s.Teams[s.CurrentBidder].Name
		}
		snap.CurrentLot = lv
	}
	return snap
}
