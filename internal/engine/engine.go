package engine

import "maps"

// Status is the room-level auction lifecycle status.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusLive      Status = "live"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// LotStatus is the per-player lifecycle within an auction pool.
type LotStatus string

const (
	LotAvailable LotStatus = "available"
	LotPresented LotStatus = "presented"
	LotSold      LotStatus = "sold"
	LotUnsold    LotStatus = "unsold"
)

// Role is the closed set of session roles. Inbound commands are
// authorized by matching on it.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleTeamOwner Role = "team_owner"
	RoleSpectator Role = "spectator"
)

// Actor identifies who issued a command: the session's role and, for
// team owners, their team binding.
type Actor struct {
	Role   Role
	TeamID int64
}

// IncrementTier defines the minimum bid increment for current bids in
// [Min, Max). IPL-style auctions step the increment up with the price.
type IncrementTier struct {
	Min       float64
	Max       float64
	Increment float64
}

// Rules are the per-auction purse and bidding rules, fixed at load.
type Rules struct {
	InitialPurse float64
	MinIncrement float64
	MaxTeamSize  int
	Tiers        []IncrementTier
}

// Team is the live projection of one team: purse left and roster size.
type Team struct {
	ID     int64
	Name   string
	Code   string
	Purse  float64
	Roster int
}

// Lot is one player in the auction pool.
type Lot struct {
	ID        int64
	Name      string
	BasePrice float64
	Status    LotStatus
	SoldFor   float64
	SoldTo    int64
}

// State is the authoritative in-memory state of one auction room.
// Apply never mutates its input, so a State captured by a snapshot
// stays consistent while the room moves on.
type State struct {
	AuctionID int64
	Status    Status
	Rules     Rules
	Teams     map[int64]Team
	Lots      map[int64]Lot

	// Current lot under bidding. CurrentLotID == 0 means idle.
	// CurrentBidder == 0 means no bid has been accepted yet, in which
	// case CurrentBid holds the lot's base price.
	CurrentLotID  int64
	CurrentBid    float64
	CurrentBidder int64

	// BidSeq is the authoritative ordering of accepted bids.
	BidSeq int64
}

type CommandType string

const (
	CmdPlaceBid   CommandType = "PlaceBid"
	CmdPresentLot CommandType = "PresentLot"
	CmdSellLot    CommandType = "SellLot"
	CmdMarkUnsold CommandType = "MarkUnsold"
	CmdSetStatus  CommandType = "SetStatus"
)

type Command struct {
	Type   CommandType
	Actor  Actor
	LotID  int64
	TeamID int64
	Amount float64
	Status Status
}

type EventType string

const (
	EvtBidPlaced     EventType = "BidPlaced"
	EvtLotPresented  EventType = "LotPresented"
	EvtLotSold       EventType = "LotSold"
	EvtLotUnsold     EventType = "LotUnsold"
	EvtStatusChanged EventType = "StatusChanged"
)

type Event struct {
	Type        EventType
	Seq         int64
	LotID       int64
	LotName     string
	TeamID      int64
	TeamName    string
	Amount      float64
	NextMinimum float64
	Status      Status
}

// Apply validates cmd against s and returns the events it produced and
// the successor state. On rejection the input state is returned
// unchanged alongside a sentinel error (see errors.go for the
// validation/conflict classification).
func Apply(s State, cmd Command) ([]Event, State, error) {
	switch cmd.Type {
	case CmdPlaceBid:
		return applyBid(s, cmd)
	case CmdPresentLot:
		return applyPresent(s, cmd)
	case CmdSellLot:
		return applySell(s, cmd)
	case CmdMarkUnsold:
		return applyUnsold(s, cmd)
	case CmdSetStatus:
		return applyStatus(s, cmd)
	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func applyBid(s State, cmd Command) ([]Event, State, error) {
	switch cmd.Actor.Role {
	case RoleAdmin:
		// Admin may bid on behalf of any team.
	case RoleTeamOwner:
		if cmd.Actor.TeamID == 0 {
			return nil, s, ErrNoTeam
		}
		if cmd.TeamID != cmd.Actor.TeamID {
			return nil, s, ErrWrongTeam
		}
	default:
		return nil, s, ErrNoTeam
	}

	if s.Status != StatusLive {
		return nil, s, ErrAuctionNotLive
	}
	if s.CurrentLotID == 0 {
		return nil, s, ErrNoLotOpen
	}

	team, ok := s.Teams[cmd.TeamID]
	if !ok {
		return nil, s, ErrUnknownTeam
	}

	lot := s.Lots[s.CurrentLotID]
	if cmd.Amount < s.NextMinimumBid() {
		return nil, s, ErrBidTooLow
	}
	if team.Purse < cmd.Amount {
		return nil, s, ErrInsufficientPurse
	}
	if s.CurrentBidder == cmd.TeamID {
		return nil, s, ErrAlreadyHighest
	}

	next := s
	next.CurrentBid = cmd.Amount
	next.CurrentBidder = cmd.TeamID
	next.BidSeq++

	ev := Event{
		Type:        EvtBidPlaced,
		Seq:         next.BidSeq,
		LotID:       lot.ID,
		LotName:     lot.Name,
		TeamID:      team.ID,
		TeamName:    team.Name,
		Amount:      cmd.Amount,
		NextMinimum: next.NextMinimumBid(),
	}
	return []Event{ev}, next, nil
}

func applyPresent(s State, cmd Command) ([]Event, State, error) {
	if cmd.Actor.Role != RoleAdmin {
		return nil, s, ErrNotAdmin
	}
	if s.Status != StatusLive {
		return nil, s, ErrAuctionNotLive
	}
	if s.CurrentLotID != 0 {
		return nil, s, ErrLotAlreadyOpen
	}

	lot, ok := s.Lots[cmd.LotID]
	if !ok {
		return nil, s, ErrUnknownLot
	}
	if lot.Status != LotAvailable {
		return nil, s, ErrLotNotAvailable
	}

	next := s
	next.Lots = maps.Clone(s.Lots)
	lot.Status = LotPresented
	next.Lots[lot.ID] = lot
	next.CurrentLotID = lot.ID
	next.CurrentBid = lot.BasePrice
	next.CurrentBidder = 0

	ev := Event{
		Type:        EvtLotPresented,
		LotID:       lot.ID,
		LotName:     lot.Name,
		Amount:      lot.BasePrice,
		NextMinimum: next.NextMinimumBid(),
	}
	return []Event{ev}, next, nil
}

func applySell(s State, cmd Command) ([]Event, State, error) {
	if cmd.Actor.Role != RoleAdmin {
		return nil, s, ErrNotAdmin
	}
	if s.CurrentLotID == 0 {
		return nil, s, ErrNoLotOpen
	}
	if cmd.LotID != 0 && cmd.LotID != s.CurrentLotID {
		return nil, s, ErrStaleLot
	}
	if s.CurrentBidder == 0 {
		return nil, s, ErrNoBids
	}

	team := s.Teams[s.CurrentBidder]
	if s.Rules.MaxTeamSize > 0 && team.Roster >= s.Rules.MaxTeamSize {
		return nil, s, ErrRosterFull
	}

	lot := s.Lots[s.CurrentLotID]

	next := s
	next.Lots = maps.Clone(s.Lots)
	next.Teams = maps.Clone(s.Teams)

	lot.Status = LotSold
	lot.SoldFor = s.CurrentBid
	lot.SoldTo = team.ID
	next.Lots[lot.ID] = lot

	team.Purse -= s.CurrentBid
	team.Roster++
	next.Teams[team.ID] = team

	next.CurrentLotID = 0
	next.CurrentBid = 0
	next.CurrentBidder = 0

	ev := Event{
		Type:     EvtLotSold,
		LotID:    lot.ID,
		LotName:  lot.Name,
		TeamID:   team.ID,
		TeamName: team.Name,
		Amount:   lot.SoldFor,
	}
	return []Event{ev}, next, nil
}

func applyUnsold(s State, cmd Command) ([]Event, State, error) {
	if cmd.Actor.Role != RoleAdmin {
		return nil, s, ErrNotAdmin
	}
	if s.CurrentLotID == 0 {
		return nil, s, ErrNoLotOpen
	}
	if cmd.LotID != 0 && cmd.LotID != s.CurrentLotID {
		return nil, s, ErrStaleLot
	}

	lot := s.Lots[s.CurrentLotID]

	next := s
	next.Lots = maps.Clone(s.Lots)
	lot.Status = LotUnsold
	next.Lots[lot.ID] = lot
	next.CurrentLotID = 0
	next.CurrentBid = 0
	next.CurrentBidder = 0

	ev := Event{Type: EvtLotUnsold, LotID: lot.ID, LotName: lot.Name}
	return []Event{ev}, next, nil
}

func applyStatus(s State, cmd Command) ([]Event, State, error) {
	if cmd.Actor.Role != RoleAdmin {
		return nil, s, ErrNotAdmin
	}
	if s.Status == StatusCompleted {
		return nil, s, ErrAuctionCompleted
	}
	if !validStatusChange(s.Status, cmd.Status) {
		return nil, s, ErrBadStatusChange
	}
	// The open lot must be resolved before the auction can complete.
	if s.CurrentLotID != 0 && cmd.Status == StatusCompleted {
		return nil, s, ErrLotAlreadyOpen
	}

	next := s
	next.Status = cmd.Status

	ev := Event{Type: EvtStatusChanged, Status: cmd.Status}
	return []Event{ev}, next, nil
}

func validStatusChange(from, to Status) bool {
	switch from {
	case StatusDraft:
		return to == StatusLive
	case StatusLive:
		return to == StatusPaused || to == StatusCompleted
	case StatusPaused:
		return to == StatusLive || to == StatusCompleted
	default:
		return false
	}
}

// NextMinimumBid is the lowest amount the next bid may carry: the
// current bid plus the increment of the tier the current bid falls in.
func (s State) NextMinimumBid() float64 {
	if s.CurrentLotID == 0 {
		return 0
	}
	return s.CurrentBid + s.Rules.incrementFor(s.CurrentBid)
}

func (r Rules) incrementFor(bid float64) float64 {
	for _, t := range r.Tiers {
		if t.Min <= bid && bid < t.Max {
			return t.Increment
		}
	}
	if n := len(r.Tiers); n > 0 {
		return r.Tiers[n-1].Increment
	}
	return r.MinIncrement
}

// CountLots returns how many lots are in the given status.
func (s State) CountLots(status LotStatus) int {
	n := 0
	for _, lot := range s.Lots {
		if lot.Status == status {
			n++
		}
	}
	return n
}
