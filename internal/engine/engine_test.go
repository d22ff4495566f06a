package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// liveState builds a live two-team auction with two available lots and
// a flat 0.5 increment.
func liveState() State {
	return State{
		AuctionID: 1,
		Status:    StatusLive,
		Rules:     Rules{InitialPurse: 100, MinIncrement: 0.5, MaxTeamSize: 25},
		Teams: map[int64]Team{
			10: {ID: 10, Name: "Team A", Code: "TA", Purse: 100},
			20: {ID: 20, Name: "Team B", Code: "TB", Purse: 100},
		},
		Lots: map[int64]Lot{
			100: {ID: 100, Name: "R. Sharma", BasePrice: 1.0, Status: LotAvailable},
			101: {ID: 101, Name: "J. Bumrah", BasePrice: 2.0, Status: LotAvailable},
		},
	}
}

func admin() Actor { return Actor{Role: RoleAdmin} }

func owner(team int64) Actor { return Actor{Role: RoleTeamOwner, TeamID: team} }

func present(t *testing.T, s State, lotID int64) State {
	t.Helper()
	_, next, err := Apply(s, Command{Type: CmdPresentLot, Actor: admin(), LotID: lotID})
	require.NoError(t, err)
	return next
}

func bid(t *testing.T, s State, team int64, amount float64) State {
	t.Helper()
	_, next, err := Apply(s, Command{Type: CmdPlaceBid, Actor: owner(team), TeamID: team, Amount: amount})
	require.NoError(t, err)
	return next
}

func TestPresent_OpensLotAtBasePrice(t *testing.T) {
	s := liveState()
	events, next, err := Apply(s, Command{Type: CmdPresentLot, Actor: admin(), LotID: 100})
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, EvtLotPresented, events[0].Type)
	assert.Equal(t, int64(100), next.CurrentLotID)
	assert.Equal(t, 1.0, next.CurrentBid)
	assert.Zero(t, next.CurrentBidder)
	assert.Equal(t, LotPresented, next.Lots[100].Status)
	assert.Equal(t, 1.5, next.NextMinimumBid())
	// input state untouched
	assert.Equal(t, LotAvailable, s.Lots[100].Status)
}

func TestPresent_Rejections(t *testing.T) {
	s := liveState()

	_, _, err := Apply(s, Command{Type: CmdPresentLot, Actor: owner(10), LotID: 100})
	assert.ErrorIs(t, err, ErrNotAdmin)

	_, _, err = Apply(s, Command{Type: CmdPresentLot, Actor: admin(), LotID: 999})
	assert.ErrorIs(t, err, ErrUnknownLot)

	paused := s
	paused.Status = StatusPaused
	_, _, err = Apply(paused, Command{Type: CmdPresentLot, Actor: admin(), LotID: 100})
	assert.ErrorIs(t, err, ErrAuctionNotLive)

	// Presenting a second lot before resolving the first is a conflict
	// and leaves the first presented.
	opened := present(t, s, 100)
	_, next, err := Apply(opened, Command{Type: CmdPresentLot, Actor: admin(), LotID: 101})
	assert.ErrorIs(t, err, ErrLotAlreadyOpen)
	assert.Equal(t, KindConflict, Classify(err))
	assert.Equal(t, int64(100), next.CurrentLotID)
	assert.Equal(t, LotPresented, next.Lots[100].Status)
}

func TestBid_RaceResolvesBySerializationOrder(t *testing.T) {
	// base 1.0, increment 0.5: A bids 1.5, B's concurrent 1.5 arrives
	// second in serialization order and is rejected, B then bids 2.0.
	s := present(t, liveState(), 100)

	events, s, err := Apply(s, Command{Type: CmdPlaceBid, Actor: owner(10), TeamID: 10, Amount: 1.5})
	require.NoError(t, err)
	assert.Equal(t, int64(1), events[0].Seq)
	assert.Equal(t, 2.0, events[0].NextMinimum)

	_, s, err = Apply(s, Command{Type: CmdPlaceBid, Actor: owner(20), TeamID: 20, Amount: 1.5})
	assert.ErrorIs(t, err, ErrBidTooLow)
	assert.Equal(t, 1.5, s.CurrentBid)

	events, s, err = Apply(s, Command{Type: CmdPlaceBid, Actor: owner(20), TeamID: 20, Amount: 2.0})
	require.NoError(t, err)
	assert.Equal(t, int64(2), events[0].Seq)
	assert.Equal(t, int64(20), s.CurrentBidder)

	// Admin sells: B pays 2.0 and gains a roster spot.
	events, s, err = Apply(s, Command{Type: CmdSellLot, Actor: admin()})
	require.NoError(t, err)
	assert.Equal(t, EvtLotSold, events[0].Type)
	assert.Equal(t, 98.0, s.Teams[20].Purse)
	assert.Equal(t, 1, s.Teams[20].Roster)
	assert.Equal(t, LotSold, s.Lots[100].Status)
	assert.Equal(t, 2.0, s.Lots[100].SoldFor)
	assert.Equal(t, int64(20), s.Lots[100].SoldTo)
	assert.Zero(t, s.CurrentLotID)
}

func TestBid_Guards(t *testing.T) {
	s := present(t, liveState(), 100)

	// below minimum but above base: still a validation rejection
	_, _, err := Apply(s, Command{Type: CmdPlaceBid, Actor: owner(10), TeamID: 10, Amount: 1.2})
	assert.ErrorIs(t, err, ErrBidTooLow)
	assert.Equal(t, KindValidation, Classify(err))

	// spectators cannot bid
	_, _, err = Apply(s, Command{Type: CmdPlaceBid, Actor: Actor{Role: RoleSpectator}, TeamID: 10, Amount: 1.5})
	assert.ErrorIs(t, err, ErrNoTeam)

	// owners only bid for their own team, admins for anyone
	_, _, err = Apply(s, Command{Type: CmdPlaceBid, Actor: owner(10), TeamID: 20, Amount: 1.5})
	assert.ErrorIs(t, err, ErrWrongTeam)
	_, _, err = Apply(s, Command{Type: CmdPlaceBid, Actor: admin(), TeamID: 20, Amount: 1.5})
	assert.NoError(t, err)

	// purse guard
	_, _, err = Apply(s, Command{Type: CmdPlaceBid, Actor: owner(10), TeamID: 10, Amount: 150})
	assert.ErrorIs(t, err, ErrInsufficientPurse)

	// unknown team
	_, _, err = Apply(s, Command{Type: CmdPlaceBid, Actor: admin(), TeamID: 99, Amount: 1.5})
	assert.ErrorIs(t, err, ErrUnknownTeam)

	// the highest bidder cannot outbid itself
	s = bid(t, s, 10, 1.5)
	_, _, err = Apply(s, Command{Type: CmdPlaceBid, Actor: owner(10), TeamID: 10, Amount: 2.0})
	assert.ErrorIs(t, err, ErrAlreadyHighest)

	// no bidding while paused
	paused := s
	paused.Status = StatusPaused
	_, _, err = Apply(paused, Command{Type: CmdPlaceBid, Actor: owner(20), TeamID: 20, Amount: 2.0})
	assert.ErrorIs(t, err, ErrAuctionNotLive)
}

func TestBid_MonotonicUnderAnySequence(t *testing.T) {
	s := present(t, liveState(), 100)
	amounts := []float64{1.5, 1.4, 2.0, 2.0, 2.5, 9, 3.0, 100.5}
	teams := []int64{10, 20, 20, 10, 10, 20, 20, 10}

	last := 0.0
	for i, amt := range amounts {
		_, next, err := Apply(s, Command{Type: CmdPlaceBid, Actor: owner(teams[i]), TeamID: teams[i], Amount: amt})
		if err != nil {
			assert.Equal(t, s.CurrentBid, next.CurrentBid, "rejected bid must not move state")
			continue
		}
		require.Greater(t, next.CurrentBid, last)
		last = next.CurrentBid
		s = next
	}
}

func TestSell_Guards(t *testing.T) {
	s := liveState()

	// nothing presented
	_, _, err := Apply(s, Command{Type: CmdSellLot, Actor: admin()})
	assert.ErrorIs(t, err, ErrNoLotOpen)
	assert.Equal(t, KindConflict, Classify(err))

	// no bids yet
	s = present(t, s, 100)
	_, _, err = Apply(s, Command{Type: CmdSellLot, Actor: admin()})
	assert.ErrorIs(t, err, ErrNoBids)

	// stale lot reference
	s = bid(t, s, 10, 1.5)
	_, _, err = Apply(s, Command{Type: CmdSellLot, Actor: admin(), LotID: 101})
	assert.ErrorIs(t, err, ErrStaleLot)
	assert.Equal(t, KindConflict, Classify(err))

	// roster cap
	full := s
	full.Teams = map[int64]Team{
		10: {ID: 10, Name: "Team A", Purse: 100, Roster: 25},
		20: s.Teams[20],
	}
	_, _, err = Apply(full, Command{Type: CmdSellLot, Actor: admin()})
	assert.ErrorIs(t, err, ErrRosterFull)

	// replaying a sell after resolution is a conflict with no effect
	_, s, err = Apply(s, Command{Type: CmdSellLot, Actor: admin(), LotID: 100})
	require.NoError(t, err)
	_, again, err := Apply(s, Command{Type: CmdSellLot, Actor: admin(), LotID: 100})
	assert.ErrorIs(t, err, ErrNoLotOpen)
	assert.Equal(t, KindConflict, Classify(err))
	assert.Equal(t, s, again)
}

func TestMarkUnsold(t *testing.T) {
	s := present(t, liveState(), 100)

	_, _, err := Apply(s, Command{Type: CmdMarkUnsold, Actor: owner(10)})
	assert.ErrorIs(t, err, ErrNotAdmin)

	events, next, err := Apply(s, Command{Type: CmdMarkUnsold, Actor: admin(), LotID: 100})
	require.NoError(t, err)
	assert.Equal(t, EvtLotUnsold, events[0].Type)
	assert.Equal(t, LotUnsold, next.Lots[100].Status)
	assert.Zero(t, next.CurrentLotID)

	// idempotence: the lot is no longer open
	_, _, err = Apply(next, Command{Type: CmdMarkUnsold, Actor: admin(), LotID: 100})
	assert.ErrorIs(t, err, ErrNoLotOpen)
}

func TestStatusTransitions(t *testing.T) {
	s := liveState()
	s.Status = StatusDraft

	_, s, err := Apply(s, Command{Type: CmdSetStatus, Actor: admin(), Status: StatusLive})
	require.NoError(t, err)

	_, _, err = Apply(s, Command{Type: CmdSetStatus, Actor: admin(), Status: StatusDraft})
	assert.ErrorIs(t, err, ErrBadStatusChange)

	_, s, err = Apply(s, Command{Type: CmdSetStatus, Actor: admin(), Status: StatusPaused})
	require.NoError(t, err)
	_, s, err = Apply(s, Command{Type: CmdSetStatus, Actor: admin(), Status: StatusLive})
	require.NoError(t, err)

	// cannot complete with an open lot
	open := present(t, s, 100)
	_, _, err = Apply(open, Command{Type: CmdSetStatus, Actor: admin(), Status: StatusCompleted})
	assert.ErrorIs(t, err, ErrLotAlreadyOpen)

	_, s, err = Apply(s, Command{Type: CmdSetStatus, Actor: admin(), Status: StatusCompleted})
	require.NoError(t, err)
	_, _, err = Apply(s, Command{Type: CmdSetStatus, Actor: admin(), Status: StatusLive})
	assert.ErrorIs(t, err, ErrAuctionCompleted)
	assert.Equal(t, KindConflict, Classify(err))
}

func TestTieredIncrements(t *testing.T) {
	s := liveState()
	s.Rules.Tiers = DefaultTiers
	s = present(t, s, 100) // base 1.0 falls in the [1,2) tier

	assert.InDelta(t, 1.10, s.NextMinimumBid(), 1e-9)

	s = bid(t, s, 10, 1.9)
	assert.InDelta(t, 2.0, s.NextMinimumBid(), 1e-9)

	s = bid(t, s, 20, 4.9)
	assert.InDelta(t, 5.1, s.NextMinimumBid(), 1e-9)

	s = bid(t, s, 10, 7.0)
	assert.InDelta(t, 7.25, s.NextMinimumBid(), 1e-9)
}

func TestSnap_OnePresentedLotAndSortedTeams(t *testing.T) {
	s := present(t, liveState(), 100)
	s = bid(t, s, 20, 1.5)

	snap := Snap(s)
	require.NotNil(t, snap.CurrentLot)
	assert.Equal(t, int64(100), snap.CurrentLot.ID)
	assert.Equal(t, 1.5, snap.CurrentLot.CurrentBid)
	assert.Equal(t, "Team B", snap.CurrentLot.BidderName)
	assert.Equal(t, 2.0, snap.CurrentLot.NextMinimum)
	assert.Equal(t, 1, snap.Available)
	assert.Equal(t, []int64{10, 20}, []int64{snap.Teams[0].ID, snap.Teams[1].ID})

	presented := 0
	for _, lot := range s.Lots {
		if lot.Status == LotPresented {
			presented++
		}
	}
	assert.Equal(t, 1, presented)
}
