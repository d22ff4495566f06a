package engine

import "errors"

var (
	ErrUnsupportedCommand = errors.New("unsupported command")
	ErrNotAdmin           = errors.New("admin access required")
	ErrNoTeam             = errors.New("must own a team to bid")
	ErrWrongTeam          = errors.New("can only bid for your own team")
	ErrAuctionNotLive     = errors.New("auction is not live")
	ErrAuctionCompleted   = errors.New("auction already completed")
	ErrBadStatusChange    = errors.New("invalid auction status transition")
	ErrNoLotOpen          = errors.New("no player is currently being presented")
	ErrLotAlreadyOpen     = errors.New("a player is already being presented")
	ErrLotNotAvailable    = errors.New("player is not available")
	ErrUnknownLot         = errors.New("player not found in auction pool")
	ErrUnknownTeam        = errors.New("team not found in this auction")
	ErrStaleLot           = errors.New("player reference is stale")
	ErrBidTooLow          = errors.New("bid is below the minimum")
	ErrInsufficientPurse  = errors.New("insufficient purse remaining")
	ErrAlreadyHighest     = errors.New("already the highest bidder")
	ErrNoBids             = errors.New("no bids placed, cannot sell")
	ErrRosterFull         = errors.New("team roster is full")
)

// RejectionKind buckets rejections for the wire protocol: validation
// errors mean the message itself was bad, conflict errors mean the lot
// or auction moved on and the client should expect a fresh snapshot.
type RejectionKind string

const (
	KindValidation RejectionKind = "validation"
	KindConflict   RejectionKind = "conflict"
)

// Classify maps a rejection returned by Apply to its kind. Unknown
// errors classify as validation; they never changed state.
func Classify(err error) RejectionKind {
	switch {
	case errors.Is(err, ErrNoLotOpen),
		errors.Is(err, ErrLotAlreadyOpen),
		errors.Is(err, ErrLotNotAvailable),
		errors.Is(err, ErrStaleLot),
		errors.Is(err, ErrAuctionCompleted):
		return KindConflict
	default:
		return KindValidation
	}
}
