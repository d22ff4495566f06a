// Package types defines the JSON wire protocol shared by the server
// and clients. One persistent websocket per session carries these
// messages in both directions.
package types

// Inbound message types.
const (
	MsgBidPlace        = "bid:place"
	MsgPlayerPresent   = "player:present"
	MsgPlayerSell      = "player:sell"
	MsgPlayerUnsold    = "player:unsold"
	MsgAuctionStart    = "auction:start"
	MsgAuctionPause    = "auction:pause"
	MsgAuctionResume   = "auction:resume"
	MsgAuctionComplete = "auction:complete"
	MsgStateRequest    = "state:request"
)

// Outbound message types.
const (
	MsgConnected   = "connected"
	MsgStateUpdate = "state:update"
	MsgBidNew      = "bid:new"
	MsgPlayerSold  = "player:sold"
	MsgError       = "error"
)

// Error codes carried on ErrorMessage.
const (
	ErrCodeValidation = "validation"
	ErrCodeConflict   = "conflict"
	ErrCodeForbidden  = "forbidden"
)

// ClientMessage is the single inbound envelope; which fields are
// meaningful depends on Type.
type ClientMessage struct {
	Type            string  `json:"type"`
	TeamID          int64   `json:"team_id,omitempty"`
	Amount          float64 `json:"amount,omitempty"`
	AuctionPlayerID int64   `json:"auction_player_id,omitempty"`
}

// ConnectedMessage is sent once, immediately after authentication and
// before the first snapshot.
type ConnectedMessage struct {
	Type      string `json:"type"` // "connected"
	AuctionID int64  `json:"auction_id"`
	UserID    int64  `json:"user_id"`
	Role      string `json:"role"`
	TeamID    int64  `json:"team_id,omitempty"`
}

// TeamState is one team's slice of a snapshot.
type TeamState struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Code         string  `json:"code"`
	Purse        float64 `json:"purse"`
	PlayersCount int     `json:"players_count"`
}

// PlayerState describes the player currently under the hammer.
type PlayerState struct {
	ID                int64   `json:"id"`
	Name              string  `json:"name"`
	BasePrice         float64 `json:"base_price"`
	CurrentBid        float64 `json:"current_bid"`
	CurrentBidderID   int64   `json:"current_bidder_id,omitempty"`
	CurrentBidderName string  `json:"current_bidder_name,omitempty"`
	NextMinimum       float64 `json:"next_minimum"`
}

// AuctionState is the full snapshot payload. It is self-consistent: a
// client can discard everything it has and render from this alone.
type AuctionState struct {
	AuctionID        int64        `json:"auction_id"`
	Status           string       `json:"status"`
	CurrentPlayer    *PlayerState `json:"current_player"`
	Teams            []TeamState  `json:"teams"`
	AvailablePlayers int          `json:"available_players"`
	SoldPlayers      int          `json:"sold_players"`
	UnsoldPlayers    int          `json:"unsold_players"`
}

// StateUpdateMessage wraps a snapshot broadcast.
type StateUpdateMessage struct {
	Type    string       `json:"type"` // "state:update"
	Version int          `json:"version"`
	Data    AuctionState `json:"data"`
}

// BidNewMessage announces an accepted bid.
type BidNewMessage struct {
	Type        string  `json:"type"` // "bid:new"
	Seq         int64   `json:"seq"`
	PlayerID    int64   `json:"player_id"`
	PlayerName  string  `json:"player_name"`
	TeamID      int64   `json:"team_id"`
	TeamName    string  `json:"team_name"`
	Amount      float64 `json:"amount"`
	NextMinimum float64 `json:"next_minimum"`
}

// PlayerSoldMessage announces a completed sale.
type PlayerSoldMessage struct {
	Type       string  `json:"type"` // "player:sold"
	PlayerID   int64   `json:"player_id"`
	PlayerName string  `json:"player_name"`
	TeamID     int64   `json:"team_id"`
	TeamName   string  `json:"team_name"`
	SoldFor    float64 `json:"sold_for"`
}

// ErrorMessage rejects the immediately preceding inbound message. It
// is transient and never broadcast. Code "conflict" tells the client
// the lot or auction moved on and a fresh state:update is coming.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Envelope is the minimal decode target for routing outbound messages
// on the client side.
type Envelope struct {
	Type string `json:"type"`
}
