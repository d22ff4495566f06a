// Package client implements the auction client side of the wire
// protocol, including the reconnection contract: exponential backoff
// with a cap and a retry bound, terminal close codes that suppress
// reconnection, and snapshot-only resynchronization after a rejoin.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/cricketbid/auction-backend/pkg/types"
)

// ErrRetriesExhausted is surfaced after the reconnect budget runs out;
// the caller decides what to tell the user, the client stops retrying.
var ErrRetriesExhausted = errors.New("reconnect retries exhausted")

// ErrNotConnected is returned by send methods between connections.
var ErrNotConnected = errors.New("not connected")

const (
	defaultBaseDelay   = 500 * time.Millisecond
	defaultMaxDelay    = 16 * time.Second
	defaultMaxAttempts = 8
)

// Config configures a Client. URL is the /ws endpoint including the
// auction_id query parameter.
type Config struct {
	URL         string
	Token       string
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int

	Clock clockwork.Clock
	Log   *zap.Logger

	// OnConnected fires after each successful (re)connection.
	OnConnected func(types.ConnectedMessage)
	// OnState fires on every full snapshot. The client has already
	// replaced its cached state wholesale; there is nothing to merge.
	OnState func(types.StateUpdateMessage)
	// OnBid and OnSold fire on discrete events.
	OnBid  func(types.BidNewMessage)
	OnSold func(types.PlayerSoldMessage)
	// OnError fires on rejection notices for this session's messages.
	OnError func(types.ErrorMessage)
}

// Client maintains one logical session across transport drops.
type Client struct {
	cfg   Config
	clock clockwork.Clock
	log   *zap.Logger

	mu    sync.Mutex
	conn  *websocket.Conn
	state *types.AuctionState

	closed atomic.Bool
}

func New(cfg Config) *Client {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &Client{cfg: cfg, clock: cfg.Clock, log: cfg.Log}
}

// State returns the latest snapshot, or nil before the first one.
func (c *Client) State() *types.AuctionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run connects and keeps the session alive until a deliberate Close, a
// terminal server close, context cancellation, or the retry budget is
// spent. It blocks for the lifetime of the session.
func (c *Client) Run(ctx context.Context) error {
	attempt := 0
	for {
		err := c.runOnce(ctx)
		if c.closed.Load() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if code := websocket.CloseStatus(err); code != -1 && types.Terminal(code) {
			return fmt.Errorf("connection closed by server (%d): %w", code, err)
		}

		attempt++
		if attempt > c.cfg.MaxAttempts {
			return ErrRetriesExhausted
		}
		delay := backoffDelay(c.cfg.BaseDelay, c.cfg.MaxDelay, attempt)
		c.log.Info("reconnecting",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		select {
		case <-c.clock.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.cfg.URL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Bearer " + c.cfg.Token}},
	})
	if err != nil {
		return err
	}

	// Fresh transport: whatever was cached belongs to the previous
	// connection and is discarded, never reconciled. The server's first
	// snapshot rebuilds it.
	c.mu.Lock()
	c.conn = conn
	c.state = nil
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close(websocket.StatusInternalError, "read loop exited")
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var env types.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Warn("bad server message", zap.Error(err))
		return
	}
	switch env.Type {
	case types.MsgConnected:
		var m types.ConnectedMessage
		if json.Unmarshal(data, &m) == nil && c.cfg.OnConnected != nil {
			c.cfg.OnConnected(m)
		}
	case types.MsgStateUpdate:
		var m types.StateUpdateMessage
		if json.Unmarshal(data, &m) != nil {
			return
		}
		c.mu.Lock()
		snap := m.Data
		c.state = &snap
		c.mu.Unlock()
		if c.cfg.OnState != nil {
			c.cfg.OnState(m)
		}
	case types.MsgBidNew:
		var m types.BidNewMessage
		if json.Unmarshal(data, &m) == nil && c.cfg.OnBid != nil {
			c.cfg.OnBid(m)
		}
	case types.MsgPlayerSold:
		var m types.PlayerSoldMessage
		if json.Unmarshal(data, &m) == nil && c.cfg.OnSold != nil {
			c.cfg.OnSold(m)
		}
	case types.MsgError:
		var m types.ErrorMessage
		if json.Unmarshal(data, &m) == nil && c.cfg.OnError != nil {
			c.cfg.OnError(m)
		}
	}
}

// Close is the deliberate, user-initiated disconnect. Run returns nil
// and never reconnects.
func (c *Client) Close() {
	c.closed.Store(true)
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Close(types.CloseDeliberate, "logout")
	}
}

// PlaceBid bids for a team on the currently presented player. A zero
// teamID lets the server default to the session's own team.
func (c *Client) PlaceBid(ctx context.Context, teamID int64, amount float64) error {
	return c.send(ctx, types.ClientMessage{Type: types.MsgBidPlace, TeamID: teamID, Amount: amount})
}

// Present puts a player up for bidding (admin only).
func (c *Client) Present(ctx context.Context, auctionPlayerID int64) error {
	return c.send(ctx, types.ClientMessage{Type: types.MsgPlayerPresent, AuctionPlayerID: auctionPlayerID})
}

// Sell confirms the sale of the presented player (admin only).
func (c *Client) Sell(ctx context.Context, auctionPlayerID int64) error {
	return c.send(ctx, types.ClientMessage{Type: types.MsgPlayerSell, AuctionPlayerID: auctionPlayerID})
}

// MarkUnsold closes the presented player without a sale (admin only).
func (c *Client) MarkUnsold(ctx context.Context, auctionPlayerID int64) error {
	return c.send(ctx, types.ClientMessage{Type: types.MsgPlayerUnsold, AuctionPlayerID: auctionPlayerID})
}

// RequestState asks for a fresh snapshot for this session only.
func (c *Client) RequestState(ctx context.Context) error {
	return c.send(ctx, types.ClientMessage{Type: types.MsgStateRequest})
}

func (c *Client) send(ctx context.Context, msg types.ClientMessage) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, payload)
}

// backoffDelay doubles the base delay per attempt, capped at max.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
