package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cricketbid/auction-backend/internal/auth"
	"github.com/cricketbid/auction-backend/internal/engine"
	"github.com/cricketbid/auction-backend/internal/hub"
	"github.com/cricketbid/auction-backend/internal/room"
	"github.com/cricketbid/auction-backend/internal/store"
	"github.com/cricketbid/auction-backend/pkg/types"
)

const writeTimeout = 3 * time.Second

// Loader provides the initial state projection for a room that does
// not exist yet.
type Loader interface {
	LoadState(ctx context.Context, auctionID int64) (engine.State, error)
}

// Handler upgrades to a websocket, authenticates the bearer credential,
// attaches the session to its auction's room, and then shuttles
// messages: inbound JSON commands into the room's serialization
// discipline, committed updates back out in commit order.
func Handler(h *hub.Hub, loader Loader, verifier auth.Verifier, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auctionID, err := strconv.ParseInt(r.URL.Query().Get("auction_id"), 10, 64)
		if err != nil || auctionID <= 0 {
			http.Error(w, "missing or invalid auction_id", http.StatusBadRequest)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusInternalError, "unexpected shutdown")

		identity, err := verifier.Verify(r.Context(), bearerToken(r), auctionID)
		if err != nil {
			conn.Close(closeCodeFor(err), err.Error())
			return
		}

		sess := &session{
			id:       uuid.NewString(),
			identity: identity,
			conn:     conn,
			log: log.With(
				zap.Int64("auction_id", auctionID),
				zap.Int64("user_id", identity.UserID),
				zap.String("role", string(identity.Role)),
			),
		}

		rm, err := attach(r.Context(), h, loader, auctionID, sess)
		if err != nil {
			if errors.Is(err, store.ErrAuctionNotFound) {
				conn.Close(types.CloseNotFound, "auction not found")
			} else {
				sess.log.Error("join failed", zap.Error(err))
				conn.Close(types.CloseTryAgain, "room unavailable, retry")
			}
			return
		}
		defer rm.Leave(sess.id)

		sess.log.Info("session joined", zap.String("session_id", sess.id))

		writeCtx, cancelWrites := context.WithCancel(r.Context())
		defer cancelWrites()
		go func() {
			sess.pump(writeCtx)
			// Outbox closed: the room shut down or dropped this session
			// for falling behind. Close the transport so the client
			// reconnects and resyncs from a fresh snapshot.
			conn.Close(types.CloseTryAgain, "resync required")
		}()

		sess.readLoop(r.Context(), rm)
	}
}

// attach resolves the auction's room, creating it from a fresh store
// projection if needed, and joins the session. A room that shut down
// between lookup and join is re-created once.
func attach(ctx context.Context, h *hub.Hub, loader Loader, auctionID int64, sess *session) (*room.Room, error) {
	// The connected message precedes the first snapshot.
	if err := sess.write(ctx, types.ConnectedMessage{
		Type:      types.MsgConnected,
		AuctionID: auctionID,
		UserID:    sess.identity.UserID,
		Role:      string(sess.identity.Role),
		TeamID:    sess.identity.TeamID,
	}); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		rm := h.Get(auctionID)
		if rm == nil {
			state, err := loader.LoadState(ctx, auctionID)
			if err != nil {
				return nil, err
			}
			rm = h.Ensure(auctionID, state)
		}

		sess.outbox = make(chan room.Update, 16)
		if err := rm.Join(sess.id, sess.outbox); err == nil {
			return rm, nil
		} else if !errors.Is(err, room.ErrClosed) {
			return nil, err
		}
		// Room closed under us; loop loads a fresh projection.
	}
	return nil, room.ErrClosed
}

// session is one authenticated live connection: its identity, its
// websocket, and the outbox the room broadcasts into.
type session struct {
	id       string
	identity auth.Identity
	conn     *websocket.Conn
	outbox   chan room.Update
	log      *zap.Logger
}

func (s *session) write(ctx context.Context, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return s.conn.Write(wctx, websocket.MessageText, payload)
}

// pump drains the session outbox in order: discrete events first, then
// the snapshot that committed with them. The outbox is FIFO and the
// room broadcasts in commit order, so this session never observes
// mutations out of order.
func (s *session) pump(ctx context.Context) {
	for upd := range s.outbox {
		for _, ev := range upd.Events {
			switch ev.Type {
			case engine.EvtBidPlaced:
				_ = s.write(ctx, types.BidNewMessage{
					Type:        types.MsgBidNew,
					Seq:         ev.Seq,
					PlayerID:    ev.LotID,
					PlayerName:  ev.LotName,
					TeamID:      ev.TeamID,
					TeamName:    ev.TeamName,
					Amount:      ev.Amount,
					NextMinimum: ev.NextMinimum,
				})
			case engine.EvtLotSold:
				_ = s.write(ctx, types.PlayerSoldMessage{
					Type:       types.MsgPlayerSold,
					PlayerID:   ev.LotID,
					PlayerName: ev.LotName,
					TeamID:     ev.TeamID,
					TeamName:   ev.TeamName,
					SoldFor:    ev.Amount,
				})
			}
		}
		_ = s.write(ctx, types.StateUpdateMessage{
			Type:    types.MsgStateUpdate,
			Version: upd.Version,
			Data:    toAuctionState(upd.Snapshot),
		})
	}
}

func (s *session) readLoop(ctx context.Context, rm *room.Room) {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway, types.CloseDeliberate:
				s.log.Info("session closed", zap.String("session_id", s.id))
			default:
				s.log.Info("session dropped", zap.String("session_id", s.id), zap.Error(err))
			}
			return
		}

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			s.writeError(ctx, "bad json", types.ErrCodeValidation)
			continue
		}

		if cm.Type == types.MsgStateRequest {
			rm.Resend(s.id)
			continue
		}

		cmd, ok := toCommand(cm, s.identity)
		if !ok {
			s.writeError(ctx, "unknown message type: "+cm.Type, types.ErrCodeValidation)
			continue
		}

		if err := rm.Apply(ctx, cmd); err != nil {
			if errors.Is(err, room.ErrClosed) {
				return
			}
			s.writeError(ctx, err.Error(), errCode(err))
		}
	}
}

func (s *session) writeError(ctx context.Context, message, code string) {
	_ = s.write(ctx, types.ErrorMessage{Type: types.MsgError, Message: message, Code: code})
}

// toCommand translates a wire message into an engine command carrying
// the session's actor. Authorization is the engine's job; translation
// only fills defaults, like a team owner bidding without naming their
// team.
func toCommand(m types.ClientMessage, identity auth.Identity) (engine.Command, bool) {
	actor := identity.Actor()
	switch m.Type {
	case types.MsgBidPlace:
		teamID := m.TeamID
		if teamID == 0 {
			teamID = identity.TeamID
		}
		return engine.Command{Type: engine.CmdPlaceBid, Actor: actor, TeamID: teamID, Amount: m.Amount}, true
	case types.MsgPlayerPresent:
		return engine.Command{Type: engine.CmdPresentLot, Actor: actor, LotID: m.AuctionPlayerID}, true
	case types.MsgPlayerSell:
		return engine.Command{Type: engine.CmdSellLot, Actor: actor, LotID: m.AuctionPlayerID}, true
	case types.MsgPlayerUnsold:
		return engine.Command{Type: engine.CmdMarkUnsold, Actor: actor, LotID: m.AuctionPlayerID}, true
	case types.MsgAuctionStart, types.MsgAuctionResume:
		return engine.Command{Type: engine.CmdSetStatus, Actor: actor, Status: engine.StatusLive}, true
	case types.MsgAuctionPause:
		return engine.Command{Type: engine.CmdSetStatus, Actor: actor, Status: engine.StatusPaused}, true
	case types.MsgAuctionComplete:
		return engine.Command{Type: engine.CmdSetStatus, Actor: actor, Status: engine.StatusCompleted}, true
	default:
		return engine.Command{}, false
	}
}

func errCode(err error) string {
	switch {
	case errors.Is(err, engine.ErrNotAdmin),
		errors.Is(err, engine.ErrNoTeam),
		errors.Is(err, engine.ErrWrongTeam):
		return types.ErrCodeForbidden
	case engine.Classify(err) == engine.KindConflict:
		return types.ErrCodeConflict
	default:
		return types.ErrCodeValidation
	}
}

func closeCodeFor(err error) websocket.StatusCode {
	switch {
	case errors.Is(err, auth.ErrNotAuthorized):
		return types.CloseForbidden
	case errors.Is(err, auth.ErrAuctionNotFound):
		return types.CloseNotFound
	default:
		return types.CloseAuthRequired
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func toAuctionState(snap engine.Snapshot) types.AuctionState {
	out := types.AuctionState{
		AuctionID:        snap.AuctionID,
		Status:           string(snap.Status),
		Teams:            make([]types.TeamState, 0, len(snap.Teams)),
		AvailablePlayers: snap.Available,
		SoldPlayers:      snap.Sold,
		UnsoldPlayers:    snap.Unsold,
	}
	for _, t := range snap.Teams {
		out.Teams = append(out.Teams, types.TeamState{
			ID:           t.ID,
			Name:         t.Name,
			Code:         t.Code,
			Purse:        t.Purse,
			PlayersCount: t.Roster,
		})
	}
	if lot := snap.CurrentLot; lot != nil {
		ps := &types.PlayerState{
			ID:          lot.ID,
			Name:        lot.Name,
			BasePrice:   lot.BasePrice,
			CurrentBid:  lot.CurrentBid,
			NextMinimum: lot.NextMinimum,
		}
		if lot.CurrentBidder != 0 {
			ps.CurrentBidderID = lot.CurrentBidder
			ps.CurrentBidderName = lot.BidderName
		}
		out.CurrentPlayer = ps
	}
	return out
}
