package hub

import (
	"context"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/cricketbid/auction-backend/internal/engine"
	"github.com/cricketbid/auction-backend/internal/room"
)

type HubMsg interface{ isHubMsg() }

// EnsureRoom returns the room for an auction, starting one from the
// given initial state projection if none exists. An existing room
// always wins; the projection is only used on creation.
type EnsureRoom struct {
	AuctionID int64
	State     engine.State
	Reply     chan *room.Room
}

// GetRoom looks a room up without creating it. Reply may carry nil.
type GetRoom struct {
	AuctionID int64
	Reply     chan *room.Room
}

// RemoveRoom drops the registry's reference, but only if it still
// points at the given room. A replacement room registered under the
// same auction in the meantime is left alone.
type RemoveRoom struct {
	AuctionID int64
	Room      *room.Room
}

type ShutdownHub struct{}

func (EnsureRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (RemoveRoom) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

// Hub is the room registry: it owns the auctionID -> room map and
// serializes creation and removal through its own message loop. Rooms
// for different auctions run fully in parallel; the hub never touches
// a room's state.
type Hub struct {
	inbox  chan HubMsg
	rooms  map[int64]*room.Room
	store  room.Store
	log    *zap.Logger
	clock  clockwork.Clock
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, store room.Store, log *zap.Logger, clock clockwork.Clock) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[int64]*room.Room),
		store:  store,
		log:    log,
		clock:  clock,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Get is a convenience wrapper around GetRoom.
func (h *Hub) Get(auctionID int64) *room.Room {
	reply := make(chan *room.Room, 1)
	h.inbox <- GetRoom{AuctionID: auctionID, Reply: reply}
	return <-reply
}

// Ensure is a convenience wrapper around EnsureRoom.
func (h *Hub) Ensure(auctionID int64, state engine.State) *room.Room {
	reply := make(chan *room.Room, 1)
	h.inbox <- EnsureRoom{AuctionID: auctionID, State: state, Reply: reply}
	return <-reply
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureRoom:
				if rm := h.rooms[msg.AuctionID]; rm != nil {
					msg.Reply <- rm
					break
				}
				rm := h.startRoom(msg.AuctionID, msg.State)
				h.rooms[msg.AuctionID] = rm
				msg.Reply <- rm

			case GetRoom:
				msg.Reply <- h.rooms[msg.AuctionID] // may be nil

			case RemoveRoom:
				if h.rooms[msg.AuctionID] == msg.Room {
					delete(h.rooms, msg.AuctionID)
					h.log.Info("room removed", zap.Int64("auction_id", msg.AuctionID))
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) startRoom(auctionID int64, state engine.State) *room.Room {
	h.log.Info("room created", zap.Int64("auction_id", auctionID))
	return room.New(h.ctx, state, room.Options{
		Store: h.store,
		Log:   h.log.With(zap.Int64("auction_id", auctionID)),
		Clock: h.clock,
		OnClose: func(rm *room.Room) {
			select {
			case h.inbox <- RemoveRoom{AuctionID: auctionID, Room: rm}:
			case <-h.ctx.Done():
			}
		},
	})
}

func (h *Hub) shutdown() {
	for _, rm := range h.rooms {
		rm.Shutdown()
	}
	clear(h.rooms)
	h.cancel()
}
