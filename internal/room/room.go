package room

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/cricketbid/auction-backend/internal/engine"
)

// ErrClosed is returned by Room methods after the room has shut down.
// Callers holding a stale handle should re-resolve the room via the hub.
var ErrClosed = errors.New("room closed")

// storeTimeout bounds the synchronous durable write inside a mutation.
const storeTimeout = 5 * time.Second

// Bid is one accepted bid, kept in memory for the current lot and
// persisted as part of the sale.
type Bid struct {
	AuctionID int64
	LotID     int64
	TeamID    int64
	Amount    float64
	Seq       int64
	PlacedAt  time.Time
	Winning   bool
}

// SaleRecord carries everything the store needs to durably apply a
// completed sale in one transaction.
type SaleRecord struct {
	AuctionID      int64
	LotID          int64
	TeamID         int64
	SoldFor        float64
	PurseRemaining float64
	RosterSize     int
	Bids           []Bid
}

// Store receives the durable side effects of resolved mutations. A
// failed write aborts the mutation: the in-memory state is not
// advanced and the caller gets the error back.
type Store interface {
	RecordSale(ctx context.Context, sale SaleRecord) error
	RecordUnsold(ctx context.Context, auctionID, lotID int64) error
	RecordStatus(ctx context.Context, auctionID int64, status engine.Status) error
}

// Update is what sessions receive after every committed mutation: the
// discrete events and a full snapshot, in commit order.
type Update struct {
	Version  int
	Events   []engine.Event
	Snapshot engine.Snapshot
}

// View reflects internal room state for tests without data races.
type View struct {
	Version     int
	NumSessions int
	State       engine.State
}

type msg interface{ isRoomMsg() }

type joinMsg struct {
	sessionID string
	outbox    chan Update
	reply     chan error
}

type leaveMsg struct{ sessionID string }

type applyMsg struct {
	cmd   engine.Command
	reply chan error
}

type resendMsg struct{ sessionID string }

type viewMsg struct{ reply chan View }

type shutdownMsg struct{}

func (joinMsg) isRoomMsg()     {}
func (leaveMsg) isRoomMsg()    {}
func (applyMsg) isRoomMsg()    {}
func (resendMsg) isRoomMsg()   {}
func (viewMsg) isRoomMsg()     {}
func (shutdownMsg) isRoomMsg() {}

// Options configures a Room.
type Options struct {
	Store Store
	Log   *zap.Logger
	Clock clockwork.Clock
	// OnClose is invoked once, after the room has shut down on its own
	// (last session left a non-live auction). The registry uses it to
	// drop its reference.
	OnClose func(*Room)
}

// Room owns the authoritative state of one live auction. Every
// mutation -- join, leave, bid, present, sell, unsold, status change --
// is serialized through its inbox, so exactly one executes at a time
// and broadcasts go out in commit order.
type Room struct {
	inbox    chan msg
	state    engine.State
	version  int
	sessions map[string]chan Update
	bidLog   []Bid

	store   Store
	log     *zap.Logger
	clock   clockwork.Clock
	onClose func(*Room)

	ctx    context.Context
	cancel context.CancelFunc
}

// New starts a room for the given initial state projection.
func New(parent context.Context, initial engine.State, opts Options) *Room {
	ctx, cancel := context.WithCancel(parent)
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	r := &Room{
		inbox:    make(chan msg, 64),
		state:    initial,
		sessions: make(map[string]chan Update),
		store:    opts.Store,
		log:      opts.Log,
		clock:    opts.Clock,
		onClose:  opts.OnClose,
		ctx:      ctx,
		cancel:   cancel,
	}
	go r.loop()
	return r
}

// AuctionID identifies the auction this room coordinates.
func (r *Room) AuctionID() int64 { return r.state.AuctionID }

// Done closes when the room has shut down.
func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

// Join attaches a session. The first Update on outbox is a full
// snapshot, so a late joiner needs no event history.
func (r *Room) Join(sessionID string, outbox chan Update) error {
	reply := make(chan error, 1)
	if err := r.send(joinMsg{sessionID: sessionID, outbox: outbox, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-r.ctx.Done():
		return ErrClosed
	}
}

// Leave detaches a session. Safe to call on a closed room.
func (r *Room) Leave(sessionID string) {
	_ = r.send(leaveMsg{sessionID: sessionID})
}

// Apply runs one command through the room's serialization discipline
// and returns its rejection, if any. A nil error means the mutation
// committed and has been broadcast.
func (r *Room) Apply(ctx context.Context, cmd engine.Command) error {
	reply := make(chan error, 1)
	if err := r.send(applyMsg{cmd: cmd, reply: reply}); err != nil {
		return err
	}
	return r.wait(ctx, reply)
}

// Resend queues a fresh snapshot for one session.
func (r *Room) Resend(sessionID string) {
	_ = r.send(resendMsg{sessionID: sessionID})
}

// View returns internal state for tests.
func (r *Room) View() (View, error) {
	reply := make(chan View, 1)
	if err := r.send(viewMsg{reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-r.ctx.Done():
		return View{}, ErrClosed
	}
}

// Shutdown tears the room down, closing every session's outbox.
func (r *Room) Shutdown() {
	_ = r.send(shutdownMsg{})
}

func (r *Room) send(m msg) error {
	select {
	case r.inbox <- m:
		return nil
	case <-r.ctx.Done():
		return ErrClosed
	}
}

func (r *Room) wait(ctx context.Context, reply <-chan error) error {
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return ErrClosed
	}
}

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case joinMsg:
				r.sessions[msg.sessionID] = msg.outbox
				r.deliver(msg.sessionID, msg.outbox, Update{Version: r.version, Snapshot: engine.Snap(r.state)})
				msg.reply <- nil

			case leaveMsg:
				r.detach(msg.sessionID)
				if len(r.sessions) == 0 && r.state.Status != engine.StatusLive {
					// A live auction survives total disconnection; anything
					// else is garbage-collected with its last session.
					r.shutdown()
					return
				}

			case applyMsg:
				events, next, err := engine.Apply(r.state, msg.cmd)
				if err == nil {
					err = r.persist(events, next)
				}
				if err != nil {
					msg.reply <- err
					break
				}
				r.commit(next, events)
				msg.reply <- nil

			case resendMsg:
				if out, ok := r.sessions[msg.sessionID]; ok {
					r.deliver(msg.sessionID, out, Update{Version: r.version, Snapshot: engine.Snap(r.state)})
				}

			case viewMsg:
				msg.reply <- View{Version: r.version, NumSessions: len(r.sessions), State: r.state}

			case shutdownMsg:
				r.shutdown()
				return
			}
		}
	}
}

// persist writes the durable side effects of the produced events. It
// runs before the in-memory commit: if the store rejects the write the
// state must not advance past its current lot.
func (r *Room) persist(events []engine.Event, next engine.State) error {
	if r.store == nil {
		return nil
	}
	for _, ev := range events {
		ctx, cancel := context.WithTimeout(r.ctx, storeTimeout)
		var err error
		switch ev.Type {
		case engine.EvtLotSold:
			err = r.store.RecordSale(ctx, r.saleRecord(ev, next))
		case engine.EvtLotUnsold:
			err = r.store.RecordUnsold(ctx, r.state.AuctionID, ev.LotID)
		case engine.EvtStatusChanged:
			err = r.store.RecordStatus(ctx, r.state.AuctionID, ev.Status)
		}
		cancel()
		if err != nil {
			r.log.Error("durable write failed, mutation aborted",
				zap.String("event", string(ev.Type)),
				zap.Error(err))
			return err
		}
	}
	return nil
}

func (r *Room) saleRecord(ev engine.Event, next engine.State) SaleRecord {
	bids := make([]Bid, len(r.bidLog))
	copy(bids, r.bidLog)
	if n := len(bids); n > 0 {
		bids[n-1].Winning = true
	}
	team := next.Teams[ev.TeamID]
	return SaleRecord{
		AuctionID:      r.state.AuctionID,
		LotID:          ev.LotID,
		TeamID:         ev.TeamID,
		SoldFor:        ev.Amount,
		PurseRemaining: team.Purse,
		RosterSize:     team.Roster,
		Bids:           bids,
	}
}

func (r *Room) commit(next engine.State, events []engine.Event) {
	r.state = next
	r.version++

	for _, ev := range events {
		switch ev.Type {
		case engine.EvtBidPlaced:
			r.bidLog = append(r.bidLog, Bid{
				AuctionID: r.state.AuctionID,
				LotID:     ev.LotID,
				TeamID:    ev.TeamID,
				Amount:    ev.Amount,
				Seq:       ev.Seq,
				PlacedAt:  r.clock.Now(),
			})
		case engine.EvtLotPresented, engine.EvtLotSold, engine.EvtLotUnsold:
			r.bidLog = r.bidLog[:0]
		}
	}

	upd := Update{Version: r.version, Events: events, Snapshot: engine.Snap(next)}
	for id, out := range r.sessions {
		r.deliver(id, out, upd)
	}
}

// deliver pushes an update to one session's outbox. A session that
// cannot keep up is dropped; it will resync from a fresh snapshot on
// reconnect rather than receive a gapped event stream.
func (r *Room) deliver(id string, out chan Update, upd Update) {
	select {
	case out <- upd:
	default:
		r.log.Warn("dropping slow session", zap.String("session_id", id))
		r.detach(id)
	}
}

func (r *Room) detach(id string) {
	if out, ok := r.sessions[id]; ok {
		close(out)
		delete(r.sessions, id)
	}
}

func (r *Room) shutdown() {
	if r.state.CurrentLotID != 0 {
		r.log.Warn("room closing with an unresolved lot",
			zap.Int64("lot_id", r.state.CurrentLotID))
	}
	for id := range r.sessions {
		r.detach(id)
	}
	r.cancel()
	if r.onClose != nil {
		r.onClose(r)
	}
}
