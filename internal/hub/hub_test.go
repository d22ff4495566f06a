package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cricketbid/auction-backend/internal/engine"
	"github.com/cricketbid/auction-backend/internal/room"
)

func testState(auctionID int64, status engine.Status) engine.State {
	return engine.State{
		AuctionID: auctionID,
		Status:    status,
		Rules:     engine.Rules{MinIncrement: 0.5},
		Teams:     map[int64]engine.Team{10: {ID: 10, Name: "Team A", Purse: 100}},
		Lots:      map[int64]engine.Lot{100: {ID: 100, Name: "R. Sharma", BasePrice: 1, Status: engine.LotAvailable}},
	}
}

func TestHub_Ensure_Get_SamePointer(t *testing.T) {
	h := NewHub(context.Background(), nil, nil, nil)

	rm1 := h.Ensure(7, testState(7, engine.StatusLive))
	rm2 := h.Get(7)
	rm3 := h.Ensure(7, testState(7, engine.StatusDraft))

	require.NotNil(t, rm1)
	assert.Same(t, rm1, rm2)
	assert.Same(t, rm1, rm3, "existing room wins over a fresh projection")
}

func TestHub_Get_MissingIsNil(t *testing.T) {
	h := NewHub(context.Background(), nil, nil, nil)
	assert.Nil(t, h.Get(42))
}

func TestHub_RemoveRoom_IgnoresStalePointer(t *testing.T) {
	h := NewHub(context.Background(), nil, nil, nil)

	rm := h.Ensure(7, testState(7, engine.StatusLive))
	stale := room.New(context.Background(), testState(7, engine.StatusLive), room.Options{})
	defer stale.Shutdown()

	h.Inbox() <- RemoveRoom{AuctionID: 7, Room: stale}
	assert.Same(t, rm, h.Get(7))

	h.Inbox() <- RemoveRoom{AuctionID: 7, Room: rm}
	assert.Nil(t, h.Get(7))
}

func TestHub_RoomSelfCloseRemovesRegistration(t *testing.T) {
	h := NewHub(context.Background(), nil, nil, nil)

	// Completed auction: the room garbage-collects itself when its last
	// session leaves, and the hub drops its reference.
	rm := h.Ensure(7, testState(7, engine.StatusCompleted))
	out := make(chan room.Update, 4)
	require.NoError(t, rm.Join("s1", out))
	rm.Leave("s1")

	select {
	case <-rm.Done():
	case <-time.After(time.Second):
		t.Fatal("room did not shut down")
	}

	require.Eventually(t, func() bool {
		return h.Get(7) == nil
	}, time.Second, 10*time.Millisecond)

	// A new joiner gets a fresh room under the same auction.
	fresh := h.Ensure(7, testState(7, engine.StatusCompleted))
	require.NotNil(t, fresh)
	assert.NotSame(t, rm, fresh)
}

func TestHub_ShutdownClosesRooms(t *testing.T) {
	h := NewHub(context.Background(), nil, nil, nil)
	rm := h.Ensure(7, testState(7, engine.StatusLive))

	h.Inbox() <- ShutdownHub{}

	select {
	case <-rm.Done():
	case <-time.After(time.Second):
		t.Fatal("room not shut down with hub")
	}
}
