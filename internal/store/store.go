// Package store is the narrow contract between the live auction core
// and the durable Postgres state. The core reads a projection once per
// room and writes back only the durable effects of sell/unsold/status
// transitions; it never round-trips through the database while a room
// is active.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/cricketbid/auction-backend/internal/engine"
	"github.com/cricketbid/auction-backend/internal/room"
)

var ErrAuctionNotFound = errors.New("auction not found")

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store { return &Store{db: db} }

// Open connects to Postgres and migrates the schema.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(
		&User{}, &AuctionEvent{}, &Team{}, &AuctionPlayer{},
		&AuctionBid{}, &TeamPlayer{}, &AuctionTeamAuth{},
	); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for collaborators (auth).
func (s *Store) DB() *gorm.DB { return s.db }

// LoadState builds the live-state projection a room starts from: the
// auction's rules and status, every team's purse and roster size, and
// the full lot pool.
func (s *Store) LoadState(ctx context.Context, auctionID int64) (engine.State, error) {
	var auction AuctionEvent
	err := s.db.WithContext(ctx).First(&auction, auctionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.State{}, ErrAuctionNotFound
	}
	if err != nil {
		return engine.State{}, fmt.Errorf("load auction %d: %w", auctionID, err)
	}

	state := engine.State{
		AuctionID: auction.ID,
		Status:    engine.Status(auction.Status),
		Rules: engine.Rules{
			InitialPurse: auction.InitialPurse,
			MinIncrement: auction.MinBidIncrement,
			MaxTeamSize:  auction.MaxTeamSize,
			Tiers:        parseTiers(auction.BidIncrementTiers),
		},
		Teams: make(map[int64]engine.Team),
		Lots:  make(map[int64]engine.Lot),
	}

	var teams []Team
	if err := s.db.WithContext(ctx).Where("auction_id = ?", auctionID).Find(&teams).Error; err != nil {
		return engine.State{}, fmt.Errorf("load teams: %w", err)
	}

	var players []AuctionPlayer
	if err := s.db.WithContext(ctx).Where("auction_id = ?", auctionID).Order("pool_order").Find(&players).Error; err != nil {
		return engine.State{}, fmt.Errorf("load players: %w", err)
	}

	rosters := make(map[int64]int)
	for _, p := range players {
		status := engine.LotStatus(p.Status)
		// A lot stuck on "presented" from a previous run never resolved;
		// it goes back to the pool.
		if status == engine.LotPresented {
			status = engine.LotAvailable
		}
		lot := engine.Lot{
			ID:        p.ID,
			Name:      p.Name,
			BasePrice: p.BasePrice,
			Status:    status,
		}
		if p.SoldFor != nil {
			lot.SoldFor = *p.SoldFor
		}
		if p.SoldToTeamID != nil {
			lot.SoldTo = *p.SoldToTeamID
			rosters[*p.SoldToTeamID]++
		}
		state.Lots[lot.ID] = lot
	}

	for _, t := range teams {
		state.Teams[t.ID] = engine.Team{
			ID:     t.ID,
			Name:   t.TeamName,
			Code:   t.TeamCode,
			Purse:  t.PurseRemaining,
			Roster: rosters[t.ID],
		}
	}
	return state, nil
}

// RecordSale applies a completed sale in one transaction: the lot is
// marked sold, the buying team's purse is debited, a roster entry is
// created, and the lot's bid history lands with the winning bid
// flagged. Any failure rolls the whole write back.
func (s *Store) RecordSale(ctx context.Context, sale room.SaleRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&AuctionPlayer{}).
			Where("id = ? AND auction_id = ?", sale.LotID, sale.AuctionID).
			Updates(map[string]any{
				"status":          string(engine.LotSold),
				"sold_for":        sale.SoldFor,
				"sold_to_team_id": sale.TeamID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("lot %d not found in auction %d", sale.LotID, sale.AuctionID)
		}

		if err := tx.Model(&Team{}).
			Where("id = ?", sale.TeamID).
			Update("purse_remaining", sale.PurseRemaining).Error; err != nil {
			return err
		}

		if err := tx.Create(&TeamPlayer{
			TeamID:          sale.TeamID,
			AuctionPlayerID: sale.LotID,
			BoughtFor:       sale.SoldFor,
		}).Error; err != nil {
			return err
		}

		for _, b := range sale.Bids {
			if err := tx.Create(&AuctionBid{
				AuctionID:       b.AuctionID,
				AuctionPlayerID: b.LotID,
				TeamID:          b.TeamID,
				BidAmount:       b.Amount,
				Seq:             b.Seq,
				IsWinningBid:    b.Winning,
				PlacedAt:        b.PlacedAt,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// RecordUnsold marks a lot unsold.
func (s *Store) RecordUnsold(ctx context.Context, auctionID, lotID int64) error {
	res := s.db.WithContext(ctx).Model(&AuctionPlayer{}).
		Where("id = ? AND auction_id = ?", lotID, auctionID).
		Update("status", string(engine.LotUnsold))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("lot %d not found in auction %d", lotID, auctionID)
	}
	return nil
}

// RecordStatus persists a room status change, stamping start/end times.
func (s *Store) RecordStatus(ctx context.Context, auctionID int64, status engine.Status) error {
	updates := map[string]any{"status": string(status)}
	now := time.Now()
	switch status {
	case engine.StatusLive:
		updates["started_at"] = &now
	case engine.StatusCompleted:
		updates["ended_at"] = &now
	}
	res := s.db.WithContext(ctx).Model(&AuctionEvent{}).
		Where("id = ?", auctionID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAuctionNotFound
	}
	return nil
}

type tierJSON struct {
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Increment float64 `json:"increment"`
}

func parseTiers(raw string) []engine.IncrementTier {
	if raw == "" {
		return engine.DefaultTiers
	}
	var parsed []tierJSON
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil || len(parsed) == 0 {
		return engine.DefaultTiers
	}
	tiers := make([]engine.IncrementTier, 0, len(parsed))
	for _, t := range parsed {
		tiers = append(tiers, engine.IncrementTier{Min: t.Min, Max: t.Max, Increment: t.Increment})
	}
	return tiers
}
