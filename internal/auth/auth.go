// Package auth resolves bearer credentials to an identity scoped to
// one auction. The live core treats the resolution as opaque and
// authoritative: whatever role and team binding come back are carried
// on the session unchanged.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/cricketbid/auction-backend/internal/engine"
	"github.com/cricketbid/auction-backend/internal/store"
)

var (
	ErrInvalidToken    = errors.New("invalid or missing credential")
	ErrNotAuthorized   = errors.New("not authorized for this auction")
	ErrAuctionNotFound = errors.New("auction not found")
)

// Identity is a session's resolved identity within one auction.
// TeamID is set iff Role is team_owner.
type Identity struct {
	UserID   int64
	Username string
	Role     engine.Role
	TeamID   int64
}

// Actor converts the identity to the engine's actor form.
func (id Identity) Actor() engine.Actor {
	return engine.Actor{Role: id.Role, TeamID: id.TeamID}
}

// Verifier resolves a bearer credential for an auction.
type Verifier interface {
	Verify(ctx context.Context, token string, auctionID int64) (Identity, error)
}

// TokenVerifier validates "<user_id>:<secret>" bearer tokens against
// bcrypt hashes in the store.
type TokenVerifier struct {
	db *gorm.DB
}

func NewTokenVerifier(db *gorm.DB) *TokenVerifier {
	return &TokenVerifier{db: db}
}

func (v *TokenVerifier) Verify(ctx context.Context, token string, auctionID int64) (Identity, error) {
	userID, secret, ok := splitToken(token)
	if !ok {
		return Identity{}, ErrInvalidToken
	}

	var user store.User
	err := v.db.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Identity{}, ErrInvalidToken
	}
	if err != nil {
		return Identity{}, fmt.Errorf("load user: %w", err)
	}
	if !user.IsActive {
		return Identity{}, ErrInvalidToken
	}
	if bcrypt.CompareHashAndPassword([]byte(user.TokenHash), []byte(secret)) != nil {
		return Identity{}, ErrInvalidToken
	}

	var auction store.AuctionEvent
	err = v.db.WithContext(ctx).First(&auction, auctionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Identity{}, ErrAuctionNotFound
	}
	if err != nil {
		return Identity{}, fmt.Errorf("load auction: %w", err)
	}

	var team *store.Team
	var t store.Team
	err = v.db.WithContext(ctx).
		Where("auction_id = ? AND owner_id = ?", auctionID, user.ID).
		First(&t).Error
	switch {
	case err == nil:
		team = &t
	case errors.Is(err, gorm.ErrRecordNotFound):
		// no team in this auction
	default:
		return Identity{}, fmt.Errorf("load team: %w", err)
	}

	var granted int64
	if err := v.db.WithContext(ctx).Model(&store.AuctionTeamAuth{}).
		Where("auction_id = ? AND user_id = ?", auctionID, user.ID).
		Count(&granted).Error; err != nil {
		return Identity{}, fmt.Errorf("load auction auth: %w", err)
	}

	return Resolve(user, auction, team, granted > 0)
}

// Resolve derives the identity from what the store knows. Split out of
// Verify so the role rules are testable without a database: site
// admins and the auction's owner are admin, a team owner in this
// auction is team_owner, anyone else explicitly granted access
// spectates, and everyone else is rejected.
func Resolve(user store.User, auction store.AuctionEvent, team *store.Team, granted bool) (Identity, error) {
	id := Identity{UserID: user.ID, Username: user.Username}
	switch {
	case user.Role == "admin" || auction.OwnerID == user.ID:
		id.Role = engine.RoleAdmin
	case team != nil:
		id.Role = engine.RoleTeamOwner
		id.TeamID = team.ID
	case granted:
		id.Role = engine.RoleSpectator
	default:
		return Identity{}, ErrNotAuthorized
	}
	return id, nil
}

func splitToken(token string) (userID int64, secret string, ok bool) {
	before, after, found := strings.Cut(token, ":")
	if !found || after == "" {
		return 0, "", false
	}
	id, err := strconv.ParseInt(before, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", false
	}
	return id, after, true
}
