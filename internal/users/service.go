package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/campusduka/storefront/internal/auth"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultProvider = "default"

// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
var ErrInvalidIdentity = errors.New("users: invalid identity")

// ServiceConfig describes the dependencies required for shopper resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service maps session logins onto shopper ids, provisioning shoppers on first sight.
type Service struct {
	db       *gorm.DB
	now      func() time.Time
	shoppers sync.Map
}

// NewService constructs the shopper identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, now: clock}, nil
}

// ResolveCanonicalUserID returns the shopper id for the session claims. An
// authenticated request always maps onto an existing shopper, so cart and order
// operations never see an unknown user.
func (s *Service) ResolveCanonicalUserID(ctx context.Context, claims auth.SessionClaims) (string, error) {
	account := loginFromClaims(claims.UserID, claims.Subject, claims.UserEmail)
	if account.subject == "" {
		return "", ErrInvalidIdentity
	}
	if shopperID, ok := s.shoppers.Load(account.key()); ok {
		return shopperID.(string), nil
	}

	profile := Identity{
		Provider:    account.provider,
		Subject:     account.subject,
		ShopperID:   account.subject,
		Email:       strings.TrimSpace(claims.UserEmail),
		DisplayName: strings.TrimSpace(claims.UserDisplayName),
		AvatarURL:   strings.TrimSpace(claims.UserAvatarURL),
		LastSeenAt:  s.now(),
	}
	identity, err := s.provision(ctx, profile)
	if err != nil {
		return "", err
	}
	s.shoppers.Store(account.key(), identity.ShopperID)
	return identity.ShopperID, nil
}

// provision inserts the identity unless another request already did, then
// refreshes the profile fields carried by the current session.
func (s *Service) provision(ctx context.Context, profile Identity) (Identity, error) {
	db := s.db.WithContext(ctx)
	created := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&profile)
	if created.Error != nil {
		return Identity{}, created.Error
	}
	if created.RowsAffected == 1 {
		return profile, nil
	}

	var stored Identity
	if err := db.Where("provider = ? AND subject = ?", profile.Provider, profile.Subject).Take(&stored).Error; err != nil {
		return Identity{}, err
	}
	updates := map[string]interface{}{"last_seen_at": profile.LastSeenAt}
	for column, pair := range map[string][2]string{
		"email":        {profile.Email, stored.Email},
		"display_name": {profile.DisplayName, stored.DisplayName},
		"avatar_url":   {profile.AvatarURL, stored.AvatarURL},
	} {
		if pair[0] != "" && pair[0] != pair[1] {
			updates[column] = pair[0]
		}
	}
	// Profile refresh is best effort; the shopper id is already known.
	_ = db.Model(&Identity{}).
		Where("provider = ? AND subject = ?", stored.Provider, stored.Subject).
		Updates(updates).Error
	return stored, nil
}
