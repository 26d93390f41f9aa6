package users

import (
	"strings"
	"time"
)

// Identity links one login (provider plus subject) to the shopper id that
// owns carts and orders. Display fields follow the most recent session.
type Identity struct {
	Provider    string    `gorm:"column:provider;primaryKey;size:32;not null"`
	Subject     string    `gorm:"column:subject;primaryKey;size:190;not null"`
	ShopperID   string    `gorm:"column:shopper_id;size:190;not null;index"`
	Email       string    `gorm:"column:email;size:320"`
	DisplayName string    `gorm:"column:display_name;size:320"`
	AvatarURL   string    `gorm:"column:avatar_url;size:512"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName keeps shopper identities apart from any future staff accounts.
func (Identity) TableName() string {
	return "shopper_identities"
}

// login is the provider+subject pair a session resolves to.
type login struct {
	provider string
	subject  string
}

func (l login) key() string {
	return l.provider + ":" + l.subject
}

// loginFromClaims prefers a "provider:subject" user_id, then the JWT subject,
// then the email address.
func loginFromClaims(userID, subject, email string) login {
	result := login{provider: defaultProvider, subject: strings.TrimSpace(subject)}
	raw := strings.TrimSpace(userID)
	if provider, rest, found := strings.Cut(raw, ":"); found {
		provider, rest = strings.TrimSpace(provider), strings.TrimSpace(rest)
		if provider != "" && rest != "" {
			result.provider, result.subject = provider, rest
		}
	} else if raw != "" && result.subject == "" {
		result.subject = raw
	}
	if result.subject == "" {
		result.subject = strings.TrimSpace(email)
	}
	return result
}
