package model

import "time"

// Chat stores Telegram chat metadata. The chat ID doubles as the credential
// profile of the session that chat owns.
type Chat struct {
	ID            uint  `gorm:"primaryKey"`
	TelegramID    int64 `gorm:"uniqueIndex"`
	FirstName     string
	Username      string
	DigestEnabled bool `gorm:"default:true"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Credential is one persisted key of a profile (token, refreshToken, user).
type Credential struct {
	ID        uint   `gorm:"primaryKey"`
	Profile   string `gorm:"uniqueIndex:idx_profile_key"`
	Name      string `gorm:"uniqueIndex:idx_profile_key"`
	Value     string
	UpdatedAt time.Time
}
