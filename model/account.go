package model

import "time"

// PlanRank is the billing tier of an account.
type PlanRank = string

const (
	PlanFree     PlanRank = "free"
	PlanStandard PlanRank = "standard"
	PlanPremium  PlanRank = "premium"
	PlanPlatinum PlanRank = "platinum"
)

// Account represents a player account with its practice progress.
type Account struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Nickname     string     `gorm:"uniqueIndex;size:32;not null" json:"nickname"`
	PasswordHash string     `gorm:"size:64;not null" json:"-"`
	Email        string     `gorm:"size:128" json:"email"`
	Rank         PlanRank   `gorm:"size:16;default:free" json:"rank"`
	XP           int64      `gorm:"default:0" json:"xp"`
	Level        int        `gorm:"default:1" json:"level"`
	Status       int        `gorm:"default:1" json:"status"` // 0=banned 1=normal
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	LastLoginIP  string     `gorm:"size:45" json:"last_login_ip"`
}
