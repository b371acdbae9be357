package guild

import (
	"context"
	"fmt"
	"time"

	"github.com/toshiotawa/jazzify-lab-sub004/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// HourBucket truncates a timestamp to its UTC hour.
func HourBucket(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// MonthBucket truncates a timestamp to the first instant of its UTC month.
func MonthBucket(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Ledger ingests XP gain events from the gameplay engine. It is the
// only writer of guild_xp_contributions; rows are append-only and
// never revised, so ranking and quest evaluation are immune to
// membership churn after the fact.
type Ledger struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewLedger(db *gorm.DB, log *zap.Logger) *Ledger {
	return &Ledger{db: db, log: log}
}

// RecordResult reports the state after an XP event was applied.
type RecordResult struct {
	UserXP      int64 `json:"user_xp"`
	UserLevel   int   `json:"user_level"`
	Contributed bool  `json:"contributed"`
	GuildID     int64 `json:"guild_id,omitempty"`
	GuildXP     int64 `json:"guild_xp,omitempty"`
	GuildLevel  int   `json:"guild_level,omitempty"`
}

// Record applies an XP gain to the user and, when the user is a guild
// member at that moment, appends a contribution row and bumps the
// guild's total in the same transaction.
func (l *Ledger) Record(ctx context.Context, userID, amount int64, at time.Time) (*RecordResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("amount %d: %w", amount, ErrInvalidAmount)
	}
	var res RecordResult
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acc, err := accountOf(tx, userID)
		if err != nil {
			return err
		}
		acc.XP += amount
		acc.Level = UserLevel(acc.XP)
		if err := tx.Model(&model.Account{}).Where("id = ?", acc.ID).
			Updates(map[string]interface{}{"xp": acc.XP, "level": acc.Level}).Error; err != nil {
			return err
		}
		res.UserXP = acc.XP
		res.UserLevel = acc.Level

		m, err := membershipOf(tx, userID)
		if err != nil {
			return err
		}
		if m == nil {
			return nil
		}
		g, err := lockGuild(tx, m.GuildID)
		if err != nil {
			return err
		}
		g.TotalXP += amount
		g.Level = GuildLevel(g.TotalXP)
		if err := tx.Model(&model.Guild{}).Where("id = ?", g.ID).
			Updates(map[string]interface{}{"total_xp": g.TotalXP, "level": g.Level}).Error; err != nil {
			return err
		}
		c := model.GuildXPContribution{
			GuildID:     g.ID,
			UserID:      userID,
			Amount:      amount,
			HourBucket:  HourBucket(at),
			MonthBucket: MonthBucket(at),
		}
		if err := tx.Create(&c).Error; err != nil {
			return err
		}
		res.Contributed = true
		res.GuildID = g.ID
		res.GuildXP = g.TotalXP
		res.GuildLevel = g.Level
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}
