package model

import "time"

// GuildXPContribution is one append-only XP attribution to a guild.
// Rows are written only while the contributor is a member at the moment
// the XP event occurs and are never updated or deleted afterwards, so
// ranking and quest evaluation stay immune to later membership churn.
type GuildXPContribution struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	GuildID     int64     `gorm:"index:idx_guild_contrib_guild_hour;not null" json:"guild_id"`
	UserID      int64     `gorm:"index:idx_guild_contrib_user;not null" json:"user_id"`
	Amount      int64     `gorm:"not null" json:"amount"`
	HourBucket  time.Time `gorm:"index:idx_guild_contrib_guild_hour;not null" json:"hour_bucket"`
	MonthBucket time.Time `gorm:"index:idx_guild_contrib_month;not null" json:"month_bucket"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// GuildQuestSuccessLog is the write-once idempotency marker for quest
// enforcement. The composite primary key means the first insert for a
// (guild, rollover hour) wins and every retry is a visible duplicate,
// so a success is counted exactly once no matter how often the hourly
// job runs.
type GuildQuestSuccessLog struct {
	GuildID      int64     `gorm:"primaryKey;autoIncrement:false" json:"guild_id"`
	RolloverHour time.Time `gorm:"primaryKey" json:"rollover_hour"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}
