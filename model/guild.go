package model

import "time"

// GuildRole is a member's role within a guild.
type GuildRole = string

const (
	GuildRoleLeader GuildRole = "leader"
	GuildRoleMember GuildRole = "member"
)

// GuildType selects whether the guild is subject to hourly quest enforcement.
type GuildType = string

const (
	GuildTypeCasual    GuildType = "casual"
	GuildTypeChallenge GuildType = "challenge"
)

// Guild is a capacity-limited group of players accumulating collective XP.
type Guild struct {
	ID                int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name              string    `gorm:"uniqueIndex;size:50;not null" json:"name"`
	LeaderID          int64     `gorm:"not null" json:"leader_id"`
	TotalXP           int64     `gorm:"default:0" json:"total_xp"`
	Level             int       `gorm:"default:1" json:"level"`
	GuildType         GuildType `gorm:"size:16;default:casual" json:"guild_type"`
	QuestSuccessCount int       `gorm:"default:0" json:"quest_success_count"`
	Disbanded         bool      `gorm:"default:false" json:"disbanded"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// GuildMember links an account to its guild.
// UserID is the primary key: the database itself rejects a second
// membership for the same user, which closes the concurrent-join race.
type GuildMember struct {
	UserID   int64     `gorm:"primaryKey" json:"user_id"`
	GuildID  int64     `gorm:"index:idx_guild_members_guild;not null" json:"guild_id"`
	Role     GuildRole `gorm:"size:16;default:member" json:"role"`
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

// GuildMembershipHistory is the audit trail of join/leave intervals.
// LeftAt stays NULL while the membership is active.
type GuildMembershipHistory struct {
	ID       int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID   int64      `gorm:"index:idx_guild_history_user;not null" json:"user_id"`
	GuildID  int64      `gorm:"index:idx_guild_history_guild;not null" json:"guild_id"`
	JoinedAt time.Time  `gorm:"not null" json:"joined_at"`
	LeftAt   *time.Time `json:"left_at"`
}
