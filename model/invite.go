package model

import "time"

// InviteStatus is the lifecycle state of an invitation.
// Anything other than pending is terminal.
type InviteStatus = string

const (
	InviteStatusPending   InviteStatus = "pending"
	InviteStatusAccepted  InviteStatus = "accepted"
	InviteStatusRejected  InviteStatus = "rejected"
	InviteStatusCancelled InviteStatus = "cancelled"
)

// RequestStatus is the lifecycle state of a join request.
type RequestStatus = string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusApproved  RequestStatus = "approved"
	RequestStatusRejected  RequestStatus = "rejected"
	RequestStatusCancelled RequestStatus = "cancelled"
)

// GuildInvitation is a guild-side offer to a specific player.
// At most one pending row per (guild, invitee); invite writers hold the
// guild row lock, so the check-then-insert is serialized.
type GuildInvitation struct {
	ID        int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	GuildID   int64        `gorm:"index:idx_guild_invites_guild;not null" json:"guild_id"`
	InviterID int64        `gorm:"not null" json:"inviter_id"`
	InviteeID int64        `gorm:"index:idx_guild_invites_invitee;not null" json:"invitee_id"`
	Status    InviteStatus `gorm:"size:16;default:pending;index:idx_guild_invites_status" json:"status"`
	CreatedAt time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

// GuildJoinRequest is a player-side application to a guild.
type GuildJoinRequest struct {
	ID          int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	GuildID     int64         `gorm:"index:idx_guild_requests_guild;not null" json:"guild_id"`
	RequesterID int64         `gorm:"index:idx_guild_requests_requester;not null" json:"requester_id"`
	Status      RequestStatus `gorm:"size:16;default:pending;index:idx_guild_requests_status" json:"status"`
	CreatedAt   time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}
