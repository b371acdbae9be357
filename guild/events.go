package guild

import (
	"context"
	"encoding/json"
	"time"

	"github.com/toshiotawa/jazzify-lab-sub004/cache"
	"go.uber.org/zap"
)

// EventChannel is the pub/sub channel guild lifecycle events fan out
// on. The host app's notification feed subscribes here instead of
// polling the guild tables.
const EventChannel = "guild:events"

const (
	EventGuildCreated   = "guild_created"
	EventMemberJoined   = "member_joined"
	EventMemberLeft     = "member_left"
	EventMemberKicked   = "member_kicked"
	EventLeaderChanged  = "leader_changed"
	EventGuildDisbanded = "guild_disbanded"
	EventQuestSuccess   = "quest_success"
)

// Event is the JSON payload published on EventChannel.
type Event struct {
	Type    string    `json:"type"`
	GuildID int64     `json:"guild_id"`
	UserID  int64     `json:"user_id,omitempty"`
	Name    string    `json:"name,omitempty"`
	At      time.Time `json:"at"`
}

// Publisher publishes guild events. Events are emitted after the
// surrounding transaction commits; a publish failure is logged and
// never fails the operation that produced it.
type Publisher struct {
	ps  cache.PubSub
	log *zap.Logger
}

func NewPublisher(ps cache.PubSub, log *zap.Logger) *Publisher {
	return &Publisher{ps: ps, log: log}
}

func (p *Publisher) Publish(ctx context.Context, events ...Event) {
	if p == nil || p.ps == nil {
		return
	}
	for _, ev := range events {
		if ev.At.IsZero() {
			ev.At = time.Now().UTC()
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			p.log.Warn("marshal guild event", zap.String("type", ev.Type), zap.Error(err))
			continue
		}
		if err := p.ps.Publish(ctx, EventChannel, string(payload)); err != nil {
			p.log.Warn("publish guild event",
				zap.String("type", ev.Type),
				zap.Int64("guild_id", ev.GuildID),
				zap.Error(err))
		}
	}
}
