package guild

import (
	"context"
	"errors"
	"time"

	"github.com/toshiotawa/jazzify-lab-sub004/config"
	"github.com/toshiotawa/jazzify-lab-sub004/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// QuestRunner enforces the hourly quest on challenge guilds: the prior
// hour's contributions must reach the threshold or the guild is
// disbanded. Safe under at-least-once delivery: the write-once success
// marker (composite primary key) makes re-runs for the same hour
// no-ops.
type QuestRunner struct {
	db  *gorm.DB
	cfg config.GuildConfig
	svc *Service
	log *zap.Logger
}

func NewQuestRunner(db *gorm.DB, cfg config.GuildConfig, svc *Service, log *zap.Logger) *QuestRunner {
	return &QuestRunner{db: db, cfg: cfg, svc: svc, log: log}
}

// Run evaluates every non-disbanded challenge guild for the hour
// ending at rollover. Each guild is processed in its own transaction;
// one guild's failure never aborts the rest of the run.
func (q *QuestRunner) Run(ctx context.Context, rollover time.Time) error {
	rollover = HourBucket(rollover)
	var ids []int64
	err := q.db.WithContext(ctx).Model(&model.Guild{}).
		Where("guild_type = ? AND disbanded = ?", model.GuildTypeChallenge, false).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return err
	}
	q.log.Info("quest enforcement run",
		zap.Time("rollover", rollover),
		zap.Int("guilds", len(ids)))
	for _, id := range ids {
		if err := q.runGuild(ctx, id, rollover); err != nil {
			q.log.Error("quest enforcement failed for guild",
				zap.Int64("guild_id", id),
				zap.Time("rollover", rollover),
				zap.Error(err))
		}
	}
	return nil
}

func (q *QuestRunner) runGuild(ctx context.Context, guildID int64, rollover time.Time) error {
	windowStart := rollover.Add(-time.Hour)
	var events []Event
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, err := lockGuild(tx, guildID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if g.Disbanded {
			return nil
		}

		var total int64
		err = tx.Model(&model.GuildXPContribution{}).
			Select("COALESCE(SUM(amount), 0)").
			Where("guild_id = ? AND hour_bucket >= ? AND hour_bucket < ?",
				guildID, windowStart, rollover).
			Scan(&total).Error
		if err != nil {
			return err
		}

		if total < q.cfg.QuestThreshold {
			q.log.Info("quest failed, disbanding guild",
				zap.Int64("guild_id", guildID),
				zap.Int64("total_xp", total),
				zap.Int64("threshold", q.cfg.QuestThreshold))
			return q.svc.disbandTx(tx, g, &events)
		}

		// First insert of the (guild, hour) marker wins; a duplicate
		// means success was already counted for this hour.
		entry := model.GuildQuestSuccessLog{GuildID: guildID, RolloverHour: rollover}
		if err := tx.Create(&entry).Error; err != nil {
			if isUniqueViolation(err) {
				return nil
			}
			return err
		}
		if err := tx.Model(&model.Guild{}).Where("id = ?", guildID).
			UpdateColumn("quest_success_count", gorm.Expr("quest_success_count + 1")).Error; err != nil {
			return err
		}
		events = append(events, Event{Type: EventQuestSuccess, GuildID: guildID, At: rollover})
		return nil
	})
	if err != nil {
		return err
	}
	q.svc.publish(ctx, events...)
	return nil
}
