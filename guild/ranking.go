package guild

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/toshiotawa/jazzify-lab-sub004/cache"
	"github.com/toshiotawa/jazzify-lab-sub004/config"
	"github.com/toshiotawa/jazzify-lab-sub004/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Standing is one row of the monthly guild ranking.
type Standing struct {
	Rank    int    `json:"rank"`
	GuildID int64  `json:"guild_id"`
	Name    string `json:"name"`
	Level   int    `json:"level"`
	MonthXP int64  `json:"month_xp"`
}

// Ranking serves paginated guild standings by XP-in-month. The current
// month's totals live in a cache sorted set rebuilt from the
// contribution ledger; every read path falls back to the database when
// the cache is cold or unavailable.
type Ranking struct {
	db    *gorm.DB
	cache cache.Cache
	cfg   config.GuildConfig
	log   *zap.Logger
}

func NewRanking(db *gorm.DB, c cache.Cache, cfg config.GuildConfig, log *zap.Logger) *Ranking {
	return &Ranking{db: db, cache: c, cfg: cfg, log: log}
}

func rankingKey(month time.Time) string {
	return "guild:ranking:" + MonthBucket(month).Format("200601")
}

type rankingRow struct {
	ID    int64
	Name  string
	Level int
	Total int64
}

func (r *Ranking) monthTotals(ctx context.Context, month time.Time) ([]rankingRow, error) {
	var rows []rankingRow
	err := r.db.WithContext(ctx).Model(&model.Guild{}).
		Select("guilds.id AS id, guilds.name AS name, guilds.level AS level, COALESCE(SUM(c.amount), 0) AS total").
		Joins("LEFT JOIN guild_xp_contributions c ON c.guild_id = guilds.id AND c.month_bucket = ?", MonthBucket(month)).
		Where("guilds.disbanded = ?", false).
		Group("guilds.id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	// XP desc, name asc: deterministic regardless of store ordering.
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Total != rows[j].Total {
			return rows[i].Total > rows[j].Total
		}
		return rows[i].Name < rows[j].Name
	})
	return rows, nil
}

// Refresh rebuilds the month's sorted set from the ledger. Called by
// the scheduler and the admin endpoint; read paths also call it on a
// cold cache.
func (r *Ranking) Refresh(ctx context.Context, month time.Time) error {
	rows, err := r.monthTotals(ctx, month)
	if err != nil {
		return err
	}
	key := rankingKey(month)
	if err := r.cache.Del(ctx, key); err != nil {
		return err
	}
	for _, row := range rows {
		if err := r.cache.ZAdd(ctx, key, float64(row.Total), strconv.FormatInt(row.ID, 10)); err != nil {
			return err
		}
	}
	r.log.Debug("guild ranking refreshed",
		zap.String("key", key),
		zap.Int("guilds", len(rows)))
	return nil
}

// Standings returns one page of the month's ranking, XP desc then name
// asc. page is 1-based; size <= 0 uses the configured default.
func (r *Ranking) Standings(ctx context.Context, month time.Time, page, size int) ([]Standing, error) {
	if size <= 0 {
		size = r.cfg.RankingPageSize
	}
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * size

	key := rankingKey(month)
	members, err := r.cache.ZRevRange(ctx, key, 0, -1)
	if err != nil || len(members) == 0 {
		if err != nil {
			r.log.Warn("ranking cache read failed, falling back to db", zap.Error(err))
			return r.standingsFromDB(ctx, month, offset, size)
		}
		if err := r.Refresh(ctx, month); err != nil {
			return nil, err
		}
		members, err = r.cache.ZRevRange(ctx, key, 0, -1)
		if err != nil {
			return r.standingsFromDB(ctx, month, offset, size)
		}
	}

	ids := make([]int64, 0, len(members))
	scores := make(map[int64]int64, len(members))
	for _, mem := range members {
		id, convErr := strconv.ParseInt(mem, 10, 64)
		if convErr != nil {
			continue
		}
		score, scoreErr := r.cache.ZScore(ctx, key, mem)
		if scoreErr != nil {
			return r.standingsFromDB(ctx, month, offset, size)
		}
		ids = append(ids, id)
		scores[id] = int64(score)
	}
	if len(ids) == 0 {
		return []Standing{}, nil
	}

	var guilds []model.Guild
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&guilds).Error; err != nil {
		return nil, err
	}
	byID := make(map[int64]model.Guild, len(guilds))
	for _, g := range guilds {
		byID[g.ID] = g
	}

	all := make([]Standing, 0, len(ids))
	for _, id := range ids {
		g, ok := byID[id]
		if !ok || g.Disbanded {
			continue
		}
		all = append(all, Standing{GuildID: id, Name: g.Name, Level: g.Level, MonthXP: scores[id]})
	}
	// The sorted set orders by score only; re-apply the name tie-break.
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].MonthXP != all[j].MonthXP {
			return all[i].MonthXP > all[j].MonthXP
		}
		return all[i].Name < all[j].Name
	})
	for i := range all {
		all[i].Rank = i + 1
	}

	if offset >= len(all) {
		return []Standing{}, nil
	}
	end := offset + size
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (r *Ranking) standingsFromDB(ctx context.Context, month time.Time, offset, size int) ([]Standing, error) {
	rows, err := r.monthTotals(ctx, month)
	if err != nil {
		return nil, err
	}
	out := make([]Standing, 0, size)
	for i, row := range rows {
		if i < offset {
			continue
		}
		if len(out) >= size {
			break
		}
		out = append(out, Standing{Rank: i + 1, GuildID: row.ID, Name: row.Name, Level: row.Level, MonthXP: row.Total})
	}
	return out, nil
}

// MyRank returns the standing of the caller's guild for the month, or
// ErrNotFound when the caller has no guild.
func (r *Ranking) MyRank(ctx context.Context, userID int64, month time.Time) (*Standing, error) {
	var m model.GuildMember
	err := r.db.WithContext(ctx).First(&m, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %d has no guild: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.monthTotals(ctx, month)
	if err != nil {
		return nil, err
	}
	for i, row := range rows {
		if row.ID == m.GuildID {
			return &Standing{Rank: i + 1, GuildID: row.ID, Name: row.Name, Level: row.Level, MonthXP: row.Total}, nil
		}
	}
	return nil, fmt.Errorf("guild %d not ranked: %w", m.GuildID, ErrNotFound)
}
