package guild

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toshiotawa/jazzify-lab-sub004/model"
	"github.com/toshiotawa/jazzify-lab-sub004/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var rankMonth = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

func newTestRanking(t *testing.T) (*Ranking, *Service, *Ledger, *gorm.DB) {
	t.Helper()
	svc, db := newTestService(t)
	c, _ := testutil.SetupTestCache(t)
	led := NewLedger(db, zap.NewNop())
	r := NewRanking(db, c, testGuildConfig(), zap.NewNop())
	return r, svc, led, db
}

func seedRankedGuilds(t *testing.T, svc *Service, led *Ledger, db *gorm.DB) (topID, midID, lowID int64) {
	t.Helper()
	ctx := context.Background()
	at := rankMonth.Add(240 * time.Hour)

	a := mkAccount(t, db, "alice", model.PlanStandard)
	b := mkAccount(t, db, "bob", model.PlanStandard)
	c := mkAccount(t, db, "carol", model.PlanStandard)

	top, err := svc.CreateGuild(ctx, a, "Titans", model.GuildTypeCasual)
	require.NoError(t, err)
	mid, err := svc.CreateGuild(ctx, b, "Middlers", model.GuildTypeCasual)
	require.NoError(t, err)
	low, err := svc.CreateGuild(ctx, c, "Beginners", model.GuildTypeCasual)
	require.NoError(t, err)

	_, err = led.Record(ctx, a, 9000, at)
	require.NoError(t, err)
	_, err = led.Record(ctx, b, 5000, at)
	require.NoError(t, err)
	_, err = led.Record(ctx, c, 1000, at)
	require.NoError(t, err)
	return top.ID, mid.ID, low.ID
}

func TestRanking_Standings(t *testing.T) {
	r, svc, led, db := newTestRanking(t)
	topID, midID, lowID := seedRankedGuilds(t, svc, led, db)

	rows, err := r.Standings(context.Background(), rankMonth, 1, 10)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, topID, rows[0].GuildID)
	assert.Equal(t, 1, rows[0].Rank)
	assert.Equal(t, int64(9000), rows[0].MonthXP)
	assert.Equal(t, midID, rows[1].GuildID)
	assert.Equal(t, lowID, rows[2].GuildID)
}

func TestRanking_TieBreakByName(t *testing.T) {
	r, svc, led, db := newTestRanking(t)
	ctx := context.Background()
	at := rankMonth.Add(24 * time.Hour)

	a := mkAccount(t, db, "alice", model.PlanStandard)
	b := mkAccount(t, db, "bob", model.PlanStandard)
	_, err := svc.CreateGuild(ctx, a, "Zebras", model.GuildTypeCasual)
	require.NoError(t, err)
	_, err = svc.CreateGuild(ctx, b, "Apples", model.GuildTypeCasual)
	require.NoError(t, err)
	_, err = led.Record(ctx, a, 3000, at)
	require.NoError(t, err)
	_, err = led.Record(ctx, b, 3000, at)
	require.NoError(t, err)

	rows, err := r.Standings(ctx, rankMonth, 1, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Apples", rows[0].Name, "equal XP ties break by name ascending")
	assert.Equal(t, "Zebras", rows[1].Name)
}

func TestRanking_Pagination(t *testing.T) {
	r, svc, led, db := newTestRanking(t)
	seedRankedGuilds(t, svc, led, db)
	ctx := context.Background()

	page1, err := r.Standings(ctx, rankMonth, 1, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, 1, page1[0].Rank)
	assert.Equal(t, 2, page1[1].Rank)

	page2, err := r.Standings(ctx, rankMonth, 2, 2)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, 3, page2[0].Rank)

	page3, err := r.Standings(ctx, rankMonth, 3, 2)
	require.NoError(t, err)
	assert.Empty(t, page3)
}

func TestRanking_MyRank(t *testing.T) {
	r, svc, led, db := newTestRanking(t)
	_, midID, _ := seedRankedGuilds(t, svc, led, db)
	ctx := context.Background()

	var m model.GuildMember
	require.NoError(t, db.First(&m, "guild_id = ?", midID).Error)

	st, err := r.MyRank(ctx, m.UserID, rankMonth)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Rank)
	assert.Equal(t, midID, st.GuildID)

	outsider := mkAccount(t, db, "dave", model.PlanStandard)
	_, err = r.MyRank(ctx, outsider, rankMonth)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRanking_RefreshExcludesDisbanded(t *testing.T) {
	r, svc, led, db := newTestRanking(t)
	topID, _, _ := seedRankedGuilds(t, svc, led, db)
	ctx := context.Background()

	var g model.Guild
	require.NoError(t, db.First(&g, topID).Error)
	require.NoError(t, svc.SystemDisband(ctx, topID))
	require.NoError(t, r.Refresh(ctx, rankMonth))

	rows, err := r.Standings(ctx, rankMonth, 1, 10)
	require.NoError(t, err)
	for _, row := range rows {
		assert.NotEqual(t, topID, row.GuildID, "disbanded guild must not be ranked")
	}
}

func TestRanking_MonthIsolation(t *testing.T) {
	r, svc, led, db := newTestRanking(t)
	seedRankedGuilds(t, svc, led, db)
	ctx := context.Background()

	otherMonth := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	rows, err := r.Standings(ctx, otherMonth, 1, 10)
	require.NoError(t, err)
	for _, row := range rows {
		assert.Zero(t, row.MonthXP, "contributions from another month must not leak")
	}
}
