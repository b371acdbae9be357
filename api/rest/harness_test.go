package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/toshiotawa/jazzify-lab-sub004/audit"
	"github.com/toshiotawa/jazzify-lab-sub004/cache"
	"github.com/toshiotawa/jazzify-lab-sub004/config"
	"github.com/toshiotawa/jazzify-lab-sub004/guild"
	mw "github.com/toshiotawa/jazzify-lab-sub004/middleware"
	"github.com/toshiotawa/jazzify-lab-sub004/model"
	"github.com/toshiotawa/jazzify-lab-sub004/scheduler"
	"github.com/toshiotawa/jazzify-lab-sub004/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() { gin.SetMode(gin.TestMode) }

const testAdminKey = "test-admin-key"

type testEnv struct {
	db    *gorm.DB
	cache cache.Cache
	sec   config.SecurityConfig
	svc   *guild.Service
	r     *gin.Engine
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	gcfg := config.GuildConfig{
		MemberCapacity:  5,
		QuestThreshold:  1000,
		EligibleRanks:   []string{"standard", "premium", "platinum"},
		NameMinLen:      2,
		NameMaxLen:      50,
		RankingPageSize: 20,
	}
	sec := config.SecurityConfig{JWTSecret: "test-secret", JWTTTLH: time.Hour}

	auditSvc := audit.New(db, logger)
	t.Cleanup(func() { auditSvc.Stop(context.Background()) })
	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)

	publisher := guild.NewPublisher(ps, logger)
	svc := guild.NewService(db, gcfg, logger, publisher)
	ledger := guild.NewLedger(db, logger)
	ranking := guild.NewRanking(db, c, gcfg, logger)
	quest := guild.NewQuestRunner(db, gcfg, svc, logger)

	authH := NewAuthHandler(db, c, sec)
	guildH := NewGuildHandler(svc, auditSvc, logger)
	xpH := NewXPHandler(ledger, logger)
	rankH := NewRankingHandler(ranking, logger)
	adminH := NewAdminHandler(db, quest, ranking, svc, sched, logger)

	r := gin.New()
	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", mw.Auth(sec, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(sec, c), authH.Refresh)

		guildsG := api.Group("/guilds")
		guildsG.Use(mw.Auth(sec, c))
		guildsG.POST("", guildH.Create)
		guildsG.GET("/mine", guildH.Mine)
		guildsG.GET("/ranking", rankH.Standings)
		guildsG.GET("/ranking/me", rankH.MyRank)
		guildsG.GET("/invitations", guildH.MyInvitations)
		guildsG.POST("/invitations", guildH.Invite)
		guildsG.POST("/invitations/:id/accept", guildH.AcceptInvitation)
		guildsG.POST("/invitations/:id/reject", guildH.RejectInvitation)
		guildsG.POST("/invitations/:id/cancel", guildH.CancelInvitation)
		guildsG.POST("/requests/:id/approve", guildH.ApproveRequest)
		guildsG.POST("/requests/:id/reject", guildH.RejectRequest)
		guildsG.POST("/requests/:id/cancel", guildH.CancelRequest)
		guildsG.POST("/leave", guildH.Leave)
		guildsG.GET("/:id", guildH.Detail)
		guildsG.POST("/:id/requests", guildH.RequestJoin)
		guildsG.GET("/:id/requests", guildH.PendingRequests)
		guildsG.POST("/:id/kick", guildH.Kick)
		guildsG.POST("/:id/transfer", guildH.TransferLeadership)
		guildsG.POST("/:id/disband", guildH.Disband)

		xpG := api.Group("/xp")
		xpG.Use(mw.Auth(sec, c))
		xpG.POST("", xpH.Report)

		adminG := api.Group("/admin")
		adminG.Use(AdminAuth(testAdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.POST("/quest/run", adminH.RunQuest)
		adminG.POST("/ranking/refresh", adminH.RefreshRanking)
		adminG.POST("/guilds/:id/disband", adminH.DisbandGuild)
		adminG.POST("/accounts/:id/ban", adminH.BanAccount)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
	}

	return &testEnv{db: db, cache: c, sec: sec, svc: svc, r: r}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

// login registers (or logs in) the nickname and upgrades it to a
// guild-eligible plan.
func (e *testEnv) login(t *testing.T, nickname string) (string, int64) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"nickname": nickname,
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token     string `json:"token"`
		AccountID int64  `json:"account_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NoError(t, e.db.Model(&model.Account{}).Where("id = ?", resp.AccountID).
		Update("rank", model.PlanStandard).Error)
	return resp.Token, resp.AccountID
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func jsonBody(t *testing.T, body interface{}) io.Reader {
	t.Helper()
	if body == nil {
		return nil
	}
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	return &buf
}
