package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/toshiotawa/jazzify-lab-sub004/api/rest"
	"github.com/toshiotawa/jazzify-lab-sub004/audit"
	"github.com/toshiotawa/jazzify-lab-sub004/cache"
	"github.com/toshiotawa/jazzify-lab-sub004/config"
	"github.com/toshiotawa/jazzify-lab-sub004/guild"
	mw "github.com/toshiotawa/jazzify-lab-sub004/middleware"
	"github.com/toshiotawa/jazzify-lab-sub004/model"
	"github.com/toshiotawa/jazzify-lab-sub004/scheduler"
	"github.com/toshiotawa/jazzify-lab-sub004/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const adminKey = "integration-admin-key"

// TestServer wraps a real HTTP server with the full guild service wired
// together, mirroring the dependency graph in main.go.
type TestServer struct {
	DB      *gorm.DB
	Cache   cache.Cache
	PubSub  cache.PubSub
	Svc     *guild.Service
	Ledger  *guild.Ledger
	Ranking *guild.Ranking
	Quest   *guild.QuestRunner
	Server  *httptest.Server
	URL     string
}

// NewTestServer builds a fully wired server backed by in-memory SQLite
// and the local cache, and registers cleanup on t.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        72 * time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
	}
	gcfg := config.GuildConfig{
		MemberCapacity:  5,
		QuestThreshold:  1000,
		EligibleRanks:   []string{"standard", "premium", "platinum"},
		NameMinLen:      2,
		NameMaxLen:      50,
		RankingPageSize: 20,
	}

	auditSvc := audit.New(db, logger)
	t.Cleanup(func() { auditSvc.Stop(context.Background()) })
	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)

	publisher := guild.NewPublisher(pubsub, logger)
	svc := guild.NewService(db, gcfg, logger, publisher)
	ledger := guild.NewLedger(db, logger)
	ranking := guild.NewRanking(db, c, gcfg, logger)
	quest := guild.NewQuestRunner(db, gcfg, svc, logger)

	authH := apirest.NewAuthHandler(db, c, sec)
	guildH := apirest.NewGuildHandler(svc, auditSvc, logger)
	xpH := apirest.NewXPHandler(ledger, logger)
	rankH := apirest.NewRankingHandler(ranking, logger)
	adminH := apirest.NewAdminHandler(db, quest, ranking, svc, sched, logger)

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst, sec.RateLimitSweep))
	r.GET("/health", func(ctx *gin.Context) { ctx.JSON(200, gin.H{"status": "ok"}) })

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
		adminG.Use(apirest.AdminAuth(adminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.POST("/quest/run", adminH.RunQuest)
		adminG.POST("/ranking/refresh", adminH.RefreshRanking)
		adminG.POST("/guilds/:id/disband", adminH.DisbandGuild)
		adminG.POST("/accounts/:id/ban", adminH.BanAccount)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
	}

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &TestServer{
		DB:      db,
		Cache:   c,
		PubSub:  pubsub,
		Svc:     svc,
		Ledger:  ledger,
		Ranking: ranking,
		Quest:   quest,
		Server:  srv,
		URL:     srv.URL,
	}
}

// Client is a thin HTTP client bound to one authenticated player.
type Client struct {
	ts    *TestServer
	Token string
	ID    int64
}

// NewClient registers a player (auto-login) on a guild-eligible plan.
func (ts *TestServer) NewClient(t *testing.T, nickname string) *Client {
	t.Helper()
	status, body := ts.request(t, http.MethodPost, "/api/auth/login", "", map[string]interface{}{
		"nickname": nickname,
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, status, string(body))

	var resp struct {
		Token     string `json:"token"`
		AccountID int64  `json:"account_id"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	require.NoError(t, ts.DB.Model(&model.Account{}).Where("id = ?", resp.AccountID).
		Update("rank", model.PlanStandard).Error)
	return &Client{ts: ts, Token: resp.Token, ID: resp.AccountID}
}

func (ts *TestServer) request(t *testing.T, method, path, token string, body interface{}) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
		reader = &buf
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

// Do performs an authenticated request and returns status + raw body.
func (c *Client) Do(t *testing.T, method, path string, body interface{}) (int, []byte) {
	t.Helper()
	return c.ts.request(t, method, path, c.Token, body)
}

// DoJSON performs an authenticated request and decodes the response.
func (c *Client) DoJSON(t *testing.T, method, path string, body, out interface{}) int {
	t.Helper()
	status, data := c.Do(t, method, path, body)
	if out != nil && len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, out), string(data))
	}
	return status
}

// Admin performs a request with the admin key header.
func (ts *TestServer) Admin(t *testing.T, method, path string, body interface{}) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
		reader = &buf
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Admin-Key", adminKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

// CreateGuild is shorthand for the create endpoint.
func (c *Client) CreateGuild(t *testing.T, name, guildType string) model.Guild {
	t.Helper()
	payload := map[string]interface{}{"name": name}
	if guildType != "" {
		payload["guild_type"] = guildType
	}
	var resp struct {
		Guild model.Guild `json:"guild"`
	}
	status := c.DoJSON(t, http.MethodPost, "/api/guilds", payload, &resp)
	require.Equal(t, http.StatusCreated, status)
	return resp.Guild
}

// JoinVia invites the target and has them accept, putting them in the
// inviter's guild.
func (c *Client) JoinVia(t *testing.T, target *Client) {
	t.Helper()
	var invResp struct {
		Invitation model.GuildInvitation `json:"invitation"`
	}
	status := c.DoJSON(t, http.MethodPost, "/api/guilds/invitations",
		map[string]interface{}{"invitee_id": target.ID}, &invResp)
	require.Equal(t, http.StatusCreated, status)

	status, body := target.Do(t, http.MethodPost,
		fmt.Sprintf("/api/guilds/invitations/%d/accept", invResp.Invitation.ID), nil)
	require.Equal(t, http.StatusOK, status, string(body))
	// Joined-at ordering matters for leader succession.
	time.Sleep(2 * time.Millisecond)
}
