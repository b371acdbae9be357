package rest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toshiotawa/jazzify-lab-sub004/model"
)

func (e *testEnv) doAdmin(t *testing.T, method, path, key string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, jsonBody(t, body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("X-Admin-Key", key)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func TestAdminAuth_Middleware(t *testing.T) {
	e := setupEnv(t)

	w := e.doAdmin(t, http.MethodGet, "/api/admin/metrics", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.doAdmin(t, http.MethodGet, "/api/admin/metrics", "wrong-key", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.doAdmin(t, http.MethodGet, "/api/admin/metrics", testAdminKey, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminAuth_DisabledWhenKeyEmpty(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", AdminAuth(""), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Admin-Key", "anything")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAdminMetrics(t *testing.T) {
	e := setupEnv(t)
	tok, _ := e.login(t, "metricuser")
	createGuildHTTP(t, e, tok, "Counted")

	w := e.doAdmin(t, http.MethodGet, "/api/admin/metrics", testAdminKey, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Accounts     int64 `json:"accounts"`
		ActiveGuilds int64 `json:"active_guilds"`
		GuildMembers int64 `json:"guild_members"`
	}
	decodeJSON(t, w, &resp)
	assert.Equal(t, int64(1), resp.Accounts)
	assert.Equal(t, int64(1), resp.ActiveGuilds)
	assert.Equal(t, int64(1), resp.GuildMembers)
}

func TestAdminRunQuest_DisbandsFailingChallengeGuild(t *testing.T) {
	e := setupEnv(t)
	tok, _ := e.login(t, "challenger")
	w := e.do(t, http.MethodPost, "/api/guilds", tok, gin.H{
		"name":       "Doomed",
		"guild_type": "challenge",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created guildResp
	decodeJSON(t, w, &created)

	// 500 XP in the window, threshold is 1000.
	w = e.do(t, http.MethodPost, "/api/xp", tok, gin.H{
		"amount": 500,
		"at":     "2026-05-10T09:30:00Z",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodPost, "/api/admin/quest/run", "", gin.H{
		"rollover": "2026-05-10T10:00:00Z",
	})
	// Unauthenticated admin call is rejected.
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	rec := e.doAdmin(t, http.MethodPost, "/api/admin/quest/run", testAdminKey,
		gin.H{"rollover": "2026-05-10T10:00:00Z"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var reloaded model.Guild
	require.NoError(t, e.db.First(&reloaded, created.Guild.ID).Error)
	assert.True(t, reloaded.Disbanded)
}

func TestAdminRunQuest_SucceedingGuildSurvives(t *testing.T) {
	e := setupEnv(t)
	tok, _ := e.login(t, "survivor")
	w := e.do(t, http.MethodPost, "/api/guilds", tok, gin.H{
		"name":       "Sturdy",
		"guild_type": "challenge",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created guildResp
	decodeJSON(t, w, &created)

	w = e.do(t, http.MethodPost, "/api/xp", tok, gin.H{
		"amount": 1500,
		"at":     "2026-05-10T09:30:00Z",
	})
	require.Equal(t, http.StatusOK, w.Code)

	rec := e.doAdmin(t, http.MethodPost, "/api/admin/quest/run", testAdminKey,
		gin.H{"rollover": "2026-05-10T10:00:00Z"})
	require.Equal(t, http.StatusOK, rec.Code)

	var reloaded model.Guild
	require.NoError(t, e.db.First(&reloaded, created.Guild.ID).Error)
	assert.False(t, reloaded.Disbanded)
	assert.Equal(t, 1, reloaded.QuestSuccessCount)
}

func TestAdminDisbandGuild(t *testing.T) {
	e := setupEnv(t)
	tok, _ := e.login(t, "victim")
	g := createGuildHTTP(t, e, tok, "Shut Down")

	w := e.doAdmin(t, http.MethodPost,
		fmt.Sprintf("/api/admin/guilds/%d/disband", g.ID), testAdminKey, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var reloaded model.Guild
	require.NoError(t, e.db.First(&reloaded, g.ID).Error)
	assert.True(t, reloaded.Disbanded)

	w = e.doAdmin(t, http.MethodPost,
		"/api/admin/guilds/999999/disband", testAdminKey, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminBanAccount(t *testing.T) {
	e := setupEnv(t)
	_, id := e.login(t, "troublemaker")

	rec := e.doAdmin(t, http.MethodPost,
		fmt.Sprintf("/api/admin/accounts/%d/ban", id), testAdminKey, gin.H{"ban": true})
	require.Equal(t, http.StatusOK, rec.Code)

	var acc model.Account
	require.NoError(t, e.db.First(&acc, id).Error)
	assert.Equal(t, 0, acc.Status)

	w := e.doAdmin(t, http.MethodPost, "/api/admin/accounts/999999/ban", testAdminKey, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminRefreshRanking(t *testing.T) {
	e := setupEnv(t)
	seedThreeGuilds(t, e)

	w := e.doAdmin(t, http.MethodPost,
		"/api/admin/ranking/refresh?month=202605", testAdminKey, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Month string `json:"month"`
	}
	decodeJSON(t, w, &resp)
	assert.Equal(t, "202605", resp.Month)
}
