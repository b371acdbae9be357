package rest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toshiotawa/jazzify-lab-sub004/model"
)

func TestLogin_AutoRegisters(t *testing.T) {
	e := setupEnv(t)

	w := e.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"nickname": "newplayer",
		"password": "secret99",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Token     string `json:"token"`
		AccountID int64  `json:"account_id"`
		Rank      string `json:"rank"`
	}
	decodeJSON(t, w, &resp)
	assert.NotEmpty(t, resp.Token)
	assert.NotZero(t, resp.AccountID)
	assert.Equal(t, string(model.PlanFree), resp.Rank)

	var acc model.Account
	require.NoError(t, e.db.First(&acc, resp.AccountID).Error)
	assert.Equal(t, "newplayer", acc.Nickname)
	assert.NotEqual(t, "secret99", acc.PasswordHash)
}

func TestLogin_WrongPassword(t *testing.T) {
	e := setupEnv(t)

	w := e.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"nickname": "alice",
		"password": "rightpass",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"nickname": "alice",
		"password": "wrongpass",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogin_BannedAccount(t *testing.T) {
	e := setupEnv(t)
	_, id := e.login(t, "badactor")

	require.NoError(t, e.db.Model(&model.Account{}).Where("id = ?", id).
		Update("status", 0).Error)

	w := e.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"nickname": "badactor",
		"password": "password123",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLogin_ValidationError(t *testing.T) {
	e := setupEnv(t)

	w := e.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"nickname": "x", // too short
		"password": "password123",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogout_InvalidatesSession(t *testing.T) {
	e := setupEnv(t)
	token, _ := e.login(t, "leaver")

	w := e.do(t, http.MethodGet, "/api/guilds/mine", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code) // authed, no guild yet

	w = e.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet, "/api/guilds/mine", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefresh_RotatesToken(t *testing.T) {
	e := setupEnv(t)
	token, _ := e.login(t, "rotator")

	w := e.do(t, http.MethodPost, "/api/auth/refresh", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	assert.NotEqual(t, token, resp.Token)

	// Old token is dead, new one works.
	w = e.do(t, http.MethodGet, "/api/guilds/mine", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = e.do(t, http.MethodGet, "/api/guilds/mine", resp.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuth_MissingToken(t *testing.T) {
	e := setupEnv(t)
	w := e.do(t, http.MethodGet, "/api/guilds/mine", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefresh_NoIdentity(t *testing.T) {
	// Refresh mounted without the auth middleware in front must fall
	// back to the auth-required sentinel, not succeed with account 0.
	e := setupEnv(t)
	h := NewAuthHandler(e.db, e.cache, e.sec)
	r := gin.New()
	r.POST("/refresh", h.Refresh)

	req := httptest.NewRequest(http.MethodPost, "/refresh", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	var resp struct {
		Error string `json:"error"`
	}
	decodeJSON(t, w, &resp)
	assert.Contains(t, resp.Error, "authentication required")
}
