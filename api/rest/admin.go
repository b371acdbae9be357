package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/toshiotawa/jazzify-lab-sub004/guild"
	"github.com/toshiotawa/jazzify-lab-sub004/model"
	"github.com/toshiotawa/jazzify-lab-sub004/scheduler"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	db      *gorm.DB
	quest   *guild.QuestRunner
	ranking *guild.Ranking
	svc     *guild.Service
	sched   *scheduler.Scheduler
	logger  *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	db *gorm.DB,
	quest *guild.QuestRunner,
	ranking *guild.Ranking,
	svc *guild.Service,
	sched *scheduler.Scheduler,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{db: db, quest: quest, ranking: ranking, svc: svc, sched: sched, logger: logger}
}

type runQuestRequest struct {
	// Rollover in RFC 3339; empty means the current hour boundary.
	Rollover string `json:"rollover" binding:"omitempty"`
}

// RunQuest triggers quest enforcement for a rollover hour. The run is
// idempotent, so re-triggering a past hour is safe.
// POST /api/admin/quest/run
func (h *AdminHandler) RunQuest(c *gin.Context) {
	var req runQuestRequest
	_ = c.ShouldBindJSON(&req)

	rollover := time.Now().UTC()
	if req.Rollover != "" {
		parsed, err := time.Parse(time.RFC3339, req.Rollover)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "rollover must be RFC 3339"})
			return
		}
		rollover = parsed
	}
	if err := h.quest.Run(c.Request.Context(), rollover); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "quest run failed"})
		return
	}
	h.logger.Info("admin triggered quest run", zap.Time("rollover", rollover))
	c.JSON(http.StatusOK, gin.H{"ok": true, "rollover": guild.HourBucket(rollover)})
}

// RefreshRanking rebuilds the ranking cache for a month.
// POST /api/admin/ranking/refresh
func (h *AdminHandler) RefreshRanking(c *gin.Context) {
	month, ok := parseMonth(c)
	if !ok {
		return
	}
	if err := h.ranking.Refresh(c.Request.Context(), month); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "month": guild.MonthBucket(month).Format("200601")})
}

// DisbandGuild force-disbands a guild as the system actor.
// POST /api/admin/guilds/:id/disband
func (h *AdminHandler) DisbandGuild(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.SystemDisband(c.Request.Context(), id); err != nil {
		writeGuildError(c, err)
		return
	}
	h.logger.Info("admin disbanded guild", zap.Int64("guild_id", id))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// BanAccount bans or unbans a player account.
// POST /api/admin/accounts/:id/ban
func (h *AdminHandler) BanAccount(c *gin.Context) {
	accountID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req struct {
		Ban bool `json:"ban"`
	}
	_ = c.ShouldBindJSON(&req)

	status := 1
	if req.Ban {
		status = 0
	}
	result := h.db.Model(&model.Account{}).Where("id = ?", accountID).Update("status", status)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "status": status})
}

// Metrics returns service health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	var accounts, guilds, members int64
	h.db.Model(&model.Account{}).Count(&accounts)
	h.db.Model(&model.Guild{}).Where("disbanded = ?", false).Count(&guilds)
	h.db.Model(&model.GuildMember{}).Count(&members)
	c.JSON(http.StatusOK, gin.H{
		"accounts":        accounts,
		"active_guilds":   guilds,
		"guild_members":   members,
		"scheduler_tasks": h.sched.ListTickers(),
	})
}

// ListSchedulerTasks returns names of all registered ticker tasks.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.ListTickers()})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// WARNING: if adminKey is empty all admin endpoints are disabled (503) so the
// server cannot be accidentally deployed without protection. Set a non-empty
// server.admin_key in config to enable admin routes.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if key != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
