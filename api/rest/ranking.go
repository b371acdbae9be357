package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/toshiotawa/jazzify-lab-sub004/guild"
	mw "github.com/toshiotawa/jazzify-lab-sub004/middleware"
	"go.uber.org/zap"
)

// RankingHandler serves the monthly guild standings.
type RankingHandler struct {
	ranking *guild.Ranking
	logger  *zap.Logger
}

// NewRankingHandler creates a RankingHandler.
func NewRankingHandler(ranking *guild.Ranking, logger *zap.Logger) *RankingHandler {
	return &RankingHandler{ranking: ranking, logger: logger}
}

// parseMonth reads a ?month=YYYYMM query; empty means the current month.
func parseMonth(c *gin.Context) (time.Time, bool) {
	raw := c.Query("month")
	if raw == "" {
		return time.Now().UTC(), true
	}
	month, err := time.Parse("200601", raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "month must be YYYYMM"})
		return time.Time{}, false
	}
	return month, true
}

// Standings handles GET /api/guilds/ranking.
func (h *RankingHandler) Standings(c *gin.Context) {
	month, ok := parseMonth(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "0"))

	rows, err := h.ranking.Standings(c.Request.Context(), month, page, size)
	if err != nil {
		writeGuildError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"month":     guild.MonthBucket(month).Format("200601"),
		"page":      page,
		"standings": rows,
	})
}

// MyRank handles GET /api/guilds/ranking/me.
func (h *RankingHandler) MyRank(c *gin.Context) {
	month, ok := parseMonth(c)
	if !ok {
		return
	}
	st, err := h.ranking.MyRank(c.Request.Context(), mw.GetAccountID(c), month)
	if err != nil {
		writeGuildError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
