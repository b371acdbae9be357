package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/toshiotawa/jazzify-lab-sub004/guild"
	mw "github.com/toshiotawa/jazzify-lab-sub004/middleware"
	"go.uber.org/zap"
)

// XPHandler is the gameplay engine's hook into the contribution
// ledger: practice sessions report XP gains here.
type XPHandler struct {
	ledger *guild.Ledger
	logger *zap.Logger
}

// NewXPHandler creates an XPHandler.
func NewXPHandler(ledger *guild.Ledger, logger *zap.Logger) *XPHandler {
	return &XPHandler{ledger: ledger, logger: logger}
}

type reportXPRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
	// At is optional; empty means "now". Accepts RFC 3339.
	At string `json:"at" binding:"omitempty"`
}

// Report handles POST /api/xp.
func (h *XPHandler) Report(c *gin.Context) {
	var req reportXPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	at := time.Now().UTC()
	if req.At != "" {
		parsed, err := time.Parse(time.RFC3339, req.At)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "at must be RFC 3339"})
			return
		}
		at = parsed
	}
	res, err := h.ledger.Record(c.Request.Context(), mw.GetAccountID(c), req.Amount, at)
	if err != nil {
		writeGuildError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
