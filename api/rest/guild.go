package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/toshiotawa/jazzify-lab-sub004/audit"
	"github.com/toshiotawa/jazzify-lab-sub004/guild"
	mw "github.com/toshiotawa/jazzify-lab-sub004/middleware"
	"go.uber.org/zap"
)

// GuildHandler exposes the membership lifecycle over REST. All routes
// require auth; the service re-verifies roles inside its transactions,
// so the handler never trusts anything beyond the authenticated id.
type GuildHandler struct {
	svc    *guild.Service
	aud    *audit.Service
	logger *zap.Logger
}

// NewGuildHandler creates a GuildHandler.
func NewGuildHandler(svc *guild.Service, aud *audit.Service, logger *zap.Logger) *GuildHandler {
	return &GuildHandler{svc: svc, aud: aud, logger: logger}
}

func (h *GuildHandler) audit(c *gin.Context, action string, guildID *int64, req, resp interface{}, opErr error, start time.Time) {
	if h.aud == nil {
		return
	}
	userID := mw.GetAccountID(c)
	entry := audit.AuditEntry{
		TraceID:    mw.GetTraceID(c),
		UserID:     &userID,
		GuildID:    guildID,
		Action:     action,
		Request:    req,
		Response:   resp,
		IP:         c.ClientIP(),
		DurationMs: int(time.Since(start).Milliseconds()),
	}
	if opErr != nil {
		entry.Error = opErr.Error()
	}
	h.aud.Log(entry)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

type createGuildRequest struct {
	Name      string `json:"name" binding:"required"`
	GuildType string `json:"guild_type" binding:"omitempty,oneof=casual challenge"`
}

// Create handles POST /api/guilds.
func (h *GuildHandler) Create(c *gin.Context) {
	start := time.Now()
	var req createGuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := mw.GetAccountID(c)
	g, err := h.svc.CreateGuild(c.Request.Context(), userID, req.Name, req.GuildType)
	if err != nil {
		h.audit(c, "guild_create", nil, req, nil, err, start)
		writeGuildError(c, err)
		return
	}
	h.audit(c, "guild_create", &g.ID, req, g, nil, start)
	c.JSON(http.StatusCreated, gin.H{"guild": g})
}

// Detail handles GET /api/guilds/:id.
func (h *GuildHandler) Detail(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	d, err := h.svc.Detail(c.Request.Context(), id)
	if err != nil {
		writeGuildError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// Mine handles GET /api/guilds/mine.
func (h *GuildHandler) Mine(c *gin.Context) {
	d, err := h.svc.MyGuild(c.Request.Context(), mw.GetAccountID(c))
	if err != nil {
		writeGuildError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

type inviteRequest struct {
	InviteeID int64 `json:"invitee_id" binding:"required,gt=0"`
}

// Invite handles POST /api/guilds/invitations.
func (h *GuildHandler) Invite(c *gin.Context) {
	start := time.Now()
	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	inv, err := h.svc.Invite(c.Request.Context(), mw.GetAccountID(c), req.InviteeID)
	if err != nil {
		h.audit(c, "guild_invite", nil, req, nil, err, start)
		writeGuildError(c, err)
		return
	}
	h.audit(c, "guild_invite", &inv.GuildID, req, inv, nil, start)
	c.JSON(http.StatusCreated, gin.H{"invitation": inv})
}

// MyInvitations handles GET /api/guilds/invitations.
func (h *GuildHandler) MyInvitations(c *gin.Context) {
	invs, err := h.svc.PendingInvitations(c.Request.Context(), mw.GetAccountID(c))
	if err != nil {
		writeGuildError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invitations": invs})
}

// AcceptInvitation handles POST /api/guilds/invitations/:id/accept.
func (h *GuildHandler) AcceptInvitation(c *gin.Context) {
	start := time.Now()
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	g, err := h.svc.AcceptInvitation(c.Request.Context(), mw.GetAccountID(c), id)
	if err != nil {
		h.audit(c, "guild_invite_accept", nil, gin.H{"invitation_id": id}, nil, err, start)
		writeGuildError(c, err)
		return
	}
	h.audit(c, "guild_invite_accept", &g.ID, gin.H{"invitation_id": id}, g, nil, start)
	c.JSON(http.StatusOK, gin.H{"guild": g})
}

// RejectInvitation handles POST /api/guilds/invitations/:id/reject.
func (h *GuildHandler) RejectInvitation(c *gin.Context) {
	h.resolve(c, "guild_invite_reject", func(actorID, id int64) error {
		return h.svc.RejectInvitation(c.Request.Context(), actorID, id)
	})
}

// CancelInvitation handles POST /api/guilds/invitations/:id/cancel.
func (h *GuildHandler) CancelInvitation(c *gin.Context) {
	h.resolve(c, "guild_invite_cancel", func(actorID, id int64) error {
		return h.svc.CancelInvitation(c.Request.Context(), actorID, id)
	})
}

// RequestJoin handles POST /api/guilds/:id/requests.
func (h *GuildHandler) RequestJoin(c *gin.Context) {
	start := time.Now()
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	req, err := h.svc.RequestJoin(c.Request.Context(), mw.GetAccountID(c), id)
	if err != nil {
		h.audit(c, "guild_request_join", &id, nil, nil, err, start)
		writeGuildError(c, err)
		return
	}
	h.audit(c, "guild_request_join", &id, nil, req, nil, start)
	c.JSON(http.StatusCreated, gin.H{"request": req})
}

// PendingRequests handles GET /api/guilds/:id/requests (leader only).
func (h *GuildHandler) PendingRequests(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	reqs, err := h.svc.PendingRequests(c.Request.Context(), mw.GetAccountID(c), id)
	if err != nil {
		writeGuildError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

// ApproveRequest handles POST /api/guilds/requests/:id/approve.
func (h *GuildHandler) ApproveRequest(c *gin.Context) {
	h.resolve(c, "guild_request_approve", func(actorID, id int64) error {
		return h.svc.ApproveRequest(c.Request.Context(), actorID, id)
	})
}

// RejectRequest handles POST /api/guilds/requests/:id/reject.
func (h *GuildHandler) RejectRequest(c *gin.Context) {
	h.resolve(c, "guild_request_reject", func(actorID, id int64) error {
		return h.svc.RejectRequest(c.Request.Context(), actorID, id)
	})
}

// CancelRequest handles POST /api/guilds/requests/:id/cancel.
func (h *GuildHandler) CancelRequest(c *gin.Context) {
	h.resolve(c, "guild_request_cancel", func(actorID, id int64) error {
		return h.svc.CancelRequest(c.Request.Context(), actorID, id)
	})
}

// resolve is the shared shape of the five status-flip endpoints.
func (h *GuildHandler) resolve(c *gin.Context, action string, fn func(actorID, id int64) error) {
	start := time.Now()
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	err := fn(mw.GetAccountID(c), id)
	h.audit(c, action, nil, gin.H{"id": id}, nil, err, start)
	if err != nil {
		writeGuildError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type kickRequest struct {
	UserID int64 `json:"user_id" binding:"required,gt=0"`
}

// Kick handles POST /api/guilds/:id/kick.
func (h *GuildHandler) Kick(c *gin.Context) {
	start := time.Now()
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req kickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.svc.Kick(c.Request.Context(), mw.GetAccountID(c), id, req.UserID)
	h.audit(c, "guild_kick", &id, req, nil, err, start)
	if err != nil {
		writeGuildError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Leave handles POST /api/guilds/leave.
func (h *GuildHandler) Leave(c *gin.Context) {
	start := time.Now()
	err := h.svc.Leave(c.Request.Context(), mw.GetAccountID(c))
	h.audit(c, "guild_leave", nil, nil, nil, err, start)
	if err != nil {
		writeGuildError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type transferRequest struct {
	UserID int64 `json:"user_id" binding:"required,gt=0"`
}

// TransferLeadership handles POST /api/guilds/:id/transfer.
func (h *GuildHandler) TransferLeadership(c *gin.Context) {
	start := time.Now()
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.svc.TransferLeadership(c.Request.Context(), mw.GetAccountID(c), id, req.UserID)
	h.audit(c, "guild_transfer", &id, req, nil, err, start)
	if err != nil {
		writeGuildError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Disband handles POST /api/guilds/:id/disband.
func (h *GuildHandler) Disband(c *gin.Context) {
	start := time.Now()
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	err := h.svc.Disband(c.Request.Context(), mw.GetAccountID(c), id)
	h.audit(c, "guild_disband", &id, nil, nil, err, start)
	if err != nil {
		writeGuildError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
