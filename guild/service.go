package guild

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/toshiotawa/jazzify-lab-sub004/config"
	"github.com/toshiotawa/jazzify-lab-sub004/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service owns every mutation of guilds, members, invitations and join
// requests. All other code reads those tables at most; writes that
// bypass the service would skip the cancel-competing-offers cleanup.
//
// Every operation runs in a single transaction. The guild row is
// locked FOR UPDATE before capacity or role checks so that
// check-then-insert sequences are serialized per guild; the
// one-guild-per-user rule is additionally backed by the primary key on
// guild_members.user_id.
type Service struct {
	db  *gorm.DB
	cfg config.GuildConfig
	log *zap.Logger
	pub *Publisher
}

func NewService(db *gorm.DB, cfg config.GuildConfig, log *zap.Logger, pub *Publisher) *Service {
	return &Service{db: db, cfg: cfg, log: log, pub: pub}
}

func (s *Service) publish(ctx context.Context, events ...Event) {
	s.pub.Publish(ctx, events...)
}

// ---- transaction helpers ----

func lockGuild(tx *gorm.DB, id int64) (*model.Guild, error) {
	var g model.Guild
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&g, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("guild %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func memberCount(tx *gorm.DB, guildID int64) (int64, error) {
	var n int64
	err := tx.Model(&model.GuildMember{}).Where("guild_id = ?", guildID).Count(&n).Error
	return n, err
}

// membershipOf returns the user's membership, or nil if they have none.
func membershipOf(tx *gorm.DB, userID int64) (*model.GuildMember, error) {
	var m model.GuildMember
	err := tx.First(&m, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func accountOf(tx *gorm.DB, userID int64) (*model.Account, error) {
	var acc model.Account
	err := tx.First(&acc, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("account %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *Service) checkEligible(acc *model.Account) error {
	if acc.Status == 0 {
		return fmt.Errorf("account %d banned: %w", acc.ID, ErrForbidden)
	}
	if !s.cfg.EligibleRank(acc.Rank) {
		return fmt.Errorf("rank %s: %w", acc.Rank, ErrIneligiblePlan)
	}
	return nil
}

// insertMember creates the membership row and opens a history record.
// The primary key on user_id turns a concurrent double-join into a
// unique violation here rather than a corrupt state.
func insertMember(tx *gorm.DB, userID, guildID int64, role model.GuildRole, now time.Time) error {
	m := model.GuildMember{UserID: userID, GuildID: guildID, Role: role, JoinedAt: now}
	if err := tx.Create(&m).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %d: %w", userID, ErrAlreadyMember)
		}
		return err
	}
	h := model.GuildMembershipHistory{UserID: userID, GuildID: guildID, JoinedAt: now}
	return tx.Create(&h).Error
}

func closeHistory(tx *gorm.DB, userID, guildID int64, at time.Time) error {
	return tx.Model(&model.GuildMembershipHistory{}).
		Where("user_id = ? AND guild_id = ? AND left_at IS NULL", userID, guildID).
		Update("left_at", at).Error
}

// cancelUserPending voids every pending invitation and join request the
// user has in flight. Called whenever the user commits to a guild (any
// join path) and on leave.
func cancelUserPending(tx *gorm.DB, userID int64) error {
	if err := tx.Model(&model.GuildInvitation{}).
		Where("invitee_id = ? AND status = ?", userID, model.InviteStatusPending).
		Update("status", model.InviteStatusCancelled).Error; err != nil {
		return err
	}
	return tx.Model(&model.GuildJoinRequest{}).
		Where("requester_id = ? AND status = ?", userID, model.RequestStatusPending).
		Update("status", model.RequestStatusCancelled).Error
}

// afterJoin is the single cleanup hook run by every membership
// insertion: the joiner's competing pending offers are cancelled, and
// if the guild just reached capacity its remaining pending join
// requests are cancelled too. The joined invitation/request must be
// resolved before this runs.
func (s *Service) afterJoin(tx *gorm.DB, userID, guildID int64) error {
	if err := cancelUserPending(tx, userID); err != nil {
		return err
	}
	n, err := memberCount(tx, guildID)
	if err != nil {
		return err
	}
	if n >= int64(s.cfg.MemberCapacity) {
		if err := tx.Model(&model.GuildJoinRequest{}).
			Where("guild_id = ? AND status = ?", guildID, model.RequestStatusPending).
			Update("status", model.RequestStatusCancelled).Error; err != nil {
			return err
		}
	}
	return nil
}

// disbandTx performs the disband inside the caller's transaction: mark
// disbanded, rename to a sentinel embedding the guild id (two guilds
// disbanding must not collide on the unique name), close histories,
// remove members, void pending offers.
func (s *Service) disbandTx(tx *gorm.DB, g *model.Guild, events *[]Event) error {
	now := time.Now().UTC()
	oldName := g.Name
	g.Disbanded = true
	g.Name = fmt.Sprintf("[disbanded]#%d", g.ID)
	if err := tx.Model(&model.Guild{}).Where("id = ?", g.ID).
		Updates(map[string]interface{}{"disbanded": true, "name": g.Name}).Error; err != nil {
		return err
	}
	if err := tx.Model(&model.GuildMembershipHistory{}).
		Where("guild_id = ? AND left_at IS NULL", g.ID).
		Update("left_at", now).Error; err != nil {
		return err
	}
	if err := tx.Where("guild_id = ?", g.ID).Delete(&model.GuildMember{}).Error; err != nil {
		return err
	}
	if err := tx.Model(&model.GuildInvitation{}).
		Where("guild_id = ? AND status = ?", g.ID, model.InviteStatusPending).
		Update("status", model.InviteStatusCancelled).Error; err != nil {
		return err
	}
	if err := tx.Model(&model.GuildJoinRequest{}).
		Where("guild_id = ? AND status = ?", g.ID, model.RequestStatusPending).
		Update("status", model.RequestStatusCancelled).Error; err != nil {
		return err
	}
	*events = append(*events, Event{Type: EventGuildDisbanded, GuildID: g.ID, Name: oldName})
	return nil
}

// ---- operations ----

// CreateGuild creates a guild with the caller as sole leader. Any
// pending join requests or invitations the caller had elsewhere are
// cancelled.
func (s *Service) CreateGuild(ctx context.Context, userID int64, name string, guildType model.GuildType) (*model.Guild, error) {
	nameLen := utf8.RuneCountInString(name)
	if nameLen < s.cfg.NameMinLen || nameLen > s.cfg.NameMaxLen {
		return nil, fmt.Errorf("name length %d: %w", nameLen, ErrInvalidName)
	}
	if guildType == "" {
		guildType = model.GuildTypeCasual
	}
	if guildType != model.GuildTypeCasual && guildType != model.GuildTypeChallenge {
		return nil, fmt.Errorf("guild type %q: %w", guildType, ErrInvalidName)
	}

	var g model.Guild
	var events []Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acc, err := accountOf(tx, userID)
		if err != nil {
			return err
		}
		if err := s.checkEligible(acc); err != nil {
			return err
		}
		m, err := membershipOf(tx, userID)
		if err != nil {
			return err
		}
		if m != nil {
			return fmt.Errorf("user %d: %w", userID, ErrAlreadyMember)
		}

		g = model.Guild{Name: name, LeaderID: userID, GuildType: guildType, Level: 1}
		if err := tx.Create(&g).Error; err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("name %q: %w", name, ErrDuplicateName)
			}
			return err
		}
		now := time.Now().UTC()
		if err := insertMember(tx, userID, g.ID, model.GuildRoleLeader, now); err != nil {
			return err
		}
		if err := s.afterJoin(tx, userID, g.ID); err != nil {
			return err
		}
		events = append(events,
			Event{Type: EventGuildCreated, GuildID: g.ID, UserID: userID, Name: name},
			Event{Type: EventMemberJoined, GuildID: g.ID, UserID: userID})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events...)
	return &g, nil
}

// Invite creates a pending invitation from the inviter's guild to the
// invitee. Re-inviting while a pending invitation exists returns the
// existing one instead of erroring.
func (s *Service) Invite(ctx context.Context, inviterID, inviteeID int64) (*model.GuildInvitation, error) {
	var inv model.GuildInvitation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := membershipOf(tx, inviterID)
		if err != nil {
			return err
		}
		if m == nil {
			return fmt.Errorf("inviter %d has no guild: %w", inviterID, ErrNotFound)
		}
		g, err := lockGuild(tx, m.GuildID)
		if err != nil {
			return err
		}
		if g.Disbanded {
			return fmt.Errorf("guild %d: %w", g.ID, ErrDisbanded)
		}
		n, err := memberCount(tx, g.ID)
		if err != nil {
			return err
		}
		if n >= int64(s.cfg.MemberCapacity) {
			return fmt.Errorf("guild %d: %w", g.ID, ErrCapacityExceeded)
		}

		invitee, err := accountOf(tx, inviteeID)
		if err != nil {
			return err
		}
		if err := s.checkEligible(invitee); err != nil {
			return err
		}
		im, err := membershipOf(tx, inviteeID)
		if err != nil {
			return err
		}
		if im != nil {
			return fmt.Errorf("invitee %d: %w", inviteeID, ErrAlreadyMember)
		}

		// The guild row lock serializes this check-then-insert, so at
		// most one pending invitation per (guild, invitee) exists.
		err = tx.First(&inv, "guild_id = ? AND invitee_id = ? AND status = ?",
			g.ID, inviteeID, model.InviteStatusPending).Error
		if err == nil {
			return nil // idempotent: hand back the existing pending invitation
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		inv = model.GuildInvitation{GuildID: g.ID, InviterID: inviterID, InviteeID: inviteeID,
			Status: model.InviteStatusPending}
		return tx.Create(&inv).Error
	})
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// AcceptInvitation joins the invitee to the inviting guild and voids
// all their competing pending offers.
func (s *Service) AcceptInvitation(ctx context.Context, inviteeID, invitationID int64) (*model.Guild, error) {
	var g *model.Guild
	var events []Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inv model.GuildInvitation
		err := tx.First(&inv, invitationID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("invitation %d: %w", invitationID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if inv.InviteeID != inviteeID {
			return fmt.Errorf("invitation %d: %w", invitationID, ErrForbidden)
		}
		if inv.Status != model.InviteStatusPending {
			return fmt.Errorf("invitation %d is %s: %w", invitationID, inv.Status, ErrInvalidState)
		}
		g, err = lockGuild(tx, inv.GuildID)
		if err != nil {
			return err
		}
		if g.Disbanded {
			return fmt.Errorf("guild %d: %w", g.ID, ErrDisbanded)
		}
		n, err := memberCount(tx, g.ID)
		if err != nil {
			return err
		}
		if n >= int64(s.cfg.MemberCapacity) {
			return fmt.Errorf("guild %d: %w", g.ID, ErrCapacityExceeded)
		}
		acc, err := accountOf(tx, inviteeID)
		if err != nil {
			return err
		}
		if err := s.checkEligible(acc); err != nil {
			return err
		}
		m, err := membershipOf(tx, inviteeID)
		if err != nil {
			return err
		}
		if m != nil {
			return fmt.Errorf("invitee %d: %w", inviteeID, ErrAlreadyMember)
		}

		if err := tx.Model(&model.GuildInvitation{}).Where("id = ?", inv.ID).
			Update("status", model.InviteStatusAccepted).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := insertMember(tx, inviteeID, g.ID, model.GuildRoleMember, now); err != nil {
			return err
		}
		if err := s.afterJoin(tx, inviteeID, g.ID); err != nil {
			return err
		}
		events = append(events, Event{Type: EventMemberJoined, GuildID: g.ID, UserID: inviteeID})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events...)
	return g, nil
}

// RejectInvitation: only the invitee may reject.
func (s *Service) RejectInvitation(ctx context.Context, inviteeID, invitationID int64) error {
	return s.resolveInvitation(ctx, invitationID, model.InviteStatusRejected,
		func(inv *model.GuildInvitation) error {
			if inv.InviteeID != inviteeID {
				return fmt.Errorf("invitation %d: %w", invitationID, ErrForbidden)
			}
			return nil
		})
}

// CancelInvitation: the inviter or the invitee may cancel.
func (s *Service) CancelInvitation(ctx context.Context, actorID, invitationID int64) error {
	return s.resolveInvitation(ctx, invitationID, model.InviteStatusCancelled,
		func(inv *model.GuildInvitation) error {
			if inv.InviterID != actorID && inv.InviteeID != actorID {
				return fmt.Errorf("invitation %d: %w", invitationID, ErrForbidden)
			}
			return nil
		})
}

func (s *Service) resolveInvitation(ctx context.Context, invitationID int64, to model.InviteStatus, allow func(*model.GuildInvitation) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inv model.GuildInvitation
		err := tx.First(&inv, invitationID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("invitation %d: %w", invitationID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if err := allow(&inv); err != nil {
			return err
		}
		// Guarded update: a concurrent resolution loses here instead of
		// double-flipping the status.
		res := tx.Model(&model.GuildInvitation{}).
			Where("id = ? AND status = ?", inv.ID, model.InviteStatusPending).
			Update("status", to)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("invitation %d is %s: %w", invitationID, inv.Status, ErrInvalidState)
		}
		return nil
	})
}

// RequestJoin files a join request with a guild. If a pending request
// already exists for this user and guild, it is returned as-is.
func (s *Service) RequestJoin(ctx context.Context, userID, guildID int64) (*model.GuildJoinRequest, error) {
	var req model.GuildJoinRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acc, err := accountOf(tx, userID)
		if err != nil {
			return err
		}
		if err := s.checkEligible(acc); err != nil {
			return err
		}
		m, err := membershipOf(tx, userID)
		if err != nil {
			return err
		}
		if m != nil {
			return fmt.Errorf("user %d: %w", userID, ErrAlreadyMember)
		}
		g, err := lockGuild(tx, guildID)
		if err != nil {
			return err
		}
		if g.Disbanded {
			return fmt.Errorf("guild %d: %w", g.ID, ErrDisbanded)
		}
		n, err := memberCount(tx, g.ID)
		if err != nil {
			return err
		}
		if n >= int64(s.cfg.MemberCapacity) {
			return fmt.Errorf("guild %d: %w", g.ID, ErrCapacityExceeded)
		}

		err = tx.First(&req, "guild_id = ? AND requester_id = ? AND status = ?",
			g.ID, userID, model.RequestStatusPending).Error
		if err == nil {
			return nil // idempotent
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		req = model.GuildJoinRequest{GuildID: g.ID, RequesterID: userID,
			Status: model.RequestStatusPending}
		return tx.Create(&req).Error
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// ApproveRequest: only the guild's current leader, re-verified inside
// the transaction, may approve.
func (s *Service) ApproveRequest(ctx context.Context, leaderID, requestID int64) error {
	var events []Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req model.GuildJoinRequest
		err := tx.First(&req, requestID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("request %d: %w", requestID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if req.Status != model.RequestStatusPending {
			return fmt.Errorf("request %d is %s: %w", requestID, req.Status, ErrInvalidState)
		}
		g, err := lockGuild(tx, req.GuildID)
		if err != nil {
			return err
		}
		if g.LeaderID != leaderID {
			return fmt.Errorf("guild %d: %w", g.ID, ErrForbidden)
		}
		if g.Disbanded {
			return fmt.Errorf("guild %d: %w", g.ID, ErrDisbanded)
		}
		n, err := memberCount(tx, g.ID)
		if err != nil {
			return err
		}
		if n >= int64(s.cfg.MemberCapacity) {
			return fmt.Errorf("guild %d: %w", g.ID, ErrCapacityExceeded)
		}
		acc, err := accountOf(tx, req.RequesterID)
		if err != nil {
			return err
		}
		if err := s.checkEligible(acc); err != nil {
			return err
		}
		m, err := membershipOf(tx, req.RequesterID)
		if err != nil {
			return err
		}
		if m != nil {
			return fmt.Errorf("requester %d: %w", req.RequesterID, ErrAlreadyMember)
		}

		if err := tx.Model(&model.GuildJoinRequest{}).Where("id = ?", req.ID).
			Update("status", model.RequestStatusApproved).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := insertMember(tx, req.RequesterID, g.ID, model.GuildRoleMember, now); err != nil {
			return err
		}
		if err := s.afterJoin(tx, req.RequesterID, g.ID); err != nil {
			return err
		}
		events = append(events, Event{Type: EventMemberJoined, GuildID: g.ID, UserID: req.RequesterID})
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(ctx, events...)
	return nil
}

// RejectRequest: leader only.
func (s *Service) RejectRequest(ctx context.Context, leaderID, requestID int64) error {
	return s.resolveRequest(ctx, requestID, model.RequestStatusRejected,
		func(tx *gorm.DB, req *model.GuildJoinRequest) error {
			var g model.Guild
			if err := tx.First(&g, req.GuildID).Error; err != nil {
				return err
			}
			if g.LeaderID != leaderID {
				return fmt.Errorf("request %d: %w", requestID, ErrForbidden)
			}
			return nil
		})
}

// CancelRequest: the requester or the guild's leader may cancel.
func (s *Service) CancelRequest(ctx context.Context, actorID, requestID int64) error {
	return s.resolveRequest(ctx, requestID, model.RequestStatusCancelled,
		func(tx *gorm.DB, req *model.GuildJoinRequest) error {
			if req.RequesterID == actorID {
				return nil
			}
			var g model.Guild
			if err := tx.First(&g, req.GuildID).Error; err != nil {
				return err
			}
			if g.LeaderID != actorID {
				return fmt.Errorf("request %d: %w", requestID, ErrForbidden)
			}
			return nil
		})
}

func (s *Service) resolveRequest(ctx context.Context, requestID int64, to model.RequestStatus, allow func(*gorm.DB, *model.GuildJoinRequest) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req model.GuildJoinRequest
		err := tx.First(&req, requestID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("request %d: %w", requestID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if err := allow(tx, &req); err != nil {
			return err
		}
		res := tx.Model(&model.GuildJoinRequest{}).
			Where("id = ? AND status = ?", req.ID, model.RequestStatusPending).
			Update("status", to)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("request %d is %s: %w", requestID, req.Status, ErrInvalidState)
		}
		return nil
	})
}

// Kick removes a member. Leader only; the target's membership in that
// specific guild is re-checked at call time. The leader cannot kick
// themselves through this path (use Leave).
func (s *Service) Kick(ctx context.Context, leaderID, guildID, targetID int64) error {
	var events []Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, err := lockGuild(tx, guildID)
		if err != nil {
			return err
		}
		if g.LeaderID != leaderID {
			return fmt.Errorf("guild %d: %w", guildID, ErrForbidden)
		}
		if targetID == leaderID {
			return fmt.Errorf("leader cannot kick self: %w", ErrForbidden)
		}
		m, err := membershipOf(tx, targetID)
		if err != nil {
			return err
		}
		if m == nil || m.GuildID != guildID {
			return fmt.Errorf("user %d not in guild %d: %w", targetID, guildID, ErrNotFound)
		}
		if err := tx.Delete(&model.GuildMember{}, "user_id = ?", targetID).Error; err != nil {
			return err
		}
		if err := closeHistory(tx, targetID, guildID, time.Now().UTC()); err != nil {
			return err
		}
		events = append(events, Event{Type: EventMemberKicked, GuildID: guildID, UserID: targetID})
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(ctx, events...)
	return nil
}

// Leave removes the caller's membership. A departing leader hands off
// to the longest-tenured remaining member; a sole member's departure
// disbands the guild instead of leaving it leaderless.
func (s *Service) Leave(ctx context.Context, userID int64) error {
	var events []Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := membershipOf(tx, userID)
		if err != nil {
			return err
		}
		if m == nil {
			return fmt.Errorf("user %d has no guild: %w", userID, ErrNotFound)
		}
		g, err := lockGuild(tx, m.GuildID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()

		if g.LeaderID == userID {
			n, err := memberCount(tx, g.ID)
			if err != nil {
				return err
			}
			if n <= 1 {
				return s.disbandTx(tx, g, &events)
			}
			// Successor: earliest joined excluding the departing
			// leader, user id as the stable tie-break.
			var succ model.GuildMember
			err = tx.Where("guild_id = ? AND user_id <> ?", g.ID, userID).
				Order("joined_at ASC, user_id ASC").First(&succ).Error
			if err != nil {
				return err
			}
			if err := tx.Model(&model.GuildMember{}).Where("user_id = ?", succ.UserID).
				Update("role", model.GuildRoleLeader).Error; err != nil {
				return err
			}
			if err := tx.Model(&model.Guild{}).Where("id = ?", g.ID).
				Update("leader_id", succ.UserID).Error; err != nil {
				return err
			}
			events = append(events, Event{Type: EventLeaderChanged, GuildID: g.ID, UserID: succ.UserID})
		}

		if err := tx.Delete(&model.GuildMember{}, "user_id = ?", userID).Error; err != nil {
			return err
		}
		if err := closeHistory(tx, userID, g.ID, now); err != nil {
			return err
		}
		// Leaving is symmetric to joining for offer cleanup: stale
		// pending offers from the previous affiliation are voided.
		if err := cancelUserPending(tx, userID); err != nil {
			return err
		}
		events = append(events, Event{Type: EventMemberLeft, GuildID: g.ID, UserID: userID})
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(ctx, events...)
	return nil
}

// TransferLeadership hands the leader role to another current member.
func (s *Service) TransferLeadership(ctx context.Context, leaderID, guildID, newLeaderID int64) error {
	var events []Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, err := lockGuild(tx, guildID)
		if err != nil {
			return err
		}
		if g.LeaderID != leaderID {
			return fmt.Errorf("guild %d: %w", guildID, ErrForbidden)
		}
		if newLeaderID == leaderID {
			return fmt.Errorf("already the leader: %w", ErrInvalidState)
		}
		m, err := membershipOf(tx, newLeaderID)
		if err != nil {
			return err
		}
		if m == nil || m.GuildID != guildID {
			return fmt.Errorf("user %d not in guild %d: %w", newLeaderID, guildID, ErrNotFound)
		}
		if err := tx.Model(&model.GuildMember{}).Where("user_id = ?", leaderID).
			Update("role", model.GuildRoleMember).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.GuildMember{}).Where("user_id = ?", newLeaderID).
			Update("role", model.GuildRoleLeader).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.Guild{}).Where("id = ?", guildID).
			Update("leader_id", newLeaderID).Error; err != nil {
			return err
		}
		events = append(events, Event{Type: EventLeaderChanged, GuildID: guildID, UserID: newLeaderID})
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(ctx, events...)
	return nil
}

// Disband dissolves a guild. Permitted for the leader or for the sole
// remaining member.
func (s *Service) Disband(ctx context.Context, actorID, guildID int64) error {
	var events []Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, err := lockGuild(tx, guildID)
		if err != nil {
			return err
		}
		if g.Disbanded {
			return fmt.Errorf("guild %d: %w", guildID, ErrDisbanded)
		}
		if g.LeaderID != actorID {
			n, err := memberCount(tx, g.ID)
			if err != nil {
				return err
			}
			m, err := membershipOf(tx, actorID)
			if err != nil {
				return err
			}
			if n != 1 || m == nil || m.GuildID != guildID {
				return fmt.Errorf("guild %d: %w", guildID, ErrForbidden)
			}
		}
		return s.disbandTx(tx, g, &events)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, events...)
	return nil
}

// SystemDisband dissolves a guild on behalf of a privileged caller
// (quest enforcement, admin tooling). No actor checks.
func (s *Service) SystemDisband(ctx context.Context, guildID int64) error {
	var events []Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, err := lockGuild(tx, guildID)
		if err != nil {
			return err
		}
		if g.Disbanded {
			return fmt.Errorf("guild %d: %w", guildID, ErrDisbanded)
		}
		return s.disbandTx(tx, g, &events)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, events...)
	return nil
}

// ---- read queries ----

// MemberInfo is a guild roster entry with the display fields the
// detail endpoints need.
type MemberInfo struct {
	UserID   int64           `json:"user_id"`
	Nickname string          `json:"nickname"`
	Role     model.GuildRole `json:"role"`
	Level    int             `json:"level"`
	JoinedAt time.Time       `json:"joined_at"`
}

// GuildDetail is a guild plus its roster.
type GuildDetail struct {
	Guild   model.Guild  `json:"guild"`
	Members []MemberInfo `json:"members"`
}

// Detail returns a guild and its roster.
func (s *Service) Detail(ctx context.Context, guildID int64) (*GuildDetail, error) {
	var g model.Guild
	err := s.db.WithContext(ctx).First(&g, guildID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("guild %d: %w", guildID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if g.Disbanded {
		return nil, fmt.Errorf("guild %d: %w", guildID, ErrNotFound)
	}
	var members []MemberInfo
	err = s.db.WithContext(ctx).Model(&model.GuildMember{}).
		Select("guild_members.user_id, accounts.nickname, guild_members.role, accounts.level, guild_members.joined_at").
		Joins("JOIN accounts ON accounts.id = guild_members.user_id").
		Where("guild_members.guild_id = ?", guildID).
		Order("guild_members.joined_at ASC, guild_members.user_id ASC").
		Scan(&members).Error
	if err != nil {
		return nil, err
	}
	return &GuildDetail{Guild: g, Members: members}, nil
}

// MyGuild returns the caller's guild detail, or ErrNotFound when they
// have none.
func (s *Service) MyGuild(ctx context.Context, userID int64) (*GuildDetail, error) {
	var m model.GuildMember
	err := s.db.WithContext(ctx).First(&m, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %d has no guild: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return s.Detail(ctx, m.GuildID)
}

// PendingInvitations lists the caller's pending invitations.
func (s *Service) PendingInvitations(ctx context.Context, userID int64) ([]model.GuildInvitation, error) {
	var invs []model.GuildInvitation
	err := s.db.WithContext(ctx).
		Where("invitee_id = ? AND status = ?", userID, model.InviteStatusPending).
		Order("created_at DESC").Find(&invs).Error
	return invs, err
}

// PendingRequests lists a guild's pending join requests; leader only.
func (s *Service) PendingRequests(ctx context.Context, leaderID, guildID int64) ([]model.GuildJoinRequest, error) {
	var g model.Guild
	err := s.db.WithContext(ctx).First(&g, guildID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("guild %d: %w", guildID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if g.LeaderID != leaderID {
		return nil, fmt.Errorf("guild %d: %w", guildID, ErrForbidden)
	}
	var reqs []model.GuildJoinRequest
	err = s.db.WithContext(ctx).
		Where("guild_id = ? AND status = ?", guildID, model.RequestStatusPending).
		Order("created_at ASC").Find(&reqs).Error
	return reqs, err
}
