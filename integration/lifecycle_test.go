package integration

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	mw "github.com/toshiotawa/jazzify-lab-sub004/middleware"
	"github.com/toshiotawa/jazzify-lab-sub004/model"
)

// TestGuildLifecycle walks the whole membership story over real HTTP:
// found a guild, grow it by invitation and join request, rotate the
// leadership, shrink it again and finally disband.
func TestGuildLifecycle(t *testing.T) {
	ts := NewTestServer(t)

	alice := ts.NewClient(t, "alice")
	bob := ts.NewClient(t, "bob")
	carol := ts.NewClient(t, "carol")

	g := alice.CreateGuild(t, "Jazz Cats", "")
	require.Equal(t, alice.ID, g.LeaderID)

	// Bob joins by invitation.
	alice.JoinVia(t, bob)

	// Carol applies and Alice approves.
	var reqResp struct {
		Request model.GuildJoinRequest `json:"request"`
	}
	status := carol.DoJSON(t, http.MethodPost,
		fmt.Sprintf("/api/guilds/%d/requests", g.ID), nil, &reqResp)
	require.Equal(t, http.StatusCreated, status)

	status, body := alice.Do(t, http.MethodPost,
		fmt.Sprintf("/api/guilds/requests/%d/approve", reqResp.Request.ID), nil)
	require.Equal(t, http.StatusOK, status, string(body))

	var detail struct {
		Guild   model.Guild `json:"guild"`
		Members []struct {
			UserID int64  `json:"user_id"`
			Role   string `json:"role"`
		} `json:"members"`
	}
	status = alice.DoJSON(t, http.MethodGet, fmt.Sprintf("/api/guilds/%d", g.ID), nil, &detail)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, detail.Members, 3)

	// Leadership moves to Bob, then Alice leaves entirely.
	status, _ = alice.Do(t, http.MethodPost,
		fmt.Sprintf("/api/guilds/%d/transfer", g.ID),
		map[string]interface{}{"user_id": bob.ID})
	require.Equal(t, http.StatusOK, status)

	status, _ = alice.Do(t, http.MethodPost, "/api/guilds/leave", nil)
	require.Equal(t, http.StatusOK, status)

	var reloaded model.Guild
	require.NoError(t, ts.DB.First(&reloaded, g.ID).Error)
	assert.Equal(t, bob.ID, reloaded.LeaderID)
	assert.False(t, reloaded.Disbanded)

	// Bob kicks Carol and, now alone, disbands.
	status, _ = bob.Do(t, http.MethodPost,
		fmt.Sprintf("/api/guilds/%d/kick", g.ID),
		map[string]interface{}{"user_id": carol.ID})
	require.Equal(t, http.StatusOK, status)

	status, _ = bob.Do(t, http.MethodPost,
		fmt.Sprintf("/api/guilds/%d/disband", g.ID), nil)
	require.Equal(t, http.StatusOK, status)

	require.NoError(t, ts.DB.First(&reloaded, g.ID).Error)
	assert.True(t, reloaded.Disbanded)

	// Everyone is free to start over.
	for _, cl := range []*Client{alice, bob, carol} {
		status, _ = cl.Do(t, http.MethodGet, "/api/guilds/mine", nil)
		assert.Equal(t, http.StatusNotFound, status)
	}

	// Membership history kept an interval per join.
	var historyRows int64
	ts.DB.Model(&model.GuildMembershipHistory{}).Where("guild_id = ?", g.ID).Count(&historyRows)
	assert.Equal(t, int64(3), historyRows)
	var open int64
	ts.DB.Model(&model.GuildMembershipHistory{}).
		Where("guild_id = ? AND left_at IS NULL", g.ID).Count(&open)
	assert.Zero(t, open)
}

// TestOneGuildPerPlayer verifies the single-membership rule across
// every join path.
func TestOneGuildPerPlayer(t *testing.T) {
	ts := NewTestServer(t)

	alice := ts.NewClient(t, "alice")
	bob := ts.NewClient(t, "bob")

	alice.CreateGuild(t, "First", "")
	g2 := bob.CreateGuild(t, "Second", "")

	// A leader cannot found a second guild.
	status, _ := alice.Do(t, http.MethodPost, "/api/guilds",
		map[string]interface{}{"name": "Third"})
	assert.Equal(t, http.StatusConflict, status)

	// Nor request to join another guild.
	status, _ = alice.Do(t, http.MethodPost,
		fmt.Sprintf("/api/guilds/%d/requests", g2.ID), nil)
	assert.Equal(t, http.StatusConflict, status)

	// Nor be invited into one.
	status, _ = bob.Do(t, http.MethodPost, "/api/guilds/invitations",
		map[string]interface{}{"invitee_id": alice.ID})
	assert.Equal(t, http.StatusConflict, status)
}

// TestCompetingOffersCancelledOnJoin: accepting one invitation wipes
// the player's other pending offers and applications.
func TestCompetingOffersCancelledOnJoin(t *testing.T) {
	ts := NewTestServer(t)

	leaderA := ts.NewClient(t, "leaderA")
	leaderB := ts.NewClient(t, "leaderB")
	floater := ts.NewClient(t, "floater")

	leaderA.CreateGuild(t, "Alpha", "")
	gB := leaderB.CreateGuild(t, "Beta", "")

	// Invitation from A, plus floater's own request to B.
	var invResp struct {
		Invitation model.GuildInvitation `json:"invitation"`
	}
	status := leaderA.DoJSON(t, http.MethodPost, "/api/guilds/invitations",
		map[string]interface{}{"invitee_id": floater.ID}, &invResp)
	require.Equal(t, http.StatusCreated, status)

	status, _ = floater.Do(t, http.MethodPost,
		fmt.Sprintf("/api/guilds/%d/requests", gB.ID), nil)
	require.Equal(t, http.StatusCreated, status)

	// Accept A's invitation.
	status, _ = floater.Do(t, http.MethodPost,
		fmt.Sprintf("/api/guilds/invitations/%d/accept", invResp.Invitation.ID), nil)
	require.Equal(t, http.StatusOK, status)

	// The request to B is no longer pending.
	var pending int64
	ts.DB.Model(&model.GuildJoinRequest{}).
		Where("requester_id = ? AND status = ?", floater.ID, "pending").Count(&pending)
	assert.Zero(t, pending)
}

func TestHealthAndTraceID(t *testing.T) {
	ts := NewTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(mw.TraceIDHeader))
}
