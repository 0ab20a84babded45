package presencehandler

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
)

// PresenceSource is the read-only slice of the coordinator the REST API
// serves from.
type PresenceSource interface {
	WatchlistViewers(watchlistID string) []string
	WarRoomParticipants(incidentID string) []string
	WatchlistOccupancy() map[string]int
	WarRoomOccupancy() map[string]int
	UserOnline(userID string) bool
}

type Handler struct {
	src PresenceSource
}

func New(src PresenceSource) *Handler { return &Handler{src: src} }

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/watchlists", h.listWatchlists)
	r.GET("/watchlists/:id/viewers", h.watchlistViewers)
	r.GET("/warrooms", h.listWarRooms)
	r.GET("/warrooms/:id/participants", h.warRoomParticipants)
	r.GET("/users/:id/online", h.userOnline)
	r.GET("/healthz", h.healthz)
}

// @Summary		List active watchlist rooms
// @Description	Returns every watchlist room that currently has at least one viewer.
// @Tags			Presence
// @Success		200	{array}	RoomSummary
// @Router			/watchlists [get]
func (h *Handler) listWatchlists(c *gin.Context) {
	c.JSON(http.StatusOK, summarize(h.src.WatchlistOccupancy()))
}

// @Summary		Watchlist viewers
// @Description	Returns the users currently viewing a watchlist room.
// @Tags			Presence
// @Param			id	path		string	true	"Watchlist room ID"	default(wl-42)
// @Success		200	{object}	WatchlistViewersResponse
// @Router			/watchlists/{id}/viewers [get]
func (h *Handler) watchlistViewers(c *gin.Context) {
	id := c.Param("id")
	viewers := h.src.WatchlistViewers(id)
	sort.Strings(viewers)
	c.JSON(http.StatusOK, WatchlistViewersResponse{
		WatchlistID: id,
		Viewers:     viewers,
		Count:       len(viewers),
	})
}

// @Summary		List active war rooms
// @Description	Returns every incident war room that currently has participants.
// @Tags			Presence
// @Success		200	{array}	RoomSummary
// @Router			/warrooms [get]
func (h *Handler) listWarRooms(c *gin.Context) {
	c.JSON(http.StatusOK, summarize(h.src.WarRoomOccupancy()))
}

// @Summary		War room participants
// @Description	Returns the users currently in an incident war room.
// @Tags			Presence
// @Param			id	path		string	true	"Incident ID"	default(incident-7)
// @Success		200	{object}	WarRoomParticipantsResponse
// @Router			/warrooms/{id}/participants [get]
func (h *Handler) warRoomParticipants(c *gin.Context) {
	id := c.Param("id")
	participants := h.src.WarRoomParticipants(id)
	sort.Strings(participants)
	c.JSON(http.StatusOK, WarRoomParticipantsResponse{
		IncidentID:   id,
		Participants: participants,
		Count:        len(participants),
	})
}

// @Summary		User online state
// @Description	Reports whether the user holds at least one live connection on this instance.
// @Tags			Presence
// @Param			id	path		string	true	"User ID"	default(user123)
// @Success		200	{object}	UserOnlineResponse
// @Router			/users/{id}/online [get]
func (h *Handler) userOnline(c *gin.Context) {
	id := c.Param("id")
	c.JSON(http.StatusOK, UserOnlineResponse{UserID: id, Online: h.src.UserOnline(id)})
}

// @Summary		Health probe
// @Tags			Ops
// @Success		200
// @Router			/healthz [get]
func (h *Handler) healthz(c *gin.Context) {
	c.Status(http.StatusOK)
}

func summarize(occupancy map[string]int) []RoomSummary {
	out := make([]RoomSummary, 0, len(occupancy))
	for roomID, n := range occupancy {
		out = append(out, RoomSummary{RoomID: roomID, Members: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}
