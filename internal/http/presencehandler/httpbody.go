package presencehandler

type RoomSummary struct {
	RoomID  string `json:"roomId"  example:"wl-42"`
	Members int    `json:"members" example:"3"`
} // @name RoomSummary

type WatchlistViewersResponse struct {
	WatchlistID string   `json:"watchlistId" example:"wl-42"`
	Viewers     []string `json:"viewers"`
	Count       int      `json:"count" example:"2"`
} // @name WatchlistViewersResponse

type WarRoomParticipantsResponse struct {
	IncidentID   string   `json:"incidentId" example:"incident-7"`
	Participants []string `json:"participants"`
	Count        int      `json:"count" example:"2"`
} // @name WarRoomParticipantsResponse

type UserOnlineResponse struct {
	UserID string `json:"userId" example:"user123"`
	Online bool   `json:"online"`
} // @name UserOnlineResponse

type ErrorResponse struct {
	Error string `json:"error"`
} // @name ErrorResponse
