package chat

// CreateGameRequest is the body of POST /api/games.
type CreateGameRequest struct {
	Themes []string `json:"themes" binding:"omitempty,max=4,dive,min=1,max=40"`
}

// GameSummary identifies a game and whether it has been started.
type GameSummary struct {
	GameID  string `json:"gameId"`
	Started bool   `json:"started"`
}

// GameInfo is one entry of GET /api/games/my.
type GameInfo struct {
	GameID   string `json:"gameId"`
	Started  bool   `json:"started"`
	Preview  string `json:"preview"`
	BgImgURL string `json:"bgImgURL"`
}

type GameResponse struct {
	Game GameSummary `json:"game"`
}

type GamesResponse struct {
	Games []GameInfo `json:"games"`
}

type HistoryResponse struct {
	Messages []ClientEvent `json:"messages"`
}

type BlockedResponse struct {
	Blocked bool `json:"blocked"`
}

// ErrorBody carries a user-facing error. Status is set on socket errors only.
type ErrorBody struct {
	Msg    string `json:"msg"`
	Status int    `json:"status,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Notification is pushed to a player's session when something finishes in
// the background.
type Notification struct {
	Title string `json:"title"`
}
