package matchdto

// Seat is the public view of one occupied color slot.
type Seat struct {
	UserName string `json:"userName"`
	Color    string `json:"color"`
}

// Snapshot is the full authoritative game state pushed to every subscribed
// connection on each change. It never carries identity tokens or timer
// internals.
type Snapshot struct {
	GameID           string   `json:"gameId"`
	Players          []Seat   `json:"players"`
	Moves            []string `json:"moves"`
	IsOver           bool     `json:"isOver"`
	Result           string   `json:"result,omitempty"`
	CurrentTurnColor string   `json:"currentTurnColor"`
}
