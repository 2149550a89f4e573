package matchdto

// Server → client event types.
const (
	EvState          = "gameState"
	EvPersonalInfo   = "personalInfo"
	EvGameOver       = "gameOver"
	EvInfo           = "info"
	EvOpponentLeft   = "opponentLeft"
	EvOpponentKicked = "opponentKicked"
	EvKicked         = "kicked"
	EvGameDeleted    = "gameDeleted"
	EvActionError    = "actionError"
	EvLeftGame       = "leftGame"
)

// Client → server event types.
const (
	CmdMove  = "makeMove"
	CmdLeave = "leaveGame"
)

// ServerEvent is one outbound frame on the live channel.
type ServerEvent struct {
	Type      string    `json:"type"`
	State     *Snapshot `json:"state,omitempty"`
	YourColor string    `json:"yourColor,omitempty"`
	YourName  string    `json:"yourName,omitempty"`
	Result    string    `json:"result,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// ClientEvent is one inbound frame on the live channel.
type ClientEvent struct {
	Type string `json:"type"`
	Move string `json:"move,omitempty"`
}

// JoinResponse is the matchmaking request reply.
type JoinResponse struct {
	Success bool   `json:"success"`
	GameID  string `json:"gameId,omitempty"`
	Color   string `json:"color,omitempty"`
	Message string `json:"message,omitempty"`
}

// NameResponse is the display-name lookup reply.
type NameResponse struct {
	Success  bool   `json:"success"`
	UserName string `json:"userName,omitempty"`
	Message  string `json:"message,omitempty"`
}
