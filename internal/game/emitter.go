package game

// Server to client event names.
const (
	EventGameMessage      = "game-message"
	EventMessageStream    = "message-stream"
	EventGameBlock        = "game-block"
	EventGameUnblock      = "game-unblock"
	EventBackgroundChange = "background-change"
	EventError            = "error"
	EventStoryComplete    = "story-complete"
)

// Emitter delivers an event to every connection in a room. A nil payload
// means the event carries no arguments.
type Emitter interface {
	Emit(room, event string, payload any)
}

// Emitters fans one emission out to several transports.
type Emitters []Emitter

func (e Emitters) Emit(room, event string, payload any) {
	for _, em := range e {
		if em != nil {
			em.Emit(room, event, payload)
		}
	}
}

// GameRoom is the room every connection watching a game joins.
func GameRoom(gameID string) string {
	return "game-" + gameID
}

// SessionRoom holds every connection of one login session.
func SessionRoom(sessionID string) string {
	return "session-" + sessionID
}
