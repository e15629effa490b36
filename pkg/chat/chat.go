package chat

import (
	"fmt"
	"strings"
	"time"
)

const (
	ChatRoleUser   = "user"      // Player or engine-authored prompt
	ChatRoleAgent  = "assistant" // Narrator output
	ChatRoleSystem = "system"    // Story setup
)

// ChatMessage represents a single message in the context window sent to the
// completion service.
type ChatMessage struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

const (
	ClientEventPlayer = "player"
	ClientEventServer = "server"
)

// ClientEvent is the client-visible shape of a game event, as returned in
// history and pushed with game-message.
type ClientEvent struct {
	Type    string `json:"type"` // "player" or "server"
	Author  string `json:"author"`
	Content string `json:"content"`
	SentAt  string `json:"sentAt"`
}

// FormatTime renders event timestamps the way clients expect them (ISO 8601,
// millisecond precision, UTC).
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// InputRequest is the payload of a user-game-input event or HTTP input call.
type InputRequest struct {
	Msg string `json:"msg"`
}

func (r *InputRequest) Validate() error {
	if strings.TrimSpace(r.Msg) == "" {
		return fmt.Errorf("msg cannot be empty")
	}
	return nil
}
