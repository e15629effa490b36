package game

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jwebster45206/closed-ai/internal/services"
	"github.com/jwebster45206/closed-ai/pkg/chat"
	"github.com/jwebster45206/closed-ai/pkg/stream"
)

// StreamStoryResponse is a narrator reply that arrives as a stream. Its
// content grows while Broadcast consumes the stream and is only treated as
// part of the conversation once fully loaded.
type StreamStoryResponse struct {
	gameID    string
	streamID  int64
	createdAt time.Time
	logger    *slog.Logger

	mu          sync.Mutex
	body        io.ReadCloser
	content     strings.Builder
	packetID    int
	fullyLoaded bool
}

func NewStreamStoryResponse(gameID string, streamID int64, body io.ReadCloser, createdAt time.Time, logger *slog.Logger) *StreamStoryResponse {
	return &StreamStoryResponse{
		gameID:    gameID,
		streamID:  streamID,
		createdAt: createdAt,
		logger:    logger,
		body:      body,
	}
}

func (r *StreamStoryResponse) GameID() string  { return r.gameID }
func (r *StreamStoryResponse) Kind() Kind      { return KindStreamStory }
func (r *StreamStoryResponse) StreamID() int64 { return r.streamID }
func (r *StreamStoryResponse) isEvent()        {}
func (r *StreamStoryResponse) isResponse()     {}

func (r *StreamStoryResponse) Content() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.content.String()
}

func (r *StreamStoryResponse) PacketID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.packetID
}

func (r *StreamStoryResponse) FullyLoaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fullyLoaded
}

func (r *StreamStoryResponse) ModelMessage() (chat.ChatMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.fullyLoaded {
		return chat.ChatMessage{}, false
	}
	return chat.ChatMessage{Role: chat.ChatRoleAgent, Content: r.content.String()}, true
}

func (r *StreamStoryResponse) ClientView() (chat.ClientEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return chat.ClientEvent{
		Type:    chat.ClientEventServer,
		Author:  chat.ClientEventServer,
		Content: r.content.String(),
		SentAt:  chat.FormatTime(r.createdAt),
	}, true
}

func (r *StreamStoryResponse) ShowInHistory() bool {
	return r.FullyLoaded()
}

func (r *StreamStoryResponse) UsedTokens(counter services.TokenCounter) int {
	return tokensOf(r, counter)
}

// Broadcast consumes the stream, emitting one message-stream packet per
// fragment, then marks the response fully loaded and emits the complete
// message. If the stream breaks off, the response stays partial and the
// error is returned. A second call is a no-op.
func (r *StreamStoryResponse) Broadcast(ctx context.Context, emitter Emitter) error {
	r.mu.Lock()
	body := r.body
	r.body = nil
	r.mu.Unlock()
	if body == nil {
		return nil
	}
	defer func() {
		_ = body.Close() // Ignore error in defer
	}()

	room := GameRoom(r.gameID)
	reader := stream.NewReader(body)

	var readErr error
	for {
		if err := ctx.Err(); err != nil {
			readErr = err
			break
		}
		msg, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			readErr = err
			break
		}

		delta, err := stream.Delta(msg)
		if err != nil {
			level := slog.LevelWarn
			if errors.Is(err, stream.ErrNoChoices) {
				level = slog.LevelDebug
			}
			r.logger.Log(ctx, level, "Skipping stream message", "error", err, "stream_id", r.streamID)
			continue
		}

		r.mu.Lock()
		r.content.WriteString(delta)
		r.packetID++
		packet := chat.Packet{StreamID: r.streamID, PacketID: r.packetID, Delta: delta}
		r.mu.Unlock()

		emitter.Emit(room, EventMessageStream, chat.FormatPacket(packet))
	}

	if readErr != nil {
		// A cut-off passage never joins the conversation.
		return fmt.Errorf("story stream %d interrupted after %d packets: %w", r.streamID, r.PacketID(), readErr)
	}

	r.mu.Lock()
	r.fullyLoaded = true
	packets := r.packetID
	r.mu.Unlock()

	view, _ := r.ClientView()
	emitter.Emit(room, EventGameMessage, view)

	r.logger.Debug("Story stream finished", "stream_id", r.streamID, "packets", packets, "game_id", r.gameID)
	return nil
}
