package game

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/jwebster45206/closed-ai/internal/services"
	"github.com/jwebster45206/closed-ai/pkg/chat"
)

// Chunk is a run of actions sharing one system prompt. It builds the context
// window sent to the completion service and admits one main action at a time.
type Chunk struct {
	id           string
	systemPrompt string
	deps         Deps
	emitter      Emitter
	onBlock      func(blocked bool)
	logger       *slog.Logger

	queue   sync.Mutex // held for the whole of ProcessAction
	blocked atomic.Bool

	mu          sync.RWMutex // guards the slices below
	actions     []Action
	sideActions []Action
}

// NewChunk creates an empty chunk. onBlock, if set, is called with true when
// an action is admitted and with false once it is done.
func NewChunk(systemPrompt string, deps Deps, emitter Emitter, onBlock func(blocked bool)) *Chunk {
	id := uuid.NewString()
	return &Chunk{
		id:           id,
		systemPrompt: systemPrompt,
		deps:         deps,
		emitter:      emitter,
		onBlock:      onBlock,
		logger:       deps.logger().With("chunk_id", id),
	}
}

func (c *Chunk) ID() string { return c.id }

func (c *Chunk) Blocked() bool { return c.blocked.Load() }

func (c *Chunk) setBlocked(blocked bool) {
	c.blocked.Store(blocked)
	if c.onBlock != nil {
		c.onBlock(blocked)
	}
}

// ProcessAction appends action to the main queue, processes it against the
// current context and broadcasts it along with its responses. It fails
// immediately with ErrActionQueueBlocked while another action is in progress.
// An action that fails to process, or whose responses break off while
// broadcasting, is dropped again so a retry does not duplicate context.
func (c *Chunk) ProcessAction(ctx context.Context, action Action) error {
	if !c.queue.TryLock() {
		return ErrActionQueueBlocked
	}
	defer c.queue.Unlock()
	c.setBlocked(true)
	defer c.setBlocked(false)

	c.mu.Lock()
	c.actions = append(c.actions, action)
	c.mu.Unlock()

	if err := action.Process(ctx, c.deps, c.Messages()); err != nil {
		c.remove(action)
		return err
	}

	if err := action.Broadcast(ctx, c.emitter); err != nil {
		c.logger.Warn("Failed to broadcast action", "kind", action.Kind(), "error", err)
	}

	if err := c.broadcastResponses(ctx, action); err != nil {
		c.remove(action)
		return err
	}
	return nil
}

// ProcessSideAction runs action against the main context plus the action's
// own message. Side actions never enter the main context and are not
// serialized.
func (c *Chunk) ProcessSideAction(ctx context.Context, action Action) error {
	c.mu.Lock()
	c.sideActions = append(c.sideActions, action)
	c.mu.Unlock()

	messages := c.Messages()
	if msg, ok := action.ModelMessage(); ok {
		messages = append(messages, msg)
	}

	if err := action.Process(ctx, c.deps, messages); err != nil {
		return err
	}

	return c.broadcastResponses(ctx, action)
}

// broadcastResponses broadcasts every response and returns the first error.
func (c *Chunk) broadcastResponses(ctx context.Context, action Action) error {
	var first error
	for _, resp := range action.Responses() {
		if err := resp.Broadcast(ctx, c.emitter); err != nil {
			c.logger.Warn("Response broadcast ended early", "kind", resp.Kind(), "error", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (c *Chunk) remove(action Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.actions) - 1; i >= 0; i-- {
		if c.actions[i] == action {
			c.actions = append(c.actions[:i], c.actions[i+1:]...)
			return
		}
	}
}

// Messages assembles the context window: the system prompt, then every main
// action's message followed by its responses' messages.
func (c *Chunk) Messages() []chat.ChatMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()

	messages := []chat.ChatMessage{{Role: chat.ChatRoleSystem, Content: c.systemPrompt}}
	for _, action := range c.actions {
		if msg, ok := action.ModelMessage(); ok {
			messages = append(messages, msg)
		}
		for _, resp := range action.Responses() {
			if msg, ok := resp.ModelMessage(); ok {
				messages = append(messages, msg)
			}
		}
	}
	return messages
}

// History returns the client views of main events shown in history.
func (c *Chunk) History() []chat.ClientEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()

	history := make([]chat.ClientEvent, 0, len(c.actions)*2)
	for _, action := range c.actions {
		history = appendView(history, action)
		for _, resp := range action.Responses() {
			history = appendView(history, resp)
		}
	}
	return history
}

func appendView(history []chat.ClientEvent, e Event) []chat.ClientEvent {
	if !e.ShowInHistory() {
		return history
	}
	if view, ok := e.ClientView(); ok {
		history = append(history, view)
	}
	return history
}

// UsedTokens sums the tokens of every main event.
func (c *Chunk) UsedTokens(counter services.TokenCounter) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := 0
	for _, action := range c.actions {
		total += action.UsedTokens(counter)
		for _, resp := range action.Responses() {
			total += resp.UsedTokens(counter)
		}
	}
	return total
}

// SideActions returns how many side actions have been run on this chunk.
func (c *Chunk) SideActions() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sideActions)
}
