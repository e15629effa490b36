package game

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jwebster45206/closed-ai/internal/services"
)

type emission struct {
	Room    string
	Event   string
	Payload any
}

// recordingEmitter captures every emission for assertions.
type recordingEmitter struct {
	mu        sync.Mutex
	emissions []emission
}

func (r *recordingEmitter) Emit(room, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emissions = append(r.emissions, emission{Room: room, Event: event, Payload: payload})
}

func (r *recordingEmitter) all() []emission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]emission(nil), r.emissions...)
}

func (r *recordingEmitter) named(event string) []emission {
	var out []emission
	for _, e := range r.all() {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

var testNow = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDeps(llm services.LLMService) Deps {
	return Deps{
		LLM:     llm,
		Streams: NewSequence(),
		Tokens:  services.ApproxCounter{},
		Logger:  testLogger(),
		Now:     func() time.Time { return testNow },
	}
}
